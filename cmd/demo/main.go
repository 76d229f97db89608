// Command demo runs two simulated cows in one process: Daisy finds Bella,
// connects and sends her a text and a JSON message, and Bella answers.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Mteixeira88/cow-shake/events"
	"github.com/Mteixeira88/cow-shake/logger"
	"github.com/Mteixeira88/cow-shake/session"
	"github.com/Mteixeira88/cow-shake/transport"
	"github.com/Mteixeira88/cow-shake/wire"
)

type cow struct {
	name    string
	radio   *wire.Device
	session *session.Session
	events  <-chan events.Event
	unsub   func()
}

func newCow(dataDir, name string) (*cow, error) {
	radio := wire.NewDevice(dataDir, name, wire.PerfectSimulationConfig()) // Zero delays for demo
	if err := radio.Start(); err != nil {
		return nil, err
	}

	bus := events.NewBus()
	ch, unsub := bus.Subscribe()
	s := session.New(radio, radio,
		session.WithName(name),
		session.WithBus(bus),
		session.WithTimings(session.Timings{ScanTimeout: 2 * time.Second}),
		session.WithAlert(func(err error) { fmt.Printf("[%s] ❌ %v\n", name, err) }),
	)
	return &cow{name: name, radio: radio, session: s, events: ch, unsub: unsub}, nil
}

func (c *cow) close() {
	c.session.Close()
	c.unsub()
	c.radio.Stop()
}

// wait returns the next event of type t
func (c *cow) wait(ctx context.Context, t events.Type) (events.Event, error) {
	for {
		select {
		case <-ctx.Done():
			return events.Event{}, fmt.Errorf("[%s] waiting for %s: %w", c.name, t, ctx.Err())
		case e := <-c.events:
			if e.Type == t {
				return e, nil
			}
			if e.Type == events.ConnectionFailure {
				return events.Event{}, fmt.Errorf("[%s] connection to %s failed", c.name, e.Device.ID)
			}
		}
	}
}

// dial scans for peer by name and connects to it
func (c *cow) dial(ctx context.Context, peer string) (transport.PeerDevice, error) {
	if err := c.session.Scan(nil); err != nil {
		return transport.PeerDevice{}, err
	}
	for {
		e, err := c.wait(ctx, events.NewDevice)
		if err != nil {
			return transport.PeerDevice{}, err
		}
		if e.Device.Name != peer {
			continue
		}
		fmt.Printf("[%s] 🔍 Found %s\n", c.name, peer)
		c.session.StopScan()
		if err := c.session.Connect(e.Device.ID); err != nil {
			return transport.PeerDevice{}, err
		}
		if _, err := c.wait(ctx, events.ConnectionSuccess); err != nil {
			return transport.PeerDevice{}, err
		}
		fmt.Printf("[%s] 🤝 Connected to %s\n", c.name, peer)
		return *e.Device, nil
	}
}

func (c *cow) receive(ctx context.Context, n int) error {
	for i := 0; i < n; i++ {
		e, err := c.wait(ctx, events.ReceivedRequest)
		if err != nil {
			return err
		}
		fmt.Printf("[%s] 📩 RECEIVED (%s): %s\n", c.name, e.Payload.Kind, e.Payload.Text)
	}
	return nil
}

func run() error {
	dataDir, err := os.MkdirTemp("", "cowshake-demo")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dataDir)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	daisy, err := newCow(dataDir, "Daisy")
	if err != nil {
		return err
	}
	defer daisy.close()
	bella, err := newCow(dataDir, "Bella")
	if err != nil {
		return err
	}
	defer bella.close()

	for _, c := range []*cow{daisy, bella} {
		if err := c.session.Init(ctx, nil); err != nil {
			return err
		}
		if err := c.session.StartServer(); err != nil {
			return err
		}
	}
	fmt.Println("✓ Both cows are advertising")
	fmt.Println()

	g, ctx := errgroup.WithContext(ctx)

	// Daisy talks first
	g.Go(func() error {
		if _, err := daisy.dial(ctx, "Bella"); err != nil {
			return err
		}
		if err := daisy.session.Send(ctx, "Hello Bella, this is Daisy speaking!", ""); err != nil {
			return err
		}
		order := json.RawMessage(`{"cmd":"milk","litres":12,"when":"today"}`)
		if err := daisy.session.Send(ctx, order, ""); err != nil {
			return err
		}
		fmt.Printf("[Daisy] 📤 SENT a greeting and a milking order\n")
		return daisy.receive(ctx, 1)
	})

	// Bella listens, then answers over her own link
	g.Go(func() error {
		if err := bella.receive(ctx, 2); err != nil {
			return err
		}
		if _, err := bella.dial(ctx, "Daisy"); err != nil {
			return err
		}
		fmt.Printf("[Bella] 📤 SENT a reply\n")
		return bella.session.Send(ctx, map[string]interface{}{"reply": "moo", "ok": true}, "")
	})

	return g.Wait()
}

func main() {
	fmt.Println("=== cow-shake demo ===")
	fmt.Println()
	logger.SetLevel(logger.WARN)

	if err := run(); err != nil {
		fmt.Printf("❌ %v\n", err)
		os.Exit(1)
	}
	fmt.Println()
	fmt.Println("=== Done ===")
}
