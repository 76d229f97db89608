// Package session implements the cow-shake messaging layer on top of a BLE
// transport: chunked sends, terminator-based reassembly, connection retries
// and name de-duplicated discovery.
//
// A Session owns every piece of protocol state and mutates it only from its
// dispatch loop. Transport calls run in their own goroutines and post their
// outcome back to the loop, and every timer re-checks a generation number
// before acting, so late timers and crossed transport callbacks are harmless.
package session

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/Mteixeira88/cow-shake/events"
	"github.com/Mteixeira88/cow-shake/logger"
	"github.com/Mteixeira88/cow-shake/transport"
)

// Session is the messaging endpoint for one local device. Either role may be
// nil: a central-only session cannot serve, a peripheral-only one cannot
// scan, connect or send.
type Session struct {
	central    transport.Central
	peripheral transport.Peripheral
	opts       options
	bus        *events.Bus

	loop   *loop
	ctx    context.Context
	cancel context.CancelFunc

	// serialises outbound messages; one in flight at a time
	sendMu sync.Mutex

	// owned by loop
	enabled bool
	link    link
	inbound inbound
	scan    discovery
}

// New creates a session and starts its dispatch loop. Call Close to release it.
func New(central transport.Central, peripheral transport.Peripheral, opts ...Option) *Session {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		central:    central,
		peripheral: peripheral,
		opts:       o,
		bus:        o.bus,
		loop:       newLoop(),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Bus returns the bus this session publishes on
func (s *Session) Bus() *events.Bus {
	return s.bus
}

// Init makes sure the radio is enabled, asking the adapter to enable it when
// it is not. When offNotify is set it is called once the radio is switched off
// after a successful Init.
func (s *Session) Init(ctx context.Context, offNotify func()) error {
	if s.central == nil {
		return fmt.Errorf("%w: no central role", ErrTransportUnavailable)
	}

	if offNotify != nil {
		s.central.StateNotifications(func(state transport.State) {
			s.loop.post(func() {
				if strings.EqualFold(string(state), string(transport.StateOff)) && s.enabled {
					s.enabled = false
					logger.Warn(s.opts.name, "📴 Bluetooth switched off")
					s.loop.notify(offNotify)
				}
			})
		})
	}

	enabled := s.central.IsEnabled(ctx)
	if !enabled {
		logger.Info(s.opts.name, "Bluetooth not yet enabled so we try to enable it")
		if err := s.central.Enable(ctx); err != nil {
			s.loop.call(func() { s.enabled = false })
			return fmt.Errorf("%w: %v", ErrTransportUnavailable, err)
		}
	}

	if !s.loop.call(func() { s.enabled = true }) {
		return ErrClosed
	}
	return nil
}

// StartServer registers the write handler, creates the service and starts
// advertising. Service creation and advertising run concurrently; an error
// from either fails the call.
func (s *Session) StartServer() error {
	if s.peripheral == nil {
		return fmt.Errorf("%w: no peripheral role", ErrTransportUnavailable)
	}

	s.peripheral.OnWriteRequest(s.HandleWriteRequest)
	s.peripheral.OnStateChange(func(state transport.State) {
		logger.Info(s.opts.name, "Bluetooth state is %s", state)
	})

	desc := transport.NewServiceDescriptor(s.opts.serviceUUID, s.opts.charUUID)

	var g errgroup.Group
	g.Go(func() error {
		return s.peripheral.CreateService(desc)
	})
	g.Go(func() error {
		return s.peripheral.StartAdvertising(s.opts.serviceUUID, s.opts.charUUID)
	})
	if err := g.Wait(); err != nil {
		logger.Warn(s.opts.name, "❌ Server cannot be started: %v", err)
		return fmt.Errorf("start server: %w", err)
	}

	logger.Info(s.opts.name, "📡 Created service %s (char %s) and started advertising", s.opts.serviceUUID, s.opts.charUUID)
	return nil
}

// StopServer stops advertising
func (s *Session) StopServer() error {
	if s.peripheral == nil {
		return fmt.Errorf("%w: no peripheral role", ErrTransportUnavailable)
	}
	if err := s.peripheral.StopAdvertising(); err != nil {
		return fmt.Errorf("stop advertising: %w", err)
	}
	return nil
}

// Link returns a snapshot of the connection state
func (s *Session) Link() LinkStatus {
	var st LinkStatus
	s.loop.call(func() {
		st = LinkStatus{
			State:   s.link.state,
			Retries: s.link.retries,
			Target:  s.link.target,
			Device:  s.link.device,
		}
	})
	return st
}

// Close stops all timers, halts the dispatch loop and cancels in-flight
// transport calls. It does not disconnect the peer.
func (s *Session) Close() error {
	s.loop.call(func() {
		stopTimer(&s.link.retry)
		stopTimer(&s.inbound.timer)
		stopTimer(&s.scan.timer)
		s.link.gen++
		s.inbound.gen++
		s.scan.gen++
	})
	s.cancel()
	s.loop.stop()
	return nil
}

func (s *Session) alert(err error) {
	if s.opts.alert != nil {
		s.opts.alert(err)
	}
}

// diagnose runs on the loop, so the hook is handed to the hook goroutine
func (s *Session) diagnose(err error) {
	if fn := s.opts.diagnostics; fn != nil {
		s.loop.notify(func() { fn(err) })
	}
}
