package cli

import (
	"fmt"

	"github.com/Mteixeira88/cow-shake/config"
	"github.com/Mteixeira88/cow-shake/events"
	"github.com/Mteixeira88/cow-shake/session"
	"github.com/Mteixeira88/cow-shake/transport"
	"github.com/Mteixeira88/cow-shake/wire"
)

// radio is an adapter that plays both roles
type radio interface {
	transport.Central
	transport.Peripheral
	Close()
}

type wireRadio struct {
	*wire.Device
}

func (r wireRadio) Close() { r.Stop() }

func openWire(c *config.Config) (radio, error) {
	d := wire.NewDevice(c.DataDir, c.DeviceName, c.Simulation)
	if err := d.Start(); err != nil {
		return nil, err
	}
	return wireRadio{d}, nil
}

func openRadio(c *config.Config) (radio, error) {
	switch c.Transport {
	case config.TransportWire:
		return openWire(c)
	case config.TransportBLE:
		return openBLE(c)
	default:
		return nil, fmt.Errorf("unknown transport %q", c.Transport)
	}
}

// endpoint is a session bound to an open radio
type endpoint struct {
	*session.Session
	radio radio
}

func (e *endpoint) Close() {
	e.Session.Close()
	e.radio.Close()
}

// openEndpoint opens the configured radio and wraps it in a session that
// publishes on bus and reports send failures and dropped messages on the
// console
func openEndpoint(c *config.Config, bus *events.Bus, report func(string, error)) (*endpoint, error) {
	r, err := openRadio(c)
	if err != nil {
		return nil, err
	}

	opts := append(c.SessionOptions(),
		session.WithBus(bus),
		session.WithAlert(func(err error) { report("send failed", err) }),
		session.WithDiagnostics(func(err error) { report("message dropped", err) }),
	)
	return &endpoint{Session: session.New(r, r, opts...), radio: r}, nil
}
