package session

import (
	"time"

	"github.com/Mteixeira88/cow-shake/events"
	"github.com/Mteixeira88/cow-shake/transport"
)

// Protocol timing defaults
const (
	MaxRetries     = 3
	RetryDelay     = 300 * time.Millisecond
	ReceiveTimeout = 3000 * time.Millisecond
	ScanTimeout    = 10000 * time.Millisecond
)

// Timings groups the protocol timers so tests and config can shorten them
type Timings struct {
	MaxRetries     int
	RetryDelay     time.Duration
	ReceiveTimeout time.Duration
	ScanTimeout    time.Duration
}

// DefaultTimings returns the protocol defaults
func DefaultTimings() Timings {
	return Timings{
		MaxRetries:     MaxRetries,
		RetryDelay:     RetryDelay,
		ReceiveTimeout: ReceiveTimeout,
		ScanTimeout:    ScanTimeout,
	}
}

func (t Timings) withDefaults() Timings {
	d := DefaultTimings()
	if t.MaxRetries <= 0 {
		t.MaxRetries = d.MaxRetries
	}
	if t.RetryDelay <= 0 {
		t.RetryDelay = d.RetryDelay
	}
	if t.ReceiveTimeout <= 0 {
		t.ReceiveTimeout = d.ReceiveTimeout
	}
	if t.ScanTimeout <= 0 {
		t.ScanTimeout = d.ScanTimeout
	}
	return t
}

type options struct {
	name        string
	bus         *events.Bus
	timings     Timings
	serviceUUID string
	charUUID    string
	alert       func(error)
	diagnostics func(error)
}

// Option configures a Session
type Option func(*options)

// WithName sets the prefix used in log lines
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithBus publishes events on b instead of events.Default
func WithBus(b *events.Bus) Option {
	return func(o *options) {
		o.bus = b
	}
}

// WithTimings overrides the protocol timers; zero fields keep their defaults
func WithTimings(t Timings) Option {
	return func(o *options) {
		o.timings = t.withDefaults()
	}
}

// WithUUIDs overrides the service and characteristic identifiers
func WithUUIDs(serviceUUID, charUUID string) Option {
	return func(o *options) {
		if serviceUUID != "" {
			o.serviceUUID = serviceUUID
		}
		if charUUID != "" {
			o.charUUID = charUUID
		}
	}
}

// WithAlert sets the hook used to tell the user that a send failed
func WithAlert(fn func(error)) Option {
	return func(o *options) {
		o.alert = fn
	}
}

// WithDiagnostics sets the hook receiving non-fatal problems such as
// stalled receives
func WithDiagnostics(fn func(error)) Option {
	return func(o *options) {
		o.diagnostics = fn
	}
}

func defaultOptions() options {
	return options{
		name:        "Session",
		bus:         events.Default,
		timings:     DefaultTimings(),
		serviceUUID: transport.ServiceUUID,
		charUUID:    transport.CharacteristicUUID,
	}
}
