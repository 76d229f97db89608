package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Mteixeira88/cow-shake/events"
	"github.com/Mteixeira88/cow-shake/transport"
)

// fakeCentral is a scripted transport.Central that records every call
type fakeCentral struct {
	mu sync.Mutex

	enabled   bool
	enableErr error
	states    []func(transport.State)

	// connectErrs[i] is the result of the i-th Connect call; missing entries succeed
	connectErrs      []error
	connectCalls     []string
	connectedOnFail  bool
	connected        map[string]bool
	disconnects      []string
	disconnectErr    error
	isConnectedCalls int

	writes      []fakeWrite
	writeResult func(n int) (string, error)

	scans     int
	stopScans int
	onDevice  func(transport.PeerDevice)
}

type fakeWrite struct {
	id, service, char string
	data              []byte
}

func newFakeCentral() *fakeCentral {
	return &fakeCentral{enabled: true, connected: make(map[string]bool)}
}

func (f *fakeCentral) IsEnabled(ctx context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enabled
}

func (f *fakeCentral) Enable(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.enableErr != nil {
		return f.enableErr
	}
	f.enabled = true
	return nil
}

func (f *fakeCentral) StateNotifications(handler func(transport.State)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states = append(f.states, handler)
}

func (f *fakeCentral) setState(st transport.State) {
	f.mu.Lock()
	handlers := append([]func(transport.State){}, f.states...)
	f.mu.Unlock()
	for _, h := range handlers {
		h(st)
	}
}

func (f *fakeCentral) Scan(serviceUUIDs []string, timeout time.Duration, onDevice func(transport.PeerDevice), onError func(error)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scans++
	f.onDevice = onDevice
	return nil
}

func (f *fakeCentral) StopScan() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopScans++
	return nil
}

func (f *fakeCentral) emit(d transport.PeerDevice) {
	f.mu.Lock()
	fn := f.onDevice
	f.mu.Unlock()
	fn(d)
}

func (f *fakeCentral) scanCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.scans
}

func (f *fakeCentral) IsConnected(ctx context.Context, id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.isConnectedCalls++
	return f.connected[id]
}

func (f *fakeCentral) Connect(ctx context.Context, id string) (transport.PeerDevice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.connectCalls)
	f.connectCalls = append(f.connectCalls, id)
	if n < len(f.connectErrs) && f.connectErrs[n] != nil {
		if f.connectedOnFail {
			f.connected[id] = true
		}
		return transport.PeerDevice{}, f.connectErrs[n]
	}
	f.connected[id] = true
	return transport.PeerDevice{ID: id, Name: "peer-" + id}, nil
}

func (f *fakeCentral) connectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.connectCalls)
}

func (f *fakeCentral) Disconnect(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects = append(f.disconnects, id)
	delete(f.connected, id)
	return f.disconnectErr
}

func (f *fakeCentral) disconnected() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.disconnects...)
}

func (f *fakeCentral) Write(ctx context.Context, id, serviceUUID, charUUID string, data []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, fakeWrite{id: id, service: serviceUUID, char: charUUID, data: append([]byte(nil), data...)})
	if f.writeResult != nil {
		return f.writeResult(len(f.writes))
	}
	return transport.StatusOK, nil
}

func (f *fakeCentral) written() []fakeWrite {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]fakeWrite(nil), f.writes...)
}

// fakePeripheral records service registration and exposes the write handler
type fakePeripheral struct {
	mu          sync.Mutex
	handler     func(transport.WriteRequest)
	service     *transport.ServiceDescriptor
	advertising bool
	createErr   error
}

func (p *fakePeripheral) OnWriteRequest(handler func(transport.WriteRequest)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handler = handler
}

func (p *fakePeripheral) OnStateChange(handler func(transport.State)) {}

func (p *fakePeripheral) CreateService(desc transport.ServiceDescriptor) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.createErr != nil {
		return p.createErr
	}
	p.service = &desc
	return nil
}

func (p *fakePeripheral) StartAdvertising(serviceUUID, charUUID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.advertising = true
	return nil
}

func (p *fakePeripheral) StopAdvertising() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.advertising = false
	return nil
}

var errRadio = errors.New("radio says no")

var testTimings = Timings{
	MaxRetries:     MaxRetries,
	RetryDelay:     20 * time.Millisecond,
	ReceiveTimeout: 150 * time.Millisecond,
	ScanTimeout:    100 * time.Millisecond,
}

// newTestSession returns a session on a private bus plus a subscription to it
func newTestSession(t *testing.T, c transport.Central, p transport.Peripheral, opts ...Option) (*Session, <-chan events.Event) {
	t.Helper()
	bus := events.NewBus()
	ch, unsub := bus.Subscribe()
	opts = append([]Option{WithBus(bus), WithTimings(testTimings), WithName("Test")}, opts...)
	s := New(c, p, opts...)
	t.Cleanup(func() {
		s.Close()
		unsub()
	})
	return s, ch
}

func waitEvent(t *testing.T, ch <-chan events.Event, want events.Type) events.Event {
	t.Helper()
	select {
	case e := <-ch:
		require.Equal(t, want, e.Type, "unexpected event %+v", e)
		return e
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", want)
	}
	return events.Event{}
}

func noEvent(t *testing.T, ch <-chan events.Event, within time.Duration) {
	t.Helper()
	select {
	case e := <-ch:
		t.Fatalf("unexpected event %s %+v", e.Type, e)
	case <-time.After(within):
	}
}

// sync waits for every task queued so far on the session loop
func (s *Session) sync() {
	s.loop.call(func() {})
}
