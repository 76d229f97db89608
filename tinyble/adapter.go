//go:build linux

// Package tinyble drives a real BLE radio through tinygo.org/x/bluetooth.
// It implements transport.Central and transport.Peripheral on top of the
// default adapter (BlueZ over D-Bus on Linux).
package tinyble

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"tinygo.org/x/bluetooth"

	"github.com/Mteixeira88/cow-shake/logger"
	"github.com/Mteixeira88/cow-shake/transport"
)

const prefix = "BLE"

var ErrUnknownDevice = errors.New("tinyble: device not seen in a scan")

// charWriter is the part of bluetooth.DeviceCharacteristic used for sending.
// BlueZ only exposes WriteWithoutResponse on Linux.
type charWriter interface {
	UUID() bluetooth.UUID
	WriteWithoutResponse(p []byte) (int, error)
}

type peer struct {
	address bluetooth.Address
	name    string
	device  *bluetooth.Device
	char    charWriter
}

// Adapter wraps a tinygo bluetooth adapter
type Adapter struct {
	adapter *bluetooth.Adapter
	name    string

	mu       sync.Mutex
	enabled  bool
	states   []func(transport.State)
	onState  func(transport.State)
	peers    map[string]*peer // address string -> peer
	scanning bool
	scanGen  uint64
	scanStop *time.Timer

	onWrite func(transport.WriteRequest)
	service *transport.ServiceDescriptor
	adv     *bluetooth.Advertisement
}

// New wraps the system default adapter. name is the advertised local name.
func New(name string) *Adapter {
	return &Adapter{
		adapter: bluetooth.DefaultAdapter,
		name:    name,
		peers:   make(map[string]*peer),
	}
}

func parseUUID(s string) (bluetooth.UUID, error) {
	if len(s) == 4 {
		v, err := strconv.ParseUint(s, 16, 16)
		if err != nil {
			return bluetooth.UUID{}, fmt.Errorf("bad 16-bit uuid %q: %w", s, err)
		}
		return bluetooth.New16BitUUID(uint16(v)), nil
	}
	return bluetooth.ParseUUID(s)
}

// IsEnabled reports whether Enable has succeeded
func (a *Adapter) IsEnabled(ctx context.Context) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.enabled
}

// Enable powers up the adapter stack
func (a *Adapter) Enable(ctx context.Context) error {
	if err := a.adapter.Enable(); err != nil {
		return fmt.Errorf("enable adapter: %w", err)
	}
	a.setState(true)
	return nil
}

func (a *Adapter) setState(on bool) {
	a.mu.Lock()
	a.enabled = on
	handlers := append([]func(transport.State){}, a.states...)
	if a.onState != nil {
		handlers = append(handlers, a.onState)
	}
	a.mu.Unlock()

	state := transport.StateOff
	if on {
		state = transport.StateOn
	}
	for _, h := range handlers {
		h(state)
	}
}

// StateNotifications registers a power state handler
func (a *Adapter) StateNotifications(handler func(transport.State)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.states = append(a.states, handler)
}

// Scan runs a blocking adapter scan in the background, filtered on the
// service UUIDs, until timeout or StopScan
func (a *Adapter) Scan(serviceUUIDs []string, timeout time.Duration, onDevice func(transport.PeerDevice), onError func(error)) error {
	filters := make([]bluetooth.UUID, 0, len(serviceUUIDs))
	for _, s := range serviceUUIDs {
		u, err := parseUUID(s)
		if err != nil {
			return err
		}
		filters = append(filters, u)
	}

	a.mu.Lock()
	a.scanning = true
	a.mu.Unlock()

	go func() {
		err := a.adapter.Scan(func(_ *bluetooth.Adapter, result bluetooth.ScanResult) {
			if !advertises(result, filters) {
				return
			}
			id := result.Address.String()
			name := result.LocalName()

			a.mu.Lock()
			p, ok := a.peers[id]
			if !ok {
				p = &peer{}
				a.peers[id] = p
			}
			p.address = result.Address
			if name != "" {
				p.name = name
			}
			a.mu.Unlock()

			onDevice(transport.PeerDevice{ID: id, Name: name})
		})
		a.mu.Lock()
		a.scanning = false
		a.mu.Unlock()
		if err != nil && onError != nil {
			onError(err)
		}
	}()

	a.stopAfter(timeout, func() { a.StopScan() })
	logger.Debug(prefix, "🔍 Adapter scan started")
	return nil
}

func advertises(result bluetooth.ScanResult, filters []bluetooth.UUID) bool {
	if len(filters) == 0 {
		return true
	}
	for _, u := range filters {
		if result.HasServiceUUID(u) {
			return true
		}
	}
	return false
}

// stopAfter arms the timeout of the current scan. A newer scan or StopScan
// disarms it, so an old timeout never cuts a later scan short.
func (a *Adapter) stopAfter(timeout time.Duration, stop func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.scanStop != nil {
		a.scanStop.Stop()
		a.scanStop = nil
	}
	a.scanGen++
	if timeout <= 0 {
		return
	}
	gen := a.scanGen
	a.scanStop = time.AfterFunc(timeout, func() {
		a.mu.Lock()
		current := gen == a.scanGen
		if current {
			a.scanStop = nil
		}
		a.mu.Unlock()
		if current {
			stop()
		}
	})
}

func (a *Adapter) cancelScanTimeout() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.scanStop != nil {
		a.scanStop.Stop()
		a.scanStop = nil
	}
	a.scanGen++
}

// StopScan stops a running scan; it is a no-op otherwise
func (a *Adapter) StopScan() error {
	a.cancelScanTimeout()
	a.mu.Lock()
	scanning := a.scanning
	a.mu.Unlock()
	if !scanning {
		return nil
	}
	return a.adapter.StopScan()
}

// IsConnected reports whether we hold a link to id
func (a *Adapter) IsConnected(ctx context.Context, id string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.peers[id]
	return ok && p.device != nil
}

// Connect connects to a scanned device and discovers the cow-shake characteristic
func (a *Adapter) Connect(ctx context.Context, id string) (transport.PeerDevice, error) {
	a.mu.Lock()
	p, ok := a.peers[id]
	a.mu.Unlock()
	if !ok {
		return transport.PeerDevice{}, fmt.Errorf("%w: %s", ErrUnknownDevice, id)
	}

	device, err := a.adapter.Connect(p.address, bluetooth.ConnectionParams{})
	if err != nil {
		return transport.PeerDevice{}, fmt.Errorf("connect %s: %w", id, err)
	}

	char, err := discover(device)
	if err != nil {
		device.Disconnect()
		return transport.PeerDevice{}, err
	}

	a.mu.Lock()
	p.device = &device
	p.char = char
	name := p.name
	a.mu.Unlock()

	logger.Info(prefix, "🤝 Connected to %s (%s)", name, id)
	return transport.PeerDevice{ID: id, Name: name}, nil
}

func discover(device bluetooth.Device) (*bluetooth.DeviceCharacteristic, error) {
	svcUUID, _ := parseUUID(transport.ServiceUUID)
	charUUID, _ := parseUUID(transport.CharacteristicUUID)

	services, err := device.DiscoverServices([]bluetooth.UUID{svcUUID})
	if err != nil {
		return nil, fmt.Errorf("discover services: %w", err)
	}
	if len(services) == 0 {
		return nil, fmt.Errorf("service %s not found", transport.ServiceUUID)
	}
	chars, err := services[0].DiscoverCharacteristics([]bluetooth.UUID{charUUID})
	if err != nil {
		return nil, fmt.Errorf("discover characteristics: %w", err)
	}
	if len(chars) == 0 {
		return nil, fmt.Errorf("characteristic %s not found", transport.CharacteristicUUID)
	}
	return &chars[0], nil
}

// Disconnect drops the link to id
func (a *Adapter) Disconnect(id string) error {
	a.mu.Lock()
	p, ok := a.peers[id]
	var device *bluetooth.Device
	if ok {
		device = p.device
		p.device = nil
		p.char = nil
	}
	a.mu.Unlock()
	if device == nil {
		return nil
	}
	return device.Disconnect()
}

// Write writes data to the discovered characteristic. The service and
// characteristic arguments must name the ones found at connect time.
// BlueZ reports no ATT status for the write, so a write the stack accepted
// is reported as StatusOK.
func (a *Adapter) Write(ctx context.Context, id, serviceUUID, charUUID string, data []byte) (string, error) {
	a.mu.Lock()
	p, ok := a.peers[id]
	var char charWriter
	if ok {
		char = p.char
	}
	a.mu.Unlock()
	if char == nil {
		return "", fmt.Errorf("not connected to %s", id)
	}
	if !transport.MatchUUID(char.UUID().String(), charUUID) {
		return "", fmt.Errorf("characteristic %s not discovered on %s", charUUID, id)
	}

	if _, err := char.WriteWithoutResponse(data); err != nil {
		return "", fmt.Errorf("write to %s: %w", id, err)
	}
	return transport.StatusOK, nil
}
