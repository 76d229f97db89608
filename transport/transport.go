// Package transport describes the BLE stack the messaging layer runs on.
//
// Adapters translate a concrete radio (the socket simulator in package wire,
// or real hardware in package tinyble) into the Central and Peripheral roles
// below. Calls may block; the session runs them off its dispatch loop.
package transport

import (
	"context"
	"strings"
	"time"
)

// Fixed GATT identifiers of the cow-shake service
const (
	ServiceUUID        = "23aa"
	CharacteristicUUID = "11ff"
	DescriptorUUID     = "9388"
	DescriptorValue    = "MilkTheCowToday"

	// StatusOK is the only write status treated as success
	StatusOK = "OK"
)

// PeerDevice is a remote device seen during a scan. ID is the identity;
// Name is only used to de-duplicate discoveries.
type PeerDevice struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// State is the adapter power state reported through notifications
type State string

const (
	StateOn      State = "on"
	StateOff     State = "off"
	StateUnknown State = "unknown"
)

// WriteRequest is an inbound characteristic write delivered to a peripheral
type WriteRequest struct {
	DeviceID           string
	CharacteristicUUID string
	Offset             int
	Value              []byte
}

// Central is the scanning/connecting role
type Central interface {
	IsEnabled(ctx context.Context) bool
	Enable(ctx context.Context) error
	StateNotifications(handler func(State))

	// Scan starts scanning and returns; onDevice fires for every
	// advertisement that carries one of serviceUUIDs. Adapters stop the
	// radio scan on their own once timeout elapses.
	Scan(serviceUUIDs []string, timeout time.Duration, onDevice func(PeerDevice), onError func(error)) error
	StopScan() error

	IsConnected(ctx context.Context, id string) bool
	Connect(ctx context.Context, id string) (PeerDevice, error)
	Disconnect(id string) error

	// Write performs one characteristic write. A non-nil error means the
	// write never reached the peer; otherwise status is whatever the peer's
	// GATT stack answered.
	Write(ctx context.Context, id, serviceUUID, charUUID string, data []byte) (status string, err error)
}

// Peripheral is the advertising/serving role
type Peripheral interface {
	OnWriteRequest(handler func(WriteRequest))
	OnStateChange(handler func(State))
	CreateService(desc ServiceDescriptor) error
	StartAdvertising(serviceUUID, charUUID string) error
	StopAdvertising() error
}

// MatchUUID reports whether reported refers to want. Some stacks hand back
// the 128-bit form of a 16-bit UUID, so this is a case-insensitive contains
// check rather than equality.
func MatchUUID(reported, want string) bool {
	if want == "" {
		return false
	}
	return strings.Contains(strings.ToLower(reported), strings.ToLower(want))
}

// LongUUID expands a 16-bit UUID into the Bluetooth base UUID form.
// Anything that is not four hex digits is returned lower-cased as is.
func LongUUID(short string) string {
	s := strings.ToLower(short)
	if len(s) != 4 {
		return s
	}
	for _, c := range s {
		if !strings.ContainsRune("0123456789abcdef", c) {
			return s
		}
	}
	return "0000" + s + "-0000-1000-8000-00805f9b34fb"
}
