package wire

import "time"

// ConnectionRole represents the role in a specific connection
type ConnectionRole string

const (
	RoleCentral    ConnectionRole = "central"    // We initiated connection
	RolePeripheral ConnectionRole = "peripheral" // They initiated connection
)

// BLE timing constants for realistic behavior
const (
	// Connection interval affects write round trips
	MinConnectionInterval = 0 * time.Millisecond
	MaxConnectionInterval = 8 * time.Millisecond

	// HandshakeTimeout bounds the hello exchange on a fresh link
	HandshakeTimeout = 2 * time.Second

	// WriteTimeout bounds a write request waiting for its response
	WriteTimeout = 2 * time.Second
)

// MTU limits - the simulator never negotiates above the BLE 4.0 default
const (
	DefaultMTU   = 23 // 20 bytes data + 3 byte ATT header
	ATTHeaderLen = 3
	MaxValueLen  = DefaultMTU - ATTHeaderLen
)
