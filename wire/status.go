package wire

import (
	"fmt"

	"github.com/Mteixeira88/cow-shake/transport"
)

// ATT error codes a peripheral may answer a write with
// (Bluetooth Core Spec v5.3 Vol 3, Part F, Section 3.4.1.1)
const (
	ErrSuccess                     uint8 = 0x00 // Not an actual error, used internally
	ErrInvalidHandle               uint8 = 0x01
	ErrWriteNotPermitted           uint8 = 0x03
	ErrRequestNotSupported         uint8 = 0x06
	ErrAttributeNotFound           uint8 = 0x0A
	ErrInvalidAttributeValueLength uint8 = 0x0D
	ErrUnlikelyError               uint8 = 0x0E
	ErrInsufficientResources       uint8 = 0x11
	ErrWriteRequestRejected        uint8 = 0xFC
)

// ErrorNames maps error codes to the status strings reported by Write
var ErrorNames = map[uint8]string{
	ErrSuccess:                     transport.StatusOK,
	ErrInvalidHandle:               "Invalid Handle",
	ErrWriteNotPermitted:           "Write Not Permitted",
	ErrRequestNotSupported:         "Request Not Supported",
	ErrAttributeNotFound:           "Attribute Not Found",
	ErrInvalidAttributeValueLength: "Invalid Attribute Value Length",
	ErrUnlikelyError:               "Unlikely Error",
	ErrInsufficientResources:       "Insufficient Resources",
	ErrWriteRequestRejected:        "Write Request Rejected",
}

// StatusText returns the write status string for an ATT error code
func StatusText(code uint8) string {
	if name, ok := ErrorNames[code]; ok {
		return name
	}
	if code >= 0x80 && code <= 0x9F {
		return fmt.Sprintf("Application Error (0x%02X)", code)
	}
	return fmt.Sprintf("Unknown Error (0x%02X)", code)
}
