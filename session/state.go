package session

import (
	"fmt"
	"time"

	"github.com/Mteixeira88/cow-shake/transport"
)

// LinkState is the connection manager's view of the link to one peer
type LinkState int

const (
	Disconnected LinkState = iota
	Connecting
	Connected
	Failed
)

func (s LinkState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// LinkStatus is a snapshot of the link returned by Session.Link
type LinkStatus struct {
	State   LinkState
	Retries int
	Target  string // device of the current or last connect attempt
	Device  string // device messages are sent to, empty when none
}

// link is owned by the dispatch loop
type link struct {
	state   LinkState
	retries int
	target  string
	device  string
	gen     uint64
	retry   *time.Timer
}

// inbound is the receive buffer, owned by the dispatch loop
type inbound struct {
	buf   []byte
	last  time.Time
	gen   uint64
	timer *time.Timer
}

// discovery is the scan result set, owned by the dispatch loop
type discovery struct {
	running bool
	found   []transport.PeerDevice
	gen     uint64
	timer   *time.Timer
}

func stopTimer(t **time.Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}
