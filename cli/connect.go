package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/Mteixeira88/cow-shake/events"
	"github.com/Mteixeira88/cow-shake/transport"
)

var errPeerNotFound = errors.New("peer not found")

// findPeer scans until a device whose name or id equals peer shows up
func findPeer(ctx context.Context, out io.Writer, ep *endpoint, ch <-chan events.Event, peer string) (transport.PeerDevice, error) {
	timedOut := make(chan struct{})
	if err := ep.Scan(func() { close(timedOut) }); err != nil {
		return transport.PeerDevice{}, err
	}
	defer ep.StopScan()

	fmt.Fprintf(out, "%s %s\n", infoFmt("Looking for"), nameFmt(peer))
	for {
		select {
		case <-ctx.Done():
			return transport.PeerDevice{}, ctx.Err()
		case <-timedOut:
			return transport.PeerDevice{}, fmt.Errorf("%w: %s", errPeerNotFound, peer)
		case e := <-ch:
			if e.Type != events.NewDevice || e.Device == nil {
				continue
			}
			if e.Device.Name == peer || e.Device.ID == peer {
				return *e.Device, nil
			}
		}
	}
}

// connectTo finds peer, connects and waits for the connection outcome
func connectTo(ctx context.Context, out io.Writer, ep *endpoint, ch <-chan events.Event, peer string) (transport.PeerDevice, error) {
	dev, err := findPeer(ctx, out, ep, ch, peer)
	if err != nil {
		return transport.PeerDevice{}, err
	}
	if err := ep.Connect(dev.ID); err != nil {
		return transport.PeerDevice{}, err
	}

	for {
		select {
		case <-ctx.Done():
			return transport.PeerDevice{}, ctx.Err()
		case e := <-ch:
			if e.Device == nil || e.Device.ID != dev.ID {
				continue
			}
			switch e.Type {
			case events.ConnectionSuccess:
				printEvent(out, e)
				return *e.Device, nil
			case events.ConnectionFailure:
				printEvent(out, e)
				return transport.PeerDevice{}, fmt.Errorf("could not connect to %s", deviceLabel(e))
			}
		}
	}
}
