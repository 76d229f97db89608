package wire

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/Mteixeira88/cow-shake/logger"
	"github.com/Mteixeira88/cow-shake/transport"
	"github.com/Mteixeira88/cow-shake/util"
)

// IsEnabled reports whether the radio is powered
func (d *Device) IsEnabled(ctx context.Context) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.powered
}

// Enable powers the radio on
func (d *Device) Enable(ctx context.Context) error {
	if !d.started() {
		return ErrNotStarted
	}
	d.SetPowered(true)
	return nil
}

// StateNotifications registers a power state handler
func (d *Device) StateNotifications(handler func(transport.State)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.states = append(d.states, handler)
}

// IsConnected reports whether a link to id is open
func (d *Device) IsConnected(ctx context.Context, id string) bool {
	return d.linkTo(id) != nil
}

// Connect establishes a link to a peer (we become Central). Connecting to
// an already linked peer returns the existing link.
func (d *Device) Connect(ctx context.Context, id string) (transport.PeerDevice, error) {
	if !d.started() {
		return transport.PeerDevice{}, ErrNotStarted
	}
	if !d.IsEnabled(ctx) {
		return transport.PeerDevice{}, ErrPoweredOff
	}
	if l := d.linkTo(id); l != nil {
		return l.peer, nil
	}

	// Simulate connection establishment delay (real BLE takes 30-100ms)
	select {
	case <-time.After(d.sim.ConnectionDelay()):
	case <-ctx.Done():
		return transport.PeerDevice{}, ctx.Err()
	}
	if !d.sim.ShouldConnectionSucceed() {
		logger.Debug(d.prefix(), "🎲 Simulated connection failure to %s", shortHash(id))
		return transport.PeerDevice{}, fmt.Errorf("connection to %s failed (simulated)", shortHash(id))
	}

	dir, err := util.SocketDir(d.dataDir)
	if err != nil {
		return transport.PeerDevice{}, err
	}
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "unix", socketPath(dir, id))
	if err != nil {
		return transport.PeerDevice{}, fmt.Errorf("failed to connect to %s: %w", shortHash(id), err)
	}

	deadline := time.Now().Add(HandshakeTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	conn.SetDeadline(deadline)
	if err := WritePacket(conn, &Packet{Kind: KindHello, Device: d.id, Name: d.name}); err != nil {
		conn.Close()
		return transport.PeerDevice{}, fmt.Errorf("failed to send handshake: %w", err)
	}
	ack, err := ReadPacket(conn)
	if err != nil || ack.Kind != KindHelloAck {
		conn.Close()
		return transport.PeerDevice{}, fmt.Errorf("handshake with %s failed: %v", shortHash(id), err)
	}
	conn.SetDeadline(time.Time{})

	l := &link{
		conn:   conn,
		peer:   transport.PeerDevice{ID: id, Name: ack.Name},
		role:   RoleCentral,
		closed: make(chan struct{}),
	}

	d.mu.Lock()
	if !d.powered || d.stop == nil {
		d.mu.Unlock()
		conn.Close()
		return transport.PeerDevice{}, ErrPoweredOff
	}
	// Check again inside the lock to prevent race condition
	if existing, exists := d.links[id]; exists {
		d.mu.Unlock()
		conn.Close()
		return existing.peer, nil
	}
	d.links[id] = l
	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()
		d.readPackets(l)
	}()

	logger.Info(d.prefix(), "🤝 Connected to %s (%s)", l.peer.Name, shortHash(id))
	return l.peer, nil
}

// Disconnect closes the link to id. Disconnecting an unknown peer is a no-op.
func (d *Device) Disconnect(id string) error {
	l := d.linkTo(id)
	if l == nil {
		return nil
	}
	d.dropLink(l)
	return nil
}

// Write sends one write request and waits for the peer's response. The
// value must fit a single ATT write.
func (d *Device) Write(ctx context.Context, id, serviceUUID, charUUID string, data []byte) (string, error) {
	l := d.linkTo(id)
	if l == nil {
		return "", fmt.Errorf("%w to %s", ErrNotConnected, shortHash(id))
	}
	if len(data) > MaxValueLen {
		return "", fmt.Errorf("write of %d bytes exceeds MTU payload of %d", len(data), MaxValueLen)
	}

	if !d.sim.ShouldPacketSucceed() {
		logger.Debug(d.prefix(), "🎲 Simulated packet loss writing to %s", shortHash(id))
		return "", fmt.Errorf("write to %s lost (simulated)", shortHash(id))
	}

	d.mu.Lock()
	d.nextID++
	reqID := d.nextID
	ch := make(chan *Packet, 1)
	d.pending[reqID] = ch
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		delete(d.pending, reqID)
		d.mu.Unlock()
	}()

	time.Sleep(d.sim.IntervalDelay())

	req := &Packet{Kind: KindWriteRequest, ID: reqID, Service: serviceUUID, Char: charUUID, Value: data}
	if err := l.send(req); err != nil {
		return "", fmt.Errorf("write to %s: %w", shortHash(id), err)
	}
	logger.Trace(d.prefix(), "📤 write-req to %s: id=%d len=%d", shortHash(id), reqID, len(data))

	timer := time.NewTimer(WriteTimeout)
	defer timer.Stop()
	select {
	case rsp := <-ch:
		return StatusText(rsp.Code), nil
	case <-l.closed:
		return "", fmt.Errorf("%w: link to %s closed during write", ErrNotConnected, shortHash(id))
	case <-timer.C:
		return "", fmt.Errorf("write to %s timed out", shortHash(id))
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (d *Device) deliverResponse(p *Packet) {
	d.mu.RLock()
	ch, ok := d.pending[p.ID]
	d.mu.RUnlock()
	if !ok {
		logger.Debug(d.prefix(), "Dropping response for unknown request %d", p.ID)
		return
	}
	select {
	case ch <- p:
	default:
	}
}
