package wire

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mteixeira88/cow-shake/transport"
)

// tempDataDir keeps socket paths short enough for sun_path
func tempDataDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "cs")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

func startDevice(t *testing.T, dir, name string, sim *SimulationConfig) *Device {
	t.Helper()
	if sim == nil {
		sim = PerfectSimulationConfig()
	}
	d := NewDevice(dir, name, sim)
	require.NoError(t, d.Start())
	t.Cleanup(d.Stop)
	return d
}

type writeSink struct {
	mu   sync.Mutex
	reqs []transport.WriteRequest
}

func (s *writeSink) handle(req transport.WriteRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reqs = append(s.reqs, req)
}

func (s *writeSink) all() []transport.WriteRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]transport.WriteRequest(nil), s.reqs...)
}

func serve(t *testing.T, d *Device) *writeSink {
	t.Helper()
	sink := &writeSink{}
	d.OnWriteRequest(sink.handle)
	require.NoError(t, d.CreateService(transport.DefaultServiceDescriptor()))
	require.NoError(t, d.StartAdvertising(transport.ServiceUUID, transport.CharacteristicUUID))
	return sink
}

// TestSingleConnection verifies that a connect creates one link seen from both sides
func TestSingleConnection(t *testing.T) {
	dir := tempDataDir(t)
	a := startDevice(t, dir, "Daisy", nil)
	b := startDevice(t, dir, "Bella", nil)
	ctx := context.Background()

	peer, err := a.Connect(ctx, b.ID())
	require.NoError(t, err)
	assert.Equal(t, transport.PeerDevice{ID: b.ID(), Name: "Bella"}, peer)

	assert.True(t, a.IsConnected(ctx, b.ID()))
	require.Eventually(t, func() bool { return b.IsConnected(ctx, a.ID()) }, time.Second, 5*time.Millisecond)
	assert.Len(t, a.ConnectedPeers(), 1)
	assert.Len(t, b.ConnectedPeers(), 1)

	// connecting again reuses the link
	again, err := a.Connect(ctx, b.ID())
	require.NoError(t, err)
	assert.Equal(t, peer, again)
	assert.Len(t, b.ConnectedPeers(), 1)
}

func TestWriteDeliversToPeripheral(t *testing.T) {
	dir := tempDataDir(t)
	a := startDevice(t, dir, "Daisy", nil)
	b := startDevice(t, dir, "Bella", nil)
	sink := serve(t, b)
	ctx := context.Background()

	_, err := a.Connect(ctx, b.ID())
	require.NoError(t, err)

	status, err := a.Write(ctx, b.ID(), transport.ServiceUUID, transport.CharacteristicUUID, []byte("Hello from Daisy!"))
	require.NoError(t, err)
	assert.Equal(t, transport.StatusOK, status)

	reqs := sink.all()
	require.Len(t, reqs, 1)
	assert.Equal(t, a.ID(), reqs[0].DeviceID)
	assert.Equal(t, transport.LongUUID(transport.CharacteristicUUID), reqs[0].CharacteristicUUID)
	assert.True(t, transport.MatchUUID(reqs[0].CharacteristicUUID, transport.CharacteristicUUID))
	assert.Equal(t, "Hello from Daisy!", string(reqs[0].Value))
}

func TestWriteStatusCodes(t *testing.T) {
	dir := tempDataDir(t)
	a := startDevice(t, dir, "Daisy", nil)
	b := startDevice(t, dir, "Bella", nil)
	ctx := context.Background()

	_, err := a.Connect(ctx, b.ID())
	require.NoError(t, err)

	// no service yet
	status, err := a.Write(ctx, b.ID(), transport.ServiceUUID, transport.CharacteristicUUID, []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, "Attribute Not Found", status)

	sink := serve(t, b)
	status, err = a.Write(ctx, b.ID(), transport.ServiceUUID, "beef", []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, "Attribute Not Found", status)
	assert.Empty(t, sink.all())
}

func TestWriteEnforcesMTU(t *testing.T) {
	dir := tempDataDir(t)
	a := startDevice(t, dir, "Daisy", nil)
	b := startDevice(t, dir, "Bella", nil)
	serve(t, b)
	ctx := context.Background()

	_, err := a.Connect(ctx, b.ID())
	require.NoError(t, err)

	_, err = a.Write(ctx, b.ID(), transport.ServiceUUID, transport.CharacteristicUUID, make([]byte, MaxValueLen+1))
	assert.Error(t, err)

	status, err := a.Write(ctx, b.ID(), transport.ServiceUUID, transport.CharacteristicUUID, make([]byte, MaxValueLen))
	require.NoError(t, err)
	assert.Equal(t, transport.StatusOK, status)
}

func TestWriteWithoutLink(t *testing.T) {
	dir := tempDataDir(t)
	a := startDevice(t, dir, "Daisy", nil)

	_, err := a.Write(context.Background(), "nobody", transport.ServiceUUID, transport.CharacteristicUUID, []byte("x"))
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestDisconnectDropsBothSides(t *testing.T) {
	dir := tempDataDir(t)
	a := startDevice(t, dir, "Daisy", nil)
	b := startDevice(t, dir, "Bella", nil)
	ctx := context.Background()

	_, err := a.Connect(ctx, b.ID())
	require.NoError(t, err)
	require.Eventually(t, func() bool { return b.IsConnected(ctx, a.ID()) }, time.Second, 5*time.Millisecond)

	require.NoError(t, a.Disconnect(b.ID()))
	assert.False(t, a.IsConnected(ctx, b.ID()))
	require.Eventually(t, func() bool { return !b.IsConnected(ctx, a.ID()) }, time.Second, 5*time.Millisecond)

	// unknown peers are a no-op
	assert.NoError(t, a.Disconnect("nobody"))
}

func TestConnectToMissingPeer(t *testing.T) {
	dir := tempDataDir(t)
	a := startDevice(t, dir, "Daisy", nil)

	_, err := a.Connect(context.Background(), "nobody")
	assert.Error(t, err)
	assert.False(t, a.IsConnected(context.Background(), "nobody"))
}

func TestSimulatedConnectionFailure(t *testing.T) {
	dir := tempDataDir(t)
	sim := PerfectSimulationConfig()
	sim.ConnectionFailureRate = 1
	a := startDevice(t, dir, "Daisy", sim)
	b := startDevice(t, dir, "Bella", nil)

	_, err := a.Connect(context.Background(), b.ID())
	assert.Error(t, err)
	assert.Empty(t, b.ConnectedPeers())
}

func TestSimulatedWriteFailures(t *testing.T) {
	dir := tempDataDir(t)
	lossy := PerfectSimulationConfig()
	lossy.PacketLossRate = 1
	a := startDevice(t, dir, "Daisy", lossy)

	rejecting := PerfectSimulationConfig()
	rejecting.StatusFailureRate = 1
	b := startDevice(t, dir, "Bella", rejecting)
	sink := serve(t, b)
	ctx := context.Background()

	_, err := a.Connect(ctx, b.ID())
	require.NoError(t, err)
	_, err = a.Write(ctx, b.ID(), transport.ServiceUUID, transport.CharacteristicUUID, []byte("x"))
	assert.Error(t, err, "lost packet surfaces as a transport error")

	c := startDevice(t, dir, "Clara", nil)
	_, err = c.Connect(ctx, b.ID())
	require.NoError(t, err)
	status, err := c.Write(ctx, b.ID(), transport.ServiceUUID, transport.CharacteristicUUID, []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, "Unlikely Error", status)
	assert.Empty(t, sink.all())
}

func TestPowerOffDropsLinksAndNotifies(t *testing.T) {
	dir := tempDataDir(t)
	a := startDevice(t, dir, "Daisy", nil)
	b := startDevice(t, dir, "Bella", nil)
	ctx := context.Background()

	var states []transport.State
	var mu sync.Mutex
	a.StateNotifications(func(s transport.State) {
		mu.Lock()
		defer mu.Unlock()
		states = append(states, s)
	})

	_, err := a.Connect(ctx, b.ID())
	require.NoError(t, err)

	a.SetPowered(false)
	assert.False(t, a.IsEnabled(ctx))
	assert.Empty(t, a.ConnectedPeers())
	_, err = a.Connect(ctx, b.ID())
	assert.ErrorIs(t, err, ErrPoweredOff)

	require.NoError(t, a.Enable(ctx))
	assert.True(t, a.IsEnabled(ctx))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []transport.State{transport.StateOff, transport.StateOn}, states)
}

func TestStopIsIdempotent(t *testing.T) {
	dir := tempDataDir(t)
	a := NewDevice(dir, "Daisy", PerfectSimulationConfig())
	require.NoError(t, a.Start())
	a.Stop()
	a.Stop()

	_, err := a.Connect(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrNotStarted)
}
