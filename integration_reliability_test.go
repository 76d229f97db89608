package main

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mteixeira88/cow-shake/events"
	"github.com/Mteixeira88/cow-shake/frame"
	"github.com/Mteixeira88/cow-shake/session"
	"github.com/Mteixeira88/cow-shake/transport"
	"github.com/Mteixeira88/cow-shake/wire"
)

// TestConnectionFailureGivesUp checks a radio that never connects ends in
// exactly one failure event after the retries are spent
func TestConnectionFailureGivesUp(t *testing.T) {
	dir := dataDir(t)
	sim := wire.PerfectSimulationConfig()
	sim.ConnectionFailureRate = 1
	daisy := newPeer(t, dir, "Daisy", sim)
	bella := newPeer(t, dir, "Bella", nil)
	bella.serve(t)

	require.NoError(t, daisy.session.Scan(nil))
	daisy.next(t, events.NewDevice)
	require.NoError(t, daisy.session.Connect(bella.radio.ID()))

	e := daisy.next(t, events.ConnectionFailure)
	assert.Equal(t, "Bella", e.Device.Name)

	link := daisy.session.Link()
	assert.Equal(t, session.Failed, link.State)
	assert.Equal(t, session.MaxRetries, link.Retries)
	assert.Empty(t, bella.radio.ConnectedPeers())
}

// TestRejectedWriteAbortsMessage checks a non-OK write status stops the send
func TestRejectedWriteAbortsMessage(t *testing.T) {
	dir := dataDir(t)
	daisy := newPeer(t, dir, "Daisy", nil)
	sim := wire.PerfectSimulationConfig()
	sim.StatusFailureRate = 1
	bella := newPeer(t, dir, "Bella", sim)
	bella.serve(t)
	daisy.dial(t, bella)

	err := daisy.session.Send(context.Background(), "this will not arrive in one piece", "")
	require.ErrorIs(t, err, session.ErrWriteFailure)
	assert.Contains(t, err.Error(), "chunk 1/")
	assert.Contains(t, err.Error(), "Unlikely Error")

	select {
	case <-daisy.alerts:
	case <-time.After(time.Second):
		t.Fatal("no alert for rejected write")
	}
	select {
	case e := <-bella.events:
		t.Fatalf("unexpected event %s", e.Type)
	case <-time.After(100 * time.Millisecond):
	}
}

// TestStalledMessageIsDropped writes half a message straight through the
// radio and checks the receiver discards it and recovers
func TestStalledMessageIsDropped(t *testing.T) {
	dir := dataDir(t)
	daisy := newPeer(t, dir, "Daisy", nil)
	bella := newPeer(t, dir, "Bella", nil)
	bella.serve(t)
	daisy.dial(t, bella)

	ctx := context.Background()
	chunks := frame.Encode("this message loses its tail on the way")
	for _, c := range chunks[:len(chunks)-1] {
		status, err := daisy.radio.Write(ctx, bella.radio.ID(), transport.ServiceUUID, transport.CharacteristicUUID, c)
		require.NoError(t, err)
		require.Equal(t, transport.StatusOK, status)
	}

	select {
	case err := <-bella.diags:
		assert.ErrorIs(t, err, session.ErrStalledReceive)
	case <-time.After(2 * time.Second):
		t.Fatal("stalled message was not reported")
	}

	require.NoError(t, daisy.session.Send(ctx, "fresh start", ""))
	assert.Equal(t, "fresh start", bella.next(t, events.ReceivedRequest).Payload.Text)
}

// TestPowerOffNotifies checks the off notification fires once per power loss
func TestPowerOffNotifies(t *testing.T) {
	dir := dataDir(t)
	daisy := newPeer(t, dir, "Daisy", nil)

	var offs int32
	require.NoError(t, daisy.session.Init(context.Background(), func() { atomic.AddInt32(&offs, 1) }))

	daisy.radio.SetPowered(false)
	require.Eventually(t, func() bool { return atomic.LoadInt32(&offs) == 1 }, time.Second, 5*time.Millisecond)
	daisy.radio.SetPowered(false)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&offs))
}

// TestLossyRadioEventuallyDelivers retries whole messages over a radio that
// drops writes and checks a clean copy always arrives
func TestLossyRadioEventuallyDelivers(t *testing.T) {
	dir := dataDir(t)
	sim := wire.PerfectSimulationConfig()
	sim.PacketLossRate = 0.2
	daisy := newPeer(t, dir, "Daisy", sim)
	bella := newPeer(t, dir, "Bella", nil)
	bella.serve(t)
	daisy.dial(t, bella)

	msg := "persistence is a virtue, said the cow to the gate"
	ctx := context.Background()
	var sent bool
	for attempt := 0; attempt < 50 && !sent; attempt++ {
		sent = daisy.session.Send(ctx, msg, "") == nil
		if !sent {
			// let the partial message time out on the receiver
			time.Sleep(fastTimings.ReceiveTimeout + 100*time.Millisecond)
		}
	}
	require.True(t, sent, "no attempt got through")

	e := bella.next(t, events.ReceivedRequest)
	assert.Equal(t, msg, e.Payload.Text)
}
