package session

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mteixeira88/cow-shake/events"
	"github.com/Mteixeira88/cow-shake/frame"
	"github.com/Mteixeira88/cow-shake/transport"
)

func feed(s *Session, char string, chunks ...[]byte) {
	for _, c := range chunks {
		s.HandleWriteRequest(transport.WriteRequest{DeviceID: "central-1", CharacteristicUUID: char, Value: c})
	}
}

func TestReceiveThreeChunkMessage(t *testing.T) {
	s, ch := newTestSession(t, nil, &fakePeripheral{})

	msg := "hello world this is a long test message!"
	feed(s, transport.CharacteristicUUID, frame.Encode(msg)...)

	e := waitEvent(t, ch, events.ReceivedRequest)
	assert.Equal(t, frame.Text, e.Payload.Kind)
	assert.Equal(t, msg, e.Payload.Text)
	noEvent(t, ch, 50*time.Millisecond)
}

func TestReceiveStructuredMessageOnLongUUID(t *testing.T) {
	s, ch := newTestSession(t, nil, &fakePeripheral{})

	feed(s, "000011FF-0000-1000-8000-00805F9B34FB", frame.Encode(`{"cmd":"milk","cows":["Daisy","Bella"]}`)...)

	e := waitEvent(t, ch, events.ReceivedRequest)
	require.Equal(t, frame.Structured, e.Payload.Kind)
	assert.Equal(t, map[string]interface{}{
		"cmd":  "milk",
		"cows": []interface{}{"Daisy", "Bella"},
	}, e.Payload.Value)
}

func TestReceiveIgnoresOtherCharacteristics(t *testing.T) {
	s, ch := newTestSession(t, nil, &fakePeripheral{})

	feed(s, "2a37", frame.Encode("heart rate")...)
	noEvent(t, ch, 50*time.Millisecond)

	s.sync()
	s.loop.call(func() {
		assert.Empty(t, s.inbound.buf)
		assert.Nil(t, s.inbound.timer)
	})
}

func TestReceiveMessagesBackToBack(t *testing.T) {
	s, ch := newTestSession(t, nil, &fakePeripheral{})

	feed(s, transport.CharacteristicUUID, frame.Encode("first message, rather long")...)
	feed(s, transport.CharacteristicUUID, frame.Encode("second")...)

	assert.Equal(t, "first message, rather long", waitEvent(t, ch, events.ReceivedRequest).Payload.Text)
	assert.Equal(t, "second", waitEvent(t, ch, events.ReceivedRequest).Payload.Text)
}

func TestStalledReceiveDropsPartialMessage(t *testing.T) {
	var mu sync.Mutex
	var diags []error
	s, ch := newTestSession(t, nil, &fakePeripheral{}, WithDiagnostics(func(err error) {
		mu.Lock()
		defer mu.Unlock()
		diags = append(diags, err)
	}))

	chunks := frame.Encode("this message never finishes arriving")
	feed(s, transport.CharacteristicUUID, chunks[0])

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(diags) == 1
	}, time.Second, 10*time.Millisecond)
	mu.Lock()
	assert.True(t, errors.Is(diags[0], ErrStalledReceive))
	mu.Unlock()

	// the rest of the stalled message must not be glued onto the dropped part
	feed(s, transport.CharacteristicUUID, chunks[1:]...)
	e := waitEvent(t, ch, events.ReceivedRequest)
	assert.Equal(t, "this message never finishes arriving"[20:], e.Payload.Text)
}

func TestInactivityTimerRestartsOnEveryChunk(t *testing.T) {
	s, ch := newTestSession(t, nil, &fakePeripheral{})

	chunks := frame.Encode("slow but steady chunks keep the buffer alive")
	require.Len(t, chunks, 3)
	for _, c := range chunks {
		feed(s, transport.CharacteristicUUID, c)
		time.Sleep(testTimings.ReceiveTimeout / 3)
	}

	e := waitEvent(t, ch, events.ReceivedRequest)
	assert.Equal(t, "slow but steady chunks keep the buffer alive", e.Payload.Text)
}

func TestCompletedMessageLeavesNoDiagnostic(t *testing.T) {
	var diags int32
	s, ch := newTestSession(t, nil, &fakePeripheral{}, WithDiagnostics(func(error) { atomic.AddInt32(&diags, 1) }))

	feed(s, transport.CharacteristicUUID, frame.Encode("done")...)
	waitEvent(t, ch, events.ReceivedRequest)

	time.Sleep(testTimings.ReceiveTimeout * 2)
	s.sync()
	assert.Zero(t, atomic.LoadInt32(&diags))
}

func TestDiagnosticsHookCanUseSession(t *testing.T) {
	states := make(chan LinkState, 1)
	var s *Session
	s, _ = newTestSession(t, nil, &fakePeripheral{}, WithDiagnostics(func(error) {
		states <- s.Link().State
	}))

	feed(s, transport.CharacteristicUUID, frame.Encode("cut short by a stall")[0])

	select {
	case st := <-states:
		assert.Equal(t, Disconnected, st)
	case <-time.After(2 * time.Second):
		t.Fatal("diagnostics hook never returned from Link")
	}
}
