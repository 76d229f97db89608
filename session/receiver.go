package session

import (
	"fmt"
	"time"

	"github.com/Mteixeira88/cow-shake/frame"
	"github.com/Mteixeira88/cow-shake/logger"
	"github.com/Mteixeira88/cow-shake/transport"
)

// HandleWriteRequest feeds one inbound characteristic write into the
// reassembly buffer. It is registered with the peripheral by StartServer and
// may be called from any goroutine.
func (s *Session) HandleWriteRequest(req transport.WriteRequest) {
	value := make([]byte, len(req.Value))
	copy(value, req.Value)
	s.loop.post(func() { s.receiveChunk(req.CharacteristicUUID, value) })
}

func (s *Session) receiveChunk(charUUID string, value []byte) {
	if !transport.MatchUUID(charUUID, s.opts.charUUID) {
		logger.Trace(s.opts.name, "Ignoring write to characteristic %s", charUUID)
		return
	}

	stopTimer(&s.inbound.timer)
	s.inbound.gen++
	s.inbound.buf = append(s.inbound.buf, value...)
	s.inbound.last = time.Now()
	logger.Trace(s.opts.name, "chunk of %d bytes, buffer now %d bytes", len(value), len(s.inbound.buf))

	if p, ok := frame.DecodeIfComplete(s.inbound.buf); ok {
		s.inbound.buf = nil
		logger.Debug(s.opts.name, "📥 Received %s message (%d bytes)", p.Kind, len(p.Text))
		if p.IsStructured() {
			if v, err := p.Proto(); err == nil {
				logger.TraceJSON(s.opts.name, "Received payload", v)
			}
		}
		s.bus.PublishReceivedRequest(p)
	}

	gen := s.inbound.gen
	s.inbound.timer = s.loop.after(s.opts.timings.ReceiveTimeout, func() { s.receiveTimeout(gen) })
}

// receiveTimeout drops a partial message that stopped arriving
func (s *Session) receiveTimeout(gen uint64) {
	if gen != s.inbound.gen {
		return
	}
	s.inbound.timer = nil

	if len(s.inbound.buf) > 0 {
		err := fmt.Errorf("%w: dropped %d bytes, nothing received for %s", ErrStalledReceive, len(s.inbound.buf), time.Since(s.inbound.last).Round(time.Millisecond))
		logger.Warn(s.opts.name, "Error receiving data: %v", err)
		s.diagnose(err)
	}
	s.inbound.buf = nil
}
