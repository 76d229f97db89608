package session

import (
	"context"
	"fmt"

	"github.com/Mteixeira88/cow-shake/frame"
	"github.com/Mteixeira88/cow-shake/logger"
	"github.com/Mteixeira88/cow-shake/transport"
)

// Send frames payload and writes it chunk by chunk to the linked device.
//
// With no tracked device, deviceID becomes the link target for this and
// later sends; with neither, Send fails with ErrNoConnection and nothing is
// written. Each chunk is written only after the previous one succeeded and
// the first failed chunk aborts the message. Failures are also passed to the
// alert hook.
func (s *Session) Send(ctx context.Context, payload interface{}, deviceID string) error {
	if s.central == nil {
		return fmt.Errorf("%w: no central role", ErrTransportUnavailable)
	}

	var target string
	if !s.loop.call(func() {
		if s.link.device == "" && deviceID != "" {
			s.link.device = deviceID
		}
		target = s.link.device
	}) {
		return ErrClosed
	}
	if target == "" {
		logger.Warn(s.opts.name, "No connected device")
		s.alert(ErrNoConnection)
		return ErrNoConnection
	}

	text, err := frame.Marshal(payload)
	if err != nil {
		return fmt.Errorf("send: %w", err)
	}

	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	chunks := frame.Encode(text)
	logger.Debug(s.opts.name, "📤 Sending %d bytes to %s in %d chunks", len(text), target, len(chunks))

	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("send aborted after %d/%d chunks: %w", i, len(chunks), err)
		}

		status, err := s.central.Write(ctx, target, s.opts.serviceUUID, s.opts.charUUID, chunk)
		if err != nil {
			werr := fmt.Errorf("%w: chunk %d/%d to %s: %v", ErrWriteFailure, i+1, len(chunks), target, err)
			logger.Warn(s.opts.name, "Writing error: %v", werr)
			s.alert(werr)
			return werr
		}
		if status != transport.StatusOK {
			werr := fmt.Errorf("%w: chunk %d/%d to %s: status %q", ErrWriteFailure, i+1, len(chunks), target, status)
			logger.Warn(s.opts.name, "Error sending data: %v", werr)
			s.alert(werr)
			return werr
		}
		logger.Trace(s.opts.name, "chunk %d/%d (%d bytes) -> %s", i+1, len(chunks), len(chunk), target)
	}

	return nil
}
