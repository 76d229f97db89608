package session

import (
	"errors"
	"fmt"

	"github.com/Mteixeira88/cow-shake/logger"
	"github.com/Mteixeira88/cow-shake/transport"
)

// Connect starts connecting to device id. The outcome is published as a
// ConnectionSuccess or ConnectionFailure event; failed attempts are retried
// up to MaxRetries times in total, RetryDelay apart.
func (s *Session) Connect(id string) error {
	if s.central == nil {
		return fmt.Errorf("%w: no central role", ErrTransportUnavailable)
	}
	if id == "" {
		return errors.New("connect: empty device id")
	}
	if !s.loop.post(func() { s.beginConnect(id) }) {
		return ErrClosed
	}
	return nil
}

// Disconnect drops the link. With an empty id the currently tracked device
// is used. Tracking is cleared before the transport is asked to disconnect,
// and transport errors are only logged.
func (s *Session) Disconnect(id string) error {
	if s.central == nil {
		return fmt.Errorf("%w: no central role", ErrTransportUnavailable)
	}
	if !s.loop.post(func() { s.disconnect(id) }) {
		return ErrClosed
	}
	return nil
}

func (s *Session) beginConnect(id string) {
	// A pending scan timeout is meaningless once the user picked a device.
	stopTimer(&s.scan.timer)
	stopTimer(&s.link.retry)

	stale := s.link.device
	s.link.gen++
	s.link.state = Connecting
	s.link.retries = 0
	s.link.target = id
	s.link.device = ""

	logger.Info(s.opts.name, "🔌 Connecting to %s", id)
	s.attemptConnect(id, stale, s.link.gen)
}

// attemptConnect clears stale links and issues one transport connect
func (s *Session) attemptConnect(id, stale string, gen uint64) {
	central := s.central
	go func() {
		if stale != "" && central.IsConnected(s.ctx, stale) {
			s.disconnectTransport(stale)
		}
		if id != stale && central.IsConnected(s.ctx, id) {
			s.disconnectTransport(id)
		}

		dev, err := central.Connect(s.ctx, id)
		s.loop.post(func() { s.connectResult(id, gen, dev, err) })
	}()
}

func (s *Session) connectResult(id string, gen uint64, dev transport.PeerDevice, err error) {
	if gen != s.link.gen || s.link.state != Connecting {
		logger.Debug(s.opts.name, "Ignoring stale connect result for %s (err=%v)", id, err)
		return
	}

	if err == nil {
		if dev.ID == "" {
			dev.ID = id
		}
		if dev.Name == "" {
			dev.Name = s.knownName(id)
		}
		s.link.state = Connected
		s.link.retries = 0
		s.link.device = dev.ID
		logger.Info(s.opts.name, "✅ Connected to %s (%s)", dev.ID, dev.Name)
		s.bus.PublishConnectionSuccess(dev)
		return
	}

	s.link.retries++
	logger.Warn(s.opts.name, "❌ Connect to %s failed (attempt %d/%d): %v", id, s.link.retries, s.opts.timings.MaxRetries, err)

	if s.link.retries < s.opts.timings.MaxRetries {
		s.link.retry = s.loop.after(s.opts.timings.RetryDelay, func() { s.retryConnect(id, gen) })
		return
	}

	s.link.state = Failed
	dev = transport.PeerDevice{ID: id, Name: s.knownName(id)}
	logger.Error(s.opts.name, "%v: giving up on %s after %d attempts", ErrConnectionFailure, id, s.link.retries)
	s.bus.PublishConnectionFailure(dev)
}

// retryConnect runs when the retry delay elapses. The failure may have
// crossed a late success in flight, so the transport is asked first.
func (s *Session) retryConnect(id string, gen uint64) {
	if gen != s.link.gen || s.link.state != Connecting {
		return
	}
	s.link.retry = nil

	central := s.central
	go func() {
		connected := central.IsConnected(s.ctx, id)
		s.loop.post(func() {
			if gen != s.link.gen || s.link.state != Connecting {
				return
			}
			if connected {
				s.link.state = Connected
				s.link.retries = 0
				s.link.device = id
				logger.Info(s.opts.name, "♻️  %s reports connected after a failed attempt, treating as recovered", id)
				return
			}
			s.attemptConnect(id, "", gen)
		})
	}()
}

func (s *Session) disconnect(id string) {
	target := id
	if target == "" {
		target = s.link.device
	}

	stopTimer(&s.link.retry)
	s.link = link{gen: s.link.gen + 1, state: Disconnected}

	if target == "" {
		return
	}
	logger.Info(s.opts.name, "🔌 Disconnecting from %s", target)
	go s.disconnectTransport(target)
}

func (s *Session) disconnectTransport(id string) {
	if err := s.central.Disconnect(id); err != nil {
		logger.Warn(s.opts.name, "Disconnect from %s failed: %v", id, err)
	}
}

// knownName looks id up in the current discovery results
func (s *Session) knownName(id string) string {
	for _, d := range s.scan.found {
		if d.ID == id {
			return d.Name
		}
	}
	return ""
}
