package session

import (
	"fmt"

	"github.com/Mteixeira88/cow-shake/logger"
	"github.com/Mteixeira88/cow-shake/transport"
)

// Scan stops any running scan, forgets previous results and scans for the
// service. onTimeout is called if this scan is still the current one when
// the scan timeout elapses; the radio scan itself is left to the adapter's
// own timeout or to StopScan.
func (s *Session) Scan(onTimeout func()) error {
	if s.central == nil {
		return fmt.Errorf("%w: no central role", ErrTransportUnavailable)
	}
	if !s.loop.post(func() { s.startScan(onTimeout) }) {
		return ErrClosed
	}
	return nil
}

// StopScan halts the radio scan and cancels the pending timeout
func (s *Session) StopScan() error {
	if s.central == nil {
		return fmt.Errorf("%w: no central role", ErrTransportUnavailable)
	}
	if !s.loop.post(func() {
		s.scan.running = false
		stopTimer(&s.scan.timer)
		go s.stopRadioScan()
	}) {
		return ErrClosed
	}
	return nil
}

// Devices returns the peers accepted by the current scan
func (s *Session) Devices() []transport.PeerDevice {
	var out []transport.PeerDevice
	s.loop.call(func() {
		out = append(out, s.scan.found...)
	})
	return out
}

func (s *Session) startScan(onTimeout func()) {
	stopTimer(&s.scan.timer)
	s.scan.gen++
	s.scan.found = nil
	s.scan.running = true
	gen := s.scan.gen
	timeout := s.opts.timings.ScanTimeout

	s.scan.timer = s.loop.after(timeout, func() {
		if gen != s.scan.gen || s.scan.timer == nil {
			return
		}
		s.scan.timer = nil
		logger.Info(s.opts.name, "⏱️  Scan finished with %d device(s)", len(s.scan.found))
		if onTimeout != nil {
			s.loop.notify(onTimeout)
		}
	})

	central := s.central
	services := []string{s.opts.serviceUUID}
	go func() {
		s.stopRadioScan()
		err := central.Scan(services, timeout,
			func(d transport.PeerDevice) {
				s.loop.post(func() { s.discovered(gen, d) })
			},
			func(err error) {
				logger.Warn(s.opts.name, "Scan error: %v", err)
			})
		if err != nil {
			logger.Warn(s.opts.name, "Scan could not start: %v", err)
		}
	}()
	logger.Info(s.opts.name, "🔍 Scanning for service %s", s.opts.serviceUUID)
}

func (s *Session) discovered(gen uint64, d transport.PeerDevice) {
	if gen != s.scan.gen || !s.scan.running {
		return
	}
	if d.Name == "" {
		return
	}
	for _, known := range s.scan.found {
		if known.Name == d.Name {
			return
		}
	}

	s.scan.found = append(s.scan.found, d)
	logger.Info(s.opts.name, "📱 Found %s (%s)", d.Name, d.ID)
	s.bus.PublishNewDevice(d)
}

func (s *Session) stopRadioScan() {
	if err := s.central.StopScan(); err != nil {
		logger.Debug(s.opts.name, "stop scan: %v", err)
	}
}
