package wire

import (
	"fmt"

	"github.com/Mteixeira88/cow-shake/logger"
	"github.com/Mteixeira88/cow-shake/transport"
)

// OnWriteRequest registers the handler for inbound characteristic writes
func (d *Device) OnWriteRequest(handler func(transport.WriteRequest)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onWrite = handler
}

// OnStateChange registers the peripheral-side power state handler
func (d *Device) OnStateChange(handler func(transport.State)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onState = handler
}

// CreateService installs the GATT service peers can write to
func (d *Device) CreateService(desc transport.ServiceDescriptor) error {
	if len(desc.Characteristics) == 0 {
		return fmt.Errorf("service %s has no characteristics", desc.UUID)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.service = &desc
	logger.Debug(d.prefix(), "📋 Service %s created with %d characteristic(s)", desc.UUID, len(desc.Characteristics))
	return nil
}

// StartAdvertising publishes our advert with the service UUID
func (d *Device) StartAdvertising(serviceUUID, charUUID string) error {
	if !d.started() {
		return ErrNotStarted
	}
	d.mu.Lock()
	if !d.powered {
		d.mu.Unlock()
		return ErrPoweredOff
	}
	d.advertising = true
	d.mu.Unlock()

	adv := &AdvertisingData{
		DeviceID:      d.id,
		DeviceName:    d.name,
		ServiceUUIDs:  []string{serviceUUID},
		IsConnectable: true,
	}
	if err := d.WriteAdvertisingData(adv); err != nil {
		d.mu.Lock()
		d.advertising = false
		d.mu.Unlock()
		return err
	}
	logger.Info(d.prefix(), "📢 Advertising %q with service %s", d.name, serviceUUID)
	return nil
}

// StopAdvertising withdraws the advert. Open links stay up.
func (d *Device) StopAdvertising() error {
	d.mu.Lock()
	d.advertising = false
	d.mu.Unlock()
	d.removeAdvert()
	return nil
}

// IsAdvertising reports whether the advert is on air
func (d *Device) IsAdvertising() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.advertising
}

// handleWriteRequest validates a write against the installed service,
// hands accepted values to the write handler and answers the central
func (d *Device) handleWriteRequest(l *link, p *Packet) {
	d.mu.RLock()
	svc := d.service
	handler := d.onWrite
	d.mu.RUnlock()

	code := ErrSuccess
	var char transport.CharacteristicDescriptor
	if svc == nil || !transport.MatchUUID(transport.LongUUID(svc.UUID), p.Service) {
		code = ErrAttributeNotFound
	} else if c, ok := svc.Characteristic(p.Char); !ok {
		code = ErrAttributeNotFound
	} else {
		char = c
	}
	switch {
	case code != ErrSuccess:
	case !char.Has(transport.PropertyWrite) && !char.Has(transport.PropertyWriteWithoutResponse):
		code = ErrWriteNotPermitted
	case len(p.Value) > MaxValueLen:
		code = ErrInvalidAttributeValueLength
	case d.sim.ShouldRejectWrite():
		logger.Debug(d.prefix(), "🎲 Simulated write rejection from %s", shortHash(l.peer.ID))
		code = ErrUnlikelyError
	}

	if code == ErrSuccess && handler != nil {
		handler(transport.WriteRequest{
			DeviceID:           l.peer.ID,
			CharacteristicUUID: transport.LongUUID(char.UUID),
			Value:              p.Value,
		})
	}

	rsp := &Packet{Kind: KindWriteResponse, ID: p.ID, Code: code}
	if err := l.send(rsp); err != nil {
		logger.Warn(d.prefix(), "❌ Failed to answer write from %s: %v", shortHash(l.peer.ID), err)
	}
}
