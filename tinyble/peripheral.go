//go:build linux

package tinyble

import (
	"fmt"

	"tinygo.org/x/bluetooth"

	"github.com/Mteixeira88/cow-shake/logger"
	"github.com/Mteixeira88/cow-shake/transport"
)

// OnWriteRequest registers the handler for inbound characteristic writes
func (a *Adapter) OnWriteRequest(handler func(transport.WriteRequest)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onWrite = handler
}

// OnStateChange registers the peripheral-side power state handler
func (a *Adapter) OnStateChange(handler func(transport.State)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onState = handler
}

func flags(c transport.CharacteristicDescriptor) bluetooth.CharacteristicPermissions {
	var f bluetooth.CharacteristicPermissions
	if c.Has(transport.PropertyRead) {
		f |= bluetooth.CharacteristicReadPermission
	}
	if c.Has(transport.PropertyWrite) {
		f |= bluetooth.CharacteristicWritePermission
	}
	if c.Has(transport.PropertyWriteWithoutResponse) {
		f |= bluetooth.CharacteristicWriteWithoutResponsePermission
	}
	if c.Has(transport.PropertyNotify) {
		f |= bluetooth.CharacteristicNotifyPermission
	}
	return f
}

// CreateService registers the GATT service with the adapter
func (a *Adapter) CreateService(desc transport.ServiceDescriptor) error {
	svcUUID, err := parseUUID(desc.UUID)
	if err != nil {
		return err
	}

	svc := &bluetooth.Service{UUID: svcUUID}
	for _, c := range desc.Characteristics {
		charUUID, err := parseUUID(c.UUID)
		if err != nil {
			return err
		}
		long := transport.LongUUID(c.UUID)
		svc.Characteristics = append(svc.Characteristics, bluetooth.CharacteristicConfig{
			Handle: &bluetooth.Characteristic{},
			UUID:   charUUID,
			Flags:  flags(c),
			WriteEvent: func(client bluetooth.Connection, offset int, value []byte) {
				a.mu.Lock()
				handler := a.onWrite
				a.mu.Unlock()
				if handler == nil {
					return
				}
				handler(transport.WriteRequest{
					DeviceID:           fmt.Sprint(client),
					CharacteristicUUID: long,
					Offset:             offset,
					Value:              append([]byte(nil), value...),
				})
			},
		})
	}

	if err := a.adapter.AddService(svc); err != nil {
		return fmt.Errorf("add service %s: %w", desc.UUID, err)
	}
	a.mu.Lock()
	a.service = &desc
	a.mu.Unlock()
	logger.Debug(prefix, "📋 Service %s registered", desc.UUID)
	return nil
}

// StartAdvertising configures and starts the default advertisement
func (a *Adapter) StartAdvertising(serviceUUID, charUUID string) error {
	svcUUID, err := parseUUID(serviceUUID)
	if err != nil {
		return err
	}

	adv := a.adapter.DefaultAdvertisement()
	if err := adv.Configure(bluetooth.AdvertisementOptions{
		LocalName:    a.name,
		ServiceUUIDs: []bluetooth.UUID{svcUUID},
	}); err != nil {
		return fmt.Errorf("configure advertisement: %w", err)
	}
	if err := adv.Start(); err != nil {
		return fmt.Errorf("start advertisement: %w", err)
	}

	a.mu.Lock()
	a.adv = adv
	a.mu.Unlock()
	logger.Info(prefix, "📢 Advertising %q with service %s", a.name, serviceUUID)
	return nil
}

// StopAdvertising stops the advertisement if one is running
func (a *Adapter) StopAdvertising() error {
	a.mu.Lock()
	adv := a.adv
	a.adv = nil
	a.mu.Unlock()
	if adv == nil {
		return nil
	}
	return adv.Stop()
}
