package wire

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Mteixeira88/cow-shake/logger"
	"github.com/Mteixeira88/cow-shake/transport"
	"github.com/Mteixeira88/cow-shake/util"
)

// AdvertisingData is what a device broadcasts while advertising
type AdvertisingData struct {
	DeviceID      string   `json:"device_id"`
	DeviceName    string   `json:"device_name"`
	ServiceUUIDs  []string `json:"service_uuids"`
	IsConnectable bool     `json:"is_connectable"`
}

// Advertises reports whether the advert carries one of the given services
func (a *AdvertisingData) Advertises(serviceUUIDs []string) bool {
	if len(serviceUUIDs) == 0 {
		return true
	}
	for _, have := range a.ServiceUUIDs {
		for _, want := range serviceUUIDs {
			if transport.MatchUUID(have, want) {
				return true
			}
		}
	}
	return false
}

func (d *Device) advertPath() (string, error) {
	dir, err := util.AdvertDir(d.dataDir)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, d.id+".json"), nil
}

// WriteAdvertisingData writes advertising data to the adverts directory
// Real BLE: this sets what we broadcast in advertising packets
func (d *Device) WriteAdvertisingData(data *AdvertisingData) error {
	path, err := d.advertPath()
	if err != nil {
		return err
	}

	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal advertising data: %w", err)
	}

	// write then rename so scanners never see a partial file
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, jsonData, 0644); err != nil {
		return fmt.Errorf("failed to write advert: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to publish advert: %w", err)
	}
	return nil
}

func (d *Device) removeAdvert() {
	if path, err := d.advertPath(); err == nil {
		os.Remove(path)
	}
}

// ReadAdvertisingData reads every advert currently on air except our own
// Real BLE: this simulates discovering advertising packets "over the air"
func (d *Device) ReadAdvertisingData() ([]*AdvertisingData, error) {
	dir, err := util.AdvertDir(d.dataDir)
	if err != nil {
		return nil, err
	}
	matches, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, err
	}

	var out []*AdvertisingData
	for _, path := range matches {
		id := strings.TrimSuffix(filepath.Base(path), ".json")
		if id == d.id {
			continue
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			continue // withdrawn between glob and read
		}
		var adv AdvertisingData
		if err := json.Unmarshal(raw, &adv); err != nil {
			logger.Debug(d.prefix(), "Ignoring malformed advert %s: %v", filepath.Base(path), err)
			continue
		}
		if adv.DeviceID == "" {
			adv.DeviceID = id
		}
		out = append(out, &adv)
	}
	return out, nil
}

// Scan polls the adverts directory until timeout or StopScan. Each device
// is reported once per scan.
func (d *Device) Scan(serviceUUIDs []string, timeout time.Duration, onDevice func(transport.PeerDevice), onError func(error)) error {
	if !d.started() {
		return ErrNotStarted
	}
	if !d.IsEnabled(context.Background()) {
		return ErrPoweredOff
	}

	stop := make(chan struct{})
	d.scanMu.Lock()
	if d.scanStop != nil {
		close(d.scanStop)
	}
	d.scanStop = stop
	d.scanMu.Unlock()
	d.reportMu.Lock()
	d.reportMu.Unlock()

	wanted := append([]string(nil), serviceUUIDs...)
	go d.scanLoop(stop, wanted, timeout, onDevice, onError)
	return nil
}

func (d *Device) scanLoop(stop chan struct{}, serviceUUIDs []string, timeout time.Duration, onDevice func(transport.PeerDevice), onError func(error)) {
	seen := make(map[string]bool)
	ticker := time.NewTicker(d.sim.AdvertisingInterval())
	defer ticker.Stop()
	var deadline <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		deadline = t.C
	}

	stopped := func() bool {
		select {
		case <-stop:
			return true
		default:
			return false
		}
	}

	// select picks randomly among ready cases, so stop is checked again
	// before anything is reported
	poll := func() {
		if stopped() {
			return
		}
		adverts, err := d.ReadAdvertisingData()
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		for _, adv := range adverts {
			if seen[adv.DeviceID] || !adv.IsConnectable || !adv.Advertises(serviceUUIDs) {
				continue
			}
			seen[adv.DeviceID] = true

			// Simulate discovery delay (real BLE advertising interval jitter)
			select {
			case <-time.After(d.sim.DiscoveryDelay()):
			case <-stop:
				return
			}
			d.reportMu.Lock()
			if stopped() {
				d.reportMu.Unlock()
				return
			}
			logger.Debug(d.prefix(), "📡 Discovered %s (%s)", adv.DeviceName, shortHash(adv.DeviceID))
			onDevice(transport.PeerDevice{ID: adv.DeviceID, Name: adv.DeviceName})
			d.reportMu.Unlock()
		}
	}

	poll()
	for {
		select {
		case <-stop:
			return
		case <-deadline:
			d.scanMu.Lock()
			if d.scanStop == stop {
				d.scanStop = nil
			}
			d.scanMu.Unlock()
			return
		case <-ticker.C:
			poll()
		}
	}
}

// StopScan stops the running scan, if any. No device is reported once it
// returns, so onDevice must not call StopScan itself.
func (d *Device) StopScan() error {
	d.stopScan()
	return nil
}

func (d *Device) stopScan() {
	d.scanMu.Lock()
	if d.scanStop != nil {
		close(d.scanStop)
		d.scanStop = nil
	}
	d.scanMu.Unlock()

	// wait out a report already in flight
	d.reportMu.Lock()
	d.reportMu.Unlock()
}
