//go:build linux

package cli

import (
	"github.com/Mteixeira88/cow-shake/config"
	"github.com/Mteixeira88/cow-shake/tinyble"
)

type bleRadio struct {
	*tinyble.Adapter
}

func (r bleRadio) Close() {
	r.StopScan()
	r.StopAdvertising()
}

func openBLE(c *config.Config) (radio, error) {
	return bleRadio{tinyble.New(c.DeviceName)}, nil
}
