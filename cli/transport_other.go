//go:build !linux

package cli

import (
	"errors"

	"github.com/Mteixeira88/cow-shake/config"
)

func openBLE(c *config.Config) (radio, error) {
	return nil, errors.New("the ble transport is only built on linux; use --transport wire")
}
