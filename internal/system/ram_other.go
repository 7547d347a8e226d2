//go:build !linux && !darwin && !windows

package system

import "github.com/pkg/errors"

func getRAMInfo() (*RAMInfo, error) {
	return nil, errors.New("RAM information not available on this platform")
}
