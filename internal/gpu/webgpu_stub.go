//go:build !cgo || js
// +build !cgo js

package gpu

import "github.com/pkg/errors"

// newWebGPUDriver stub for builds without cgo
func newWebGPUDriver(Options) (driver, error) {
	return nil, errors.Wrap(ErrDeviceCreation, "webgpu support requires cgo (build with CGO_ENABLED=1)")
}
