package gpu

import "github.com/pkg/errors"

var (
	// ErrDeviceCreation is returned when no suitable driver or adapter could be opened.
	ErrDeviceCreation = errors.New("gpu: device creation failed")

	// ErrCapabilityMismatch is returned when the device supports none of the
	// shader formats a kernel is available in.
	ErrCapabilityMismatch = errors.New("gpu: capability mismatch")

	// ErrResourceCreation is returned when the device rejects a buffer or program.
	ErrResourceCreation = errors.New("gpu: resource creation failed")

	// ErrBindingMismatch is returned when the buffers given to a dispatch do not
	// match the binding contract the program was created with.
	ErrBindingMismatch = errors.New("gpu: binding mismatch")

	// ErrInvalidState is returned on map/unmap/wait/release/submit misuse.
	ErrInvalidState = errors.New("gpu: invalid state")

	// ErrInvalidArgument is returned for out of range copy sizes and wrong
	// transfer directions.
	ErrInvalidArgument = errors.New("gpu: invalid argument")

	// ErrDeviceLost is returned once the backend failed while executing work.
	// The device and everything it owns are unusable afterwards.
	ErrDeviceLost = errors.New("gpu: device lost")
)
