package gpu

import (
	"fmt"
	"runtime"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// DeviceType represents the type of compute device
type DeviceType int

const (
	DeviceTypeCPU DeviceType = iota
	DeviceTypeGPU
)

func (dt DeviceType) String() string {
	switch dt {
	case DeviceTypeCPU:
		return "CPU"
	case DeviceTypeGPU:
		return "GPU"
	default:
		return "Unknown"
	}
}

// Driver names accepted by Open.
const (
	DriverAuto   = "auto"
	DriverCPU    = "cpu"
	DriverWebGPU = "webgpu"
)

// Options selects and tunes the driver behind a Device.
type Options struct {
	// Driver is one of DriverAuto, DriverCPU, DriverWebGPU. Empty means auto.
	Driver string

	// Adapter, if set, is matched case-insensitively against adapter names
	// and vendor names; the first match wins.
	Adapter string

	// PowerPreference is "high", "low" or "default".
	PowerPreference string

	// Debug fills fresh cpu driver buffers with DebugFillPattern and widens
	// the WebGPU error scopes around resource creation and submission to
	// out-of-memory and internal errors.
	Debug bool

	// Workers caps the number of workgroups the cpu driver runs concurrently.
	// Zero means GOMAXPROCS.
	Workers int

	// Latency delays every cpu driver submission before it starts executing.
	Latency time.Duration
}

// Device is the handle to a compute backend. Every resource is created
// through it and it must be closed after all of them; Close releases any
// resource the caller forgot.
type Device struct {
	id       uuid.UUID
	drv      driver
	debug    bool
	fallback error
	seq      atomic.Uint64

	mu        sync.Mutex
	live      map[resource]struct{}
	liveBytes int64
	pending   map[*Fence]struct{}
	lost      error
	closed    bool
}

// resource is implemented by everything a Device owns.
type resource interface {
	fmt.Stringer
	destroy() error
	byteSize() int64
}

// resourceState is the bookkeeping shared by all resources. Guarded by dev.mu.
type resourceState struct {
	dev      *Device
	label    string
	released bool
	inFlight int
}

// Label returns the debug label of the resource
func (r *resourceState) Label() string { return r.label }

// Open creates a Device using the driver named in opts.
// With DriverAuto it tries WebGPU first and falls back to the CPU driver.
func Open(opts Options) (*Device, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Driver)) {
	case "", DriverAuto:
		drv, err := newWebGPUDriver(opts)
		if err == nil {
			return newDevice(drv, opts.Debug, nil), nil
		}
		return newDevice(newCPUDriver(opts), opts.Debug, err), nil

	case DriverCPU:
		return newDevice(newCPUDriver(opts), opts.Debug, nil), nil

	case DriverWebGPU:
		drv, err := newWebGPUDriver(opts)
		if err != nil {
			return nil, err
		}
		return newDevice(drv, opts.Debug, nil), nil

	default:
		return nil, errors.Wrapf(ErrDeviceCreation, "unknown driver %q (valid: %s, %s, %s)",
			opts.Driver, DriverAuto, DriverCPU, DriverWebGPU)
	}
}

// GetDefaultDevice returns the best device for the current system:
// a WebGPU adapter if one can be opened, otherwise the CPU driver.
func GetDefaultDevice() (*Device, error) {
	return Open(Options{Driver: DriverAuto})
}

// GetDevice returns a device of the specified type
func GetDevice(dtype DeviceType) (*Device, error) {
	switch dtype {
	case DeviceTypeCPU:
		return Open(Options{Driver: DriverCPU})
	case DeviceTypeGPU:
		return Open(Options{Driver: DriverWebGPU})
	default:
		return nil, errors.Wrapf(ErrDeviceCreation, "unknown device type: %v", dtype)
	}
}

// NewCPUDevice creates a device backed by the software driver.
func NewCPUDevice() *Device {
	return newDevice(newCPUDriver(Options{}), false, nil)
}

func newDevice(drv driver, debug bool, fallback error) *Device {
	return &Device{
		id:       uuid.New(),
		drv:      drv,
		debug:    debug,
		fallback: fallback,
		live:     make(map[resource]struct{}),
		pending:  make(map[*Fence]struct{}),
	}
}

// ID identifies the device in logs.
func (d *Device) ID() uuid.UUID { return d.id }

// Name returns a human-readable adapter name
func (d *Device) Name() string { return d.drv.adapterName() }

// Driver returns the name of the driver in use ("cpu", "webgpu/vulkan", ...)
func (d *Device) Driver() string { return d.drv.name() }

// Type returns the device type
func (d *Device) Type() DeviceType { return d.drv.deviceType() }

// Debug reports whether the device was opened in debug mode
func (d *Device) Debug() bool { return d.debug }

// ShaderFormats returns the set of kernel binary formats the device accepts.
func (d *Device) ShaderFormats() ShaderFormat { return d.drv.shaderFormats() }

// MaxBufferSize returns the largest buffer the device accepts, in bytes.
func (d *Device) MaxBufferSize() int64 { return d.drv.maxBufferSize() }

// FallbackReason returns why DriverAuto did not get a GPU, or nil.
func (d *Device) FallbackReason() error { return d.fallback }

// MemoryUsage returns the bytes held by live resources and how many there are.
func (d *Device) MemoryUsage() (bytes int64, count int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.liveBytes, len(d.live)
}

// Lost returns the ErrDeviceLost error if the backend failed, else nil.
func (d *Device) Lost() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lost
}

// Close waits for all submitted work, releases every resource still alive
// and shuts the driver down. The returned error aggregates release failures.
func (d *Device) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return errors.Wrap(ErrInvalidState, "device already closed")
	}
	d.closed = true
	fences := make([]*Fence, 0, len(d.pending))
	for f := range d.pending {
		fences = append(fences, f)
	}
	d.mu.Unlock()

	for _, f := range fences {
		<-f.signaled
	}

	d.mu.Lock()
	leftovers := make([]resource, 0, len(d.live))
	for r := range d.live {
		leftovers = append(leftovers, r)
	}
	d.live = make(map[resource]struct{})
	d.liveBytes = 0
	d.mu.Unlock()

	// Deterministic order keeps teardown logs readable.
	sort.Slice(leftovers, func(i, j int) bool { return leftovers[i].String() < leftovers[j].String() })

	var err error
	for _, r := range leftovers {
		markReleased(r)
		if rerr := r.destroy(); rerr != nil {
			err = multierr.Append(err, errors.Wrapf(rerr, "releasing %s", r))
		}
	}
	return multierr.Append(err, d.drv.close())
}

func markReleased(r resource) {
	switch v := r.(type) {
	case *StorageBuffer:
		v.released = true
	case *StagingBuffer:
		v.released = true
	case *KernelProgram:
		v.released = true
	}
}

// usable must be called with d.mu held.
func (d *Device) usable() error {
	if d.closed {
		return errors.Wrap(ErrInvalidState, "device closed")
	}
	return d.lost
}

func (d *Device) track(r resource) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.live[r] = struct{}{}
	d.liveBytes += r.byteSize()
}

func (d *Device) release(r resource, st *resourceState) error {
	d.mu.Lock()
	switch {
	case st.released:
		d.mu.Unlock()
		return errors.Wrapf(ErrInvalidState, "%s already released", r)
	case st.inFlight > 0:
		d.mu.Unlock()
		return errors.Wrapf(ErrInvalidState, "%s still referenced by %d submitted sequence(s)", r, st.inFlight)
	}
	st.released = true
	delete(d.live, r)
	d.liveBytes -= r.byteSize()
	d.mu.Unlock()

	if err := r.destroy(); err != nil {
		return errors.Wrapf(err, "releasing %s", r)
	}
	return nil
}

// markLost poisons the device. Must be called with d.mu held.
func (d *Device) markLost(cause error) error {
	if d.lost == nil {
		d.lost = errors.Wrapf(ErrDeviceLost, "%s: %v", d.drv.name(), cause)
	}
	return d.lost
}

func (d *Device) String() string {
	return fmt.Sprintf("%s [%s, %s/%s]", d.Name(), d.Driver(), runtime.GOOS, runtime.GOARCH)
}
