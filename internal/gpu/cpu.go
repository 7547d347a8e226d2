package gpu

import (
	"fmt"
	"runtime"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/MVittiS/Sdl3ComputeSample/internal/system"
)

// cpuMaxBufferSize mirrors the usual WebGPU maxBufferSize default. Hosts
// with little RAM get a lower limit.
const cpuMaxBufferSize = 256 << 20

// DebugFillPattern is the bit pattern, a quiet NaN, that fresh cpu driver
// buffers hold when the device is opened in debug mode. Reads of memory
// nothing wrote show up as NaN instead of zero.
const DebugFillPattern uint32 = 0x7fc0dead

// cpuDriver runs submissions on a goroutine and dispatches workgroups
// concurrently on the host.
type cpuDriver struct {
	label   string
	workers int
	latency time.Duration
	limit   int64
	debug   bool
}

func newCPUDriver(opts Options) *cpuDriver {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &cpuDriver{
		label:   fmt.Sprintf("CPU (%s, %d workers)", runtime.GOARCH, workers),
		workers: workers,
		latency: opts.Latency,
		limit:   system.BufferLimit(cpuMaxBufferSize),
		debug:   opts.Debug,
	}
}

func (d *cpuDriver) name() string                { return DriverCPU }
func (d *cpuDriver) adapterName() string         { return d.label }
func (d *cpuDriver) deviceType() DeviceType      { return DeviceTypeCPU }
func (d *cpuDriver) shaderFormats() ShaderFormat { return ShaderFormatHost }
func (d *cpuDriver) maxBufferSize() int64        { return d.limit }
func (d *cpuDriver) close() error                { return nil }

// cpuBuffer implements both storage and staging buffers for the cpu driver.
type cpuBuffer struct {
	data []byte
}

func (b *cpuBuffer) mapRange() ([]byte, error) { return b.data, nil }
func (b *cpuBuffer) unmap() error              { return nil }
func (b *cpuBuffer) release() error {
	b.data = nil
	return nil
}

func (d *cpuDriver) alloc(size int64) *cpuBuffer {
	b := &cpuBuffer{data: make([]byte, size)}
	if d.debug {
		words := uint32s(b.data)
		for i := range words {
			words[i] = DebugFillPattern
		}
	}
	return b
}

func (d *cpuDriver) newStorage(_ string, size int64, _ AccessIntent) (driverBuffer, error) {
	return d.alloc(size), nil
}

func (d *cpuDriver) newStaging(_ string, size int64, _ TransferDirection) (driverStaging, error) {
	return d.alloc(size), nil
}

type cpuProgram struct {
	name   string
	entry  string
	kernel HostKernel
	shape  WorkgroupShape
}

func (p *cpuProgram) release() error { return nil }

func (d *cpuDriver) newProgram(desc *ProgramDescriptor) (driverProgram, error) {
	if desc.Format != ShaderFormatHost {
		return nil, fmt.Errorf("cpu driver only runs %s kernels, got %s", ShaderFormatHost, desc.Format)
	}
	name, k, err := lookupHostKernel(desc.Code)
	if err != nil {
		return nil, err
	}
	return &cpuProgram{name: name, entry: desc.Entry, kernel: k, shape: desc.Workgroup}, nil
}

type cpuFence struct {
	ch chan struct{}
	e  error
}

func (f *cpuFence) done() <-chan struct{} { return f.ch }
func (f *cpuFence) err() error            { return f.e }

func (d *cpuDriver) submit(ops []op) (driverFence, error) {
	ops = append([]op(nil), ops...)
	f := &cpuFence{ch: make(chan struct{})}
	go func() {
		defer close(f.ch)
		if d.latency > 0 {
			time.Sleep(d.latency)
		}
		f.e = d.execute(ops)
	}()
	return f, nil
}

// execute runs ops in order. Phase barriers fall out of running each op to
// completion before the next one starts.
func (d *cpuDriver) execute(ops []op) error {
	for i := range ops {
		o := &ops[i]
		switch o.kind {
		case opCopyIn:
			src := o.staging.impl.(*cpuBuffer).data
			dst := o.storage.impl.(*cpuBuffer).data
			copy(dst[:o.size], src[:o.size])
		case opDispatch:
			if err := d.dispatch(o); err != nil {
				return err
			}
		case opCopyOut:
			src := o.storage.impl.(*cpuBuffer).data
			dst := o.staging.impl.(*cpuBuffer).data
			copy(dst[:o.size], src[:o.size])
		}
	}
	return nil
}

func (d *cpuDriver) dispatch(o *op) error {
	prog := o.program.impl.(*cpuProgram)
	bindings := make([][]byte, len(o.bindings))
	for i, b := range o.bindings {
		bindings[i] = b.impl.(*cpuBuffer).data
	}

	var g errgroup.Group
	g.SetLimit(d.workers)
	for z := uint32(0); z < o.groups[2]; z++ {
		for y := uint32(0); y < o.groups[1]; y++ {
			for x := uint32(0); x < o.groups[0]; x++ {
				group := [3]uint32{x, y, z}
				g.Go(func() (err error) {
					defer func() {
						if r := recover(); r != nil {
							err = errors.Errorf("host kernel %q (%s) panicked in workgroup %v: %v", prog.name, prog.entry, group, r)
						}
					}()
					prog.runGroup(group, bindings)
					return nil
				})
			}
		}
	}
	return g.Wait()
}

func (p *cpuProgram) runGroup(group [3]uint32, bindings [][]byte) {
	s := p.shape
	inv := Invocation{WorkgroupID: group}
	for lz := uint32(0); lz < s.Z; lz++ {
		for ly := uint32(0); ly < s.Y; ly++ {
			for lx := uint32(0); lx < s.X; lx++ {
				inv.LocalID = [3]uint32{lx, ly, lz}
				inv.GlobalID = [3]uint32{group[0]*s.X + lx, group[1]*s.Y + ly, group[2]*s.Z + lz}
				p.kernel(inv, bindings)
			}
		}
	}
}
