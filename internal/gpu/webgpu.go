//go:build cgo && !js
// +build cgo,!js

package gpu

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/openfluke/webgpu/wgpu"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// webgpuMapTimeout bounds how long Map polls for MapAsync to complete.
const webgpuMapTimeout = 5 * time.Second

type webgpuDriver struct {
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue
	label    string
	backend  string
	maxSize  int64
	debug    bool

	mu      sync.Mutex
	lost    error
	closing bool
}

func newWebGPUDriver(opts Options) (driver, error) {
	instance := wgpu.CreateInstance(nil)
	if instance == nil {
		return nil, errors.Wrap(ErrDeviceCreation, "webgpu: failed to create instance")
	}
	d := &webgpuDriver{instance: instance, debug: opts.Debug}

	if want := strings.ToLower(strings.TrimSpace(opts.Adapter)); want != "" {
		for _, a := range instance.EnumerateAdapters(nil) {
			info := a.GetInfo()
			if strings.Contains(strings.ToLower(info.Name), want) ||
				strings.Contains(strings.ToLower(info.VendorName), want) {
				d.adapter = a
				break
			}
		}
	}

	var tried []string
	for _, opt := range adapterOptions(opts.PowerPreference) {
		if d.adapter != nil {
			break
		}
		a, err := instance.RequestAdapter(opt)
		if err != nil {
			tried = append(tried, err.Error())
			continue
		}
		d.adapter = a
	}
	if d.adapter == nil {
		instance.Release()
		return nil, errors.Wrapf(ErrDeviceCreation, "webgpu: all adapter requests failed: %s", strings.Join(tried, "; "))
	}

	info := d.adapter.GetInfo()
	d.label = fmt.Sprintf("%s (%s)", strings.TrimSpace(info.Name), strings.TrimSpace(info.VendorName))
	d.backend = strings.ToLower(info.BackendType.String())
	d.maxSize = int64(d.adapter.GetLimits().Limits.MaxBufferSize)

	device, err := d.adapter.RequestDevice(&wgpu.DeviceDescriptor{
		Label:              "computesample",
		DeviceLostCallback: d.deviceLost,
	})
	if err != nil {
		d.adapter.Release()
		instance.Release()
		return nil, errors.Wrapf(ErrDeviceCreation, "webgpu: request device on %s: %v", d.label, err)
	}
	d.device = device
	d.queue = device.GetQueue()
	return d, nil
}

func adapterOptions(pref string) []*wgpu.RequestAdapterOptions {
	high := &wgpu.RequestAdapterOptions{PowerPreference: wgpu.PowerPreferenceHighPerformance}
	low := &wgpu.RequestAdapterOptions{PowerPreference: wgpu.PowerPreferenceLowPower}
	switch strings.ToLower(pref) {
	case "low":
		return []*wgpu.RequestAdapterOptions{low, high, nil}
	case "default":
		return []*wgpu.RequestAdapterOptions{nil}
	default:
		return []*wgpu.RequestAdapterOptions{high, low, nil}
	}
}

func (d *webgpuDriver) name() string                { return DriverWebGPU + "/" + d.backend }
func (d *webgpuDriver) adapterName() string         { return d.label }
func (d *webgpuDriver) deviceType() DeviceType      { return DeviceTypeGPU }
func (d *webgpuDriver) shaderFormats() ShaderFormat { return ShaderFormatWGSL }
func (d *webgpuDriver) maxBufferSize() int64 {
	if d.maxSize <= 0 {
		return cpuMaxBufferSize
	}
	return d.maxSize
}

// deviceLost records why the device went away. The loss reported while
// closing is expected and dropped.
func (d *webgpuDriver) deviceLost(reason wgpu.DeviceLostReason, message string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closing || d.lost != nil {
		return
	}
	d.lost = errors.Errorf("webgpu device lost (reason %v): %s", reason, message)
}

func (d *webgpuDriver) lostErr() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lost
}

// errorScopes pushes a validation scope, plus out-of-memory and internal
// scopes in debug mode. The returned func pops them and reports what they caught.
func (d *webgpuDriver) errorScopes() func() error {
	filters := []wgpu.ErrorFilter{wgpu.ErrorFilterValidation}
	if d.debug {
		filters = append(filters, wgpu.ErrorFilterOutOfMemory, wgpu.ErrorFilterInternal)
	}
	for _, f := range filters {
		d.device.PushErrorScope(f)
	}
	return func() error {
		var errs error
		for range filters {
			d.device.PopErrorScope(func(typ wgpu.ErrorType, message string) {
				if typ != wgpu.ErrorTypeNoError {
					errs = multierr.Append(errs, errors.Errorf("webgpu error (type %v): %s", typ, message))
				}
			})
		}
		return errs
	}
}

func (d *webgpuDriver) close() error {
	d.mu.Lock()
	d.closing = true
	d.mu.Unlock()
	d.device.Release()
	d.adapter.Release()
	d.instance.Release()
	return nil
}

type webgpuBuffer struct {
	drv  *webgpuDriver
	buf  *wgpu.Buffer
	size int64
	read bool
}

func (b *webgpuBuffer) release() error {
	b.buf.Destroy()
	b.buf.Release()
	return nil
}

// mapRange maps the buffer and polls the device until the mapping lands,
// the way a blocking map is done on native WebGPU.
func (b *webgpuBuffer) mapRange() ([]byte, error) {
	if err := b.drv.lostErr(); err != nil {
		return nil, err
	}
	mode := wgpu.MapModeWrite
	if b.read {
		mode = wgpu.MapModeRead
	}
	done := make(chan struct{})
	var mapErr error
	err := b.buf.MapAsync(mode, 0, uint64(b.size), func(status wgpu.BufferMapAsyncStatus) {
		if status != wgpu.BufferMapAsyncStatusSuccess {
			mapErr = fmt.Errorf("map status: %v", status)
		}
		close(done)
	})
	if err != nil {
		return nil, fmt.Errorf("MapAsync: %v", err)
	}

	timeout := time.After(webgpuMapTimeout)
	for {
		b.drv.device.Poll(false, nil)
		select {
		case <-done:
			if mapErr != nil {
				return nil, mapErr
			}
			view := b.buf.GetMappedRange(0, uint(b.size))
			if view == nil {
				b.buf.Unmap()
				return nil, fmt.Errorf("failed to get mapped range")
			}
			return view, nil
		case <-timeout:
			return nil, fmt.Errorf("map timed out after %s", webgpuMapTimeout)
		default:
			time.Sleep(time.Millisecond)
		}
	}
}

func (b *webgpuBuffer) unmap() error {
	b.buf.Unmap()
	return nil
}

func (d *webgpuDriver) newStorage(label string, size int64, _ AccessIntent) (driverBuffer, error) {
	// WebGPU has no write-only storage usage; the intent is enforced by the
	// bind group layout of the program.
	buf, err := d.createBuffer(&wgpu.BufferDescriptor{
		Label: label,
		Size:  uint64(size),
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst | wgpu.BufferUsageCopySrc,
	})
	if err != nil {
		return nil, err
	}
	return &webgpuBuffer{drv: d, buf: buf, size: size}, nil
}

func (d *webgpuDriver) newStaging(label string, size int64, dir TransferDirection) (driverStaging, error) {
	usage := wgpu.BufferUsageMapWrite | wgpu.BufferUsageCopySrc
	if dir == TransferDownload {
		usage = wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst
	}
	buf, err := d.createBuffer(&wgpu.BufferDescriptor{
		Label: label,
		Size:  uint64(size),
		Usage: usage,
	})
	if err != nil {
		return nil, err
	}
	return &webgpuBuffer{drv: d, buf: buf, size: size, read: dir == TransferDownload}, nil
}

func (d *webgpuDriver) createBuffer(desc *wgpu.BufferDescriptor) (*wgpu.Buffer, error) {
	pop := d.errorScopes()
	buf, err := d.device.CreateBuffer(desc)
	if scopeErr := pop(); scopeErr != nil {
		if buf != nil {
			buf.Release()
		}
		return nil, multierr.Append(err, scopeErr)
	}
	return buf, err
}

type webgpuProgram struct {
	pipeline *wgpu.ComputePipeline
	layout   *wgpu.BindGroupLayout
	label    string
}

func (p *webgpuProgram) release() error {
	p.pipeline.Release()
	p.layout.Release()
	return nil
}

func (d *webgpuDriver) newProgram(desc *ProgramDescriptor) (driverProgram, error) {
	if desc.Format != ShaderFormatWGSL {
		return nil, fmt.Errorf("webgpu driver only compiles %s, got %s", ShaderFormatWGSL, desc.Format)
	}
	pop := d.errorScopes()
	prog, err := d.buildProgram(desc)
	if scopeErr := pop(); scopeErr != nil {
		if prog != nil {
			prog.release()
		}
		return nil, multierr.Append(err, scopeErr)
	}
	if err != nil {
		return nil, err
	}
	return prog, nil
}

func (d *webgpuDriver) buildProgram(desc *ProgramDescriptor) (*webgpuProgram, error) {
	module, err := d.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          desc.Label + "_Shader",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: string(desc.Code)},
	})
	if err != nil {
		return nil, fmt.Errorf("shader compile: %v", err)
	}
	defer module.Release()

	// Read-only storage bindings first, read-write after, matching the
	// binding order dispatches use.
	entries := make([]wgpu.BindGroupLayoutEntry, 0, desc.Bindings.Total())
	for i := 0; i < desc.Bindings.Total(); i++ {
		typ := wgpu.BufferBindingTypeStorage
		if i < desc.Bindings.ReadOnly {
			typ = wgpu.BufferBindingTypeReadOnlyStorage
		}
		entries = append(entries, wgpu.BindGroupLayoutEntry{
			Binding:    uint32(i),
			Visibility: wgpu.ShaderStageCompute,
			Buffer:     wgpu.BufferBindingLayout{Type: typ},
		})
	}
	layout, err := d.device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label:   desc.Label + "_BGL",
		Entries: entries,
	})
	if err != nil {
		return nil, fmt.Errorf("create bind group layout: %v", err)
	}

	pipelineLayout, err := d.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            desc.Label + "_Layout",
		BindGroupLayouts: []*wgpu.BindGroupLayout{layout},
	})
	if err != nil {
		layout.Release()
		return nil, fmt.Errorf("create pipeline layout: %v", err)
	}
	defer pipelineLayout.Release()

	pipeline, err := d.device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label:  desc.Label + "_Pipe",
		Layout: pipelineLayout,
		Compute: wgpu.ProgrammableStageDescriptor{
			Module:     module,
			EntryPoint: desc.Entry,
		},
	})
	if err != nil {
		layout.Release()
		return nil, fmt.Errorf("pipeline create: %v", err)
	}
	return &webgpuProgram{pipeline: pipeline, layout: layout, label: desc.Label}, nil
}

type webgpuFence struct {
	drv *webgpuDriver
	ch  chan struct{}
	e   error
}

func (f *webgpuFence) done() <-chan struct{} { return f.ch }

func (f *webgpuFence) err() error {
	if f.e != nil {
		return f.e
	}
	return f.drv.lostErr()
}

func (d *webgpuDriver) submit(ops []op) (driverFence, error) {
	if err := d.lostErr(); err != nil {
		return nil, err
	}
	pop := d.errorScopes()
	var groups []*wgpu.BindGroup
	releaseGroups := func() {
		for _, g := range groups {
			g.Release()
		}
	}
	fail := func(err error) (driverFence, error) {
		releaseGroups()
		return nil, multierr.Append(err, pop())
	}

	enc, err := d.device.CreateCommandEncoder(nil)
	if err != nil {
		return fail(fmt.Errorf("create command encoder: %v", err))
	}
	defer enc.Release()

	for i := range ops {
		o := &ops[i]
		switch o.kind {
		case opCopyIn:
			src := o.staging.impl.(*webgpuBuffer).buf
			dst := o.storage.impl.(*webgpuBuffer).buf
			enc.CopyBufferToBuffer(src, 0, dst, 0, uint64(o.size))

		case opDispatch:
			prog := o.program.impl.(*webgpuProgram)
			entries := make([]wgpu.BindGroupEntry, len(o.bindings))
			for j, b := range o.bindings {
				buf := b.impl.(*webgpuBuffer).buf
				entries[j] = wgpu.BindGroupEntry{Binding: uint32(j), Buffer: buf, Size: buf.GetSize()}
			}
			bg, err := d.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
				Label:   prog.label + "_Bind",
				Layout:  prog.layout,
				Entries: entries,
			})
			if err != nil {
				return fail(fmt.Errorf("create bind group: %v", err))
			}
			groups = append(groups, bg)

			pass := enc.BeginComputePass(nil)
			pass.SetPipeline(prog.pipeline)
			pass.SetBindGroup(0, bg, nil)
			pass.DispatchWorkgroups(o.groups[0], o.groups[1], o.groups[2])
			pass.End()
			pass.Release()

		case opCopyOut:
			src := o.storage.impl.(*webgpuBuffer).buf
			dst := o.staging.impl.(*webgpuBuffer).buf
			enc.CopyBufferToBuffer(src, 0, dst, 0, uint64(o.size))
		}
	}

	cmd, err := enc.Finish(nil)
	if err != nil {
		return fail(fmt.Errorf("finish command encoder: %v", err))
	}
	d.queue.Submit(cmd)
	cmd.Release()

	// A submission that fails validation is dropped by the queue; the scope
	// error is the only trace of it, so it is reported through the fence.
	f := &webgpuFence{drv: d, ch: make(chan struct{}), e: pop()}
	go func() {
		defer close(f.ch)
		// Poll(true) returns once the queue is empty, which includes this submission.
		d.device.Poll(true, nil)
		releaseGroups()
	}()
	return f, nil
}
