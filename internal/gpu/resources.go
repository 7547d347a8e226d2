package gpu

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// SetLabel replaces the debug label of a resource.
func (r *resourceState) SetLabel(label string) {
	r.dev.mu.Lock()
	defer r.dev.mu.Unlock()
	r.label = label
}

func (d *Device) nextLabel(kind string) string {
	return fmt.Sprintf("%s#%d", kind, d.seq.Add(1))
}

func (d *Device) checkCreate(size int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.usable(); err != nil {
		return err
	}
	if size <= 0 {
		return errors.Wrapf(ErrResourceCreation, "buffer size must be positive, got %d", size)
	}
	if limit := d.drv.maxBufferSize(); size > limit {
		return errors.Wrapf(ErrResourceCreation, "buffer size %d exceeds device limit %d", size, limit)
	}
	return nil
}

// CreateStorageBuffer allocates a device-resident buffer of size bytes.
func (d *Device) CreateStorageBuffer(size int64, access AccessIntent) (*StorageBuffer, error) {
	if err := d.checkCreate(size); err != nil {
		return nil, err
	}
	if !access.valid() {
		return nil, errors.Wrapf(ErrResourceCreation, "invalid access intent %v", access)
	}
	label := d.nextLabel("storage")
	impl, err := d.drv.newStorage(label, size, access)
	if err != nil {
		return nil, errors.Wrapf(ErrResourceCreation, "storage buffer of %d bytes: %v", size, err)
	}
	b := &StorageBuffer{
		resourceState: resourceState{dev: d, label: label},
		size:          size,
		access:        access,
		impl:          impl,
	}
	d.track(b)
	return b, nil
}

// CreateStagingBuffer allocates a host-mappable transfer buffer of size bytes.
func (d *Device) CreateStagingBuffer(size int64, dir TransferDirection) (*StagingBuffer, error) {
	if err := d.checkCreate(size); err != nil {
		return nil, err
	}
	if dir != TransferUpload && dir != TransferDownload {
		return nil, errors.Wrapf(ErrResourceCreation, "invalid transfer direction %v", dir)
	}
	label := d.nextLabel("staging")
	impl, err := d.drv.newStaging(label, size, dir)
	if err != nil {
		return nil, errors.Wrapf(ErrResourceCreation, "%s staging buffer of %d bytes: %v", dir, size, err)
	}
	s := &StagingBuffer{
		resourceState: resourceState{dev: d, label: label},
		size:          size,
		dir:           dir,
		impl:          impl,
	}
	d.track(s)
	return s, nil
}

// CreateKernelProgram builds a program from desc. The binding contract in
// desc must match what the binary was compiled with; the device cannot check
// that for every format.
func (d *Device) CreateKernelProgram(desc ProgramDescriptor) (*KernelProgram, error) {
	d.mu.Lock()
	err := d.usable()
	d.mu.Unlock()
	if err != nil {
		return nil, err
	}

	var problems []string
	if len(desc.Code) == 0 {
		problems = append(problems, "empty code")
	}
	if strings.TrimSpace(desc.Entry) == "" {
		problems = append(problems, "empty entry point")
	}
	if desc.Workgroup.X == 0 || desc.Workgroup.Y == 0 || desc.Workgroup.Z == 0 {
		problems = append(problems, fmt.Sprintf("workgroup shape %s has a zero dimension", desc.Workgroup))
	}
	if desc.Bindings.ReadOnly < 0 || desc.Bindings.ReadWrite < 0 {
		problems = append(problems, fmt.Sprintf("negative binding counts %s", desc.Bindings))
	}
	if len(desc.Format.Formats()) != 1 {
		problems = append(problems, fmt.Sprintf("format must name exactly one shader format, got %s", desc.Format))
	} else if !d.ShaderFormats().Has(desc.Format) {
		problems = append(problems, fmt.Sprintf("format %s not supported by %s (supports %s)", desc.Format, d.Driver(), d.ShaderFormats()))
	}
	if len(problems) > 0 {
		return nil, errors.Wrapf(ErrResourceCreation, "kernel program %q: %s", desc.Label, strings.Join(problems, ", "))
	}

	if desc.Label == "" {
		desc.Label = d.nextLabel("program")
	}
	impl, err := d.drv.newProgram(&desc)
	if err != nil {
		return nil, errors.Wrapf(ErrResourceCreation, "kernel program %q: %v", desc.Label, err)
	}
	p := &KernelProgram{
		resourceState: resourceState{dev: d, label: desc.Label},
		desc:          desc,
		impl:          impl,
	}
	d.track(p)
	return p, nil
}
