package gpu

import (
	"time"

	"github.com/pkg/errors"
)

// CommandSequence records copy-in, dispatch and copy-out operations and
// submits them as one unit. Operations run in recording order with a barrier
// between phases; a sequence is single use.
type CommandSequence struct {
	dev       *Device
	ops       []op
	phase     opKind
	submitted bool
}

// Begin starts a new command sequence.
func (d *Device) Begin() (*CommandSequence, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.usable(); err != nil {
		return nil, err
	}
	return &CommandSequence{dev: d, phase: opCopyIn}, nil
}

// Len returns the number of recorded operations.
func (s *CommandSequence) Len() int { return len(s.ops) }

// enter checks that an op of kind k may be recorded now. Must be called
// with dev.mu held.
func (s *CommandSequence) enter(k opKind) error {
	if err := s.dev.usable(); err != nil {
		return err
	}
	if s.submitted {
		return errors.Wrapf(ErrInvalidState, "record %s: sequence already submitted", k)
	}
	if k < s.phase {
		return errors.Wrapf(ErrInvalidState, "record %s: sequence already in %s phase", k, s.phase)
	}
	return nil
}

func (s *CommandSequence) checkCopy(k opKind, staging *StagingBuffer, storage *StorageBuffer, size int64, want TransferDirection) error {
	if staging == nil || storage == nil {
		return errors.Wrapf(ErrInvalidArgument, "%s: nil buffer", k)
	}
	if staging.dev != s.dev || storage.dev != s.dev {
		return errors.Wrapf(ErrInvalidArgument, "%s: buffer belongs to another device", k)
	}
	if staging.released || storage.released {
		return errors.Wrapf(ErrInvalidState, "%s: %s or %s already released", k, staging, storage)
	}
	if staging.dir != want {
		return errors.Wrapf(ErrInvalidArgument, "%s needs a %s staging buffer, got %s", k, want, staging)
	}
	if size <= 0 || size > staging.size || size > storage.size {
		return errors.Wrapf(ErrInvalidArgument, "%s of %d bytes between %s and %s", k, size, staging, storage)
	}
	return nil
}

// RecordCopyIn records a copy of size bytes from an upload staging buffer to
// the start of dst.
func (s *CommandSequence) RecordCopyIn(src *StagingBuffer, dst *StorageBuffer, size int64) error {
	s.dev.mu.Lock()
	defer s.dev.mu.Unlock()
	if err := s.enter(opCopyIn); err != nil {
		return err
	}
	if err := s.checkCopy(opCopyIn, src, dst, size, TransferUpload); err != nil {
		return err
	}
	s.ops = append(s.ops, op{kind: opCopyIn, staging: src, storage: dst, size: size})
	return nil
}

// RecordDispatch records a dispatch of p over x*y*z workgroups. buffers must
// follow p's binding contract: the read-only slots first, then the read-write
// ones, each buffer with a compatible access intent and bound once. Coverage is not checked:
// with too few workgroups the uncovered elements keep their previous contents.
func (s *CommandSequence) RecordDispatch(p *KernelProgram, buffers []*StorageBuffer, x, y, z uint32) error {
	s.dev.mu.Lock()
	defer s.dev.mu.Unlock()
	if err := s.enter(opDispatch); err != nil {
		return err
	}
	if p == nil || p.dev != s.dev {
		return errors.Wrap(ErrInvalidArgument, "dispatch: program is nil or belongs to another device")
	}
	if p.released {
		return errors.Wrapf(ErrInvalidState, "dispatch: %s already released", p)
	}
	counts := p.desc.Bindings
	if len(buffers) != counts.Total() {
		return errors.Wrapf(ErrBindingMismatch, "dispatch %s: %d buffers bound, program expects %s",
			p, len(buffers), counts)
	}
	slots := make(map[*StorageBuffer]int, len(buffers))
	for i, b := range buffers {
		if b == nil || b.dev != s.dev {
			return errors.Wrapf(ErrBindingMismatch, "dispatch %s: slot %d is nil or belongs to another device", p, i)
		}
		if j, ok := slots[b]; ok {
			return errors.Wrapf(ErrBindingMismatch, "dispatch %s: %s bound to slots %d and %d", p, b, j, i)
		}
		slots[b] = i
		if b.released {
			return errors.Wrapf(ErrInvalidState, "dispatch %s: slot %d %s already released", p, i, b)
		}
		if i < counts.ReadOnly {
			if !b.access.Readable() {
				return errors.Wrapf(ErrBindingMismatch, "dispatch %s: read-only slot %d holds %s", p, i, b)
			}
		} else if !b.access.Writable() {
			return errors.Wrapf(ErrBindingMismatch, "dispatch %s: read-write slot %d holds %s", p, i, b)
		}
	}
	if x == 0 || y == 0 || z == 0 {
		return errors.Wrapf(ErrInvalidArgument, "dispatch %s: workgroup count %dx%dx%d", p, x, y, z)
	}
	s.phase = opDispatch
	s.ops = append(s.ops, op{
		kind:     opDispatch,
		program:  p,
		bindings: append([]*StorageBuffer(nil), buffers...),
		groups:   [3]uint32{x, y, z},
	})
	return nil
}

// RecordCopyOut records a copy of size bytes from the start of src into a
// download staging buffer.
func (s *CommandSequence) RecordCopyOut(src *StorageBuffer, dst *StagingBuffer, size int64) error {
	s.dev.mu.Lock()
	defer s.dev.mu.Unlock()
	if err := s.enter(opCopyOut); err != nil {
		return err
	}
	if err := s.checkCopy(opCopyOut, dst, src, size, TransferDownload); err != nil {
		return err
	}
	s.phase = opCopyOut
	s.ops = append(s.ops, op{kind: opCopyOut, staging: dst, storage: src, size: size})
	return nil
}

// references returns the bookkeeping of every resource the sequence touches,
// each once.
func (s *CommandSequence) references() []*resourceState {
	seen := make(map[*resourceState]bool)
	var refs []*resourceState
	add := func(r *resourceState) {
		if !seen[r] {
			seen[r] = true
			refs = append(refs, r)
		}
	}
	for i := range s.ops {
		o := &s.ops[i]
		switch o.kind {
		case opCopyIn, opCopyOut:
			add(&o.staging.resourceState)
			add(&o.storage.resourceState)
		case opDispatch:
			add(&o.program.resourceState)
			for _, b := range o.bindings {
				add(&b.resourceState)
			}
		}
	}
	return refs
}

// Submit hands the sequence to the device and returns its completion fence.
// Every staging buffer it references must be unmapped.
func (s *CommandSequence) Submit() (*Fence, error) {
	d := s.dev
	d.mu.Lock()
	if err := d.usable(); err != nil {
		d.mu.Unlock()
		return nil, err
	}
	if s.submitted {
		d.mu.Unlock()
		return nil, errors.Wrap(ErrInvalidState, "submit: sequence already submitted")
	}
	if len(s.ops) == 0 {
		d.mu.Unlock()
		return nil, errors.Wrap(ErrInvalidState, "submit: empty sequence")
	}
	for i := range s.ops {
		o := &s.ops[i]
		if o.staging != nil && o.staging.mapped {
			d.mu.Unlock()
			return nil, errors.Wrapf(ErrInvalidState, "submit: %s is still mapped", o.staging)
		}
	}
	refs := s.references()
	for _, r := range refs {
		if r.released {
			d.mu.Unlock()
			return nil, errors.Wrapf(ErrInvalidState, "submit: %s was released after recording", r.label)
		}
	}
	for _, r := range refs {
		r.inFlight++
	}
	s.submitted = true
	f := &Fence{
		dev:         d,
		refs:        refs,
		signaled:    make(chan struct{}),
		submittedAt: time.Now(),
	}
	d.pending[f] = struct{}{}
	d.mu.Unlock()

	df, err := d.drv.submit(s.ops)
	if err != nil {
		d.mu.Lock()
		for _, r := range refs {
			r.inFlight--
		}
		delete(d.pending, f)
		lost := d.markLost(errors.Wrap(err, "submit"))
		d.mu.Unlock()
		close(f.signaled)
		return nil, lost
	}
	f.df = df
	go f.settle()
	return f, nil
}
