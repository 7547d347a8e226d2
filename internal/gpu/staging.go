package gpu

import (
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// Map opens a view of the whole staging buffer. Only one view may be open at
// a time, and a buffer referenced by a submitted sequence cannot be mapped
// until that sequence's fence has signaled. Writing past the view is not
// guarded.
func (s *StagingBuffer) Map() ([]byte, error) {
	d := s.dev
	d.mu.Lock()
	if err := d.usable(); err != nil {
		d.mu.Unlock()
		return nil, err
	}
	switch {
	case s.released:
		d.mu.Unlock()
		return nil, errors.Wrapf(ErrInvalidState, "map %s: released", s)
	case s.mapped:
		d.mu.Unlock()
		return nil, errors.Wrapf(ErrInvalidState, "map %s: already mapped", s)
	case s.inFlight > 0:
		d.mu.Unlock()
		return nil, errors.Wrapf(ErrInvalidState, "map %s: referenced by a sequence in flight", s)
	}
	s.mapped = true
	d.mu.Unlock()

	view, err := s.impl.mapRange()
	if err != nil {
		d.mu.Lock()
		s.mapped = false
		d.mu.Unlock()
		return nil, errors.Wrapf(err, "map %s", s)
	}
	return view, nil
}

// Unmap closes the view opened by Map. Views must not be used afterwards.
func (s *StagingBuffer) Unmap() error {
	d := s.dev
	d.mu.Lock()
	if s.released || !s.mapped {
		d.mu.Unlock()
		return errors.Wrapf(ErrInvalidState, "unmap %s: not mapped", s)
	}
	s.mapped = false
	d.mu.Unlock()
	return errors.Wrapf(s.impl.unmap(), "unmap %s", s)
}

// Mapped reports whether a view is currently open.
func (s *StagingBuffer) Mapped() bool {
	s.dev.mu.Lock()
	defer s.dev.mu.Unlock()
	return s.mapped
}

// WithMapped maps the buffer, calls fn with the view and unmaps it on every
// path out of fn.
func (s *StagingBuffer) WithMapped(fn func(view []byte) error) (err error) {
	view, err := s.Map()
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, s.Unmap())
	}()
	return fn(view)
}

// UploadFloat32s copies data into an upload staging buffer.
func UploadFloat32s(s *StagingBuffer, data []float32) error {
	if s.Direction() != TransferUpload {
		return errors.Wrapf(ErrInvalidArgument, "upload into %s", s)
	}
	if n := int64(len(data)) * 4; n > s.Size() {
		return errors.Wrapf(ErrInvalidArgument, "upload of %d bytes into %s", n, s)
	}
	return s.WithMapped(func(view []byte) error {
		copy(Float32s(view), data)
		return nil
	})
}

// DownloadFloat32s copies the content of a download staging buffer out.
func DownloadFloat32s(s *StagingBuffer) ([]float32, error) {
	if s.Direction() != TransferDownload {
		return nil, errors.Wrapf(ErrInvalidArgument, "download from %s", s)
	}
	var out []float32
	err := s.WithMapped(func(view []byte) error {
		out = append([]float32(nil), Float32s(view)...)
		return nil
	})
	return out, err
}
