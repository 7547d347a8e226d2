package gpu

import "fmt"

// AccessIntent declares how a kernel is allowed to touch a storage buffer.
type AccessIntent int

const (
	AccessReadOnly AccessIntent = iota
	AccessWriteOnly
	AccessReadWrite
)

func (a AccessIntent) String() string {
	switch a {
	case AccessReadOnly:
		return "read-only"
	case AccessWriteOnly:
		return "write-only"
	case AccessReadWrite:
		return "read-write"
	default:
		return fmt.Sprintf("AccessIntent(%d)", int(a))
	}
}

// Readable reports whether a buffer with this intent may sit in a read-only binding slot.
func (a AccessIntent) Readable() bool { return a == AccessReadOnly || a == AccessReadWrite }

// Writable reports whether a buffer with this intent may sit in a read-write binding slot.
func (a AccessIntent) Writable() bool { return a == AccessWriteOnly || a == AccessReadWrite }

func (a AccessIntent) valid() bool { return a >= AccessReadOnly && a <= AccessReadWrite }

// TransferDirection tags a staging buffer as host->device or device->host.
type TransferDirection int

const (
	TransferUpload TransferDirection = iota
	TransferDownload
)

func (d TransferDirection) String() string {
	switch d {
	case TransferUpload:
		return "upload"
	case TransferDownload:
		return "download"
	default:
		return fmt.Sprintf("TransferDirection(%d)", int(d))
	}
}

// StorageBuffer is a device-resident region bound to kernels.
type StorageBuffer struct {
	resourceState
	size   int64
	access AccessIntent
	impl   driverBuffer
}

// Size returns the size of the buffer in bytes
func (b *StorageBuffer) Size() int64 { return b.size }

// Access returns the access intent the buffer was created with
func (b *StorageBuffer) Access() AccessIntent { return b.access }

// Release frees the buffer. It fails with ErrInvalidState if the buffer is
// already released or still referenced by a sequence in flight.
func (b *StorageBuffer) Release() error {
	return b.dev.release(b, &b.resourceState)
}

func (b *StorageBuffer) destroy() error  { return b.impl.release() }
func (b *StorageBuffer) byteSize() int64 { return b.size }
func (b *StorageBuffer) String() string {
	return fmt.Sprintf("storage(%s, %d bytes, %s)", b.label, b.size, b.access)
}

// StagingBuffer is a host-mappable region used to move bytes across the
// host/device boundary. Map/Unmap live in staging.go.
type StagingBuffer struct {
	resourceState
	size   int64
	dir    TransferDirection
	impl   driverStaging
	mapped bool
}

// Size returns the size of the buffer in bytes
func (s *StagingBuffer) Size() int64 { return s.size }

// Direction returns whether the buffer feeds uploads or receives downloads
func (s *StagingBuffer) Direction() TransferDirection { return s.dir }

// Release frees the buffer, unmapping it first if a view is still open.
func (s *StagingBuffer) Release() error {
	return s.dev.release(s, &s.resourceState)
}

func (s *StagingBuffer) destroy() error {
	if s.mapped {
		s.mapped = false
		if err := s.impl.unmap(); err != nil {
			return err
		}
	}
	return s.impl.release()
}
func (s *StagingBuffer) byteSize() int64 { return s.size }
func (s *StagingBuffer) String() string {
	return fmt.Sprintf("staging(%s, %d bytes, %s)", s.label, s.size, s.dir)
}
