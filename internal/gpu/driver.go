package gpu

// driver is implemented by the backends (cpu, webgpu). The Device does all
// state checking; drivers only move bytes and run kernels.
type driver interface {
	name() string
	adapterName() string
	deviceType() DeviceType
	shaderFormats() ShaderFormat
	maxBufferSize() int64

	newStorage(label string, size int64, access AccessIntent) (driverBuffer, error)
	newStaging(label string, size int64, dir TransferDirection) (driverStaging, error)
	newProgram(desc *ProgramDescriptor) (driverProgram, error)

	// submit starts executing ops asynchronously, in order.
	submit(ops []op) (driverFence, error)

	close() error
}

type driverBuffer interface {
	release() error
}

type driverStaging interface {
	driverBuffer
	// mapRange returns a view of exactly the buffer's size.
	mapRange() ([]byte, error)
	unmap() error
}

type driverProgram interface {
	release() error
}

// driverFence is closed once every op of a submission has retired.
type driverFence interface {
	done() <-chan struct{}
	// err is only meaningful after done is closed; non-nil means the device is lost.
	err() error
}

type opKind int

const (
	opCopyIn opKind = iota
	opDispatch
	opCopyOut
)

func (k opKind) String() string {
	switch k {
	case opCopyIn:
		return "copy-in"
	case opDispatch:
		return "dispatch"
	case opCopyOut:
		return "copy-out"
	default:
		return "unknown"
	}
}

// op is one recorded command. The kind doubles as the phase.
type op struct {
	kind     opKind
	staging  *StagingBuffer
	storage  *StorageBuffer
	size     int64
	program  *KernelProgram
	bindings []*StorageBuffer
	groups   [3]uint32
}
