package gpu

import (
	"testing"
	"time"
)

func init() {
	RegisterHostKernel("test.add", func(inv Invocation, b [][]byte) {
		out := Float32s(b[2])
		i := int(inv.GlobalID[0])
		if i >= len(out) {
			return
		}
		out[i] = Float32s(b[0])[i] + Float32s(b[1])[i]
	})
	RegisterHostKernel("test.panic", func(inv Invocation, b [][]byte) {
		if inv.GlobalID[0] == 3 {
			panic("boom")
		}
	})
}

const testGroup = 64

// fixture is the buffer set of one vecadd dispatch.
type fixture struct {
	dev           *Device
	prog          *KernelProgram
	in1, in2, out *StorageBuffer
	up1, up2      *StagingBuffer
	down          *StagingBuffer
	size          int64
}

func newFixture(t *testing.T, n int, layout BufferLayout, latency time.Duration) *fixture {
	t.Helper()
	dev, err := Open(Options{Driver: DriverCPU, Workers: 4, Latency: latency})
	if err != nil {
		t.Fatalf("Open(cpu) failed: %v", err)
	}
	t.Cleanup(func() { dev.Close() })

	f := &fixture{dev: dev, size: int64(n) * 4}
	f.prog = mustProgram(t, dev, "test.add", layout)
	f.in1 = mustStorage(t, dev, f.size, layout.InputAccess())
	f.in2 = mustStorage(t, dev, f.size, layout.InputAccess())
	f.out = mustStorage(t, dev, f.size, layout.OutputAccess())
	f.up1 = mustStaging(t, dev, f.size, TransferUpload)
	f.up2 = mustStaging(t, dev, f.size, TransferUpload)
	f.down = mustStaging(t, dev, f.size, TransferDownload)
	return f
}

func mustProgram(t *testing.T, dev *Device, name string, layout BufferLayout) *KernelProgram {
	t.Helper()
	p, err := dev.CreateKernelProgram(ProgramDescriptor{
		Label:     name,
		Code:      []byte(name),
		Entry:     "main",
		Format:    ShaderFormatHost,
		Bindings:  layout.Bindings(2, 1),
		Workgroup: WorkgroupShape{X: testGroup, Y: 1, Z: 1},
	})
	if err != nil {
		t.Fatalf("CreateKernelProgram(%s) failed: %v", name, err)
	}
	return p
}

func mustStorage(t *testing.T, dev *Device, size int64, access AccessIntent) *StorageBuffer {
	t.Helper()
	b, err := dev.CreateStorageBuffer(size, access)
	if err != nil {
		t.Fatalf("CreateStorageBuffer(%d, %s) failed: %v", size, access, err)
	}
	return b
}

func mustStaging(t *testing.T, dev *Device, size int64, dir TransferDirection) *StagingBuffer {
	t.Helper()
	s, err := dev.CreateStagingBuffer(size, dir)
	if err != nil {
		t.Fatalf("CreateStagingBuffer(%d, %s) failed: %v", size, dir, err)
	}
	return s
}

func ramp(n int, scale float32) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(i) * scale
	}
	return out
}

// upload fills both input staging buffers.
func (f *fixture) upload(t *testing.T, a, b []float32) {
	t.Helper()
	if err := UploadFloat32s(f.up1, a); err != nil {
		t.Fatalf("upload a: %v", err)
	}
	if err := UploadFloat32s(f.up2, b); err != nil {
		t.Fatalf("upload b: %v", err)
	}
}

// record builds the copy-in, dispatch, copy-out sequence over groups workgroups.
func (f *fixture) record(t *testing.T, groups uint32) *CommandSequence {
	t.Helper()
	seq, err := f.dev.Begin()
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	steps := []func() error{
		func() error { return seq.RecordCopyIn(f.up1, f.in1, f.size) },
		func() error { return seq.RecordCopyIn(f.up2, f.in2, f.size) },
		func() error { return seq.RecordDispatch(f.prog, []*StorageBuffer{f.in1, f.in2, f.out}, groups, 1, 1) },
		func() error { return seq.RecordCopyOut(f.out, f.down, f.size) },
	}
	for i, step := range steps {
		if err := step(); err != nil {
			t.Fatalf("record step %d: %v", i, err)
		}
	}
	return seq
}

func waitAndRelease(t *testing.T, fence *Fence) {
	t.Helper()
	ok, err := fence.Wait(0)
	if !ok || err != nil {
		t.Fatalf("Wait = %v, %v", ok, err)
	}
	if err := fence.Release(); err != nil {
		t.Fatalf("fence Release: %v", err)
	}
}
