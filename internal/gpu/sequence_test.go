package gpu

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSequenceVecAdd(t *testing.T) {
	for _, layout := range []BufferLayout{LayoutSplit, LayoutAllReadWrite} {
		t.Run(layout.String(), func(t *testing.T) {
			const n = 1000
			f := newFixture(t, n, layout, 0)
			a, b := ramp(n, 1), ramp(n, 0.5)
			f.upload(t, a, b)

			fence, err := f.record(t, WorkgroupCount(n, testGroup)).Submit()
			require.NoError(t, err)
			waitAndRelease(t, fence)

			got, err := DownloadFloat32s(f.down)
			require.NoError(t, err)
			want := make([]float32, n)
			for i := range want {
				want[i] = a[i] + b[i]
			}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("output (-want +got):\n%s", diff)
			}
		})
	}
}

func TestUnderDispatchRetainsContents(t *testing.T) {
	const n, sentinel = 1024, float32(-7.5)
	f := newFixture(t, n, LayoutSplit, 0)

	// Seed the output buffer with a sentinel through its own sequence.
	fill := make([]float32, n)
	for i := range fill {
		fill[i] = sentinel
	}
	require.NoError(t, UploadFloat32s(f.up1, fill))
	seq, err := f.dev.Begin()
	require.NoError(t, err)
	require.NoError(t, seq.RecordCopyIn(f.up1, f.out, f.size))
	fence, err := seq.Submit()
	require.NoError(t, err)
	waitAndRelease(t, fence)

	f.upload(t, ramp(n, 1), ramp(n, 1))
	groups := uint32(3)
	fence, err = f.record(t, groups).Submit()
	require.NoError(t, err)
	waitAndRelease(t, fence)

	got, err := DownloadFloat32s(f.down)
	require.NoError(t, err)
	covered := int(groups) * testGroup
	for i := 0; i < covered; i++ {
		require.Equal(t, float32(2*i), got[i], "covered element %d", i)
	}
	for i := covered; i < n; i++ {
		require.Equal(t, sentinel, got[i], "uncovered element %d", i)
	}
}

func TestBindingMismatch(t *testing.T) {
	f := newFixture(t, 128, LayoutSplit, 0)
	seq, err := f.dev.Begin()
	require.NoError(t, err)

	err = seq.RecordDispatch(f.prog, []*StorageBuffer{f.in1, f.out}, 2, 1, 1)
	assert.ErrorIs(t, err, ErrBindingMismatch)

	err = seq.RecordDispatch(f.prog, []*StorageBuffer{f.in1, f.in2, f.out, f.out}, 2, 1, 1)
	assert.ErrorIs(t, err, ErrBindingMismatch)

	// A write-only buffer cannot sit in a read-only slot, nor a read-only one in a read-write slot.
	writeOnly := mustStorage(t, f.dev, f.size, AccessWriteOnly)
	readOnly := mustStorage(t, f.dev, f.size, AccessReadOnly)
	err = seq.RecordDispatch(f.prog, []*StorageBuffer{writeOnly, f.in2, f.out}, 2, 1, 1)
	assert.ErrorIs(t, err, ErrBindingMismatch)
	err = seq.RecordDispatch(f.prog, []*StorageBuffer{f.in1, f.in2, readOnly}, 2, 1, 1)
	assert.ErrorIs(t, err, ErrBindingMismatch)

	err = seq.RecordDispatch(f.prog, []*StorageBuffer{f.in1, f.in1, f.out}, 2, 1, 1)
	assert.ErrorIs(t, err, ErrBindingMismatch)

	err = seq.RecordDispatch(f.prog, []*StorageBuffer{f.in1, nil, f.out}, 2, 1, 1)
	assert.ErrorIs(t, err, ErrBindingMismatch)

	assert.Zero(t, seq.Len(), "failed dispatches must not be recorded")
	_, err = seq.Submit()
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestBindingMismatchAliasedReadWrite(t *testing.T) {
	f := newFixture(t, 128, LayoutAllReadWrite, 0)
	seq, err := f.dev.Begin()
	require.NoError(t, err)

	for _, bufs := range [][]*StorageBuffer{
		{f.in1, f.in1, f.in1},
		{f.in1, f.in2, f.in1},
		{f.out, f.in2, f.out},
	} {
		err := seq.RecordDispatch(f.prog, bufs, 2, 1, 1)
		assert.ErrorIs(t, err, ErrBindingMismatch)
	}
	assert.Zero(t, seq.Len())
	require.NoError(t, seq.RecordDispatch(f.prog, []*StorageBuffer{f.in1, f.in2, f.out}, 2, 1, 1))
}

func TestBindingMismatchForeignDevice(t *testing.T) {
	f := newFixture(t, 128, LayoutSplit, 0)
	other := NewCPUDevice()
	defer other.Close()
	foreign := mustStorage(t, other, f.size, AccessReadOnly)

	seq, err := f.dev.Begin()
	require.NoError(t, err)
	err = seq.RecordDispatch(f.prog, []*StorageBuffer{foreign, f.in2, f.out}, 2, 1, 1)
	assert.ErrorIs(t, err, ErrBindingMismatch)
}

func TestDispatchZeroGroups(t *testing.T) {
	f := newFixture(t, 128, LayoutSplit, 0)
	seq, err := f.dev.Begin()
	require.NoError(t, err)
	err = seq.RecordDispatch(f.prog, []*StorageBuffer{f.in1, f.in2, f.out}, 0, 1, 1)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestPhaseOrder(t *testing.T) {
	f := newFixture(t, 128, LayoutSplit, 0)
	seq, err := f.dev.Begin()
	require.NoError(t, err)

	require.NoError(t, seq.RecordCopyIn(f.up1, f.in1, f.size))
	require.NoError(t, seq.RecordDispatch(f.prog, []*StorageBuffer{f.in1, f.in2, f.out}, 2, 1, 1))
	require.NoError(t, seq.RecordDispatch(f.prog, []*StorageBuffer{f.in1, f.in2, f.out}, 2, 1, 1))
	assert.ErrorIs(t, seq.RecordCopyIn(f.up2, f.in2, f.size), ErrInvalidState)

	require.NoError(t, seq.RecordCopyOut(f.out, f.down, f.size))
	assert.ErrorIs(t, seq.RecordDispatch(f.prog, []*StorageBuffer{f.in1, f.in2, f.out}, 2, 1, 1), ErrInvalidState)
	assert.Equal(t, 4, seq.Len())
}

func TestCopyChecks(t *testing.T) {
	f := newFixture(t, 128, LayoutSplit, 0)
	seq, err := f.dev.Begin()
	require.NoError(t, err)

	assert.ErrorIs(t, seq.RecordCopyIn(f.down, f.in1, f.size), ErrInvalidArgument)
	assert.ErrorIs(t, seq.RecordCopyIn(f.up1, f.in1, f.size+4), ErrInvalidArgument)
	assert.ErrorIs(t, seq.RecordCopyIn(f.up1, f.in1, 0), ErrInvalidArgument)
	assert.ErrorIs(t, seq.RecordCopyIn(nil, f.in1, f.size), ErrInvalidArgument)
	assert.ErrorIs(t, seq.RecordCopyOut(f.out, f.up1, f.size), ErrInvalidArgument)
	assert.Zero(t, seq.Len())
}

func TestSubmitRules(t *testing.T) {
	f := newFixture(t, 128, LayoutSplit, 0)
	f.upload(t, ramp(128, 1), ramp(128, 1))

	seq := f.record(t, 2)
	_, err := f.up1.Map()
	require.NoError(t, err)
	_, err = seq.Submit()
	assert.ErrorIs(t, err, ErrInvalidState, "submit with a mapped staging buffer")
	require.NoError(t, f.up1.Unmap())

	fence, err := seq.Submit()
	require.NoError(t, err)
	_, err = seq.Submit()
	assert.ErrorIs(t, err, ErrInvalidState, "second submit")
	assert.ErrorIs(t, seq.RecordCopyOut(f.out, f.down, f.size), ErrInvalidState, "record after submit")
	waitAndRelease(t, fence)
}

func TestSubmitReleasedResource(t *testing.T) {
	f := newFixture(t, 128, LayoutSplit, 0)
	seq := f.record(t, 2)
	require.NoError(t, f.in2.Release())

	_, err := seq.Submit()
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestRoundTripWithoutDispatch(t *testing.T) {
	const n = 4096
	f := newFixture(t, n, LayoutAllReadWrite, 0)
	data := ramp(n, -0.25)
	require.NoError(t, UploadFloat32s(f.up1, data))

	seq, err := f.dev.Begin()
	require.NoError(t, err)
	require.NoError(t, seq.RecordCopyIn(f.up1, f.in1, f.size))
	require.NoError(t, seq.RecordCopyOut(f.in1, f.down, f.size))
	fence, err := seq.Submit()
	require.NoError(t, err)
	waitAndRelease(t, fence)

	got, err := DownloadFloat32s(f.down)
	require.NoError(t, err)
	assert.Equal(t, Float32Bytes(data), Float32Bytes(got))
}

func TestDebugDeviceExposesUnwrittenMemory(t *testing.T) {
	for _, debug := range []bool{false, true} {
		dev, err := Open(Options{Driver: DriverCPU, Debug: debug})
		require.NoError(t, err)
		defer dev.Close()
		assert.Equal(t, debug, dev.Debug())

		const size = 256
		buf := mustStorage(t, dev, size, AccessReadWrite)
		down := mustStaging(t, dev, size, TransferDownload)
		seq, err := dev.Begin()
		require.NoError(t, err)
		require.NoError(t, seq.RecordCopyOut(buf, down, size))
		fence, err := seq.Submit()
		require.NoError(t, err)
		waitAndRelease(t, fence)

		got, err := DownloadFloat32s(down)
		require.NoError(t, err)
		require.Len(t, got, size/4)
		for i, v := range got {
			if debug {
				require.True(t, math.IsNaN(float64(v)), "element %d = %v", i, v)
				require.Equal(t, DebugFillPattern, math.Float32bits(v), "element %d", i)
			} else {
				require.Zero(t, math.Float32bits(v), "element %d", i)
			}
		}
	}
}
