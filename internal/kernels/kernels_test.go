package kernels

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MVittiS/Sdl3ComputeSample/internal/gpu"
)

func TestVecAddEmbedded(t *testing.T) {
	bins, err := VecAdd(gpu.LayoutSplit)
	require.NoError(t, err)
	require.Len(t, bins, 2)

	assert.Equal(t, gpu.ShaderFormatWGSL, bins[0].Format)
	assert.Contains(t, string(bins[0].Code), "fn CSMain")
	assert.Contains(t, string(bins[0].Code), "var<storage, read> input1")
	assert.Equal(t, gpu.ShaderFormatHost, bins[1].Format)
	assert.Equal(t, HostVecAdd, strings.TrimSpace(string(bins[1].Code)))
}

func TestVecAddReadWriteLayout(t *testing.T) {
	bins, err := VecAdd(gpu.LayoutAllReadWrite)
	require.NoError(t, err)

	wgsl := string(bins[0].Code)
	assert.Equal(t, "embedded:vecadd_rw.wgsl", bins[0].Source)
	assert.NotContains(t, wgsl, "var<storage, read>")
	assert.Equal(t, 3, strings.Count(wgsl, "var<storage, read_write>"))
}

func TestLoadOverrides(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cs.spv"), []byte{0x03, 0x02, 0x23, 0x07}, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cs.host"), []byte("vecadd\n"), 0o644))

	bins, err := Load(dir, gpu.LayoutSplit)
	require.NoError(t, err)
	require.Len(t, bins, 4)

	assert.Equal(t, gpu.ShaderFormatSPIRV, bins[0].Format)
	assert.Equal(t, filepath.Join(dir, "cs.spv"), bins[0].Source)
	assert.Equal(t, gpu.ShaderFormatHost, bins[1].Format)
	assert.Equal(t, gpu.ShaderFormatWGSL, bins[2].Format)
}

func TestLoadNoDir(t *testing.T) {
	bins, err := Load("", gpu.LayoutSplit)
	require.NoError(t, err)
	assert.Len(t, bins, 2)

	bins, err = Load(filepath.Join(t.TempDir(), "missing"), gpu.LayoutSplit)
	require.NoError(t, err)
	assert.Len(t, bins, 2)
}

func TestSelect(t *testing.T) {
	bins, err := VecAdd(gpu.LayoutSplit)
	require.NoError(t, err)

	b, err := Select(gpu.ShaderFormatHost, bins)
	require.NoError(t, err)
	assert.Equal(t, gpu.ShaderFormatHost, b.Format)

	b, err = Select(gpu.ShaderFormatWGSL|gpu.ShaderFormatHost, bins)
	require.NoError(t, err)
	assert.Equal(t, gpu.ShaderFormatWGSL, b.Format)

	_, err = Select(gpu.ShaderFormatMSL|gpu.ShaderFormatDXIL, bins)
	assert.ErrorIs(t, err, gpu.ErrCapabilityMismatch)
}

func TestHostVecAddRegistered(t *testing.T) {
	assert.Contains(t, gpu.HostKernels(), HostVecAdd)
}

func TestHostVecAddGuardsOutOfRange(t *testing.T) {
	a := gpu.Float32Bytes([]float32{1, 2, 3})
	b := gpu.Float32Bytes([]float32{10, 20, 30})
	out := make([]byte, len(a))
	bindings := [][]byte{a, b, out}

	for i := uint32(0); i < 5; i++ {
		vecAdd(gpu.Invocation{GlobalID: [3]uint32{i, 0, 0}}, bindings)
	}
	assert.Equal(t, []float32{11, 22, 33}, gpu.Float32s(out))
}

func TestVecAddProgram(t *testing.T) {
	bins, err := VecAdd(gpu.LayoutAllReadWrite)
	require.NoError(t, err)

	desc := VecAddProgram(bins[0], gpu.LayoutAllReadWrite)
	assert.Equal(t, VecAddEntry, desc.Entry)
	assert.Equal(t, gpu.BindingCounts{ReadWrite: 3}, desc.Bindings)
	assert.Equal(t, uint32(VecAddWorkgroupSize), desc.Workgroup.X)

	desc = VecAddProgram(bins[1], gpu.LayoutSplit)
	assert.Equal(t, gpu.BindingCounts{ReadOnly: 2, ReadWrite: 1}, desc.Bindings)
}
