// Package kernels holds the vecadd compute kernel in every format the
// drivers understand and picks the one a device can run.
package kernels

import (
	"embed"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/MVittiS/Sdl3ComputeSample/internal/gpu"
)

const (
	// VecAddEntry is the entry point of every vecadd binary.
	VecAddEntry = "CSMain"

	// VecAddWorkgroupSize is the X dimension the binaries were compiled with.
	VecAddWorkgroupSize = 512

	// HostVecAdd is the name the Go implementation is registered under.
	HostVecAdd = "vecadd"
)

//go:embed shaders
var shaders embed.FS

// Binary is a kernel binary in one shader format.
type Binary struct {
	Source string
	Format gpu.ShaderFormat
	Code   []byte
}

func (b Binary) String() string { return b.Source + " (" + b.Format.String() + ")" }

// overrideFiles maps formats to the file names looked up in a shader directory.
var overrideFiles = []struct {
	format gpu.ShaderFormat
	file   string
}{
	{gpu.ShaderFormatWGSL, "cs.wgsl"},
	{gpu.ShaderFormatSPIRV, "cs.spv"},
	{gpu.ShaderFormatMSL, "cs.metal"},
	{gpu.ShaderFormatDXIL, "cs.dxil"},
	{gpu.ShaderFormatHost, "cs.host"},
}

func init() {
	gpu.RegisterHostKernel(HostVecAdd, vecAdd)
}

// vecAdd is the host implementation: bindings are input1, input2, output.
func vecAdd(inv gpu.Invocation, bindings [][]byte) {
	out := gpu.Float32s(bindings[2])
	idx := int(inv.GlobalID[0])
	if idx >= len(out) {
		return
	}
	out[idx] = gpu.Float32s(bindings[0])[idx] + gpu.Float32s(bindings[1])[idx]
}

// VecAdd returns the embedded vecadd binaries compiled for layout, GPU
// formats first.
func VecAdd(layout gpu.BufferLayout) ([]Binary, error) {
	wgsl := "shaders/vecadd.wgsl"
	if layout == gpu.LayoutAllReadWrite {
		wgsl = "shaders/vecadd_rw.wgsl"
	}
	var out []Binary
	for _, f := range []struct {
		path   string
		format gpu.ShaderFormat
	}{
		{wgsl, gpu.ShaderFormatWGSL},
		{"shaders/vecadd.host", gpu.ShaderFormatHost},
	} {
		code, err := shaders.ReadFile(f.path)
		if err != nil {
			return nil, errors.Wrapf(err, "reading embedded %s", f.path)
		}
		out = append(out, Binary{Source: "embedded:" + filepath.Base(f.path), Format: f.format, Code: code})
	}
	return out, nil
}

// Load returns the vecadd candidates for layout. Binaries found in dir
// (cs.wgsl, cs.spv, cs.metal, cs.dxil, cs.host) come first; dir may be empty.
func Load(dir string, layout gpu.BufferLayout) ([]Binary, error) {
	var out []Binary
	if dir != "" {
		for _, f := range overrideFiles {
			path := filepath.Join(dir, f.file)
			code, err := os.ReadFile(path)
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			if err != nil {
				return nil, errors.Wrapf(err, "loading shader %s", path)
			}
			out = append(out, Binary{Source: path, Format: f.format, Code: code})
		}
	}
	embedded, err := VecAdd(layout)
	if err != nil {
		return nil, err
	}
	return append(out, embedded...), nil
}

// Select returns the first candidate whose format is in formats. It fails
// with gpu.ErrCapabilityMismatch when the device supports none of them.
func Select(formats gpu.ShaderFormat, candidates []Binary) (Binary, error) {
	var offered gpu.ShaderFormat
	for _, b := range candidates {
		if formats.Has(b.Format) {
			return b, nil
		}
		offered |= b.Format
	}
	return Binary{}, errors.Wrapf(gpu.ErrCapabilityMismatch,
		"device supports %s, kernel available as %s", formats, offered)
}

// VecAddProgram describes b as a vecadd program with layout's binding contract.
func VecAddProgram(b Binary, layout gpu.BufferLayout) gpu.ProgramDescriptor {
	return gpu.ProgramDescriptor{
		Label:     "vecadd",
		Code:      b.Code,
		Entry:     VecAddEntry,
		Format:    b.Format,
		Bindings:  layout.Bindings(2, 1),
		Workgroup: gpu.WorkgroupShape{X: VecAddWorkgroupSize, Y: 1, Z: 1},
	}
}
