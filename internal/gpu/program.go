package gpu

import (
	"fmt"
	"strings"
)

// ShaderFormat is a bit set of kernel binary formats.
type ShaderFormat uint32

const (
	// ShaderFormatHost names a Go kernel registered with RegisterHostKernel.
	ShaderFormatHost ShaderFormat = 1 << iota
	ShaderFormatWGSL
	ShaderFormatSPIRV
	ShaderFormatMSL
	ShaderFormatDXIL
)

var shaderFormatNames = []struct {
	f    ShaderFormat
	name string
}{
	{ShaderFormatHost, "host"},
	{ShaderFormatWGSL, "wgsl"},
	{ShaderFormatSPIRV, "spirv"},
	{ShaderFormatMSL, "msl"},
	{ShaderFormatDXIL, "dxil"},
}

// Has reports whether every format in o is in f.
func (f ShaderFormat) Has(o ShaderFormat) bool { return o != 0 && f&o == o }

// Formats splits the set into its single-format members.
func (f ShaderFormat) Formats() []ShaderFormat {
	var out []ShaderFormat
	for _, n := range shaderFormatNames {
		if f&n.f != 0 {
			out = append(out, n.f)
		}
	}
	return out
}

func (f ShaderFormat) String() string {
	if f == 0 {
		return "none"
	}
	var names []string
	for _, n := range shaderFormatNames {
		if f&n.f != 0 {
			names = append(names, n.name)
		}
	}
	return strings.Join(names, "|")
}

// ParseShaderFormat parses a single format name such as "wgsl".
func ParseShaderFormat(s string) (ShaderFormat, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, n := range shaderFormatNames {
		if n.name == s {
			return n.f, nil
		}
	}
	return 0, fmt.Errorf("unknown shader format %q", s)
}

// WorkgroupShape is the number of invocations per workgroup along each axis.
type WorkgroupShape struct {
	X, Y, Z uint32
}

// Size returns the number of invocations in one workgroup.
func (w WorkgroupShape) Size() uint32 { return w.X * w.Y * w.Z }

func (w WorkgroupShape) String() string { return fmt.Sprintf("%dx%dx%d", w.X, w.Y, w.Z) }

// BindingCounts is the storage-buffer part of a program's binding contract.
// Read-only slots come first, read-write slots follow.
type BindingCounts struct {
	ReadOnly  int
	ReadWrite int
}

// Total returns the number of buffers a dispatch must bind.
func (b BindingCounts) Total() int { return b.ReadOnly + b.ReadWrite }

func (b BindingCounts) String() string {
	return fmt.Sprintf("%d read-only + %d read-write", b.ReadOnly, b.ReadWrite)
}

// ProgramDescriptor describes a kernel binary and the contract it was compiled with.
type ProgramDescriptor struct {
	Label     string
	Code      []byte
	Entry     string
	Format    ShaderFormat
	Bindings  BindingCounts
	Workgroup WorkgroupShape
}

// KernelProgram is a compiled compute routine plus its binding contract.
type KernelProgram struct {
	resourceState
	desc ProgramDescriptor
	impl driverProgram
}

// Entry returns the entry point name
func (p *KernelProgram) Entry() string { return p.desc.Entry }

// Format returns the binary format the program was built from
func (p *KernelProgram) Format() ShaderFormat { return p.desc.Format }

// Bindings returns the binding contract
func (p *KernelProgram) Bindings() BindingCounts { return p.desc.Bindings }

// Workgroup returns the declared workgroup shape
func (p *KernelProgram) Workgroup() WorkgroupShape { return p.desc.Workgroup }

// Release frees the program.
func (p *KernelProgram) Release() error {
	return p.dev.release(p, &p.resourceState)
}

func (p *KernelProgram) destroy() error  { return p.impl.release() }
func (p *KernelProgram) byteSize() int64 { return 0 }
func (p *KernelProgram) String() string {
	return fmt.Sprintf("program(%s, %s:%s, %s, wg %s)", p.label, p.desc.Format, p.desc.Entry, p.desc.Bindings, p.desc.Workgroup)
}

// WorkgroupCount returns ceil(elements / groupSize), the number of workgroups
// needed for one invocation per element.
func WorkgroupCount(elements int, groupSize uint32) uint32 {
	if elements <= 0 || groupSize == 0 {
		return 0
	}
	return uint32((uint64(elements) + uint64(groupSize) - 1) / uint64(groupSize))
}
