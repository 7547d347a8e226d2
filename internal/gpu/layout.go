package gpu

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// BufferLayout decides how the kernel's buffers are bound: inputs read-only
// and outputs read-write, or everything read-write.
type BufferLayout int

const (
	// LayoutSplit binds inputs read-only and outputs read-write.
	LayoutSplit BufferLayout = iota
	// LayoutAllReadWrite binds every buffer read-write.
	LayoutAllReadWrite
)

func (l BufferLayout) String() string {
	switch l {
	case LayoutSplit:
		return "split"
	case LayoutAllReadWrite:
		return "readwrite"
	default:
		return fmt.Sprintf("BufferLayout(%d)", int(l))
	}
}

// ParseBufferLayout accepts "split" and "readwrite".
func ParseBufferLayout(s string) (BufferLayout, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "split":
		return LayoutSplit, nil
	case "readwrite", "read-write", "rw":
		return LayoutAllReadWrite, nil
	default:
		return 0, errors.Errorf("unknown buffer layout %q (valid: split, readwrite)", s)
	}
}

// InputAccess is the access intent for buffers the kernel only reads.
func (l BufferLayout) InputAccess() AccessIntent {
	if l == LayoutAllReadWrite {
		return AccessReadWrite
	}
	return AccessReadOnly
}

// OutputAccess is the access intent for buffers the kernel writes.
func (l BufferLayout) OutputAccess() AccessIntent {
	if l == LayoutAllReadWrite {
		return AccessReadWrite
	}
	return AccessWriteOnly
}

// Bindings returns the binding contract for a kernel with the given number
// of inputs and outputs.
func (l BufferLayout) Bindings(inputs, outputs int) BindingCounts {
	if l == LayoutAllReadWrite {
		return BindingCounts{ReadWrite: inputs + outputs}
	}
	return BindingCounts{ReadOnly: inputs, ReadWrite: outputs}
}
