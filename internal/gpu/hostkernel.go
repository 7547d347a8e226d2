package gpu

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Invocation identifies one kernel invocation, the way compute shaders see it.
type Invocation struct {
	GlobalID    [3]uint32
	LocalID     [3]uint32
	WorkgroupID [3]uint32
}

// HostKernel is a compute kernel written in Go, run by the cpu driver once
// per invocation. bindings holds the storage buffers in binding order.
// Invocations of a dispatch may run concurrently and must only write the
// elements they own.
type HostKernel func(inv Invocation, bindings [][]byte)

var (
	hostKernelsMu sync.RWMutex
	hostKernels   = map[string]HostKernel{}
)

// RegisterHostKernel makes k available to programs whose ShaderFormatHost
// code is name. Registering the same name twice panics.
func RegisterHostKernel(name string, k HostKernel) {
	hostKernelsMu.Lock()
	defer hostKernelsMu.Unlock()
	if k == nil {
		panic("gpu: RegisterHostKernel with nil kernel")
	}
	if _, dup := hostKernels[name]; dup {
		panic(fmt.Sprintf("gpu: host kernel %q registered twice", name))
	}
	hostKernels[name] = k
}

// HostKernels lists the registered host kernel names.
func HostKernels() []string {
	hostKernelsMu.RLock()
	defer hostKernelsMu.RUnlock()
	names := make([]string, 0, len(hostKernels))
	for n := range hostKernels {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func lookupHostKernel(code []byte) (string, HostKernel, error) {
	name := strings.TrimSpace(string(code))
	hostKernelsMu.RLock()
	defer hostKernelsMu.RUnlock()
	k, ok := hostKernels[name]
	if !ok {
		return name, nil, fmt.Errorf("no host kernel named %q", name)
	}
	return name, k, nil
}
