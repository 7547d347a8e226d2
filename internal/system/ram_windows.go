package system

import (
	"syscall"
	"unsafe"

	"github.com/pkg/errors"
)

type memoryStatusEx struct {
	dwLength                uint32
	dwMemoryLoad            uint32
	ullTotalPhys            uint64
	ullAvailPhys            uint64
	ullTotalPageFile        uint64
	ullAvailPageFile        uint64
	ullTotalVirtual         uint64
	ullAvailVirtual         uint64
	ullAvailExtendedVirtual uint64
}

var procGlobalMemoryStatusEx = syscall.NewLazyDLL("kernel32.dll").NewProc("GlobalMemoryStatusEx")

func getRAMInfo() (*RAMInfo, error) {
	var st memoryStatusEx
	st.dwLength = uint32(unsafe.Sizeof(st))
	if ret, _, err := procGlobalMemoryStatusEx.Call(uintptr(unsafe.Pointer(&st))); ret == 0 {
		return nil, errors.Wrap(err, "GlobalMemoryStatusEx")
	}
	return &RAMInfo{TotalBytes: int64(st.ullTotalPhys), AvailableBytes: int64(st.ullAvailPhys)}, nil
}
