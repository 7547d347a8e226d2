package gpu

import (
	"errors"
	"testing"
)

func TestGetDefaultDevice(t *testing.T) {
	dev, err := GetDefaultDevice()
	if err != nil {
		t.Fatalf("GetDefaultDevice failed: %v", err)
	}
	defer dev.Close()

	if dev.Name() == "" {
		t.Error("Device name is empty")
	}
	if reason := dev.FallbackReason(); reason != nil {
		if dev.Type() != DeviceTypeCPU {
			t.Errorf("fell back (%v) but device type is %v", reason, dev.Type())
		}
		if !errors.Is(reason, ErrDeviceCreation) {
			t.Errorf("fallback reason %v does not wrap ErrDeviceCreation", reason)
		}
	}
	t.Logf("Default device: %s", dev)
}

func TestGetCPUDevice(t *testing.T) {
	dev, err := GetDevice(DeviceTypeCPU)
	if err != nil {
		t.Fatalf("GetDevice(CPU) failed: %v", err)
	}
	defer dev.Close()

	if dev.Type() != DeviceTypeCPU {
		t.Errorf("Expected CPU device, got %v", dev.Type())
	}
	if dev.Driver() != DriverCPU {
		t.Errorf("Expected driver %q, got %q", DriverCPU, dev.Driver())
	}
	if !dev.ShaderFormats().Has(ShaderFormatHost) {
		t.Errorf("CPU device formats %s lack host kernels", dev.ShaderFormats())
	}
}

func TestGetGPUDevice(t *testing.T) {
	dev, err := GetDevice(DeviceTypeGPU)
	if err != nil {
		t.Skipf("GPU device not available: %v", err)
	}
	defer dev.Close()

	if dev.Type() != DeviceTypeGPU {
		t.Errorf("Expected GPU device, got %v", dev.Type())
	}
	if !dev.ShaderFormats().Has(ShaderFormatWGSL) {
		t.Errorf("GPU device formats %s lack WGSL", dev.ShaderFormats())
	}
	t.Logf("GPU device: %s", dev)
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(Options{Driver: "vulkan"})
	if !errors.Is(err, ErrDeviceCreation) {
		t.Fatalf("Open(vulkan) error = %v, want ErrDeviceCreation", err)
	}
}

func TestDeviceIDsAreUnique(t *testing.T) {
	a, b := NewCPUDevice(), NewCPUDevice()
	defer a.Close()
	defer b.Close()
	if a.ID() == b.ID() {
		t.Errorf("two devices share ID %s", a.ID())
	}
}

func TestCPUBufferAllocate(t *testing.T) {
	dev := NewCPUDevice()
	defer dev.Close()

	sizes := []int64{1024, 1024 * 1024, 16 * 1024 * 1024}
	var total int64
	for _, size := range sizes {
		buf, err := dev.CreateStorageBuffer(size, AccessReadWrite)
		if err != nil {
			t.Fatalf("CreateStorageBuffer(%d) failed: %v", size, err)
		}
		if buf.Size() != size {
			t.Errorf("Buffer size mismatch: expected %d, got %d", size, buf.Size())
		}
		total += size
	}

	used, count := dev.MemoryUsage()
	if used != total || count != len(sizes) {
		t.Errorf("MemoryUsage = %d bytes in %d resources, want %d in %d", used, count, total, len(sizes))
	}
}

func TestCreateBufferRejects(t *testing.T) {
	dev := NewCPUDevice()
	defer dev.Close()

	tests := []struct {
		name   string
		create func() error
	}{
		{"zero size", func() error { _, err := dev.CreateStorageBuffer(0, AccessReadOnly); return err }},
		{"negative size", func() error { _, err := dev.CreateStagingBuffer(-4, TransferUpload); return err }},
		{"over limit", func() error { _, err := dev.CreateStorageBuffer(cpuMaxBufferSize+1, AccessReadOnly); return err }},
		{"bad access", func() error { _, err := dev.CreateStorageBuffer(16, AccessIntent(9)); return err }},
		{"bad direction", func() error { _, err := dev.CreateStagingBuffer(16, TransferDirection(5)); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.create(); !errors.Is(err, ErrResourceCreation) {
				t.Errorf("error = %v, want ErrResourceCreation", err)
			}
		})
	}
	if _, count := dev.MemoryUsage(); count != 0 {
		t.Errorf("failed creations left %d live resources", count)
	}
}

func TestBufferRelease(t *testing.T) {
	dev := NewCPUDevice()
	defer dev.Close()

	buf, err := dev.CreateStorageBuffer(1024, AccessReadOnly)
	if err != nil {
		t.Fatalf("CreateStorageBuffer failed: %v", err)
	}
	if err := buf.Release(); err != nil {
		t.Errorf("Release failed: %v", err)
	}
	if err := buf.Release(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("second Release error = %v, want ErrInvalidState", err)
	}
	if used, count := dev.MemoryUsage(); used != 0 || count != 0 {
		t.Errorf("MemoryUsage after release = %d, %d", used, count)
	}
}

func TestCloseReleasesLeftovers(t *testing.T) {
	dev := NewCPUDevice()
	buf, _ := dev.CreateStorageBuffer(256, AccessReadWrite)
	stg, _ := dev.CreateStagingBuffer(256, TransferUpload)
	if _, err := stg.Map(); err != nil {
		t.Fatalf("Map failed: %v", err)
	}

	if err := dev.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if used, count := dev.MemoryUsage(); used != 0 || count != 0 {
		t.Errorf("MemoryUsage after Close = %d, %d", used, count)
	}
	if err := buf.Release(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Release after Close error = %v, want ErrInvalidState", err)
	}
	if _, err := dev.CreateStorageBuffer(16, AccessReadOnly); !errors.Is(err, ErrInvalidState) {
		t.Errorf("create after Close error = %v, want ErrInvalidState", err)
	}
	if err := dev.Close(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("second Close error = %v, want ErrInvalidState", err)
	}
}

func TestLabels(t *testing.T) {
	dev := NewCPUDevice()
	defer dev.Close()

	a, _ := dev.CreateStorageBuffer(16, AccessReadOnly)
	b, _ := dev.CreateStorageBuffer(16, AccessReadOnly)
	if a.Label() == b.Label() {
		t.Errorf("labels collide: %q", a.Label())
	}
	a.SetLabel("input1")
	if a.Label() != "input1" {
		t.Errorf("Label() = %q after SetLabel", a.Label())
	}
}

func TestDeviceTypeString(t *testing.T) {
	tests := []struct {
		dtype    DeviceType
		expected string
	}{
		{DeviceTypeCPU, "CPU"},
		{DeviceTypeGPU, "GPU"},
		{DeviceType(99), "Unknown"},
	}

	for _, tt := range tests {
		if got := tt.dtype.String(); got != tt.expected {
			t.Errorf("DeviceType(%d).String() = %q, want %q", tt.dtype, got, tt.expected)
		}
	}
}

func BenchmarkCPUAllocate(b *testing.B) {
	dev := NewCPUDevice()
	defer dev.Close()

	for i := 0; i < b.N; i++ {
		buf, err := dev.CreateStorageBuffer(1<<20, AccessReadWrite)
		if err != nil {
			b.Fatal(err)
		}
		buf.Release()
	}
}
