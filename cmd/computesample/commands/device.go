package commands

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/MVittiS/Sdl3ComputeSample/internal/gpu"
	"github.com/MVittiS/Sdl3ComputeSample/internal/system"
)

func newDeviceCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "device",
		Short: "Show device information",
		Long: `Display information about the compute device selected by --device
or the device.driver setting: driver, adapter, supported kernel formats and
why the software driver was used, if it was.`,
		Args: cobra.NoArgs,
		RunE: a.runDeviceInfo,
	}
}

func (a *app) runDeviceInfo(cmd *cobra.Command, args []string) error {
	w := cmd.OutOrStdout()
	fmt.Fprintln(w, titleStyle.Render("computesample device information"))
	printField(w, "Requested", a.cfg.Device.Driver)

	dev, err := a.openDevice()
	if err != nil {
		fmt.Fprintln(w, failStyle.Render(fmt.Sprintf("Device error: %v", err)))
		fmt.Fprintln(w, "Available drivers:")
		fmt.Fprintln(w, "  • auto   - WebGPU if an adapter is found, else cpu")
		fmt.Fprintln(w, "  • cpu    - software driver running host kernels")
		fmt.Fprintln(w, "  • webgpu - WebGPU adapter (Vulkan, Metal, D3D12)")
		return err
	}
	defer closeDevice(dev)

	printField(w, "Device", GetDeviceName(dev))
	printField(w, "ID", dev.ID())
	printField(w, "Driver", dev.Driver())
	printField(w, "Type", dev.Type())
	printField(w, "Formats", dev.ShaderFormats())
	printField(w, "Max buffer", humanize.IBytes(uint64(dev.MaxBufferSize())))
	printField(w, "Debug", dev.Debug())
	if dev.ShaderFormats().Has(gpu.ShaderFormatHost) {
		printField(w, "Host kernels", strings.Join(gpu.HostKernels(), ", "))
	}
	if reason := dev.FallbackReason(); reason != nil {
		fmt.Fprintln(w, noteStyle.Render(fmt.Sprintf("GPU unavailable: %v", reason)))
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "System Information:")
	printField(w, "OS", runtime.GOOS)
	printField(w, "Arch", runtime.GOARCH)
	printField(w, "CPUs", runtime.NumCPU())
	if ram, err := system.GetRAMInfo(); err == nil {
		printField(w, "RAM", fmt.Sprintf("%s used / %s total (%.1f%%)",
			humanize.IBytes(uint64(ram.UsedBytes)), humanize.IBytes(uint64(ram.TotalBytes)), ram.UsedPercent()))
	}
	return nil
}
