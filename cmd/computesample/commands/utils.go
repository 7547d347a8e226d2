package commands

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/sirupsen/logrus"

	"github.com/MVittiS/Sdl3ComputeSample/internal/gpu"
	"github.com/MVittiS/Sdl3ComputeSample/internal/logging"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7B68EE")).
			MarginBottom(1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666")).
			Width(14)

	passStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#7FFF00")).
			Bold(true)

	failStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF0000")).
			Bold(true)

	noteStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFA500")).
			Italic(true)
)

// openDevice opens the device selected by the configuration.
func (a *app) openDevice() (*gpu.Device, error) {
	dev, err := gpu.Open(a.cfg.DeviceOptions())
	if err != nil {
		logging.Errorf("Failed to create device: %v", err)
		return nil, err
	}
	log := logging.WithFields(logrus.Fields{
		"id":     dev.ID().String(),
		"driver": dev.Driver(),
	})
	if reason := dev.FallbackReason(); reason != nil {
		log.Warnf("No GPU adapter, using the software driver: %v", reason)
	}
	log.Infof("Created device %s (debug=%t)", dev.Name(), dev.Debug())
	return dev, nil
}

// closeDevice closes dev, logging instead of failing the command.
func closeDevice(dev *gpu.Device) {
	if err := dev.Close(); err != nil {
		logging.Warnf("Closing device: %v", err)
	}
}

// GetDeviceName returns a human-readable device name with helpful info
func GetDeviceName(dev *gpu.Device) string {
	switch dev.Type() {
	case gpu.DeviceTypeCPU:
		return fmt.Sprintf("%s (CPU mode)", dev.Name())
	case gpu.DeviceTypeGPU:
		return fmt.Sprintf("%s (%s)", dev.Name(), dev.Driver())
	default:
		return dev.Name()
	}
}

func printField(w io.Writer, label string, value interface{}) {
	fmt.Fprintf(w, "%s %v\n", labelStyle.Render(label+":"), value)
}
