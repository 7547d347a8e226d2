package commands

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/MVittiS/Sdl3ComputeSample/internal/pipeline"
	"github.com/MVittiS/Sdl3ComputeSample/internal/verify"
)

func newRoundTripCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "roundtrip",
		Short: "Upload a vector and download it again without any dispatch",
		Long: `Roundtrip copies a random vector through a storage buffer and back,
checking that the bytes that come back are the bytes that went in.`,
		Args: cobra.NoArgs,
		RunE: a.runRoundTrip,
	}
	f := cmd.Flags()
	f.Int("elements", pipeline.DefaultElements, "number of float32 elements")
	f.Uint64("seed", 1, "input generator seed (0 = from the clock)")
	bindFlag(f, "elements", "pipeline.elements")
	bindFlag(f, "seed", "pipeline.seed")
	return cmd
}

func (a *app) runRoundTrip(cmd *cobra.Command, args []string) error {
	dev, err := a.openDevice()
	if err != nil {
		return err
	}
	defer closeDevice(dev)

	seed := pipeline.ResolveSeed(a.cfg.Pipeline.Seed)
	data := verify.RandomVector(a.cfg.Pipeline.Elements, seed)
	got, err := pipeline.RoundTrip(cmd.Context(), dev, data)
	if err != nil {
		return err
	}
	report, err := verify.Compare(data, got, a.cfg.Pipeline.MaxReported)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	fmt.Fprintln(w, titleStyle.Render("roundtrip"))
	printField(w, "Device", GetDeviceName(dev))
	printField(w, "Size", humanize.IBytes(uint64(len(data)*4)))
	printField(w, "Seed", seed)
	if report.OK() {
		printField(w, "Result", passStyle.Render("PASS"))
		return nil
	}
	printField(w, "Result", failStyle.Render(fmt.Sprintf("FAIL: %d elements changed", report.Count)))
	return errors.Errorf("round trip changed %d of %d elements", report.Count, report.Total)
}
