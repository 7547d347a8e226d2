package commands

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/MVittiS/Sdl3ComputeSample/internal/pipeline"
)

func newRunCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Add two random vectors on the device and verify the sum",
		Long: `Run uploads two vectors drawn uniformly from [-1, 1], dispatches the
vecadd kernel over them, downloads the result and compares it bit for bit
with the sum computed on the host.

The command fails if any element differs.`,
		Args: cobra.NoArgs,
		RunE: a.runRun,
	}

	f := cmd.Flags()
	f.Int("elements", pipeline.DefaultElements, "number of float32 elements per buffer")
	f.String("layout", "split", "buffer layout: split (inputs read-only) or readwrite")
	f.Uint32("workgroups", 0, "workgroup count (0 = enough to cover every element)")
	f.Duration("timeout", 0, "how long to wait for the device (0 = no limit)")
	f.Uint64("seed", 1, "input generator seed (0 = from the clock)")
	f.Int("max-reported", 10, "mismatches to report (-1 = all)")
	f.String("shader-dir", "", "directory with cs.* kernel binaries overriding the built-in ones")

	bindFlag(f, "elements", "pipeline.elements")
	bindFlag(f, "layout", "pipeline.layout")
	bindFlag(f, "workgroups", "pipeline.workgroup_count")
	bindFlag(f, "timeout", "pipeline.timeout")
	bindFlag(f, "seed", "pipeline.seed")
	bindFlag(f, "max-reported", "pipeline.max_reported")
	bindFlag(f, "shader-dir", "pipeline.shader_dir")
	return cmd
}

func (a *app) runRun(cmd *cobra.Command, args []string) error {
	pcfg, err := a.cfg.PipelineConfig()
	if err != nil {
		return err
	}

	dev, err := a.openDevice()
	if err != nil {
		return err
	}
	defer closeDevice(dev)

	res, err := pipeline.Run(cmd.Context(), dev, pcfg)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	fmt.Fprintln(w, titleStyle.Render("vecadd"))
	printField(w, "Device", GetDeviceName(dev))
	printField(w, "Kernel", fmt.Sprintf("%s, %s layout", res.Kernel, res.Layout))
	printField(w, "Elements", fmt.Sprintf("%s (%s per buffer)", humanize.Comma(int64(res.Elements)), humanize.IBytes(uint64(res.Bytes))))
	printField(w, "Workgroups", fmt.Sprintf("%d x %d (%s elements covered)", res.WorkgroupCount, res.Workgroup.X, humanize.Comma(int64(res.Covered()))))
	printField(w, "Seed", res.Seed)
	printField(w, "Device time", res.Elapsed)

	if res.Passed() {
		printField(w, "Result", passStyle.Render("PASS"))
		return nil
	}
	printField(w, "Result", failStyle.Render(fmt.Sprintf("FAIL: %s of %s elements differ",
		humanize.Comma(int64(res.Report.Count)), humanize.Comma(int64(res.Elements)))))
	for _, m := range res.Report.Mismatches {
		fmt.Fprintln(w, noteStyle.Render("  "+m.String()))
	}
	return errors.Errorf("verification failed: %d of %d elements differ", res.Report.Count, res.Elements)
}
