// Package pipeline drives the vecadd sample end to end: upload two vectors,
// add them on the device, download the sum and check it against the host.
package pipeline

import (
	"context"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"github.com/MVittiS/Sdl3ComputeSample/internal/gpu"
	"github.com/MVittiS/Sdl3ComputeSample/internal/kernels"
	"github.com/MVittiS/Sdl3ComputeSample/internal/logging"
	"github.com/MVittiS/Sdl3ComputeSample/internal/verify"
)

// DefaultElements is 1 MiB worth of float32s per buffer.
const DefaultElements = 262144

// Config parameterizes a run.
type Config struct {
	Elements int
	Layout   gpu.BufferLayout

	// WorkgroupCount overrides ceil(Elements / workgroup size) when non-zero.
	// A smaller value leaves the tail of the output untouched.
	WorkgroupCount uint32

	// Timeout bounds the host wait on the fence; zero blocks.
	Timeout time.Duration

	// MaxReported caps the mismatches kept in the report; -1 keeps all.
	MaxReported int

	// Seed feeds the input generator; zero picks one from the clock.
	Seed uint64

	// ShaderDir may hold cs.* binaries that take precedence over the embedded ones.
	ShaderDir string

	// InputA and InputB replace the generated inputs when both are set.
	InputA, InputB []float32
}

// DefaultConfig returns the configuration of the stock sample.
func DefaultConfig() Config {
	return Config{
		Elements:    DefaultElements,
		Layout:      gpu.LayoutSplit,
		MaxReported: verify.DefaultMaxReported,
		Seed:        1,
	}
}

// Result describes a completed run.
type Result struct {
	DeviceID       string
	Driver         string
	Adapter        string
	Kernel         string
	Format         gpu.ShaderFormat
	Layout         gpu.BufferLayout
	Elements       int
	Bytes          int64
	WorkgroupCount uint32
	Workgroup      gpu.WorkgroupShape
	Seed           uint64
	Elapsed        time.Duration
	Report         verify.Report
	Output         []float32
}

// Passed reports whether the device output matched the reference exactly.
func (r *Result) Passed() bool { return r.Report.OK() }

// Covered is the number of elements the dispatch reached.
func (r *Result) Covered() int {
	n := int(r.WorkgroupCount) * int(r.Workgroup.X)
	if n > r.Elements {
		return r.Elements
	}
	return n
}

// cleanups releases what a run created, newest first.
type cleanups []func() error

func (c *cleanups) add(fn func() error) { *c = append(*c, fn) }

func (c cleanups) run() error {
	var err error
	for i := len(c) - 1; i >= 0; i-- {
		err = multierr.Append(err, c[i]())
	}
	return err
}

// releaseFence waits out a fence that may still be pending and retires it.
// Submitted work cannot be cancelled, so resources it references are only
// released after this.
func releaseFence(f *gpu.Fence) error {
	if f.State() == gpu.FenceReleased {
		return nil
	}
	if f.State() == gpu.FencePending {
		// The wait error was already reported by the caller.
		_, _ = f.Wait(0)
	}
	return f.Release()
}

func deviceLog(dev *gpu.Device) *logrus.Entry {
	return logging.WithFields(logrus.Fields{
		"device": dev.ID().String()[:8],
		"driver": dev.Driver(),
	})
}

// ResolveSeed returns seed, or a seed taken from the clock when it is zero.
func ResolveSeed(seed uint64) uint64 {
	if seed != 0 {
		return seed
	}
	if now := uint64(time.Now().UnixNano()); now != 0 {
		return now
	}
	return 1
}

func inputs(cfg *Config) ([]float32, []float32, uint64, error) {
	if cfg.InputA != nil || cfg.InputB != nil {
		if len(cfg.InputA) != cfg.Elements || len(cfg.InputB) != cfg.Elements {
			return nil, nil, 0, errors.Errorf("inputs have %d and %d elements, want %d",
				len(cfg.InputA), len(cfg.InputB), cfg.Elements)
		}
		return cfg.InputA, cfg.InputB, cfg.Seed, nil
	}
	seed := ResolveSeed(cfg.Seed)
	return verify.RandomVector(cfg.Elements, seed), verify.RandomVector(cfg.Elements, seed+1), seed, nil
}

// Run executes the vecadd sample on dev. Any failure aborts the run before
// dependent steps; everything created is released on every path. A run whose
// output differs from the reference is not an error: check Result.Passed.
func Run(ctx context.Context, dev *gpu.Device, cfg Config) (res *Result, err error) {
	if cfg.Elements <= 0 {
		return nil, errors.Wrapf(gpu.ErrInvalidArgument, "element count %d", cfg.Elements)
	}
	log := deviceLog(dev)
	log.Infof("Using %s, shader formats %s", dev.Name(), dev.ShaderFormats())

	var c cleanups
	defer func() {
		err = multierr.Append(err, errors.Wrap(c.run(), "cleanup"))
	}()

	candidates, err := kernels.Load(cfg.ShaderDir, cfg.Layout)
	if err != nil {
		return nil, err
	}
	bin, err := kernels.Select(dev.ShaderFormats(), candidates)
	if err != nil {
		log.Warnf("No vecadd binary for this device: %v", err)
		return nil, err
	}

	prog, err := dev.CreateKernelProgram(kernels.VecAddProgram(bin, cfg.Layout))
	if err != nil {
		log.Errorf("Failed to create compute pipeline: %v", err)
		return nil, err
	}
	c.add(prog.Release)
	log.WithFields(logrus.Fields{
		"kernel":    bin.Source,
		"bindings":  prog.Bindings().String(),
		"workgroup": prog.Workgroup().String(),
	}).Info("Compute pipeline created")

	a, b, seed, err := inputs(&cfg)
	if err != nil {
		return nil, err
	}

	size := int64(cfg.Elements) * 4
	newStorage := func(access gpu.AccessIntent) (*gpu.StorageBuffer, error) {
		buf, err := dev.CreateStorageBuffer(size, access)
		if err == nil {
			c.add(buf.Release)
		}
		return buf, err
	}
	newStaging := func(dir gpu.TransferDirection) (*gpu.StagingBuffer, error) {
		buf, err := dev.CreateStagingBuffer(size, dir)
		if err == nil {
			c.add(buf.Release)
		}
		return buf, err
	}

	in1, err := newStorage(cfg.Layout.InputAccess())
	if err != nil {
		return nil, err
	}
	in2, err := newStorage(cfg.Layout.InputAccess())
	if err != nil {
		return nil, err
	}
	out, err := newStorage(cfg.Layout.OutputAccess())
	if err != nil {
		return nil, err
	}
	up1, err := newStaging(gpu.TransferUpload)
	if err != nil {
		return nil, err
	}
	up2, err := newStaging(gpu.TransferUpload)
	if err != nil {
		return nil, err
	}
	down, err := newStaging(gpu.TransferDownload)
	if err != nil {
		return nil, err
	}
	used, count := dev.MemoryUsage()
	log.Debugf("Allocated 6 buffers of %s (%s across %d live resources)",
		humanize.IBytes(uint64(size)), humanize.IBytes(uint64(used)), count)

	if err := gpu.UploadFloat32s(up1, a); err != nil {
		return nil, err
	}
	if err := gpu.UploadFloat32s(up2, b); err != nil {
		return nil, err
	}

	groups := cfg.WorkgroupCount
	if groups == 0 {
		groups = gpu.WorkgroupCount(cfg.Elements, prog.Workgroup().X)
	}

	seq, err := dev.Begin()
	if err != nil {
		return nil, err
	}
	if err := seq.RecordCopyIn(up1, in1, size); err != nil {
		return nil, err
	}
	if err := seq.RecordCopyIn(up2, in2, size); err != nil {
		return nil, err
	}
	if err := seq.RecordDispatch(prog, []*gpu.StorageBuffer{in1, in2, out}, groups, 1, 1); err != nil {
		return nil, err
	}
	if err := seq.RecordCopyOut(out, down, size); err != nil {
		return nil, err
	}

	fence, err := seq.Submit()
	if err != nil {
		return nil, err
	}
	c.add(func() error { return releaseFence(fence) })

	elapsed, err := wait(ctx, log, fence, cfg.Timeout)
	if err != nil {
		return nil, err
	}
	if err := fence.Release(); err != nil {
		return nil, err
	}

	got, err := gpu.DownloadFloat32s(down)
	if err != nil {
		return nil, err
	}
	expected, err := verify.Reference(a, b)
	if err != nil {
		return nil, err
	}
	report, err := verify.Compare(expected, got, cfg.MaxReported)
	if err != nil {
		return nil, err
	}

	res = &Result{
		DeviceID:       dev.ID().String(),
		Driver:         dev.Driver(),
		Adapter:        dev.Name(),
		Kernel:         bin.Source,
		Format:         bin.Format,
		Layout:         cfg.Layout,
		Elements:       cfg.Elements,
		Bytes:          size,
		WorkgroupCount: groups,
		Workgroup:      prog.Workgroup(),
		Seed:           seed,
		Elapsed:        elapsed,
		Report:         report,
		Output:         got,
	}
	logReport(log, res)
	return res, nil
}

// wait blocks on the fence, bounded by timeout when positive, and logs a tick
// on either side of the wait.
func wait(ctx context.Context, log *logrus.Entry, fence *gpu.Fence, timeout time.Duration) (time.Duration, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	before := time.Now()
	log.Debugf("Tick before wait: %d", before.UnixNano())
	if err := fence.WaitContext(ctx); err != nil {
		log.Errorf("Waiting for the device failed: %v", err)
		return 0, err
	}
	after := time.Now()
	log.Debugf("Tick after wait: %d (%s)", after.UnixNano(), after.Sub(before))
	return fence.Elapsed(), nil
}

func logReport(log *logrus.Entry, res *Result) {
	for _, m := range res.Report.Mismatches {
		log.Warnf("Mismatch at %s", m)
	}
	if res.Report.Truncated() {
		log.Warnf("... %d more mismatches not shown", res.Report.Count-len(res.Report.Mismatches))
	}
	if res.Passed() {
		log.Infof("Results match: %d elements verified in %s", res.Elements, res.Elapsed)
		return
	}
	log.Errorf("Results do not match: %d of %d elements differ", res.Report.Count, res.Elements)
}

// RoundTrip uploads data, copies it to a storage buffer and straight back
// without any dispatch, and returns what came back.
func RoundTrip(ctx context.Context, dev *gpu.Device, data []float32) (got []float32, err error) {
	if len(data) == 0 {
		return nil, errors.Wrap(gpu.ErrInvalidArgument, "round trip of no data")
	}
	log := deviceLog(dev)
	size := int64(len(data)) * 4

	var c cleanups
	defer func() {
		err = multierr.Append(err, errors.Wrap(c.run(), "cleanup"))
	}()

	buf, err := dev.CreateStorageBuffer(size, gpu.AccessReadWrite)
	if err != nil {
		return nil, err
	}
	c.add(buf.Release)
	up, err := dev.CreateStagingBuffer(size, gpu.TransferUpload)
	if err != nil {
		return nil, err
	}
	c.add(up.Release)
	down, err := dev.CreateStagingBuffer(size, gpu.TransferDownload)
	if err != nil {
		return nil, err
	}
	c.add(down.Release)

	if err := gpu.UploadFloat32s(up, data); err != nil {
		return nil, err
	}
	seq, err := dev.Begin()
	if err != nil {
		return nil, err
	}
	if err := seq.RecordCopyIn(up, buf, size); err != nil {
		return nil, err
	}
	if err := seq.RecordCopyOut(buf, down, size); err != nil {
		return nil, err
	}
	fence, err := seq.Submit()
	if err != nil {
		return nil, err
	}
	c.add(func() error { return releaseFence(fence) })

	if _, err := wait(ctx, log, fence, 0); err != nil {
		return nil, err
	}
	if err := fence.Release(); err != nil {
		return nil, err
	}
	got, err = gpu.DownloadFloat32s(down)
	if err != nil {
		return nil, err
	}
	log.Infof("Round trip of %s complete", humanize.IBytes(uint64(size)))
	return got, nil
}
