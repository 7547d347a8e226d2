package gpu

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// FenceState is the lifecycle of a completion fence.
type FenceState int

const (
	FencePending FenceState = iota
	FenceSignaled
	FenceReleased
)

func (s FenceState) String() string {
	switch s {
	case FencePending:
		return "pending"
	case FenceSignaled:
		return "signaled"
	case FenceReleased:
		return "released"
	default:
		return "unknown"
	}
}

// Fence is the completion token of a submitted sequence. It signals exactly
// once, when every recorded operation has retired, and must be released
// exactly once after that.
type Fence struct {
	dev         *Device
	df          driverFence
	refs        []*resourceState
	signaled    chan struct{}
	submittedAt time.Time

	// Guarded by dev.mu.
	state      FenceState
	err        error
	signaledAt time.Time
}

// settle waits for the driver and drops the in-flight references, so that
// once signaled is closed the host may map and release what the sequence used.
func (f *Fence) settle() {
	<-f.df.done()
	d := f.dev
	d.mu.Lock()
	for _, r := range f.refs {
		r.inFlight--
	}
	if err := f.df.err(); err != nil {
		f.err = d.markLost(err)
	}
	f.state = FenceSignaled
	f.signaledAt = time.Now()
	delete(d.pending, f)
	d.mu.Unlock()
	close(f.signaled)
}

// State returns the current fence state.
func (f *Fence) State() FenceState {
	f.dev.mu.Lock()
	defer f.dev.mu.Unlock()
	return f.state
}

// Elapsed returns the time between submission and signaling, or zero while pending.
func (f *Fence) Elapsed() time.Duration {
	f.dev.mu.Lock()
	defer f.dev.mu.Unlock()
	if f.signaledAt.IsZero() {
		return 0
	}
	return f.signaledAt.Sub(f.submittedAt)
}

func (f *Fence) checkWaitable() error {
	f.dev.mu.Lock()
	defer f.dev.mu.Unlock()
	if f.state == FenceReleased {
		return errors.Wrap(ErrInvalidState, "wait on a released fence")
	}
	return nil
}

func (f *Fence) result() error {
	f.dev.mu.Lock()
	defer f.dev.mu.Unlock()
	return f.err
}

// Wait blocks until the fence signals or timeout elapses; timeout <= 0 blocks
// without limit. It returns true once signaled. A non-nil error wrapping
// ErrDeviceLost means the work did not complete.
func (f *Fence) Wait(timeout time.Duration) (bool, error) {
	if err := f.checkWaitable(); err != nil {
		return false, err
	}
	if timeout <= 0 {
		<-f.signaled
		return true, f.result()
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-f.signaled:
		return true, f.result()
	case <-timer.C:
		return false, nil
	}
}

// WaitContext blocks until the fence signals or ctx is done. Cancelling ctx
// only stops the host from waiting; submitted work still runs to completion.
func (f *Fence) WaitContext(ctx context.Context) error {
	if err := f.checkWaitable(); err != nil {
		return err
	}
	select {
	case <-f.signaled:
		return f.result()
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "waiting on fence")
	}
}

// Release retires the fence. Releasing a pending or already released fence
// is ErrInvalidState.
func (f *Fence) Release() error {
	f.dev.mu.Lock()
	defer f.dev.mu.Unlock()
	switch f.state {
	case FencePending:
		return errors.Wrap(ErrInvalidState, "release of a pending fence")
	case FenceReleased:
		return errors.Wrap(ErrInvalidState, "fence already released")
	}
	f.state = FenceReleased
	f.refs = nil
	return nil
}
