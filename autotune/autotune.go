// Package autotune picks, once per AutotunedKernelCall and under real
// launch conditions, the fastest of several candidate configurations for
// the same logical kernel. Selection is memoized with sync.Once rather
// than a lock-and-check map entry, since there is exactly one outcome to
// cache per call.
package autotune

import (
	"math"
	"sync"

	"github.com/orneryd/gpukernelcall/config"
	"github.com/orneryd/gpukernelcall/driver"
	"github.com/orneryd/gpukernelcall/kernel"
	"github.com/orneryd/gpukernelcall/kerr"
)

// Candidate is one configuration under consideration: a fully-formed
// kernel call plus a human-readable label for logging.
type Candidate struct {
	Call        *kernel.KernelCall
	Description string
}

// Alias marks a buffer that may be both read and written by every
// candidate. When InputBufferIdx and OutputBufferIdx resolve to the same
// device pointer, autotune backs up and restores its pre-call contents
// around selection, since the calibration and measurement passes mutate it
// as a side effect of actually launching each candidate. When the two
// indices resolve to distinct buffers, there is nothing aliased and no
// backup happens.
type Alias struct {
	InputBufferIdx  int
	OutputBufferIdx int
	SizeBytes       uint64
}

// AutotunedKernelCall holds several candidate configurations for one
// logical kernel and launches only the winner after the first call selects
// it. Selection runs exactly once for the life of the value.
type AutotunedKernelCall struct {
	Name    string
	Aliases []Alias
	Cfg     config.Autotune

	once     sync.Once
	onceErr  error
	configs  []Candidate
	iterUsed int
}

// NewAutotunedKernelCall builds an autotuned call over the given candidates.
// len(candidates) must be at least 1.
func NewAutotunedKernelCall(name string, candidates []Candidate, aliases []Alias, cfg config.Autotune) *AutotunedKernelCall {
	return &AutotunedKernelCall{
		Name:    name,
		Aliases: aliases,
		Cfg:     cfg,
		configs: candidates,
	}
}

// Winner returns the selected candidate's description, valid only after
// Launch has run the selection once. Exposed for tests and logging.
func (a *AutotunedKernelCall) Winner() string {
	if len(a.configs) == 0 {
		return ""
	}
	return a.configs[0].Description
}

// Iterations returns the timed iteration count the measurement pass used
// to pick the winner. Zero until selection has run; a single-candidate
// call never runs selection and always reports zero.
func (a *AutotunedKernelCall) Iterations() int {
	return a.iterUsed
}

// WinningCall returns the selected candidate's KernelCall, valid only
// after Launch has run the selection once (or immediately for a
// single-candidate call). Exposed for logging grid/block dims and
// shared-memory decisions after selection.
func (a *AutotunedKernelCall) WinningCall() *kernel.KernelCall {
	if len(a.configs) == 0 {
		return nil
	}
	return a.configs[0].Call
}

// Launch selects the fastest candidate on its first call (launching every
// candidate for real in the process) and memoizes that choice; every
// subsequent call launches only the winner.
func (a *AutotunedKernelCall) Launch(drv driver.Driver, stream driver.Stream, buffers []uintptr) error {
	if len(a.configs) == 0 {
		return kerr.InvalidArgumentf("autotuned kernel call %q has no candidate configurations", a.Name)
	}

	if len(a.configs) > 1 {
		a.once.Do(func() {
			a.onceErr = a.selectWinner(drv, stream, buffers)
		})
	}
	if a.onceErr != nil {
		return a.onceErr
	}
	return a.configs[0].Call.Launch(drv, stream, buffers)
}

func (a *AutotunedKernelCall) selectWinner(drv driver.Driver, stream driver.Stream, buffers []uintptr) (err error) {
	ctx, err := drv.CurrentContext(stream)
	if err != nil {
		return kerr.Devicef(err, "resolving context for autotune of %q", a.Name)
	}
	if err := drv.PushContext(ctx); err != nil {
		return kerr.Devicef(err, "pushing context for autotune of %q", a.Name)
	}
	defer drv.PopContext()

	backups, err := a.backupAliases(drv, stream, buffers)
	if err != nil {
		return err
	}
	defer func() {
		if syncErr := a.restoreAliases(drv, stream, buffers, backups); syncErr != nil && err == nil {
			err = kerr.Devicef(syncErr, "synchronizing after autotune of %q", a.Name)
		}
	}()

	calibration := make([]float64, len(a.configs))
	for i, c := range a.configs {
		ms, err := Benchmark(drv, stream, buffers, c.Call, 1)
		if err != nil {
			return kerr.Devicef(err, "calibrating candidate %q for %q", c.Description, a.Name)
		}
		calibration[i] = ms
	}

	best := calibration[0]
	for _, ms := range calibration[1:] {
		if ms < best {
			best = ms
		}
	}
	iters := timedIterations(best, a.Cfg)
	a.iterUsed = iters

	elapsed := make([]float64, len(a.configs))
	for i, c := range a.configs {
		ms, err := Benchmark(drv, stream, buffers, c.Call, iters)
		if err != nil {
			return kerr.Devicef(err, "measuring candidate %q for %q", c.Description, a.Name)
		}
		elapsed[i] = ms
	}

	winner := 0
	for i := 1; i < len(elapsed); i++ {
		if elapsed[i] < elapsed[winner] {
			winner = i
		}
	}
	if winner != 0 {
		a.configs[0], a.configs[winner] = a.configs[winner], a.configs[0]
	}
	a.configs = a.configs[:1]
	return nil
}

// timedIterations computes the measurement pass's iteration count from a
// calibration time: enough iterations to fill the configured budget,
// always at least one, never more than the configured cap.
func timedIterations(bestCalibrationMillis float64, cfg config.Autotune) int {
	if bestCalibrationMillis <= 0 || math.IsInf(bestCalibrationMillis, 0) {
		return cfg.MaxIterations
	}
	iters := int(math.Floor(cfg.CalibrationBudgetMillis / bestCalibrationMillis))
	if iters < 1 {
		iters = 1
	}
	if iters > cfg.MaxIterations {
		iters = cfg.MaxIterations
	}
	return iters
}

type aliasBackup struct {
	alias Alias
	host  []byte
}

func (a *AutotunedKernelCall) backupAliases(drv driver.Driver, stream driver.Stream, buffers []uintptr) ([]aliasBackup, error) {
	backups := make([]aliasBackup, 0, len(a.Aliases))
	for _, al := range a.Aliases {
		if al.InputBufferIdx < 0 || al.InputBufferIdx >= len(buffers) {
			return nil, kerr.InvalidArgumentf("alias input buffer index %d out of range", al.InputBufferIdx)
		}
		if al.OutputBufferIdx < 0 || al.OutputBufferIdx >= len(buffers) {
			return nil, kerr.InvalidArgumentf("alias output buffer index %d out of range", al.OutputBufferIdx)
		}
		if buffers[al.InputBufferIdx] != buffers[al.OutputBufferIdx] {
			// Input and output are distinct buffers: nothing aliases, so
			// there is nothing for calibration/measurement to clobber.
			continue
		}
		host := getStagingBuf(int(al.SizeBytes))
		if err := drv.MemcpyDtoHAsync(stream, host, buffers[al.InputBufferIdx]); err != nil {
			return nil, kerr.Devicef(err, "backing up aliased buffer %d", al.InputBufferIdx)
		}
		backups = append(backups, aliasBackup{alias: al, host: host})
	}
	return backups, nil
}

// restoreAliases enqueues the copy of each backup to its device input,
// synchronizes stream so those copies have completed, and only then returns
// the staging buffers to the pool.
func (a *AutotunedKernelCall) restoreAliases(drv driver.Driver, stream driver.Stream, buffers []uintptr, backups []aliasBackup) error {
	for _, b := range backups {
		_ = drv.MemcpyHtoDAsync(stream, buffers[b.alias.InputBufferIdx], b.host)
	}
	err := drv.StreamSynchronize(stream)
	for _, b := range backups {
		putStagingBuf(b.host)
	}
	return err
}

// Benchmark times n launches of call after one untimed warm-up launch,
// returning the total elapsed milliseconds for the n timed launches.
func Benchmark(drv driver.Driver, stream driver.Stream, buffers []uintptr, call *kernel.KernelCall, n int) (float64, error) {
	if err := call.Launch(drv, stream, buffers); err != nil {
		return 0, err
	}

	start, err := drv.CreateEvent()
	if err != nil {
		return 0, err
	}
	defer drv.DestroyEvent(start)
	stop, err := drv.CreateEvent()
	if err != nil {
		return 0, err
	}
	defer drv.DestroyEvent(stop)

	if err := drv.RecordEvent(start, stream); err != nil {
		return 0, err
	}
	for i := 0; i < n; i++ {
		if err := call.Launch(drv, stream, buffers); err != nil {
			return 0, err
		}
	}
	if err := drv.RecordEvent(stop, stream); err != nil {
		return 0, err
	}
	if err := drv.SynchronizeEvent(stop); err != nil {
		return 0, err
	}
	return drv.ElapsedMillis(start, stop)
}
