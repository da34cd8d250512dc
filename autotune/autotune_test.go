package autotune

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/gpukernelcall/config"
	"github.com/orneryd/gpukernelcall/driver"
	"github.com/orneryd/gpukernelcall/driver/fake"
	"github.com/orneryd/gpukernelcall/image"
	"github.com/orneryd/gpukernelcall/kernel"
)

type stubCompiler struct{}

func (stubCompiler) Compile(ccMajor, ccMinor int, kernelName, asmText string) ([]byte, error) {
	return []byte("cubin:" + kernelName), nil
}

func newCandidate(t *testing.T, cache *image.Cache, name string) kernel.KernelCall {
	t.Helper()
	return kernel.KernelCall{
		Kernel: kernel.NewKernel(cache, name, 4, 0, "; ptx "+name, 80),
		Grid:   [3]uint32{1, 1, 1},
	}
}

func TestAutotunedKernelCall_PicksFasterCandidate(t *testing.T) {
	drv := fake.New()
	cache := image.NewCache(stubCompiler{})
	stream := driver.Stream(1)

	slow := newCandidate(t, cache, "slow_kernel")
	fast := newCandidate(t, cache, "fast_kernel")

	// Resolve each candidate's function handle once so its simulated
	// per-launch latency can be configured before autotuning measures it.
	require.NoError(t, slow.Launch(drv, stream, nil))
	require.NoError(t, fast.Launch(drv, stream, nil))
	drv.SetLatency(drv.LaunchLog[0].Function, 5.0)
	drv.SetLatency(drv.LaunchLog[1].Function, 0.5)

	atc := NewAutotunedKernelCall("demo", []Candidate{
		{Call: &slow, Description: "slow"},
		{Call: &fast, Description: "fast"},
	}, nil, config.DefaultAutotune())

	require.NoError(t, atc.Launch(drv, stream, nil))
	assert.Equal(t, "fast", atc.Winner())
}

func TestAutotunedKernelCall_TieBreaksToEarlierIndex(t *testing.T) {
	drv := fake.New()
	cache := image.NewCache(stubCompiler{})

	a := newCandidate(t, cache, "kernel_a")
	b := newCandidate(t, cache, "kernel_b")

	atc := NewAutotunedKernelCall("tie", []Candidate{
		{Call: &a, Description: "a"},
		{Call: &b, Description: "b"},
	}, nil, config.DefaultAutotune())

	require.NoError(t, atc.Launch(drv, driver.Stream(1), nil))
	assert.Equal(t, "a", atc.Winner())
}

func TestAutotunedKernelCall_SelectsOnceOnly(t *testing.T) {
	drv := fake.New()
	cache := image.NewCache(stubCompiler{})

	a := newCandidate(t, cache, "kernel_a")
	b := newCandidate(t, cache, "kernel_b")

	atc := NewAutotunedKernelCall("once", []Candidate{
		{Call: &a, Description: "a"},
		{Call: &b, Description: "b"},
	}, nil, config.DefaultAutotune())

	stream := driver.Stream(1)
	require.NoError(t, atc.Launch(drv, stream, nil))
	winner := atc.Winner()
	launchesAfterFirst := drv.Launches

	require.NoError(t, atc.Launch(drv, stream, nil))
	assert.Equal(t, winner, atc.Winner())
	assert.EqualValues(t, launchesAfterFirst+1, drv.Launches, "subsequent calls only launch the winner")
}

func TestAutotunedKernelCall_SingleCandidateSkipsSelection(t *testing.T) {
	drv := fake.New()
	cache := image.NewCache(stubCompiler{})
	only := newCandidate(t, cache, "only_kernel")

	atc := NewAutotunedKernelCall("single", []Candidate{
		{Call: &only, Description: "only"},
	}, nil, config.DefaultAutotune())

	require.NoError(t, atc.Launch(drv, driver.Stream(1), nil))
	assert.EqualValues(t, 1, drv.Launches)
}

func TestAutotunedKernelCall_BackupAndRestoreAliasedBuffer(t *testing.T) {
	drv := fake.New()
	buffers := []uintptr{0x2000}
	original := []byte{1, 2, 3, 4}
	drv.DeviceBuffers[buffers[0]] = append([]byte(nil), original...)

	atc := &AutotunedKernelCall{
		Aliases: []Alias{{InputBufferIdx: 0, OutputBufferIdx: 0, SizeBytes: 4}},
	}

	backups, err := atc.backupAliases(drv, driver.Stream(1), buffers)
	require.NoError(t, err)

	// Simulate calibration/measurement mutating the aliased buffer in place.
	drv.DeviceBuffers[buffers[0]] = []byte{9, 9, 9, 9}

	atc.restoreAliases(drv, driver.Stream(1), buffers, backups)
	assert.Equal(t, original, drv.DeviceBuffers[buffers[0]][:4])
}

func TestAutotunedKernelCall_SkipsBackupWhenInputAndOutputDiffer(t *testing.T) {
	drv := fake.New()
	buffers := []uintptr{0x3000, 0x4000}
	drv.DeviceBuffers[buffers[0]] = []byte{1, 2, 3, 4}
	drv.DeviceBuffers[buffers[1]] = []byte{5, 6, 7, 8}

	atc := &AutotunedKernelCall{
		Aliases: []Alias{{InputBufferIdx: 0, OutputBufferIdx: 1, SizeBytes: 4}},
	}

	backups, err := atc.backupAliases(drv, driver.Stream(1), buffers)
	require.NoError(t, err)
	assert.Empty(t, backups, "distinct input/output buffers are not aliased and need no backup")
}

func TestTimedIterations(t *testing.T) {
	cfg := config.Autotune{CalibrationBudgetMillis: 10, MaxIterations: 100}

	t.Run("capped at max iterations", func(t *testing.T) {
		assert.Equal(t, 100, timedIterations(0.001, cfg))
	})
	t.Run("floor of budget over best, minimum one", func(t *testing.T) {
		assert.Equal(t, 5, timedIterations(2.0, cfg))
	})
	t.Run("never less than one", func(t *testing.T) {
		assert.Equal(t, 1, timedIterations(50.0, cfg))
	})
	t.Run("non-positive calibration time falls back to max", func(t *testing.T) {
		assert.Equal(t, 100, timedIterations(0, cfg))
	})
}
