// Package config holds the runtime's tunable constants, made overridable
// so tests can exercise the edges cheaply instead of hardcoding them.
package config

// Autotune holds the knobs for the autotuning protocol.
type Autotune struct {
	// CalibrationBudgetMillis is the target wall-clock budget used to pick
	// the timed iteration count: iterations = budget / bestCalibrationTime.
	CalibrationBudgetMillis float64
	// MaxIterations caps the computed iteration count regardless of budget.
	MaxIterations int
}

// DefaultAutotune returns the default autotuning knobs: a 10ms calibration
// budget capped at 100 timed iterations per candidate.
func DefaultAutotune() Autotune {
	return Autotune{
		CalibrationBudgetMillis: 10.0,
		MaxIterations:           100,
	}
}
