// Package quality implements the pre-analysis quality gate and the fast
// local F0 estimator.
//
// The gate is a pure decision function over aggregate signal statistics: it
// either rejects a recording outright, lets it through unchanged, or flags
// it as degraded so that downstream confidence scores are discounted. The
// estimator produces the low-precision [voice.BasicVoiceMetrics] surfaced to
// the user while the external engine runs the full analysis.
//
// Neither component performs network or persistence side effects.
package quality

import "errors"

// CaptureContext identifies the environment the recording was captured in.
// Simulated microphones produce systematically lower signal energy, so the
// simulator context uses lower RMS floors.
type CaptureContext string

const (
	CaptureDevice    CaptureContext = "device"
	CaptureSimulator CaptureContext = "simulator"
)

// IsValid reports whether c is a recognised capture context.
func (c CaptureContext) IsValid() bool {
	return c == CaptureDevice || c == CaptureSimulator
}

// Outcome is the quality gate decision for a recording.
type Outcome int

const (
	// OutcomeReject means the signal is too quiet to analyse at all. The
	// pipeline must short-circuit with [ErrInsufficientSignalLevel] before
	// any estimator runs.
	OutcomeReject Outcome = iota

	// OutcomeDegraded means the signal is usable but weak; downstream
	// confidence scores are multiplied by [DegradedConfidenceFactor].
	OutcomeDegraded

	// OutcomeNormal means the signal passed both floors.
	OutcomeNormal
)

// String returns the lowercase name of the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeReject:
		return "reject"
	case OutcomeDegraded:
		return "degraded"
	default:
		return "normal"
	}
}

// DegradedConfidenceFactor is applied to confidence scores computed from a
// degraded-quality recording.
const DegradedConfidenceFactor = 0.7

// ErrInsufficientSignalLevel is returned when the gate rejects a recording.
// It is user-actionable (re-record), never retried.
var ErrInsufficientSignalLevel = errors.New("quality: insufficient signal level")

// GateThresholds holds the two RMS floors for one capture context.
// MinimumRMS is the hard floor: below it the recording is rejected.
// WarningRecoveryRMS is the soft ceiling of the degraded band: at or above
// it the recording is treated as normal. MinimumRMS < WarningRecoveryRMS.
type GateThresholds struct {
	MinimumRMS         float64
	WarningRecoveryRMS float64
}

// Default RMS floors per capture context. Simulator floors are half the
// device floors to compensate for the lower energy of simulated microphones.
var (
	DefaultDeviceThresholds    = GateThresholds{MinimumRMS: 0.006, WarningRecoveryRMS: 0.010}
	DefaultSimulatorThresholds = GateThresholds{MinimumRMS: 0.003, WarningRecoveryRMS: 0.005}
)

// Gate is the pure quality-gate decision function. The zero value is not
// usable; construct with [NewGate] or [DefaultGate].
type Gate struct {
	device    GateThresholds
	simulator GateThresholds
}

// NewGate creates a Gate with explicit per-context thresholds. Zero-valued
// threshold sets fall back to the defaults for that context.
func NewGate(device, simulator GateThresholds) *Gate {
	if device == (GateThresholds{}) {
		device = DefaultDeviceThresholds
	}
	if simulator == (GateThresholds{}) {
		simulator = DefaultSimulatorThresholds
	}
	return &Gate{device: device, simulator: simulator}
}

// DefaultGate returns a Gate using the default floors for both contexts.
func DefaultGate() *Gate {
	return NewGate(DefaultDeviceThresholds, DefaultSimulatorThresholds)
}

// Thresholds returns the floors applied for the given capture context.
// Unknown contexts resolve to the device floors, the stricter of the two.
func (g *Gate) Thresholds(capture CaptureContext) GateThresholds {
	if capture == CaptureSimulator {
		return g.simulator
	}
	return g.device
}

// Evaluate applies the two-threshold decision for the given context:
//
//	rms < MinimumRMS                         → reject
//	MinimumRMS <= rms < WarningRecoveryRMS   → degraded
//	rms >= WarningRecoveryRMS                → normal
//
// Evaluate is a pure function and is safe for concurrent use.
func (g *Gate) Evaluate(rms float64, capture CaptureContext) Outcome {
	t := g.Thresholds(capture)
	switch {
	case rms < t.MinimumRMS:
		return OutcomeReject
	case rms < t.WarningRecoveryRMS:
		return OutcomeDegraded
	default:
		return OutcomeNormal
	}
}
