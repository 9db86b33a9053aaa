package quality

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/PoisonIvory/sagevoice/pkg/voice"
)

// Recording duration bounds enforced before any estimation work. Shorter
// clips carry too few voiced cycles to analyse; longer ones exceed the
// engine's processing budget.
const (
	MinDurationSeconds = 0.5
	MaxDurationSeconds = 30.0
)

// Voiced F0 band in Hz. Coarse pitch frames outside this band are treated
// as unvoiced.
const (
	MinF0Hz = 75.0
	MaxF0Hz = 500.0
)

// defaultEstimateBudget bounds the wall time of a single local estimate.
const defaultEstimateBudget = 5 * time.Second

// ErrInvalidDuration is returned when the recording is shorter than
// [MinDurationSeconds] or longer than [MaxDurationSeconds].
var ErrInvalidDuration = errors.New("quality: recording duration out of range")

// ErrNoVoicedFrames is returned when the coarse pitch track contains no
// frames inside the voiced band.
var ErrNoVoicedFrames = errors.New("quality: no voiced frames in recording")

// PitchSource supplies a coarse per-frame pitch track for a sample. The
// acoustic math itself is owned by the capture collaborator (on-device
// trackers) or by test doubles; the estimator only filters and aggregates
// the track. A frame value of 0 means unvoiced.
//
// Implementations must respect ctx cancellation and must not block beyond
// the estimator's wall-time budget.
type PitchSource interface {
	CoarsePitch(ctx context.Context, sample voice.AudioSample) ([]float64, error)
}

// TrackSource is a PitchSource over a pre-computed pitch track, as submitted
// by the capture layer alongside the sample statistics.
type TrackSource []float64

// CoarsePitch returns the stored track unchanged.
func (t TrackSource) CoarsePitch(_ context.Context, _ voice.AudioSample) ([]float64, error) {
	return t, nil
}

// Estimate is the outcome of the local analysis phase. Degraded records
// whether the quality gate discounted the confidence, so the orchestrator
// can carry the warning through to the final result.
type Estimate struct {
	Metrics  voice.BasicVoiceMetrics
	Degraded bool
}

// Estimator computes the fast local F0 estimate for a recording. It runs
// the quality gate first and never performs network or persistence side
// effects. Safe for concurrent use.
type Estimator struct {
	gate   *Gate
	budget time.Duration
}

// NewEstimator creates an Estimator using the given gate. A nil gate uses
// [DefaultGate].
func NewEstimator(gate *Gate) *Estimator {
	if gate == nil {
		gate = DefaultGate()
	}
	return &Estimator{gate: gate, budget: defaultEstimateBudget}
}

// Estimate runs the quality gate and, when the sample passes, aggregates the
// coarse pitch track into [voice.BasicVoiceMetrics].
//
// A gate rejection returns [ErrInsufficientSignalLevel] before the pitch
// source is consulted. A degraded outcome multiplies the confidence ratio by
// [DegradedConfidenceFactor] and is reported via [Estimate.Degraded].
// Confidence never exceeds 100.
func (e *Estimator) Estimate(ctx context.Context, sample voice.AudioSample, capture CaptureContext, pitch PitchSource) (Estimate, error) {
	if sample.DurationSeconds < MinDurationSeconds || sample.DurationSeconds > MaxDurationSeconds {
		return Estimate{}, fmt.Errorf("%w: %.2fs not in [%.1f, %.1f]",
			ErrInvalidDuration, sample.DurationSeconds, MinDurationSeconds, MaxDurationSeconds)
	}

	outcome := e.gate.Evaluate(sample.RMS, capture)
	if outcome == OutcomeReject {
		return Estimate{}, fmt.Errorf("%w: rms=%.4f below %s floor",
			ErrInsufficientSignalLevel, sample.RMS, capture)
	}

	ctx, cancel := context.WithTimeout(ctx, e.budget)
	defer cancel()

	track, err := pitch.CoarsePitch(ctx, sample)
	if err != nil {
		return Estimate{}, fmt.Errorf("quality: coarse pitch: %w", err)
	}

	voiced := make([]float64, 0, len(track))
	for _, f0 := range track {
		if f0 >= MinF0Hz && f0 <= MaxF0Hz {
			voiced = append(voiced, f0)
		}
	}
	if len(voiced) == 0 {
		return Estimate{}, ErrNoVoicedFrames
	}

	mean := meanOf(voiced)
	confidence := float64(len(voiced)) / float64(len(track)) * 100
	if outcome == OutcomeDegraded {
		confidence *= DegradedConfidenceFactor
	}
	if confidence > 100 {
		confidence = 100
	}

	return Estimate{
		Metrics: voice.BasicVoiceMetrics{
			F0Mean:          mean,
			F0Std:           stdOf(voiced, mean),
			ConfidenceRatio: confidence,
			ComputedAt:      time.Now().UTC(),
		},
		Degraded: outcome == OutcomeDegraded,
	}, nil
}

func meanOf(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stdOf(values []float64, mean float64) float64 {
	if len(values) < 2 {
		return 0
	}
	var sq float64
	for _, v := range values {
		d := v - mean
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(values)))
}
