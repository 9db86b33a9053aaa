package quality

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/PoisonIvory/sagevoice/pkg/voice"
)

func sampleWith(duration, rms float64) voice.AudioSample {
	return voice.AudioSample{
		RecordingID:     "rec-1",
		DurationSeconds: duration,
		SampleRate:      16000,
		BitDepth:        16,
		ChannelCount:    1,
		RMS:             rms,
	}
}

func TestEstimateDurationGate(t *testing.T) {
	est := NewEstimator(nil)
	track := TrackSource{200, 210, 205}

	tests := []struct {
		name     string
		duration float64
		wantErr  bool
	}{
		{"too short", 0.4, true},
		{"at minimum", 0.5, false},
		{"typical", 5.0, false},
		{"at maximum", 30.0, false},
		{"too long", 30.1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := est.Estimate(context.Background(), sampleWith(tt.duration, 0.05), CaptureDevice, track)
			if tt.wantErr && !errors.Is(err, ErrInvalidDuration) {
				t.Errorf("error = %v, want ErrInvalidDuration", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("error = %v, want nil", err)
			}
		})
	}
}

// failingSource asserts the pitch source is never consulted.
type failingSource struct{ t *testing.T }

func (f failingSource) CoarsePitch(context.Context, voice.AudioSample) ([]float64, error) {
	f.t.Fatal("pitch source consulted after gate rejection")
	return nil, nil
}

func TestEstimateRejectsBeforePitchAnalysis(t *testing.T) {
	est := NewEstimator(nil)

	_, err := est.Estimate(context.Background(), sampleWith(5, 0.001), CaptureDevice, failingSource{t})
	if !errors.Is(err, ErrInsufficientSignalLevel) {
		t.Fatalf("error = %v, want ErrInsufficientSignalLevel", err)
	}
}

func TestEstimateVoicedBandFilter(t *testing.T) {
	est := NewEstimator(nil)
	// 4 voiced frames in band, 4 out of band (0 = unvoiced, 60 below, 600 above).
	track := TrackSource{200, 0, 210, 60, 205, 600, 215, 0}

	got, err := est.Estimate(context.Background(), sampleWith(5, 0.05), CaptureDevice, track)
	if err != nil {
		t.Fatalf("Estimate() error = %v", err)
	}

	wantMean := (200.0 + 210.0 + 205.0 + 215.0) / 4
	if math.Abs(got.Metrics.F0Mean-wantMean) > 1e-9 {
		t.Errorf("F0Mean = %v, want %v", got.Metrics.F0Mean, wantMean)
	}
	if math.Abs(got.Metrics.ConfidenceRatio-50) > 1e-9 {
		t.Errorf("ConfidenceRatio = %v, want 50 (4 of 8 frames voiced)", got.Metrics.ConfidenceRatio)
	}
	if got.Degraded {
		t.Error("Degraded = true for a normal-quality sample")
	}
	if got.Metrics.ComputedAt.IsZero() {
		t.Error("ComputedAt is zero")
	}
}

func TestEstimateDegradedDiscountsConfidence(t *testing.T) {
	est := NewEstimator(nil)
	track := TrackSource{200, 210, 205, 215} // fully voiced

	// Simulator RMS of 0.003 sits between the simulator floor (0.003) and
	// recovery level (0.005), so the estimate is degraded.
	got, err := est.Estimate(context.Background(), sampleWith(5, 0.003), CaptureSimulator, track)
	if err != nil {
		t.Fatalf("Estimate() error = %v", err)
	}
	if !got.Degraded {
		t.Fatal("Degraded = false, want true")
	}
	if math.Abs(got.Metrics.ConfidenceRatio-70) > 1e-9 {
		t.Errorf("ConfidenceRatio = %v, want 70 (100 × 0.7)", got.Metrics.ConfidenceRatio)
	}
}

func TestEstimateConfidenceNeverExceeds100(t *testing.T) {
	est := NewEstimator(nil)
	track := TrackSource{200, 210, 205, 215}

	got, err := est.Estimate(context.Background(), sampleWith(5, 0.5), CaptureDevice, track)
	if err != nil {
		t.Fatalf("Estimate() error = %v", err)
	}
	if got.Metrics.ConfidenceRatio > 100 {
		t.Errorf("ConfidenceRatio = %v, want <= 100", got.Metrics.ConfidenceRatio)
	}
}

func TestEstimateNoVoicedFrames(t *testing.T) {
	est := NewEstimator(nil)
	track := TrackSource{0, 0, 50, 700}

	_, err := est.Estimate(context.Background(), sampleWith(5, 0.05), CaptureDevice, track)
	if !errors.Is(err, ErrNoVoicedFrames) {
		t.Fatalf("error = %v, want ErrNoVoicedFrames", err)
	}
}

// errSource fails pitch extraction with a fixed error.
type errSource struct{ err error }

func (e errSource) CoarsePitch(context.Context, voice.AudioSample) ([]float64, error) {
	return nil, e.err
}

func TestEstimatePitchSourceError(t *testing.T) {
	est := NewEstimator(nil)
	cause := errors.New("tracker crashed")

	_, err := est.Estimate(context.Background(), sampleWith(5, 0.05), CaptureDevice, errSource{cause})
	if !errors.Is(err, cause) {
		t.Fatalf("error = %v, want wrapped %v", err, cause)
	}
}
