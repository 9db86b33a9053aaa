package clinical

import (
	"fmt"
	"strings"

	"github.com/PoisonIvory/sagevoice/pkg/voice"
)

// Stable check names carried in rejection reasons and observability events.
const (
	CheckF0Confidence = "f0_confidence"
	CheckF0Range      = "f0_range"
	CheckVoicedRatio  = "voiced_ratio"
	CheckDuration     = "duration"
	CheckJitterLocal  = "jitter_local"
	CheckJitterRAP    = "jitter_rap"
	CheckJitterPPQ5   = "jitter_ppq5"
	CheckShimmerLocal = "shimmer_local"
	CheckShimmerAPQ3  = "shimmer_apq3"
	CheckShimmerAPQ5  = "shimmer_apq5"
	CheckHNRMean      = "hnr_mean"
	CheckHNRStd       = "hnr_std"
)

// CheckResult is the evaluation of a single clinical check.
type CheckResult struct {
	// Name is the stable check identifier.
	Name string

	// Passed reports whether the biomarker satisfied the threshold.
	Passed bool

	// Detail is a human-readable measured-vs-threshold description.
	Detail string
}

// Outcome is the full validation verdict for one biomarker set. A rejection
// is data, not an error: the biomarkers remain available for display even
// when they do not qualify as a baseline.
type Outcome struct {
	// Accepted is true when every check passed.
	Accepted bool

	// Confidence is passed-checks / total-checks × 100. Display only;
	// pass/fail is determined solely by Accepted.
	Confidence float64

	// Checks lists every evaluated check in a fixed order.
	Checks []CheckResult

	// FailedChecks lists the names of checks that failed, in evaluation
	// order. Empty when Accepted.
	FailedChecks []string
}

// Reason returns a single string naming every failed check with its detail.
// Empty when the outcome is accepted.
func (o Outcome) Reason() string {
	if o.Accepted {
		return ""
	}
	details := make([]string, 0, len(o.FailedChecks))
	for _, c := range o.Checks {
		if !c.Passed {
			details = append(details, c.Detail)
		}
	}
	return strings.Join(details, "; ")
}

// Validator scores completed biomarker sets against demographic thresholds.
// Stateless and safe for concurrent use.
type Validator struct {
	provider *Provider
}

// NewValidator creates a Validator over the given threshold provider.
func NewValidator(provider *Provider) *Validator {
	return &Validator{provider: provider}
}

// Validate evaluates every clinical check independently and returns the
// aggregate outcome. All checks run even after a failure so the rejection
// reason names every failed check, not just the first.
func (v *Validator) Validate(b voice.VocalBiomarkers, demographic voice.Demographic) Outcome {
	t := v.provider.Thresholds(demographic)

	checks := []CheckResult{
		check(CheckF0Confidence,
			b.F0.ConfidenceRatio >= t.MinimumF0Confidence,
			"%s: confidence %.1f below minimum %.1f",
			b.F0.ConfidenceRatio, t.MinimumF0Confidence),
		check(CheckF0Range,
			b.F0.InRange(t.F0Range.Min, t.F0Range.Max),
			"%s: f0 mean %.1f Hz outside [%.0f, %.0f]",
			b.F0.Mean, t.F0Range.Min, t.F0Range.Max),
		check(CheckVoicedRatio,
			b.Metadata.VoicedRatio >= t.MinimumVoicedRatio,
			"%s: voiced ratio %.2f below minimum %.2f",
			b.Metadata.VoicedRatio, t.MinimumVoicedRatio),
		check(CheckDuration,
			b.Metadata.RecordingDurationSeconds >= t.MinimumRecordingDuration,
			"%s: recording duration %.1fs below minimum %.1fs",
			b.Metadata.RecordingDurationSeconds, t.MinimumRecordingDuration),
		check(CheckJitterLocal,
			b.Quality.Jitter.Local <= t.Jitter.MaxLocal,
			"%s: jitter %.2f%% above maximum %.2f%%",
			b.Quality.Jitter.Local, t.Jitter.MaxLocal),
		check(CheckJitterRAP,
			b.Quality.Jitter.RAP <= t.Jitter.MaxRAP,
			"%s: rap %.2f%% above maximum %.2f%%",
			b.Quality.Jitter.RAP, t.Jitter.MaxRAP),
		check(CheckJitterPPQ5,
			b.Quality.Jitter.PPQ5 <= t.Jitter.MaxPPQ5,
			"%s: ppq5 %.2f%% above maximum %.2f%%",
			b.Quality.Jitter.PPQ5, t.Jitter.MaxPPQ5),
		check(CheckShimmerLocal,
			b.Quality.Shimmer.Local <= t.Shimmer.MaxLocal,
			"%s: shimmer %.2f%% above maximum %.2f%%",
			b.Quality.Shimmer.Local, t.Shimmer.MaxLocal),
		check(CheckShimmerAPQ3,
			b.Quality.Shimmer.APQ3 <= t.Shimmer.MaxAPQ3,
			"%s: apq3 %.2f%% above maximum %.2f%%",
			b.Quality.Shimmer.APQ3, t.Shimmer.MaxAPQ3),
		check(CheckShimmerAPQ5,
			b.Quality.Shimmer.APQ5 <= t.Shimmer.MaxAPQ5,
			"%s: apq5 %.2f%% above maximum %.2f%%",
			b.Quality.Shimmer.APQ5, t.Shimmer.MaxAPQ5),
		check(CheckHNRMean,
			b.Quality.HNR.Mean >= t.HNR.MinMean,
			"%s: hnr mean %.1f dB below minimum %.1f dB",
			b.Quality.HNR.Mean, t.HNR.MinMean),
		check(CheckHNRStd,
			b.Quality.HNR.Std <= t.HNR.MaxStd,
			"%s: hnr std %.1f dB above maximum %.1f dB",
			b.Quality.HNR.Std, t.HNR.MaxStd),
	}

	passed := 0
	var failed []string
	for _, c := range checks {
		if c.Passed {
			passed++
		} else {
			failed = append(failed, c.Name)
		}
	}

	return Outcome{
		Accepted:     len(failed) == 0,
		Confidence:   float64(passed) / float64(len(checks)) * 100,
		Checks:       checks,
		FailedChecks: failed,
	}
}

// check builds a CheckResult. The detail format receives the check name
// first, then the measured/threshold values.
func check(name string, passed bool, format string, args ...any) CheckResult {
	detail := ""
	if !passed {
		fmtArgs := append([]any{name}, args...)
		detail = fmt.Sprintf(format, fmtArgs...)
	}
	return CheckResult{Name: name, Passed: passed, Detail: detail}
}
