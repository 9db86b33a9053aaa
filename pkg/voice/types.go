// Package voice defines the core data model for vocal biomarker analysis:
// audio sample statistics, the fast local estimate, the full biomarker set
// produced by the external analysis engine, demographic categories, and the
// parsing of engine feature maps.
//
// All result types in this package are value types and are treated as
// immutable once produced. Analyses follow an append-only history model:
// a value is never mutated after creation; a new analysis produces a new
// value.
package voice

import "time"

// AudioSample carries the signal statistics of a captured recording. It is
// produced by the capture collaborator and is a read-only input to the
// analysis pipeline; this package never mutates it.
type AudioSample struct {
	// RecordingID uniquely identifies the recording this sample belongs to.
	RecordingID string

	// DurationSeconds is the total recording length in seconds.
	DurationSeconds float64

	// SampleRate in Hz (e.g., 16000 for the default capture pipeline).
	SampleRate int

	// BitDepth of the encoded audio (e.g., 16).
	BitDepth int

	// ChannelCount: 1 for mono capture, 2 for stereo.
	ChannelCount int

	// FramePowers is the ordered, time-indexed per-frame signal power
	// sequence computed during capture.
	FramePowers []float64

	// RMS is the aggregate root-mean-square signal energy of the whole
	// recording, used as a loudness proxy by the quality gate.
	RMS float64
}

// BasicVoiceMetrics is the fast, low-precision result of the local analysis
// phase. It is produced once per recording and published to observers before
// the cloud phase begins.
type BasicVoiceMetrics struct {
	// F0Mean is the coarse fundamental frequency estimate in Hz.
	F0Mean float64

	// F0Std is the standard deviation of the coarse F0 track in Hz.
	F0Std float64

	// ConfidenceRatio expresses how much of the recording was voiced,
	// scaled to 0–100. Never exceeds 100.
	ConfidenceRatio float64

	// ComputedAt is when the local phase finished.
	ComputedAt time.Time
}

// StabilityLevel is a coarse band describing how stable the F0 track is.
type StabilityLevel int

const (
	StabilityLow StabilityLevel = iota
	StabilityMedium
	StabilityHigh
)

// String returns the lowercase name of the level.
func (l StabilityLevel) String() string {
	switch l {
	case StabilityHigh:
		return "high"
	case StabilityMedium:
		return "medium"
	default:
		return "low"
	}
}

// StabilityLevelFor maps a confidence ratio (0–100) to a stability band.
// The band edges (80, 50) follow the capture app's display tiers.
func StabilityLevelFor(confidenceRatio float64) StabilityLevel {
	switch {
	case confidenceRatio >= 80:
		return StabilityHigh
	case confidenceRatio >= 50:
		return StabilityMedium
	default:
		return StabilityLow
	}
}

// F0Analysis is the high-precision fundamental frequency result from the
// external analysis engine.
type F0Analysis struct {
	// Mean fundamental frequency in Hz over voiced frames.
	Mean float64

	// Std is the F0 standard deviation in Hz.
	Std float64

	// ConfidenceRatio is the voiced-frame ratio scaled to 0–100.
	ConfidenceRatio float64

	// Stability is the coarse stability band derived from ConfidenceRatio.
	Stability StabilityLevel
}

// InRange reports whether the mean F0 lies within [min, max] inclusive.
// Used by the clinical validation engine for demographic range checks.
func (f F0Analysis) InRange(min, max float64) bool {
	return f.Mean >= min && f.Mean <= max
}

// JitterMeasures holds cycle-to-cycle F0 period perturbation measures.
type JitterMeasures struct {
	// Local jitter as a percentage.
	Local float64

	// Absolute jitter in microseconds.
	Absolute float64

	// RAP is the relative average perturbation as a percentage.
	RAP float64

	// PPQ5 is the 5-point period perturbation quotient as a percentage.
	PPQ5 float64
}

// ShimmerMeasures holds cycle-to-cycle amplitude perturbation measures.
type ShimmerMeasures struct {
	// Local shimmer as a percentage.
	Local float64

	// DB is local shimmer expressed in dB.
	DB float64

	// APQ3 is the 3-point amplitude perturbation quotient as a percentage.
	APQ3 float64

	// APQ5 is the 5-point amplitude perturbation quotient as a percentage.
	APQ5 float64
}

// HNRMeasures holds harmonics-to-noise ratio statistics in dB.
type HNRMeasures struct {
	Mean float64
	Std  float64
}

// VoiceQualityMeasures aggregates the perturbation and noise measures
// produced by the external engine. Immutable once produced.
type VoiceQualityMeasures struct {
	Jitter  JitterMeasures
	Shimmer ShimmerMeasures
	HNR     HNRMeasures
}

// AnalysisMetadata carries frame accounting for a completed analysis.
type AnalysisMetadata struct {
	// VoicedRatio is the fraction (0–1) of frames classified as voiced.
	VoicedRatio float64

	// RecordingDurationSeconds is the analysed recording length.
	RecordingDurationSeconds float64

	// FrameCount is the total number of analysis frames.
	FrameCount int

	// VoicedFrameCount is the number of voiced frames.
	VoicedFrameCount int
}

// VocalBiomarkers is the complete, validated-ready biomarker set for one
// recording. Produced exactly once per completed cloud phase; immutable.
type VocalBiomarkers struct {
	F0       F0Analysis
	Quality  VoiceQualityMeasures
	Metadata AnalysisMetadata

	// StabilityScore is a derived composite score (0–100, higher = more
	// stable voice). See [StabilityScore] for the weighting.
	StabilityScore float64
}
