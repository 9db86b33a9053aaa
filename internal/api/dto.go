package api

import (
	"time"

	"github.com/PoisonIvory/sagevoice/internal/analysis"
	"github.com/PoisonIvory/sagevoice/internal/baseline"
	"github.com/PoisonIvory/sagevoice/internal/clinical"
	"github.com/PoisonIvory/sagevoice/pkg/voice"
)

// submitRequest is the body of POST .../analysis.
type submitRequest struct {
	// CaptureContext is "device" or "simulator".
	CaptureContext string `json:"capture_context"`

	Sample sampleBody `json:"sample"`

	// FramePitches is the coarse per-frame pitch track in Hz, aligned with
	// Sample.FramePowers. Unvoiced frames carry 0.
	FramePitches []float64 `json:"frame_pitches"`

	// AudioBase64 is the encoded audio blob forwarded to the analysis
	// engine. Standard base64 encoding.
	AudioBase64 string `json:"audio_base64"`
}

type sampleBody struct {
	DurationSeconds float64   `json:"duration_seconds"`
	SampleRate      int       `json:"sample_rate"`
	BitDepth        int       `json:"bit_depth"`
	ChannelCount    int       `json:"channel_count"`
	FramePowers     []float64 `json:"frame_powers"`
	RMS             float64   `json:"rms"`
}

func (s sampleBody) toSample(recordingID string) voice.AudioSample {
	return voice.AudioSample{
		RecordingID:     recordingID,
		DurationSeconds: s.DurationSeconds,
		SampleRate:      s.SampleRate,
		BitDepth:        s.BitDepth,
		ChannelCount:    s.ChannelCount,
		FramePowers:     s.FramePowers,
		RMS:             s.RMS,
	}
}

// stateBody is the JSON shape of an analysis state snapshot.
type stateBody struct {
	RecordingID     string          `json:"recording_id"`
	Phase           string          `json:"phase"`
	Degraded        bool            `json:"degraded,omitempty"`
	Warnings        []string        `json:"warnings,omitempty"`
	Local           *localBody      `json:"local,omitempty"`
	Biomarkers      *biomarkersBody `json:"biomarkers,omitempty"`
	AnalysisVersion string          `json:"analysis_version,omitempty"`
	Error           string          `json:"error,omitempty"`
}

type localBody struct {
	F0Mean          float64   `json:"f0_mean"`
	F0Std           float64   `json:"f0_std"`
	ConfidenceRatio float64   `json:"confidence_ratio"`
	Stability       string    `json:"stability"`
	ComputedAt      time.Time `json:"computed_at"`
}

type biomarkersBody struct {
	F0             f0Body       `json:"f0"`
	Jitter         jitterBody   `json:"jitter"`
	Shimmer        shimmerBody  `json:"shimmer"`
	HNR            hnrBody      `json:"hnr"`
	Metadata       metadataBody `json:"metadata"`
	StabilityScore float64      `json:"stability_score"`
}

type f0Body struct {
	Mean            float64 `json:"mean"`
	Std             float64 `json:"std"`
	ConfidenceRatio float64 `json:"confidence_ratio"`
	Stability       string  `json:"stability"`
}

type jitterBody struct {
	Local    float64 `json:"local"`
	Absolute float64 `json:"absolute"`
	RAP      float64 `json:"rap"`
	PPQ5     float64 `json:"ppq5"`
}

type shimmerBody struct {
	Local float64 `json:"local"`
	DB    float64 `json:"db"`
	APQ3  float64 `json:"apq3"`
	APQ5  float64 `json:"apq5"`
}

type hnrBody struct {
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"`
}

type metadataBody struct {
	VoicedRatio              float64 `json:"voiced_ratio"`
	RecordingDurationSeconds float64 `json:"recording_duration_seconds"`
	FrameCount               int     `json:"frame_count"`
	VoicedFrameCount         int     `json:"voiced_frame_count"`
}

func toStateBody(s analysis.State) stateBody {
	body := stateBody{
		RecordingID: s.RecordingID,
		Phase:       s.Phase.String(),
		Degraded:    s.Degraded,
		Warnings:    s.Warnings,
	}
	if s.Err != nil {
		body.Error = s.Err.Error()
	}
	if !s.Local.ComputedAt.IsZero() {
		body.Local = &localBody{
			F0Mean:          s.Local.F0Mean,
			F0Std:           s.Local.F0Std,
			ConfidenceRatio: s.Local.ConfidenceRatio,
			Stability:       voice.StabilityLevelFor(s.Local.ConfidenceRatio).String(),
			ComputedAt:      s.Local.ComputedAt,
		}
	}
	if s.Phase == analysis.PhaseComplete {
		b := toBiomarkersBody(s.Biomarkers)
		body.Biomarkers = &b
		body.AnalysisVersion = baseline.AnalysisVersion
	}
	return body
}

func toBiomarkersBody(b voice.VocalBiomarkers) biomarkersBody {
	return biomarkersBody{
		F0: f0Body{
			Mean:            b.F0.Mean,
			Std:             b.F0.Std,
			ConfidenceRatio: b.F0.ConfidenceRatio,
			Stability:       b.F0.Stability.String(),
		},
		Jitter: jitterBody{
			Local:    b.Quality.Jitter.Local,
			Absolute: b.Quality.Jitter.Absolute,
			RAP:      b.Quality.Jitter.RAP,
			PPQ5:     b.Quality.Jitter.PPQ5,
		},
		Shimmer: shimmerBody{
			Local: b.Quality.Shimmer.Local,
			DB:    b.Quality.Shimmer.DB,
			APQ3:  b.Quality.Shimmer.APQ3,
			APQ5:  b.Quality.Shimmer.APQ5,
		},
		HNR: hnrBody{
			Mean: b.Quality.HNR.Mean,
			Std:  b.Quality.HNR.Std,
		},
		Metadata: metadataBody{
			VoicedRatio:              b.Metadata.VoicedRatio,
			RecordingDurationSeconds: b.Metadata.RecordingDurationSeconds,
			FrameCount:               b.Metadata.FrameCount,
			VoicedFrameCount:         b.Metadata.VoicedFrameCount,
		},
		StabilityScore: b.StabilityScore,
	}
}

// establishRequest is the body of POST .../baseline.
type establishRequest struct {
	// RecordingID names a completed analysis whose biomarkers seed the
	// baseline.
	RecordingID string `json:"recording_id"`

	Age            int    `json:"age"`
	GenderIdentity string `json:"gender_identity"`

	// Context is "onboarding", "follow_up" or "recalibration".
	Context string `json:"context"`
}

// validationBody is the JSON shape of a clinical validation outcome.
type validationBody struct {
	Accepted     bool     `json:"accepted"`
	Confidence   float64  `json:"confidence"`
	FailedChecks []string `json:"failed_checks,omitempty"`
	Reason       string   `json:"reason,omitempty"`
}

func toValidationBody(o clinical.Outcome) validationBody {
	return validationBody{
		Accepted:     o.Accepted,
		Confidence:   o.Confidence,
		FailedChecks: o.FailedChecks,
		Reason:       o.Reason(),
	}
}

// baselineBody is the JSON shape of a baseline aggregate.
type baselineBody struct {
	ID                 string            `json:"id"`
	UserID             string            `json:"user_id"`
	EstablishedAt      time.Time         `json:"established_at"`
	Demographic        string            `json:"demographic"`
	Context            string            `json:"context"`
	AnalysisVersion    string            `json:"analysis_version"`
	Validation         validationBody    `json:"validation"`
	Biomarkers         biomarkersBody    `json:"biomarkers"`
	ReplacementHistory []replacementBody `json:"replacement_history,omitempty"`
}

type replacementBody struct {
	ArchivedID string    `json:"archived_id"`
	ReplacedAt time.Time `json:"replaced_at"`
}

type archivedBody struct {
	baselineBody
	ArchivedAt time.Time `json:"archived_at"`
	ReplacedBy string    `json:"replaced_by"`
}

func toBaselineBody(b baseline.Baseline) baselineBody {
	body := baselineBody{
		ID:              b.ID,
		UserID:          b.UserID,
		EstablishedAt:   b.EstablishedAt,
		Demographic:     string(b.Demographic),
		Context:         string(b.Context),
		AnalysisVersion: b.AnalysisVersion,
		Validation: validationBody{
			Accepted:     b.Status.Accepted,
			Confidence:   b.Status.Confidence,
			FailedChecks: b.Status.FailedChecks,
			Reason:       b.Status.Reason,
		},
		Biomarkers: toBiomarkersBody(b.Biomarkers),
	}
	for _, r := range b.ReplacementHistory {
		body.ReplacementHistory = append(body.ReplacementHistory, replacementBody{
			ArchivedID: r.ArchivedID,
			ReplacedAt: r.ReplacedAt,
		})
	}
	return body
}

// thresholdsBody is the JSON shape of personalized follow-up thresholds.
type thresholdsBody struct {
	F0Range struct {
		Min float64 `json:"min"`
		Max float64 `json:"max"`
	} `json:"f0_range"`
	Jitter struct {
		MaxLocal float64 `json:"max_local"`
		MaxRAP   float64 `json:"max_rap"`
		MaxPPQ5  float64 `json:"max_ppq5"`
	} `json:"jitter"`
	Shimmer struct {
		MaxLocal float64 `json:"max_local"`
		MaxAPQ3  float64 `json:"max_apq3"`
		MaxAPQ5  float64 `json:"max_apq5"`
	} `json:"shimmer"`
	HNR struct {
		MinMean float64 `json:"min_mean"`
		MaxStd  float64 `json:"max_std"`
	} `json:"hnr"`
}

func toThresholdsBody(t clinical.PersonalizedThresholds) thresholdsBody {
	var body thresholdsBody
	body.F0Range.Min = t.F0Range.Min
	body.F0Range.Max = t.F0Range.Max
	body.Jitter.MaxLocal = t.Jitter.MaxLocal
	body.Jitter.MaxRAP = t.Jitter.MaxRAP
	body.Jitter.MaxPPQ5 = t.Jitter.MaxPPQ5
	body.Shimmer.MaxLocal = t.Shimmer.MaxLocal
	body.Shimmer.MaxAPQ3 = t.Shimmer.MaxAPQ3
	body.Shimmer.MaxAPQ5 = t.Shimmer.MaxAPQ5
	body.HNR.MinMean = t.HNR.MinMean
	body.HNR.MaxStd = t.HNR.MaxStd
	return body
}
