package voice

import (
	"errors"
	"fmt"
	"math"
)

// FeatureMap is the flat numeric result delivered by the external analysis
// engine, keyed by feature name.
type FeatureMap map[string]float64

// Feature map keys produced by the external engine. The set and naming match
// the engine's vocal analysis extractor output.
const (
	KeyF0Mean        = "f0_mean"
	KeyF0Std         = "f0_std"
	KeyF0Confidence  = "f0_confidence"
	KeyJitterLocal   = "jitter_local"
	KeyJitterAbs     = "jitter_absolute"
	KeyJitterRAP     = "jitter_rap"
	KeyJitterPPQ5    = "jitter_ppq5"
	KeyShimmerLocal  = "shimmer_local"
	KeyShimmerDB     = "shimmer_db"
	KeyShimmerAPQ3   = "shimmer_apq3"
	KeyShimmerAPQ5   = "shimmer_apq5"
	KeyHNRMean       = "hnr_mean"
	KeyHNRStd        = "hnr_std"
	KeyVoicedRatio   = "voiced_ratio"
	KeyAudioDuration = "audio_duration"
	KeyTotalFrames   = "total_frames"
	KeyVoicedFrames  = "voiced_frames"
)

// requiredKeys is every key that must be present for a feature map to be
// considered a complete analysis result.
var requiredKeys = []string{
	KeyF0Mean, KeyF0Std, KeyF0Confidence,
	KeyJitterLocal, KeyJitterAbs, KeyJitterRAP, KeyJitterPPQ5,
	KeyShimmerLocal, KeyShimmerDB, KeyShimmerAPQ3, KeyShimmerAPQ5,
	KeyHNRMean, KeyHNRStd,
	KeyVoicedRatio, KeyAudioDuration, KeyTotalFrames, KeyVoicedFrames,
}

// ErrIncompleteFeatureMap marks a feature map missing one or more required
// keys. Use [errors.As] with [*FeatureMapError] to recover the field names.
var ErrIncompleteFeatureMap = errors.New("voice: incomplete feature map")

// FeatureMapError describes why a feature map could not be parsed. It wraps
// [ErrIncompleteFeatureMap] so callers can branch with errors.Is while still
// reporting the specific offending fields.
type FeatureMapError struct {
	// MissingKeys lists required keys absent from the map.
	MissingKeys []string

	// InvalidKeys lists keys present with a non-finite value.
	InvalidKeys []string
}

func (e *FeatureMapError) Error() string {
	switch {
	case len(e.MissingKeys) > 0 && len(e.InvalidKeys) > 0:
		return fmt.Sprintf("voice: incomplete feature map: missing %v, invalid %v", e.MissingKeys, e.InvalidKeys)
	case len(e.InvalidKeys) > 0:
		return fmt.Sprintf("voice: incomplete feature map: invalid %v", e.InvalidKeys)
	default:
		return fmt.Sprintf("voice: incomplete feature map: missing %v", e.MissingKeys)
	}
}

func (e *FeatureMapError) Unwrap() error { return ErrIncompleteFeatureMap }

// ParseFeatureMap converts a complete engine feature map into an immutable
// [VocalBiomarkers] value. A missing or non-finite required key is a parse
// error, not a partial success. The composite stability score is derived
// locally rather than read from the map, so results are comparable across
// engine versions.
func ParseFeatureMap(features FeatureMap) (VocalBiomarkers, error) {
	var parseErr FeatureMapError
	for _, key := range requiredKeys {
		v, ok := features[key]
		if !ok {
			parseErr.MissingKeys = append(parseErr.MissingKeys, key)
			continue
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			parseErr.InvalidKeys = append(parseErr.InvalidKeys, key)
		}
	}
	if len(parseErr.MissingKeys) > 0 || len(parseErr.InvalidKeys) > 0 {
		return VocalBiomarkers{}, &parseErr
	}

	confidence := features[KeyF0Confidence]
	b := VocalBiomarkers{
		F0: F0Analysis{
			Mean:            features[KeyF0Mean],
			Std:             features[KeyF0Std],
			ConfidenceRatio: confidence,
			Stability:       StabilityLevelFor(confidence),
		},
		Quality: VoiceQualityMeasures{
			Jitter: JitterMeasures{
				Local:    features[KeyJitterLocal],
				Absolute: features[KeyJitterAbs],
				RAP:      features[KeyJitterRAP],
				PPQ5:     features[KeyJitterPPQ5],
			},
			Shimmer: ShimmerMeasures{
				Local: features[KeyShimmerLocal],
				DB:    features[KeyShimmerDB],
				APQ3:  features[KeyShimmerAPQ3],
				APQ5:  features[KeyShimmerAPQ5],
			},
			HNR: HNRMeasures{
				Mean: features[KeyHNRMean],
				Std:  features[KeyHNRStd],
			},
		},
		Metadata: AnalysisMetadata{
			VoicedRatio:              features[KeyVoicedRatio],
			RecordingDurationSeconds: features[KeyAudioDuration],
			FrameCount:               int(features[KeyTotalFrames]),
			VoicedFrameCount:         int(features[KeyVoicedFrames]),
		},
	}
	b.StabilityScore = StabilityScore(
		b.F0.ConfidenceRatio,
		b.Quality.Jitter.Local,
		b.Quality.Shimmer.Local,
		b.Quality.HNR.Mean,
	)
	return b, nil
}
