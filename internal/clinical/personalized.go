package clinical

import "github.com/PoisonIvory/sagevoice/pkg/voice"

// Personalized threshold derivation factors. A follow-up recording is
// compared against the user's own baseline rather than population norms:
// F0 may drift ±20%, perturbation measures may rise up to 50% above the
// baseline value, and HNR may fall to 80% of the baseline mean.
const (
	f0LowerFactor      = 0.8
	f0UpperFactor      = 1.2
	perturbationFactor = 1.5
	hnrMeanFactor      = 0.8
	hnrStdFactor       = 1.2
)

// PersonalizedThresholds is a read-only view derived from a user's baseline
// biomarkers. It is recomputed on demand and never persisted independently.
type PersonalizedThresholds struct {
	F0Range F0Range
	Jitter  JitterThresholds
	Shimmer ShimmerThresholds
	HNR     HNRThresholds
}

// Personalize derives follow-up thresholds from baseline biomarkers:
// f0Range = f0Mean × [0.8, 1.2], each jitter/shimmer cap = baseline value
// × 1.5, HNR minimum = baseline mean × 0.8, HNR max std = baseline std × 1.2.
func Personalize(baseline voice.VocalBiomarkers) PersonalizedThresholds {
	return PersonalizedThresholds{
		F0Range: F0Range{
			Min: baseline.F0.Mean * f0LowerFactor,
			Max: baseline.F0.Mean * f0UpperFactor,
		},
		Jitter: JitterThresholds{
			MaxLocal: baseline.Quality.Jitter.Local * perturbationFactor,
			MaxRAP:   baseline.Quality.Jitter.RAP * perturbationFactor,
			MaxPPQ5:  baseline.Quality.Jitter.PPQ5 * perturbationFactor,
		},
		Shimmer: ShimmerThresholds{
			MaxLocal: baseline.Quality.Shimmer.Local * perturbationFactor,
			MaxAPQ3:  baseline.Quality.Shimmer.APQ3 * perturbationFactor,
			MaxAPQ5:  baseline.Quality.Shimmer.APQ5 * perturbationFactor,
		},
		HNR: HNRThresholds{
			MinMean: baseline.Quality.HNR.Mean * hnrMeanFactor,
			MaxStd:  baseline.Quality.HNR.Std * hnrStdFactor,
		},
	}
}
