package voice

// Stability score component weights. F0 confidence dominates because voiced
// coverage is the strongest predictor of a usable biomarker set.
const (
	f0ConfidenceWeight = 0.4
	jitterWeight       = 0.2
	shimmerWeight      = 0.2
	hnrWeight          = 0.2
)

// StabilityScore computes the composite vocal stability score (0–100) from
// F0 confidence, local jitter, local shimmer, and mean HNR.
//
// Each component is banded against clinical reference points before
// weighting: jitter <1% is excellent and >5% pathological, shimmer <4%
// excellent and >10% pathological, HNR ≥20 dB excellent and <10 dB poor.
// Components with a zero measure are skipped rather than scored as failures,
// matching the behaviour of the reference extraction pipeline when a measure
// is unavailable.
func StabilityScore(f0Confidence, jitterLocal, shimmerLocal, hnrMean float64) float64 {
	score := f0Confidence * f0ConfidenceWeight

	if jitterLocal > 0 {
		score += jitterBandScore(jitterLocal) * jitterWeight
	}
	if shimmerLocal > 0 {
		score += shimmerBandScore(shimmerLocal) * shimmerWeight
	}
	if hnrMean > 0 {
		score += hnrBandScore(hnrMean) * hnrWeight
	}

	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}
	return score
}

func jitterBandScore(jitter float64) float64 {
	switch {
	case jitter < 1.0:
		return 100
	case jitter < 2.0:
		return 80
	case jitter < 5.0:
		// Linear decay from 80 at 2% down to 20 at 5%.
		return max(0, 80-((jitter-2.0)/3.0)*60)
	default:
		return 20
	}
}

func shimmerBandScore(shimmer float64) float64 {
	switch {
	case shimmer < 4.0:
		return 100
	case shimmer < 6.0:
		return 80
	case shimmer < 10.0:
		return max(0, 80-((shimmer-6.0)/4.0)*60)
	default:
		return 20
	}
}

func hnrBandScore(hnr float64) float64 {
	switch {
	case hnr >= 20.0:
		return 100
	case hnr >= 15.0:
		return 80
	case hnr >= 10.0:
		return 60
	default:
		return max(0, (hnr/10.0)*40)
	}
}
