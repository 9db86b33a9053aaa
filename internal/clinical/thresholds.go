// Package clinical holds the demographic threshold reference table, the
// baseline validation engine, and personalized threshold derivation.
//
// Thresholds are clinical reference values, not tunables: the table is
// compiled in and complete by construction, so lookups have no failure path.
// A missing demographic would be a configuration error caught by the table
// completeness test, never a runtime nil.
package clinical

import "github.com/PoisonIvory/sagevoice/pkg/voice"

// F0Range is an inclusive fundamental-frequency band in Hz.
type F0Range struct {
	Min float64
	Max float64
}

// JitterThresholds caps the period perturbation measures, in percent.
type JitterThresholds struct {
	MaxLocal float64
	MaxRAP   float64
	MaxPPQ5  float64
}

// ShimmerThresholds caps the amplitude perturbation measures, in percent.
type ShimmerThresholds struct {
	MaxLocal float64
	MaxAPQ3  float64
	MaxAPQ5  float64
}

// HNRThresholds bounds the harmonics-to-noise statistics, in dB.
type HNRThresholds struct {
	MinMean float64
	MaxStd  float64
}

// Thresholds is the full clinical pass/fail criteria set for one
// demographic. Immutable; loaded from the reference table.
type Thresholds struct {
	F0Range                  F0Range
	MinimumF0Confidence      float64
	MinimumVoicedRatio       float64
	MinimumRecordingDuration float64
	Jitter                   JitterThresholds
	Shimmer                  ShimmerThresholds
	HNR                      HNRThresholds
}

// Perturbation caps follow the MDVP normative values for sustained vowels;
// senior demographics get relaxed jitter caps to account for age-related
// vocal fold changes.
var (
	adultPerturbation = struct {
		jitter  JitterThresholds
		shimmer ShimmerThresholds
	}{
		jitter:  JitterThresholds{MaxLocal: 1.04, MaxRAP: 0.68, MaxPPQ5: 0.84},
		shimmer: ShimmerThresholds{MaxLocal: 3.81, MaxAPQ3: 2.50, MaxAPQ5: 3.07},
	}
	seniorPerturbation = struct {
		jitter  JitterThresholds
		shimmer ShimmerThresholds
	}{
		jitter:  JitterThresholds{MaxLocal: 1.35, MaxRAP: 0.90, MaxPPQ5: 1.10},
		shimmer: ShimmerThresholds{MaxLocal: 4.80, MaxAPQ3: 3.20, MaxAPQ5: 3.90},
	}
)

// Common gating minima shared by every demographic.
const (
	minF0Confidence     = 60.0
	minVoicedRatio      = 0.50
	minRecordingSeconds = 3.0
)

// referenceTable maps every demographic to its threshold set.
var referenceTable = map[voice.Demographic]Thresholds{
	voice.DemographicAdolescent: {
		F0Range:                  F0Range{Min: 130, Max: 300},
		MinimumF0Confidence:      minF0Confidence,
		MinimumVoicedRatio:       minVoicedRatio,
		MinimumRecordingDuration: minRecordingSeconds,
		Jitter:                   adultPerturbation.jitter,
		Shimmer:                  adultPerturbation.shimmer,
		HNR:                      HNRThresholds{MinMean: 15, MaxStd: 4.0},
	},
	voice.DemographicAdultFemale: {
		F0Range:                  F0Range{Min: 165, Max: 255},
		MinimumF0Confidence:      minF0Confidence,
		MinimumVoicedRatio:       minVoicedRatio,
		MinimumRecordingDuration: minRecordingSeconds,
		Jitter:                   adultPerturbation.jitter,
		Shimmer:                  adultPerturbation.shimmer,
		HNR:                      HNRThresholds{MinMean: 15, MaxStd: 4.0},
	},
	voice.DemographicAdultMale: {
		F0Range:                  F0Range{Min: 85, Max: 180},
		MinimumF0Confidence:      minF0Confidence,
		MinimumVoicedRatio:       minVoicedRatio,
		MinimumRecordingDuration: minRecordingSeconds,
		Jitter:                   adultPerturbation.jitter,
		Shimmer:                  adultPerturbation.shimmer,
		HNR:                      HNRThresholds{MinMean: 15, MaxStd: 4.0},
	},
	voice.DemographicAdultOther: {
		F0Range:                  F0Range{Min: 85, Max: 255},
		MinimumF0Confidence:      minF0Confidence,
		MinimumVoicedRatio:       minVoicedRatio,
		MinimumRecordingDuration: minRecordingSeconds,
		Jitter:                   adultPerturbation.jitter,
		Shimmer:                  adultPerturbation.shimmer,
		HNR:                      HNRThresholds{MinMean: 15, MaxStd: 4.0},
	},
	voice.DemographicSeniorFemale: {
		F0Range:                  F0Range{Min: 140, Max: 240},
		MinimumF0Confidence:      minF0Confidence,
		MinimumVoicedRatio:       minVoicedRatio,
		MinimumRecordingDuration: minRecordingSeconds,
		Jitter:                   seniorPerturbation.jitter,
		Shimmer:                  seniorPerturbation.shimmer,
		HNR:                      HNRThresholds{MinMean: 12, MaxStd: 4.5},
	},
	voice.DemographicSeniorMale: {
		F0Range:                  F0Range{Min: 80, Max: 170},
		MinimumF0Confidence:      minF0Confidence,
		MinimumVoicedRatio:       minVoicedRatio,
		MinimumRecordingDuration: minRecordingSeconds,
		Jitter:                   seniorPerturbation.jitter,
		Shimmer:                  seniorPerturbation.shimmer,
		HNR:                      HNRThresholds{MinMean: 12, MaxStd: 4.5},
	},
	voice.DemographicSeniorOther: {
		F0Range:                  F0Range{Min: 80, Max: 240},
		MinimumF0Confidence:      minF0Confidence,
		MinimumVoicedRatio:       minVoicedRatio,
		MinimumRecordingDuration: minRecordingSeconds,
		Jitter:                   seniorPerturbation.jitter,
		Shimmer:                  seniorPerturbation.shimmer,
		HNR:                      HNRThresholds{MinMean: 12, MaxStd: 4.5},
	},
}

// Provider resolves demographics to clinical threshold sets. Construct with
// [NewProvider]; callers receive an explicit reference, never ambient global
// state.
type Provider struct {
	table map[voice.Demographic]Thresholds
}

// NewProvider returns a Provider over the compiled-in reference table.
func NewProvider() *Provider {
	return &Provider{table: referenceTable}
}

// Thresholds returns the threshold set for d. Every valid demographic
// resolves; unrecognised values fall back to the adult_other set, matching
// the demographic derivation fallback.
func (p *Provider) Thresholds(d voice.Demographic) Thresholds {
	if t, ok := p.table[d]; ok {
		return t
	}
	return p.table[voice.DemographicAdultOther]
}
