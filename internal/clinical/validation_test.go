package clinical

import (
	"math"
	"strings"
	"testing"

	"github.com/PoisonIvory/sagevoice/pkg/voice"
)

// healthyBiomarkers returns a set that passes every adult_female check.
func healthyBiomarkers() voice.VocalBiomarkers {
	return voice.VocalBiomarkers{
		F0: voice.F0Analysis{
			Mean:            210,
			Std:             10,
			ConfidenceRatio: 85,
			Stability:       voice.StabilityHigh,
		},
		Quality: voice.VoiceQualityMeasures{
			Jitter:  voice.JitterMeasures{Local: 0.8, Absolute: 0.00004, RAP: 0.4, PPQ5: 0.5},
			Shimmer: voice.ShimmerMeasures{Local: 3.0, DB: 0.28, APQ3: 1.8, APQ5: 2.2},
			HNR:     voice.HNRMeasures{Mean: 21, Std: 2.5},
		},
		Metadata: voice.AnalysisMetadata{
			VoicedRatio:              0.82,
			RecordingDurationSeconds: 5.2,
			FrameCount:               520,
			VoicedFrameCount:         426,
		},
	}
}

func TestValidateAccepted(t *testing.T) {
	v := NewValidator(NewProvider())

	got := v.Validate(healthyBiomarkers(), voice.DemographicAdultFemale)
	if !got.Accepted {
		t.Fatalf("Accepted = false, failed checks: %v", got.FailedChecks)
	}
	if got.Confidence != 100 {
		t.Errorf("Confidence = %v, want 100", got.Confidence)
	}
	if len(got.Checks) != 12 {
		t.Errorf("len(Checks) = %d, want 12", len(got.Checks))
	}
	if got.Reason() != "" {
		t.Errorf("Reason() = %q, want empty", got.Reason())
	}
}

// TestValidateEachCheckFails flips one measure at a time and asserts the
// rejection names exactly that check.
func TestValidateEachCheckFails(t *testing.T) {
	v := NewValidator(NewProvider())

	tests := []struct {
		check  string
		mutate func(*voice.VocalBiomarkers)
	}{
		{CheckF0Confidence, func(b *voice.VocalBiomarkers) { b.F0.ConfidenceRatio = 40 }},
		{CheckF0Range, func(b *voice.VocalBiomarkers) { b.F0.Mean = 120 }},
		{CheckVoicedRatio, func(b *voice.VocalBiomarkers) { b.Metadata.VoicedRatio = 0.3 }},
		{CheckDuration, func(b *voice.VocalBiomarkers) { b.Metadata.RecordingDurationSeconds = 2.0 }},
		{CheckJitterLocal, func(b *voice.VocalBiomarkers) { b.Quality.Jitter.Local = 1.2 }},
		{CheckJitterRAP, func(b *voice.VocalBiomarkers) { b.Quality.Jitter.RAP = 0.9 }},
		{CheckJitterPPQ5, func(b *voice.VocalBiomarkers) { b.Quality.Jitter.PPQ5 = 1.0 }},
		{CheckShimmerLocal, func(b *voice.VocalBiomarkers) { b.Quality.Shimmer.Local = 4.5 }},
		{CheckShimmerAPQ3, func(b *voice.VocalBiomarkers) { b.Quality.Shimmer.APQ3 = 3.0 }},
		{CheckShimmerAPQ5, func(b *voice.VocalBiomarkers) { b.Quality.Shimmer.APQ5 = 3.5 }},
		{CheckHNRMean, func(b *voice.VocalBiomarkers) { b.Quality.HNR.Mean = 12 }},
		{CheckHNRStd, func(b *voice.VocalBiomarkers) { b.Quality.HNR.Std = 5.0 }},
	}

	for _, tt := range tests {
		t.Run(tt.check, func(t *testing.T) {
			b := healthyBiomarkers()
			tt.mutate(&b)

			got := v.Validate(b, voice.DemographicAdultFemale)
			if got.Accepted {
				t.Fatal("Accepted = true, want rejection")
			}
			if len(got.FailedChecks) != 1 || got.FailedChecks[0] != tt.check {
				t.Errorf("FailedChecks = %v, want [%s]", got.FailedChecks, tt.check)
			}
			want := float64(11) / 12 * 100
			if math.Abs(got.Confidence-want) > 1e-9 {
				t.Errorf("Confidence = %v, want %v", got.Confidence, want)
			}
			if !strings.Contains(got.Reason(), tt.check) {
				t.Errorf("Reason() = %q, does not name %q", got.Reason(), tt.check)
			}
		})
	}
}

func TestValidateCollectsAllFailures(t *testing.T) {
	v := NewValidator(NewProvider())

	b := healthyBiomarkers()
	b.F0.ConfidenceRatio = 40
	b.Quality.Jitter.Local = 2.0
	b.Metadata.RecordingDurationSeconds = 1.0

	got := v.Validate(b, voice.DemographicAdultFemale)
	if got.Accepted {
		t.Fatal("Accepted = true, want rejection")
	}
	if len(got.FailedChecks) != 3 {
		t.Errorf("FailedChecks = %v, want 3 entries", got.FailedChecks)
	}
	reason := got.Reason()
	for _, name := range []string{CheckF0Confidence, CheckJitterLocal, CheckDuration} {
		if !strings.Contains(reason, name) {
			t.Errorf("Reason() = %q, missing %q", reason, name)
		}
	}
}

func TestValidateDemographicRanges(t *testing.T) {
	v := NewValidator(NewProvider())

	tests := []struct {
		demographic voice.Demographic
		f0          float64
		accepted    bool
	}{
		{voice.DemographicAdultMale, 120, true},
		{voice.DemographicAdultMale, 210, false},
		{voice.DemographicAdultFemale, 210, true},
		{voice.DemographicAdultFemale, 120, false},
		{voice.DemographicAdolescent, 290, true},
		{voice.DemographicSeniorMale, 100, true},
	}

	for _, tt := range tests {
		b := healthyBiomarkers()
		b.F0.Mean = tt.f0
		got := v.Validate(b, tt.demographic)
		if got.Accepted != tt.accepted {
			t.Errorf("Validate(f0=%v, %s).Accepted = %v, want %v (failed: %v)",
				tt.f0, tt.demographic, got.Accepted, tt.accepted, got.FailedChecks)
		}
	}
}

// Senior demographics carry relaxed perturbation caps: jitter 1.2% fails the
// adult cap (1.04) but passes the senior cap (1.35).
func TestValidateSeniorRelaxedCaps(t *testing.T) {
	v := NewValidator(NewProvider())

	b := healthyBiomarkers()
	b.F0.Mean = 200
	b.Quality.Jitter.Local = 1.2
	b.Quality.HNR.Mean = 13 // below adult minimum 15, above senior minimum 12

	if got := v.Validate(b, voice.DemographicAdultFemale); got.Accepted {
		t.Error("adult_female accepted jitter 1.2 and HNR 13 dB")
	}
	if got := v.Validate(b, voice.DemographicSeniorFemale); !got.Accepted {
		t.Errorf("senior_female rejected: %v", got.FailedChecks)
	}
}

func TestProviderTableComplete(t *testing.T) {
	p := NewProvider()
	for _, d := range voice.Demographics {
		got := p.Thresholds(d)
		if got.F0Range.Min <= 0 || got.F0Range.Max <= got.F0Range.Min {
			t.Errorf("Thresholds(%s) has invalid F0 range %+v", d, got.F0Range)
		}
	}
}

func TestProviderUnknownDemographicFallsBack(t *testing.T) {
	p := NewProvider()
	got := p.Thresholds(voice.Demographic("martian"))
	want := p.Thresholds(voice.DemographicAdultOther)
	if got != want {
		t.Errorf("Thresholds(unknown) = %+v, want adult_other set %+v", got, want)
	}
}
