package voice

// Demographic is an age/gender-derived bucket used to select clinically
// appropriate biomarker thresholds.
type Demographic string

const (
	DemographicAdolescent   Demographic = "adolescent"
	DemographicAdultFemale  Demographic = "adult_female"
	DemographicAdultMale    Demographic = "adult_male"
	DemographicAdultOther   Demographic = "adult_other"
	DemographicSeniorFemale Demographic = "senior_female"
	DemographicSeniorMale   Demographic = "senior_male"
	DemographicSeniorOther  Demographic = "senior_other"
)

// Demographics lists every valid demographic category.
var Demographics = []Demographic{
	DemographicAdolescent,
	DemographicAdultFemale,
	DemographicAdultMale,
	DemographicAdultOther,
	DemographicSeniorFemale,
	DemographicSeniorMale,
	DemographicSeniorOther,
}

// IsValid reports whether d is a recognised demographic category.
func (d Demographic) IsValid() bool {
	switch d {
	case DemographicAdolescent,
		DemographicAdultFemale, DemographicAdultMale, DemographicAdultOther,
		DemographicSeniorFemale, DemographicSeniorMale, DemographicSeniorOther:
		return true
	}
	return false
}

// GenderIdentity is the self-reported gender identity used, together with
// age, to derive a demographic category.
type GenderIdentity string

const (
	GenderWoman GenderIdentity = "woman"
	GenderMan   GenderIdentity = "man"
	GenderOther GenderIdentity = "other"
)

// Age bracket boundaries for demographic derivation.
const (
	minSupportedAge = 13
	adultMinAge     = 18
	seniorMinAge    = 65
	maxSupportedAge = 120
)

// DemographicFor derives the demographic category from age and gender
// identity using fixed bracket rules:
//
//	13–17  → adolescent (gender-independent)
//	18–64  → adult_female / adult_male / adult_other
//	65–120 → senior_female / senior_male / senior_other
//
// Ages outside 13–120 fall back to adult_other. The fallback mirrors the
// legacy intake behaviour for ambiguous profiles; see the API documentation
// before relying on it.
func DemographicFor(age int, gender GenderIdentity) Demographic {
	switch {
	case age < minSupportedAge || age > maxSupportedAge:
		return DemographicAdultOther
	case age < adultMinAge:
		return DemographicAdolescent
	case age < seniorMinAge:
		switch gender {
		case GenderWoman:
			return DemographicAdultFemale
		case GenderMan:
			return DemographicAdultMale
		default:
			return DemographicAdultOther
		}
	default:
		switch gender {
		case GenderWoman:
			return DemographicSeniorFemale
		case GenderMan:
			return DemographicSeniorMale
		default:
			return DemographicSeniorOther
		}
	}
}
