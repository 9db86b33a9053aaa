package voice

import "testing"

func TestDemographicFor(t *testing.T) {
	tests := []struct {
		name   string
		age    int
		gender GenderIdentity
		want   Demographic
	}{
		{"adolescent lower edge", 13, GenderWoman, DemographicAdolescent},
		{"adolescent upper edge", 17, GenderMan, DemographicAdolescent},
		{"adult woman lower edge", 18, GenderWoman, DemographicAdultFemale},
		{"adult man", 40, GenderMan, DemographicAdultMale},
		{"adult other", 40, GenderOther, DemographicAdultOther},
		{"adult upper edge", 64, GenderWoman, DemographicAdultFemale},
		{"senior woman lower edge", 65, GenderWoman, DemographicSeniorFemale},
		{"senior man", 80, GenderMan, DemographicSeniorMale},
		{"senior other", 80, GenderOther, DemographicSeniorOther},
		{"senior upper edge", 120, GenderMan, DemographicSeniorMale},
		{"below supported range", 12, GenderWoman, DemographicAdultOther},
		{"above supported range", 121, GenderMan, DemographicAdultOther},
		{"negative age", -1, GenderWoman, DemographicAdultOther},
		{"unknown gender string", 30, GenderIdentity("nonbinary"), DemographicAdultOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DemographicFor(tt.age, tt.gender); got != tt.want {
				t.Errorf("DemographicFor(%d, %q) = %q, want %q", tt.age, tt.gender, got, tt.want)
			}
		})
	}
}

func TestDemographicForAdolescentIgnoresGender(t *testing.T) {
	for age := 13; age <= 17; age++ {
		for _, g := range []GenderIdentity{GenderWoman, GenderMan, GenderOther} {
			if got := DemographicFor(age, g); got != DemographicAdolescent {
				t.Fatalf("DemographicFor(%d, %q) = %q, want adolescent", age, g, got)
			}
		}
	}
}

func TestDemographicIsValid(t *testing.T) {
	for _, d := range Demographics {
		if !d.IsValid() {
			t.Errorf("Demographics contains %q but IsValid() = false", d)
		}
	}
	if Demographic("adult").IsValid() {
		t.Error(`IsValid("adult") = true, want false`)
	}
	if Demographic("").IsValid() {
		t.Error(`IsValid("") = true, want false`)
	}
}
