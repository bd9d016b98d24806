package symptoms

import (
	"reflect"
	"strings"
	"testing"
)

func TestGeneratorsEmptyInput(t *testing.T) {
	// every generator returns its default guidance, never an empty list
	if got := Medications(nil); len(got) == 0 {
		t.Error("Medications(nil) returned empty list")
	}
	if got := HomeRemedies(nil); len(got) == 0 {
		t.Error("HomeRemedies(nil) returned empty list")
	}
	if got := Precautions(nil); len(got) == 0 {
		t.Error("Precautions(nil) returned empty list")
	}
	if got := DescribeDiagnosis(nil); got == "" {
		t.Error("DescribeDiagnosis(nil) returned empty string")
	}
}

func TestGeneratorsIdempotent(t *testing.T) {
	records := []Record{
		{Name: "headache", Severity: 6},
		{Name: "fever", Severity: 5},
		{Name: "chest pain", Severity: 4},
	}
	for name, gen := range map[string]func([]Record) []string{
		"medications":  Medications,
		"homeRemedies": HomeRemedies,
		"precautions":  Precautions,
	} {
		first := gen(records)
		second := gen(records)
		if !reflect.DeepEqual(first, second) {
			t.Errorf("%s not idempotent: %v vs %v", name, first, second)
		}
	}
}

func TestMedicationsDedup(t *testing.T) {
	// headache and fever both map to Acetaminophen/Ibuprofen
	records := []Record{{Name: "headache"}, {Name: "fever"}}
	got := Medications(records)
	want := []string{"Acetaminophen", "Ibuprofen"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Medications = %v, want de-duplicated %v", got, want)
	}
}

func TestMedicationsSubstringMatch(t *testing.T) {
	// "chest pain" matches the "pain" table entry
	got := Medications([]Record{{Name: "chest pain"}})
	found := false
	for _, m := range got {
		if m == "Pain Reliever" {
			found = true
		}
	}
	if !found {
		t.Errorf("Medications = %v, want a pain entry via substring match", got)
	}
}

func TestPrecautionsSeverityTiers(t *testing.T) {
	low := Precautions([]Record{{Name: "cough", Severity: 2}})
	moderate := Precautions([]Record{{Name: "cough", Severity: 6}})
	urgent := Precautions([]Record{{Name: "cough", Severity: 9}})

	if contains(low, "Seek immediate medical attention if symptoms worsen") {
		t.Error("low severity should not include urgent-tier precautions")
	}
	if !contains(moderate, "Limit daily activities as needed") {
		t.Errorf("moderate tier missing, got %v", moderate)
	}
	if contains(moderate, "Avoid strenuous activities") {
		t.Error("moderate severity should not include urgent-tier precautions")
	}
	if !contains(urgent, "Avoid strenuous activities") {
		t.Errorf("urgent tier missing, got %v", urgent)
	}
	for _, tier := range [][]string{low, moderate, urgent} {
		if !contains(tier, "Monitor your symptoms regularly") {
			t.Errorf("base precautions missing from %v", tier)
		}
	}
}

func TestDescribeDiagnosis(t *testing.T) {
	got := DescribeDiagnosis([]Record{
		{Name: "headache", Severity: 8.5},
		{Name: "nausea", Severity: 2},
	})
	if !strings.Contains(got, "headache: severe") {
		t.Errorf("description should tier headache as severe:\n%s", got)
	}
	if !strings.Contains(got, "nausea: mild") {
		t.Errorf("description should tier nausea as mild:\n%s", got)
	}
	if !strings.Contains(got, "intensity: 8.5/10") {
		t.Errorf("description should keep one decimal for 8.5:\n%s", got)
	}
}

func contains(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}
