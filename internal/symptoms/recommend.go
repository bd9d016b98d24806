package symptoms

import (
	"strconv"
	"strings"
)

// Recommendation tables are keyed by symptom-name substring, checked in
// table order so output is deterministic. Results are de-duplicated while
// preserving discovery order.

var medicationTable = []struct {
	key  string
	meds []string
}{
	{"headache", []string{"Acetaminophen", "Ibuprofen"}},
	{"fever", []string{"Acetaminophen", "Ibuprofen"}},
	{"cough", []string{"Dextromethorphan", "Expectorant"}},
	{"allergies", []string{"Antihistamine", "Nasal Decongestant"}},
	{"pain", []string{"Pain Reliever", "Anti-inflammatory medication"}},
	{"nausea", []string{"Anti-nausea medication"}},
	{"indigestion", []string{"Antacid"}},
	{"anxiety", []string{"Consult doctor for appropriate medication"}},
	{"insomnia", []string{"Consult doctor for sleep medication"}},
}

var remedyTable = []struct {
	key      string
	remedies []string
}{
	{"headache", []string{"Rest in a quiet, dark room", "Apply cold or warm compress", "Stay hydrated"}},
	{"fever", []string{"Rest and get plenty of sleep", "Stay hydrated", "Use a light blanket if chills occur"}},
	{"cough", []string{"Drink warm honey and lemon tea", "Use a humidifier", "Stay hydrated"}},
	{"sore throat", []string{"Gargle with warm salt water", "Drink warm liquids", "Use throat lozenges"}},
	{"nausea", []string{"Eat small, frequent meals", "Avoid strong odors", "Try ginger tea"}},
	{"stress", []string{"Practice deep breathing exercises", "Try meditation or yoga", "Get regular exercise"}},
}

var precautionTable = []struct {
	key         string
	precautions []string
}{
	{"fever", []string{"Monitor temperature regularly", "Stay hydrated", "Avoid exposure to extreme temperatures"}},
	{"breath", []string{"Avoid smoke and other irritants", "Keep head elevated while resting", "Use prescribed inhaler if available"}},
	{"pain", []string{"Avoid movements that aggravate the pain", "Apply ice/heat as recommended", "Take prescribed medication as directed"}},
}

var basePrecautions = []string{
	"Monitor your symptoms regularly",
	"Keep track of any changes in symptom intensity",
	"Maintain good hygiene practices",
}

var urgentPrecautions = []string{
	"Seek immediate medical attention if symptoms worsen",
	"Avoid strenuous activities",
	"Have someone stay with you or check on you regularly",
}

var moderatePrecautions = []string{
	"Limit daily activities as needed",
	"Get adequate rest",
	"Contact healthcare provider if symptoms persist",
}

var defaultGuidance = []string{
	"Consult a healthcare provider for personalized advice",
}

// Medications returns over-the-counter suggestions matched by symptom
// name. An empty symptom list yields the default guidance, never nil.
func Medications(records []Record) []string {
	out := []string{}
	for _, r := range records {
		name := strings.ToLower(r.Name)
		for _, entry := range medicationTable {
			if strings.Contains(name, entry.key) {
				out = append(out, entry.meds...)
			}
		}
	}
	out = dedup(out)
	if len(out) == 0 {
		return append([]string{}, defaultGuidance...)
	}
	return out
}

// HomeRemedies returns self-care suggestions matched by symptom name.
func HomeRemedies(records []Record) []string {
	out := []string{}
	for _, r := range records {
		name := strings.ToLower(r.Name)
		for _, entry := range remedyTable {
			if strings.Contains(name, entry.key) {
				out = append(out, entry.remedies...)
			}
		}
	}
	out = dedup(out)
	if len(out) == 0 {
		return append([]string{}, defaultGuidance...)
	}
	return out
}

// Precautions returns the base precaution list plus severity-tiered
// additions (>7 urgent tier, >4 moderate tier) and symptom-specific ones.
func Precautions(records []Record) []string {
	severity := AggregateSeverity(records)

	out := append([]string{}, basePrecautions...)
	if severity > 7 {
		out = append(out, urgentPrecautions...)
	} else if severity > 4 {
		out = append(out, moderatePrecautions...)
	}
	for _, r := range records {
		name := strings.ToLower(r.Name)
		for _, entry := range precautionTable {
			if strings.Contains(name, entry.key) {
				out = append(out, entry.precautions...)
			}
		}
	}
	return dedup(out)
}

// DescribeDiagnosis renders the plain-language assessment used in the
// consultation summary and the PDF report.
func DescribeDiagnosis(records []Record) string {
	if len(records) == 0 {
		return "No symptoms have been reported yet. Please describe what you are experiencing."
	}
	severity := AggregateSeverity(records)
	risk := RiskLevel(severity)

	var b strings.Builder
	b.WriteString("Based on the reported symptoms:\n\nPrimary Symptoms:\n")
	for _, r := range records {
		tier := "mild"
		if r.Severity > 7 {
			tier = "severe"
		} else if r.Severity > 3 {
			tier = "moderate"
		}
		b.WriteString("- " + r.Name + ": " + tier)
		b.WriteString(" (intensity: " + formatSeverity(r.Severity) + "/10)\n")
	}

	b.WriteString("\nOverall Assessment:\nThe symptoms indicate a " + risk + " risk condition. ")
	switch {
	case severity <= 3:
		b.WriteString("The condition appears to be mild and can likely be managed with home care and over-the-counter medications.")
	case severity <= 7:
		b.WriteString("The condition requires attention and monitoring. Medical consultation is recommended for proper evaluation.")
	default:
		b.WriteString("The condition requires prompt medical attention. Please seek professional medical care soon.")
	}
	return b.String()
}

func formatSeverity(v float64) string {
	s := strconv.FormatFloat(v, 'f', 1, 64)
	return strings.TrimSuffix(s, ".0")
}

func dedup(in []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
