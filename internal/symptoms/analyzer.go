// Package symptoms turns free-text conversation into quantified,
// confidence-scored symptom data and derives the clinical-adjacent
// summaries (risk level, urgency, specialist, care timeframe).
package symptoms

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Record is the canonical shape for one extracted symptom. Severity is
// always on the 0-10 scale and Confidence on 0-100; both are clamped by
// every producer in this package.
type Record struct {
	Name           string   `json:"name"`
	Severity       float64  `json:"severity"`
	Duration       string   `json:"duration"`
	Pattern        string   `json:"pattern"`
	Confidence     float64  `json:"confidence"`
	RelatedFactors []string `json:"related_factors,omitempty"`
}

// UnmarshalJSON accepts the legacy "intensity" key still present in
// older stored histories and folds it into Severity.
func (r *Record) UnmarshalJSON(data []byte) error {
	type alias Record
	aux := struct {
		*alias
		Intensity *float64 `json:"intensity"`
	}{alias: (*alias)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.Intensity != nil && r.Severity == 0 {
		r.Severity = ClampSeverity(*aux.Intensity)
	}
	return nil
}

// Analysis is the aggregate view over all symptoms in a session. It is
// derived entirely from the conversation context and never persisted on
// its own, only embedded in the turn that produced it.
type Analysis struct {
	Symptoms    []Record `json:"symptoms"`
	Progression string   `json:"progression"`
	RiskLevel   string   `json:"risk_level"` // low|medium|high
	Urgency     string   `json:"urgency"`    // routine|prompt|immediate
	Confidence  float64  `json:"confidence"` // 0..100
}

// Observation accumulates the evidence for one symptom name across turns.
type Observation struct {
	Name            string
	Mentions        int
	SeverityWorded  bool      // an adjective like "severe" accompanied a mention
	PatternWorded   bool      // a type descriptor like "intermittent" was given
	Intensities     []float64 // explicit N/10 style values
	adjectiveScores []float64
	factors         map[string]struct{}
}

// Observations maps a normalized (lower-cased) symptom name to its evidence.
type Observations map[string]*Observation

const (
	defaultIntensity = 5.0 // midpoint assumed when the patient never gave a number

	weightMentions  = 0.4
	weightDetail    = 0.3
	weightIntensity = 0.3
)

var severityAdjectives = map[string]float64{
	"mild":       2,
	"slight":     2,
	"dull":       4,
	"moderate":   5,
	"bad":        6,
	"throbbing":  6,
	"chronic":    6,
	"persistent": 6,
	"sharp":      7,
	"acute":      7,
	"severe":     8,
	"intense":    8,
	"terrible":   9,
	"unbearable": 9,
}

var patternDescriptors = []string{
	"constant", "intermittent", "progressive", "recurring", "occasional", "comes and goes",
}

// stopList filters spurious captures from the generic "pain in X" pattern:
// articles, conjunctions, possessives and similar glue words.
var stopList = map[string]struct{}{
	"a": {}, "an": {}, "the": {},
	"and": {}, "or": {}, "but": {}, "so": {},
	"my": {}, "your": {}, "his": {}, "her": {}, "its": {}, "their": {}, "our": {},
	"it": {}, "is": {}, "was": {}, "very": {}, "me": {}, "general": {},
}

var knownSymptoms = []string{
	"headache", "migraine", "fever", "cough", "sore throat", "chest pain",
	"back pain", "stomach ache", "nausea", "vomiting", "diarrhea", "dizziness",
	"fatigue", "rash", "insomnia", "anxiety", "shortness of breath",
	"palpitations", "indigestion", "allergies", "congestion", "chills",
	"swelling", "numbness", "cramps", "stress",
}

var (
	symptomRE     *regexp.Regexp
	adjSymptomRE  *regexp.Regexp
	genericPainRE = regexp.MustCompile(`(?i)\b(?:pain|ache|aching|hurts?|hurting|discomfort)\s+(?:in|around|near)\s+(?:my\s+|the\s+)?([a-zA-Z]+)`)
	intensityRE   = regexp.MustCompile(`(?i)\b(\d+(?:\.\d+)?)\s*(?:/|\s*out\s+of\s*)\s*10\b`)
	durationRE    = regexp.MustCompile(`(?i)\b(?:for|since|about|over|past|last)\s+((?:a\s+|an\s+|the\s+)?(?:few\s+|couple\s+(?:of\s+)?)?\w+\s+(?:minutes?|hours?|days?|weeks?|months?|years?|night|morning))`)
)

func init() {
	names := make([]string, len(knownSymptoms))
	copy(names, knownSymptoms)
	// longest first so "chest pain" wins over a bare "pain" capture
	sort.Slice(names, func(i, j int) bool { return len(names[i]) > len(names[j]) })
	alt := strings.Join(names, "|")
	adjAlt := make([]string, 0, len(severityAdjectives))
	for adj := range severityAdjectives {
		adjAlt = append(adjAlt, adj)
	}
	sort.Strings(adjAlt)
	symptomRE = regexp.MustCompile(`(?i)\b(` + strings.ReplaceAll(alt, " ", `\s+`) + `)\b`)
	adjSymptomRE = regexp.MustCompile(`(?i)\b(` + strings.Join(adjAlt, "|") + `)\s+(` + strings.ReplaceAll(alt, " ", `\s+`) + `)\b`)
}

// Analyzer extracts and scores symptoms. It is stateless and safe for
// concurrent use; all evidence lives in the Observations passed around.
type Analyzer struct{}

func NewAnalyzer() *Analyzer { return &Analyzer{} }

// ExtractFromTurn folds the evidence from one patient utterance into obs.
// Unparseable or empty text contributes nothing; it never fails.
func (a *Analyzer) ExtractFromTurn(text string, obs Observations) {
	if obs == nil || strings.TrimSpace(text) == "" {
		return
	}
	lower := strings.ToLower(text)

	record := func(name string) *Observation {
		name = normalizeName(name)
		o, ok := obs[name]
		if !ok {
			o = &Observation{Name: name, factors: map[string]struct{}{}}
			obs[name] = o
		}
		o.Mentions++
		return o
	}

	seen := map[string]*Observation{}

	// adjective-qualified mentions first so the severity wording is credited
	for _, m := range adjSymptomRE.FindAllStringSubmatch(lower, -1) {
		o := record(m[2])
		o.SeverityWorded = true
		o.adjectiveScores = append(o.adjectiveScores, severityAdjectives[strings.ToLower(m[1])])
		seen[o.Name] = o
	}
	for _, m := range symptomRE.FindAllStringSubmatch(lower, -1) {
		name := normalizeName(m[1])
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = record(name)
	}
	for _, m := range genericPainRE.FindAllStringSubmatch(lower, -1) {
		part := strings.ToLower(m[1])
		if _, stop := stopList[part]; stop {
			continue
		}
		name := part + " pain"
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = record(name)
	}
	if len(seen) == 0 {
		return
	}

	// turn-level details apply to every symptom mentioned in the turn
	var pattern string
	for _, desc := range patternDescriptors {
		if strings.Contains(lower, desc) {
			pattern = desc
			break
		}
	}
	var duration string
	if m := durationRE.FindStringSubmatch(text); m != nil {
		duration = strings.TrimSpace(m[1])
	}
	var intensities []float64
	for _, m := range intensityRE.FindAllStringSubmatch(lower, -1) {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			intensities = append(intensities, ClampSeverity(v))
		}
	}
	for _, o := range seen {
		if pattern != "" {
			o.PatternWorded = true
			o.factors[pattern] = struct{}{}
		}
		if duration != "" {
			o.factors["duration: "+duration] = struct{}{}
		}
		o.Intensities = append(o.Intensities, intensities...)
	}
}

// Score converts accumulated observations into confidence-scored records.
// Confidence is a weighted sum of mention consistency, detail diversity and
// intensity presence, scaled to 0-100.
func (a *Analyzer) Score(obs Observations) []Record {
	if len(obs) == 0 {
		return nil
	}
	names := make([]string, 0, len(obs))
	for name := range obs {
		names = append(names, name)
	}
	sort.Strings(names)

	records := make([]Record, 0, len(names))
	for _, name := range names {
		o := obs[name]

		consistency := math.Min(float64(o.Mentions)/3.0, 1.0)
		categories := 0
		if o.SeverityWorded {
			categories++
		}
		if o.PatternWorded {
			categories++
		}
		intensityPresent := 0.0
		if len(o.Intensities) > 0 {
			categories++
			intensityPresent = 1.0
		}
		confidence := 100 * (weightMentions*consistency +
			weightDetail*float64(categories)/3.0 +
			weightIntensity*intensityPresent)

		severity := defaultIntensity
		if len(o.Intensities) > 0 {
			severity = mean(o.Intensities)
		} else if len(o.adjectiveScores) > 0 {
			severity = mean(o.adjectiveScores)
		}

		pattern := "Not specified"
		duration := "Not specified"
		factors := make([]string, 0, len(o.factors))
		for f := range o.factors {
			factors = append(factors, f)
		}
		sort.Strings(factors)
		for _, f := range factors {
			if strings.HasPrefix(f, "duration: ") {
				duration = strings.TrimPrefix(f, "duration: ")
			} else if pattern == "Not specified" {
				pattern = f
			}
		}

		records = append(records, Record{
			Name:           o.Name,
			Severity:       ClampSeverity(severity),
			Duration:       duration,
			Pattern:        pattern,
			Confidence:     ClampConfidence(confidence),
			RelatedFactors: factors,
		})
	}
	return records
}

// Analyze runs extraction and scoring over a whole conversation's patient
// utterances and derives the aggregate view.
func (a *Analyzer) Analyze(patientTexts []string) Analysis {
	obs := Observations{}
	for _, text := range patientTexts {
		a.ExtractFromTurn(text, obs)
	}
	records := a.Score(obs)
	severity := AggregateSeverity(records)
	risk := RiskLevel(severity)
	return Analysis{
		Symptoms:    records,
		Progression: describeProgression(records),
		RiskLevel:   risk,
		Urgency:     urgencyFor(risk),
		Confidence:  ClampConfidence(meanConfidence(records)),
	}
}

// AggregateSeverity is the mean of per-symptom severities clamped to
// [0,10], kept at one decimal. Call sites that need a whole number round
// at the point of display. Empty input yields 0.
func AggregateSeverity(records []Record) float64 {
	if len(records) == 0 {
		return 0
	}
	total := 0.0
	for _, r := range records {
		total += ClampSeverity(r.Severity)
	}
	return math.Round(total/float64(len(records))*10) / 10
}

// RiskLevel maps an aggregate severity to the canonical three-band table:
// <=3 low, <=7 medium, >7 high.
func RiskLevel(severity float64) string {
	severity = ClampSeverity(severity)
	switch {
	case severity <= 3:
		return "low"
	case severity <= 7:
		return "medium"
	default:
		return "high"
	}
}

// RecommendTimeframe maps severity to the consultation urgency wording,
// monotonic over five bands.
func RecommendTimeframe(severity float64) string {
	severity = ClampSeverity(severity)
	switch {
	case severity <= 3:
		return "within 2 weeks"
	case severity <= 5:
		return "within 1 week"
	case severity <= 7:
		return "within 48 hours"
	case severity <= 9:
		return "within 24 hours"
	default:
		return "immediate"
	}
}

// specialistKeywords maps symptom-name substrings to a specialist. Votes
// are tallied across all symptoms; ties resolve in table order.
var specialistKeywords = []struct {
	keywords   []string
	specialist string
}{
	{[]string{"head", "migraine", "dizz", "numb"}, "Neurologist"},
	{[]string{"chest", "heart", "palpitation"}, "Cardiologist"},
	{[]string{"stomach", "abdom", "nausea", "indigestion", "bowel", "diarrhea", "vomit"}, "Gastroenterologist"},
	{[]string{"breath", "cough", "lung", "wheez", "congestion"}, "Pulmonologist"},
	{[]string{"skin", "rash", "itch"}, "Dermatologist"},
	{[]string{"joint", "muscle", "back", "knee", "cramp"}, "Orthopedist"},
	{[]string{"throat", "ear", "nose", "sinus"}, "Otolaryngologist"},
	{[]string{"anxiety", "depress", "insomnia", "stress"}, "Psychiatrist"},
}

// RecommendSpecialist tallies keyword votes across the symptom names and
// returns the specialist with the most matches, or "General Practitioner"
// when nothing matches.
func RecommendSpecialist(records []Record) string {
	best, bestVotes := "General Practitioner", 0
	for _, entry := range specialistKeywords {
		votes := 0
		for _, r := range records {
			name := strings.ToLower(r.Name)
			for _, kw := range entry.keywords {
				if strings.Contains(name, kw) {
					votes++
				}
			}
		}
		if votes > bestVotes {
			best, bestVotes = entry.specialist, votes
		}
	}
	return best
}

// ClampSeverity bounds a value to [0,10]; NaN collapses to 0.
func ClampSeverity(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 10 {
		return 10
	}
	return v
}

// ClampConfidence bounds a value to [0,100]; NaN collapses to 0.
func ClampConfidence(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func normalizeName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

func mean(vs []float64) float64 {
	if len(vs) == 0 {
		return 0
	}
	total := 0.0
	for _, v := range vs {
		total += v
	}
	return total / float64(len(vs))
}

func meanConfidence(records []Record) float64 {
	if len(records) == 0 {
		return 0
	}
	total := 0.0
	for _, r := range records {
		total += r.Confidence
	}
	return total / float64(len(records))
}

func describeProgression(records []Record) string {
	if len(records) == 0 {
		return "No symptoms identified yet."
	}
	worst := records[0]
	for _, r := range records[1:] {
		if r.Severity > worst.Severity {
			worst = r
		}
	}
	return fmt.Sprintf("%d symptom(s) reported; most severe is %s at %.1f/10.",
		len(records), worst.Name, worst.Severity)
}

func urgencyFor(risk string) string {
	switch risk {
	case "high":
		return "immediate"
	case "medium":
		return "prompt"
	default:
		return "routine"
	}
}
