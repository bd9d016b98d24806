// Package validator enforces structural contracts on AI-generated text
// before it is shown to the patient.
package validator

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

const minResponseLength = 50

// Result is the per-completion validation outcome consumed once by the
// orchestrator. Valid=false always comes with an ErrorReason naming the
// missing elements.
type Result struct {
	Valid             bool     `json:"valid"`
	ErrorReason       string   `json:"error_reason,omitempty"`
	MissingElements   []string `json:"missing_elements,omitempty"`
	ConfidenceScores  []int    `json:"confidence_scores"`
	Recommendations   []string `json:"recommendations"`
	SeverityScores    []int    `json:"severity_scores"`
	RequiresEmergency bool     `json:"requires_emergency"`
	// DisplayText is the narrative with all bracketed tags stripped.
	DisplayText string `json:"-"`
}

var (
	symptomVocabRE   = regexp.MustCompile(`(?i)symptom|pain|discomfort|feeling|condition`)
	confidenceTagRE  = regexp.MustCompile(`\[Confidence:\s*(\d+)%\]`)
	recommendationRE = regexp.MustCompile(`\[Recommendation:(.*?)\]`)
	emergencyRE      = regexp.MustCompile(`(?i)emergency|immediate|urgent|serious|severe`)
	severityScoreRE  = regexp.MustCompile(`(\d+)/10`)
	bracketTagRE     = regexp.MustCompile(`\[[^\]]*\]`)
)

// Validator checks AI completions for the mandatory structural markers.
type Validator struct{}

func New() *Validator { return &Validator{} }

// Validate checks the completion shape and, when it passes, extracts the
// structured fields. The three mandatory classes are symptom vocabulary, a
// confidence tag and a recommendation tag; emergency vocabulary is
// extracted but not required.
func (v *Validator) Validate(responseText string) Result {
	var missing []string
	if len(strings.TrimSpace(responseText)) < minResponseLength {
		missing = append(missing, "minimum length")
	}
	if !symptomVocabRE.MatchString(responseText) {
		missing = append(missing, "symptom mention")
	}
	if !confidenceTagRE.MatchString(responseText) {
		missing = append(missing, "confidence score")
	}
	if !recommendationRE.MatchString(responseText) {
		missing = append(missing, "recommendation")
	}
	if len(missing) > 0 {
		return Result{
			Valid:           false,
			ErrorReason:     fmt.Sprintf("response missing required elements: %s", strings.Join(missing, ", ")),
			MissingElements: missing,
		}
	}
	res := v.ExtractStructured(responseText)
	res.Valid = true
	return res
}

// ExtractStructured pulls all confidence percentages, recommendation
// bodies and N/10 severity mentions out of the completion and strips the
// bracketed tags from the narrative.
func (v *Validator) ExtractStructured(responseText string) Result {
	res := Result{
		ConfidenceScores: []int{},
		Recommendations:  []string{},
		SeverityScores:   []int{},
	}
	for _, m := range confidenceTagRE.FindAllStringSubmatch(responseText, -1) {
		if n, err := strconv.Atoi(m[1]); err == nil {
			res.ConfidenceScores = append(res.ConfidenceScores, n)
		}
	}
	for _, m := range recommendationRE.FindAllStringSubmatch(responseText, -1) {
		res.Recommendations = append(res.Recommendations, strings.TrimSpace(m[1]))
	}
	for _, m := range severityScoreRE.FindAllStringSubmatch(responseText, -1) {
		if n, err := strconv.Atoi(m[1]); err == nil {
			res.SeverityScores = append(res.SeverityScores, n)
		}
	}
	res.RequiresEmergency = emergencyRE.MatchString(responseText)
	res.DisplayText = strings.TrimSpace(bracketTagRE.ReplaceAllString(responseText, ""))
	return res
}

// AverageConfidence is the mean of the extracted confidence scores, 0
// when none were present.
func (r Result) AverageConfidence() float64 {
	if len(r.ConfidenceScores) == 0 {
		return 0
	}
	total := 0
	for _, s := range r.ConfidenceScores {
		total += s
	}
	return float64(total) / float64(len(r.ConfidenceScores))
}

const (
	emergencyBanner = "⚠️ IMPORTANT: Based on your symptoms, immediate medical attention may be required.\n\n"
	lowConfidenceNote = "\n\nPlease note: This assessment is based on limited information. A medical professional can provide a more accurate evaluation."
)

// Enhance renders the display text with the three independent
// augmentations in fixed order: emergency banner first, then the body,
// the low-confidence disclaimer, and the recommendations block last.
func (v *Validator) Enhance(res Result) string {
	enhanced := res.DisplayText

	// absent scores average to 0 and read as low confidence
	if res.AverageConfidence() < 70 {
		enhanced += lowConfidenceNote
	}
	if res.RequiresEmergency {
		enhanced = emergencyBanner + enhanced
	}
	if len(res.Recommendations) > 0 {
		var b strings.Builder
		b.WriteString(enhanced)
		b.WriteString("\n\nRecommendations:\n")
		for i, rec := range res.Recommendations {
			if i > 0 {
				b.WriteString("\n")
			}
			b.WriteString("• " + rec)
		}
		enhanced = b.String()
	}
	return enhanced
}
