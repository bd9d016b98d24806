package validator

import (
	"reflect"
	"strings"
	"testing"
)

const validCompletion = "Your symptoms suggest a mild tension headache around 4/10. " +
	"[Confidence: 85%] [Recommendation: Rest and stay hydrated] " +
	"Please monitor how the pain develops over the next day."

func TestValidate(t *testing.T) {
	v := New()

	t.Run("valid completion", func(t *testing.T) {
		res := v.Validate(validCompletion)
		if !res.Valid {
			t.Fatalf("expected valid, got rejection: %s", res.ErrorReason)
		}
		if !reflect.DeepEqual(res.ConfidenceScores, []int{85}) {
			t.Errorf("confidence scores = %v, want [85]", res.ConfidenceScores)
		}
		if !reflect.DeepEqual(res.Recommendations, []string{"Rest and stay hydrated"}) {
			t.Errorf("recommendations = %v", res.Recommendations)
		}
		if !reflect.DeepEqual(res.SeverityScores, []int{4}) {
			t.Errorf("severity scores = %v, want [4]", res.SeverityScores)
		}
		if strings.Contains(res.DisplayText, "[") {
			t.Errorf("display text still contains tags: %q", res.DisplayText)
		}
	})

	t.Run("missing confidence and recommendation", func(t *testing.T) {
		res := v.Validate("Your symptoms sound like they could be related to a mild condition affecting you.")
		if res.Valid {
			t.Fatal("expected rejection")
		}
		if !reflect.DeepEqual(res.MissingElements, []string{"confidence score", "recommendation"}) {
			t.Errorf("missing elements = %v, want both tag classes", res.MissingElements)
		}
		if res.RequiresEmergency {
			t.Error("emergency must default to false on rejection")
		}
		if !strings.Contains(res.ErrorReason, "confidence score") || !strings.Contains(res.ErrorReason, "recommendation") {
			t.Errorf("error reason should enumerate missing classes: %q", res.ErrorReason)
		}
	})

	t.Run("too short", func(t *testing.T) {
		res := v.Validate("ok")
		if res.Valid {
			t.Fatal("expected rejection")
		}
		if res.MissingElements[0] != "minimum length" {
			t.Errorf("missing = %v, want minimum length first", res.MissingElements)
		}
	})

	t.Run("missing symptom vocabulary", func(t *testing.T) {
		res := v.Validate("Thank you for the update. [Confidence: 90%] [Recommendation: Keep me posted] All clear on my side today.")
		if res.Valid {
			t.Fatal("expected rejection")
		}
		if !reflect.DeepEqual(res.MissingElements, []string{"symptom mention"}) {
			t.Errorf("missing elements = %v, want symptom mention", res.MissingElements)
		}
	})
}

func TestExtractStructured(t *testing.T) {
	v := New()

	res := v.ExtractStructured("The pain is serious, maybe 7/10 or even 8/10. " +
		"[Confidence: 60%] [Confidence: 70%] [Recommendation: See a doctor]")
	if !reflect.DeepEqual(res.ConfidenceScores, []int{60, 70}) {
		t.Errorf("confidence scores = %v", res.ConfidenceScores)
	}
	if got := res.AverageConfidence(); got != 65 {
		t.Errorf("average confidence = %v, want 65", got)
	}
	if !reflect.DeepEqual(res.SeverityScores, []int{7, 8}) {
		t.Errorf("severity scores = %v", res.SeverityScores)
	}
	if !res.RequiresEmergency {
		t.Error("expected emergency flag from 'serious'")
	}

	empty := v.ExtractStructured("nothing structured here")
	if empty.AverageConfidence() != 0 {
		t.Errorf("average confidence without scores = %v, want 0", empty.AverageConfidence())
	}
	if empty.RequiresEmergency {
		t.Error("no emergency vocabulary present")
	}
}

func TestEnhance(t *testing.T) {
	v := New()

	t.Run("all augmentations in fixed order", func(t *testing.T) {
		res := Result{
			DisplayText:       "You may have a concussion.",
			ConfidenceScores:  []int{40},
			Recommendations:   []string{"Go to the emergency room"},
			RequiresEmergency: true,
		}
		out := v.Enhance(res)

		bannerIdx := strings.Index(out, "IMPORTANT")
		bodyIdx := strings.Index(out, "concussion")
		noteIdx := strings.Index(out, "limited information")
		recIdx := strings.Index(out, "Recommendations:")
		if bannerIdx == -1 || bodyIdx == -1 || noteIdx == -1 || recIdx == -1 {
			t.Fatalf("missing augmentation in output:\n%s", out)
		}
		if !(bannerIdx < bodyIdx && bodyIdx < noteIdx && noteIdx < recIdx) {
			t.Errorf("augmentations out of order (banner %d, body %d, note %d, recs %d):\n%s",
				bannerIdx, bodyIdx, noteIdx, recIdx, out)
		}
		if !strings.Contains(out, "• Go to the emergency room") {
			t.Errorf("recommendations not bulleted:\n%s", out)
		}
	})

	t.Run("absent scores read as low confidence", func(t *testing.T) {
		res := Result{DisplayText: "Please tell me more about the pain."}
		out := v.Enhance(res)
		if !strings.Contains(out, "limited information") {
			t.Errorf("disclaimer missing without confidence scores:\n%s", out)
		}
	})

	t.Run("no augmentations", func(t *testing.T) {
		res := Result{DisplayText: "Please tell me more.", ConfidenceScores: []int{90}}
		if out := v.Enhance(res); out != "Please tell me more." {
			t.Errorf("unexpected augmentation: %q", out)
		}
	})
}
