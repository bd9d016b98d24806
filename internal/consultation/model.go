package consultation

import (
	"time"

	"github.com/google/uuid"

	"telemed-engine/internal/symptoms"
	"telemed-engine/internal/validator"
)

// Conversation stages. GATHERING collects symptom detail one question at
// a time; ASSESSING produces the final assessment. The stage is never
// stored, it is recomputed from the conversation context on every turn.
type Stage string

const (
	StageGathering Stage = "gathering"
	StageAssessing Stage = "assessing"
)

// Turn is one message within a session. Turns are immutable once
// appended; ordering is positional and time-ordered.
type Turn struct {
	Role      string    `json:"role"` // "patient" or "assistant"
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`

	// Assistant turns embed the analysis and validation that produced them.
	SymptomAnalysis *symptoms.Analysis `json:"symptom_analysis,omitempty"`
	Validation      *validator.Result  `json:"validation,omitempty"`
}

const (
	RolePatient   = "patient"
	RoleAssistant = "assistant"
)

// PatientDetails captures the intake form at session start. Age and
// gender feed the model prompt.
type PatientDetails struct {
	FirstName string  `json:"first_name"`
	LastName  string  `json:"last_name"`
	Age       int     `json:"age"`
	Gender    string  `json:"gender"`
	Height    float64 `json:"height"`
	Weight    float64 `json:"weight"`
	Email     string  `json:"email"`
	Mobile    string  `json:"mobile"`
}

// Consultation is the aggregate root persisted in the durable store.
type Consultation struct {
	ID      uuid.UUID      `json:"id"`
	Patient PatientDetails `json:"patient"`

	// started -> completed, or disconnected after terminal channel failure
	Status string `json:"status"`

	History []Turn   `json:"history"`
	Summary *Summary `json:"summary,omitempty"`

	RequiresEmergency bool      `json:"requires_emergency"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

const (
	StatusStarted      = "started"
	StatusCompleted    = "completed"
	StatusDisconnected = "disconnected"
)

// Diagnosis is the assessment block of a completed consultation.
// SeverityScore is rounded to a whole number here; the live payload keeps
// one decimal.
type Diagnosis struct {
	Symptoms          []symptoms.Record `json:"symptoms"`
	Description       string            `json:"description"`
	SeverityScore     int               `json:"severity_score"`
	RiskLevel         string            `json:"risk_level"`
	Timeframe         string            `json:"timeframe"`
	RecommendedDoctor string            `json:"recommended_doctor"`
}

// Recommendations is the guidance block delivered with assessments.
type Recommendations struct {
	Medications           []string `json:"medications"`
	HomeRemedies          []string `json:"home_remedies"`
	SafetyConcerns        []string `json:"safety_concerns"`
	SuggestedImprovements []string `json:"suggested_improvements"`
}

// Summary is the completed-consultation record persisted via
// UpdateSummary.
type Summary struct {
	Diagnosis       Diagnosis       `json:"diagnosis"`
	Recommendations Recommendations `json:"recommendations"`
	Urgency         string          `json:"urgency"`
	CompletedAt     time.Time       `json:"completed_at"`
}

// ResponsePayload is what goes back over the channel for one patient
// message.
type ResponsePayload struct {
	Status            string            `json:"status"` // "success" or "error"
	Message           string            `json:"message"`
	Stage             Stage             `json:"stage"`
	Symptoms          []symptoms.Record `json:"symptoms"`
	RiskLevel         string            `json:"risk_level"`
	Urgency           string            `json:"urgency"`
	SeverityScore     float64           `json:"severity_score"`
	RequiresEmergency bool              `json:"requires_emergency"`
	ConfidenceScores  []int             `json:"confidence_scores"`
	Recommendations   Recommendations   `json:"recommendations"`
	Timestamp         time.Time         `json:"timestamp"`
}
