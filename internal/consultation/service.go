package consultation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"telemed-engine/internal/logger"
	"telemed-engine/internal/metrics"
	"telemed-engine/internal/symptoms"
	"telemed-engine/internal/validator"
)

// CompletionClient is the AI text-completion capability. It is treated as
// a black box: given a prompt it returns a completion, with no latency or
// availability guarantee.
type CompletionClient interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// ContextStore is the bounded-lifetime session context cache. Context
// reads refresh the entry's TTL; an absent entry is not an error.
type ContextStore interface {
	Context(ctx context.Context, consultationID string) ([]Turn, error)
	StoreContext(ctx context.Context, consultationID string, turns []Turn) error
}

// Repository is the durable consultation record store.
type Repository interface {
	Create(ctx context.Context, c *Consultation) error
	GetByID(ctx context.Context, id uuid.UUID) (*Consultation, error)
	AppendTurn(ctx context.Context, id uuid.UUID, turn Turn) error
	UpdateEmergency(ctx context.Context, id uuid.UUID, requiresEmergency bool) error
	UpdateSummary(ctx context.Context, id uuid.UUID, summary *Summary) error
	MarkDisconnected(ctx context.Context, id uuid.UUID, lastContext []Turn) error
}

// TTSClient converts assistant text to audio. Best-effort side channel:
// failures never block the chat path.
type TTSClient interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// STTClient transcribes patient audio.
type STTClient interface {
	Transcribe(ctx context.Context, audioData []byte) (string, error)
}

const (
	fallbackModelFailure = "I apologize, but I'm having trouble processing your request. Please try again or rephrase your question."
	fallbackInvalidReply = "I apologize, but I need to rephrase my response. Could you please repeat your last message?"

	// at most one question-round beyond this the dialogue closes with an
	// assessment
	defaultMaxQuestions = 4
	severityCutoff      = 7.0
	promptWindow        = 5

	defaultModelTimeout = 30 * time.Second
)

// Config tunes the orchestrator. Zero values fall back to the defaults
// above.
type Config struct {
	MaxQuestions int
	ModelTimeout time.Duration
}

type Service interface {
	StartConsultation(ctx context.Context, details PatientDetails) (*Consultation, error)
	GetConsultation(ctx context.Context, id uuid.UUID) (*Consultation, error)
	ProcessMessage(ctx context.Context, consultationID string, message string) (*ResponsePayload, error)
	BuildSummary(ctx context.Context, id uuid.UUID) (*Summary, error)
	TranscribeAudio(ctx context.Context, audio []byte) (string, error)
	SynthesizeSpeech(ctx context.Context, text string) ([]byte, error)
}

type service struct {
	repo      Repository
	ctxStore  ContextStore
	model     CompletionClient
	analyzer  *symptoms.Analyzer
	validator *validator.Validator
	tts       TTSClient
	stt       STTClient
	metrics   *metrics.Metrics
	log       zerolog.Logger

	maxQuestions int
	modelTimeout time.Duration
	now          func() time.Time
}

func NewService(repo Repository, ctxStore ContextStore, model CompletionClient, tts TTSClient, stt STTClient, m *metrics.Metrics, log zerolog.Logger, cfg Config) Service {
	if cfg.MaxQuestions <= 0 {
		cfg.MaxQuestions = defaultMaxQuestions
	}
	if cfg.ModelTimeout <= 0 {
		cfg.ModelTimeout = defaultModelTimeout
	}
	return &service{
		repo:         repo,
		ctxStore:     ctxStore,
		model:        model,
		analyzer:     symptoms.NewAnalyzer(),
		validator:    validator.New(),
		tts:          tts,
		stt:          stt,
		metrics:      m,
		log:          log,
		maxQuestions: cfg.MaxQuestions,
		modelTimeout: cfg.ModelTimeout,
		now:          time.Now,
	}
}

func (s *service) StartConsultation(ctx context.Context, details PatientDetails) (*Consultation, error) {
	c := &Consultation{
		ID:        uuid.New(),
		Patient:   details,
		Status:    StatusStarted,
		History:   []Turn{},
		CreatedAt: s.now().UTC(),
		UpdatedAt: s.now().UTC(),
	}
	if err := s.repo.Create(ctx, c); err != nil {
		return nil, err
	}
	s.log.Info().Str("consultation_id", c.ID.String()).Msg("consultation started")
	return c, nil
}

func (s *service) GetConsultation(ctx context.Context, id uuid.UUID) (*Consultation, error) {
	return s.repo.GetByID(ctx, id)
}

// questionsAsked counts prior assistant turns containing a question mark.
// The count is recomputed from context rather than stored, so a partially
// failed persistence still yields a consistent dialogue state on the next
// turn.
func questionsAsked(turns []Turn) int {
	n := 0
	for _, t := range turns {
		if t.Role == RoleAssistant && strings.Contains(t.Content, "?") {
			n++
		}
	}
	return n
}

func (s *service) stage(turns []Turn, severity float64) Stage {
	if questionsAsked(turns) >= s.maxQuestions || severity >= severityCutoff {
		return StageAssessing
	}
	return StageGathering
}

// ProcessMessage runs the full per-message pipeline: context load, prompt
// build, model call, extraction, validation, payload assembly and
// persistence. It is the sole entry point for inbound patient messages.
func (s *service) ProcessMessage(ctx context.Context, consultationID string, message string) (*ResponsePayload, error) {
	started := s.now()
	id, err := uuid.Parse(consultationID)
	if err != nil {
		return nil, fmt.Errorf("invalid consultation id %q: %w", consultationID, err)
	}
	log := logger.ForSession(s.log, consultationID)

	record, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	turns := s.loadContext(ctx, consultationID, record)

	patientTurn := Turn{Role: RolePatient, Content: message, Timestamp: s.now().UTC()}
	turns = append(turns, patientTurn)

	// severity from everything said so far decides whether to keep asking
	analysis := s.analyzeTurns(turns)
	severity := symptoms.AggregateSeverity(analysis.Symptoms)
	stage := s.stage(turns, severity)

	prompt := s.buildPrompt(record.Patient, turns, message, stage)

	raw, modelErr := s.complete(ctx, prompt)
	if modelErr != nil {
		log.Warn().Err(modelErr).Msg("model call failed, using fallback reply")
		if s.metrics != nil {
			s.metrics.ModelFailuresTotal.Inc()
		}
		raw = fallbackModelFailure
	}

	var vres validator.Result
	display := raw
	if modelErr == nil {
		vres = s.validator.Validate(raw)
		if vres.Valid {
			display = s.validator.Enhance(vres)
		} else {
			log.Warn().Str("reason", vres.ErrorReason).Msg("model reply rejected by validator")
			if s.metrics != nil {
				s.metrics.ValidationRejections.WithLabelValues("structure").Inc()
			}
			display = fallbackInvalidReply
		}
	}

	emergency := vres.RequiresEmergency || analysis.RiskLevel == "high"
	if emergency && !vres.RequiresEmergency {
		display = "⚠️ URGENT: This requires immediate medical attention!\n\n" + display
	}

	payload := &ResponsePayload{
		Status:            "success",
		Message:           display,
		Stage:             stage,
		Symptoms:          analysis.Symptoms,
		RiskLevel:         analysis.RiskLevel,
		Urgency:           analysis.Urgency,
		SeverityScore:     severity,
		RequiresEmergency: emergency,
		ConfidenceScores:  vres.ConfidenceScores,
		Recommendations: Recommendations{
			Medications:           symptoms.Medications(analysis.Symptoms),
			HomeRemedies:          symptoms.HomeRemedies(analysis.Symptoms),
			SafetyConcerns:        symptoms.Precautions(analysis.Symptoms),
			SuggestedImprovements: vres.Recommendations,
		},
		Timestamp: s.now().UTC(),
	}

	assistantTurn := Turn{
		Role:            RoleAssistant,
		Content:         display,
		Timestamp:       s.now().UTC(),
		SymptomAnalysis: &analysis,
	}
	if modelErr == nil {
		assistantTurn.Validation = &vres
	}
	turns = append(turns, assistantTurn)

	// best-effort persistence: a failed write here must not lose the reply
	if err := s.repo.AppendTurn(ctx, id, patientTurn); err != nil {
		log.Error().Err(err).Msg("failed to persist patient turn")
	}
	if err := s.repo.AppendTurn(ctx, id, assistantTurn); err != nil {
		log.Error().Err(err).Msg("failed to persist assistant turn")
	}
	if err := s.ctxStore.StoreContext(ctx, consultationID, turns); err != nil {
		log.Error().Err(err).Msg("failed to refresh context cache")
	}
	if emergency && !record.RequiresEmergency {
		if err := s.repo.UpdateEmergency(ctx, id, true); err != nil {
			log.Error().Err(err).Msg("failed to flag emergency on record")
		}
	}

	if s.metrics != nil {
		s.metrics.MessagesTotal.WithLabelValues("success").Inc()
		s.metrics.PipelineDuration.Observe(s.now().Sub(started).Seconds())
	}
	return payload, nil
}

// loadContext reads the cached context, rebuilding it from durable
// history when the cache entry expired.
func (s *service) loadContext(ctx context.Context, consultationID string, record *Consultation) []Turn {
	turns, err := s.ctxStore.Context(ctx, consultationID)
	if err != nil {
		s.log.Warn().Err(err).Str("consultation_id", consultationID).Msg("context cache read failed")
	}
	if len(turns) == 0 && record != nil {
		turns = append(turns, record.History...)
	}
	return turns
}

func (s *service) analyzeTurns(turns []Turn) symptoms.Analysis {
	texts := make([]string, 0, len(turns))
	for _, t := range turns {
		if t.Role == RolePatient {
			texts = append(texts, t.Content)
		}
	}
	return s.analyzer.Analyze(texts)
}

// complete calls the model under a bounded timeout; a stalled call must
// not stall the whole session pipeline.
func (s *service) complete(ctx context.Context, prompt string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.modelTimeout)
	defer cancel()
	return s.model.Complete(callCtx, prompt)
}

func (s *service) buildPrompt(patient PatientDetails, turns []Turn, message string, stage Stage) string {
	asked := questionsAsked(turns)

	var b strings.Builder
	b.WriteString("As a medical AI assistant, respond to this patient considering their full context.\n\n")
	fmt.Fprintf(&b, "Patient Details:\nAge: %d\nGender: %s\n\n", patient.Age, patient.Gender)

	b.WriteString("Conversation History:\n")
	window := turns
	if len(window) > promptWindow {
		window = window[len(window)-promptWindow:]
	}
	for _, t := range window {
		role := "Assistant"
		if t.Role == RolePatient {
			role = "Patient"
		}
		fmt.Fprintf(&b, "%s: %s\n", role, t.Content)
	}

	fmt.Fprintf(&b, "\nCurrent Message: %s\nQuestions Asked: %d/%d\n\n", message, asked, s.maxQuestions)
	b.WriteString("IMPORTANT RULES:\n")
	b.WriteString("1. Ask only ONE specific question about the symptom\n")
	b.WriteString("2. Focus on the most important aspect first\n")
	b.WriteString("3. Each response should be focused and under 50 words\n")
	b.WriteString("4. Do not provide treatment advice until symptoms are fully understood\n")
	b.WriteString("5. Tag your confidence as [Confidence: N%] and guidance as [Recommendation: ...]\n\n")
	if stage == StageAssessing {
		b.WriteString("Provide final assessment and recommendations instead of another question.")
	} else {
		b.WriteString("Ask the next most relevant question.")
	}
	return b.String()
}

// BuildSummary assembles the completed-consultation summary from durable
// history, persists it and moves the record to completed.
func (s *service) BuildSummary(ctx context.Context, id uuid.UUID) (*Summary, error) {
	record, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	analysis := s.analyzeTurns(record.History)
	severity := symptoms.AggregateSeverity(analysis.Symptoms)

	summary := &Summary{
		Diagnosis: Diagnosis{
			Symptoms:          analysis.Symptoms,
			Description:       symptoms.DescribeDiagnosis(analysis.Symptoms),
			SeverityScore:     int(severity + 0.5),
			RiskLevel:         analysis.RiskLevel,
			Timeframe:         symptoms.RecommendTimeframe(severity),
			RecommendedDoctor: symptoms.RecommendSpecialist(analysis.Symptoms),
		},
		Recommendations: Recommendations{
			Medications:           symptoms.Medications(analysis.Symptoms),
			HomeRemedies:          symptoms.HomeRemedies(analysis.Symptoms),
			SafetyConcerns:        symptoms.Precautions(analysis.Symptoms),
			SuggestedImprovements: []string{},
		},
		Urgency:     analysis.Urgency,
		CompletedAt: s.now().UTC(),
	}
	if err := s.repo.UpdateSummary(ctx, id, summary); err != nil {
		return nil, err
	}
	return summary, nil
}

func (s *service) TranscribeAudio(ctx context.Context, audio []byte) (string, error) {
	if s.stt == nil {
		return "", fmt.Errorf("speech-to-text is not configured")
	}
	return s.stt.Transcribe(ctx, audio)
}

func (s *service) SynthesizeSpeech(ctx context.Context, text string) ([]byte, error) {
	if s.tts == nil {
		return nil, fmt.Errorf("text-to-speech is not configured")
	}
	return s.tts.Synthesize(ctx, text)
}
