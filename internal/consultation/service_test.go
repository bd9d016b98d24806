package consultation

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const okCompletion = "I understand your symptoms. How long have you had this pain? " +
	"[Confidence: 80%] [Recommendation: Keep a symptom diary]"

type fakeRepo struct {
	records   map[uuid.UUID]*Consultation
	appended  []Turn
	summaries map[uuid.UUID]*Summary
	appendErr error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		records:   map[uuid.UUID]*Consultation{},
		summaries: map[uuid.UUID]*Summary{},
	}
}

func (r *fakeRepo) Create(_ context.Context, c *Consultation) error {
	r.records[c.ID] = c
	return nil
}

func (r *fakeRepo) GetByID(_ context.Context, id uuid.UUID) (*Consultation, error) {
	c, ok := r.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return c, nil
}

func (r *fakeRepo) AppendTurn(_ context.Context, id uuid.UUID, turn Turn) error {
	if r.appendErr != nil {
		return r.appendErr
	}
	r.appended = append(r.appended, turn)
	if c, ok := r.records[id]; ok {
		c.History = append(c.History, turn)
	}
	return nil
}

func (r *fakeRepo) UpdateEmergency(_ context.Context, id uuid.UUID, requiresEmergency bool) error {
	c, ok := r.records[id]
	if !ok {
		return ErrNotFound
	}
	c.RequiresEmergency = requiresEmergency
	return nil
}

func (r *fakeRepo) UpdateSummary(_ context.Context, id uuid.UUID, summary *Summary) error {
	r.summaries[id] = summary
	if c, ok := r.records[id]; ok {
		c.Summary = summary
		c.Status = StatusCompleted
	}
	return nil
}

func (r *fakeRepo) MarkDisconnected(_ context.Context, id uuid.UUID, lastContext []Turn) error {
	if c, ok := r.records[id]; ok {
		c.Status = StatusDisconnected
	}
	return nil
}

type fakeContextStore struct {
	entries map[string][]Turn
}

func newFakeContextStore() *fakeContextStore {
	return &fakeContextStore{entries: map[string][]Turn{}}
}

func (s *fakeContextStore) Context(_ context.Context, id string) ([]Turn, error) {
	return s.entries[id], nil
}

func (s *fakeContextStore) StoreContext(_ context.Context, id string, turns []Turn) error {
	s.entries[id] = turns
	return nil
}

type fakeModel struct {
	reply   string
	err     error
	prompts []string
}

func (m *fakeModel) Complete(_ context.Context, prompt string) (string, error) {
	m.prompts = append(m.prompts, prompt)
	if m.err != nil {
		return "", m.err
	}
	return m.reply, nil
}

func newTestService(repo Repository, store ContextStore, model CompletionClient) *service {
	s := NewService(repo, store, model, nil, nil, nil, zerolog.Nop(), Config{}).(*service)
	s.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	return s
}

func seedConsultation(t *testing.T, repo *fakeRepo, svc *service) *Consultation {
	t.Helper()
	c, err := svc.StartConsultation(context.Background(), PatientDetails{Age: 34, Gender: "female"})
	if err != nil {
		t.Fatalf("StartConsultation: %v", err)
	}
	return c
}

func TestStartConsultation(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, newFakeContextStore(), &fakeModel{reply: okCompletion})

	c := seedConsultation(t, repo, svc)
	if c.Status != StatusStarted {
		t.Errorf("status = %q, want %q", c.Status, StatusStarted)
	}
	if len(c.History) != 0 {
		t.Errorf("new consultation should have empty history, got %d turns", len(c.History))
	}
	if _, ok := repo.records[c.ID]; !ok {
		t.Error("record not persisted")
	}
}

func TestProcessMessage(t *testing.T) {
	ctx := context.Background()

	t.Run("valid completion is enhanced and persisted", func(t *testing.T) {
		repo := newFakeRepo()
		store := newFakeContextStore()
		model := &fakeModel{reply: okCompletion}
		svc := newTestService(repo, store, model)
		c := seedConsultation(t, repo, svc)

		payload, err := svc.ProcessMessage(ctx, c.ID.String(), "I have a mild headache")
		if err != nil {
			t.Fatalf("ProcessMessage: %v", err)
		}
		if payload.Status != "success" {
			t.Errorf("status = %q", payload.Status)
		}
		if payload.Stage != StageGathering {
			t.Errorf("stage = %q, want gathering", payload.Stage)
		}
		if payload.RiskLevel != "low" || payload.Urgency != "routine" {
			t.Errorf("risk/urgency = %q/%q", payload.RiskLevel, payload.Urgency)
		}
		if payload.SeverityScore != 2 {
			t.Errorf("severity = %v, want 2 from the adjective", payload.SeverityScore)
		}
		if strings.Contains(payload.Message, "[Confidence") {
			t.Errorf("tags not stripped: %q", payload.Message)
		}
		if !strings.Contains(payload.Message, "• Keep a symptom diary") {
			t.Errorf("recommendation block missing: %q", payload.Message)
		}
		if len(repo.appended) != 2 || repo.appended[0].Role != RolePatient || repo.appended[1].Role != RoleAssistant {
			t.Fatalf("persisted turns = %+v", repo.appended)
		}
		if repo.appended[1].SymptomAnalysis == nil || repo.appended[1].Validation == nil {
			t.Error("assistant turn should embed analysis and validation")
		}
		if got := len(store.entries[c.ID.String()]); got != 2 {
			t.Errorf("cached context has %d turns, want 2", got)
		}
		prompt := model.prompts[0]
		if !strings.Contains(prompt, "Age: 34") || !strings.Contains(prompt, "Patient: I have a mild headache") {
			t.Errorf("prompt missing patient context:\n%s", prompt)
		}
		if !strings.Contains(prompt, "Questions Asked: 0/4") {
			t.Errorf("prompt question budget wrong:\n%s", prompt)
		}
		if !strings.Contains(prompt, "Ask the next most relevant question.") {
			t.Errorf("gathering prompt should ask for a question:\n%s", prompt)
		}
	})

	t.Run("invalid completion falls back", func(t *testing.T) {
		repo := newFakeRepo()
		svc := newTestService(repo, newFakeContextStore(), &fakeModel{reply: "too short"})
		c := seedConsultation(t, repo, svc)

		payload, err := svc.ProcessMessage(ctx, c.ID.String(), "I have a cough")
		if err != nil {
			t.Fatalf("ProcessMessage: %v", err)
		}
		if payload.Message != fallbackInvalidReply {
			t.Errorf("message = %q, want validation fallback", payload.Message)
		}
		if payload.RequiresEmergency {
			t.Error("rejected completion must not flag emergency")
		}
		if len(payload.ConfidenceScores) != 0 {
			t.Errorf("no scores expected, got %v", payload.ConfidenceScores)
		}
	})

	t.Run("model failure falls back without validation", func(t *testing.T) {
		repo := newFakeRepo()
		svc := newTestService(repo, newFakeContextStore(), &fakeModel{err: errors.New("upstream timeout")})
		c := seedConsultation(t, repo, svc)

		payload, err := svc.ProcessMessage(ctx, c.ID.String(), "I feel dizzy")
		if err != nil {
			t.Fatalf("ProcessMessage: %v", err)
		}
		if payload.Message != fallbackModelFailure {
			t.Errorf("message = %q, want model fallback", payload.Message)
		}
		if repo.appended[1].Validation != nil {
			t.Error("fallback reply must not carry a validation result")
		}
	})

	t.Run("question budget moves stage to assessing", func(t *testing.T) {
		repo := newFakeRepo()
		store := newFakeContextStore()
		model := &fakeModel{reply: okCompletion}
		svc := newTestService(repo, store, model)
		c := seedConsultation(t, repo, svc)

		prior := make([]Turn, 0, 8)
		for i := 0; i < 4; i++ {
			prior = append(prior,
				Turn{Role: RolePatient, Content: "still the same headache"},
				Turn{Role: RoleAssistant, Content: "Can you tell me more?"},
			)
		}
		store.entries[c.ID.String()] = prior

		payload, err := svc.ProcessMessage(ctx, c.ID.String(), "anything else you need?")
		if err != nil {
			t.Fatalf("ProcessMessage: %v", err)
		}
		if payload.Stage != StageAssessing {
			t.Errorf("stage = %q, want assessing after 4 questions", payload.Stage)
		}
		prompt := model.prompts[0]
		if !strings.Contains(prompt, "Questions Asked: 4/4") {
			t.Errorf("prompt question budget wrong:\n%s", prompt)
		}
		if !strings.Contains(prompt, "Provide final assessment and recommendations") {
			t.Errorf("assessing prompt should request the assessment:\n%s", prompt)
		}
	})

	t.Run("high severity short-circuits to assessing with banner", func(t *testing.T) {
		repo := newFakeRepo()
		svc := newTestService(repo, newFakeContextStore(), &fakeModel{reply: okCompletion})
		c := seedConsultation(t, repo, svc)

		payload, err := svc.ProcessMessage(ctx, c.ID.String(), "I have an unbearable headache, it is 9/10")
		if err != nil {
			t.Fatalf("ProcessMessage: %v", err)
		}
		if payload.Stage != StageAssessing {
			t.Errorf("stage = %q, want assessing at severity %v", payload.Stage, payload.SeverityScore)
		}
		if payload.RiskLevel != "high" || payload.Urgency != "immediate" {
			t.Errorf("risk/urgency = %q/%q", payload.RiskLevel, payload.Urgency)
		}
		if !payload.RequiresEmergency {
			t.Error("high risk must flag emergency")
		}
		if !strings.HasPrefix(payload.Message, "⚠️ URGENT:") {
			t.Errorf("urgent banner missing:\n%s", payload.Message)
		}
		if !repo.records[c.ID].RequiresEmergency {
			t.Error("durable record should carry the emergency flag")
		}
	})

	t.Run("low severity leaves the emergency flag down", func(t *testing.T) {
		repo := newFakeRepo()
		svc := newTestService(repo, newFakeContextStore(), &fakeModel{reply: okCompletion})
		c := seedConsultation(t, repo, svc)

		if _, err := svc.ProcessMessage(ctx, c.ID.String(), "I have a mild headache"); err != nil {
			t.Fatalf("ProcessMessage: %v", err)
		}
		if repo.records[c.ID].RequiresEmergency {
			t.Error("non-emergency message must not flag the record")
		}
	})

	t.Run("context rebuilt from durable history on cache miss", func(t *testing.T) {
		repo := newFakeRepo()
		model := &fakeModel{reply: okCompletion}
		svc := newTestService(repo, newFakeContextStore(), model)
		c := seedConsultation(t, repo, svc)
		c.History = []Turn{
			{Role: RolePatient, Content: "my back hurts"},
			{Role: RoleAssistant, Content: "Where exactly is the pain?"},
		}

		if _, err := svc.ProcessMessage(ctx, c.ID.String(), "lower back, left side"); err != nil {
			t.Fatalf("ProcessMessage: %v", err)
		}
		prompt := model.prompts[0]
		if !strings.Contains(prompt, "Assistant: Where exactly is the pain?") {
			t.Errorf("durable history not rebuilt into prompt:\n%s", prompt)
		}
		if !strings.Contains(prompt, "Questions Asked: 1/4") {
			t.Errorf("question count should include durable history:\n%s", prompt)
		}
	})

	t.Run("persistence failure does not lose the reply", func(t *testing.T) {
		repo := newFakeRepo()
		repo.appendErr = errors.New("db down")
		svc := newTestService(repo, newFakeContextStore(), &fakeModel{reply: okCompletion})
		c := seedConsultation(t, repo, svc)

		payload, err := svc.ProcessMessage(ctx, c.ID.String(), "I have a fever")
		if err != nil {
			t.Fatalf("ProcessMessage should tolerate append failure, got %v", err)
		}
		if payload.Status != "success" {
			t.Errorf("status = %q", payload.Status)
		}
	})

	t.Run("invalid consultation id", func(t *testing.T) {
		svc := newTestService(newFakeRepo(), newFakeContextStore(), &fakeModel{reply: okCompletion})
		if _, err := svc.ProcessMessage(ctx, "not-a-uuid", "hello"); err == nil {
			t.Fatal("expected error for malformed id")
		}
	})

	t.Run("unknown consultation", func(t *testing.T) {
		svc := newTestService(newFakeRepo(), newFakeContextStore(), &fakeModel{reply: okCompletion})
		if _, err := svc.ProcessMessage(ctx, uuid.NewString(), "hello"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("err = %v, want ErrNotFound", err)
		}
	})
}

func TestBuildSummary(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, newFakeContextStore(), &fakeModel{reply: okCompletion})
	c := seedConsultation(t, repo, svc)
	c.History = []Turn{
		{Role: RolePatient, Content: "I have had a terrible migraine for three days, about 8/10"},
		{Role: RoleAssistant, Content: "How is it progressing?"},
	}

	summary, err := svc.BuildSummary(context.Background(), c.ID)
	if err != nil {
		t.Fatalf("BuildSummary: %v", err)
	}
	if summary.Diagnosis.SeverityScore != 8 {
		t.Errorf("severity = %d, want 8", summary.Diagnosis.SeverityScore)
	}
	if summary.Diagnosis.RiskLevel != "high" || summary.Urgency != "immediate" {
		t.Errorf("risk/urgency = %q/%q", summary.Diagnosis.RiskLevel, summary.Urgency)
	}
	if summary.Diagnosis.Timeframe != "within 24 hours" {
		t.Errorf("timeframe = %q", summary.Diagnosis.Timeframe)
	}
	if summary.Diagnosis.RecommendedDoctor != "Neurologist" {
		t.Errorf("specialist = %q", summary.Diagnosis.RecommendedDoctor)
	}
	if repo.records[c.ID].Status != StatusCompleted {
		t.Errorf("status = %q, want completed", repo.records[c.ID].Status)
	}
	if repo.summaries[c.ID] == nil {
		t.Error("summary not persisted")
	}
}

func TestSpeechNotConfigured(t *testing.T) {
	svc := newTestService(newFakeRepo(), newFakeContextStore(), &fakeModel{reply: okCompletion})
	if _, err := svc.TranscribeAudio(context.Background(), []byte("audio")); err == nil {
		t.Error("expected error without STT client")
	}
	if _, err := svc.SynthesizeSpeech(context.Background(), "hello"); err == nil {
		t.Error("expected error without TTS client")
	}
}
