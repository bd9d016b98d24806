// Package ws owns the real-time channel per session: registration,
// delivery, and the bounded reconnection state machine.
package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"telemed-engine/internal/consultation"
	"telemed-engine/internal/metrics"
)

// Channel is one bidirectional real-time connection.
type Channel interface {
	ReceiveText() (string, error)
	SendJSON(v interface{}) error
	Close() error
}

// ErrClosed signals a clean client-side close on ReceiveText.
var ErrClosed = errors.New("channel closed")

// ErrRetryBackoff is returned by Connect while the session is still
// inside its reconnection backoff window.
var ErrRetryBackoff = errors.New("reconnect attempted before backoff elapsed")

// ErrNotConnected is returned by Send when no channel is registered for
// the session.
var ErrNotConnected = errors.New("session has no active channel")

// Orchestrator is the message pipeline entry point.
type Orchestrator interface {
	ProcessMessage(ctx context.Context, consultationID string, message string) (*consultation.ResponsePayload, error)
}

// Store is the slice of the durable record store the manager needs:
// history for the welcome variant and the terminal-disconnect flush.
type Store interface {
	GetByID(ctx context.Context, id uuid.UUID) (*consultation.Consultation, error)
	MarkDisconnected(ctx context.Context, id uuid.UUID, lastContext []consultation.Turn) error
}

// ConnectionRecord tracks one session's channel and reconnection state.
// Owned exclusively by the Manager; the channel field is nil while the
// session is between ERROR and a successful reconnect.
type ConnectionRecord struct {
	SessionID      string
	channel        Channel
	Attempts       int
	LastError      string
	RetryNotBefore time.Time
	snapshot       []consultation.Turn
}

const (
	defaultMaxAttempts = 3
	defaultBackoffUnit = time.Second
)

// Manager is the process-local channel registry. All dependencies are
// injected; there is no package-level state.
type Manager struct {
	mu    sync.Mutex
	conns map[string]*ConnectionRecord

	svc      Orchestrator
	ctxStore consultation.ContextStore
	store    Store
	metrics  *metrics.Metrics
	log      zerolog.Logger

	maxAttempts int
	backoffUnit time.Duration
	now         func() time.Time
}

func NewManager(svc Orchestrator, ctxStore consultation.ContextStore, store Store, m *metrics.Metrics, log zerolog.Logger) *Manager {
	return &Manager{
		conns:       map[string]*ConnectionRecord{},
		svc:         svc,
		ctxStore:    ctxStore,
		store:       store,
		metrics:     m,
		log:         log,
		maxAttempts: defaultMaxAttempts,
		backoffUnit: defaultBackoffUnit,
		now:         time.Now,
	}
}

const (
	welcomeFirstTime = "Hello! I'm your medical pre-diagnosis assistant. Please describe the symptoms you are experiencing."
	welcomeReturning = "Welcome back. We can continue where we left off. How are you feeling now?"
)

// Connect registers the channel for the session, sends the welcome
// message and resets the retry counter. It refuses to register while the
// session is still inside its backoff window.
func (m *Manager) Connect(ctx context.Context, ch Channel, sessionID string) error {
	m.mu.Lock()
	if rec, ok := m.conns[sessionID]; ok {
		if m.now().Before(rec.RetryNotBefore) {
			m.mu.Unlock()
			return ErrRetryBackoff
		}
		if rec.channel != nil {
			// one active channel per session; the newest wins
			rec.channel.Close()
			if m.metrics != nil {
				m.metrics.ActiveConnections.Dec()
			}
		}
	}
	m.conns[sessionID] = &ConnectionRecord{SessionID: sessionID, channel: ch}
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.ActiveConnections.Inc()
	}

	turns := m.priorContext(ctx, sessionID)
	welcome := welcomeFirstTime
	if len(turns) > 0 {
		welcome = welcomeReturning
	}
	if err := ch.SendJSON(map[string]string{"type": "welcome", "message": welcome}); err != nil {
		m.log.Warn().Err(err).Str("consultation_id", sessionID).Msg("welcome delivery failed")
	}
	m.log.Info().Str("consultation_id", sessionID).Bool("returning", len(turns) > 0).Msg("channel connected")
	return nil
}

// Send delivers a payload to the session's channel. A delivery failure
// feeds the reconnection state machine instead of propagating to the
// caller.
func (m *Manager) Send(ctx context.Context, sessionID string, payload interface{}) error {
	m.mu.Lock()
	rec, ok := m.conns[sessionID]
	var ch Channel
	if ok {
		ch = rec.channel
	}
	m.mu.Unlock()

	if !ok || ch == nil {
		return ErrNotConnected
	}
	if err := ch.SendJSON(payload); err != nil {
		m.HandleError(ctx, sessionID, err)
	}
	return nil
}

// HandleError advances the reconnection state machine. While attempts
// remain it snapshots the session context, tears the channel down and
// records the earliest time a new Connect may proceed (2^attempts backoff
// units); it never sleeps, so other sessions are unaffected. Once the
// budget is exhausted the session is torn down permanently and its last
// context is flushed to durable storage for manual recovery.
func (m *Manager) HandleError(ctx context.Context, sessionID string, cause error) {
	m.mu.Lock()
	rec, ok := m.conns[sessionID]
	if !ok {
		m.mu.Unlock()
		return
	}
	rec.Attempts++
	if cause != nil {
		rec.LastError = cause.Error()
	}
	attempts := rec.Attempts
	ch := rec.channel
	rec.channel = nil
	terminal := attempts > m.maxAttempts
	if terminal {
		delete(m.conns, sessionID)
	} else {
		rec.RetryNotBefore = m.now().Add((1 << uint(attempts)) * m.backoffUnit)
	}
	m.mu.Unlock()

	if ch != nil {
		ch.Close()
		if m.metrics != nil {
			m.metrics.ActiveConnections.Dec()
		}
	}
	if m.metrics != nil {
		m.metrics.ReconnectAttempts.Inc()
	}

	log := m.log.With().Str("consultation_id", sessionID).Int("attempts", attempts).Logger()
	if !terminal {
		snapshot := m.priorContext(ctx, sessionID)
		m.mu.Lock()
		if cur, still := m.conns[sessionID]; still {
			cur.snapshot = snapshot
		}
		m.mu.Unlock()
		log.Warn().Err(cause).Msg("channel error, awaiting reconnect")
		return
	}

	if m.metrics != nil {
		m.metrics.TerminalDisconnects.Inc()
	}
	log.Error().Err(cause).Msg("reconnect budget exhausted, flushing session")
	if id, err := uuid.Parse(sessionID); err == nil {
		snapshot := rec.snapshot
		if len(snapshot) == 0 {
			snapshot = m.priorContext(ctx, sessionID)
		}
		if err := m.store.MarkDisconnected(ctx, id, snapshot); err != nil {
			log.Error().Err(err).Msg("failed to flush disconnected session")
		}
	}
}

// Disconnect removes the session's channel and retry state. Safe to call
// multiple times.
func (m *Manager) Disconnect(sessionID string) {
	m.mu.Lock()
	rec, ok := m.conns[sessionID]
	if ok {
		delete(m.conns, sessionID)
	}
	m.mu.Unlock()

	if !ok {
		return
	}
	if rec.channel != nil {
		rec.channel.Close()
		if m.metrics != nil {
			m.metrics.ActiveConnections.Dec()
		}
	}
	m.log.Info().Str("consultation_id", sessionID).Msg("channel disconnected")
}

// Record returns a copy of the session's connection state, primarily for
// inspection.
func (m *Manager) Record(sessionID string) (ConnectionRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.conns[sessionID]
	if !ok {
		return ConnectionRecord{}, false
	}
	return *rec, true
}

// connected reports whether the session still has a live channel.
func (m *Manager) connected(sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.conns[sessionID]
	return ok && rec.channel != nil
}

func (m *Manager) priorContext(ctx context.Context, sessionID string) []consultation.Turn {
	turns, err := m.ctxStore.Context(ctx, sessionID)
	if err != nil {
		m.log.Warn().Err(err).Str("consultation_id", sessionID).Msg("context read failed")
	}
	if len(turns) > 0 {
		return turns
	}
	id, err := uuid.Parse(sessionID)
	if err != nil {
		return nil
	}
	record, err := m.store.GetByID(ctx, id)
	if err != nil || record == nil {
		return nil
	}
	return record.History
}

type inboundMessage struct {
	Content string `json:"content"`
}

// Serve drives the per-channel receive loop: one inbound message is fully
// processed before the next is read, so turns within a session stay
// strictly ordered.
func (m *Manager) Serve(ctx context.Context, ch Channel, sessionID string) {
	if err := m.Connect(ctx, ch, sessionID); err != nil {
		m.log.Warn().Err(err).Str("consultation_id", sessionID).Msg("connection refused")
		ch.Close()
		return
	}

	for {
		// a failed delivery tears the channel down through the error
		// handler; reading from the dead connection would consume a
		// second attempt for the same failure
		if !m.connected(sessionID) {
			return
		}
		text, err := ch.ReceiveText()
		if err != nil {
			if errors.Is(err, ErrClosed) {
				m.Disconnect(sessionID)
			} else {
				m.HandleError(ctx, sessionID, err)
			}
			return
		}

		var msg inboundMessage
		if err := json.Unmarshal([]byte(text), &msg); err != nil || msg.Content == "" {
			// malformed input is reported, the session stays connected
			m.Send(ctx, sessionID, map[string]string{
				"status":  "error",
				"message": "Invalid message format",
			})
			continue
		}

		payload, err := m.svc.ProcessMessage(ctx, sessionID, msg.Content)
		if err != nil {
			m.log.Error().Err(err).Str("consultation_id", sessionID).Msg("pipeline failed")
			m.Send(ctx, sessionID, map[string]string{
				"status":  "error",
				"message": "I apologize, but I'm having trouble processing your request. Please try again.",
			})
			continue
		}
		m.Send(ctx, sessionID, payload)
	}
}
