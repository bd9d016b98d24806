package consultation

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ErrNotFound is returned when no consultation exists for the given id.
var ErrNotFound = errors.New("consultation not found")

type postgresRepo struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &postgresRepo{db: db}
}

func (r *postgresRepo) Create(ctx context.Context, c *Consultation) error {
	patientJSON, err := json.Marshal(c.Patient)
	if err != nil {
		return errors.Wrap(err, "marshal patient details")
	}
	historyJSON, err := json.Marshal(c.History)
	if err != nil {
		return errors.Wrap(err, "marshal history")
	}

	query := `
		INSERT INTO consultations (id, patient, status, history, requires_emergency, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = r.db.ExecContext(ctx, query,
		c.ID, patientJSON, c.Status, historyJSON, c.RequiresEmergency, c.CreatedAt, c.UpdatedAt)
	return errors.Wrap(err, "insert consultation")
}

func (r *postgresRepo) GetByID(ctx context.Context, id uuid.UUID) (*Consultation, error) {
	query := `
		SELECT id, patient, status, history, summary, requires_emergency, created_at, updated_at
		FROM consultations WHERE id = $1
	`
	row := r.db.QueryRowContext(ctx, query, id)

	var c Consultation
	var patientJSON, historyJSON []byte
	var summaryJSON []byte

	err := row.Scan(
		&c.ID,
		&patientJSON,
		&c.Status,
		&historyJSON,
		&summaryJSON,
		&c.RequiresEmergency,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "scan consultation")
	}

	if err := json.Unmarshal(patientJSON, &c.Patient); err != nil {
		return nil, errors.Wrap(err, "unmarshal patient details")
	}
	if len(historyJSON) > 0 {
		if err := json.Unmarshal(historyJSON, &c.History); err != nil {
			return nil, errors.Wrap(err, "unmarshal history")
		}
	}
	if len(summaryJSON) > 0 {
		c.Summary = &Summary{}
		if err := json.Unmarshal(summaryJSON, c.Summary); err != nil {
			return nil, errors.Wrap(err, "unmarshal summary")
		}
	}
	return &c, nil
}

// AppendTurn pushes one turn onto the stored history without rewriting
// the whole record.
func (r *postgresRepo) AppendTurn(ctx context.Context, id uuid.UUID, turn Turn) error {
	turnJSON, err := json.Marshal(turn)
	if err != nil {
		return errors.Wrap(err, "marshal turn")
	}

	query := `
		UPDATE consultations
		SET history = history || $2::jsonb, updated_at = $3
		WHERE id = $1
	`
	res, err := r.db.ExecContext(ctx, query, id, turnJSON, time.Now().UTC())
	if err != nil {
		return errors.Wrap(err, "append turn")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateEmergency raises or clears the emergency marker on the durable
// record once the per-message analysis flags it.
func (r *postgresRepo) UpdateEmergency(ctx context.Context, id uuid.UUID, requiresEmergency bool) error {
	query := `
		UPDATE consultations
		SET requires_emergency = $2, updated_at = $3
		WHERE id = $1
	`
	res, err := r.db.ExecContext(ctx, query, id, requiresEmergency, time.Now().UTC())
	if err != nil {
		return errors.Wrap(err, "update emergency flag")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *postgresRepo) UpdateSummary(ctx context.Context, id uuid.UUID, summary *Summary) error {
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return errors.Wrap(err, "marshal summary")
	}

	query := `
		UPDATE consultations
		SET summary = $2, status = $3, updated_at = $4
		WHERE id = $1
	`
	res, err := r.db.ExecContext(ctx, query, id, summaryJSON, StatusCompleted, time.Now().UTC())
	if err != nil {
		return errors.Wrap(err, "update summary")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkDisconnected flushes the last known context next to the record so a
// permanently dropped session can be recovered manually later.
func (r *postgresRepo) MarkDisconnected(ctx context.Context, id uuid.UUID, lastContext []Turn) error {
	contextJSON, err := json.Marshal(lastContext)
	if err != nil {
		return errors.Wrap(err, "marshal last context")
	}

	query := `
		UPDATE consultations
		SET status = $2, last_context = $3, updated_at = $4
		WHERE id = $1
	`
	_, err = r.db.ExecContext(ctx, query, id, StatusDisconnected, contextJSON, time.Now().UTC())
	return errors.Wrap(err, "mark disconnected")
}
