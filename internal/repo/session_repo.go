package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/signalix/loginbroker/internal/model"
)

// ErrSessionNotFound is returned by Get when no session is stored for the phone
var ErrSessionNotFound = errors.New("session not found")

// SessionRepo defines the interface for exported session storage
type SessionRepo interface {
	Put(ctx context.Context, phone, token string) (model.SessionRecord, error)
	Get(ctx context.Context, phone string) (model.SessionRecord, error)
	Delete(ctx context.Context, phone string) error
	List(ctx context.Context) ([]model.SessionRecord, error)
}

type sessionRepo struct {
	db *sql.DB
}

// NewSessionRepo creates a new SessionRepo instance
func NewSessionRepo(db *sql.DB) SessionRepo {
	return &sessionRepo{db: db}
}

// Put stores the token for the phone, replacing any previous one, and stamps saved_at = now().
func (r *sessionRepo) Put(ctx context.Context, phone, token string) (model.SessionRecord, error) {
	rec := model.SessionRecord{PhoneNumber: phone, Token: token}
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO sessions (phone_number, token, saved_at)
		VALUES ($1, $2, now())
		ON CONFLICT (phone_number)
		DO UPDATE SET token = EXCLUDED.token, saved_at = EXCLUDED.saved_at
		RETURNING saved_at
	`, phone, token).Scan(&rec.SavedAt)
	if err != nil {
		return model.SessionRecord{}, fmt.Errorf("upsert session: %w", err)
	}
	return rec, nil
}

// Get returns the stored session for the phone.
func (r *sessionRepo) Get(ctx context.Context, phone string) (model.SessionRecord, error) {
	var rec model.SessionRecord
	err := r.db.QueryRowContext(ctx, `
		SELECT phone_number, token, saved_at
		FROM sessions
		WHERE phone_number = $1
	`, phone).Scan(&rec.PhoneNumber, &rec.Token, &rec.SavedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.SessionRecord{}, ErrSessionNotFound
		}
		return model.SessionRecord{}, fmt.Errorf("query session: %w", err)
	}
	return rec, nil
}

// Delete removes the stored session for the phone. Deleting a missing session is not an error.
func (r *sessionRepo) Delete(ctx context.Context, phone string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE phone_number = $1`, phone); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// List returns all stored sessions, most recently saved first.
func (r *sessionRepo) List(ctx context.Context) ([]model.SessionRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT phone_number, token, saved_at
		FROM sessions
		ORDER BY saved_at DESC, phone_number
	`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	records := make([]model.SessionRecord, 0)
	for rows.Next() {
		var rec model.SessionRecord
		if err := rows.Scan(&rec.PhoneNumber, &rec.Token, &rec.SavedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return records, nil
}
