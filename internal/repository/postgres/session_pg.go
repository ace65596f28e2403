// internal/repository/postgres/session_pg.go
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"consult-core/internal/domain"
	"consult-core/internal/repository"
	"consult-core/internal/util"

	"github.com/jmoiron/sqlx"
)

// SessionRepository implements repository.SessionRepository for PostgreSQL.
type SessionRepository struct{}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(db *sqlx.DB) repository.SessionRepository {
	return &SessionRepository{}
}

const sessionColumns = `session_id, payer_id, provider_id, kind, medium, rate_per_minute, status, hold_entry_id,
       max_duration_seconds, thread_id, started_at, ended_at, billed_minutes, charged_amount,
       platform_commission, provider_earning, end_reason, payment_pending, recording_ref, created_at, updated_at`

// CreateSession inserts a new session using the provided DBExecutor.
func (r *SessionRepository) CreateSession(ctx context.Context, q repository.DBExecutor, session *domain.Session) error {
	query := `INSERT INTO sessions (session_id, payer_id, provider_id, kind, medium, rate_per_minute, status, hold_entry_id,
                  max_duration_seconds, thread_id, started_at, ended_at, billed_minutes, charged_amount,
                  platform_commission, provider_earning, end_reason, payment_pending, recording_ref, created_at, updated_at)
              VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`

	_, err := q.ExecContext(ctx, query,
		session.SessionID,
		session.PayerID,
		session.ProviderID,
		session.Kind,
		session.Medium,
		session.RatePerMinute,
		session.Status,
		session.HoldEntryID,
		session.MaxDurationSeconds,
		session.ThreadID,
		session.StartedAt,
		session.EndedAt,
		session.BilledMinutes,
		session.ChargedAmount,
		session.PlatformCommission,
		session.ProviderEarning,
		session.EndReason,
		session.PaymentPending,
		session.RecordingRef,
		session.CreatedAt,
		session.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// GetSessionByID retrieves a session by its ID.
func (r *SessionRepository) GetSessionByID(ctx context.Context, q repository.DBExecutor, sessionID string) (*domain.Session, error) {
	var session domain.Session
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE session_id = $1`
	err := q.GetContext(ctx, &session, query, sessionID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, util.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get session %s: %w", sessionID, err)
	}
	return &session, nil
}

// GetSessionByIDForUpdate retrieves a session and locks its row until the
// surrounding transaction commits or rolls back. Concurrent transitions
// against the same session serialize on this lock.
func (r *SessionRepository) GetSessionByIDForUpdate(ctx context.Context, q repository.DBExecutor, sessionID string) (*domain.Session, error) {
	var session domain.Session
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE session_id = $1 FOR UPDATE`
	err := q.GetContext(ctx, &session, query, sessionID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, util.ErrNotFound
		}
		return nil, fmt.Errorf("failed to lock session %s: %w", sessionID, err)
	}
	return &session, nil
}

// UpdateSession persists the mutable lifecycle fields of a session.
func (r *SessionRepository) UpdateSession(ctx context.Context, q repository.DBExecutor, session *domain.Session) error {
	session.UpdatedAt = time.Now().UTC()
	query := `UPDATE sessions SET status = $1, hold_entry_id = $2, max_duration_seconds = $3, thread_id = $4,
                  started_at = $5, ended_at = $6, billed_minutes = $7, charged_amount = $8,
                  platform_commission = $9, provider_earning = $10, end_reason = $11, payment_pending = $12,
                  recording_ref = $13, updated_at = $14
              WHERE session_id = $15`

	result, err := q.ExecContext(ctx, query,
		session.Status,
		session.HoldEntryID,
		session.MaxDurationSeconds,
		session.ThreadID,
		session.StartedAt,
		session.EndedAt,
		session.BilledMinutes,
		session.ChargedAmount,
		session.PlatformCommission,
		session.ProviderEarning,
		session.EndReason,
		session.PaymentPending,
		session.RecordingRef,
		session.UpdatedAt,
		session.SessionID,
	)
	if err != nil {
		return fmt.Errorf("failed to update session %s: %w", session.SessionID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected after updating session %s: %w", session.SessionID, err)
	}
	if rowsAffected == 0 {
		return util.ErrNotFound
	}
	return nil
}

// GetNonTerminalSessions retrieves all sessions that have not reached a
// terminal state. Used by the startup recovery sweep to re-arm timers.
func (r *SessionRepository) GetNonTerminalSessions(ctx context.Context, q repository.DBExecutor) ([]domain.Session, error) {
	sessions := []domain.Session{}
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE status NOT IN ($1, $2, $3)`
	err := q.SelectContext(ctx, &sessions, query,
		domain.SessionStatusEnded, domain.SessionStatusCancelled, domain.SessionStatusRejected)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch non-terminal sessions: %w", err)
	}
	return sessions, nil
}
