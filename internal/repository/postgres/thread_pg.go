// internal/repository/postgres/thread_pg.go
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
	"github.com/shopspring/decimal"
)

// ThreadRepository implements repository.ThreadRepository for PostgreSQL.
type ThreadRepository struct{}

// NewThreadRepository creates a new ThreadRepository.
func NewThreadRepository(db *sqlx.DB) repository.ThreadRepository {
	return &ThreadRepository{}
}

// CreateThread inserts a new conversation thread using the provided DBExecutor.
func (r *ThreadRepository) CreateThread(ctx context.Context, q repository.DBExecutor, thread *domain.ConversationThread) error {
	query := `INSERT INTO conversation_threads (payer_id, provider_id, total_sessions, total_spent, total_duration_seconds, created_at, updated_at)
              VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`
	err := q.QueryRowContext(ctx, query,
		thread.PayerID, thread.ProviderID, thread.TotalSessions, thread.TotalSpent,
		thread.TotalDurationSeconds, thread.CreatedAt, thread.UpdatedAt,
	).Scan(&thread.ID)
	if err != nil {
		return fmt.Errorf("failed to create conversation thread: %w", err)
	}
	return nil
}

// GetThreadByPair retrieves the thread for a payer/provider pair.
func (r *ThreadRepository) GetThreadByPair(ctx context.Context, q repository.DBExecutor, payerID, providerID int64) (*domain.ConversationThread, error) {
	var thread domain.ConversationThread
	query := `SELECT id, payer_id, provider_id, total_sessions, total_spent, total_duration_seconds, created_at, updated_at
              FROM conversation_threads WHERE payer_id = $1 AND provider_id = $2`
	err := q.GetContext(ctx, &thread, query, payerID, providerID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, util.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get thread for pair (%d, %d): %w", payerID, providerID, err)
	}
	return &thread, nil
}

// AccumulateThread adds one settled session's totals to a thread.
func (r *ThreadRepository) AccumulateThread(ctx context.Context, q repository.DBExecutor, threadID int64, spent decimal.Decimal, durationSeconds int64) error {
	query := `UPDATE conversation_threads
              SET total_sessions = total_sessions + 1,
                  total_spent = total_spent + $1,
                  total_duration_seconds = total_duration_seconds + $2,
                  updated_at = $3
              WHERE id = $4`
	result, err := q.ExecContext(ctx, query, spent, durationSeconds, time.Now().UTC(), threadID)
	if err != nil {
		return fmt.Errorf("failed to accumulate thread %d: %w", threadID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected after accumulating thread %d: %w", threadID, err)
	}
	if rowsAffected == 0 {
		return util.ErrNotFound
	}
	return nil
}
