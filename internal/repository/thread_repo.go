// internal/repository/thread_repo.go
package repository

import (
	"context"

	"consult-core/internal/domain"

	"github.com/shopspring/decimal"
)

// ThreadRepository defines the interface for conversation thread operations.
type ThreadRepository interface {
	// CreateThread adds a new conversation thread using the provided DBExecutor.
	CreateThread(ctx context.Context, q DBExecutor, thread *domain.ConversationThread) error
	// GetThreadByPair retrieves the thread for a payer/provider pair.
	GetThreadByPair(ctx context.Context, q DBExecutor, payerID, providerID int64) (*domain.ConversationThread, error)
	// AccumulateThread adds one settled session's totals to a thread.
	AccumulateThread(ctx context.Context, q DBExecutor, threadID int64, spent decimal.Decimal, durationSeconds int64) error
}
