// internal/domain/thread.go
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ConversationThread links multiple sessions between the same payer and
// provider over time and accumulates their settled totals.
type ConversationThread struct {
	ID                   int64           `db:"id" json:"id"` // Primary key, BIGSERIAL in DB
	PayerID              int64           `db:"payer_id" json:"payer_id"`
	ProviderID           int64           `db:"provider_id" json:"provider_id"`
	TotalSessions        int64           `db:"total_sessions" json:"total_sessions"`
	TotalSpent           decimal.Decimal `db:"total_spent" json:"total_spent"`
	TotalDurationSeconds int64           `db:"total_duration_seconds" json:"total_duration_seconds"`
	CreatedAt            time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time       `db:"updated_at" json:"updated_at"`
}

// NewConversationThread creates an empty thread for a payer/provider pair.
func NewConversationThread(payerID, providerID int64) *ConversationThread {
	now := time.Now().UTC()
	return &ConversationThread{
		PayerID:    payerID,
		ProviderID: providerID,
		TotalSpent: decimal.Zero,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}
