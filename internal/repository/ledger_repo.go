// internal/repository/ledger_repo.go
package repository

import (
	"context"

	"consult-core/internal/domain"

	"github.com/shopspring/decimal"
)

// LedgerRepository defines the interface for the append-only ledger.
// Entries are created once; only their status may be updated, and exactly once.
type LedgerRepository interface {
	// CreateEntry appends a new ledger entry using the provided DBExecutor.
	CreateEntry(ctx context.Context, q DBExecutor, entry *domain.LedgerEntry) error
	// GetEntryByID retrieves a ledger entry by its ID.
	GetEntryByID(ctx context.Context, q DBExecutor, id int64) (*domain.LedgerEntry, error)
	// GetEntryByIDForUpdate retrieves a ledger entry and locks its row for the
	// duration of the surrounding transaction.
	GetEntryByIDForUpdate(ctx context.Context, q DBExecutor, id int64) (*domain.LedgerEntry, error)
	// UpdateEntryStatus transitions an entry from PENDING to COMPLETED or
	// CANCELLED. Amounts are immutable after creation.
	UpdateEntryStatus(ctx context.Context, q DBExecutor, id int64, status domain.LedgerEntryStatus) error
	// GetEntryByLinkedID retrieves the entry of a given kind that is linked to
	// another entry, e.g. the charge paired with a hold. Returns ErrNotFound
	// if no such entry exists.
	GetEntryByLinkedID(ctx context.Context, q DBExecutor, kind domain.LedgerEntryKind, linkedEntryID int64) (*domain.LedgerEntry, error)
	// SumPendingHolds returns the total amount currently reserved by PENDING
	// hold entries for an owner.
	SumPendingHolds(ctx context.Context, q DBExecutor, ownerID int64) (decimal.Decimal, error)
	// GetEntriesByOwnerID retrieves a paginated ledger history for an owner,
	// newest first, along with the total entry count.
	GetEntriesByOwnerID(ctx context.Context, q DBExecutor, ownerID int64, limit, offset int) ([]domain.LedgerEntry, int64, error)
}
