// internal/repository/postgres/ledger_pg.go
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"consult-core/internal/domain"
	"consult-core/internal/repository"
	"consult-core/internal/util"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// LedgerRepository implements repository.LedgerRepository for PostgreSQL.
type LedgerRepository struct{}

// NewLedgerRepository creates a new LedgerRepository.
func NewLedgerRepository(db *sqlx.DB) repository.LedgerRepository {
	return &LedgerRepository{}
}

const ledgerEntryColumns = `id, owner_id, kind, amount, cash_portion, bonus_portion, balance_before, balance_after,
       related_session_id, linked_entry_id, status, reason, created_at`

// CreateEntry appends a new ledger entry using the provided DBExecutor.
func (r *LedgerRepository) CreateEntry(ctx context.Context, q repository.DBExecutor, entry *domain.LedgerEntry) error {
	query := `INSERT INTO ledger_entries (owner_id, kind, amount, cash_portion, bonus_portion, balance_before, balance_after,
                  related_session_id, linked_entry_id, status, reason, created_at)
              VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12) RETURNING id`

	err := q.QueryRowContext(ctx, query,
		entry.OwnerID,
		entry.Kind,
		entry.Amount,
		entry.CashPortion,
		entry.BonusPortion,
		entry.BalanceBefore,
		entry.BalanceAfter,
		entry.RelatedSessionID,
		entry.LinkedEntryID,
		entry.Status,
		entry.Reason,
		entry.CreatedAt,
	).Scan(&entry.ID)

	if err != nil {
		return fmt.Errorf("failed to create ledger entry: %w", err)
	}
	return nil
}

// GetEntryByID retrieves a ledger entry by its ID.
func (r *LedgerRepository) GetEntryByID(ctx context.Context, q repository.DBExecutor, id int64) (*domain.LedgerEntry, error) {
	var entry domain.LedgerEntry
	query := `SELECT ` + ledgerEntryColumns + ` FROM ledger_entries WHERE id = $1`
	err := q.GetContext(ctx, &entry, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, util.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get ledger entry %d: %w", id, err)
	}
	return &entry, nil
}

// GetEntryByIDForUpdate retrieves a ledger entry and locks its row until the
// surrounding transaction commits or rolls back.
func (r *LedgerRepository) GetEntryByIDForUpdate(ctx context.Context, q repository.DBExecutor, id int64) (*domain.LedgerEntry, error) {
	var entry domain.LedgerEntry
	query := `SELECT ` + ledgerEntryColumns + ` FROM ledger_entries WHERE id = $1 FOR UPDATE`
	err := q.GetContext(ctx, &entry, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, util.ErrNotFound
		}
		return nil, fmt.Errorf("failed to lock ledger entry %d: %w", id, err)
	}
	return &entry, nil
}

// UpdateEntryStatus transitions an entry out of PENDING. The WHERE clause
// guards against double processing: a second attempt affects zero rows.
func (r *LedgerRepository) UpdateEntryStatus(ctx context.Context, q repository.DBExecutor, id int64, status domain.LedgerEntryStatus) error {
	query := `UPDATE ledger_entries SET status = $1 WHERE id = $2 AND status = $3`
	result, err := q.ExecContext(ctx, query, status, id, domain.LedgerEntryStatusPending)
	if err != nil {
		return fmt.Errorf("failed to update status of ledger entry %d: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected after updating ledger entry %d: %w", id, err)
	}
	if rowsAffected == 0 {
		return util.ErrAlreadyProcessed
	}
	return nil
}

// GetEntryByLinkedID retrieves the entry of a given kind linked to another entry.
func (r *LedgerRepository) GetEntryByLinkedID(ctx context.Context, q repository.DBExecutor, kind domain.LedgerEntryKind, linkedEntryID int64) (*domain.LedgerEntry, error) {
	var entry domain.LedgerEntry
	query := `SELECT ` + ledgerEntryColumns + ` FROM ledger_entries WHERE kind = $1 AND linked_entry_id = $2`
	err := q.GetContext(ctx, &entry, query, kind, linkedEntryID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, util.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get %s entry linked to %d: %w", kind, linkedEntryID, err)
	}
	return &entry, nil
}

// SumPendingHolds returns the total amount reserved by PENDING holds for an owner.
func (r *LedgerRepository) SumPendingHolds(ctx context.Context, q repository.DBExecutor, ownerID int64) (decimal.Decimal, error) {
	var sum decimal.Decimal
	query := `SELECT COALESCE(SUM(amount), 0) FROM ledger_entries WHERE owner_id = $1 AND kind = $2 AND status = $3`
	err := q.GetContext(ctx, &sum, query, ownerID, domain.LedgerEntryKindHold, domain.LedgerEntryStatusPending)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum pending holds for owner %d: %w", ownerID, err)
	}
	return sum, nil
}

// GetEntriesByOwnerID retrieves a paginated ledger history for an owner,
// newest first. It performs two queries: one for the data and one for the
// total count.
func (r *LedgerRepository) GetEntriesByOwnerID(ctx context.Context, q repository.DBExecutor, ownerID int64, limit, offset int) ([]domain.LedgerEntry, int64, error) {
	entries := []domain.LedgerEntry{}

	query := `SELECT ` + ledgerEntryColumns + `
		FROM ledger_entries
		WHERE owner_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`
	err := q.SelectContext(ctx, &entries, query, ownerID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch ledger entries for owner %d: %w", ownerID, err)
	}

	var totalCount int64
	countQuery := `SELECT COUNT(*) FROM ledger_entries WHERE owner_id = $1`
	err = q.GetContext(ctx, &totalCount, countQuery, ownerID)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get total ledger entry count for owner %d: %w", ownerID, err)
	}

	return entries, totalCount, nil
}
