// internal/domain/ledger.go
package domain

import (
	"time"

	"github.com/shopspring/decimal" // For precise monetary calculations
)

// LedgerEntryKind defines the kind of a monetary event.
type LedgerEntryKind string

const (
	LedgerEntryKindHold      LedgerEntryKind = "HOLD"
	LedgerEntryKindCharge    LedgerEntryKind = "CHARGE"
	LedgerEntryKindRefund    LedgerEntryKind = "REFUND"
	LedgerEntryKindDeduction LedgerEntryKind = "DEDUCTION"
	LedgerEntryKindCredit    LedgerEntryKind = "CREDIT"
	LedgerEntryKindEarning   LedgerEntryKind = "EARNING"
)

// LedgerEntryStatus defines the status of a ledger entry.
// An entry is created once; its status may transition
// PENDING -> COMPLETED or PENDING -> CANCELLED exactly once.
type LedgerEntryStatus string

const (
	LedgerEntryStatusPending   LedgerEntryStatus = "PENDING"
	LedgerEntryStatusCompleted LedgerEntryStatus = "COMPLETED"
	LedgerEntryStatusCancelled LedgerEntryStatus = "CANCELLED"
)

// LedgerEntry is an immutable, append-only record of one monetary event.
// Amounts never change after creation; only Status may transition.
type LedgerEntry struct {
	ID               int64             `db:"id" json:"id"`                                 // Primary key, BIGSERIAL in DB
	OwnerID          int64             `db:"owner_id" json:"owner_id"`                     // User whose wallet this entry belongs to
	Kind             LedgerEntryKind   `db:"kind" json:"kind"`                             // HOLD, CHARGE, REFUND, DEDUCTION, CREDIT, EARNING
	Amount           decimal.Decimal   `db:"amount" json:"amount"`                         // Total amount of the event, NUMERIC(20, 4) in DB
	CashPortion      decimal.Decimal   `db:"cash_portion" json:"cash_portion"`             // Part drawn from / added to cash balance
	BonusPortion     decimal.Decimal   `db:"bonus_portion" json:"bonus_portion"`           // Part drawn from / added to bonus balance
	BalanceBefore    decimal.Decimal   `db:"balance_before" json:"balance_before"`         // Total balance before the event
	BalanceAfter     decimal.Decimal   `db:"balance_after" json:"balance_after"`           // Total balance after the event
	RelatedSessionID *string           `db:"related_session_id" json:"related_session_id"` // Session this entry settles, if any
	LinkedEntryID    *int64            `db:"linked_entry_id" json:"linked_entry_id"`       // Pairs a hold with its charge/refund, or a charge with an earning
	Status           LedgerEntryStatus `db:"status" json:"status"`
	Reason           *string           `db:"reason" json:"reason"` // Optional human-readable reason
	CreatedAt        time.Time         `db:"created_at" json:"created_at"`
}

// NewLedgerEntry creates a new LedgerEntry instance.
func NewLedgerEntry(
	ownerID int64,
	kind LedgerEntryKind,
	amount decimal.Decimal,
	status LedgerEntryStatus,
) *LedgerEntry {
	return &LedgerEntry{
		OwnerID:      ownerID,
		Kind:         kind,
		Amount:       amount,
		CashPortion:  decimal.Zero,
		BonusPortion: decimal.Zero,
		Status:       status,
		CreatedAt:    time.Now().UTC(),
	}
}
