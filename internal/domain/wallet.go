// internal/domain/wallet.go
package domain

import (
	"time"

	"github.com/shopspring/decimal" // For precise monetary calculations
)

// WalletAccount represents a user's wallet.
// CashBalance is withdrawable money sourced from real payments;
// BonusBalance is non-withdrawable credit from refunds, promotions and
// gift codes. Bonus is always spent before cash.
type WalletAccount struct {
	ID           int64           `db:"id" json:"id"`                       // Primary key, BIGSERIAL in DB
	UserID       int64           `db:"user_id" json:"user_id"`             // Owning user, unique
	CashBalance  decimal.Decimal `db:"cash_balance" json:"cash_balance"`   // NUMERIC(20, 4) in DB
	BonusBalance decimal.Decimal `db:"bonus_balance" json:"bonus_balance"` // NUMERIC(20, 4) in DB
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
}

// TotalBalance is the derived sum of cash and bonus balances.
// It is recomputed on every read and never stored independently.
func (w *WalletAccount) TotalBalance() decimal.Decimal {
	return w.CashBalance.Add(w.BonusBalance)
}

// NewWalletAccount creates a new WalletAccount instance with zero balances.
func NewWalletAccount(userID int64) *WalletAccount {
	now := time.Now().UTC()
	return &WalletAccount{
		UserID:       userID,
		CashBalance:  decimal.Zero,
		BonusBalance: decimal.Zero,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}
