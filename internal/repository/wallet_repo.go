// internal/repository/wallet_repo.go
package repository

import (
	"context"

	"consult-core/internal/domain"

	"github.com/shopspring/decimal"
)

// WalletAccountRepository defines the interface for wallet account data operations.
type WalletAccountRepository interface {
	// CreateAccount adds a new wallet account using the provided DBExecutor.
	CreateAccount(ctx context.Context, q DBExecutor, account *domain.WalletAccount) error
	// GetAccountByUserID retrieves a wallet account by its owning user.
	GetAccountByUserID(ctx context.Context, q DBExecutor, userID int64) (*domain.WalletAccount, error)
	// GetAccountByUserIDForUpdate retrieves a wallet account and locks its row
	// for the duration of the surrounding transaction (SELECT ... FOR UPDATE).
	GetAccountByUserIDForUpdate(ctx context.Context, q DBExecutor, userID int64) (*domain.WalletAccount, error)
	// UpdateBalances applies deltas to the cash and bonus balances of an account.
	UpdateBalances(ctx context.Context, q DBExecutor, accountID int64, cashDelta, bonusDelta decimal.Decimal) error
}
