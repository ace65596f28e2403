// internal/repository/postgres/wallet_pg.go
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

// WalletAccountRepository implements repository.WalletAccountRepository for PostgreSQL.
type WalletAccountRepository struct{}

// NewWalletAccountRepository creates a new WalletAccountRepository.
func NewWalletAccountRepository(db *sqlx.DB) repository.WalletAccountRepository {
	return &WalletAccountRepository{}
}

// CreateAccount inserts a new wallet account using the provided DBExecutor.
func (r *WalletAccountRepository) CreateAccount(ctx context.Context, q repository.DBExecutor, account *domain.WalletAccount) error {
	query := `INSERT INTO wallet_accounts (user_id, cash_balance, bonus_balance, created_at, updated_at)
              VALUES ($1, $2, $3, $4, $5) RETURNING id`
	err := q.QueryRowContext(ctx, query, account.UserID, account.CashBalance, account.BonusBalance, account.CreatedAt, account.UpdatedAt).Scan(&account.ID)
	if err != nil {
		return fmt.Errorf("failed to create wallet account: %w", err)
	}
	return nil
}

// GetAccountByUserID retrieves a wallet account by its owning user.
func (r *WalletAccountRepository) GetAccountByUserID(ctx context.Context, q repository.DBExecutor, userID int64) (*domain.WalletAccount, error) {
	var account domain.WalletAccount
	query := `SELECT id, user_id, cash_balance, bonus_balance, created_at, updated_at FROM wallet_accounts WHERE user_id = $1`
	err := q.GetContext(ctx, &account, query, userID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, util.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get wallet account for user %d: %w", userID, err)
	}
	return &account, nil
}

// GetAccountByUserIDForUpdate retrieves a wallet account and locks its row
// until the surrounding transaction commits or rolls back.
func (r *WalletAccountRepository) GetAccountByUserIDForUpdate(ctx context.Context, q repository.DBExecutor, userID int64) (*domain.WalletAccount, error) {
	var account domain.WalletAccount
	query := `SELECT id, user_id, cash_balance, bonus_balance, created_at, updated_at FROM wallet_accounts WHERE user_id = $1 FOR UPDATE`
	err := q.GetContext(ctx, &account, query, userID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, util.ErrNotFound
		}
		return nil, fmt.Errorf("failed to lock wallet account for user %d: %w", userID, err)
	}
	return &account, nil
}

// UpdateBalances applies deltas to the cash and bonus balances of an account.
func (r *WalletAccountRepository) UpdateBalances(ctx context.Context, q repository.DBExecutor, accountID int64, cashDelta, bonusDelta decimal.Decimal) error {
	query := `UPDATE wallet_accounts SET cash_balance = cash_balance + $1, bonus_balance = bonus_balance + $2, updated_at = $3 WHERE id = $4`
	result, err := q.ExecContext(ctx, query, cashDelta, bonusDelta, time.Now().UTC(), accountID)
	if err != nil {
		return fmt.Errorf("failed to update balances for account %d: %w", accountID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected after updating balances for account %d: %w", accountID, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("no rows affected when updating balances for account %d, account might not exist", accountID)
	}
	return nil
}
