// internal/service/wallet_engine.go
package service

import (
	"context"
	"fmt"
	"log/slog"

	"consult-core/internal/domain"
	"consult-core/internal/repository"
	"consult-core/internal/util"
	"consult-core/pkg/db"

	"github.com/shopspring/decimal"
)

// HoldResult is the outcome of a successful hold.
type HoldResult struct {
	Entry          *domain.LedgerEntry
	AvailableAfter decimal.Decimal
}

// ChargeResult is the outcome of charging from a hold. RefundEntry is set
// when the charge consumed less than the held amount. AlreadyProcessed is
// true when the hold had been settled before and the previously recorded
// entries are returned unchanged.
type ChargeResult struct {
	ChargeEntry      *domain.LedgerEntry
	RefundEntry      *domain.LedgerEntry
	AlreadyProcessed bool
}

// RefundResult is the outcome of releasing a hold.
type RefundResult struct {
	RefundEntry      *domain.LedgerEntry
	AlreadyProcessed bool
}

// DebitResult is the outcome of a direct debit.
type DebitResult struct {
	Entry *domain.LedgerEntry
}

// CreditResult is the outcome of a direct credit.
type CreditResult struct {
	Entry *domain.LedgerEntry
}

// WalletEngine defines the wallet-related business operations. Every
// operation runs inside a single atomic database transaction and is
// idempotent with respect to its ledger entry: a retry for an already
// settled entry returns the recorded outcome instead of mutating again.
type WalletEngine interface {
	CreateAccount(ctx context.Context, userID int64) (*domain.WalletAccount, error)
	GetBalance(ctx context.Context, userID int64) (*domain.WalletAccount, error)
	// GetAvailableBalance returns total balance minus the sum of pending holds.
	GetAvailableBalance(ctx context.Context, userID int64) (decimal.Decimal, error)
	Hold(ctx context.Context, userID int64, amount decimal.Decimal, sessionID string) (*HoldResult, error)
	ChargeFromHold(ctx context.Context, holdEntryID int64, chargeAmount decimal.Decimal) (*ChargeResult, error)
	RefundHold(ctx context.Context, holdEntryID int64, reason string) (*RefundResult, error)
	Debit(ctx context.Context, userID int64, amount decimal.Decimal, reason string) (*DebitResult, error)
	Credit(ctx context.Context, userID int64, amount decimal.Decimal, asBonus bool, reason string) (*CreditResult, error)
	GetLedgerHistory(ctx context.Context, userID int64, limit, offset int) ([]domain.LedgerEntry, int64, error)
}

// walletEngine implements the WalletEngine interface.
type walletEngine struct {
	dbBeginner db.DBTxBeginner       // For starting transactions (e.g., *sqlx.DB)
	dbExecutor repository.DBExecutor // For non-transactional reads (e.g., *sqlx.DB)
	walletRepo repository.WalletAccountRepository
	ledgerRepo repository.LedgerRepository
	beginTx    db.BeginTxFunc
	commitTx   db.CommitTxFunc
	rollbackTx db.RollbackTxFunc
	logger     *slog.Logger
}

// NewWalletEngine creates a new instance of WalletEngine.
func NewWalletEngine(
	dbBeginner db.DBTxBeginner,
	dbExecutor repository.DBExecutor,
	walletRepo repository.WalletAccountRepository,
	ledgerRepo repository.LedgerRepository,
	beginTx db.BeginTxFunc,
	commitTx db.CommitTxFunc,
	rollbackTx db.RollbackTxFunc,
	logger *slog.Logger,
) WalletEngine {
	return newWalletEngine(dbBeginner, dbExecutor, walletRepo, ledgerRepo, beginTx, commitTx, rollbackTx, logger)
}

func newWalletEngine(
	dbBeginner db.DBTxBeginner,
	dbExecutor repository.DBExecutor,
	walletRepo repository.WalletAccountRepository,
	ledgerRepo repository.LedgerRepository,
	beginTx db.BeginTxFunc,
	commitTx db.CommitTxFunc,
	rollbackTx db.RollbackTxFunc,
	logger *slog.Logger,
) *walletEngine {
	return &walletEngine{
		dbBeginner: dbBeginner,
		dbExecutor: dbExecutor,
		walletRepo: walletRepo,
		ledgerRepo: ledgerRepo,
		beginTx:    beginTx,
		commitTx:   commitTx,
		rollbackTx: rollbackTx,
		logger:     logger,
	}
}

// CreateAccount opens a wallet account with zero balances for a user.
func (e *walletEngine) CreateAccount(ctx context.Context, userID int64) (*domain.WalletAccount, error) {
	txController, err := e.beginTx(ctx, e.dbBeginner)
	if err != nil {
		return nil, fmt.Errorf("create account: failed to begin transaction: %w", err)
	}
	defer e.rollbackTx(txController)

	q, ok := txController.(repository.DBExecutor)
	if !ok {
		return nil, fmt.Errorf("create account: transaction controller does not implement DBExecutor")
	}

	existing, err := e.walletRepo.GetAccountByUserID(ctx, q, userID)
	if err == nil {
		return existing, nil
	}
	if !util.IsError(err, util.ErrNotFound) {
		return nil, fmt.Errorf("create account: failed to check existing account: %w", err)
	}

	account := domain.NewWalletAccount(userID)
	if err := e.walletRepo.CreateAccount(ctx, q, account); err != nil {
		return nil, fmt.Errorf("create account: %w", err)
	}

	if err := e.commitTx(txController); err != nil {
		return nil, fmt.Errorf("create account: failed to commit transaction: %w", err)
	}
	return account, nil
}

// GetBalance retrieves the wallet account of a user.
func (e *walletEngine) GetBalance(ctx context.Context, userID int64) (*domain.WalletAccount, error) {
	account, err := e.walletRepo.GetAccountByUserID(ctx, e.dbExecutor, userID)
	if err != nil {
		if util.IsError(err, util.ErrNotFound) {
			return nil, util.ErrAccountNotFound
		}
		return nil, fmt.Errorf("get balance: failed to get account for user %d: %w", userID, err)
	}
	return account, nil
}

// GetAvailableBalance returns total balance minus the sum of pending holds.
func (e *walletEngine) GetAvailableBalance(ctx context.Context, userID int64) (decimal.Decimal, error) {
	account, err := e.GetBalance(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	pending, err := e.ledgerRepo.SumPendingHolds(ctx, e.dbExecutor, userID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("get available balance: %w", err)
	}
	return account.TotalBalance().Sub(pending), nil
}

// Hold reserves funds against a pending session.
func (e *walletEngine) Hold(ctx context.Context, userID int64, amount decimal.Decimal, sessionID string) (*HoldResult, error) {
	txController, err := e.beginTx(ctx, e.dbBeginner)
	if err != nil {
		return nil, fmt.Errorf("hold: failed to begin transaction: %w", err)
	}
	defer e.rollbackTx(txController)

	q, ok := txController.(repository.DBExecutor)
	if !ok {
		return nil, fmt.Errorf("hold: transaction controller does not implement DBExecutor")
	}

	result, err := e.holdTx(ctx, q, userID, amount, sessionID)
	if err != nil {
		return nil, err
	}

	if err := e.commitTx(txController); err != nil {
		return nil, fmt.Errorf("hold: failed to commit transaction: %w", err)
	}
	return result, nil
}

// ChargeFromHold converts part or all of a hold into an actual debit.
func (e *walletEngine) ChargeFromHold(ctx context.Context, holdEntryID int64, chargeAmount decimal.Decimal) (*ChargeResult, error) {
	txController, err := e.beginTx(ctx, e.dbBeginner)
	if err != nil {
		return nil, fmt.Errorf("charge from hold: failed to begin transaction: %w", err)
	}
	defer e.rollbackTx(txController)

	q, ok := txController.(repository.DBExecutor)
	if !ok {
		return nil, fmt.Errorf("charge from hold: transaction controller does not implement DBExecutor")
	}

	result, err := e.chargeFromHoldTx(ctx, q, holdEntryID, chargeAmount)
	if err != nil {
		return nil, err
	}

	if err := e.commitTx(txController); err != nil {
		return nil, fmt.Errorf("charge from hold: failed to commit transaction: %w", err)
	}
	return result, nil
}

// RefundHold releases a hold that never became a charge.
func (e *walletEngine) RefundHold(ctx context.Context, holdEntryID int64, reason string) (*RefundResult, error) {
	txController, err := e.beginTx(ctx, e.dbBeginner)
	if err != nil {
		return nil, fmt.Errorf("refund hold: failed to begin transaction: %w", err)
	}
	defer e.rollbackTx(txController)

	q, ok := txController.(repository.DBExecutor)
	if !ok {
		return nil, fmt.Errorf("refund hold: transaction controller does not implement DBExecutor")
	}

	result, err := e.refundHoldTx(ctx, q, holdEntryID, reason)
	if err != nil {
		return nil, err
	}

	if err := e.commitTx(txController); err != nil {
		return nil, fmt.Errorf("refund hold: failed to commit transaction: %w", err)
	}
	return result, nil
}

// Debit deducts directly from a wallet, not preceded by a hold (e.g. gifts).
func (e *walletEngine) Debit(ctx context.Context, userID int64, amount decimal.Decimal, reason string) (*DebitResult, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, util.ErrInvalidInput
	}

	txController, err := e.beginTx(ctx, e.dbBeginner)
	if err != nil {
		return nil, fmt.Errorf("debit: failed to begin transaction: %w", err)
	}
	defer e.rollbackTx(txController)

	q, ok := txController.(repository.DBExecutor)
	if !ok {
		return nil, fmt.Errorf("debit: transaction controller does not implement DBExecutor")
	}

	account, err := e.lockAccount(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("debit: %w", err)
	}

	pending, err := e.ledgerRepo.SumPendingHolds(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("debit: %w", err)
	}
	if account.TotalBalance().Sub(pending).LessThan(amount) {
		return nil, util.ErrInsufficientFunds
	}

	entry, err := e.applyDebit(ctx, q, account, amount, domain.LedgerEntryKindDeduction, nil, nil, &reason)
	if err != nil {
		return nil, fmt.Errorf("debit: %w", err)
	}

	if err := e.commitTx(txController); err != nil {
		return nil, fmt.Errorf("debit: failed to commit transaction: %w", err)
	}
	return &DebitResult{Entry: entry}, nil
}

// Credit adds money to a wallet. Recharges credit cash; refunds and
// promotions credit bonus.
func (e *walletEngine) Credit(ctx context.Context, userID int64, amount decimal.Decimal, asBonus bool, reason string) (*CreditResult, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, util.ErrInvalidInput
	}

	txController, err := e.beginTx(ctx, e.dbBeginner)
	if err != nil {
		return nil, fmt.Errorf("credit: failed to begin transaction: %w", err)
	}
	defer e.rollbackTx(txController)

	q, ok := txController.(repository.DBExecutor)
	if !ok {
		return nil, fmt.Errorf("credit: transaction controller does not implement DBExecutor")
	}

	account, err := e.lockAccount(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("credit: %w", err)
	}

	entry, err := e.applyCredit(ctx, q, account, amount, asBonus, domain.LedgerEntryKindCredit, nil, nil, &reason)
	if err != nil {
		return nil, fmt.Errorf("credit: %w", err)
	}

	if err := e.commitTx(txController); err != nil {
		return nil, fmt.Errorf("credit: failed to commit transaction: %w", err)
	}
	return &CreditResult{Entry: entry}, nil
}

// GetLedgerHistory retrieves a paginated ledger history for a user.
func (e *walletEngine) GetLedgerHistory(ctx context.Context, userID int64, limit, offset int) ([]domain.LedgerEntry, int64, error) {
	if _, err := e.GetBalance(ctx, userID); err != nil {
		return nil, 0, err
	}
	entries, total, err := e.ledgerRepo.GetEntriesByOwnerID(ctx, e.dbExecutor, userID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("get ledger history: %w", err)
	}
	return entries, total, nil
}

// --- transaction-scoped operations ---
//
// The helpers below run against a caller-provided executor so the session
// engine can compose wallet mutations with session mutations in one atomic
// unit of work.

// holdTx verifies available capacity and appends a PENDING hold entry.
// Holds never move balance fields; available spending capacity is derived
// as total balance minus the sum of pending holds.
func (e *walletEngine) holdTx(ctx context.Context, q repository.DBExecutor, userID int64, amount decimal.Decimal, sessionID string) (*HoldResult, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, util.ErrInvalidInput
	}

	account, err := e.lockAccount(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("hold: %w", err)
	}

	pending, err := e.ledgerRepo.SumPendingHolds(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("hold: %w", err)
	}

	available := account.TotalBalance().Sub(pending)
	if available.LessThan(amount) {
		return nil, util.ErrInsufficientFunds
	}

	entry := domain.NewLedgerEntry(userID, domain.LedgerEntryKindHold, amount, domain.LedgerEntryStatusPending)
	entry.BalanceBefore = account.TotalBalance()
	entry.BalanceAfter = account.TotalBalance()
	entry.RelatedSessionID = &sessionID
	if err := e.ledgerRepo.CreateEntry(ctx, q, entry); err != nil {
		return nil, fmt.Errorf("hold: %w", err)
	}

	return &HoldResult{Entry: entry, AvailableAfter: available.Sub(amount)}, nil
}

// resizeHoldTx replaces a pending hold with a new one, used when the funded
// duration cap is recomputed at session activation. The old hold is
// cancelled without a refund entry; the new hold links back to it.
func (e *walletEngine) resizeHoldTx(ctx context.Context, q repository.DBExecutor, holdEntryID int64, newAmount decimal.Decimal, sessionID string) (*domain.LedgerEntry, error) {
	hold, err := e.lockHold(ctx, q, holdEntryID)
	if err != nil {
		return nil, fmt.Errorf("resize hold: %w", err)
	}
	if hold.Status != domain.LedgerEntryStatusPending {
		return nil, fmt.Errorf("resize hold %d: %w", holdEntryID, util.ErrAlreadyProcessed)
	}

	account, err := e.lockAccount(ctx, q, hold.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("resize hold: %w", err)
	}

	if err := e.ledgerRepo.UpdateEntryStatus(ctx, q, hold.ID, domain.LedgerEntryStatusCancelled); err != nil {
		return nil, fmt.Errorf("resize hold: %w", err)
	}

	entry := domain.NewLedgerEntry(hold.OwnerID, domain.LedgerEntryKindHold, newAmount, domain.LedgerEntryStatusPending)
	entry.BalanceBefore = account.TotalBalance()
	entry.BalanceAfter = account.TotalBalance()
	entry.RelatedSessionID = &sessionID
	entry.LinkedEntryID = &hold.ID
	if err := e.ledgerRepo.CreateEntry(ctx, q, entry); err != nil {
		return nil, fmt.Errorf("resize hold: %w", err)
	}

	return entry, nil
}

// chargeFromHoldTx settles a hold: debits the charged amount bonus-first,
// marks the hold COMPLETED and appends a CHARGE entry plus a REFUND entry
// for any unconsumed remainder. Retrying against a settled hold returns the
// previously recorded entries.
func (e *walletEngine) chargeFromHoldTx(ctx context.Context, q repository.DBExecutor, holdEntryID int64, chargeAmount decimal.Decimal) (*ChargeResult, error) {
	hold, err := e.lockHold(ctx, q, holdEntryID)
	if err != nil {
		return nil, fmt.Errorf("charge from hold: %w", err)
	}

	if hold.Status != domain.LedgerEntryStatusPending {
		// Idempotent replay: return what was recorded the first time.
		charge, err := e.ledgerRepo.GetEntryByLinkedID(ctx, q, domain.LedgerEntryKindCharge, hold.ID)
		if err != nil {
			if util.IsError(err, util.ErrNotFound) {
				return nil, fmt.Errorf("charge from hold %d: hold already cancelled: %w", holdEntryID, util.ErrAlreadyProcessed)
			}
			return nil, fmt.Errorf("charge from hold: %w", err)
		}
		refund, err := e.ledgerRepo.GetEntryByLinkedID(ctx, q, domain.LedgerEntryKindRefund, hold.ID)
		if err != nil && !util.IsError(err, util.ErrNotFound) {
			return nil, fmt.Errorf("charge from hold: %w", err)
		}
		return &ChargeResult{ChargeEntry: charge, RefundEntry: refund, AlreadyProcessed: true}, nil
	}

	if chargeAmount.LessThan(decimal.Zero) || chargeAmount.GreaterThan(hold.Amount) {
		return nil, fmt.Errorf("charge from hold %d: charge %s exceeds held %s: %w",
			holdEntryID, chargeAmount, hold.Amount, util.ErrInvalidInput)
	}

	account, err := e.lockAccount(ctx, q, hold.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("charge from hold: %w", err)
	}

	if err := e.ledgerRepo.UpdateEntryStatus(ctx, q, hold.ID, domain.LedgerEntryStatusCompleted); err != nil {
		return nil, fmt.Errorf("charge from hold: %w", err)
	}

	chargeEntry, err := e.applyDebit(ctx, q, account, chargeAmount, domain.LedgerEntryKindCharge, hold.RelatedSessionID, &hold.ID, nil)
	if err != nil {
		return nil, fmt.Errorf("charge from hold: %w", err)
	}

	result := &ChargeResult{ChargeEntry: chargeEntry}

	remainder := hold.Amount.Sub(chargeAmount)
	if remainder.GreaterThan(decimal.Zero) {
		// The remainder was only reserved, never debited, so releasing it
		// moves no money; the entry keeps the hold/refund audit pairing.
		refund := domain.NewLedgerEntry(hold.OwnerID, domain.LedgerEntryKindRefund, remainder, domain.LedgerEntryStatusCompleted)
		refund.BalanceBefore = chargeEntry.BalanceAfter
		refund.BalanceAfter = chargeEntry.BalanceAfter
		refund.RelatedSessionID = hold.RelatedSessionID
		refund.LinkedEntryID = &hold.ID
		if err := e.ledgerRepo.CreateEntry(ctx, q, refund); err != nil {
			return nil, fmt.Errorf("charge from hold: %w", err)
		}
		result.RefundEntry = refund
	}

	return result, nil
}

// refundHoldTx releases a hold for a session that never started. Retrying
// against a settled hold is a no-op returning the recorded refund.
func (e *walletEngine) refundHoldTx(ctx context.Context, q repository.DBExecutor, holdEntryID int64, reason string) (*RefundResult, error) {
	hold, err := e.lockHold(ctx, q, holdEntryID)
	if err != nil {
		return nil, fmt.Errorf("refund hold: %w", err)
	}

	if hold.Status != domain.LedgerEntryStatusPending {
		refund, err := e.ledgerRepo.GetEntryByLinkedID(ctx, q, domain.LedgerEntryKindRefund, hold.ID)
		if err != nil && !util.IsError(err, util.ErrNotFound) {
			return nil, fmt.Errorf("refund hold: %w", err)
		}
		return &RefundResult{RefundEntry: refund, AlreadyProcessed: true}, nil
	}

	account, err := e.lockAccount(ctx, q, hold.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("refund hold: %w", err)
	}

	if err := e.ledgerRepo.UpdateEntryStatus(ctx, q, hold.ID, domain.LedgerEntryStatusCancelled); err != nil {
		return nil, fmt.Errorf("refund hold: %w", err)
	}

	// Holds never moved balance, so the release moves none back.
	refund := domain.NewLedgerEntry(hold.OwnerID, domain.LedgerEntryKindRefund, hold.Amount, domain.LedgerEntryStatusCompleted)
	refund.BalanceBefore = account.TotalBalance()
	refund.BalanceAfter = account.TotalBalance()
	refund.RelatedSessionID = hold.RelatedSessionID
	refund.LinkedEntryID = &hold.ID
	refund.Reason = &reason
	if err := e.ledgerRepo.CreateEntry(ctx, q, refund); err != nil {
		return nil, fmt.Errorf("refund hold: %w", err)
	}

	return &RefundResult{RefundEntry: refund}, nil
}

// creditEarningTx credits a provider's earning from a settled session,
// linked to the payer's charge entry. The provider account is created on
// first earning.
func (e *walletEngine) creditEarningTx(ctx context.Context, q repository.DBExecutor, providerID int64, amount decimal.Decimal, sessionID string, chargeEntryID *int64) (*domain.LedgerEntry, error) {
	account, err := e.lockAccount(ctx, q, providerID)
	if err != nil {
		if !util.IsError(err, util.ErrAccountNotFound) {
			return nil, fmt.Errorf("credit earning: %w", err)
		}
		account = domain.NewWalletAccount(providerID)
		if err := e.walletRepo.CreateAccount(ctx, q, account); err != nil {
			return nil, fmt.Errorf("credit earning: %w", err)
		}
	}

	entry := domain.NewLedgerEntry(providerID, domain.LedgerEntryKindEarning, amount, domain.LedgerEntryStatusCompleted)
	entry.CashPortion = amount // earnings are withdrawable
	entry.BalanceBefore = account.TotalBalance()
	entry.BalanceAfter = account.TotalBalance().Add(amount)
	entry.RelatedSessionID = &sessionID
	entry.LinkedEntryID = chargeEntryID
	if err := e.ledgerRepo.CreateEntry(ctx, q, entry); err != nil {
		return nil, fmt.Errorf("credit earning: %w", err)
	}

	if err := e.walletRepo.UpdateBalances(ctx, q, account.ID, amount, decimal.Zero); err != nil {
		return nil, fmt.Errorf("credit earning: %w", err)
	}

	return entry, nil
}

// availableBalanceTx computes total minus pending holds under the caller's
// transaction.
func (e *walletEngine) availableBalanceTx(ctx context.Context, q repository.DBExecutor, userID int64) (decimal.Decimal, error) {
	account, err := e.lockAccount(ctx, q, userID)
	if err != nil {
		return decimal.Zero, err
	}
	pending, err := e.ledgerRepo.SumPendingHolds(ctx, q, userID)
	if err != nil {
		return decimal.Zero, err
	}
	return account.TotalBalance().Sub(pending), nil
}

// applyDebit consumes bonus balance first, then cash, records the portions
// on the resulting entry and updates the balance projection.
func (e *walletEngine) applyDebit(ctx context.Context, q repository.DBExecutor, account *domain.WalletAccount, amount decimal.Decimal, kind domain.LedgerEntryKind, sessionID *string, linkedEntryID *int64, reason *string) (*domain.LedgerEntry, error) {
	bonusPortion := decimal.Min(account.BonusBalance, amount)
	cashPortion := amount.Sub(bonusPortion)
	if cashPortion.GreaterThan(account.CashBalance) {
		return nil, util.ErrInsufficientFunds
	}

	entry := domain.NewLedgerEntry(account.UserID, kind, amount, domain.LedgerEntryStatusCompleted)
	entry.CashPortion = cashPortion
	entry.BonusPortion = bonusPortion
	entry.BalanceBefore = account.TotalBalance()
	entry.BalanceAfter = account.TotalBalance().Sub(amount)
	entry.RelatedSessionID = sessionID
	entry.LinkedEntryID = linkedEntryID
	entry.Reason = reason
	if err := e.ledgerRepo.CreateEntry(ctx, q, entry); err != nil {
		return nil, err
	}

	if err := e.walletRepo.UpdateBalances(ctx, q, account.ID, cashPortion.Neg(), bonusPortion.Neg()); err != nil {
		return nil, err
	}

	// Keep the in-memory projection in step for callers composing further
	// mutations in the same transaction.
	account.CashBalance = account.CashBalance.Sub(cashPortion)
	account.BonusBalance = account.BonusBalance.Sub(bonusPortion)

	return entry, nil
}

// applyCredit adds to cash or bonus, records the portion and updates the
// balance projection.
func (e *walletEngine) applyCredit(ctx context.Context, q repository.DBExecutor, account *domain.WalletAccount, amount decimal.Decimal, asBonus bool, kind domain.LedgerEntryKind, sessionID *string, linkedEntryID *int64, reason *string) (*domain.LedgerEntry, error) {
	entry := domain.NewLedgerEntry(account.UserID, kind, amount, domain.LedgerEntryStatusCompleted)
	entry.BalanceBefore = account.TotalBalance()
	entry.BalanceAfter = account.TotalBalance().Add(amount)
	entry.RelatedSessionID = sessionID
	entry.LinkedEntryID = linkedEntryID
	entry.Reason = reason

	var cashDelta, bonusDelta decimal.Decimal
	if asBonus {
		entry.BonusPortion = amount
		cashDelta, bonusDelta = decimal.Zero, amount
	} else {
		entry.CashPortion = amount
		cashDelta, bonusDelta = amount, decimal.Zero
	}

	if err := e.ledgerRepo.CreateEntry(ctx, q, entry); err != nil {
		return nil, err
	}
	if err := e.walletRepo.UpdateBalances(ctx, q, account.ID, cashDelta, bonusDelta); err != nil {
		return nil, err
	}

	account.CashBalance = account.CashBalance.Add(cashDelta)
	account.BonusBalance = account.BonusBalance.Add(bonusDelta)

	return entry, nil
}

func (e *walletEngine) lockAccount(ctx context.Context, q repository.DBExecutor, userID int64) (*domain.WalletAccount, error) {
	account, err := e.walletRepo.GetAccountByUserIDForUpdate(ctx, q, userID)
	if err != nil {
		if util.IsError(err, util.ErrNotFound) {
			return nil, util.ErrAccountNotFound
		}
		return nil, err
	}
	return account, nil
}

func (e *walletEngine) lockHold(ctx context.Context, q repository.DBExecutor, holdEntryID int64) (*domain.LedgerEntry, error) {
	hold, err := e.ledgerRepo.GetEntryByIDForUpdate(ctx, q, holdEntryID)
	if err != nil {
		if util.IsError(err, util.ErrNotFound) {
			return nil, util.ErrHoldNotFound
		}
		return nil, err
	}
	if hold.Kind != domain.LedgerEntryKindHold {
		return nil, fmt.Errorf("entry %d is not a hold: %w", holdEntryID, util.ErrInvalidInput)
	}
	return hold, nil
}
