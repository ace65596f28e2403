// internal/service/engine_fakes_test.go
package service

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"consult-core/internal/config"
	"consult-core/internal/domain"
	"consult-core/internal/notify"
	"consult-core/internal/repository"
	"consult-core/internal/util"
	"consult-core/pkg/db"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// The engines compose multi-step ledger and session mutations, so these
// tests run them against stateful in-memory repositories instead of
// per-call mocks. Transactionality itself is the database's concern; the
// fakes apply every mutation immediately.

// fakeTx satisfies both db.TxController and repository.DBExecutor so it can
// flow through the engines' transaction plumbing untouched.
type fakeTx struct{}

func (fakeTx) Commit() error   { return nil }
func (fakeTx) Rollback() error { return nil }

func (fakeTx) GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	return nil
}

func (fakeTx) SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	return nil
}

func (fakeTx) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return nil, nil
}

func (fakeTx) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return nil
}

func fakeBeginTx(ctx context.Context, dbConn db.DBTxBeginner) (db.TxController, error) {
	return fakeTx{}, nil
}

func fakeCommitTx(tx db.TxController) error { return tx.Commit() }

func fakeRollbackTx(tx db.TxController) { _ = tx.Rollback() }

// fakeWalletRepo is an in-memory WalletAccountRepository keyed by user id.
type fakeWalletRepo struct {
	mu       sync.Mutex
	nextID   int64
	accounts map[int64]*domain.WalletAccount // by user id
}

func newFakeWalletRepo() *fakeWalletRepo {
	return &fakeWalletRepo{accounts: make(map[int64]*domain.WalletAccount)}
}

func (r *fakeWalletRepo) CreateAccount(ctx context.Context, q repository.DBExecutor, account *domain.WalletAccount) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	account.ID = r.nextID
	stored := *account
	r.accounts[account.UserID] = &stored
	return nil
}

func (r *fakeWalletRepo) GetAccountByUserID(ctx context.Context, q repository.DBExecutor, userID int64) (*domain.WalletAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.accounts[userID]
	if !ok {
		return nil, util.ErrNotFound
	}
	copied := *stored
	return &copied, nil
}

func (r *fakeWalletRepo) GetAccountByUserIDForUpdate(ctx context.Context, q repository.DBExecutor, userID int64) (*domain.WalletAccount, error) {
	return r.GetAccountByUserID(ctx, q, userID)
}

func (r *fakeWalletRepo) UpdateBalances(ctx context.Context, q repository.DBExecutor, accountID int64, cashDelta, bonusDelta decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, stored := range r.accounts {
		if stored.ID == accountID {
			stored.CashBalance = stored.CashBalance.Add(cashDelta)
			stored.BonusBalance = stored.BonusBalance.Add(bonusDelta)
			stored.UpdatedAt = time.Now().UTC()
			return nil
		}
	}
	return util.ErrNotFound
}

// setBalances overwrites an account's balances, simulating out-of-band
// changes between engine calls.
func (r *fakeWalletRepo) setBalances(userID int64, cash, bonus decimal.Decimal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if stored, ok := r.accounts[userID]; ok {
		stored.CashBalance = cash
		stored.BonusBalance = bonus
	}
}

// fakeLedgerRepo is an in-memory append-only LedgerRepository.
type fakeLedgerRepo struct {
	mu      sync.Mutex
	nextID  int64
	entries map[int64]*domain.LedgerEntry
}

func newFakeLedgerRepo() *fakeLedgerRepo {
	return &fakeLedgerRepo{entries: make(map[int64]*domain.LedgerEntry)}
}

func (r *fakeLedgerRepo) CreateEntry(ctx context.Context, q repository.DBExecutor, entry *domain.LedgerEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	entry.ID = r.nextID
	stored := *entry
	r.entries[entry.ID] = &stored
	return nil
}

func (r *fakeLedgerRepo) GetEntryByID(ctx context.Context, q repository.DBExecutor, id int64) (*domain.LedgerEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.entries[id]
	if !ok {
		return nil, util.ErrNotFound
	}
	copied := *stored
	return &copied, nil
}

func (r *fakeLedgerRepo) GetEntryByIDForUpdate(ctx context.Context, q repository.DBExecutor, id int64) (*domain.LedgerEntry, error) {
	return r.GetEntryByID(ctx, q, id)
}

func (r *fakeLedgerRepo) UpdateEntryStatus(ctx context.Context, q repository.DBExecutor, id int64, status domain.LedgerEntryStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.entries[id]
	if !ok {
		return util.ErrNotFound
	}
	if stored.Status != domain.LedgerEntryStatusPending {
		return util.ErrAlreadyProcessed
	}
	stored.Status = status
	return nil
}

func (r *fakeLedgerRepo) GetEntryByLinkedID(ctx context.Context, q repository.DBExecutor, kind domain.LedgerEntryKind, linkedEntryID int64) (*domain.LedgerEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, stored := range r.entries {
		if stored.Kind == kind && stored.LinkedEntryID != nil && *stored.LinkedEntryID == linkedEntryID {
			copied := *stored
			return &copied, nil
		}
	}
	return nil, util.ErrNotFound
}

func (r *fakeLedgerRepo) SumPendingHolds(ctx context.Context, q repository.DBExecutor, ownerID int64) (decimal.Decimal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sum := decimal.Zero
	for _, stored := range r.entries {
		if stored.OwnerID == ownerID && stored.Kind == domain.LedgerEntryKindHold && stored.Status == domain.LedgerEntryStatusPending {
			sum = sum.Add(stored.Amount)
		}
	}
	return sum, nil
}

func (r *fakeLedgerRepo) GetEntriesByOwnerID(ctx context.Context, q repository.DBExecutor, ownerID int64, limit, offset int) ([]domain.LedgerEntry, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var owned []domain.LedgerEntry
	for _, stored := range r.entries {
		if stored.OwnerID == ownerID {
			owned = append(owned, *stored)
		}
	}
	sort.Slice(owned, func(i, j int) bool { return owned[i].ID > owned[j].ID })
	total := int64(len(owned))
	if offset >= len(owned) {
		return []domain.LedgerEntry{}, total, nil
	}
	end := offset + limit
	if end > len(owned) {
		end = len(owned)
	}
	return owned[offset:end], total, nil
}

// entriesByKind returns all stored entries of a kind for an owner, oldest
// first.
func (r *fakeLedgerRepo) entriesByKind(ownerID int64, kind domain.LedgerEntryKind) []domain.LedgerEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.LedgerEntry
	for _, stored := range r.entries {
		if stored.OwnerID == ownerID && stored.Kind == kind {
			out = append(out, *stored)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *fakeLedgerRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// fakeSessionRepo is an in-memory SessionRepository.
type fakeSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*domain.Session
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{sessions: make(map[string]*domain.Session)}
}

func (r *fakeSessionRepo) CreateSession(ctx context.Context, q repository.DBExecutor, session *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := *session
	r.sessions[session.SessionID] = &stored
	return nil
}

func (r *fakeSessionRepo) GetSessionByID(ctx context.Context, q repository.DBExecutor, sessionID string) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.sessions[sessionID]
	if !ok {
		return nil, util.ErrNotFound
	}
	copied := *stored
	return &copied, nil
}

func (r *fakeSessionRepo) GetSessionByIDForUpdate(ctx context.Context, q repository.DBExecutor, sessionID string) (*domain.Session, error) {
	return r.GetSessionByID(ctx, q, sessionID)
}

func (r *fakeSessionRepo) UpdateSession(ctx context.Context, q repository.DBExecutor, session *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[session.SessionID]; !ok {
		return util.ErrNotFound
	}
	stored := *session
	stored.UpdatedAt = time.Now().UTC()
	r.sessions[session.SessionID] = &stored
	return nil
}

func (r *fakeSessionRepo) GetNonTerminalSessions(ctx context.Context, q repository.DBExecutor) ([]domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Session
	for _, stored := range r.sessions {
		if !stored.Status.IsTerminal() {
			out = append(out, *stored)
		}
	}
	return out, nil
}

// backdateStart shifts a stored session's start time into the past so tests
// control the elapsed duration without a clock abstraction.
func (r *fakeSessionRepo) backdateStart(sessionID string, ago time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if stored, ok := r.sessions[sessionID]; ok && stored.StartedAt != nil {
		past := stored.StartedAt.Add(-ago)
		stored.StartedAt = &past
	}
}

// fakeThreadRepo is an in-memory ThreadRepository.
type fakeThreadRepo struct {
	mu      sync.Mutex
	nextID  int64
	threads []*domain.ConversationThread
}

func newFakeThreadRepo() *fakeThreadRepo {
	return &fakeThreadRepo{}
}

func (r *fakeThreadRepo) CreateThread(ctx context.Context, q repository.DBExecutor, thread *domain.ConversationThread) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	thread.ID = r.nextID
	stored := *thread
	r.threads = append(r.threads, &stored)
	return nil
}

func (r *fakeThreadRepo) GetThreadByPair(ctx context.Context, q repository.DBExecutor, payerID, providerID int64) (*domain.ConversationThread, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, stored := range r.threads {
		if stored.PayerID == payerID && stored.ProviderID == providerID {
			copied := *stored
			return &copied, nil
		}
	}
	return nil, util.ErrNotFound
}

func (r *fakeThreadRepo) AccumulateThread(ctx context.Context, q repository.DBExecutor, threadID int64, spent decimal.Decimal, durationSeconds int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, stored := range r.threads {
		if stored.ID == threadID {
			stored.TotalSessions++
			stored.TotalSpent = stored.TotalSpent.Add(spent)
			stored.TotalDurationSeconds += durationSeconds
			stored.UpdatedAt = time.Now().UTC()
			return nil
		}
	}
	return util.ErrNotFound
}

// fakeTimers records TimerScheduler calls.
type fakeTimers struct {
	mu              sync.Mutex
	requestTimeouts map[string]time.Duration
	joinTimeouts    map[string]time.Duration
	actives         map[string]time.Duration
	cancels         []string
}

func newFakeTimers() *fakeTimers {
	return &fakeTimers{
		requestTimeouts: make(map[string]time.Duration),
		joinTimeouts:    make(map[string]time.Duration),
		actives:         make(map[string]time.Duration),
	}
}

func (f *fakeTimers) ArmRequestTimeout(sessionID string, d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requestTimeouts[sessionID] = d
}

func (f *fakeTimers) ArmJoinTimeout(sessionID string, d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joinTimeouts[sessionID] = d
}

func (f *fakeTimers) ArmActive(sessionID string, maxDuration time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actives[sessionID] = maxDuration
}

func (f *fakeTimers) Cancel(sessionID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels = append(f.cancels, sessionID)
}

func (f *fakeTimers) cancelled(sessionID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range f.cancels {
		if id == sessionID {
			return true
		}
	}
	return false
}

// recordingNotifier captures emitted events.
type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (n *recordingNotifier) Notify(ctx context.Context, event notify.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func (n *recordingNotifier) byType(eventType notify.EventType) []notify.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []notify.Event
	for _, e := range n.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

// engineFixture wires the wallet and session engines onto the fakes.
type engineFixture struct {
	wallets *fakeWalletRepo
	ledger  *fakeLedgerRepo
	sess    *fakeSessionRepo
	threads *fakeThreadRepo
	timers  *fakeTimers
	events  *recordingNotifier
	cfg     config.EngineConfig
	engine  *walletEngine
	svc     SessionService
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()

	fx := &engineFixture{
		wallets: newFakeWalletRepo(),
		ledger:  newFakeLedgerRepo(),
		sess:    newFakeSessionRepo(),
		threads: newFakeThreadRepo(),
		timers:  newFakeTimers(),
		events:  &recordingNotifier{},
		cfg: config.EngineConfig{
			CommissionPercent: 20,
			MinHoldMinutes:    5,
			RequestTimeout:    time.Minute,
			JoinTimeout:       2 * time.Minute,
		},
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	fx.engine = newWalletEngine(nil, fakeTx{}, fx.wallets, fx.ledger,
		fakeBeginTx, fakeCommitTx, fakeRollbackTx, logger)

	svc, err := NewSessionService(nil, fakeTx{}, fx.sess, fx.threads, fx.engine,
		fx.timers, fx.events, fx.cfg, fakeBeginTx, fakeCommitTx, fakeRollbackTx, logger)
	require.NoError(t, err)
	fx.svc = svc

	return fx
}

// fund creates an account and credits it with cash.
func (fx *engineFixture) fund(t *testing.T, userID int64, cash decimal.Decimal) {
	t.Helper()
	ctx := context.Background()
	_, err := fx.engine.CreateAccount(ctx, userID)
	require.NoError(t, err)
	if cash.GreaterThan(decimal.Zero) {
		_, err = fx.engine.Credit(ctx, userID, cash, false, "recharge")
		require.NoError(t, err)
	}
}
