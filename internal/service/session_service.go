// internal/service/session_service.go
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"consult-core/internal/billing"
	"consult-core/internal/config"
	"consult-core/internal/domain"
	"consult-core/internal/notify"
	"consult-core/internal/repository"
	"consult-core/internal/util"
	"consult-core/pkg/db"

	"github.com/shopspring/decimal"
)

// TimerScheduler is the slice of the timer supervisor the session engine
// needs. *timer.Supervisor implements it.
type TimerScheduler interface {
	ArmRequestTimeout(sessionID string, d time.Duration)
	ArmJoinTimeout(sessionID string, d time.Duration)
	ArmActive(sessionID string, maxDuration time.Duration)
	Cancel(sessionID string)
}

// timerFireTimeout bounds the work done when a timer re-enters the engine.
const timerFireTimeout = 10 * time.Second

// SessionService owns the session lifecycle state machine:
//
//	REQUESTED -> WAITING_JOIN -> ACTIVE -> {ENDED | CANCELLED | REJECTED}
//
// Terminal states are absorbing; repeated termination calls return the
// stored outcome. All transitions serialize on the session row lock.
type SessionService interface {
	InitiateSession(ctx context.Context, payerID, providerID int64, kind domain.SessionKind, medium domain.CallMedium, ratePerMinute decimal.Decimal) (*domain.Session, error)
	AcceptSession(ctx context.Context, sessionID string) (*domain.Session, error)
	RejectSession(ctx context.Context, sessionID string) (*domain.Session, error)
	CancelSession(ctx context.Context, sessionID string) (*domain.Session, error)
	MarkBothPartiesPresent(ctx context.Context, sessionID string) (*domain.Session, error)
	EndSession(ctx context.Context, sessionID string, reason domain.EndReason) (*domain.Session, error)
	GetSession(ctx context.Context, sessionID string) (*domain.Session, error)
	// AttachRecording stores an external recording reference on an ended
	// session. Purely additive metadata with no bearing on billing.
	AttachRecording(ctx context.Context, sessionID, recordingRef string) (*domain.Session, error)
	// RecoverTimers re-arms timers for non-terminal sessions after a process
	// restart, deriving remaining durations from the stored timestamps.
	RecoverTimers(ctx context.Context) error
}

// sessionService implements the SessionService interface.
type sessionService struct {
	dbBeginner  db.DBTxBeginner
	dbExecutor  repository.DBExecutor
	sessionRepo repository.SessionRepository
	threadRepo  repository.ThreadRepository
	wallet      *walletEngine
	timers      TimerScheduler
	notifier    notify.Notifier
	engineCfg   config.EngineConfig
	beginTx     db.BeginTxFunc
	commitTx    db.CommitTxFunc
	rollbackTx  db.RollbackTxFunc
	logger      *slog.Logger
}

// NewSessionService creates a new instance of SessionService. The wallet
// engine must be the one produced by NewWalletEngine: session settlement
// composes wallet mutations into its own transactions.
func NewSessionService(
	dbBeginner db.DBTxBeginner,
	dbExecutor repository.DBExecutor,
	sessionRepo repository.SessionRepository,
	threadRepo repository.ThreadRepository,
	wallet WalletEngine,
	timers TimerScheduler,
	notifier notify.Notifier,
	engineCfg config.EngineConfig,
	beginTx db.BeginTxFunc,
	commitTx db.CommitTxFunc,
	rollbackTx db.RollbackTxFunc,
	logger *slog.Logger,
) (SessionService, error) {
	engine, ok := wallet.(*walletEngine)
	if !ok {
		return nil, fmt.Errorf("new session service: unsupported wallet engine implementation %T", wallet)
	}
	return &sessionService{
		dbBeginner:  dbBeginner,
		dbExecutor:  dbExecutor,
		sessionRepo: sessionRepo,
		threadRepo:  threadRepo,
		wallet:      engine,
		timers:      timers,
		notifier:    notifier,
		engineCfg:   engineCfg,
		beginTx:     beginTx,
		commitTx:    commitTx,
		rollbackTx:  rollbackTx,
		logger:      logger,
	}, nil
}

// InitiateSession places a hold for the provisional minimum duration and
// creates the session in REQUESTED state. Insufficient funds reject the
// request before any session object is created.
func (s *sessionService) InitiateSession(ctx context.Context, payerID, providerID int64, kind domain.SessionKind, medium domain.CallMedium, ratePerMinute decimal.Decimal) (*domain.Session, error) {
	if ratePerMinute.LessThanOrEqual(decimal.Zero) || payerID == providerID {
		return nil, util.ErrInvalidInput
	}

	session := domain.NewSession(payerID, providerID, kind, medium, ratePerMinute)
	holdAmount := ratePerMinute.Mul(decimal.NewFromInt(s.engineCfg.MinHoldMinutes))

	txController, err := s.beginTx(ctx, s.dbBeginner)
	if err != nil {
		return nil, fmt.Errorf("initiate session: failed to begin transaction: %w", err)
	}
	defer s.rollbackTx(txController)

	q, ok := txController.(repository.DBExecutor)
	if !ok {
		return nil, fmt.Errorf("initiate session: transaction controller does not implement DBExecutor")
	}

	holdResult, err := s.wallet.holdTx(ctx, q, payerID, holdAmount, session.SessionID)
	if err != nil {
		return nil, fmt.Errorf("initiate session: %w", err)
	}
	session.HoldEntryID = &holdResult.Entry.ID

	if err := s.sessionRepo.CreateSession(ctx, q, session); err != nil {
		return nil, fmt.Errorf("initiate session: %w", err)
	}

	if err := s.commitTx(txController); err != nil {
		return nil, fmt.Errorf("initiate session: failed to commit transaction: %w", err)
	}

	s.timers.ArmRequestTimeout(session.SessionID, s.engineCfg.RequestTimeout)
	s.emitStateChanged(ctx, session, "", session.Status)
	return session, nil
}

// AcceptSession moves a requested session to WAITING_JOIN.
func (s *sessionService) AcceptSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	txController, err := s.beginTx(ctx, s.dbBeginner)
	if err != nil {
		return nil, fmt.Errorf("accept session: failed to begin transaction: %w", err)
	}
	defer s.rollbackTx(txController)

	q, ok := txController.(repository.DBExecutor)
	if !ok {
		return nil, fmt.Errorf("accept session: transaction controller does not implement DBExecutor")
	}

	session, err := s.lockSession(ctx, q, sessionID)
	if err != nil {
		return nil, fmt.Errorf("accept session: %w", err)
	}
	if session.Status != domain.SessionStatusRequested {
		return nil, fmt.Errorf("accept session %s in status %s: %w", sessionID, session.Status, util.ErrInvalidStateTransition)
	}

	from := session.Status
	session.Status = domain.SessionStatusWaitingJoin
	if err := s.sessionRepo.UpdateSession(ctx, q, session); err != nil {
		return nil, fmt.Errorf("accept session: %w", err)
	}

	if err := s.commitTx(txController); err != nil {
		return nil, fmt.Errorf("accept session: failed to commit transaction: %w", err)
	}

	s.timers.ArmJoinTimeout(sessionID, s.engineCfg.JoinTimeout)
	s.emitStateChanged(ctx, session, from, session.Status)
	return session, nil
}

// RejectSession lets the provider decline a requested session. The hold is
// released in full.
func (s *sessionService) RejectSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	return s.terminateUnstarted(ctx, sessionID, domain.SessionStatusRejected, domain.EndReasonRejected,
		[]domain.SessionStatus{domain.SessionStatusRequested})
}

// CancelSession cancels a session that has not become active yet (payer
// withdrawal or timeouts). The hold is released in full.
func (s *sessionService) CancelSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	return s.terminateUnstarted(ctx, sessionID, domain.SessionStatusCancelled, domain.EndReasonUserEnded,
		[]domain.SessionStatus{domain.SessionStatusRequested, domain.SessionStatusWaitingJoin})
}

// MarkBothPartiesPresent activates a session. The funded duration cap is
// recomputed here, not at initiation, because the payer's balance may have
// changed between request and join; the provisional hold is resized to the
// actual maximum affordable charge.
func (s *sessionService) MarkBothPartiesPresent(ctx context.Context, sessionID string) (*domain.Session, error) {
	txController, err := s.beginTx(ctx, s.dbBeginner)
	if err != nil {
		return nil, fmt.Errorf("mark present: failed to begin transaction: %w", err)
	}
	defer s.rollbackTx(txController)

	q, ok := txController.(repository.DBExecutor)
	if !ok {
		return nil, fmt.Errorf("mark present: transaction controller does not implement DBExecutor")
	}

	session, err := s.lockSession(ctx, q, sessionID)
	if err != nil {
		return nil, fmt.Errorf("mark present: %w", err)
	}
	if session.Status == domain.SessionStatusActive {
		// Both-present reported twice; idempotent no-op.
		return session, nil
	}
	if session.Status != domain.SessionStatusWaitingJoin {
		return nil, fmt.Errorf("mark present on session %s in status %s: %w", sessionID, session.Status, util.ErrInvalidStateTransition)
	}
	if session.HoldEntryID == nil {
		return nil, fmt.Errorf("mark present: session %s has no hold: %w", sessionID, util.ErrHoldNotFound)
	}

	hold, err := s.wallet.lockHold(ctx, q, *session.HoldEntryID)
	if err != nil {
		return nil, fmt.Errorf("mark present: %w", err)
	}

	available, err := s.wallet.availableBalanceTx(ctx, q, session.PayerID)
	if err != nil {
		return nil, fmt.Errorf("mark present: %w", err)
	}
	// The session's own hold funds the session, so it counts as spendable
	// capacity here.
	funding := available.Add(hold.Amount)

	maxSeconds := billing.MaxDurationSeconds(funding, session.RatePerMinute)
	if maxSeconds <= 0 {
		// Balance dropped below one minute between request and join.
		return s.endUnfundedLocked(ctx, q, txController, session)
	}

	maxCharge := session.RatePerMinute.Mul(decimal.NewFromInt(maxSeconds / 60))
	if !maxCharge.Equal(hold.Amount) {
		newHold, err := s.wallet.resizeHoldTx(ctx, q, hold.ID, maxCharge, session.SessionID)
		if err != nil {
			return nil, fmt.Errorf("mark present: %w", err)
		}
		session.HoldEntryID = &newHold.ID
	}

	now := time.Now().UTC()
	from := session.Status
	session.Status = domain.SessionStatusActive
	session.StartedAt = &now
	session.MaxDurationSeconds = maxSeconds
	if err := s.sessionRepo.UpdateSession(ctx, q, session); err != nil {
		return nil, fmt.Errorf("mark present: %w", err)
	}

	if err := s.commitTx(txController); err != nil {
		return nil, fmt.Errorf("mark present: failed to commit transaction: %w", err)
	}

	s.timers.ArmActive(sessionID, time.Duration(maxSeconds)*time.Second)
	s.emitStateChanged(ctx, session, from, session.Status)
	return session, nil
}

// EndSession terminates a session. For active sessions it computes billing
// for the elapsed time (capped at the funded duration, floored at one
// minute), charges the payer from the hold and credits the provider's
// earning. Ending an already-terminal session returns the stored outcome
// unchanged. If settlement fails after a legitimate end, the session stays
// ENDED with payment_pending set and ErrSettlementFailed is returned.
func (s *sessionService) EndSession(ctx context.Context, sessionID string, reason domain.EndReason) (*domain.Session, error) {
	session, err := s.settle(ctx, sessionID, reason)
	if err == nil || !shouldMarkPaymentPending(err) {
		return session, err
	}

	s.logger.Error("session settlement failed, marking payment pending", "session_id", sessionID, "error", err)
	session, markErr := s.markEndedPaymentPending(ctx, sessionID, reason)
	if markErr != nil {
		return nil, fmt.Errorf("end session: settlement failed (%v) and fallback failed: %w", err, markErr)
	}
	s.timers.Cancel(sessionID)
	return session, fmt.Errorf("end session %s: %w", sessionID, util.ErrSettlementFailed)
}

// GetSession retrieves a session by id.
func (s *sessionService) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	session, err := s.sessionRepo.GetSessionByID(ctx, s.dbExecutor, sessionID)
	if err != nil {
		if util.IsError(err, util.ErrNotFound) {
			return nil, util.ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	return session, nil
}

// AttachRecording stores a recording reference on an ended session.
func (s *sessionService) AttachRecording(ctx context.Context, sessionID, recordingRef string) (*domain.Session, error) {
	if recordingRef == "" {
		return nil, util.ErrInvalidInput
	}

	txController, err := s.beginTx(ctx, s.dbBeginner)
	if err != nil {
		return nil, fmt.Errorf("attach recording: failed to begin transaction: %w", err)
	}
	defer s.rollbackTx(txController)

	q, ok := txController.(repository.DBExecutor)
	if !ok {
		return nil, fmt.Errorf("attach recording: transaction controller does not implement DBExecutor")
	}

	session, err := s.lockSession(ctx, q, sessionID)
	if err != nil {
		return nil, fmt.Errorf("attach recording: %w", err)
	}
	if session.Status != domain.SessionStatusEnded {
		return nil, fmt.Errorf("attach recording to session %s in status %s: %w", sessionID, session.Status, util.ErrInvalidStateTransition)
	}

	session.RecordingRef = &recordingRef
	if err := s.sessionRepo.UpdateSession(ctx, q, session); err != nil {
		return nil, fmt.Errorf("attach recording: %w", err)
	}

	if err := s.commitTx(txController); err != nil {
		return nil, fmt.Errorf("attach recording: failed to commit transaction: %w", err)
	}
	return session, nil
}

// RecoverTimers re-arms timers for all non-terminal sessions. Timers do not
// survive a restart; remaining durations are derived from the stored
// timestamps, and already-expired deadlines fire immediately.
func (s *sessionService) RecoverTimers(ctx context.Context) error {
	sessions, err := s.sessionRepo.GetNonTerminalSessions(ctx, s.dbExecutor)
	if err != nil {
		return fmt.Errorf("recover timers: %w", err)
	}

	now := time.Now().UTC()
	for i := range sessions {
		session := &sessions[i]
		switch session.Status {
		case domain.SessionStatusRequested:
			s.timers.ArmRequestTimeout(session.SessionID, remaining(session.CreatedAt, s.engineCfg.RequestTimeout, now))
		case domain.SessionStatusWaitingJoin:
			s.timers.ArmJoinTimeout(session.SessionID, remaining(session.UpdatedAt, s.engineCfg.JoinTimeout, now))
		case domain.SessionStatusActive:
			if session.StartedAt == nil {
				continue
			}
			s.timers.ArmActive(session.SessionID, remaining(*session.StartedAt, time.Duration(session.MaxDurationSeconds)*time.Second, now))
		}
		s.logger.Info("recovered session timer", "session_id", session.SessionID, "status", session.Status)
	}
	return nil
}

// --- timer supervisor callbacks ---
//
// Timer firings re-enter the state machine through the same guarded
// transitions as external callers, so a race between a manual action and a
// firing timer leaves the loser observing a terminal state and no-oping.

func (s *sessionService) OnRequestTimeout(sessionID string) {
	s.fireTransition(sessionID, "request timeout", func(ctx context.Context) error {
		_, err := s.terminateUnstarted(ctx, sessionID, domain.SessionStatusCancelled, domain.EndReasonRequestTimeout,
			[]domain.SessionStatus{domain.SessionStatusRequested})
		return err
	})
}

func (s *sessionService) OnJoinTimeout(sessionID string) {
	s.fireTransition(sessionID, "join timeout", func(ctx context.Context) error {
		_, err := s.terminateUnstarted(ctx, sessionID, domain.SessionStatusCancelled, domain.EndReasonJoinTimeout,
			[]domain.SessionStatus{domain.SessionStatusWaitingJoin})
		return err
	})
}

func (s *sessionService) OnAutoEnd(sessionID string) {
	s.fireTransition(sessionID, "auto end", func(ctx context.Context) error {
		_, err := s.EndSession(ctx, sessionID, domain.EndReasonTimeout)
		return err
	})
}

// OnTick broadcasts a read-only progress event. Ticks never mutate ledger
// or session state.
func (s *sessionService) OnTick(sessionID string, elapsedSeconds, remainingSeconds int64) {
	event := notify.NewEvent(notify.EventTimerTick, sessionID)
	event.TimerTick = &notify.TimerTickPayload{
		ElapsedSeconds:   elapsedSeconds,
		RemainingSeconds: remainingSeconds,
	}
	s.notifier.Notify(context.Background(), event)
}

func (s *sessionService) fireTransition(sessionID, kind string, fn func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), timerFireTimeout)
	defer cancel()
	if err := fn(ctx); err != nil && !util.IsError(err, util.ErrInvalidStateTransition) {
		// Timer-driven failures are logged, never retried automatically.
		s.logger.Error("timer-driven transition failed", "kind", kind, "session_id", sessionID, "error", err)
	}
}

// --- internals ---

// settle is the single ENDED transition for active sessions: billing,
// charge-from-hold, provider earning and thread accumulation in one atomic
// unit of work.
func (s *sessionService) settle(ctx context.Context, sessionID string, reason domain.EndReason) (*domain.Session, error) {
	txController, err := s.beginTx(ctx, s.dbBeginner)
	if err != nil {
		return nil, fmt.Errorf("end session: failed to begin transaction: %w", err)
	}
	defer s.rollbackTx(txController)

	q, ok := txController.(repository.DBExecutor)
	if !ok {
		return nil, fmt.Errorf("end session: transaction controller does not implement DBExecutor")
	}

	session, err := s.lockSession(ctx, q, sessionID)
	if err != nil {
		return nil, fmt.Errorf("end session: %w", err)
	}
	if session.Status.IsTerminal() {
		// Invariant: terminal sessions never mutate again; the stored
		// outcome is the answer for every repeated call.
		s.timers.Cancel(sessionID)
		return session, nil
	}
	if session.Status != domain.SessionStatusActive {
		// Ending before activation is a cancellation with a full release.
		return s.terminateUnstartedLocked(ctx, q, txController, session, domain.SessionStatusCancelled, reason)
	}
	if session.HoldEntryID == nil {
		return nil, fmt.Errorf("end session: session %s has no hold: %w", sessionID, util.ErrHoldNotFound)
	}

	now := time.Now().UTC()
	elapsed := session.ElapsedSeconds(now)
	if elapsed > session.MaxDurationSeconds {
		// A late-firing auto-end never bills beyond the funded cap.
		elapsed = session.MaxDurationSeconds
	}
	if elapsed <= 0 {
		// Once active, the one-minute minimum applies even to an
		// immediate end.
		elapsed = 1
	}

	result := billing.Compute(elapsed, session.RatePerMinute, s.engineCfg.CommissionPercent)

	chargeResult, err := s.wallet.chargeFromHoldTx(ctx, q, *session.HoldEntryID, result.ChargedAmount)
	if err != nil {
		return nil, fmt.Errorf("end session: %w", err)
	}

	var chargeEntryID *int64
	if chargeResult.ChargeEntry != nil {
		chargeEntryID = &chargeResult.ChargeEntry.ID
	}
	if _, err := s.wallet.creditEarningTx(ctx, q, session.ProviderID, result.ProviderEarning, session.SessionID, chargeEntryID); err != nil {
		return nil, fmt.Errorf("end session: %w", err)
	}

	threadID, err := s.accumulateThread(ctx, q, session, result.ChargedAmount, elapsed)
	if err != nil {
		return nil, fmt.Errorf("end session: %w", err)
	}

	from := session.Status
	session.Status = domain.SessionStatusEnded
	session.EndedAt = &now
	session.EndReason = &reason
	session.BilledMinutes = result.BilledMinutes
	session.ChargedAmount = result.ChargedAmount
	session.PlatformCommission = result.PlatformCommission
	session.ProviderEarning = result.ProviderEarning
	session.PaymentPending = false
	session.ThreadID = threadID
	if err := s.sessionRepo.UpdateSession(ctx, q, session); err != nil {
		return nil, fmt.Errorf("end session: %w", err)
	}

	if err := s.commitTx(txController); err != nil {
		return nil, fmt.Errorf("end session: failed to commit transaction: %w", err)
	}

	s.timers.Cancel(sessionID)
	s.emitStateChanged(ctx, session, from, session.Status)
	s.emitBillingComputed(ctx, session, result)
	return session, nil
}

// markEndedPaymentPending records a legitimate end whose settlement failed.
// Billing figures are stored for offline reconciliation; no ledger entry is
// written here.
func (s *sessionService) markEndedPaymentPending(ctx context.Context, sessionID string, reason domain.EndReason) (*domain.Session, error) {
	txController, err := s.beginTx(ctx, s.dbBeginner)
	if err != nil {
		return nil, fmt.Errorf("mark payment pending: failed to begin transaction: %w", err)
	}
	defer s.rollbackTx(txController)

	q, ok := txController.(repository.DBExecutor)
	if !ok {
		return nil, fmt.Errorf("mark payment pending: transaction controller does not implement DBExecutor")
	}

	session, err := s.lockSession(ctx, q, sessionID)
	if err != nil {
		return nil, fmt.Errorf("mark payment pending: %w", err)
	}
	if session.Status.IsTerminal() {
		return session, nil
	}

	now := time.Now().UTC()
	elapsed := session.ElapsedSeconds(now)
	if elapsed > session.MaxDurationSeconds {
		elapsed = session.MaxDurationSeconds
	}
	if session.Status == domain.SessionStatusActive && elapsed <= 0 {
		elapsed = 1
	}
	result := billing.Compute(elapsed, session.RatePerMinute, s.engineCfg.CommissionPercent)

	from := session.Status
	session.Status = domain.SessionStatusEnded
	session.EndedAt = &now
	session.EndReason = &reason
	session.BilledMinutes = result.BilledMinutes
	session.ChargedAmount = result.ChargedAmount
	session.PlatformCommission = result.PlatformCommission
	session.ProviderEarning = result.ProviderEarning
	session.PaymentPending = true
	if err := s.sessionRepo.UpdateSession(ctx, q, session); err != nil {
		return nil, fmt.Errorf("mark payment pending: %w", err)
	}

	if err := s.commitTx(txController); err != nil {
		return nil, fmt.Errorf("mark payment pending: failed to commit transaction: %w", err)
	}

	s.emitStateChanged(ctx, session, from, session.Status)
	return session, nil
}

// terminateUnstarted moves a not-yet-active session to a terminal state and
// releases its hold in full.
func (s *sessionService) terminateUnstarted(ctx context.Context, sessionID string, to domain.SessionStatus, reason domain.EndReason, allowedFrom []domain.SessionStatus) (*domain.Session, error) {
	txController, err := s.beginTx(ctx, s.dbBeginner)
	if err != nil {
		return nil, fmt.Errorf("terminate session: failed to begin transaction: %w", err)
	}
	defer s.rollbackTx(txController)

	q, ok := txController.(repository.DBExecutor)
	if !ok {
		return nil, fmt.Errorf("terminate session: transaction controller does not implement DBExecutor")
	}

	session, err := s.lockSession(ctx, q, sessionID)
	if err != nil {
		return nil, fmt.Errorf("terminate session: %w", err)
	}
	if session.Status.IsTerminal() {
		s.timers.Cancel(sessionID)
		return session, nil
	}

	allowed := false
	for _, from := range allowedFrom {
		if session.Status == from {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, fmt.Errorf("terminate session %s in status %s: %w", sessionID, session.Status, util.ErrInvalidStateTransition)
	}

	return s.terminateUnstartedLocked(ctx, q, txController, session, to, reason)
}

// terminateUnstartedLocked finishes a termination once the session row is
// locked and the guard has passed.
func (s *sessionService) terminateUnstartedLocked(ctx context.Context, q repository.DBExecutor, txController db.TxController, session *domain.Session, to domain.SessionStatus, reason domain.EndReason) (*domain.Session, error) {
	if session.HoldEntryID != nil {
		if _, err := s.wallet.refundHoldTx(ctx, q, *session.HoldEntryID, string(reason)); err != nil {
			return nil, fmt.Errorf("terminate session: %w", err)
		}
	}

	now := time.Now().UTC()
	from := session.Status
	session.Status = to
	session.EndedAt = &now
	session.EndReason = &reason
	if err := s.sessionRepo.UpdateSession(ctx, q, session); err != nil {
		return nil, fmt.Errorf("terminate session: %w", err)
	}

	if err := s.commitTx(txController); err != nil {
		return nil, fmt.Errorf("terminate session: failed to commit transaction: %w", err)
	}

	s.timers.Cancel(session.SessionID)
	s.emitStateChanged(ctx, session, from, session.Status)
	return session, nil
}

// endUnfundedLocked handles the join-time discovery that the payer can no
// longer fund a single minute: the session ends unbilled with its hold
// released.
func (s *sessionService) endUnfundedLocked(ctx context.Context, q repository.DBExecutor, txController db.TxController, session *domain.Session) (*domain.Session, error) {
	return s.terminateUnstartedLocked(ctx, q, txController, session, domain.SessionStatusEnded, domain.EndReasonInsufficientBalance)
}

// accumulateThread upserts the conversation thread for the session's pair
// and adds this session's settled totals.
func (s *sessionService) accumulateThread(ctx context.Context, q repository.DBExecutor, session *domain.Session, spent decimal.Decimal, durationSeconds int64) (*int64, error) {
	thread, err := s.threadRepo.GetThreadByPair(ctx, q, session.PayerID, session.ProviderID)
	if err != nil {
		if !util.IsError(err, util.ErrNotFound) {
			return nil, err
		}
		thread = domain.NewConversationThread(session.PayerID, session.ProviderID)
		if err := s.threadRepo.CreateThread(ctx, q, thread); err != nil {
			return nil, err
		}
	}
	if err := s.threadRepo.AccumulateThread(ctx, q, thread.ID, spent, durationSeconds); err != nil {
		return nil, err
	}
	return &thread.ID, nil
}

func (s *sessionService) lockSession(ctx context.Context, q repository.DBExecutor, sessionID string) (*domain.Session, error) {
	session, err := s.sessionRepo.GetSessionByIDForUpdate(ctx, q, sessionID)
	if err != nil {
		if util.IsError(err, util.ErrNotFound) {
			return nil, util.ErrSessionNotFound
		}
		return nil, err
	}
	return session, nil
}

func (s *sessionService) emitStateChanged(ctx context.Context, session *domain.Session, from, to domain.SessionStatus) {
	event := notify.NewEvent(notify.EventSessionStateChanged, session.SessionID)
	event.StateChanged = &notify.StateChangedPayload{From: from, To: to, EndReason: session.EndReason}
	s.notifier.Notify(ctx, event)
}

func (s *sessionService) emitBillingComputed(ctx context.Context, session *domain.Session, result billing.Result) {
	event := notify.NewEvent(notify.EventBillingComputed, session.SessionID)
	event.BillingComputed = &notify.BillingComputedPayload{
		BilledMinutes:      result.BilledMinutes,
		ChargedAmount:      result.ChargedAmount,
		PlatformCommission: result.PlatformCommission,
		ProviderEarning:    result.ProviderEarning,
	}
	s.notifier.Notify(ctx, event)
}

// shouldMarkPaymentPending reports whether an end-session failure is a
// settlement failure (the session must still end) rather than a guard or
// lookup failure (nothing happened).
func shouldMarkPaymentPending(err error) bool {
	if err == nil {
		return false
	}
	if util.IsError(err, util.ErrInvalidStateTransition) ||
		util.IsError(err, util.ErrSessionNotFound) ||
		util.IsError(err, util.ErrNotFound) {
		return false
	}
	return true
}

// remaining clamps a deadline derived from a stored timestamp to a
// non-negative duration so expired deadlines fire immediately.
func remaining(since time.Time, d time.Duration, now time.Time) time.Duration {
	left := since.Add(d).Sub(now)
	if left < 0 {
		return 0
	}
	return left
}
