// internal/domain/session.go
package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SessionKind defines the kind of a consultation session.
type SessionKind string

const (
	SessionKindCall SessionKind = "CALL"
	SessionKindChat SessionKind = "CHAT"
)

// CallMedium defines the audio/video sub-type of a call session.
type CallMedium string

const (
	CallMediumAudio CallMedium = "AUDIO"
	CallMediumVideo CallMedium = "VIDEO"
	CallMediumNone  CallMedium = "NONE" // Chat sessions carry no call medium
)

// SessionStatus defines the lifecycle state of a session.
// Terminal states (ENDED, CANCELLED, REJECTED) are absorbing.
type SessionStatus string

const (
	SessionStatusRequested   SessionStatus = "REQUESTED"    // Waiting for provider acceptance
	SessionStatusWaitingJoin SessionStatus = "WAITING_JOIN" // Accepted, waiting for both parties
	SessionStatusActive      SessionStatus = "ACTIVE"
	SessionStatusEnded       SessionStatus = "ENDED"
	SessionStatusCancelled   SessionStatus = "CANCELLED"
	SessionStatusRejected    SessionStatus = "REJECTED"
)

// IsTerminal reports whether s is an absorbing state.
func (s SessionStatus) IsTerminal() bool {
	return s == SessionStatusEnded || s == SessionStatusCancelled || s == SessionStatusRejected
}

// EndReason defines why a session reached a terminal state.
type EndReason string

const (
	EndReasonUserEnded           EndReason = "USER_ENDED"
	EndReasonProviderEnded       EndReason = "PROVIDER_ENDED"
	EndReasonTimeout             EndReason = "TIMEOUT" // Auto-end at the funded duration cap
	EndReasonRequestTimeout      EndReason = "REQUEST_TIMEOUT"
	EndReasonJoinTimeout         EndReason = "JOIN_TIMEOUT"
	EndReasonRejected            EndReason = "REJECTED"
	EndReasonInsufficientBalance EndReason = "INSUFFICIENT_BALANCE"
)

// Session represents one consultation attempt (call or chat).
// Terminal sessions are retained for history and audit, never deleted.
type Session struct {
	SessionID          string          `db:"session_id" json:"session_id"` // UUID, primary key
	PayerID            int64           `db:"payer_id" json:"payer_id"`
	ProviderID         int64           `db:"provider_id" json:"provider_id"`
	Kind               SessionKind     `db:"kind" json:"kind"`
	Medium             CallMedium      `db:"medium" json:"medium"`
	RatePerMinute      decimal.Decimal `db:"rate_per_minute" json:"rate_per_minute"` // NUMERIC(20, 4) in DB
	Status             SessionStatus   `db:"status" json:"status"`
	HoldEntryID        *int64          `db:"hold_entry_id" json:"hold_entry_id"`               // Ledger hold backing this session
	MaxDurationSeconds int64           `db:"max_duration_seconds" json:"max_duration_seconds"` // Funded cap, recomputed at join
	ThreadID           *int64          `db:"thread_id" json:"thread_id"`                       // Optional conversation thread
	StartedAt          *time.Time      `db:"started_at" json:"started_at"`
	EndedAt            *time.Time      `db:"ended_at" json:"ended_at"`
	BilledMinutes      int64           `db:"billed_minutes" json:"billed_minutes"`
	ChargedAmount      decimal.Decimal `db:"charged_amount" json:"charged_amount"`
	PlatformCommission decimal.Decimal `db:"platform_commission" json:"platform_commission"`
	ProviderEarning    decimal.Decimal `db:"provider_earning" json:"provider_earning"`
	EndReason          *EndReason      `db:"end_reason" json:"end_reason"`
	PaymentPending     bool            `db:"payment_pending" json:"payment_pending"` // Set when settlement failed after a legitimate end
	RecordingRef       *string         `db:"recording_ref" json:"recording_ref"`     // Additive metadata, no bearing on billing
	CreatedAt          time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time       `db:"updated_at" json:"updated_at"`
}

// NewSession creates a new Session in REQUESTED state.
// All money fields are explicitly zeroed at construction time.
func NewSession(payerID, providerID int64, kind SessionKind, medium CallMedium, ratePerMinute decimal.Decimal) *Session {
	now := time.Now().UTC()
	return &Session{
		SessionID:          uuid.NewString(),
		PayerID:            payerID,
		ProviderID:         providerID,
		Kind:               kind,
		Medium:             medium,
		RatePerMinute:      ratePerMinute,
		Status:             SessionStatusRequested,
		MaxDurationSeconds: 0,
		BilledMinutes:      0,
		ChargedAmount:      decimal.Zero,
		PlatformCommission: decimal.Zero,
		ProviderEarning:    decimal.Zero,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

// ElapsedSeconds returns the elapsed duration of the session at a given
// instant, or 0 if the session never became active.
func (s *Session) ElapsedSeconds(at time.Time) int64 {
	if s.StartedAt == nil {
		return 0
	}
	elapsed := int64(at.Sub(*s.StartedAt).Seconds())
	if elapsed < 0 {
		return 0
	}
	return elapsed
}
