// internal/api/handler/session.go
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"consult-core/internal/domain"
	"consult-core/internal/service"
	"consult-core/internal/util"
)

// SessionHandler handles HTTP requests for the session lifecycle.
type SessionHandler struct {
	service  service.SessionService
	validate *validator.Validate
	logger   *slog.Logger
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(svc service.SessionService, validate *validator.Validate, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{
		service:  svc,
		validate: validate,
		logger:   logger,
	}
}

// InitiateSessionRequest represents the request body for session initiation.
type InitiateSessionRequest struct {
	PayerID       int64           `json:"payer_id" validate:"required,gt=0"`
	ProviderID    int64           `json:"provider_id" validate:"required,gt=0"`
	Kind          string          `json:"kind" validate:"required,oneof=CALL CHAT"`
	Medium        string          `json:"medium" validate:"omitempty,oneof=AUDIO VIDEO NONE"`
	RatePerMinute decimal.Decimal `json:"rate_per_minute" validate:"required"`
}

// Initiate handles session initiation.
// POST /sessions
func (h *SessionHandler) Initiate(w http.ResponseWriter, r *http.Request) {
	var req InitiateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, h.logger, util.ErrInvalidInput)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		respondWithError(w, h.logger, util.ErrInvalidInput)
		return
	}

	medium := domain.CallMedium(req.Medium)
	if req.Kind == string(domain.SessionKindChat) || req.Medium == "" {
		medium = domain.CallMediumNone
	}

	session, err := h.service.InitiateSession(r.Context(), req.PayerID, req.ProviderID,
		domain.SessionKind(req.Kind), medium, req.RatePerMinute)
	if err != nil {
		respondWithError(w, h.logger, err)
		return
	}

	respondWithJSON(w, h.logger, http.StatusCreated, session)
}

// Accept handles provider acceptance.
// POST /sessions/{sessionID}/accept
func (h *SessionHandler) Accept(w http.ResponseWriter, r *http.Request) {
	session, err := h.service.AcceptSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		respondWithError(w, h.logger, err)
		return
	}
	respondWithJSON(w, h.logger, http.StatusOK, session)
}

// Reject handles provider rejection.
// POST /sessions/{sessionID}/reject
func (h *SessionHandler) Reject(w http.ResponseWriter, r *http.Request) {
	session, err := h.service.RejectSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		respondWithError(w, h.logger, err)
		return
	}
	respondWithJSON(w, h.logger, http.StatusOK, session)
}

// Cancel handles payer cancellation before the session becomes active.
// POST /sessions/{sessionID}/cancel
func (h *SessionHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	session, err := h.service.CancelSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		respondWithError(w, h.logger, err)
		return
	}
	respondWithJSON(w, h.logger, http.StatusOK, session)
}

// Join marks both parties present, activating the session.
// POST /sessions/{sessionID}/join
func (h *SessionHandler) Join(w http.ResponseWriter, r *http.Request) {
	session, err := h.service.MarkBothPartiesPresent(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		respondWithError(w, h.logger, err)
		return
	}
	respondWithJSON(w, h.logger, http.StatusOK, session)
}

// EndSessionRequest represents the request body for ending a session.
type EndSessionRequest struct {
	EndedBy string `json:"ended_by" validate:"required,oneof=PAYER PROVIDER"`
}

// End handles session termination by either party.
// POST /sessions/{sessionID}/end
func (h *SessionHandler) End(w http.ResponseWriter, r *http.Request) {
	var req EndSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, h.logger, util.ErrInvalidInput)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		respondWithError(w, h.logger, util.ErrInvalidInput)
		return
	}

	reason := domain.EndReasonUserEnded
	if req.EndedBy == "PROVIDER" {
		reason = domain.EndReasonProviderEnded
	}

	session, err := h.service.EndSession(r.Context(), chi.URLParam(r, "sessionID"), reason)
	if err != nil {
		if util.IsError(err, util.ErrSettlementFailed) && session != nil {
			// The session is ended; settlement awaits reconciliation.
			respondWithJSON(w, h.logger, http.StatusAccepted, session)
			return
		}
		respondWithError(w, h.logger, err)
		return
	}
	respondWithJSON(w, h.logger, http.StatusOK, session)
}

// Get retrieves a session.
// GET /sessions/{sessionID}
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	session, err := h.service.GetSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		respondWithError(w, h.logger, err)
		return
	}
	respondWithJSON(w, h.logger, http.StatusOK, session)
}

// AttachRecordingRequest represents the request body for attaching a recording.
type AttachRecordingRequest struct {
	RecordingRef string `json:"recording_ref" validate:"required"`
}

// AttachRecording stores a recording reference on an ended session.
// POST /sessions/{sessionID}/recording
func (h *SessionHandler) AttachRecording(w http.ResponseWriter, r *http.Request) {
	var req AttachRecordingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, h.logger, util.ErrInvalidInput)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		respondWithError(w, h.logger, util.ErrInvalidInput)
		return
	}

	session, err := h.service.AttachRecording(r.Context(), chi.URLParam(r, "sessionID"), req.RecordingRef)
	if err != nil {
		respondWithError(w, h.logger, err)
		return
	}
	respondWithJSON(w, h.logger, http.StatusOK, session)
}
