// internal/api/handler/wallet.go
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"consult-core/internal/api/types"
	"consult-core/internal/service"
	"consult-core/internal/util"
)

// WalletHandler handles HTTP requests related to wallet operations.
type WalletHandler struct {
	engine   service.WalletEngine
	validate *validator.Validate
	logger   *slog.Logger
}

// NewWalletHandler creates a new WalletHandler.
func NewWalletHandler(engine service.WalletEngine, validate *validator.Validate, logger *slog.Logger) *WalletHandler {
	return &WalletHandler{
		engine:   engine,
		validate: validate,
		logger:   logger,
	}
}

func userIDParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
}

// CreateAccount opens a wallet account for a user.
// POST /wallets/{userID}
func (h *WalletHandler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDParam(r)
	if err != nil {
		respondWithError(w, h.logger, util.ErrInvalidInput)
		return
	}

	account, err := h.engine.CreateAccount(r.Context(), userID)
	if err != nil {
		respondWithError(w, h.logger, err)
		return
	}
	respondWithJSON(w, h.logger, http.StatusCreated, account)
}

// GetBalance returns the wallet balances of a user.
// GET /wallets/{userID}/balance
func (h *WalletHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDParam(r)
	if err != nil {
		respondWithError(w, h.logger, util.ErrInvalidInput)
		return
	}

	account, err := h.engine.GetBalance(r.Context(), userID)
	if err != nil {
		respondWithError(w, h.logger, err)
		return
	}

	respondWithJSON(w, h.logger, http.StatusOK, map[string]interface{}{
		"user_id":       account.UserID,
		"cash_balance":  account.CashBalance,
		"bonus_balance": account.BonusBalance,
		"total_balance": account.TotalBalance(),
	})
}

// GetAvailableBalance returns total balance minus pending holds.
// GET /wallets/{userID}/available
func (h *WalletHandler) GetAvailableBalance(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDParam(r)
	if err != nil {
		respondWithError(w, h.logger, util.ErrInvalidInput)
		return
	}

	available, err := h.engine.GetAvailableBalance(r.Context(), userID)
	if err != nil {
		respondWithError(w, h.logger, err)
		return
	}

	respondWithJSON(w, h.logger, http.StatusOK, map[string]interface{}{
		"user_id":           userID,
		"available_balance": available,
	})
}

// RechargeRequest represents the request body for a confirmed recharge.
type RechargeRequest struct {
	Amount  decimal.Decimal `json:"amount" validate:"required"`
	AsBonus bool            `json:"as_bonus"` // Promotions and external refunds credit bonus
	Reason  string          `json:"reason" validate:"required"`
}

// Recharge credits a wallet after an external payment is confirmed.
// POST /wallets/{userID}/recharge
func (h *WalletHandler) Recharge(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDParam(r)
	if err != nil {
		respondWithError(w, h.logger, util.ErrInvalidInput)
		return
	}

	var req RechargeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, h.logger, util.ErrInvalidInput)
		return
	}
	if err := h.validate.Struct(&req); err != nil || req.Amount.LessThanOrEqual(decimal.Zero) {
		respondWithError(w, h.logger, util.ErrInvalidInput)
		return
	}

	result, err := h.engine.Credit(r.Context(), userID, req.Amount, req.AsBonus, req.Reason)
	if err != nil {
		respondWithError(w, h.logger, err)
		return
	}

	respondWithJSON(w, h.logger, http.StatusOK, map[string]interface{}{
		"message":  "Credit successful",
		"entry_id": result.Entry.ID,
		"amount":   result.Entry.Amount,
	})
}

// DebitRequest represents the request body for a direct debit.
type DebitRequest struct {
	Amount decimal.Decimal `json:"amount" validate:"required"`
	Reason string          `json:"reason" validate:"required"`
}

// Debit deducts directly from a wallet (e.g. gifts), bonus first.
// POST /wallets/{userID}/debit
func (h *WalletHandler) Debit(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDParam(r)
	if err != nil {
		respondWithError(w, h.logger, util.ErrInvalidInput)
		return
	}

	var req DebitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, h.logger, util.ErrInvalidInput)
		return
	}
	if err := h.validate.Struct(&req); err != nil || req.Amount.LessThanOrEqual(decimal.Zero) {
		respondWithError(w, h.logger, util.ErrInvalidInput)
		return
	}

	result, err := h.engine.Debit(r.Context(), userID, req.Amount, req.Reason)
	if err != nil {
		respondWithError(w, h.logger, err)
		return
	}

	respondWithJSON(w, h.logger, http.StatusOK, map[string]interface{}{
		"message":       "Debit successful",
		"entry_id":      result.Entry.ID,
		"cash_portion":  result.Entry.CashPortion,
		"bonus_portion": result.Entry.BonusPortion,
	})
}

// GetLedgerHistory returns a paginated ledger history for a user.
// GET /wallets/{userID}/ledger
func (h *WalletHandler) GetLedgerHistory(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDParam(r)
	if err != nil {
		respondWithError(w, h.logger, util.ErrInvalidInput)
		return
	}

	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		limit = 10 // Default limit
	}
	offset, err := strconv.Atoi(r.URL.Query().Get("offset"))
	if err != nil || offset < 0 {
		offset = 0 // Default offset
	}

	entries, total, err := h.engine.GetLedgerHistory(r.Context(), userID, limit, offset)
	if err != nil {
		respondWithError(w, h.logger, err)
		return
	}

	respondWithJSON(w, h.logger, http.StatusOK, types.PagedResponse{
		Data:   entries,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}
