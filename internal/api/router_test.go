// internal/api/router_test.go
package api_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"consult-core/internal/api"
	"consult-core/internal/api/handler"
	"consult-core/internal/domain"
	"consult-core/internal/service"
	"consult-core/internal/util"
)

// MockSessionService is a mock implementation of service.SessionService.
type MockSessionService struct {
	mock.Mock
}

func (m *MockSessionService) InitiateSession(ctx context.Context, payerID, providerID int64, kind domain.SessionKind, medium domain.CallMedium, ratePerMinute decimal.Decimal) (*domain.Session, error) {
	args := m.Called(ctx, payerID, providerID, kind, medium, ratePerMinute)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Session), args.Error(1)
}

func (m *MockSessionService) AcceptSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Session), args.Error(1)
}

func (m *MockSessionService) RejectSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Session), args.Error(1)
}

func (m *MockSessionService) CancelSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Session), args.Error(1)
}

func (m *MockSessionService) MarkBothPartiesPresent(ctx context.Context, sessionID string) (*domain.Session, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Session), args.Error(1)
}

func (m *MockSessionService) EndSession(ctx context.Context, sessionID string, reason domain.EndReason) (*domain.Session, error) {
	args := m.Called(ctx, sessionID, reason)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Session), args.Error(1)
}

func (m *MockSessionService) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Session), args.Error(1)
}

func (m *MockSessionService) AttachRecording(ctx context.Context, sessionID, recordingRef string) (*domain.Session, error) {
	args := m.Called(ctx, sessionID, recordingRef)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Session), args.Error(1)
}

func (m *MockSessionService) RecoverTimers(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockWalletEngine is a mock implementation of service.WalletEngine.
type MockWalletEngine struct {
	mock.Mock
}

func (m *MockWalletEngine) CreateAccount(ctx context.Context, userID int64) (*domain.WalletAccount, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.WalletAccount), args.Error(1)
}

func (m *MockWalletEngine) GetBalance(ctx context.Context, userID int64) (*domain.WalletAccount, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.WalletAccount), args.Error(1)
}

func (m *MockWalletEngine) GetAvailableBalance(ctx context.Context, userID int64) (decimal.Decimal, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *MockWalletEngine) Hold(ctx context.Context, userID int64, amount decimal.Decimal, sessionID string) (*service.HoldResult, error) {
	args := m.Called(ctx, userID, amount, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.HoldResult), args.Error(1)
}

func (m *MockWalletEngine) ChargeFromHold(ctx context.Context, holdEntryID int64, chargeAmount decimal.Decimal) (*service.ChargeResult, error) {
	args := m.Called(ctx, holdEntryID, chargeAmount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ChargeResult), args.Error(1)
}

func (m *MockWalletEngine) RefundHold(ctx context.Context, holdEntryID int64, reason string) (*service.RefundResult, error) {
	args := m.Called(ctx, holdEntryID, reason)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.RefundResult), args.Error(1)
}

func (m *MockWalletEngine) Debit(ctx context.Context, userID int64, amount decimal.Decimal, reason string) (*service.DebitResult, error) {
	args := m.Called(ctx, userID, amount, reason)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.DebitResult), args.Error(1)
}

func (m *MockWalletEngine) Credit(ctx context.Context, userID int64, amount decimal.Decimal, asBonus bool, reason string) (*service.CreditResult, error) {
	args := m.Called(ctx, userID, amount, asBonus, reason)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.CreditResult), args.Error(1)
}

func (m *MockWalletEngine) GetLedgerHistory(ctx context.Context, userID int64, limit, offset int) ([]domain.LedgerEntry, int64, error) {
	args := m.Called(ctx, userID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]domain.LedgerEntry), args.Get(1).(int64), args.Error(2)
}

func newTestServer(t *testing.T) (*httptest.Server, *MockSessionService, *MockWalletEngine) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sessionSvc := new(MockSessionService)
	walletEngine := new(MockWalletEngine)
	validate := validator.New()

	router := api.NewRouter(
		handler.NewSessionHandler(sessionSvc, validate, logger),
		handler.NewWalletHandler(walletEngine, validate, logger),
		logger,
	)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server, sessionSvc, walletEngine
}

func makeRequest(t *testing.T, server *httptest.Server, method, path, body string) (*http.Response, string) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, server.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	respBody, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	return resp, string(respBody)
}

func TestHealthEndpoint(t *testing.T) {
	server, _, _ := newTestServer(t)
	resp, body := makeRequest(t, server, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", body)
}

func TestInitiateSessionEndpoint(t *testing.T) {
	t.Run("Created", func(t *testing.T) {
		server, sessionSvc, _ := newTestServer(t)
		session := domain.NewSession(1, 2, domain.SessionKindCall, domain.CallMediumAudio, decimal.NewFromInt(10))
		sessionSvc.On("InitiateSession", mock.Anything, int64(1), int64(2),
			domain.SessionKindCall, domain.CallMediumAudio, mock.Anything).Return(session, nil).Once()

		resp, body := makeRequest(t, server, http.MethodPost, "/sessions",
			`{"payer_id":1,"provider_id":2,"kind":"CALL","medium":"AUDIO","rate_per_minute":"10"}`)

		assert.Equal(t, http.StatusCreated, resp.StatusCode)
		var got domain.Session
		require.NoError(t, json.Unmarshal([]byte(body), &got))
		assert.Equal(t, session.SessionID, got.SessionID)
		assert.Equal(t, domain.SessionStatusRequested, got.Status)
		sessionSvc.AssertExpectations(t)
	})

	t.Run("ChatDropsMedium", func(t *testing.T) {
		server, sessionSvc, _ := newTestServer(t)
		session := domain.NewSession(1, 2, domain.SessionKindChat, domain.CallMediumNone, decimal.NewFromInt(5))
		sessionSvc.On("InitiateSession", mock.Anything, int64(1), int64(2),
			domain.SessionKindChat, domain.CallMediumNone, mock.Anything).Return(session, nil).Once()

		resp, _ := makeRequest(t, server, http.MethodPost, "/sessions",
			`{"payer_id":1,"provider_id":2,"kind":"CHAT","rate_per_minute":"5"}`)

		assert.Equal(t, http.StatusCreated, resp.StatusCode)
		sessionSvc.AssertExpectations(t)
	})

	t.Run("InvalidBody", func(t *testing.T) {
		server, sessionSvc, _ := newTestServer(t)

		resp, _ := makeRequest(t, server, http.MethodPost, "/sessions",
			`{"payer_id":1,"kind":"SMOKE_SIGNAL"}`)

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		sessionSvc.AssertNotCalled(t, "InitiateSession",
			mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("InsufficientFunds", func(t *testing.T) {
		server, sessionSvc, _ := newTestServer(t)
		sessionSvc.On("InitiateSession", mock.Anything, int64(1), int64(2),
			domain.SessionKindCall, domain.CallMediumAudio, mock.Anything).
			Return(nil, util.ErrInsufficientFunds).Once()

		resp, _ := makeRequest(t, server, http.MethodPost, "/sessions",
			`{"payer_id":1,"provider_id":2,"kind":"CALL","medium":"AUDIO","rate_per_minute":"10"}`)

		assert.Equal(t, http.StatusPaymentRequired, resp.StatusCode)
	})
}

func TestSessionTransitionEndpoints(t *testing.T) {
	t.Run("AcceptConflict", func(t *testing.T) {
		server, sessionSvc, _ := newTestServer(t)
		sessionSvc.On("AcceptSession", mock.Anything, "s1").
			Return(nil, fmt.Errorf("accept: %w", util.ErrInvalidStateTransition)).Once()

		resp, _ := makeRequest(t, server, http.MethodPost, "/sessions/s1/accept", "")
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})

	t.Run("GetNotFound", func(t *testing.T) {
		server, sessionSvc, _ := newTestServer(t)
		sessionSvc.On("GetSession", mock.Anything, "missing").
			Return(nil, util.ErrSessionNotFound).Once()

		resp, _ := makeRequest(t, server, http.MethodGet, "/sessions/missing", "")
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("EndMapsEndedBy", func(t *testing.T) {
		server, sessionSvc, _ := newTestServer(t)
		session := domain.NewSession(1, 2, domain.SessionKindCall, domain.CallMediumAudio, decimal.NewFromInt(10))
		session.Status = domain.SessionStatusEnded
		sessionSvc.On("EndSession", mock.Anything, session.SessionID, domain.EndReasonProviderEnded).
			Return(session, nil).Once()

		resp, _ := makeRequest(t, server, http.MethodPost, "/sessions/"+session.SessionID+"/end",
			`{"ended_by":"PROVIDER"}`)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		sessionSvc.AssertExpectations(t)
	})

	t.Run("EndWithSettlementFailureReturnsAccepted", func(t *testing.T) {
		server, sessionSvc, _ := newTestServer(t)
		session := domain.NewSession(1, 2, domain.SessionKindCall, domain.CallMediumAudio, decimal.NewFromInt(10))
		session.Status = domain.SessionStatusEnded
		session.PaymentPending = true
		sessionSvc.On("EndSession", mock.Anything, session.SessionID, domain.EndReasonUserEnded).
			Return(session, fmt.Errorf("end session: %w", util.ErrSettlementFailed)).Once()

		resp, body := makeRequest(t, server, http.MethodPost, "/sessions/"+session.SessionID+"/end",
			`{"ended_by":"PAYER"}`)

		assert.Equal(t, http.StatusAccepted, resp.StatusCode)
		var got domain.Session
		require.NoError(t, json.Unmarshal([]byte(body), &got))
		assert.True(t, got.PaymentPending)
	})
}

func TestWalletEndpoints(t *testing.T) {
	t.Run("GetBalance", func(t *testing.T) {
		server, _, walletEngine := newTestServer(t)
		account := domain.NewWalletAccount(7)
		account.CashBalance = decimal.NewFromInt(80)
		account.BonusBalance = decimal.NewFromInt(20)
		walletEngine.On("GetBalance", mock.Anything, int64(7)).Return(account, nil).Once()

		resp, body := makeRequest(t, server, http.MethodGet, "/wallets/7/balance", "")

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		var got map[string]json.RawMessage
		require.NoError(t, json.Unmarshal([]byte(body), &got))
		assert.JSONEq(t, `"100"`, string(got["total_balance"]))
	})

	t.Run("BalanceNotFound", func(t *testing.T) {
		server, _, walletEngine := newTestServer(t)
		walletEngine.On("GetBalance", mock.Anything, int64(9)).
			Return(nil, util.ErrAccountNotFound).Once()

		resp, _ := makeRequest(t, server, http.MethodGet, "/wallets/9/balance", "")
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("RechargeRejectsNonPositiveAmount", func(t *testing.T) {
		server, _, walletEngine := newTestServer(t)

		resp, _ := makeRequest(t, server, http.MethodPost, "/wallets/7/recharge",
			`{"amount":"-5","reason":"recharge"}`)

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		walletEngine.AssertNotCalled(t, "Credit",
			mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("DebitInsufficientFunds", func(t *testing.T) {
		server, _, walletEngine := newTestServer(t)
		walletEngine.On("Debit", mock.Anything, int64(7), mock.Anything, "gift").
			Return(nil, util.ErrInsufficientFunds).Once()

		resp, _ := makeRequest(t, server, http.MethodPost, "/wallets/7/debit",
			`{"amount":"50","reason":"gift"}`)

		assert.Equal(t, http.StatusPaymentRequired, resp.StatusCode)
	})

	t.Run("LedgerHistoryPaging", func(t *testing.T) {
		server, _, walletEngine := newTestServer(t)
		entries := []domain.LedgerEntry{
			*domain.NewLedgerEntry(7, domain.LedgerEntryKindCredit, decimal.NewFromInt(10), domain.LedgerEntryStatusCompleted),
		}
		walletEngine.On("GetLedgerHistory", mock.Anything, int64(7), 5, 10).
			Return(entries, int64(11), nil).Once()

		resp, body := makeRequest(t, server, http.MethodGet, "/wallets/7/ledger?limit=5&offset=10", "")

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, body, `"total":11`)
		walletEngine.AssertExpectations(t)
	})

	t.Run("InvalidUserID", func(t *testing.T) {
		server, _, _ := newTestServer(t)
		resp, _ := makeRequest(t, server, http.MethodGet, "/wallets/abc/balance", "")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}
