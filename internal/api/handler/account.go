package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zr01/ledgee/internal/repository"
	"github.com/zr01/ledgee/internal/service"
)

// BalanceReader is the account lookup the HTTP layer needs.
type BalanceReader interface {
	GetBalances(ctx context.Context, publicID string) (*service.BalanceSummary, error)
}

type AccountHandler struct {
	svc BalanceReader
}

func NewAccountHandler(svc BalanceReader) *AccountHandler {
	return &AccountHandler{svc: svc}
}

type balanceBucket struct {
	Available int64 `json:"available"`
	Pending   int64 `json:"pending"`
}

type balanceResponse struct {
	PublicAccountID string        `json:"publicAccountId"`
	AccountID       string        `json:"accountId"`
	ProductCode     string        `json:"productCode"`
	Currency        string        `json:"currency"`
	Actual          balanceBucket `json:"actual"`
	Projected       balanceBucket `json:"projected"`
}

// GetBalance returns both balance rows for one account.
func (h *AccountHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	publicID := chi.URLParam(r, "publicAccountId")

	summary, err := h.svc.GetBalances(r.Context(), publicID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			RespondError(w, r, http.StatusNotFound, "account/not-found", "Account not found")
			return
		}
		zap.L().Error("get balance failed", zap.Error(err), zap.String("publicAccountId", publicID))
		RespondError(w, r, http.StatusInternalServerError, "account/balance-read-failed", "Failed to get balance")
		return
	}

	RespondJSON(w, http.StatusOK, balanceResponse{
		PublicAccountID: summary.Account.PublicID,
		AccountID:       summary.Account.AccountID,
		ProductCode:     summary.Account.ProductCode,
		Currency:        summary.Account.Currency,
		Actual: balanceBucket{
			Available: summary.Actual.AvailableBalance,
			Pending:   summary.Actual.PendingBalance,
		},
		Projected: balanceBucket{
			Available: summary.Projected.AvailableBalance,
			Pending:   summary.Projected.PendingBalance,
		},
	})
}
