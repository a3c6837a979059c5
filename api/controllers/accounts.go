package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/payrecon-backend/api/responses"
	"github.com/angelmondragon/payrecon-backend/internal/ledger"
	pkgerrors "github.com/angelmondragon/payrecon-backend/pkg/errors"
	"github.com/angelmondragon/payrecon-backend/pkg/logger"
)

type balanceResponse struct {
	AccountID string `json:"accountId"`
	Balance   string `json:"balance"`
	Currency  string `json:"currency"`
}

// AccountBalance returns the running balance of an account's ledger.
// Accounts without entries report a zero balance rather than a 404.
func AccountBalance(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger service unavailable"))
			return
		}

		accountID := strings.TrimSpace(chi.URLParam(r, "accountID"))
		if accountID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "account id is required"))
			return
		}

		balance, err := svc.CurrentBalance(r.Context(), accountID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, balanceResponse{
			AccountID: accountID,
			Balance:   balance.StringFixed(2),
			Currency:  "USD",
		})
	}
}

// AccountLedger returns the full entry history for an account in chain
// order, oldest first.
func AccountLedger(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger service unavailable"))
			return
		}

		accountID := strings.TrimSpace(chi.URLParam(r, "accountID"))
		if accountID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "account id is required"))
			return
		}

		entries, err := svc.ListByAccount(r.Context(), accountID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"accountId": accountID, "entries": entries})
	}
}
