package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/payrecon-backend/api/responses"
	"github.com/angelmondragon/payrecon-backend/api/validators"
	"github.com/angelmondragon/payrecon-backend/internal/payments"
	"github.com/angelmondragon/payrecon-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/payrecon-backend/pkg/errors"
	"github.com/angelmondragon/payrecon-backend/pkg/logger"
)

const idempotencyKeyHeader = "Idempotency-Key"

type createPaymentRequest struct {
	AccountID   string          `json:"accountId" validate:"required"`
	Amount      decimal.Decimal `json:"amount" validate:"required"`
	Currency    string          `json:"currency" validate:"omitempty,len=3"`
	Description *string         `json:"description"`
}

// CreatePayment accepts a payment for reconciliation. Replays of the same
// Idempotency-Key return the stored payment with a 200.
func CreatePayment(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}

		key, err := validators.RequireHeader(r, idempotencyKeyHeader)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req createPaymentRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Create(r.Context(), payments.CreatePaymentInput{
			IdempotencyKey: key,
			AccountID:      req.AccountID,
			Amount:         req.Amount,
			Currency:       req.Currency,
			Description:    req.Description,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		status := http.StatusOK
		if result.Created {
			status = http.StatusCreated
		}
		responses.WriteSuccessStatus(w, status, result.Payment)
	}
}

// GetPayment returns a payment joined with its reconciliation state.
func GetPayment(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}

		id, err := uuid.Parse(chi.URLParam(r, "paymentID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment id"))
			return
		}

		details, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, details)
	}
}

// ListPayments returns a cursor-paginated payment listing.
func ListPayments(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}

		filter := payments.ListFilter{
			AccountID: strings.TrimSpace(r.URL.Query().Get("accountId")),
		}

		limit, err := validators.ParseQueryInt(r, "limit", 0)
		if err != nil || limit < 0 || (limit == 0 && r.URL.Query().Has("limit")) {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "limit must be a positive integer"))
			return
		}
		filter.Page.Limit = limit

		if cursor := strings.TrimSpace(r.URL.Query().Get("cursor")); cursor != "" {
			filter.Page.Cursor = cursor
		}

		if statusStr := strings.TrimSpace(r.URL.Query().Get("status")); statusStr != "" {
			status, err := enums.ParsePaymentStatus(statusStr)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter"))
				return
			}
			filter.Status = &status
		}

		resp, err := svc.List(r.Context(), filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, resp)
	}
}
