package payments

import (
	"context"
	"strings"

	"github.com/angelmondragon/payrecon-backend/pkg/db/models"
	"github.com/angelmondragon/payrecon-backend/pkg/enums"
	"github.com/angelmondragon/payrecon-backend/pkg/errors"
	"github.com/angelmondragon/payrecon-backend/pkg/logger"
	"github.com/angelmondragon/payrecon-backend/pkg/metrics"
	"github.com/angelmondragon/payrecon-backend/pkg/pagination"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// jobEnqueuer creates the reconciliation job paired with a payment inside
// the same transaction as the payment insert.
type jobEnqueuer interface {
	Enqueue(ctx context.Context, tx *gorm.DB, paymentID uuid.UUID) error
}

// reconLoader reads reconciliation state when assembling payment details.
type reconLoader interface {
	FindJobByPaymentID(ctx context.Context, paymentID uuid.UUID) (*models.ReconJob, error)
	FindResultByPaymentID(ctx context.Context, paymentID uuid.UUID) (*models.ReconciliationResult, error)
}

// CreatePaymentInput carries everything intake needs to accept a payment.
type CreatePaymentInput struct {
	IdempotencyKey string
	AccountID      string
	Amount         decimal.Decimal
	Currency       string
	Description    *string
}

// CreateResult reports the stored payment and whether this call created it.
// Replayed requests return the original row untouched.
type CreateResult struct {
	Payment *models.Payment
	Created bool
}

// PaymentDetails is a payment joined with its reconciliation state.
type PaymentDetails struct {
	Payment models.Payment               `json:"payment"`
	Job     *models.ReconJob             `json:"job,omitempty"`
	Result  *models.ReconciliationResult `json:"reconciliation"`
}

// ListResult is one page of payments plus the cursor for the next page.
type ListResult struct {
	Payments   []models.Payment `json:"payments"`
	NextCursor string           `json:"nextCursor,omitempty"`
}

// Service defines payment intake and read operations.
type Service interface {
	Create(ctx context.Context, input CreatePaymentInput) (*CreateResult, error)
	Get(ctx context.Context, id uuid.UUID) (*PaymentDetails, error)
	List(ctx context.Context, filter ListFilter) (*ListResult, error)
}

// ServiceParams holds the dependencies required to build a payment service.
type ServiceParams struct {
	Tx      txRunner
	Repo    Repository
	Jobs    jobEnqueuer
	Recon   reconLoader
	Logger  *logger.Logger
	Metrics *metrics.IntakeMetrics
}

type service struct {
	tx      txRunner
	repo    Repository
	jobs    jobEnqueuer
	recon   reconLoader
	logg    *logger.Logger
	metrics *metrics.IntakeMetrics
}

// NewService validates params and returns a payment service.
func NewService(params ServiceParams) (Service, error) {
	if params.Tx == nil {
		return nil, errors.New(errors.CodeInternal, "payment service requires a transaction runner")
	}
	if params.Repo == nil {
		return nil, errors.New(errors.CodeInternal, "payment service requires a repository")
	}
	if params.Jobs == nil {
		return nil, errors.New(errors.CodeInternal, "payment service requires a job enqueuer")
	}
	if params.Recon == nil {
		return nil, errors.New(errors.CodeInternal, "payment service requires a reconciliation loader")
	}
	if params.Logger == nil {
		return nil, errors.New(errors.CodeInternal, "payment service requires a logger")
	}
	return &service{
		tx:      params.Tx,
		repo:    params.Repo,
		jobs:    params.Jobs,
		recon:   params.Recon,
		logg:    params.Logger,
		metrics: params.Metrics,
	}, nil
}

// Create stores the payment and its pending reconciliation job atomically.
// A request replaying an existing idempotency key gets the stored payment
// back unchanged, even when the other fields differ.
func (s *service) Create(ctx context.Context, input CreatePaymentInput) (*CreateResult, error) {
	if err := s.validateCreate(input); err != nil {
		s.metrics.IncRejected()
		return nil, err
	}

	currency := strings.ToUpper(input.Currency)
	if currency == "" {
		currency = "USD"
	}

	payment := &models.Payment{
		ID:             uuid.New(),
		IdempotencyKey: input.IdempotencyKey,
		AccountID:      input.AccountID,
		Amount:         input.Amount,
		Currency:       currency,
		Status:         enums.PaymentStatusPending,
		Description:    input.Description,
	}

	var created bool
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		inserted, err := s.repo.WithTx(tx).Insert(ctx, payment)
		if err != nil {
			return err
		}
		created = inserted
		if !inserted {
			return nil
		}
		return s.jobs.Enqueue(ctx, tx, payment.ID)
	})
	if err != nil {
		return nil, errors.Wrap(errors.CodeInternal, err, "failed to store payment")
	}

	if !created {
		existing, err := s.repo.FindByIdempotencyKey(ctx, input.IdempotencyKey)
		if err != nil {
			return nil, errors.Wrap(errors.CodeInternal, err, "failed to load existing payment")
		}
		if existing == nil {
			return nil, errors.New(errors.CodeInternal, "payment vanished after idempotency conflict")
		}
		s.metrics.IncReplayed()
		logCtx := s.logg.WithPaymentID(ctx, existing.ID.String())
		s.logg.Info(logCtx, "payment intake replayed")
		return &CreateResult{Payment: existing, Created: false}, nil
	}

	s.metrics.IncCreated()
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"payment_id": payment.ID.String(),
		"account_id": payment.AccountID,
	})
	s.logg.Info(logCtx, "payment accepted")
	return &CreateResult{Payment: payment, Created: true}, nil
}

func (s *service) validateCreate(input CreatePaymentInput) error {
	if strings.TrimSpace(input.IdempotencyKey) == "" {
		return errors.New(errors.CodeValidation, "idempotency key is required")
	}
	if strings.TrimSpace(input.AccountID) == "" {
		return errors.New(errors.CodeValidation, "account id is required")
	}
	if !input.Amount.IsPositive() {
		return errors.New(errors.CodeValidation, "amount must be positive")
	}
	if input.Amount.Exponent() < -2 {
		return errors.New(errors.CodeValidation, "amount precision exceeds two decimal places")
	}
	if input.Currency != "" && len(input.Currency) != 3 {
		return errors.New(errors.CodeValidation, "currency must be a three letter code")
	}
	return nil
}

// Get loads a payment with its job and, when reconciliation has finished,
// the recorded result.
func (s *service) Get(ctx context.Context, id uuid.UUID) (*PaymentDetails, error) {
	if id == uuid.Nil {
		return nil, errors.New(errors.CodeValidation, "payment id is required")
	}

	payment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, errors.Wrap(errors.CodeInternal, err, "failed to load payment")
	}
	if payment == nil {
		return nil, errors.New(errors.CodeNotFound, "payment not found")
	}

	job, err := s.recon.FindJobByPaymentID(ctx, id)
	if err != nil {
		return nil, errors.Wrap(errors.CodeInternal, err, "failed to load reconciliation job")
	}
	result, err := s.recon.FindResultByPaymentID(ctx, id)
	if err != nil {
		return nil, errors.Wrap(errors.CodeInternal, err, "failed to load reconciliation result")
	}

	return &PaymentDetails{Payment: *payment, Job: job, Result: result}, nil
}

func (s *service) List(ctx context.Context, filter ListFilter) (*ListResult, error) {
	if filter.Status != nil && !filter.Status.IsValid() {
		return nil, errors.New(errors.CodeValidation, "invalid payment status filter")
	}
	if _, err := pagination.ParseCursor(filter.Page.Cursor); err != nil {
		return nil, errors.Wrap(errors.CodeValidation, err, "invalid cursor")
	}

	rows, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, errors.Wrap(errors.CodeInternal, err, "failed to list payments")
	}

	limit := pagination.NormalizeLimit(filter.Page.Limit)
	next := ""
	if len(rows) > limit {
		rows = rows[:limit]
		last := rows[len(rows)-1]
		next = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return &ListResult{Payments: rows, NextCursor: next}, nil
}
