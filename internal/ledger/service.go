package ledger

import (
	"context"

	"github.com/angelmondragon/payrecon-backend/pkg/db/models"
	"github.com/angelmondragon/payrecon-backend/pkg/enums"
	"github.com/angelmondragon/payrecon-backend/pkg/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Service exposes ledger reads and the append operation used by
// reconciliation when a job completes.
type Service interface {
	CurrentBalance(ctx context.Context, accountID string) (decimal.Decimal, error)
	Append(ctx context.Context, tx *gorm.DB, input AppendInput) (*models.LedgerEntry, error)
	ListByAccount(ctx context.Context, accountID string) ([]models.LedgerEntry, error)
}

// AppendInput describes a single entry to add to an account's ledger.
// Amount must be positive; EntryType decides the sign applied to the balance.
type AppendInput struct {
	AccountID string
	PaymentID uuid.UUID
	EntryType enums.LedgerEntryType
	Amount    decimal.Decimal
}

// ServiceParams holds the dependencies required to build a ledger service.
type ServiceParams struct {
	Repo Repository
}

type service struct {
	repo Repository
}

// NewService validates params and returns a ledger service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, errors.New(errors.CodeInternal, "ledger service requires a repository")
	}
	return &service{repo: params.Repo}, nil
}

// CurrentBalance reads the balance_after of the account's newest entry.
// An account with no entries has a zero balance.
func (s *service) CurrentBalance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	if accountID == "" {
		return decimal.Zero, errors.New(errors.CodeValidation, "account id is required")
	}

	latest, err := s.repo.Latest(ctx, accountID)
	if err != nil {
		return decimal.Zero, errors.Wrap(errors.CodeInternal, err, "failed to read latest ledger entry")
	}
	if latest == nil {
		return decimal.Zero, nil
	}
	return latest.BalanceAfter, nil
}

// Append writes one entry inside the caller's transaction, taking the
// account's append lock first so the balance_after chain stays contiguous
// under concurrent appends. The caller owns commit and rollback.
func (s *service) Append(ctx context.Context, tx *gorm.DB, input AppendInput) (*models.LedgerEntry, error) {
	if tx == nil {
		return nil, errors.New(errors.CodeInternal, "ledger append requires a transaction")
	}
	if input.AccountID == "" {
		return nil, errors.New(errors.CodeValidation, "account id is required")
	}
	if input.PaymentID == uuid.Nil {
		return nil, errors.New(errors.CodeValidation, "payment id is required")
	}
	if !input.EntryType.IsValid() {
		return nil, errors.New(errors.CodeValidation, "invalid ledger entry type")
	}
	if !input.Amount.IsPositive() {
		return nil, errors.New(errors.CodeValidation, "ledger amount must be positive")
	}

	repo := s.repo.WithTx(tx)

	if err := repo.AcquireAccountLock(ctx, input.AccountID); err != nil {
		return nil, errors.Wrap(errors.CodeLedgerConflict, err, "failed to lock account ledger")
	}

	latest, err := repo.Latest(ctx, input.AccountID)
	if err != nil {
		return nil, errors.Wrap(errors.CodeLedgerConflict, err, "failed to read latest ledger entry")
	}

	balance := decimal.Zero
	if latest != nil {
		balance = latest.BalanceAfter
	}

	entry := &models.LedgerEntry{
		ID:        uuid.New(),
		AccountID: input.AccountID,
		PaymentID: input.PaymentID,
		EntryType: input.EntryType,
		Amount:    input.Amount,
	}
	entry.BalanceAfter = balance.Add(entry.SignedAmount())
	if err := repo.Create(ctx, entry); err != nil {
		return nil, errors.Wrap(errors.CodeLedgerConflict, err, "failed to append ledger entry")
	}
	return entry, nil
}

func (s *service) ListByAccount(ctx context.Context, accountID string) ([]models.LedgerEntry, error) {
	if accountID == "" {
		return nil, errors.New(errors.CodeValidation, "account id is required")
	}
	entries, err := s.repo.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, errors.Wrap(errors.CodeInternal, err, "failed to list ledger entries")
	}
	return entries, nil
}
