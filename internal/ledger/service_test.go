package ledger

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"

	"github.com/angelmondragon/payrecon-backend/pkg/db/models"
	"github.com/angelmondragon/payrecon-backend/pkg/enums"
	"github.com/angelmondragon/payrecon-backend/pkg/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newLedgerService(t *testing.T) (Service, *gorm.DB) {
	t.Helper()

	db := setupLedgerTestDB(t)
	svc, err := NewService(ServiceParams{Repo: NewRepository(db)})
	require.NoError(t, err)
	return svc, db
}

func appendInTx(t *testing.T, svc Service, db *gorm.DB, input AppendInput) error {
	t.Helper()
	return db.Transaction(func(tx *gorm.DB) error {
		_, err := svc.Append(context.Background(), tx, input)
		return err
	})
}

func TestNewService_RequiresRepo(t *testing.T) {
	_, err := NewService(ServiceParams{})
	require.Error(t, err)
}

func TestLedgerService_AppendChainsBalances(t *testing.T) {
	svc, db := newLedgerService(t)
	ctx := context.Background()

	require.NoError(t, appendInTx(t, svc, db, AppendInput{
		AccountID: "acct-1",
		PaymentID: uuid.New(),
		EntryType: enums.LedgerEntryTypeCredit,
		Amount:    decimal.RequireFromString("250.00"),
	}))
	require.NoError(t, appendInTx(t, svc, db, AppendInput{
		AccountID: "acct-1",
		PaymentID: uuid.New(),
		EntryType: enums.LedgerEntryTypeDebit,
		Amount:    decimal.RequireFromString("75.50"),
	}))

	balance, err := svc.CurrentBalance(ctx, "acct-1")
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.RequireFromString("174.50")), "got %s", balance)

	entries, err := svc.ListByAccount(ctx, "acct-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.True(t, entries[0].BalanceAfter.Equal(decimal.RequireFromString("250.00")))
	assert.True(t, entries[1].BalanceAfter.Equal(decimal.RequireFromString("174.50")))
}

func TestLedgerService_AppendAllowsNegativeBalance(t *testing.T) {
	svc, db := newLedgerService(t)

	require.NoError(t, appendInTx(t, svc, db, AppendInput{
		AccountID: "acct-1",
		PaymentID: uuid.New(),
		EntryType: enums.LedgerEntryTypeDebit,
		Amount:    decimal.RequireFromString("30.00"),
	}))

	balance, err := svc.CurrentBalance(context.Background(), "acct-1")
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.RequireFromString("-30.00")), "got %s", balance)
}

func TestLedgerService_AppendValidation(t *testing.T) {
	svc, db := newLedgerService(t)
	ctx := context.Background()
	paymentID := uuid.New()

	_, err := svc.Append(ctx, nil, AppendInput{
		AccountID: "acct-1",
		PaymentID: paymentID,
		EntryType: enums.LedgerEntryTypeCredit,
		Amount:    decimal.RequireFromString("1.00"),
	})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeInternal))

	cases := []struct {
		name  string
		input AppendInput
	}{
		{
			name: "missing account",
			input: AppendInput{
				PaymentID: paymentID,
				EntryType: enums.LedgerEntryTypeCredit,
				Amount:    decimal.RequireFromString("1.00"),
			},
		},
		{
			name: "missing payment",
			input: AppendInput{
				AccountID: "acct-1",
				EntryType: enums.LedgerEntryTypeCredit,
				Amount:    decimal.RequireFromString("1.00"),
			},
		},
		{
			name: "bad entry type",
			input: AppendInput{
				AccountID: "acct-1",
				PaymentID: paymentID,
				EntryType: enums.LedgerEntryType("transfer"),
				Amount:    decimal.RequireFromString("1.00"),
			},
		},
		{
			name: "zero amount",
			input: AppendInput{
				AccountID: "acct-1",
				PaymentID: paymentID,
				EntryType: enums.LedgerEntryTypeCredit,
				Amount:    decimal.Zero,
			},
		},
		{
			name: "negative amount",
			input: AppendInput{
				AccountID: "acct-1",
				PaymentID: paymentID,
				EntryType: enums.LedgerEntryTypeCredit,
				Amount:    decimal.RequireFromString("-5.00"),
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := db.Transaction(func(tx *gorm.DB) error {
				_, err := svc.Append(ctx, tx, tc.input)
				return err
			})
			require.Error(t, err)
			assert.True(t, errors.HasCode(err, errors.CodeValidation))
		})
	}
}

func TestLedgerService_CurrentBalanceEmptyAccount(t *testing.T) {
	svc, _ := newLedgerService(t)

	balance, err := svc.CurrentBalance(context.Background(), "acct-empty")
	require.NoError(t, err)
	assert.True(t, balance.IsZero())
}

func TestLedgerService_CurrentBalanceRequiresAccount(t *testing.T) {
	svc, _ := newLedgerService(t)

	_, err := svc.CurrentBalance(context.Background(), "")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeValidation))
}

func TestLedgerService_ConcurrentAppendsKeepChain(t *testing.T) {
	svc, db := newLedgerService(t)

	const appends = 10
	amount := decimal.RequireFromString("10.00")

	var wg sync.WaitGroup
	for i := 0; i < appends; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, appendInTx(t, svc, db, AppendInput{
				AccountID: "acct-race",
				PaymentID: uuid.New(),
				EntryType: enums.LedgerEntryTypeCredit,
				Amount:    amount,
			}))
		}()
	}
	wg.Wait()

	entries, err := svc.ListByAccount(context.Background(), "acct-race")
	require.NoError(t, err)
	require.Len(t, entries, appends)

	running := decimal.Zero
	for _, entry := range entries {
		running = running.Add(entry.SignedAmount())
		assert.True(t, entry.BalanceAfter.Equal(running),
			"entry %s balance_after=%s want %s", entry.ID, entry.BalanceAfter, running)
	}

	balance, err := svc.CurrentBalance(context.Background(), "acct-race")
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.RequireFromString("100.00")), "got %s", balance)
}

type recordingLedgerRepo struct {
	mu      sync.Mutex
	calls   []string
	lockErr error
	latest  *models.LedgerEntry
}

func (r *recordingLedgerRepo) record(call string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
}

func (r *recordingLedgerRepo) WithTx(tx *gorm.DB) Repository { return r }

func (r *recordingLedgerRepo) AcquireAccountLock(ctx context.Context, accountID string) error {
	r.record("lock")
	return r.lockErr
}

func (r *recordingLedgerRepo) Create(ctx context.Context, entry *models.LedgerEntry) error {
	r.record("create")
	return nil
}

func (r *recordingLedgerRepo) Latest(ctx context.Context, accountID string) (*models.LedgerEntry, error) {
	r.record("latest")
	return r.latest, nil
}

func (r *recordingLedgerRepo) ListByAccount(ctx context.Context, accountID string) ([]models.LedgerEntry, error) {
	return nil, nil
}

func TestLedgerService_AppendLocksBeforeReadingLatest(t *testing.T) {
	repo := &recordingLedgerRepo{}
	svc, err := NewService(ServiceParams{Repo: repo})
	require.NoError(t, err)

	entry, err := svc.Append(context.Background(), &gorm.DB{}, AppendInput{
		AccountID: "acct-1",
		PaymentID: uuid.New(),
		EntryType: enums.LedgerEntryTypeCredit,
		Amount:    decimal.RequireFromString("25.00"),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"lock", "latest", "create"}, repo.calls)
	assert.True(t, entry.BalanceAfter.Equal(decimal.RequireFromString("25.00")))
}

func TestLedgerService_AppendStopsWhenLockFails(t *testing.T) {
	repo := &recordingLedgerRepo{lockErr: stderrors.New("lock timeout")}
	svc, err := NewService(ServiceParams{Repo: repo})
	require.NoError(t, err)

	_, err = svc.Append(context.Background(), &gorm.DB{}, AppendInput{
		AccountID: "acct-1",
		PaymentID: uuid.New(),
		EntryType: enums.LedgerEntryTypeCredit,
		Amount:    decimal.RequireFromString("25.00"),
	})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeLedgerConflict))
	assert.NotContains(t, repo.calls, "create")
}
