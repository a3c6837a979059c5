package payments

import (
	"context"
	"io"
	"sync"
	"testing"

	"github.com/angelmondragon/payrecon-backend/pkg/db"
	"github.com/angelmondragon/payrecon-backend/pkg/db/models"
	"github.com/angelmondragon/payrecon-backend/pkg/enums"
	"github.com/angelmondragon/payrecon-backend/pkg/errors"
	"github.com/angelmondragon/payrecon-backend/pkg/logger"
	"github.com/angelmondragon/payrecon-backend/pkg/pagination"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeEnqueuer struct {
	mu    sync.Mutex
	calls int
	fail  error
}

func (f *fakeEnqueuer) Enqueue(ctx context.Context, tx *gorm.DB, paymentID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.calls++
	job := models.ReconJob{
		ID:        uuid.New(),
		PaymentID: paymentID,
		Status:    enums.ReconJobStatusPending,
	}
	return tx.WithContext(ctx).Create(&job).Error
}

type fakeReconLoader struct {
	job    *models.ReconJob
	result *models.ReconciliationResult
}

func (f *fakeReconLoader) FindJobByPaymentID(ctx context.Context, paymentID uuid.UUID) (*models.ReconJob, error) {
	return f.job, nil
}

func (f *fakeReconLoader) FindResultByPaymentID(ctx context.Context, paymentID uuid.UUID) (*models.ReconciliationResult, error) {
	return f.result, nil
}

func newPaymentService(t *testing.T, conn *gorm.DB, enqueuer *fakeEnqueuer, loader *fakeReconLoader) Service {
	t.Helper()

	svc, err := NewService(ServiceParams{
		Tx:     db.NewFromGorm(conn),
		Repo:   NewRepository(conn),
		Jobs:   enqueuer,
		Recon:  loader,
		Logger: logger.New(logger.Options{ServiceName: "payments-test", Output: io.Discard}),
	})
	require.NoError(t, err)
	return svc
}

func TestPaymentService_CreateStoresPaymentAndJob(t *testing.T) {
	conn := setupPaymentsTestDB(t)
	enqueuer := &fakeEnqueuer{}
	svc := newPaymentService(t, conn, enqueuer, &fakeReconLoader{})
	ctx := context.Background()

	desc := "invoice 42"
	result, err := svc.Create(ctx, CreatePaymentInput{
		IdempotencyKey: "key-1",
		AccountID:      "acct-1",
		Amount:         decimal.RequireFromString("250.00"),
		Currency:       "usd",
		Description:    &desc,
	})
	require.NoError(t, err)
	assert.True(t, result.Created)
	assert.Equal(t, enums.PaymentStatusPending, result.Payment.Status)
	assert.Equal(t, "USD", result.Payment.Currency)
	assert.Equal(t, 1, enqueuer.calls)

	var jobCount int64
	require.NoError(t, conn.Model(&models.ReconJob{}).Where("payment_id = ?", result.Payment.ID).Count(&jobCount).Error)
	assert.EqualValues(t, 1, jobCount)
}

func TestPaymentService_CreateReplaysExistingKey(t *testing.T) {
	conn := setupPaymentsTestDB(t)
	enqueuer := &fakeEnqueuer{}
	svc := newPaymentService(t, conn, enqueuer, &fakeReconLoader{})
	ctx := context.Background()

	first, err := svc.Create(ctx, CreatePaymentInput{
		IdempotencyKey: "key-1",
		AccountID:      "acct-1",
		Amount:         decimal.RequireFromString("250.00"),
	})
	require.NoError(t, err)
	require.True(t, first.Created)

	replay, err := svc.Create(ctx, CreatePaymentInput{
		IdempotencyKey: "key-1",
		AccountID:      "acct-other",
		Amount:         decimal.RequireFromString("999.99"),
	})
	require.NoError(t, err)
	assert.False(t, replay.Created)
	assert.Equal(t, first.Payment.ID, replay.Payment.ID)
	assert.Equal(t, "acct-1", replay.Payment.AccountID)
	assert.True(t, replay.Payment.Amount.Equal(decimal.RequireFromString("250.00")))
	assert.Equal(t, 1, enqueuer.calls, "replay must not enqueue a second job")
}

func TestPaymentService_CreateRollsBackWhenEnqueueFails(t *testing.T) {
	conn := setupPaymentsTestDB(t)
	enqueuer := &fakeEnqueuer{fail: errors.New(errors.CodeInternal, "enqueue exploded")}
	svc := newPaymentService(t, conn, enqueuer, &fakeReconLoader{})
	ctx := context.Background()

	_, err := svc.Create(ctx, CreatePaymentInput{
		IdempotencyKey: "key-1",
		AccountID:      "acct-1",
		Amount:         decimal.RequireFromString("250.00"),
	})
	require.Error(t, err)

	var count int64
	require.NoError(t, conn.Model(&models.Payment{}).Count(&count).Error)
	assert.EqualValues(t, 0, count, "payment insert must roll back with the job")
}

func TestPaymentService_CreateValidation(t *testing.T) {
	conn := setupPaymentsTestDB(t)
	svc := newPaymentService(t, conn, &fakeEnqueuer{}, &fakeReconLoader{})
	ctx := context.Background()

	cases := []struct {
		name  string
		input CreatePaymentInput
	}{
		{
			name: "missing idempotency key",
			input: CreatePaymentInput{
				AccountID: "acct-1",
				Amount:    decimal.RequireFromString("1.00"),
			},
		},
		{
			name: "missing account",
			input: CreatePaymentInput{
				IdempotencyKey: "key-1",
				Amount:         decimal.RequireFromString("1.00"),
			},
		},
		{
			name: "zero amount",
			input: CreatePaymentInput{
				IdempotencyKey: "key-1",
				AccountID:      "acct-1",
				Amount:         decimal.Zero,
			},
		},
		{
			name: "negative amount",
			input: CreatePaymentInput{
				IdempotencyKey: "key-1",
				AccountID:      "acct-1",
				Amount:         decimal.RequireFromString("-3.00"),
			},
		},
		{
			name: "too many decimal places",
			input: CreatePaymentInput{
				IdempotencyKey: "key-1",
				AccountID:      "acct-1",
				Amount:         decimal.RequireFromString("1.005"),
			},
		},
		{
			name: "bad currency",
			input: CreatePaymentInput{
				IdempotencyKey: "key-1",
				AccountID:      "acct-1",
				Amount:         decimal.RequireFromString("1.00"),
				Currency:       "DOLLARS",
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(ctx, tc.input)
			require.Error(t, err)
			assert.True(t, errors.HasCode(err, errors.CodeValidation))
		})
	}
}

func TestPaymentService_GetJoinsReconState(t *testing.T) {
	conn := setupPaymentsTestDB(t)
	enqueuer := &fakeEnqueuer{}
	loader := &fakeReconLoader{}
	svc := newPaymentService(t, conn, enqueuer, loader)
	ctx := context.Background()

	created, err := svc.Create(ctx, CreatePaymentInput{
		IdempotencyKey: "key-1",
		AccountID:      "acct-1",
		Amount:         decimal.RequireFromString("50.00"),
	})
	require.NoError(t, err)

	loader.job = &models.ReconJob{
		ID:        uuid.New(),
		PaymentID: created.Payment.ID,
		Status:    enums.ReconJobStatusDone,
	}
	loader.result = &models.ReconciliationResult{
		ID:         uuid.New(),
		PaymentID:  created.Payment.ID,
		ReconJobID: loader.job.ID,
		Status:     enums.ReconResultStatusMatched,
		Matched:    true,
	}

	details, err := svc.Get(ctx, created.Payment.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Payment.ID, details.Payment.ID)
	require.NotNil(t, details.Job)
	require.NotNil(t, details.Result)
	assert.True(t, details.Result.Matched)
}

func TestPaymentService_GetUnknownPayment(t *testing.T) {
	conn := setupPaymentsTestDB(t)
	svc := newPaymentService(t, conn, &fakeEnqueuer{}, &fakeReconLoader{})

	_, err := svc.Get(context.Background(), uuid.New())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeNotFound))
}

func TestPaymentService_ListPaginates(t *testing.T) {
	conn := setupPaymentsTestDB(t)
	svc := newPaymentService(t, conn, &fakeEnqueuer{}, &fakeReconLoader{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.Create(ctx, CreatePaymentInput{
			IdempotencyKey: uuid.NewString(),
			AccountID:      "acct-1",
			Amount:         decimal.RequireFromString("10.00"),
		})
		require.NoError(t, err)
	}

	page, err := svc.List(ctx, ListFilter{AccountID: "acct-1", Page: pagination.Params{Limit: 2}})
	require.NoError(t, err)
	assert.Len(t, page.Payments, 2)
	require.NotEmpty(t, page.NextCursor)

	rest, err := svc.List(ctx, ListFilter{
		AccountID: "acct-1",
		Page:      pagination.Params{Limit: 2, Cursor: page.NextCursor},
	})
	require.NoError(t, err)
	assert.Len(t, rest.Payments, 1)
	assert.Empty(t, rest.NextCursor)
}

func TestPaymentService_ListRejectsBadCursor(t *testing.T) {
	conn := setupPaymentsTestDB(t)
	svc := newPaymentService(t, conn, &fakeEnqueuer{}, &fakeReconLoader{})

	_, err := svc.List(context.Background(), ListFilter{Page: pagination.Params{Cursor: "not-base64!!"}})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeValidation))
}
