package reconciliation

import (
	"context"
	"errors"
	"time"

	"github.com/angelmondragon/payrecon-backend/pkg/db/models"
	"github.com/angelmondragon/payrecon-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/payrecon-backend/pkg/errors"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Queue hands reconciliation jobs to workers under a lease. A lease is not a
// lock: expiry makes the job claimable again, so every mutation is guarded by
// the holder id.
type Queue interface {
	Enqueue(ctx context.Context, tx *gorm.DB, paymentID uuid.UUID) error
	Claim(ctx context.Context, workerID string, lease time.Duration) (*models.ReconJob, error)
	Heartbeat(ctx context.Context, jobID uuid.UUID, workerID string, lease time.Duration) (bool, error)
	Complete(ctx context.Context, tx *gorm.DB, jobID uuid.UUID, workerID string) error
	Fail(ctx context.Context, jobID uuid.UUID, workerID string, reason string) (*models.ReconJob, error)
	FindJobByPaymentID(ctx context.Context, paymentID uuid.UUID) (*models.ReconJob, error)
	FindResultByPaymentID(ctx context.Context, paymentID uuid.UUID) (*models.ReconciliationResult, error)
	CreateResult(ctx context.Context, tx *gorm.DB, result *models.ReconciliationResult) error
}

// QueueParams configures the retry policy of a queue.
type QueueParams struct {
	DB          *gorm.DB
	MaxAttempts int
	BackoffBase time.Duration
	BackoffCap  time.Duration
	Now         func() time.Time
}

type queue struct {
	db          *gorm.DB
	maxAttempts int
	backoffBase time.Duration
	backoffCap  time.Duration
	now         func() time.Time
}

// NewQueue validates params and returns a lease-based job queue.
func NewQueue(params QueueParams) (Queue, error) {
	if params.DB == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "queue requires a database")
	}
	if params.MaxAttempts <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "queue requires a positive max attempts")
	}
	if params.BackoffBase <= 0 || params.BackoffCap < params.BackoffBase {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "queue requires a valid backoff range")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &queue{
		db:          params.DB,
		maxAttempts: params.MaxAttempts,
		backoffBase: params.BackoffBase,
		backoffCap:  params.BackoffCap,
		now:         now,
	}, nil
}

func (q *queue) Enqueue(ctx context.Context, tx *gorm.DB, paymentID uuid.UUID) error {
	if tx == nil {
		tx = q.db
	}
	job := models.ReconJob{
		ID:        uuid.New(),
		PaymentID: paymentID,
		Status:    enums.ReconJobStatusPending,
	}
	return tx.WithContext(ctx).Create(&job).Error
}

// claimableWhere matches jobs a worker may take: pending jobs whose backoff
// gate has passed, and in_progress jobs whose lease has lapsed.
func claimableWhere(query *gorm.DB, now time.Time) *gorm.DB {
	return query.Where(
		"(status = ? AND (next_attempt_at IS NULL OR next_attempt_at <= ?)) OR (status = ? AND lease_expires_at <= ?)",
		enums.ReconJobStatusPending, now,
		enums.ReconJobStatusInProgress, now,
	)
}

// Claim takes the oldest claimable job for workerID. The select only
// nominates a candidate; the conditional update decides the race, so two
// claimers can never both win the same job. Returns nil, nil when idle.
func (q *queue) Claim(ctx context.Context, workerID string, lease time.Duration) (*models.ReconJob, error) {
	if workerID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "worker id is required")
	}

	now := q.now().UTC()
	var claimed *models.ReconJob
	err := q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		query := claimableWhere(tx.Model(&models.ReconJob{}), now).Order("created_at ASC")
		if q.db.Dialector.Name() == "postgres" {
			query = query.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		}

		var candidate models.ReconJob
		if err := query.First(&candidate).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}

		result := claimableWhere(
			tx.Model(&models.ReconJob{}).Where("id = ?", candidate.ID), now,
		).Updates(map[string]any{
			"status":           enums.ReconJobStatusInProgress,
			"lease_holder":     workerID,
			"lease_expires_at": now.Add(lease),
		})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			// another claimer won between select and update
			return nil
		}

		var job models.ReconJob
		if err := tx.First(&job, "id = ?", candidate.ID).Error; err != nil {
			return err
		}
		claimed = &job
		return nil
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to claim reconciliation job")
	}
	return claimed, nil
}

// Heartbeat extends the lease while the holder still owns the job. A false
// return means the lease was lost and the worker must stop side effects.
func (q *queue) Heartbeat(ctx context.Context, jobID uuid.UUID, workerID string, lease time.Duration) (bool, error) {
	now := q.now().UTC()
	result := q.db.WithContext(ctx).
		Model(&models.ReconJob{}).
		Where("id = ? AND lease_holder = ? AND status = ? AND lease_expires_at > ?",
			jobID, workerID, enums.ReconJobStatusInProgress, now).
		Update("lease_expires_at", now.Add(lease))
	if result.Error != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, result.Error, "failed to heartbeat job")
	}
	return result.RowsAffected > 0, nil
}

// Complete marks the job done inside the caller's completion transaction.
// Holder mismatch means another worker reclaimed the job after lease expiry.
func (q *queue) Complete(ctx context.Context, tx *gorm.DB, jobID uuid.UUID, workerID string) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "complete requires a transaction")
	}
	result := tx.WithContext(ctx).
		Model(&models.ReconJob{}).
		Where("id = ? AND lease_holder = ? AND status = ?",
			jobID, workerID, enums.ReconJobStatusInProgress).
		Updates(map[string]any{
			"status":           enums.ReconJobStatusDone,
			"lease_holder":     nil,
			"lease_expires_at": nil,
			"next_attempt_at":  nil,
			"last_error":       nil,
		})
	if result.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, result.Error, "failed to complete job")
	}
	if result.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeLeaseLost, "job lease lost before completion")
	}
	return nil
}

// Fail records a failed attempt. Attempts below the cap release the job with
// an exponential backoff gate; at the cap the job dead-letters, its payment
// moves to failed, and an error result row is written.
func (q *queue) Fail(ctx context.Context, jobID uuid.UUID, workerID string, reason string) (*models.ReconJob, error) {
	now := q.now().UTC()
	var updated models.ReconJob
	err := q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var job models.ReconJob
		if err := tx.
			Where("id = ? AND lease_holder = ? AND status = ?",
				jobID, workerID, enums.ReconJobStatusInProgress).
			First(&job).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeLeaseLost, "job lease lost before failure could be recorded")
			}
			return err
		}

		attempts := job.Attempts + 1
		updates := map[string]any{
			"attempts":         attempts,
			"lease_holder":     nil,
			"lease_expires_at": nil,
			"last_error":       reason,
		}
		deadLettered := attempts >= q.maxAttempts
		if deadLettered {
			updates["status"] = enums.ReconJobStatusFailed
			updates["next_attempt_at"] = nil
		} else {
			updates["status"] = enums.ReconJobStatusPending
			updates["next_attempt_at"] = now.Add(Backoff(q.backoffBase, q.backoffCap, attempts))
		}

		result := tx.Model(&models.ReconJob{}).
			Where("id = ? AND lease_holder = ? AND status = ?",
				jobID, workerID, enums.ReconJobStatusInProgress).
			Updates(updates)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return pkgerrors.New(pkgerrors.CodeLeaseLost, "job lease lost before failure could be recorded")
		}

		if deadLettered {
			if err := tx.Model(&models.Payment{}).
				Where("id = ?", job.PaymentID).
				Update("status", enums.PaymentStatusFailed).Error; err != nil {
				return err
			}
			notes := reason
			errorResult := models.ReconciliationResult{
				ID:         uuid.New(),
				PaymentID:  job.PaymentID,
				ReconJobID: job.ID,
				Status:     enums.ReconResultStatusError,
				Matched:    false,
				Notes:      &notes,
			}
			if err := tx.Create(&errorResult).Error; err != nil {
				return err
			}
		}

		return tx.First(&updated, "id = ?", job.ID).Error
	})
	if err != nil {
		if pkgerrors.HasCode(err, pkgerrors.CodeLeaseLost) {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to record job failure")
	}
	return &updated, nil
}

func (q *queue) FindJobByPaymentID(ctx context.Context, paymentID uuid.UUID) (*models.ReconJob, error) {
	var job models.ReconJob
	if err := q.db.WithContext(ctx).First(&job, "payment_id = ?", paymentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &job, nil
}

func (q *queue) FindResultByPaymentID(ctx context.Context, paymentID uuid.UUID) (*models.ReconciliationResult, error) {
	var result models.ReconciliationResult
	if err := q.db.WithContext(ctx).
		Order("created_at DESC").
		First(&result, "payment_id = ?", paymentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &result, nil
}

func (q *queue) CreateResult(ctx context.Context, tx *gorm.DB, result *models.ReconciliationResult) error {
	if tx == nil {
		tx = q.db
	}
	return tx.WithContext(ctx).Create(result).Error
}
