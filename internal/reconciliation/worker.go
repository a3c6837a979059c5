package reconciliation

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/angelmondragon/payrecon-backend/internal/ledger"
	"github.com/angelmondragon/payrecon-backend/internal/payments"
	"github.com/angelmondragon/payrecon-backend/pkg/db/models"
	"github.com/angelmondragon/payrecon-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/payrecon-backend/pkg/errors"
	"github.com/angelmondragon/payrecon-backend/pkg/logger"
	"github.com/angelmondragon/payrecon-backend/pkg/metrics"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const jitterWindow = 250 * time.Millisecond

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// WorkerParams wires one reconciliation worker.
type WorkerParams struct {
	ID                string
	Queue             Queue
	Payments          payments.Repository
	Ledger            ledger.Service
	Matcher           Matcher
	Tx                txRunner
	Logger            *logger.Logger
	Metrics           *metrics.ReconMetrics
	PollInterval      time.Duration
	LeaseDuration     time.Duration
	HeartbeatInterval time.Duration
}

// Worker claims jobs one at a time and drives each through match, ledger
// append and completion. Errors never escape Run; they fail the attempt and
// the loop keeps going.
type Worker struct {
	id        string
	queue     Queue
	payments  payments.Repository
	ledger    ledger.Service
	matcher   Matcher
	tx        txRunner
	logg      *logger.Logger
	metrics   *metrics.ReconMetrics
	poll      time.Duration
	lease     time.Duration
	heartbeat time.Duration
	now       func() time.Time
}

// NewWorker validates params and returns a worker.
func NewWorker(params WorkerParams) (*Worker, error) {
	if params.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "worker requires an id")
	}
	if params.Queue == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "worker requires a queue")
	}
	if params.Payments == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "worker requires a payment repository")
	}
	if params.Ledger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "worker requires a ledger service")
	}
	if params.Matcher == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "worker requires a matcher")
	}
	if params.Tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "worker requires a transaction runner")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "worker requires a logger")
	}
	if params.PollInterval <= 0 || params.LeaseDuration <= 0 || params.HeartbeatInterval <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "worker requires positive intervals")
	}
	if params.HeartbeatInterval >= params.LeaseDuration {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "heartbeat interval must be shorter than the lease")
	}
	return &Worker{
		id:        params.ID,
		queue:     params.Queue,
		payments:  params.Payments,
		ledger:    params.Ledger,
		matcher:   params.Matcher,
		tx:        params.Tx,
		logg:      params.Logger,
		metrics:   params.Metrics,
		poll:      params.PollInterval,
		lease:     params.LeaseDuration,
		heartbeat: params.HeartbeatInterval,
		now:       time.Now,
	}, nil
}

// Run claims and processes jobs until the context is canceled.
func (w *Worker) Run(ctx context.Context) error {
	logCtx := w.logg.WithWorkerID(ctx, w.id)
	backoff := w.poll

	for {
		select {
		case <-ctx.Done():
			w.logg.Info(logCtx, "reconciliation worker stopping")
			return ctx.Err()
		default:
		}

		job, err := w.queue.Claim(ctx, w.id, w.lease)
		if err != nil {
			w.logg.Error(logCtx, "claim failed", err)
			backoff = nextBackoff(backoff, w.poll, w.lease)
			if err := sleep(ctx, withJitter(backoff)); err != nil {
				return err
			}
			continue
		}
		backoff = w.poll

		if job == nil {
			if err := sleep(ctx, withJitter(w.poll)); err != nil {
				return err
			}
			continue
		}

		w.process(ctx, job)
	}
}

// ProcessOne claims at most one job and runs it to completion. It returns
// nil when nothing is claimable.
func (w *Worker) ProcessOne(ctx context.Context) error {
	job, err := w.queue.Claim(ctx, w.id, w.lease)
	if err != nil {
		return err
	}
	if job == nil {
		return nil
	}
	w.process(ctx, job)
	return nil
}

func (w *Worker) process(ctx context.Context, job *models.ReconJob) {
	start := w.now()
	logCtx := w.logg.WithWorkerID(ctx, w.id)
	logCtx = w.logg.WithJobID(logCtx, job.ID.String())
	logCtx = w.logg.WithPaymentID(logCtx, job.PaymentID.String())
	logCtx = w.logg.WithField(logCtx, "attempt", job.Attempts+1)

	payment, err := w.payments.FindByID(ctx, job.PaymentID)
	if err != nil {
		w.failAttempt(logCtx, job, fmt.Sprintf("load payment: %v", err), "payment_load")
		w.observe(start, "failure")
		return
	}
	if payment == nil {
		w.failAttempt(logCtx, job, "payment row missing for job", "payment_missing")
		w.observe(start, "failure")
		return
	}

	matchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	var leaseLost atomic.Bool
	stopHeartbeat := w.startHeartbeat(logCtx, job.ID, cancel, &leaseLost)

	verdict, matchErr := w.matcher.Match(matchCtx, *payment)
	stopHeartbeat()

	if leaseLost.Load() {
		w.logg.Warn(logCtx, "lease lost during match, discarding attempt")
		w.observe(start, "lease_lost")
		return
	}
	if matchErr != nil {
		w.failAttempt(logCtx, job, fmt.Sprintf("matcher: %v", matchErr), "matcher_error")
		w.observe(start, "failure")
		return
	}

	if err := w.finish(ctx, job, payment, verdict); err != nil {
		if pkgerrors.HasCode(err, pkgerrors.CodeLeaseLost) {
			w.metrics.IncLeaseLost()
			w.logg.Warn(logCtx, "lease lost before completion, discarding attempt")
			w.observe(start, "lease_lost")
			return
		}
		w.failAttempt(logCtx, job, fmt.Sprintf("completion: %v", err), "completion_error")
		w.observe(start, "failure")
		return
	}

	w.metrics.IncCompleted(string(verdict.Status))
	w.observe(start, "success")
	w.logg.Info(logCtx, "reconciliation job completed")
}

// startHeartbeat extends the lease in the background until stopped. Lease
// loss cancels the match context so side effects stop immediately.
func (w *Worker) startHeartbeat(ctx context.Context, jobID uuid.UUID, cancel context.CancelFunc, leaseLost *atomic.Bool) func() {
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)

	go func() {
		defer wg.Done()
		ticker := time.NewTicker(w.heartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				ok, err := w.queue.Heartbeat(ctx, jobID, w.id, w.lease)
				if err != nil {
					w.logg.Error(ctx, "heartbeat failed", err)
					continue
				}
				if !ok {
					w.metrics.IncLeaseLost()
					leaseLost.Store(true)
					cancel()
					return
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			wg.Wait()
		})
	}
}

// finish applies the verdict atomically: result row, ledger entry when
// matched, payment status, job completion. A ledger conflict gets one fresh
// retry before the attempt is failed.
func (w *Worker) finish(ctx context.Context, job *models.ReconJob, payment *models.Payment, verdict Verdict) error {
	err := w.applyVerdict(ctx, job, payment, verdict)
	if err != nil && pkgerrors.HasCode(err, pkgerrors.CodeLedgerConflict) {
		err = w.applyVerdict(ctx, job, payment, verdict)
	}
	return err
}

func (w *Worker) applyVerdict(ctx context.Context, job *models.ReconJob, payment *models.Payment, verdict Verdict) error {
	return w.tx.WithTx(ctx, func(tx *gorm.DB) error {
		result := &models.ReconciliationResult{
			ID:                uuid.New(),
			PaymentID:         payment.ID,
			ReconJobID:        job.ID,
			Status:            verdict.Status,
			Matched:           verdict.Matched,
			DiscrepancyAmount: verdict.DiscrepancyAmount,
			Notes:             verdict.Notes,
		}
		if err := w.queue.CreateResult(ctx, tx, result); err != nil {
			return err
		}

		status := enums.PaymentStatusFailed
		if verdict.Matched {
			status = enums.PaymentStatusReconciled
			if _, err := w.ledger.Append(ctx, tx, ledger.AppendInput{
				AccountID: payment.AccountID,
				PaymentID: payment.ID,
				EntryType: enums.LedgerEntryTypeCredit,
				Amount:    payment.Amount,
			}); err != nil {
				return err
			}
		}
		if err := w.payments.WithTx(tx).UpdateStatus(ctx, payment.ID, status); err != nil {
			return err
		}
		return w.queue.Complete(ctx, tx, job.ID, w.id)
	})
}

func (w *Worker) failAttempt(ctx context.Context, job *models.ReconJob, reason, metricReason string) {
	w.metrics.IncFailed(metricReason)
	updated, err := w.queue.Fail(ctx, job.ID, w.id, reason)
	if err != nil {
		if pkgerrors.HasCode(err, pkgerrors.CodeLeaseLost) {
			w.metrics.IncLeaseLost()
			w.logg.Warn(ctx, "lease lost before failure could be recorded")
			return
		}
		w.logg.Error(ctx, "failed to record attempt failure", err)
		return
	}
	if updated.Status == enums.ReconJobStatusFailed {
		w.metrics.IncDeadLettered()
		w.logg.Error(ctx, "reconciliation job dead-lettered",
			pkgerrors.New(pkgerrors.CodeDeadLetter, reason))
		return
	}
	w.logg.Warn(ctx, "reconciliation attempt failed, job released for retry")
}

func (w *Worker) observe(start time.Time, outcome string) {
	w.metrics.ObserveDuration(outcome, w.now().Sub(start))
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func nextBackoff(current, base, max time.Duration) time.Duration {
	if current <= 0 {
		current = base
	}
	next := current * 2
	if next > max {
		return max
	}
	return next
}

func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	jitter := time.Duration(rand.Int63n(int64(jitterWindow)))
	return d + jitter
}
