package ledger

import (
	"context"
	"errors"

	"github.com/angelmondragon/payrecon-backend/internal/repo"
	"github.com/angelmondragon/payrecon-backend/pkg/db/models"
	"gorm.io/gorm"
)

// Repository manages persistence for ledger entries.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	AcquireAccountLock(ctx context.Context, accountID string) error
	Create(ctx context.Context, entry *models.LedgerEntry) error
	Latest(ctx context.Context, accountID string) (*models.LedgerEntry, error)
	ListByAccount(ctx context.Context, accountID string) ([]models.LedgerEntry, error)
}

type repository struct {
	repo.Base
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{Base: repo.NewBase(tx)}
}

// AcquireAccountLock blocks until the surrounding transaction holds the
// account's append lock, released automatically at commit or rollback. The
// lock exists independent of entry rows: a FOR UPDATE on the latest entry
// locks nothing for an account with no entries, and under READ COMMITTED a
// blocked row locker resumes against a snapshot that misses the winner's
// insert.
func (r *repository) AcquireAccountLock(ctx context.Context, accountID string) error {
	db := r.DB(ctx)
	if db.Dialector.Name() != "postgres" {
		// sqlite serializes writes on its own
		return nil
	}
	return db.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", accountID).Error
}

func (r *repository) Create(ctx context.Context, entry *models.LedgerEntry) error {
	return r.DB(ctx).Create(entry).Error
}

func (r *repository) Latest(ctx context.Context, accountID string) (*models.LedgerEntry, error) {
	var entry models.LedgerEntry
	err := r.DB(ctx).
		Where("account_id = ?", accountID).
		Order("created_at DESC").
		Order("id DESC").
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

func (r *repository) ListByAccount(ctx context.Context, accountID string) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	if err := r.DB(ctx).
		Where("account_id = ?", accountID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
