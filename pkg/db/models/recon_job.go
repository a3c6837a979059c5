package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/payrecon-backend/pkg/enums"
)

// ReconJob is the unit of reconciliation work paired 1:1 with a payment.
// LeaseHolder and LeaseExpiresAt encode a lease, not a lock: an in_progress
// job whose lease has expired is claimable again.
type ReconJob struct {
	ID             uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	PaymentID      uuid.UUID            `gorm:"column:payment_id;type:uuid;not null;uniqueIndex" json:"paymentId"`
	Status         enums.ReconJobStatus `gorm:"column:status;size:50;not null;default:'pending';index" json:"status"`
	Attempts       int                  `gorm:"column:attempts;not null;default:0" json:"attempts"`
	LeaseHolder    *string              `gorm:"column:lease_holder;size:255" json:"leaseHolder,omitempty"`
	LeaseExpiresAt *time.Time           `gorm:"column:lease_expires_at" json:"leaseExpiresAt,omitempty"`
	NextAttemptAt  *time.Time           `gorm:"column:next_attempt_at" json:"nextAttemptAt,omitempty"`
	LastError      *string              `gorm:"column:last_error" json:"lastError,omitempty"`
	CreatedAt      time.Time            `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt      time.Time            `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

func (ReconJob) TableName() string {
	return "recon_jobs"
}