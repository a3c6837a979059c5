package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/payrecon-backend/pkg/enums"
)

// ReconciliationResult is the immutable outcome of one completed attempt.
// Written exactly once per terminal job outcome.
type ReconciliationResult struct {
	ID                uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	PaymentID         uuid.UUID               `gorm:"column:payment_id;type:uuid;not null;index" json:"paymentId"`
	ReconJobID        uuid.UUID               `gorm:"column:recon_job_id;type:uuid;not null;uniqueIndex" json:"reconJobId"`
	Status            enums.ReconResultStatus `gorm:"column:status;size:50;not null" json:"status"`
	Matched           bool                    `gorm:"column:matched;not null" json:"matched"`
	DiscrepancyAmount *decimal.Decimal        `gorm:"column:discrepancy_amount;type:numeric(15,2)" json:"discrepancyAmount,omitempty"`
	Notes             *string                 `gorm:"column:notes" json:"notes,omitempty"`
	CreatedAt         time.Time               `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
}

func (ReconciliationResult) TableName() string {
	return "reconciliation_results"
}
