package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/payrecon-backend/pkg/enums"
)

// Payment is a requested money movement. Created once by intake; only the
// reconciliation worker moves its status afterward. Never deleted.
type Payment struct {
	ID             uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	IdempotencyKey string              `gorm:"column:idempotency_key;size:255;not null;uniqueIndex" json:"idempotencyKey"`
	AccountID      string              `gorm:"column:account_id;size:255;not null;index" json:"accountId"`
	Amount         decimal.Decimal     `gorm:"column:amount;type:numeric(15,2);not null" json:"amount"`
	Currency       string              `gorm:"column:currency;size:3;not null;default:'USD'" json:"currency"`
	Status         enums.PaymentStatus `gorm:"column:status;size:50;not null;default:'pending'" json:"status"`
	Description    *string             `gorm:"column:description" json:"description,omitempty"`
	CreatedAt      time.Time           `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt      time.Time           `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

func (Payment) TableName() string {
	return "payments"
}
