package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/payrecon-backend/pkg/enums"
)

// LedgerEntry is one immutable movement in an account's history. Ordered by
// (created_at, id), each balance_after equals the previous balance_after plus
// this entry's signed amount.
type LedgerEntry struct {
	ID           uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	AccountID    string                `gorm:"column:account_id;size:255;not null;index" json:"accountId"`
	PaymentID    uuid.UUID             `gorm:"column:payment_id;type:uuid;not null;index" json:"paymentId"`
	EntryType    enums.LedgerEntryType `gorm:"column:entry_type;size:50;not null" json:"entryType"`
	Amount       decimal.Decimal       `gorm:"column:amount;type:numeric(15,2);not null" json:"amount"`
	BalanceAfter decimal.Decimal       `gorm:"column:balance_after;type:numeric(15,2);not null" json:"balanceAfter"`
	CreatedAt    time.Time             `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
}

func (LedgerEntry) TableName() string {
	return "ledger_entries"
}

// SignedAmount applies the entry type's sign to the stored positive amount.
func (e LedgerEntry) SignedAmount() decimal.Decimal {
	if e.EntryType == enums.LedgerEntryTypeDebit {
		return e.Amount.Neg()
	}
	return e.Amount
}
