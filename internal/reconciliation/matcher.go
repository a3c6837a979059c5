package reconciliation

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/payrecon-backend/pkg/db/models"
	"github.com/angelmondragon/payrecon-backend/pkg/enums"
	"github.com/shopspring/decimal"
)

// Verdict is a matcher's judgement on one payment. Status is matched or
// mismatched; transport or source failures are returned as errors instead so
// the attempt can retry.
type Verdict struct {
	Status            enums.ReconResultStatus
	Matched           bool
	DiscrepancyAmount *decimal.Decimal
	Notes             *string
}

// Matcher checks a payment against the external source of truth.
type Matcher interface {
	Match(ctx context.Context, payment models.Payment) (Verdict, error)
}

// StaticMatcher verifies payments against a fixed set of source records
// keyed by idempotency key. Keys absent from the records are taken as
// agreeing with the payment. Latency simulates the round trip to the source
// and respects context cancellation.
type StaticMatcher struct {
	Records map[string]decimal.Decimal
	Latency time.Duration
}

func (m *StaticMatcher) Match(ctx context.Context, payment models.Payment) (Verdict, error) {
	if m.Latency > 0 {
		timer := time.NewTimer(m.Latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return Verdict{}, ctx.Err()
		case <-timer.C:
		}
	}

	expected, ok := m.Records[payment.IdempotencyKey]
	if !ok || expected.Equal(payment.Amount) {
		return Verdict{Status: enums.ReconResultStatusMatched, Matched: true}, nil
	}

	discrepancy := payment.Amount.Sub(expected)
	notes := fmt.Sprintf("source reports %s, payment recorded %s",
		expected.StringFixed(2), payment.Amount.StringFixed(2))
	return Verdict{
		Status:            enums.ReconResultStatusMismatched,
		Matched:           false,
		DiscrepancyAmount: &discrepancy,
		Notes:             &notes,
	}, nil
}
