package main

import (
	"context"
	"time"

	"github.com/angelmondragon/payrecon-backend/internal/reconciliation"
	"github.com/angelmondragon/payrecon-backend/pkg/config"
	"github.com/angelmondragon/payrecon-backend/pkg/db/models"
)

// timeoutMatcher bounds every provider call with the configured deadline.
type timeoutMatcher struct {
	inner   reconciliation.Matcher
	timeout time.Duration
}

func (m *timeoutMatcher) Match(ctx context.Context, payment models.Payment) (reconciliation.Verdict, error) {
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}
	return m.inner.Match(ctx, payment)
}

// newMatcher wires the active provider. Until a real provider integration
// lands, every payment is verified against the static matcher, which treats
// unknown payments as matched.
func newMatcher(cfg *config.Config) reconciliation.Matcher {
	return &timeoutMatcher{
		inner:   &reconciliation.StaticMatcher{},
		timeout: cfg.Reconciliation.MatcherTimeout,
	}
}
