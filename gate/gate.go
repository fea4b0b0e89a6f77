// Package gate decides whether an organization's pipeline runs may proceed.
//
// The gate consults an entitlement Oracle. With no oracle configured the
// gate is open: every organization is entitled. Oracle failures fail open
// with a warning so a broken entitlement service cannot halt all scheduled
// work.
package gate

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/pipewheel/pipewheel/errors"
)

// Oracle answers whether an organization is entitled to run pipelines.
// Implementations are chosen at startup; the deployment decides which
// oracle (if any) applies.
type Oracle interface {
	IsEntitled(ctx context.Context, organizationID string) (bool, error)
}

// Gate wraps an Oracle with fail-open semantics and a rate limit on
// oracle calls.
type Gate struct {
	oracle  Oracle
	limiter *rate.Limiter
	logger  *zap.SugaredLogger
}

// New creates a gate over the given oracle. A nil oracle means the gate is
// always open. maxChecksPerMinute caps oracle calls; 0 disables the cap.
func New(oracle Oracle, maxChecksPerMinute int, logger *zap.SugaredLogger) *Gate {
	var limiter *rate.Limiter
	if maxChecksPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(maxChecksPerMinute)/60.0), maxChecksPerMinute)
	}

	return &Gate{
		oracle:  oracle,
		limiter: limiter,
		logger:  logger,
	}
}

// IsEntitled reports whether the organization may execute pipeline runs.
// A definitive false is the only answer that blocks execution: no oracle,
// a rate-limited check, and an oracle error all answer true.
func (g *Gate) IsEntitled(ctx context.Context, organizationID string) bool {
	if g.oracle == nil {
		return true
	}

	if g.limiter != nil && !g.limiter.Allow() {
		g.logger.Debugw("Entitlement check rate-limited, allowing run",
			"organization_id", organizationID)
		return true
	}

	entitled, err := g.oracle.IsEntitled(ctx, organizationID)
	if err != nil {
		// Fail open: a broken oracle must not stop every scheduled run
		g.logger.Warnw("Entitlement oracle error, allowing run",
			"organization_id", organizationID,
			"error", err)
		return true
	}

	if !entitled {
		g.logger.Infow("Organization is not entitled to run pipelines",
			"organization_id", organizationID,
			"error", errors.ErrNotEntitled)
	}
	return entitled
}
