package eviction

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/AzielCF/az-mediacache/mediacache/domain"
	pkgError "github.com/AzielCF/az-mediacache/pkg/error"
)

// Engine applies plans against a store. Deletes are independent and best
// effort: one failing delete is logged and the pass continues.
type Engine struct {
	mu      sync.RWMutex
	cfg     Config
	store   domain.Store
	clock   domain.Clock
	metrics Metrics
}

func NewEngine(cfg Config, store domain.Store, clock domain.Clock, metrics Metrics) *Engine {
	if clock == nil {
		clock = domain.SystemClock
	}
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	return &Engine{cfg: cfg, store: store, clock: clock, metrics: metrics}
}

func (e *Engine) Config() Config {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cfg
}

// SetConfig swaps the knobs used by subsequent passes.
func (e *Engine) SetConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return pkgError.ValidationError(err.Error())
	}
	e.mu.Lock()
	e.cfg = cfg
	e.mu.Unlock()
	return nil
}

// Enforce makes room for incoming bytes. Only a failing scan is returned as
// an error; quota shortfalls are logged and reported in the plan.
func (e *Engine) Enforce(ctx context.Context, incoming int64) (Plan, error) {
	return e.EnforceFor(ctx, "", incoming)
}

// EnforceFor makes room for a write of incoming bytes under id. An existing
// entry with that id is left out of the pass because the write replaces it.
func (e *Engine) EnforceFor(ctx context.Context, id string, incoming int64) (Plan, error) {
	entries, err := e.store.ScanAll(ctx)
	if err != nil {
		return Plan{}, pkgError.AsStorageFault("eviction scan", err)
	}

	cfg := e.Config()
	plan := cfg.PlanReplacing(entries, id, incoming, e.clock.Now())

	for _, victim := range plan.Victims {
		if err := e.store.Delete(ctx, victim.ID); err != nil {
			logrus.WithError(err).WithField("id", victim.ID).Warn("[EVICTION] Failed to delete entry, continuing")
			continue
		}
		e.metrics.Evicted(victim.Reason, victim.SizeBytes)
	}

	if len(plan.Victims) > 0 {
		logrus.WithFields(logrus.Fields{
			"expired":   plan.count(ReasonAge),
			"quota":     plan.count(ReasonQuota),
			"freed":     plan.FreedBytes(),
			"projected": plan.ProjectedTotal,
		}).Debug("[EVICTION] Pass completed")
	}

	if plan.Shortfall {
		overBy := plan.ProjectedTotal - cfg.MaxTotalBytes
		e.metrics.Shortfall(overBy)
		logrus.WithFields(logrus.Fields{
			"incoming":  incoming,
			"projected": plan.ProjectedTotal,
			"limit":     cfg.MaxTotalBytes,
		}).Warn("[EVICTION] Quota still exceeded after eviction, write proceeds anyway")
	}

	return plan, nil
}
