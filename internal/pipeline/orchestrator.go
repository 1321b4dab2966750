// Package pipeline runs order documents from a category inbox through parse,
// reconciliation, location enrichment and TMS submission.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/order-intake/constants"
	"github.com/joseph-ayodele/order-intake/internal/common"
	"github.com/joseph-ayodele/order-intake/internal/entity"
	"github.com/joseph-ayodele/order-intake/internal/extract"
	"github.com/joseph-ayodele/order-intake/internal/ledger"
	"github.com/joseph-ayodele/order-intake/internal/location"
	"github.com/joseph-ayodele/order-intake/internal/repository"
	"github.com/joseph-ayodele/order-intake/internal/runlock"
	"github.com/joseph-ayodele/order-intake/internal/tms"
)

// Deps are the collaborators shared by every category.
type Deps struct {
	Orders    repository.OrderRepository
	Locations location.Finder
	Remote    repository.TMSRepository
	API       tms.API
	// Fallback recovers addresses for stops the resolver could not place. Optional.
	Fallback  extract.AddressFallback
	Overrides location.Overrides
	Locker    runlock.Locker
	TZOffset  string
	Workers   int
}

type Orchestrator struct {
	deps       Deps
	resolver   *location.Resolver
	strategies map[constants.Category]*Strategy
	now        func() time.Time
	logger     *slog.Logger
}

func New(deps Deps, strategies map[constants.Category]*Strategy, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Locker == nil {
		deps.Locker = runlock.Noop{}
	}
	if deps.Workers < 1 {
		deps.Workers = 1
	}
	if deps.TZOffset == "" {
		deps.TZOffset = "-0600"
	}
	return &Orchestrator{
		deps:       deps,
		resolver:   location.NewResolver(deps.Locations, deps.Overrides, logger),
		strategies: strategies,
		now:        time.Now,
		logger:     logger,
	}
}

// RunSelection parses a comma-separated category selector and runs each
// category in order. It stops at the first stage error and returns the
// reports gathered so far.
func (o *Orchestrator) RunSelection(ctx context.Context, selector string) ([]entity.BatchReport, error) {
	cats, err := constants.ParseSelector(selector)
	if err != nil {
		return nil, common.NewAppError("INVALID_SELECTOR", err.Error(), common.ErrInvalidInput)
	}
	reports := make([]entity.BatchReport, 0, len(cats))
	for _, cat := range cats {
		rep, err := o.Run(ctx, cat)
		reports = append(reports, rep)
		if err != nil {
			return reports, err
		}
		if rep.Cancelled() {
			return reports, ctx.Err()
		}
	}
	return reports, nil
}

// Run processes one category inbox. Per-record failures end up in the
// report; only stage errors and cancellation are returned.
func (o *Orchestrator) Run(ctx context.Context, cat constants.Category) (entity.BatchReport, error) {
	strategy, ok := o.strategies[cat]
	if !ok {
		return entity.BatchReport{}, common.NewAppError("UNKNOWN_CATEGORY", fmt.Sprintf("no strategy for %s", cat), common.ErrInvalidInput)
	}

	release, err := o.deps.Locker.Acquire(ctx, string(cat))
	if err != nil {
		return entity.BatchReport{}, err
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			o.logger.Warn("pipeline.lock.release_failed", "category", cat, "error", err)
		}
	}()

	rc := RunContext{
		RunID:    uuid.NewString(),
		Category: cat,
		Strategy: strategy,
		Ledger:   ledger.New(),
		Started:  o.now(),
	}
	ctx = common.WithRunID(ctx, rc.RunID)
	log := o.logger.With("run_id", rc.RunID, "category", cat)
	log.Info("pipeline.run.start", "inbox", strategy.Paths.Inbox)

	stages := []struct {
		name string
		fn   func(context.Context, RunContext) (RunContext, error)
	}{
		{"scan", o.scanStage},
		{"extract", o.extractStage},
		{"parse", o.parseStage},
		{"insert", o.insertStage},
		{"enrich", o.enrichStage},
		{"submit", o.submitStage},
	}
	for _, st := range stages {
		if ctx.Err() != nil {
			rc.Cancelled = true
			break
		}
		start := o.now()
		log.Debug("pipeline.stage.start", "stage", st.name)
		rc, err = st.fn(ctx, rc)
		if err != nil {
			var se *common.StageError
			if !errors.As(err, &se) {
				err = &common.StageError{Stage: st.name, Err: err}
			}
			log.Error("pipeline.stage.failed", "stage", st.name, "error", err)
			return rc.Report(o.now()), err
		}
		log.Debug("pipeline.stage.done", "stage", st.name, "elapsed_ms", o.now().Sub(start).Milliseconds())
		if rc.Cancelled {
			break
		}
	}

	rep := rc.Report(o.now())
	log.Info("pipeline.run.done", "summary", rep.Summary(), "failed", rep.Failed(), "cancelled", rep.Cancelled())
	if rep.Cancelled() {
		return rep, ctx.Err()
	}
	return rep, nil
}
