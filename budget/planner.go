/*
planner.go - Parallel simulation runs

PURPOSE:
  Under the capped refill policy every category is independent, so the
  Planner builds and simulates each category on its own goroutine. The
  slush-fund policy couples categories and chains months, so it runs
  sequentially through the engine.

CONCURRENCY:
  - errgroup with SetLimit bounds the number of categories in flight
  - the first failing category cancels the rest
  - results are collected under a mutex, then laid out in one pass

  The per-category work is a pure function of (transactions, config,
  window), so a parallel run produces exactly the sequential result.

SEE ALSO:
  - generic/engine.go: Prepare and the sequential Run
*/
package budget

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/warp/envelope-engine/generic"
	"golang.org/x/sync/errgroup"
)

// Planner runs simulations, fanning capped refill out across categories.
type Planner struct {
	Engine *generic.SimulationEngine

	// Parallelism caps concurrent categories; 0 means GOMAXPROCS.
	Parallelism int

	Logger *slog.Logger
}

// NewPlanner creates a planner over a ledger.
func NewPlanner(ledger generic.Ledger, opts generic.CalendarOptions, parallelism int, logger *slog.Logger) *Planner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Planner{
		Engine:      &generic.SimulationEngine{Ledger: ledger, Calendar: opts},
		Parallelism: parallelism,
		Logger:      logger,
	}
}

// Simulate runs one simulation.
func (p *Planner) Simulate(ctx context.Context, in generic.SimulationInput) (*generic.SimulationResult, error) {
	start := time.Now()
	log := p.Logger.With("policy", in.Policy)

	var (
		result *generic.SimulationResult
		err    error
	)
	if in.Policy == generic.PolicyCappedRefill {
		result, err = p.simulateParallel(ctx, in)
	} else {
		result, err = p.Engine.Run(ctx, in)
	}
	if err != nil {
		log.Error("simulation failed", "error", err)
		return nil, err
	}

	failed := result.FailedChecks()
	for where, checks := range failed {
		for _, c := range checks {
			log.Warn("check failed", "at", where, "check", c.Name, "result", c.Result)
		}
	}
	log.Info("simulation complete",
		"period", result.Period.String(),
		"categories", len(result.Calendars),
		"failed_checks", len(failed),
		"duration", time.Since(start))
	return result, nil
}

func (p *Planner) simulateParallel(ctx context.Context, in generic.SimulationInput) (*generic.SimulationResult, error) {
	prep, err := p.Engine.Prepare(ctx, in)
	if err != nil {
		return nil, err
	}

	grouped := generic.GroupByCategory(prep.Transactions)
	opts := prep.RefillOptions(in.StartEmpty)

	limit := p.Parallelism
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}

	var (
		mu        sync.Mutex
		calendars = make(map[generic.CategoryID]*generic.DeltaCalendar, len(prep.CategoryIDs))
		timelines = make(map[generic.CategoryID]*generic.EnvelopeTimeline, len(prep.CategoryIDs))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, id := range prep.CategoryIDs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			cal, err := generic.BuildDeltaCalendar(id, grouped[id], prep.Period, p.Engine.Calendar)
			if err != nil {
				return fmt.Errorf("category %s: %w", id, err)
			}
			tl, err := generic.SimulateCappedRefill(cal, in.Envelopes[id], opts)
			if err != nil {
				return fmt.Errorf("category %s: %w", id, err)
			}
			p.Logger.Debug("category simulated",
				"category", id,
				"days", cal.Len(),
				"final", tl.Final().String(),
				"truncated", cal.Truncated.String())

			mu.Lock()
			defer mu.Unlock()
			calendars[id] = cal
			timelines[id] = tl
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &generic.SimulationResult{
		Policy:    generic.PolicyCappedRefill,
		Period:    prep.Period,
		Calendars: calendars,
		Timelines: timelines,
		Dataset:   generic.TimelinesToDataset(timelines),
	}, nil
}

// NewRun packages a result for a RunStore under a fresh ID.
func NewRun(result *generic.SimulationResult) *generic.SimulationRun {
	run := &generic.SimulationRun{
		ID:        uuid.New().String(),
		Policy:    result.Policy,
		Period:    result.Period,
		CreatedAt: time.Now().UTC(),
		Dataset:   result.Dataset,
		Failed:    result.FailedChecks(),
	}
	if result.Slush != nil {
		run.Snapshots = result.Slush.Snapshots
	}
	return run
}
