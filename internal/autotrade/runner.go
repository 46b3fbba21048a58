// Package autotrade executes recommendations for agents that opted into
// unattended trading once their next analysis time has come.
package autotrade

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"trading-arena/internal/analysis"
	"trading-arena/internal/domain"
	"trading-arena/internal/idhash"
	"trading-arena/internal/ledger"
	"trading-arena/internal/observability"
	"trading-arena/internal/storage"
)

// Analyzer produces a recommendation for an agent.
type Analyzer interface {
	Analyze(ctx context.Context, req analysis.Request) (*analysis.Result, error)
}

// Executor applies a trade to an agent's ledger.
type Executor interface {
	ApplyTrade(ctx context.Context, agentID string, req ledger.TradeRequest) (*ledger.TradeResult, error)
}

// Outcome of one agent in a sweep.
type Outcome string

const (
	OutcomeExecuted Outcome = "executed"
	OutcomeHeld     Outcome = "held"
	OutcomeSkipped  Outcome = "skipped" // analysis or trade rejected by a domain rule
	OutcomeFailed   Outcome = "failed"
)

// AgentRun records what happened to one agent.
type AgentRun struct {
	AgentID        string
	Outcome        Outcome
	Recommendation *domain.Recommendation
	Trade          *domain.Trade
	Err            error
}

// Report summarizes one sweep.
type Report struct {
	StartedAt time.Time
	Duration  time.Duration
	Runs      []AgentRun
}

// Count returns how many agents ended with outcome o.
func (r *Report) Count(o Outcome) int {
	n := 0
	for _, run := range r.Runs {
		if run.Outcome == o {
			n++
		}
	}
	return n
}

// Runner sweeps agents that are due for unattended analysis.
type Runner struct {
	repo          storage.Repository
	analyzer      Analyzer
	executor      Executor
	pollInterval  time.Duration
	minConfidence float64
	now           func() time.Time
	logger        *log.Logger
}

// RunnerOptions contains configuration for creating a Runner.
type RunnerOptions struct {
	Repository    storage.Repository
	Analyzer      Analyzer
	Executor      Executor
	PollInterval  time.Duration // Default: 1m
	MinConfidence float64       // recommendations below this are not executed
	Now           func() time.Time
	Logger        *log.Logger
}

// NewRunner creates a new auto-trade runner.
func NewRunner(opts RunnerOptions) *Runner {
	pollInterval := opts.PollInterval
	if pollInterval <= 0 {
		pollInterval = time.Minute
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Runner{
		repo:          opts.Repository,
		analyzer:      opts.Analyzer,
		executor:      opts.Executor,
		pollInterval:  pollInterval,
		minConfidence: opts.MinConfidence,
		now:           now,
		logger:        logger,
	}
}

// Run sweeps immediately and then on every poll interval.
// It blocks until context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Printf("runner started, poll interval: %v", r.pollInterval)

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		if _, err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
			r.logger.Printf("sweep failed: %v", err)
		}

		select {
		case <-ctx.Done():
			r.logger.Println("runner stopping...")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce processes every agent due at the current time, one at a time.
// An agent's failure never stops the sweep; its schedule still advances so
// a persistent failure is retried at the next interval rather than on
// every poll.
func (r *Runner) RunOnce(ctx context.Context) (*Report, error) {
	start := r.now().UTC()
	report := &Report{StartedAt: start}

	due, err := r.repo.Agents().ListDueForAutoTrade(ctx, start)
	if err != nil {
		observability.RecordAutoTradeRun("error", float64(start.Unix()))
		return nil, fmt.Errorf("list due agents: %w", err)
	}

	for _, agent := range due {
		if ctx.Err() != nil {
			break
		}
		run := r.runAgent(ctx, agent)
		if err := r.advance(ctx, agent.ID); err != nil {
			r.logger.Printf("agent %s: advance schedule: %v", agent.ID, err)
		}
		observability.RecordAutoTradeAgent(string(run.Outcome))
		report.Runs = append(report.Runs, run)
	}

	report.Duration = r.now().Sub(start)
	observability.RecordAutoTradeRun("ok", float64(start.Unix()))
	if len(due) > 0 {
		r.logger.Printf("sweep: %d due, %d executed, %d held, %d skipped, %d failed",
			len(due), report.Count(OutcomeExecuted), report.Count(OutcomeHeld),
			report.Count(OutcomeSkipped), report.Count(OutcomeFailed))
	}
	return report, ctx.Err()
}

func (r *Runner) runAgent(ctx context.Context, agent *domain.Agent) AgentRun {
	run := AgentRun{AgentID: agent.ID}

	res, err := r.analyzer.Analyze(ctx, analysis.Request{UserID: agent.UserID, AgentID: agent.ID})
	if err != nil {
		return r.fail(run, "analyze", err)
	}
	rec := res.Recommendation
	run.Recommendation = rec

	if !rec.Action.Executable() || rec.Quantity <= 0 {
		run.Outcome = OutcomeHeld
		return run
	}
	if !rec.Forced && rec.Confidence < r.minConfidence {
		r.logger.Printf("agent %s: confidence %.2f below %.2f, holding", agent.ID, rec.Confidence, r.minConfidence)
		run.Outcome = OutcomeHeld
		return run
	}

	tr, err := r.executor.ApplyTrade(ctx, agent.ID, ledger.TradeRequest{
		Action:     rec.Action,
		Ticker:     rec.Ticker,
		Quantity:   rec.Quantity,
		Price:      rec.Price,
		RequestKey: idhash.ComputeAutoTradeKey(agent.ID, rec.ID),
	})
	if err != nil {
		return r.fail(run, "execute", err)
	}

	run.Trade = tr.Trade
	run.Outcome = OutcomeExecuted
	r.logger.Printf("agent %s: executed %s %d %s at %s",
		agent.ID, rec.Action, rec.Quantity, rec.Ticker, rec.Price.StringFixed(2))
	return run
}

func (r *Runner) fail(run AgentRun, stage string, err error) AgentRun {
	run.Err = err
	var derr *domain.Error
	if errors.As(err, &derr) {
		run.Outcome = OutcomeSkipped
	} else {
		run.Outcome = OutcomeFailed
	}
	r.logger.Printf("agent %s: %s: %v", run.AgentID, stage, err)
	return run
}

// advance moves next_auto_analysis_at one interval past now, or clears it
// if the agent turned auto-execution off meanwhile.
func (r *Runner) advance(ctx context.Context, agentID string) error {
	now := r.now().UTC()
	return r.repo.InAgentTx(context.WithoutCancel(ctx), agentID, func(ctx context.Context, tx storage.Repository) error {
		agent, err := tx.Agents().GetByID(ctx, agentID)
		if err != nil {
			return err
		}
		interval := agent.AutoInterval.Duration()
		if !agent.AutoExecute || interval <= 0 {
			agent.NextAutoAnalysisAt = nil
		} else {
			next := now.Add(interval)
			agent.NextAutoAnalysisAt = &next
		}
		agent.UpdatedAt = now
		return tx.Agents().Update(ctx, agent)
	})
}
