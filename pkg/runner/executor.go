package runner

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/opnlabs/conveyor/pkg/condition"
	"github.com/opnlabs/conveyor/pkg/models"
	"github.com/opnlabs/conveyor/pkg/plan"
	"github.com/opnlabs/conveyor/pkg/store"
)

// JobRunner runs a single job to completion. The docker runner is the
// production implementation; tests substitute their own.
type JobRunner interface {
	Run(ctx context.Context, job models.Job) error
}

// JobRunnerFunc adapts a function to the JobRunner interface.
type JobRunnerFunc func(ctx context.Context, job models.Job) error

func (f JobRunnerFunc) Run(ctx context.Context, job models.Job) error {
	return f(ctx, job)
}

// Executor walks a plan wave by wave. Jobs within a wave run
// concurrently; a job's condition is evaluated against the recorded
// outcomes of its dependencies just before it would start.
type Executor struct {
	runner    JobRunner
	variables map[string]string
	outcomes  store.Store
}

func NewExecutor(runner JobRunner, variables map[string]string) *Executor {
	return &Executor{
		runner:    runner,
		variables: variables,
		outcomes:  store.NewMemStore(),
	}
}

// Execute runs every job in p. The returned map records a terminal
// outcome for every planned job. The error is non-nil if any job
// failed or the run could not proceed.
func (e *Executor) Execute(ctx context.Context, p *plan.Plan) (map[string]condition.Outcome, error) {
	for _, wave := range p.Waves {
		var eg errgroup.Group
		for _, job := range wave {
			job := job
			eg.Go(func() error {
				return e.executeJob(ctx, job)
			})
		}
		if err := eg.Wait(); err != nil {
			return e.collectOutcomes(p), err
		}
	}

	outcomes := e.collectOutcomes(p)
	if failed := filterOutcomes(outcomes, condition.Failed); len(failed) > 0 {
		return outcomes, fmt.Errorf("jobs failed: %s", strings.Join(failed, ", "))
	}
	return outcomes, nil
}

// executeJob returns an error only when the run itself cannot continue;
// an individual job failure is recorded as an outcome instead.
func (e *Executor) executeJob(ctx context.Context, job models.Job) error {
	scope, err := e.scopeFor(job)
	if err != nil {
		return err
	}

	run, err := condition.Evaluate(job.Condition, scope)
	if err != nil {
		return fmt.Errorf("evaluating condition for job %s: %w", job.Name, err)
	}
	if !run {
		return e.record(job.Name, condition.Skipped)
	}

	jobCtx, cancel := context.WithTimeout(ctx, time.Duration(job.Timeout())*time.Minute)
	defer cancel()

	if err := e.runner.Run(jobCtx, job); err != nil {
		if ctx.Err() != nil {
			if recordErr := e.record(job.Name, condition.Canceled); recordErr != nil {
				return recordErr
			}
			return ctx.Err()
		}
		return e.record(job.Name, condition.Failed)
	}
	return e.record(job.Name, condition.Succeeded)
}

func (e *Executor) scopeFor(job models.Job) (condition.Scope, error) {
	outcomes := make(map[string]condition.Outcome, len(job.DependsOn))
	for _, dep := range job.DependsOn {
		outcome, err := store.JobOutcome(e.outcomes, dep)
		if err != nil {
			return condition.Scope{}, fmt.Errorf("job %s: dependency %s has no recorded outcome", job.Name, dep)
		}
		outcomes[dep] = outcome
	}
	return condition.Scope{
		Dependencies: []string(job.DependsOn),
		Outcomes:     outcomes,
		Variables:    e.variables,
	}, nil
}

func (e *Executor) record(name string, outcome condition.Outcome) error {
	return store.RecordOutcome(e.outcomes, name, outcome)
}

func (e *Executor) collectOutcomes(p *plan.Plan) map[string]condition.Outcome {
	outcomes := make(map[string]condition.Outcome)
	for _, job := range p.Jobs() {
		if outcome, err := store.JobOutcome(e.outcomes, job.Name); err == nil {
			outcomes[job.Name] = outcome
		}
	}
	return outcomes
}

func filterOutcomes(outcomes map[string]condition.Outcome, match condition.Outcome) []string {
	var names []string
	for name, outcome := range outcomes {
		if outcome == match {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
