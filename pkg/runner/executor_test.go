package runner

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/opnlabs/conveyor/pkg/condition"
	"github.com/opnlabs/conveyor/pkg/models"
	"github.com/opnlabs/conveyor/pkg/plan"
)

// fakeRunner records the jobs it ran and fails the ones listed in
// failing.
type fakeRunner struct {
	mu      sync.Mutex
	ran     []string
	failing map[string]bool
}

func (f *fakeRunner) Run(ctx context.Context, job models.Job) error {
	f.mu.Lock()
	f.ran = append(f.ran, job.Name)
	f.mu.Unlock()
	if f.failing[job.Name] {
		return errors.New("job failed")
	}
	return nil
}

func (f *fakeRunner) didRun(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ran := range f.ran {
		if ran == name {
			return true
		}
	}
	return false
}

func testJob(name string, cond string, deps ...string) models.Job {
	return models.Job{
		Name:      name,
		Condition: cond,
		DependsOn: models.DependsOn(deps),
		Steps:     []models.Step{{Script: []string{"true"}}},
	}
}

func mustPlan(t *testing.T, jobs ...models.Job) *plan.Plan {
	t.Helper()
	p, err := plan.Build(jobs)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestExecuteAllSucceed(t *testing.T) {
	runner := &fakeRunner{}
	executor := NewExecutor(runner, nil)

	p := mustPlan(t,
		testJob("Build", ""),
		testJob("Analyze", "", "Build"),
		testJob("Test", "", "Build", "Analyze"),
	)

	outcomes, err := executor.Execute(context.Background(), p)
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"Build", "Analyze", "Test"} {
		if outcomes[name] != condition.Succeeded {
			t.Errorf("expected %s to succeed, got %s", name, outcomes[name])
		}
	}
}

func TestExecuteFailurePropagatesAsSkip(t *testing.T) {
	runner := &fakeRunner{failing: map[string]bool{"Build": true}}
	executor := NewExecutor(runner, nil)

	p := mustPlan(t,
		testJob("Build", ""),
		testJob("Test", "", "Build"),
	)

	outcomes, err := executor.Execute(context.Background(), p)
	if err == nil || !strings.Contains(err.Error(), "jobs failed: Build") {
		t.Errorf("expected a failure summary, got %v", err)
	}
	if outcomes["Build"] != condition.Failed {
		t.Errorf("expected Build failed, got %s", outcomes["Build"])
	}
	if outcomes["Test"] != condition.Skipped {
		t.Errorf("expected Test skipped, got %s", outcomes["Test"])
	}
	if runner.didRun("Test") {
		t.Error("Test ran even though its dependency failed")
	}
}

func TestExecuteAlwaysRunsAfterFailure(t *testing.T) {
	runner := &fakeRunner{failing: map[string]bool{"Build": true}}
	executor := NewExecutor(runner, nil)

	p := mustPlan(t,
		testJob("Build", ""),
		testJob("Cleanup", "always()", "Build"),
	)

	outcomes, _ := executor.Execute(context.Background(), p)
	if !runner.didRun("Cleanup") {
		t.Error("Cleanup should run regardless of the build outcome")
	}
	if outcomes["Cleanup"] != condition.Succeeded {
		t.Errorf("expected Cleanup succeeded, got %s", outcomes["Cleanup"])
	}
}

func TestExecuteConditionOnVariables(t *testing.T) {
	runner := &fakeRunner{}
	executor := NewExecutor(runner, map[string]string{"Skip.Tests": "true"})

	p := mustPlan(t,
		testJob("Build", ""),
		testJob("Test", "and(succeeded(), ne(variables['Skip.Tests'], 'true'))", "Build"),
	)

	outcomes, err := executor.Execute(context.Background(), p)
	if err != nil {
		t.Fatal(err)
	}
	if runner.didRun("Test") {
		t.Error("Test ran although Skip.Tests was set")
	}
	if outcomes["Test"] != condition.Skipped {
		t.Errorf("expected Test skipped, got %s", outcomes["Test"])
	}
}

func TestExecuteInvalidConditionAbortsRun(t *testing.T) {
	runner := &fakeRunner{}
	executor := NewExecutor(runner, nil)

	p := mustPlan(t, testJob("Build", "sometimes()"))

	_, err := executor.Execute(context.Background(), p)
	if err == nil || !strings.Contains(err.Error(), "evaluating condition") {
		t.Errorf("expected a condition error, got %v", err)
	}
}

func TestExecuteDependencyOrder(t *testing.T) {
	runner := &fakeRunner{}
	executor := NewExecutor(runner, nil)

	p := mustPlan(t,
		testJob("Build", ""),
		testJob("Test", "", "Build"),
	)

	if _, err := executor.Execute(context.Background(), p); err != nil {
		t.Fatal(err)
	}
	if len(runner.ran) != 2 || runner.ran[0] != "Build" || runner.ran[1] != "Test" {
		t.Errorf("expected Build before Test, got %v", runner.ran)
	}
}

func TestScript(t *testing.T) {
	job := models.Job{
		Name: "Build",
		Steps: []models.Step{
			{Script: []string{"make", "make install"}},
			{Template: "eng/analyze.yml"},
			{Script: []string{"make test"}},
		},
	}

	script := Script(job)
	if len(script) != 4 {
		t.Fatalf("expected 4 script lines, got %v", script)
	}
	if !strings.Contains(script[2], "eng/analyze.yml") {
		t.Errorf("template step should become a notice line, got %q", script[2])
	}
}
