// Package plan orders jobs into execution waves from their dependsOn
// edges. Jobs in the same wave have no path between them and may run
// concurrently; a wave starts only after every earlier wave finished.
package plan

import (
	"fmt"
	"sort"
	"strings"

	"github.com/opnlabs/conveyor/pkg/models"
)

type Plan struct {
	Waves [][]models.Job

	dependents map[string][]string
}

// Build computes the wave ordering for jobs. It rejects duplicate job
// names, dependsOn edges to unknown jobs, and dependency cycles.
func Build(jobs []models.Job) (*Plan, error) {
	byName := make(map[string]models.Job, len(jobs))
	for _, job := range jobs {
		if _, ok := byName[job.Name]; ok {
			return nil, fmt.Errorf("duplicate job name %q", job.Name)
		}
		byName[job.Name] = job
	}

	indegree := make(map[string]int, len(jobs))
	dependents := make(map[string][]string, len(jobs))
	for _, job := range jobs {
		indegree[job.Name] = len(job.DependsOn)
		for _, dep := range job.DependsOn {
			if _, ok := byName[dep]; !ok {
				return nil, fmt.Errorf("job %q depends on unknown job %q", job.Name, dep)
			}
			dependents[dep] = append(dependents[dep], job.Name)
		}
	}

	p := &Plan{dependents: dependents}
	placed := 0
	ready := make([]string, 0, len(jobs))
	for _, job := range jobs {
		if indegree[job.Name] == 0 {
			ready = append(ready, job.Name)
		}
	}

	for len(ready) > 0 {
		wave := make([]models.Job, 0, len(ready))
		for _, name := range ready {
			wave = append(wave, byName[name])
		}
		p.Waves = append(p.Waves, wave)
		placed += len(wave)

		var next []string
		for _, name := range ready {
			for _, dependent := range dependents[name] {
				indegree[dependent]--
				if indegree[dependent] == 0 {
					next = append(next, dependent)
				}
			}
		}
		sort.Strings(next)
		ready = next
	}

	if placed != len(jobs) {
		remaining := make([]string, 0, len(jobs)-placed)
		for name, degree := range indegree {
			if degree > 0 {
				remaining = append(remaining, name)
			}
		}
		sort.Strings(remaining)
		return nil, fmt.Errorf("dependency cycle involving %s", strings.Join(remaining, ", "))
	}

	return p, nil
}

// Dependents returns the jobs that directly depend on name.
func (p *Plan) Dependents(name string) []string {
	return p.dependents[name]
}

// TransitiveDependents returns every job reachable from name through
// dependsOn edges, the jobs a failure of name reaches.
func (p *Plan) TransitiveDependents(name string) []string {
	seen := make(map[string]bool)
	var result []string
	queue := append([]string(nil), p.dependents[name]...)
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if seen[current] {
			continue
		}
		seen[current] = true
		result = append(result, current)
		queue = append(queue, p.dependents[current]...)
	}
	sort.Strings(result)
	return result
}

// Jobs returns every planned job in wave order.
func (p *Plan) Jobs() []models.Job {
	var jobs []models.Job
	for _, wave := range p.Waves {
		jobs = append(jobs, wave...)
	}
	return jobs
}
