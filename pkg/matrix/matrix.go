// Package matrix expands a job's matrix block into concrete jobs, one
// per surviving cell of the axis cross product.
package matrix

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/gosimple/slug"
	"github.com/opnlabs/conveyor/pkg/models"
)

// Expand returns the generated jobs for job. Jobs without a matrix
// block are returned unchanged as a single-element slice. Axes and
// values expand in declaration order, so output is deterministic.
func Expand(job models.Job) ([]models.Job, error) {
	if job.Matrix == nil {
		return []models.Job{job}, nil
	}

	include, err := compileFilters(job.Matrix.Filters.Include)
	if err != nil {
		return nil, fmt.Errorf("job %s: invalid include filter: %w", job.Name, err)
	}
	exclude, err := compileFilters(job.Matrix.Filters.Exclude)
	if err != nil {
		return nil, fmt.Errorf("job %s: invalid exclude filter: %w", job.Name, err)
	}

	cells := crossProduct(job.Matrix.Configs)
	jobs := make([]models.Job, 0, len(cells))
	for _, cell := range cells {
		if !cell.selected(include, exclude) {
			continue
		}
		if err := cell.rewrite(job.Matrix.Replace); err != nil {
			return nil, fmt.Errorf("job %s: %w", job.Name, err)
		}
		jobs = append(jobs, cell.apply(job))
	}
	if len(jobs) == 0 {
		return nil, fmt.Errorf("job %s: matrix filters removed every cell", job.Name)
	}
	return jobs, nil
}

// ExpandAll expands every matrix job in jobs. Edges that point at a
// matrix job are rewritten to its generated names, so depending on a
// matrix job means depending on every one of its cells.
func ExpandAll(jobs []models.Job) ([]models.Job, error) {
	generated := make(map[string][]string)
	var expanded []models.Job
	for _, job := range jobs {
		cells, err := Expand(job)
		if err != nil {
			return nil, err
		}
		if job.Matrix != nil {
			names := make([]string, len(cells))
			for i, c := range cells {
				names[i] = c.Name
			}
			generated[job.Name] = names
		}
		expanded = append(expanded, cells...)
	}
	for i := range expanded {
		expanded[i].DependsOn = rewriteEdges(expanded[i].DependsOn, generated)
	}
	return expanded, nil
}

func rewriteEdges(deps models.DependsOn, generated map[string][]string) models.DependsOn {
	changed := false
	rewritten := make(models.DependsOn, 0, len(deps))
	for _, dep := range deps {
		if names, ok := generated[dep]; ok {
			rewritten = append(rewritten, names...)
			changed = true
			continue
		}
		rewritten = append(rewritten, dep)
	}
	if !changed {
		return deps
	}
	return rewritten
}

type pair struct {
	axis  string
	value string
}

type cell []pair

func crossProduct(axes []models.MatrixAxis) []cell {
	cells := []cell{nil}
	for _, axis := range axes {
		next := make([]cell, 0, len(cells)*len(axis.Values))
		for _, base := range cells {
			for _, value := range axis.Values {
				extended := make(cell, len(base), len(base)+1)
				copy(extended, base)
				next = append(next, append(extended, pair{axis: axis.Name, value: value}))
			}
		}
		cells = next
	}
	return cells
}

// String renders the cell as "axis=value,axis=value". Filters match
// against this form.
func (c cell) String() string {
	parts := make([]string, len(c))
	for i, p := range c {
		parts[i] = p.axis + "=" + p.value
	}
	return strings.Join(parts, ",")
}

// A cell survives if it matches every include filter and no exclude
// filter.
func (c cell) selected(include, exclude []*regexp.Regexp) bool {
	s := c.String()
	for _, re := range include {
		if !re.MatchString(s) {
			return false
		}
	}
	for _, re := range exclude {
		if re.MatchString(s) {
			return false
		}
	}
	return true
}

// rewrite applies the replace expressions to each cell value. Filters
// see the original values; replacements happen afterwards.
func (c cell) rewrite(expressions []string) error {
	for i := range c {
		rewritten, err := Replace(c[i].value, expressions)
		if err != nil {
			return err
		}
		c[i].value = rewritten
	}
	return nil
}

func (c cell) apply(job models.Job) models.Job {
	generated := job
	generated.Matrix = nil

	parts := make([]string, 0, len(c)+1)
	display := make([]string, 0, len(c))
	variables := make([]models.Variable, 0, len(job.Variables)+len(c))
	variables = append(variables, job.Variables...)
	for _, p := range c {
		parts = append(parts, slug.Make(p.value))
		display = append(display, p.axis+"="+p.value)
		variables = append(variables, models.Variable{p.axis: p.value})
	}

	generated.Name = job.Name + "_" + strings.Join(parts, "_")
	generated.DisplayName = fmt.Sprintf("%s (%s)", job.Name, strings.Join(display, ", "))
	generated.Variables = variables
	return generated
}

func compileFilters(patterns []string) ([]*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", p, err)
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}
