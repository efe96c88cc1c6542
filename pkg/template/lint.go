package template

import (
	"fmt"

	"github.com/opnlabs/conveyor/pkg/condition"
	"github.com/opnlabs/conveyor/pkg/matrix"
	"github.com/opnlabs/conveyor/pkg/models"
)

// Finding codes reported by Lint.
const (
	CodeUndeclaredParameter = "undeclared-parameter"
	CodeDuplicateParameter  = "duplicate-parameter"
	CodeInvalidTemplate     = "invalid-template"
	CodeDuplicateJob        = "duplicate-job"
	CodeUnknownDependency   = "unknown-dependency"
	CodeForwardDependency   = "forward-dependency"
	CodeInvalidStep         = "invalid-step"
	CodeInvalidCondition    = "invalid-condition"
	CodeInvalidMatrix       = "invalid-matrix"
)

// Finding is a single static-check failure. Lint collects all findings
// rather than stopping at the first.
type Finding struct {
	Code    string
	Message string
	Line    int
}

func (f Finding) String() string {
	if f.Line > 0 {
		return fmt.Sprintf("line %d: %s: %s", f.Line, f.Code, f.Message)
	}
	return fmt.Sprintf("%s: %s", f.Code, f.Message)
}

// Lint runs the static checks on a template document: every referenced
// parameter is declared, every dependsOn target names an earlier job,
// steps are well formed, and conditions, matrix filters and replace
// expressions parse.
func Lint(f *File) []Finding {
	var findings []Finding

	declared := make(map[string]bool, len(f.params))
	for _, p := range f.params {
		if declared[p.Name] {
			findings = append(findings, Finding{
				Code:    CodeDuplicateParameter,
				Message: fmt.Sprintf("parameter %q is declared more than once", p.Name),
			})
		}
		declared[p.Name] = true
	}

	for _, ref := range f.References() {
		if !declared[ref.Name] {
			findings = append(findings, Finding{
				Code:    CodeUndeclaredParameter,
				Message: fmt.Sprintf("reference to undeclared parameter %q", ref.Name),
				Line:    ref.Line,
			})
		}
	}
	if len(findings) > 0 {
		// The document cannot be resolved; job-level checks would only
		// repeat the parameter findings.
		return findings
	}

	tpl, err := f.Resolve(nil)
	if err != nil {
		return append(findings, Finding{
			Code:    CodeInvalidTemplate,
			Message: err.Error(),
		})
	}

	seen := make(map[string]bool, len(tpl.Jobs))
	for _, job := range tpl.Jobs {
		if seen[job.Name] {
			findings = append(findings, Finding{
				Code:    CodeDuplicateJob,
				Message: fmt.Sprintf("job %q is declared more than once", job.Name),
			})
		}

		for _, dep := range job.DependsOn {
			if dep == job.Name {
				findings = append(findings, Finding{
					Code:    CodeForwardDependency,
					Message: fmt.Sprintf("job %q depends on itself", job.Name),
				})
				continue
			}
			if !seen[dep] {
				code, msg := CodeUnknownDependency, fmt.Sprintf("job %q depends on undeclared job %q", job.Name, dep)
				if declaredLater(tpl.Jobs, job.Name, dep) {
					code = CodeForwardDependency
					msg = fmt.Sprintf("job %q depends on %q, which is declared later in the document", job.Name, dep)
				}
				findings = append(findings, Finding{Code: code, Message: msg})
			}
		}

		for i, step := range job.Steps {
			hasTemplate := step.Template != ""
			hasScript := len(step.Script) > 0
			if hasTemplate == hasScript {
				findings = append(findings, Finding{
					Code:    CodeInvalidStep,
					Message: fmt.Sprintf("job %q step %d must set exactly one of template and script", job.Name, i+1),
				})
			}
		}

		if job.Condition != "" {
			if _, err := condition.Parse(job.Condition); err != nil {
				findings = append(findings, Finding{
					Code:    CodeInvalidCondition,
					Message: fmt.Sprintf("job %q: %v", job.Name, err),
				})
			}
		}

		if job.Matrix != nil {
			if _, err := matrix.Expand(job); err != nil {
				findings = append(findings, Finding{
					Code:    CodeInvalidMatrix,
					Message: err.Error(),
				})
			}
		}

		seen[job.Name] = true
	}

	return findings
}

// declaredLater reports whether dep is declared after job in the
// document. Those edges are ordering violations, not unknown targets.
func declaredLater(jobs []models.Job, job, dep string) bool {
	past := false
	for _, j := range jobs {
		if j.Name == job {
			past = true
			continue
		}
		if past && j.Name == dep {
			return true
		}
	}
	return false
}
