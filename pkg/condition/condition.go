// Package condition evaluates job condition expressions.
//
// Conditions use function-call syntax over prior job outcomes and
// pipeline variables, for example:
//
//	and(succeeded(), ne(variables['Skip.Tests'], 'true'))
//
// A job's condition is evaluated only once all of its dependencies have
// reached a terminal outcome.
package condition

import (
	"fmt"
	"strconv"
	"strings"
)

// Outcome is the terminal state of a completed job.
type Outcome string

const (
	Succeeded Outcome = "succeeded"
	Failed    Outcome = "failed"
	Skipped   Outcome = "skipped"
	Canceled  Outcome = "canceled"
)

// Scope is the evaluation context for one job's condition.
type Scope struct {
	// Dependencies are the names of the jobs this job depends on.
	// Outcome functions called without arguments range over these.
	Dependencies []string
	// Outcomes maps job names to their terminal outcomes.
	Outcomes map[string]Outcome
	// Variables holds pipeline variables addressed by variables['X'].
	Variables map[string]string
}

// Evaluate parses and evaluates expr against scope. An empty expression
// is equivalent to succeeded() over all dependencies.
func Evaluate(expr string, scope Scope) (bool, error) {
	if strings.TrimSpace(expr) == "" {
		return allSucceeded(scope, nil)
	}
	parsed, err := Parse(expr)
	if err != nil {
		return false, err
	}
	v, err := parsed.eval(scope)
	if err != nil {
		return false, err
	}
	return toBool(v), nil
}

// Expr is a parsed condition expression.
type Expr interface {
	eval(Scope) (any, error)
}

// Parse parses expr without evaluating it, so templates can be checked
// statically.
func Parse(expr string) (Expr, error) {
	p := &parser{lex: lexer{input: expr}}
	p.next()
	e, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if p.tok.kind != tokenEOF {
		return nil, fmt.Errorf("condition %q: unexpected %q after expression", expr, p.tok.text)
	}
	return e, nil
}

type litExpr struct{ v any }

func (l litExpr) eval(Scope) (any, error) { return l.v, nil }

type varExpr struct{ name string }

func (v varExpr) eval(s Scope) (any, error) {
	return s.Variables[v.name], nil
}

type callExpr struct {
	name string
	args []Expr
}

func (c callExpr) eval(s Scope) (any, error) {
	switch strings.ToLower(c.name) {
	case "always":
		if err := c.arity(0, 0); err != nil {
			return nil, err
		}
		return true, nil
	case "succeeded":
		return c.outcomes(s, func(o Outcome) bool { return o == Succeeded }, true)
	case "failed":
		return c.outcomes(s, func(o Outcome) bool { return o == Failed }, false)
	case "canceled":
		return c.outcomes(s, func(o Outcome) bool { return o == Canceled }, false)
	case "succeededorfailed":
		return c.outcomes(s, func(o Outcome) bool { return o == Succeeded || o == Failed }, true)
	case "and":
		if err := c.arity(2, -1); err != nil {
			return nil, err
		}
		for _, arg := range c.args {
			v, err := arg.eval(s)
			if err != nil {
				return nil, err
			}
			if !toBool(v) {
				return false, nil
			}
		}
		return true, nil
	case "or":
		if err := c.arity(2, -1); err != nil {
			return nil, err
		}
		for _, arg := range c.args {
			v, err := arg.eval(s)
			if err != nil {
				return nil, err
			}
			if toBool(v) {
				return true, nil
			}
		}
		return false, nil
	case "not":
		if err := c.arity(1, 1); err != nil {
			return nil, err
		}
		v, err := c.args[0].eval(s)
		if err != nil {
			return nil, err
		}
		return !toBool(v), nil
	case "eq", "ne":
		if err := c.arity(2, 2); err != nil {
			return nil, err
		}
		a, err := c.args[0].eval(s)
		if err != nil {
			return nil, err
		}
		b, err := c.args[1].eval(s)
		if err != nil {
			return nil, err
		}
		equal := looseEqual(a, b)
		if strings.ToLower(c.name) == "ne" {
			return !equal, nil
		}
		return equal, nil
	case "contains", "startswith", "endswith":
		if err := c.arity(2, 2); err != nil {
			return nil, err
		}
		a, err := c.args[0].eval(s)
		if err != nil {
			return nil, err
		}
		b, err := c.args[1].eval(s)
		if err != nil {
			return nil, err
		}
		haystack := strings.ToLower(toString(a))
		needle := strings.ToLower(toString(b))
		switch strings.ToLower(c.name) {
		case "startswith":
			return strings.HasPrefix(haystack, needle), nil
		case "endswith":
			return strings.HasSuffix(haystack, needle), nil
		}
		return strings.Contains(haystack, needle), nil
	}
	return nil, fmt.Errorf("unknown condition function %q", c.name)
}

func (c callExpr) arity(min, max int) error {
	if len(c.args) < min || (max >= 0 && len(c.args) > max) {
		return fmt.Errorf("wrong number of arguments for %s: got %d", c.name, len(c.args))
	}
	return nil
}

// outcomes resolves the job names an outcome function applies to and
// folds their outcomes. With all set, every job must match; otherwise a
// single match is enough.
func (c callExpr) outcomes(s Scope, match func(Outcome) bool, all bool) (any, error) {
	names := make([]string, 0, len(c.args))
	for _, arg := range c.args {
		v, err := arg.eval(s)
		if err != nil {
			return nil, err
		}
		names = append(names, toString(v))
	}
	if len(names) == 0 {
		names = s.Dependencies
	}
	if all {
		for _, name := range names {
			o, err := lookupOutcome(s, name)
			if err != nil {
				return nil, err
			}
			if !match(o) {
				return false, nil
			}
		}
		return true, nil
	}
	for _, name := range names {
		o, err := lookupOutcome(s, name)
		if err != nil {
			return nil, err
		}
		if match(o) {
			return true, nil
		}
	}
	return false, nil
}

func lookupOutcome(s Scope, name string) (Outcome, error) {
	o, ok := s.Outcomes[name]
	if !ok {
		return "", fmt.Errorf("no recorded outcome for job %q", name)
	}
	return o, nil
}

func allSucceeded(s Scope, names []string) (bool, error) {
	if names == nil {
		names = s.Dependencies
	}
	for _, name := range names {
		o, err := lookupOutcome(s, name)
		if err != nil {
			return false, err
		}
		if o != Succeeded {
			return false, nil
		}
	}
	return true, nil
}

// Comparisons follow the pipeline engine's loose rules: numbers compare
// numerically, everything else as case-insensitive strings.
func looseEqual(a, b any) bool {
	na, aok := toNumber(a)
	nb, bok := toNumber(b)
	if aok && bok {
		return na == nb
	}
	return strings.EqualFold(toString(a), toString(b))
}

func toBool(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		return strings.EqualFold(t, "true")
	}
	return false
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		if t {
			return "true"
		}
		return "false"
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	}
	return fmt.Sprintf("%v", v)
}

func toNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case bool:
		return 0, false
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	}
	return 0, false
}
