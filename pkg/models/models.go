// Package models defines the pipeline template document and the
// generated-client metadata manifest consumed by the conveyor tooling.
package models

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Parameter types accepted in a template's parameters block.
const (
	ParameterString  = "string"
	ParameterBoolean = "boolean"
	ParameterNumber  = "number"
	ParameterObject  = "object"
)

// DefaultTimeoutInMinutes applies to jobs that do not set their own timeout.
const DefaultTimeoutInMinutes = 60

type Variable map[string]any

// Parameter declares a single template parameter. Every
// ${{ parameters.X }} reference in the document body must resolve to
// one of these declarations.
type Parameter struct {
	Name    string `yaml:"name" validate:"required"`
	Type    string `yaml:"type" validate:"required,oneof=string boolean number object"`
	Default any    `yaml:"default"`
}

// DependsOn accepts either a single job name or a list of job names.
type DependsOn []string

func (d *DependsOn) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var single string
		if err := node.Decode(&single); err != nil {
			return err
		}
		*d = DependsOn{single}
		return nil
	case yaml.SequenceNode:
		var many []string
		if err := node.Decode(&many); err != nil {
			return err
		}
		*d = DependsOn(many)
		return nil
	}
	return fmt.Errorf("dependsOn must be a job name or a list of job names (line %d)", node.Line)
}

// Pool selects where a job runs. For local execution only the container
// image matters; the name is carried for display.
type Pool struct {
	Name  string `yaml:"name"`
	Image string `yaml:"image"`
}

// Step is either a reference to an external step template or an inline
// script fragment. Exactly one of Template and Script should be set.
type Step struct {
	Name     string            `yaml:"name"`
	Template string            `yaml:"template"`
	Script   []string          `yaml:"script"`
	Inputs   map[string]string `yaml:"inputs"`
}

// MatrixAxis is one dimension of a generated job matrix.
type MatrixAxis struct {
	Name   string   `yaml:"name" validate:"required"`
	Values []string `yaml:"values" validate:"required,min=1"`
}

type MatrixFilters struct {
	Include []string `yaml:"include"`
	Exclude []string `yaml:"exclude"`
}

// Matrix drives generated test/regression jobs: the cross product of
// the configured axes, narrowed by filters, with replace expressions
// rewriting individual cell values.
type Matrix struct {
	Configs []MatrixAxis  `yaml:"configs" validate:"required,min=1,dive"`
	Filters MatrixFilters `yaml:"filters"`
	Replace []string      `yaml:"replace"`
}

type Job struct {
	Name             string     `yaml:"name" validate:"required"`
	DisplayName      string     `yaml:"displayName"`
	TimeoutInMinutes int        `yaml:"timeoutInMinutes" validate:"gte=0"`
	Condition        string     `yaml:"condition"`
	Pool             Pool       `yaml:"pool"`
	DependsOn        DependsOn  `yaml:"dependsOn"`
	Variables        []Variable `yaml:"variables"`
	Src              string     `yaml:"src"`
	Steps            []Step     `yaml:"steps" validate:"required,min=1,dive"`
	Matrix           *Matrix    `yaml:"matrix"`
	Artifacts        []string   `yaml:"artifacts"`
}

// Timeout returns the job timeout, falling back to the document default.
func (j Job) Timeout() int {
	if j.TimeoutInMinutes > 0 {
		return j.TimeoutInMinutes
	}
	return DefaultTimeoutInMinutes
}

// Template is a parsed pipeline template document.
type Template struct {
	Parameters []Parameter `yaml:"parameters" validate:"dive"`
	Jobs       []Job       `yaml:"jobs" validate:"required,min=1,dive"`
}

// Parameter returns the declaration for name, if any.
func (t Template) Parameter(name string) (Parameter, bool) {
	for _, p := range t.Parameters {
		if p.Name == name {
			return p, true
		}
	}
	return Parameter{}, false
}
