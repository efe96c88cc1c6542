// Package template loads pipeline template documents and resolves
// their ${{ parameters.X }} references against declared defaults and
// caller overrides.
package template

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/opnlabs/conveyor/pkg/models"
	"gopkg.in/yaml.v3"
)

const (
	refOpen  = "${{"
	refClose = "}}"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// File is a parsed but unresolved template document. Parameter
// references in the body are kept verbatim until Resolve.
type File struct {
	doc    *yaml.Node
	params []models.Parameter
}

func Load(path string) (*File, error) {
	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	f, err := Parse(contents)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

func Parse(contents []byte) (*File, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(contents, &doc); err != nil {
		return nil, fmt.Errorf("parsing template: %w", err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, fmt.Errorf("template document is empty")
	}

	var params []models.Parameter
	if node := mappingValue(doc.Content[0], "parameters"); node != nil {
		if err := node.Decode(&params); err != nil {
			return nil, fmt.Errorf("parsing parameters block: %w", err)
		}
	}
	return &File{doc: &doc, params: params}, nil
}

// Parameters returns the declared parameter schema.
func (f *File) Parameters() []models.Parameter {
	return f.params
}

// Reference is one ${{ parameters.X }} occurrence in the document body.
type Reference struct {
	Name string
	Line int
}

// References returns every parameter reference in the document, in
// document order.
func (f *File) References() []Reference {
	var refs []Reference
	walkScalars(f.doc, func(n *yaml.Node) error {
		for _, name := range referenceNames(n.Value) {
			refs = append(refs, Reference{Name: name, Line: n.Line})
		}
		return nil
	})
	return refs
}

// Resolve substitutes parameter values into the document and decodes
// the result. Overrides take precedence over declared defaults and
// must name declared parameters of a compatible type.
func (f *File) Resolve(overrides map[string]any) (*models.Template, error) {
	values, err := f.parameterValues(overrides)
	if err != nil {
		return nil, err
	}

	doc := cloneNode(f.doc)
	err = walkScalars(doc, func(n *yaml.Node) error {
		return substituteNode(n, values)
	})
	if err != nil {
		return nil, err
	}

	var tpl models.Template
	if err := doc.Decode(&tpl); err != nil {
		return nil, fmt.Errorf("decoding resolved template: %w", err)
	}
	if err := validate.Struct(tpl); err != nil {
		return nil, fmt.Errorf("template validation: %w", err)
	}
	return &tpl, nil
}

func (f *File) parameterValues(overrides map[string]any) (map[string]any, error) {
	values := make(map[string]any, len(f.params))
	for _, p := range f.params {
		values[p.Name] = p.Default
	}
	for name, value := range overrides {
		var declared *models.Parameter
		for i := range f.params {
			if f.params[i].Name == name {
				declared = &f.params[i]
				break
			}
		}
		if declared == nil {
			return nil, fmt.Errorf("override for undeclared parameter %q", name)
		}
		coerced, err := coerce(value, declared.Type)
		if err != nil {
			return nil, fmt.Errorf("parameter %s: %w", name, err)
		}
		values[name] = coerced
	}
	return values, nil
}

// coerce converts an override to the parameter's declared type.
// Overrides arrive as strings from the command line, so scalar types
// parse from their string forms.
func coerce(value any, paramType string) (any, error) {
	switch paramType {
	case models.ParameterString:
		if s, ok := value.(string); ok {
			return s, nil
		}
		return nil, fmt.Errorf("expected string, got %T", value)
	case models.ParameterBoolean:
		switch t := value.(type) {
		case bool:
			return t, nil
		case string:
			b, err := strconv.ParseBool(t)
			if err != nil {
				return nil, fmt.Errorf("expected boolean, got %q", t)
			}
			return b, nil
		}
		return nil, fmt.Errorf("expected boolean, got %T", value)
	case models.ParameterNumber:
		switch t := value.(type) {
		case int:
			return t, nil
		case float64:
			return t, nil
		case string:
			if i, err := strconv.Atoi(t); err == nil {
				return i, nil
			}
			f, err := strconv.ParseFloat(t, 64)
			if err != nil {
				return nil, fmt.Errorf("expected number, got %q", t)
			}
			return f, nil
		}
		return nil, fmt.Errorf("expected number, got %T", value)
	case models.ParameterObject:
		return value, nil
	}
	return nil, fmt.Errorf("unknown parameter type %q", paramType)
}

// substituteNode rewrites a scalar node in place. A scalar that is
// exactly one reference takes the parameter's full value, preserving
// its type; references inside larger strings interpolate textually.
func substituteNode(n *yaml.Node, values map[string]any) error {
	trimmed := strings.TrimSpace(n.Value)
	if name, ok := wholeReference(trimmed); ok {
		value, declared := values[name]
		if !declared {
			return fmt.Errorf("line %d: reference to undeclared parameter %q", n.Line, name)
		}
		return spliceValue(n, value)
	}

	if !strings.Contains(n.Value, refOpen) {
		return nil
	}
	interpolated, err := interpolate(n.Value, values, n.Line)
	if err != nil {
		return err
	}
	n.Value = interpolated
	n.Tag = "!!str"
	return nil
}

func spliceValue(n *yaml.Node, value any) error {
	switch t := value.(type) {
	case nil:
		n.Value = ""
		n.Tag = "!!null"
	case string:
		n.Value = t
		n.Tag = "!!str"
	case bool:
		n.Value = strconv.FormatBool(t)
		n.Tag = "!!bool"
	case int:
		n.Value = strconv.Itoa(t)
		n.Tag = "!!int"
	case float64:
		n.Value = strconv.FormatFloat(t, 'f', -1, 64)
		n.Tag = "!!float"
	default:
		// Object parameter: marshal the value and splice the resulting
		// node tree in place of the scalar.
		encoded, err := yaml.Marshal(value)
		if err != nil {
			return fmt.Errorf("encoding object parameter value: %w", err)
		}
		var sub yaml.Node
		if err := yaml.Unmarshal(encoded, &sub); err != nil {
			return fmt.Errorf("re-parsing object parameter value: %w", err)
		}
		if len(sub.Content) == 0 {
			return fmt.Errorf("object parameter produced an empty document")
		}
		*n = *sub.Content[0]
	}
	n.Style = 0
	return nil
}

func interpolate(s string, values map[string]any, line int) (string, error) {
	var b strings.Builder
	for {
		open := strings.Index(s, refOpen)
		if open < 0 {
			b.WriteString(s)
			return b.String(), nil
		}
		closing := strings.Index(s[open:], refClose)
		if closing < 0 {
			return "", fmt.Errorf("line %d: unterminated expression %q", line, s[open:])
		}
		name, ok := wholeReference(s[open : open+closing+len(refClose)])
		if !ok {
			return "", fmt.Errorf("line %d: malformed expression %q", line, s[open:open+closing+len(refClose)])
		}
		value, declared := values[name]
		if !declared {
			return "", fmt.Errorf("line %d: reference to undeclared parameter %q", line, name)
		}
		switch value.(type) {
		case nil, string, bool, int, float64:
		default:
			return "", fmt.Errorf("line %d: object parameter %q cannot be interpolated into a string", line, name)
		}
		b.WriteString(s[:open])
		b.WriteString(scalarString(value))
		s = s[open+closing+len(refClose):]
	}
}

func scalarString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	}
	return fmt.Sprintf("%v", v)
}

// wholeReference reports whether s is exactly one ${{ parameters.X }}
// expression and returns X.
func wholeReference(s string) (string, bool) {
	if !strings.HasPrefix(s, refOpen) || !strings.HasSuffix(s, refClose) {
		return "", false
	}
	inner := strings.TrimSpace(s[len(refOpen) : len(s)-len(refClose)])
	name, ok := strings.CutPrefix(inner, "parameters.")
	if !ok || name == "" || strings.Contains(name, " ") || strings.Contains(name, refOpen) {
		return "", false
	}
	return name, true
}

// referenceNames extracts the parameter names referenced in a scalar
// value, malformed expressions excluded.
func referenceNames(s string) []string {
	var names []string
	for {
		open := strings.Index(s, refOpen)
		if open < 0 {
			return names
		}
		closing := strings.Index(s[open:], refClose)
		if closing < 0 {
			return names
		}
		if name, ok := wholeReference(s[open : open+closing+len(refClose)]); ok {
			names = append(names, name)
		}
		s = s[open+closing+len(refClose):]
	}
}

func walkScalars(n *yaml.Node, visit func(*yaml.Node) error) error {
	if n.Kind == yaml.ScalarNode {
		return visit(n)
	}
	for _, child := range n.Content {
		if err := walkScalars(child, visit); err != nil {
			return err
		}
	}
	return nil
}

// cloneNode deep-copies a node tree. Alias nodes are relinked to the
// cloned anchor targets, so substitution reaches values referenced
// through YAML anchors.
func cloneNode(n *yaml.Node) *yaml.Node {
	clones := make(map[*yaml.Node]*yaml.Node)
	clone := copyNode(n, clones)
	relinkAliases(clone, clones)
	return clone
}

func copyNode(n *yaml.Node, clones map[*yaml.Node]*yaml.Node) *yaml.Node {
	if n == nil {
		return nil
	}
	clone := *n
	clones[n] = &clone
	clone.Content = make([]*yaml.Node, len(n.Content))
	for i, child := range n.Content {
		clone.Content[i] = copyNode(child, clones)
	}
	return &clone
}

func relinkAliases(n *yaml.Node, clones map[*yaml.Node]*yaml.Node) {
	if n.Alias != nil {
		if target, ok := clones[n.Alias]; ok {
			n.Alias = target
		}
	}
	for _, child := range n.Content {
		relinkAliases(child, clones)
	}
}

// mappingValue returns the value node for key in a mapping node.
func mappingValue(n *yaml.Node, key string) *yaml.Node {
	if n.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			return n.Content[i+1]
		}
	}
	return nil
}
