// Package manifest reads, checks, and regenerates the metadata
// manifest describing a generated client library.
package manifest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/opnlabs/conveyor/pkg/models"
)

// Finding codes reported by Validate.
const (
	CodeInvalidManifest  = "invalid-manifest"
	CodeDuplicateGroup   = "duplicate-operation-group"
	CodeEmptyClassName   = "empty-class-name"
	CodeVersionNotListed = "version-not-listed"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type Finding struct {
	Code    string
	Message string
}

func (f Finding) String() string {
	return fmt.Sprintf("%s: %s", f.Code, f.Message)
}

// Load reads and parses a manifest file without validating its
// invariants. Use Validate for the checks.
func Load(path string) (*models.Manifest, []byte, error) {
	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, nil, err
	}
	m, err := Parse(contents)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, contents, nil
}

func Parse(contents []byte) (*models.Manifest, error) {
	var m models.Manifest
	decoder := json.NewDecoder(bytes.NewReader(contents))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&m); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}
	return &m, nil
}

// Validate runs the manifest invariants: required fields present,
// operation-group keys pairwise distinct mapping to non-empty class
// names, and chosen_version listed in total_api_version_list. The raw
// document is needed to detect duplicate keys, which JSON decoding
// silently collapses; pass nil to skip that check.
func Validate(m *models.Manifest, raw []byte) []Finding {
	var findings []Finding

	if err := validate.Struct(m); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				findings = append(findings, Finding{
					Code:    CodeInvalidManifest,
					Message: fmt.Sprintf("field %s failed %q validation", fe.Namespace(), fe.Tag()),
				})
			}
		} else {
			findings = append(findings, Finding{Code: CodeInvalidManifest, Message: err.Error()})
		}
	}

	if raw != nil {
		duplicates, err := duplicateGroupKeys(raw)
		if err != nil {
			findings = append(findings, Finding{Code: CodeInvalidManifest, Message: err.Error()})
		}
		for _, key := range duplicates {
			findings = append(findings, Finding{
				Code:    CodeDuplicateGroup,
				Message: fmt.Sprintf("operation group %q appears more than once", key),
			})
		}
	}

	groups := make([]string, 0, len(m.OperationGroups))
	for key := range m.OperationGroups {
		groups = append(groups, key)
	}
	sort.Strings(groups)
	for _, key := range groups {
		if strings.TrimSpace(m.OperationGroups[key]) == "" {
			findings = append(findings, Finding{
				Code:    CodeEmptyClassName,
				Message: fmt.Sprintf("operation group %q maps to an empty class name", key),
			})
		}
	}

	if m.ChosenVersion != "" && !contains(m.TotalAPIVersionList, m.ChosenVersion) {
		findings = append(findings, Finding{
			Code:    CodeVersionNotListed,
			Message: fmt.Sprintf("chosen_version %q is not in total_api_version_list", m.ChosenVersion),
		})
	}

	return findings
}

// Write regenerates the manifest file wholesale: canonical encoding
// with sorted keys, written to a temp file and renamed into place.
// Writing the same manifest twice produces byte-identical output.
func Write(path string, m *models.Manifest) error {
	encoded, err := Encode(m)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".manifest-*.json")
	if err != nil {
		return fmt.Errorf("could not create temp manifest: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(encoded); err != nil {
		tmp.Close()
		return fmt.Errorf("could not write manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Encode returns the canonical byte form of the manifest.
func Encode(m *models.Manifest) ([]byte, error) {
	encoded, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding manifest: %w", err)
	}
	return append(encoded, '\n'), nil
}

// Summary renders the constructor surface described by the manifest.
func Summary(m *models.Manifest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "client %s (%s)\n", m.Client.Name, m.Client.Filename)
	fmt.Fprintf(&b, "api version %s of [%s]\n", m.ChosenVersion, strings.Join(m.TotalAPIVersionList, ", "))
	fmt.Fprintf(&b, "constructor arguments: %s\n", strings.Join(m.GlobalParameters.Required, ", "))

	groups := make([]string, 0, len(m.OperationGroups))
	for key := range m.OperationGroups {
		groups = append(groups, key)
	}
	sort.Strings(groups)
	fmt.Fprintf(&b, "operation groups (%d):\n", len(groups))
	for _, key := range groups {
		fmt.Fprintf(&b, "  %-30s %s\n", key, m.OperationGroups[key])
	}
	return b.String()
}

// duplicateGroupKeys scans the raw document for repeated keys inside
// the operation_groups object.
func duplicateGroupKeys(raw []byte) ([]string, error) {
	decoder := json.NewDecoder(bytes.NewReader(raw))

	// Walk to the top-level operation_groups key.
	tok, err := decoder.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("manifest is not a JSON object")
	}

	for decoder.More() {
		keyTok, err := decoder.Token()
		if err != nil {
			return nil, err
		}
		key, _ := keyTok.(string)
		if key != "operation_groups" {
			if err := skipValue(decoder); err != nil {
				return nil, err
			}
			continue
		}

		openTok, err := decoder.Token()
		if err != nil {
			return nil, err
		}
		if delim, ok := openTok.(json.Delim); !ok || delim != '{' {
			return nil, fmt.Errorf("operation_groups is not a JSON object")
		}

		seen := make(map[string]bool)
		var duplicates []string
		for decoder.More() {
			groupTok, err := decoder.Token()
			if err != nil {
				return nil, err
			}
			group, _ := groupTok.(string)
			if seen[group] {
				duplicates = append(duplicates, group)
			}
			seen[group] = true
			if err := skipValue(decoder); err != nil {
				return nil, err
			}
		}
		return duplicates, nil
	}
	return nil, nil
}

func skipValue(decoder *json.Decoder) error {
	tok, err := decoder.Token()
	if err != nil {
		return err
	}
	delim, ok := tok.(json.Delim)
	if !ok || (delim != '{' && delim != '[') {
		return nil
	}
	depth := 1
	for depth > 0 {
		tok, err := decoder.Token()
		if err != nil {
			return err
		}
		if d, ok := tok.(json.Delim); ok {
			switch d {
			case '{', '[':
				depth++
			case '}', ']':
				depth--
			}
		}
	}
	return nil
}

func contains(list []string, value string) bool {
	for _, v := range list {
		if v == value {
			return true
		}
	}
	return false
}
