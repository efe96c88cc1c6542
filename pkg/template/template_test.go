package template

import (
	"strings"
	"testing"
)

const testTemplate = `
parameters:
  - name: ServiceDirectory
    type: string
    default: core
  - name: TestTimeoutInMinutes
    type: number
    default: 60
  - name: TestProxy
    type: boolean
    default: false
  - name: BuildTargetingString
    type: string
    default: azure-*
  - name: MatrixConfigs
    type: object
    default:
      - name: python
        values: ["3.8", "3.12"]

jobs:
  - name: Build
    pool:
      image: docker.io/python
    steps:
      - script:
          - echo building ${{ parameters.BuildTargetingString }} in ${{ parameters.ServiceDirectory }}

  - name: Analyze
    dependsOn: Build
    steps:
      - template: eng/analyze.yml
        inputs:
          serviceDirectory: ${{ parameters.ServiceDirectory }}

  - name: Test
    dependsOn:
      - Build
      - Analyze
    timeoutInMinutes: ${{ parameters.TestTimeoutInMinutes }}
    condition: and(succeeded(), eq(variables['Skip.Tests'], ''))
    variables:
      - PROXY_ENABLED: ${{ parameters.TestProxy }}
    matrix:
      configs: ${{ parameters.MatrixConfigs }}
    steps:
      - script:
          - make test
`

func mustParse(t *testing.T, contents string) *File {
	t.Helper()
	f, err := Parse([]byte(contents))
	if err != nil {
		t.Fatal(err)
	}
	return f
}

func TestParseParameters(t *testing.T) {
	f := mustParse(t, testTemplate)

	params := f.Parameters()
	if len(params) != 5 {
		t.Fatalf("expected 5 parameters, got %d", len(params))
	}
	if params[0].Name != "ServiceDirectory" || params[0].Type != "string" {
		t.Errorf("unexpected first parameter %+v", params[0])
	}
	if params[1].Default != 60 {
		t.Errorf("expected numeric default 60, got %v (%T)", params[1].Default, params[1].Default)
	}
}

func TestReferences(t *testing.T) {
	f := mustParse(t, testTemplate)

	counts := make(map[string]int)
	for _, ref := range f.References() {
		counts[ref.Name]++
		if ref.Line == 0 {
			t.Errorf("reference to %s has no line information", ref.Name)
		}
	}
	if counts["ServiceDirectory"] != 2 || counts["MatrixConfigs"] != 1 {
		t.Errorf("unexpected reference counts %v", counts)
	}
}

func TestResolveDefaults(t *testing.T) {
	f := mustParse(t, testTemplate)

	tpl, err := f.Resolve(nil)
	if err != nil {
		t.Fatal(err)
	}

	if len(tpl.Jobs) != 3 {
		t.Fatalf("expected 3 jobs, got %d", len(tpl.Jobs))
	}

	build := tpl.Jobs[0]
	if build.Steps[0].Script[0] != "echo building azure-* in core" {
		t.Errorf("interpolation failed: %q", build.Steps[0].Script[0])
	}

	test := tpl.Jobs[2]
	if test.TimeoutInMinutes != 60 {
		t.Errorf("number parameter did not keep its type: %d", test.TimeoutInMinutes)
	}
	if test.Variables[0]["PROXY_ENABLED"] != false {
		t.Errorf("boolean parameter did not keep its type: %v", test.Variables[0])
	}
	if test.Matrix == nil || len(test.Matrix.Configs) != 1 {
		t.Fatalf("object parameter was not spliced: %+v", test.Matrix)
	}
	if test.Matrix.Configs[0].Name != "python" || len(test.Matrix.Configs[0].Values) != 2 {
		t.Errorf("unexpected matrix configs %+v", test.Matrix.Configs)
	}
}

func TestResolveOverrides(t *testing.T) {
	f := mustParse(t, testTemplate)

	tpl, err := f.Resolve(map[string]any{
		"ServiceDirectory":     "storage",
		"TestTimeoutInMinutes": "90",
		"TestProxy":            "true",
	})
	if err != nil {
		t.Fatal(err)
	}

	if tpl.Jobs[0].Steps[0].Script[0] != "echo building azure-* in storage" {
		t.Errorf("override not applied: %q", tpl.Jobs[0].Steps[0].Script[0])
	}
	if tpl.Jobs[2].TimeoutInMinutes != 90 {
		t.Errorf("expected timeout 90, got %d", tpl.Jobs[2].TimeoutInMinutes)
	}
	if tpl.Jobs[2].Variables[0]["PROXY_ENABLED"] != true {
		t.Errorf("boolean override not applied: %v", tpl.Jobs[2].Variables[0])
	}
}

func TestResolveUndeclaredOverride(t *testing.T) {
	f := mustParse(t, testTemplate)

	_, err := f.Resolve(map[string]any{"NotDeclared": "x"})
	if err == nil || !strings.Contains(err.Error(), "undeclared parameter") {
		t.Errorf("expected an undeclared-parameter error, got %v", err)
	}
}

func TestResolveBadOverrideType(t *testing.T) {
	f := mustParse(t, testTemplate)

	_, err := f.Resolve(map[string]any{"TestTimeoutInMinutes": "soon"})
	if err == nil || !strings.Contains(err.Error(), "expected number") {
		t.Errorf("expected a type error, got %v", err)
	}
}

func TestResolveUndeclaredReference(t *testing.T) {
	f := mustParse(t, `
jobs:
  - name: Build
    steps:
      - script:
          - echo ${{ parameters.Missing }}
`)

	_, err := f.Resolve(nil)
	if err == nil || !strings.Contains(err.Error(), "undeclared parameter") {
		t.Errorf("expected an undeclared-parameter error, got %v", err)
	}
}

func TestResolveObjectInterpolation(t *testing.T) {
	f := mustParse(t, `
parameters:
  - name: Configs
    type: object
    default:
      - a
jobs:
  - name: Build
    steps:
      - script:
          - echo prefix-${{ parameters.Configs }}
`)

	_, err := f.Resolve(nil)
	if err == nil || !strings.Contains(err.Error(), "cannot be interpolated") {
		t.Errorf("expected an interpolation error, got %v", err)
	}
}

func TestResolveThroughAnchors(t *testing.T) {
	f := mustParse(t, `
parameters:
  - name: Image
    type: string
    default: docker.io/golang
jobs:
  - name: Build
    pool: &linux
      image: ${{ parameters.Image }}
    steps:
      - script:
          - make build
  - name: Test
    dependsOn: Build
    pool: *linux
    steps:
      - script:
          - make test
`)

	tpl, err := f.Resolve(map[string]any{"Image": "docker.io/alpine"})
	if err != nil {
		t.Fatal(err)
	}
	if tpl.Jobs[0].Pool.Image != "docker.io/alpine" {
		t.Errorf("anchored pool image not substituted: %q", tpl.Jobs[0].Pool.Image)
	}
	if tpl.Jobs[1].Pool.Image != "docker.io/alpine" {
		t.Errorf("aliased pool image not substituted: %q", tpl.Jobs[1].Pool.Image)
	}
}

func TestResolveDoesNotMutateFile(t *testing.T) {
	f := mustParse(t, testTemplate)

	if _, err := f.Resolve(map[string]any{"ServiceDirectory": "first"}); err != nil {
		t.Fatal(err)
	}
	tpl, err := f.Resolve(nil)
	if err != nil {
		t.Fatal(err)
	}
	if tpl.Jobs[0].Steps[0].Script[0] != "echo building azure-* in core" {
		t.Error("an earlier Resolve leaked overrides into the parsed document")
	}
}

func TestParseEmptyDocument(t *testing.T) {
	if _, err := Parse([]byte("")); err == nil {
		t.Error("expected an error for an empty document")
	}
}
