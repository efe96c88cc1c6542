package template

import (
	"testing"
)

func lintFindings(t *testing.T, contents string) []Finding {
	t.Helper()
	return Lint(mustParse(t, contents))
}

func hasFinding(findings []Finding, code string) bool {
	for _, f := range findings {
		if f.Code == code {
			return true
		}
	}
	return false
}

func TestLintCleanTemplate(t *testing.T) {
	if findings := lintFindings(t, testTemplate); len(findings) != 0 {
		t.Errorf("expected no findings, got %v", findings)
	}
}

func TestLintUndeclaredParameter(t *testing.T) {
	findings := lintFindings(t, `
parameters:
  - name: Declared
    type: string
    default: x
jobs:
  - name: Build
    steps:
      - script:
          - echo ${{ parameters.Declared }} ${{ parameters.Missing }}
`)
	if !hasFinding(findings, CodeUndeclaredParameter) {
		t.Errorf("expected an undeclared-parameter finding, got %v", findings)
	}
	for _, f := range findings {
		if f.Line == 0 {
			t.Errorf("finding without line information: %v", f)
		}
	}
}

func TestLintDuplicateParameter(t *testing.T) {
	findings := lintFindings(t, `
parameters:
  - name: Twice
    type: string
    default: a
  - name: Twice
    type: string
    default: b
jobs:
  - name: Build
    steps:
      - script: ["true"]
`)
	if !hasFinding(findings, CodeDuplicateParameter) {
		t.Errorf("expected a duplicate-parameter finding, got %v", findings)
	}
}

func TestLintUnknownDependency(t *testing.T) {
	findings := lintFindings(t, `
jobs:
  - name: Build
    steps:
      - script: ["true"]
  - name: Test
    dependsOn: Missing
    steps:
      - script: ["true"]
`)
	if !hasFinding(findings, CodeUnknownDependency) {
		t.Errorf("expected an unknown-dependency finding, got %v", findings)
	}
}

func TestLintForwardDependency(t *testing.T) {
	findings := lintFindings(t, `
jobs:
  - name: Test
    dependsOn: Build
    steps:
      - script: ["true"]
  - name: Build
    steps:
      - script: ["true"]
`)
	if !hasFinding(findings, CodeForwardDependency) {
		t.Errorf("expected a forward-dependency finding, got %v", findings)
	}
	if hasFinding(findings, CodeUnknownDependency) {
		t.Errorf("forward reference misreported as unknown: %v", findings)
	}
}

func TestLintSelfDependency(t *testing.T) {
	findings := lintFindings(t, `
jobs:
  - name: Build
    dependsOn: Build
    steps:
      - script: ["true"]
`)
	if !hasFinding(findings, CodeForwardDependency) {
		t.Errorf("expected a self-dependency finding, got %v", findings)
	}
}

func TestLintDuplicateJob(t *testing.T) {
	findings := lintFindings(t, `
jobs:
  - name: Build
    steps:
      - script: ["true"]
  - name: Build
    steps:
      - script: ["true"]
`)
	if !hasFinding(findings, CodeDuplicateJob) {
		t.Errorf("expected a duplicate-job finding, got %v", findings)
	}
}

func TestLintInvalidStep(t *testing.T) {
	findings := lintFindings(t, `
jobs:
  - name: Build
    steps:
      - template: eng/build.yml
        script: ["true"]
  - name: Empty
    steps:
      - name: does nothing
`)
	count := 0
	for _, f := range findings {
		if f.Code == CodeInvalidStep {
			count++
		}
	}
	if count != 2 {
		t.Errorf("expected 2 invalid-step findings, got %v", findings)
	}
}

func TestLintInvalidCondition(t *testing.T) {
	findings := lintFindings(t, `
jobs:
  - name: Build
    condition: sometimes(
    steps:
      - script: ["true"]
`)
	if !hasFinding(findings, CodeInvalidCondition) {
		t.Errorf("expected an invalid-condition finding, got %v", findings)
	}
}

func TestLintInvalidMatrix(t *testing.T) {
	findings := lintFindings(t, `
jobs:
  - name: Test
    matrix:
      configs:
        - name: os
          values: [linux]
      filters:
        include: ["("]
    steps:
      - script: ["true"]
`)
	if !hasFinding(findings, CodeInvalidMatrix) {
		t.Errorf("expected an invalid-matrix finding, got %v", findings)
	}
}

func TestLintCollectsMultipleFindings(t *testing.T) {
	findings := lintFindings(t, `
jobs:
  - name: Build
    condition: sometimes(
    steps:
      - script: ["true"]
  - name: Test
    dependsOn: Missing
    steps:
      - script: ["true"]
`)
	if !hasFinding(findings, CodeInvalidCondition) || !hasFinding(findings, CodeUnknownDependency) {
		t.Errorf("expected both findings reported, got %v", findings)
	}
}
