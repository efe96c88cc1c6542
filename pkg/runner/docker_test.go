package runner

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/opnlabs/conveyor/pkg/artifacts"
	"github.com/opnlabs/conveyor/pkg/models"
	"github.com/opnlabs/conveyor/pkg/utils"
)

type Test struct {
	Name        string
	Manager     artifacts.ArtifactManager
	Image       string
	Src         string
	Script      []string
	Variables   []models.Variable
	Artifacts   []string
	Expectation func(*testing.T, *bytes.Buffer) bool
}

func teardown(tb testing.TB) {
	wd, err := os.Getwd()
	if err != nil {
		tb.Log(err)
		return
	}
	os.RemoveAll(filepath.Join(wd, BUILD_DIR))
	os.RemoveAll(filepath.Join(wd, ARTIFACTS_DIR))
}

// TestRun talks to a local docker daemon.
func TestRun(t *testing.T) {
	if testing.Short() {
		t.Skip("requires a docker daemon")
	}

	var b bytes.Buffer
	manager, err := artifacts.NewDockerArtifactsManager(ARTIFACTS_DIR)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	tests := []Test{
		{
			Name:    "Test Image",
			Manager: manager,
			Image:   "docker.io/alpine",
			Script: []string{
				"cat /etc/os-release",
			},
			Expectation: testImageOutput,
		},
		{
			Name:    "Test Variables",
			Manager: manager,
			Image:   "docker.io/alpine",
			Variables: []models.Variable{
				{"TESTING_VARIABLE": "TESTING"},
			},
			Script: []string{
				"echo $TESTING_VARIABLE",
			},
			Expectation: testVariableOutput,
		},
		{
			Name:    "Test Create Artifact",
			Manager: manager,
			Image:   "docker.io/alpine",
			Script: []string{
				"echo TESTING >> log.txt",
			},
			Artifacts: []string{
				"log.txt",
			},
			Expectation: testArtifactCreation,
		},
		{
			Name:    "Test Retrieve Artifact",
			Manager: manager,
			Image:   "docker.io/alpine",
			Script: []string{
				"cat log.txt",
			},
			Expectation: testVariableOutput,
		},
	}

	for _, test := range tests {
		b.Truncate(0)
		err := NewDockerRunner(test.Name, test.Manager, DockerRunnerOptions{ShowImagePull: false, Stdout: &b, Stderr: os.Stderr}).
			WithImage(test.Image).
			WithSrc(test.Src).
			WithCmd(test.Script).
			WithEnv(test.Variables).
			CreatesArtifacts(test.Artifacts).Run(ctx)
		if err != nil {
			t.Errorf("Test - %s: %v", test.Name, err)
		}

		if !test.Expectation(t, &b) {
			t.Errorf("Test - %s: failed", test.Name)
		}
	}

	teardown(t)
}

func testImageOutput(t *testing.T, b *bytes.Buffer) bool {
	str := b.String()
	lines := strings.Split(str, "\n")

	if len(lines) < 1 {
		t.Error("output lines less than expected")
		return false
	}
	name := strings.Split(lines[0], "=")
	if len(name) != 2 {
		t.Error("name field not found")
		return false
	}

	return strings.Compare(strings.Trim(name[1], "\""), "Alpine Linux") == 0
}

func testVariableOutput(t *testing.T, b *bytes.Buffer) bool {
	str := b.String()
	str = regexp.MustCompile(`[^a-zA-Z0-9 ]+`).ReplaceAllString(str, "")
	return strings.Compare(strings.TrimSpace(str), "TESTING") == 0
}

func testArtifactCreation(t *testing.T, b *bytes.Buffer) bool {
	wd, err := os.Getwd()
	if err != nil {
		t.Error(err)
		return false
	}

	files, err := os.ReadDir(filepath.Join(wd, ARTIFACTS_DIR))
	if err != nil {
		t.Error(err)
		return false
	}
	for _, f := range files {
		err := utils.DecompressTar(filepath.Join(wd, ARTIFACTS_DIR, f.Name()), filepath.Join(wd, ARTIFACTS_DIR))
		if err != nil {
			continue
		}

		logFile, err := os.ReadFile(filepath.Join(wd, ARTIFACTS_DIR, "log.txt"))
		if err != nil {
			continue
		}
		contents := regexp.MustCompile(`[^a-zA-Z0-9 ]+`).ReplaceAllString(string(logFile), "")
		if strings.Compare(strings.TrimSpace(contents), "TESTING") == 0 {
			return true
		}
	}
	return false
}
