package store

import (
	"testing"

	"github.com/opnlabs/conveyor/pkg/condition"
)

func TestRecordOutcome(t *testing.T) {
	memStore := NewMemStore()

	if err := RecordOutcome(memStore, "Build", condition.Succeeded); err != nil {
		t.Error(err, "could not record outcome")
	}

	outcome, err := JobOutcome(memStore, "Build")
	if err != nil {
		t.Error(err)
	}
	if outcome != condition.Succeeded {
		t.Errorf("expected %s, got %s", condition.Succeeded, outcome)
	}
}

func TestRecordOutcomeIsWriteOnce(t *testing.T) {
	memStore := NewMemStore()

	if err := RecordOutcome(memStore, "Build", condition.Succeeded); err != nil {
		t.Error(err, "could not record outcome")
	}
	if err := RecordOutcome(memStore, "Build", condition.Failed); err != ErrKeyExists {
		t.Error("did not return the key exists error")
	}
}

func TestJobOutcomeUnfinishedJob(t *testing.T) {
	memStore := NewMemStore()

	if _, err := JobOutcome(memStore, "Build"); err != ErrKeyDoesntExist {
		t.Error("did not return key doesn't exist error")
	}
}

func TestOutcomeKeysDoNotCollide(t *testing.T) {
	memStore := NewMemStore()

	if err := memStore.Set("Build", "artifact-key"); err != nil {
		t.Error(err, "could not set key")
	}
	if err := RecordOutcome(memStore, "Build", condition.Succeeded); err != nil {
		t.Error(err, "outcome key collided with a plain key")
	}
}
