package store

import "github.com/opnlabs/conveyor/pkg/condition"

const outcomeKeyPrefix = "outcome:"

// RecordOutcome stores the terminal outcome for a job. Outcomes are
// write-once for the duration of a run.
func RecordOutcome(s Store, job string, outcome condition.Outcome) error {
	return s.Set(outcomeKeyPrefix+job, outcome)
}

// JobOutcome returns the recorded outcome for a job, or
// ErrKeyDoesntExist if the job has not finished.
func JobOutcome(s Store, job string) (condition.Outcome, error) {
	v, err := s.Get(outcomeKeyPrefix + job)
	if err != nil {
		return "", err
	}
	return v.(condition.Outcome), nil
}
