package orchestrator

import (
	"fmt"

	"github.com/xkilldash9x/salvator/api/schemas"
)

// Stage names the part of a run an error came from.
type Stage string

const (
	StageConfig   Stage = "config"
	StageLaunch   Stage = "launch"
	StageLogin    Stage = "login"
	StageScrape   Stage = "scrape"
	StageDispatch Stage = "dispatch"
)

// RunError is a stage-fatal failure. By the time it is returned the session
// has been closed.
type RunError struct {
	Stage Stage
	Cause error
	// RunID is set by Run so a failed run can be recorded under the same id
	// its log lines carry.
	RunID string
	// Outcomes holds the entries already handled when a run fails during
	// dispatch, so greetings that went out are still recorded.
	Outcomes []schemas.EntryOutcome
}

func (e *RunError) Error() string {
	return fmt.Sprintf("run failed at %s: %v", e.Stage, e.Cause)
}

func (e *RunError) Unwrap() error { return e.Cause }
