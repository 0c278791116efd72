package sync

import "fmt"

// Stage identifies where in a cycle an error originated, so a stalled sync
// can be diagnosed from the log alone.
type Stage string

const (
	StageFetch     Stage = "fetch"
	StageEnrich    Stage = "enrich"
	StageResolve   Stage = "resolve"
	StageBuild     Stage = "build"
	StageReconcile Stage = "reconcile"
)

// StageError tags an error with the pipeline stage that produced it.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func stageErr(stage Stage, err error) *StageError {
	return &StageError{Stage: stage, Err: err}
}

// ErrorStage extracts the stage tag from an error chain, or "unknown".
func ErrorStage(err error) Stage {
	for err != nil {
		if se, ok := err.(*StageError); ok {
			return se.Stage
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return "unknown"
}
