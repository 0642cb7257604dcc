package workflow

import "errors"

var (
	// ErrInvalidTransition reports a workflow action attempted from a status
	// that does not allow it.
	ErrInvalidTransition = errors.New("workflow: invalid transition")
	// ErrGenerationFailed is returned with the failed report when the generator errors.
	ErrGenerationFailed = errors.New("workflow: report generation failed")
)
