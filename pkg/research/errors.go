package research

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInputKind is returned when a search batch is neither a single
	// response with a results list nor a sequence of them.
	ErrInvalidInputKind = errors.New("invalid search input kind")

	// ErrSearchUnavailable wraps failures of the search provider.
	ErrSearchUnavailable = errors.New("search unavailable")

	// ErrMalformedModelOutput is returned when structured generation does not
	// produce a JSON object with the expected keys.
	ErrMalformedModelOutput = errors.New("malformed model output")

	// ErrConfiguration is returned when the loop configuration resolves to an
	// unusable value.
	ErrConfiguration = errors.New("invalid research configuration")
)

// StageError records which stage of the loop aborted the run.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
