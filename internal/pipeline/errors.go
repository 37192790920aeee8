package pipeline

import (
	"fmt"

	"github.com/google/uuid"
)

// Error represents a failure that prevents a job execution from running
type Error struct {
	JobID   uuid.UUID
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("job %s: %s: %v", e.JobID, e.Message, e.Cause)
	}
	return fmt.Sprintf("job %s: %s", e.JobID, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}
