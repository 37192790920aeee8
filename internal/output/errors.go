package output

import "fmt"

// SinkError represents a failure to open, write, or finalize a shard artifact
type SinkError struct {
	Path    string
	Message string
	Cause   error
}

func (e *SinkError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("output %s: %s: %v", e.Path, e.Message, e.Cause)
	}
	return fmt.Sprintf("output %s: %s", e.Path, e.Message)
}

func (e *SinkError) Unwrap() error {
	return e.Cause
}
