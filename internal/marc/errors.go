package marc

import (
	"errors"
	"fmt"
)

// TooLongMessage is the failure message of records exceeding the MARC21 length limit
const TooLongMessage = "Record is too long to be a valid MARC binary record"

// EncodeError represents a record the encoder cannot turn into MARC.
// TooLong distinguishes oversized records from malformed input.
type EncodeError struct {
	Message string
	TooLong bool
	Length  int
	Cause   error
}

func (e *EncodeError) Error() string {
	if e.TooLong {
		return fmt.Sprintf("%s, it's length would be %d which is more than %d bytes", TooLongMessage, e.Length, maxRecordLength)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *EncodeError) Unwrap() error {
	return e.Cause
}

// IsTooLong reports whether err is an oversized-record failure
func IsTooLong(err error) bool {
	var encErr *EncodeError
	return errors.As(err, &encErr) && encErr.TooLong
}
