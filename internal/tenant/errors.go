package tenant

import "fmt"

// LookupError represents a failed call to a tenant's store or to the consortium directory.
// The resolver never returns it; it is logged and the affected ids become not found.
type LookupError struct {
	Tenant  string
	Message string
	Cause   error
}

func (e *LookupError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("tenant %s: %s: %v", e.Tenant, e.Message, e.Cause)
	}
	return fmt.Sprintf("tenant %s: %s", e.Tenant, e.Message)
}

func (e *LookupError) Unwrap() error {
	return e.Cause
}
