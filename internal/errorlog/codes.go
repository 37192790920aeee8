// Package errorlog records operator-facing audit entries for records skipped during export.
package errorlog

import (
	"fmt"
	"strings"
)

// Code identifies an error-log message template
type Code string

// Code constants
const (
	CodeRecordNotFound         Code = "error.recordNotFound"
	CodeDuplicateSRS           Code = "error.duplicateSrs"
	CodeConversion             Code = "error.conversion"
	CodeRecordTooLong          Code = "error.recordTooLong"
	CodeRuleBuild              Code = "error.ruleBuild"
	CodeUnaffiliatedTenants    Code = "error.unaffiliatedTenants"
	CodeNoViewPermission       Code = "error.noViewPermission"
	CodeDeletedProfileMismatch Code = "error.deletedProfileMismatch"
	CodeTenantUnreachable      Code = "error.tenantUnreachable"
	CodeSinkFailure            Code = "error.sinkFailure"
	CodeFetchFailure           Code = "error.fetchFailure"
)

var templates = map[Code]string{
	CodeRecordNotFound:         "Record not found: %s",
	CodeDuplicateSRS:           "HRID %s: more than one record found for %s",
	CodeConversion:             "Record %s could not be converted: %s",
	CodeRecordTooLong:          "Record %s: Record is too long to be a valid MARC binary record, it's length would be %s which is more than 99999 bytes",
	CodeRuleBuild:              "Mapping profile %s cannot be applied: %s",
	CodeUnaffiliatedTenants:    "%s - the user %s does not have permissions to access the holdings record in %s data tenant(s)",
	CodeNoViewPermission:       "User %s does not have permission to view %s records in tenant(s): %s",
	CodeDeletedProfileMismatch: "%s record %s skipped: job profile %s exports only %s records",
	CodeTenantUnreachable:      "Tenant %s is unreachable, %s record(s) reported as not found: %s",
	CodeSinkFailure:            "Output for shard %s could not be written: %s",
	CodeFetchFailure:           "Record ids for shard %s could not be read: %s",
}

// Format renders the message template of a code with the given values.
// Missing values render as empty strings; extra values are appended.
func Format(code Code, values ...string) string {
	tmpl, ok := templates[code]
	if !ok {
		return strings.TrimSpace(string(code) + " " + strings.Join(values, ", "))
	}

	want := strings.Count(tmpl, "%s")
	args := make([]any, want)
	for i := range args {
		if i < len(values) {
			args[i] = values[i]
		} else {
			args[i] = ""
		}
	}
	msg := fmt.Sprintf(tmpl, args...)
	if len(values) > want {
		msg += " (" + strings.Join(values[want:], ", ") + ")"
	}
	return msg
}
