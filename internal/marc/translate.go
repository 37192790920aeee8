package marc

import (
	"time"

	"github.com/jonathan/data-export/internal/rules"
	"github.com/jonathan/data-export/internal/types"
)

// transactionLayout is the MARC 005 date and time format
const transactionLayout = "20060102150405.0"

var sourceTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000-0700",
	"2006-01-02T15:04:05.000Z0700",
	"2006-01-02",
}

// referenceTables maps table-backed translation functions to reference data tables
var referenceTables = map[string]string{
	rules.FuncSetLocation:            "locations",
	rules.FuncSetMaterialType:        "material_types",
	rules.FuncSetInstanceTypeID:      "instance_types",
	rules.FuncSetContributorNameType: "contributor_name_types",
}

// translate applies a translation function to a source value. An empty result means
// the value is omitted from the output.
func translate(tr *rules.Translation, value string, ref *types.ReferenceData) (string, error) {
	if tr == nil {
		return value, nil
	}

	if table, ok := referenceTables[tr.Function]; ok {
		field := tr.Parameters["field"]
		if field == "" {
			field = "name"
		}
		out, _ := ref.Lookup(table, value, field)
		return out, nil
	}

	switch tr.Function {
	case rules.FuncSetValue:
		return tr.Parameters["value"], nil
	case rules.FuncSetTransactionDate:
		for _, layout := range sourceTimeLayouts {
			if t, err := time.Parse(layout, value); err == nil {
				return t.UTC().Format(transactionLayout), nil
			}
		}
		return "", nil
	default:
		return "", &EncodeError{Message: "unknown translation function " + tr.Function}
	}
}
