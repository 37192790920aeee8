// Package rules assembles the ordered MARC field-transformation rules for a mapping profile.
package rules

import (
	"maps"
	"slices"
)

// Translation functions understood by the MARC encoder
const (
	FuncSetValue               = "set_value"
	FuncSetLocation            = "set_location"
	FuncSetMaterialType        = "set_material_type"
	FuncSetInstanceTypeID      = "set_instance_type_id"
	FuncSetTransactionDate     = "set_transaction_datetime"
	FuncSetContributorNameType = "set_contributor_name_type_id"
)

// Rule is one resolved MARC field definition consumed by the encoder
type Rule struct {
	ID          string            `json:"id" yaml:"id"`
	Field       string            `json:"field" yaml:"field"`
	Description string            `json:"description,omitempty" yaml:"description,omitempty"`
	DataSources []DataSource      `json:"dataSources" yaml:"dataSources"`
	Metadata    map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// DataSource feeds either a subfield or an indicator slot of a rule's field.
// Exactly one of Subfield or Indicator is set for data fields; control fields use neither.
type DataSource struct {
	From        string       `json:"from,omitempty" yaml:"from,omitempty"`
	Subfield    string       `json:"subfield,omitempty" yaml:"subfield,omitempty"`
	Indicator   string       `json:"indicator,omitempty" yaml:"indicator,omitempty"`
	Translation *Translation `json:"translation,omitempty" yaml:"translation,omitempty"`
}

// Translation post-processes a data source value
type Translation struct {
	Function   string            `json:"function" yaml:"function"`
	Parameters map[string]string `json:"parameters,omitempty" yaml:"parameters,omitempty"`
}

// IsIndicator reports whether the data source fills an indicator slot
func (ds DataSource) IsIndicator() bool {
	return ds.Indicator != ""
}

// IsControlField reports whether the rule targets a MARC control field (001-009)
func (r Rule) IsControlField() bool {
	return isControlTag(r.Field)
}

// Indicators returns the constant indicator pair of the rule; unset slots are blank
func (r Rule) Indicators() (string, string) {
	ind1, ind2 := " ", " "
	for _, ds := range r.DataSources {
		if !ds.IsIndicator() || ds.Translation == nil || ds.Translation.Function != FuncSetValue {
			continue
		}
		value := ds.Translation.Parameters["value"]
		if value == "" {
			continue
		}
		switch ds.Indicator {
		case "1":
			ind1 = value
		case "2":
			ind2 = value
		}
	}
	return ind1, ind2
}

// SubfieldSources returns the data sources that fill subfields, in order
func (r Rule) SubfieldSources() []DataSource {
	var sources []DataSource
	for _, ds := range r.DataSources {
		if !ds.IsIndicator() {
			sources = append(sources, ds)
		}
	}
	return sources
}

// Clone returns a deep copy of the rule
func (r Rule) Clone() Rule {
	out := r
	out.Metadata = maps.Clone(r.Metadata)
	out.DataSources = make([]DataSource, len(r.DataSources))
	for i, ds := range r.DataSources {
		if ds.Translation != nil {
			tr := *ds.Translation
			tr.Parameters = maps.Clone(ds.Translation.Parameters)
			ds.Translation = &tr
		}
		out.DataSources[i] = ds
	}
	return out
}

// indicatorSource builds a constant indicator data source
func indicatorSource(slot, value string) DataSource {
	return DataSource{
		Indicator: slot,
		Translation: &Translation{
			Function:   FuncSetValue,
			Parameters: map[string]string{"value": value},
		},
	}
}

func cloneAll(rules []Rule) []Rule {
	out := make([]Rule, 0, len(rules))
	for _, r := range rules {
		out = append(out, r.Clone())
	}
	return out
}

func containsTag(tags []string, tag string) bool {
	return slices.Contains(tags, tag)
}
