package rules

import (
	"strings"

	"github.com/jonathan/data-export/internal/types"
)

// defaultRecordTypes are the record types with built-in defaults, in output order
var defaultRecordTypes = []types.RecordType{types.RecordTypeInstance, types.RecordTypeHoldings}

// Factory assembles rule sets for mapping profiles.
// It holds no per-job state and is safe for concurrent use.
type Factory struct {
	catalog  *Catalog
	builders []Builder
	fallback Builder
}

// NewFactory creates a factory over a default catalog and a builder chain.
// A nil builder list uses DefaultBuilders.
func NewFactory(catalog *Catalog, builders []Builder) *Factory {
	if builders == nil {
		builders = DefaultBuilders()
	}
	return &Factory{
		catalog:  catalog,
		builders: builders,
		fallback: Builder{Name: "transformation", Build: buildTransformation, Mergeable: true},
	}
}

// GetRules builds the rules for a profile and applies the profile's suppression settings
func (f *Factory) GetRules(profile *types.MappingProfile) ([]Rule, error) {
	rules, err := f.BuildRules(profile)
	if err != nil {
		return nil, err
	}
	return Suppress(rules, profile), nil
}

// BuildRules assembles the ordered rule list for a profile without suppression.
// Defaults for instance then holdings come first, followed by rules synthesized from
// the profile's transformations in declaration order.
func (f *Factory) BuildRules(profile *types.MappingProfile) ([]Rule, error) {
	if profile == nil {
		return f.catalog.Defaults(types.RecordTypeInstance), nil
	}

	var rules []Rule
	included := make(map[string]bool)
	for _, rt := range defaultRecordTypes {
		if profile.HasRecordType(rt) && !profile.HasCustomTransformations(rt) {
			for _, r := range f.catalog.Defaults(rt) {
				included[r.ID] = true
				rules = append(rules, r)
			}
		}
	}

	built, err := f.buildTransformations(profile.Transformations, included)
	if err != nil {
		return nil, err
	}
	return append(rules, built...), nil
}

// buildTransformations dispatches each enabled transformation through the builder chain
// and folds mergeable rules sharing a tag and indicator pair. A non-mergeable rule whose
// id is already among the included defaults is dropped so the field is not emitted twice.
func (f *Factory) buildTransformations(transformations []types.Transformation, included map[string]bool) ([]Rule, error) {
	skipped := shadowedPermanentLocations(transformations)

	var rules []Rule
	merged := make(map[string]int) // tag+indicators -> index in rules
	for i, t := range transformations {
		if !t.Enabled || skipped[i] {
			continue
		}

		builder := f.dispatch(t)
		rule, err := builder.Build(t, f.catalog)
		if err != nil {
			return nil, err
		}

		if !builder.Mergeable {
			if !included[rule.ID] {
				included[rule.ID] = true
				rules = append(rules, rule)
			}
			continue
		}

		ind1, ind2 := rule.Indicators()
		key := rule.Field + ind1 + ind2
		if idx, ok := merged[key]; ok && !rule.IsControlField() {
			rules[idx].DataSources = append(rules[idx].DataSources, rule.SubfieldSources()...)
			continue
		}
		merged[key] = len(rules)
		rules = append(rules, rule)
	}
	return rules, nil
}

func (f *Factory) dispatch(t types.Transformation) Builder {
	for _, b := range f.builders {
		if b.Matches(t) {
			return b
		}
	}
	return f.fallback
}

// shadowedPermanentLocations returns the indexes of holdings permanent location
// transformations whose target spec is also claimed by a temporary location
// transformation; emitting both would produce the same field with conflicting meaning.
func shadowedPermanentLocations(transformations []types.Transformation) map[int]bool {
	temporary := make(map[string]bool)
	for _, t := range transformations {
		if isHoldingsLocation(t, "temporarylocation") {
			temporary[strings.TrimSpace(t.Transformation)] = true
		}
	}

	skipped := make(map[int]bool)
	for i, t := range transformations {
		if isHoldingsLocation(t, "permanentlocation") && temporary[strings.TrimSpace(t.Transformation)] {
			skipped[i] = true
		}
	}
	return skipped
}

func isHoldingsLocation(t types.Transformation, key string) bool {
	return t.Enabled &&
		t.RecordType == types.RecordTypeHoldings &&
		!t.IsBlank() &&
		strings.Contains(strings.ToLower(t.FieldID), key)
}
