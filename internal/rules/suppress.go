package rules

import "github.com/jonathan/data-export/internal/types"

// Suppress removes rules the profile suppresses: first the 999ff rule when
// Suppress999ff is set, then every rule whose tag appears in FieldsSuppression.
// The input slice is not modified.
func Suppress(rules []Rule, profile *types.MappingProfile) []Rule {
	if profile == nil {
		return rules
	}

	out := rules
	if profile.Suppress999ff {
		out = filterRules(out, func(r Rule) bool {
			ind1, ind2 := r.Indicators()
			return !(r.Field == "999" && ind1 == "f" && ind2 == "f")
		})
	}

	if tags := profile.SuppressedTags(); len(tags) > 0 {
		out = filterRules(out, func(r Rule) bool {
			return !containsTag(tags, r.Field)
		})
	}
	return out
}

func filterRules(rules []Rule, keep func(Rule) bool) []Rule {
	out := make([]Rule, 0, len(rules))
	for _, r := range rules {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}
