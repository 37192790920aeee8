package rules

import (
	"fmt"
	"strings"
)

// Target is a parsed transformation target spec such as "900ff$a" or "001"
type Target struct {
	Tag      string
	Ind1     string
	Ind2     string
	Subfield string
}

// ParseTarget parses a transformation target spec.
// Control fields (001-009) carry only a tag; data fields carry a tag, an optional
// indicator pair (blank when omitted) and a single subfield code after '$'.
func ParseTarget(spec string) (Target, error) {
	spec = strings.TrimRight(spec, "\r\n")
	if len(spec) < 3 {
		return Target{}, fmt.Errorf("target %q is shorter than a MARC tag", spec)
	}

	tag := spec[:3]
	for _, c := range tag {
		if c < '0' || c > '9' {
			return Target{}, fmt.Errorf("target %q has non-numeric tag", spec)
		}
	}

	rest := spec[3:]
	if isControlTag(tag) {
		if strings.TrimSpace(rest) != "" {
			return Target{}, fmt.Errorf("control field %s cannot carry indicators or subfields", tag)
		}
		return Target{Tag: tag}, nil
	}

	dollar := strings.IndexByte(rest, '$')
	if dollar < 0 {
		return Target{}, fmt.Errorf("target %q has no subfield", spec)
	}

	indicators := rest[:dollar]
	switch len(indicators) {
	case 0:
		indicators = "  "
	case 2:
	default:
		return Target{}, fmt.Errorf("target %q must have exactly two indicators", spec)
	}
	for _, c := range indicators {
		if !isIndicatorChar(c) {
			return Target{}, fmt.Errorf("target %q has invalid indicator %q", spec, c)
		}
	}

	subfield := rest[dollar+1:]
	if len(subfield) != 1 || !isSubfieldChar(rune(subfield[0])) {
		return Target{}, fmt.Errorf("target %q must name exactly one subfield code", spec)
	}

	return Target{
		Tag:      tag,
		Ind1:     normalizeIndicator(indicators[0:1]),
		Ind2:     normalizeIndicator(indicators[1:2]),
		Subfield: subfield,
	}, nil
}

// String renders the target back to its spec form
func (t Target) String() string {
	if isControlTag(t.Tag) {
		return t.Tag
	}
	return t.Tag + t.Ind1 + t.Ind2 + "$" + t.Subfield
}

func isControlTag(tag string) bool {
	return len(tag) == 3 && tag < "010"
}

func isIndicatorChar(c rune) bool {
	return c == ' ' || c == '\\' || (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z')
}

func isSubfieldChar(c rune) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z')
}

// normalizeIndicator maps the backslash placeholder used in profiles to a blank
func normalizeIndicator(ind string) string {
	if ind == "\\" {
		return " "
	}
	return ind
}
