package rules

import (
	"maps"
	"strings"

	"github.com/jonathan/data-export/internal/types"
)

// BuildFunc synthesizes a rule for one transformation
type BuildFunc func(t types.Transformation, catalog *Catalog) (Rule, error)

// Builder is one (predicate, builder) pair of the dispatch chain.
// Mergeable rules that share a tag and indicator pair are folded into one rule.
type Builder struct {
	Name      string
	Matches   func(t types.Transformation) bool
	Build     BuildFunc
	Mergeable bool
}

// combinedKey maps a field id substring to the subfield it selects from a combined default rule
type combinedKey struct {
	key      string
	subfield string
}

// Ordered most specific first: "callnumber" matches every call number part.
var combinedKeys = []combinedKey{
	{key: "callnumber.prefix", subfield: "k"},
	{key: "callnumber.suffix", subfield: "m"},
	{key: "callnumber", subfield: "h"},
}

// translationKey selects a translation function for generic rules by field id substring
type translationKey struct {
	key      string
	function string
	table    bool // parameter "field" comes from the field id's last segment
}

var translationKeys = []translationKey{
	{key: "permanentlocation", function: FuncSetLocation, table: true},
	{key: "temporarylocation", function: FuncSetLocation, table: true},
	{key: "effectivelocation", function: FuncSetLocation, table: true},
	{key: "materialtype", function: FuncSetMaterialType, table: true},
	{key: "instancetype", function: FuncSetInstanceTypeID, table: true},
	{key: "contributornametype", function: FuncSetContributorNameType, table: true},
	{key: "metadata.updateddate", function: FuncSetTransactionDate},
}

// DefaultBuilders returns the dispatch chain used for profile transformations:
// combined call number parts, then catalog defaults. Transformations matching neither
// fall through to the generic single-subfield builder.
func DefaultBuilders() []Builder {
	return []Builder{
		{
			Name: "combined",
			Matches: func(t types.Transformation) bool {
				return t.IsBlank() && matchCombined(t.FieldID) != nil
			},
			Build:     buildCombined,
			Mergeable: true,
		},
		{
			Name: "default",
			Matches: func(t types.Transformation) bool {
				return t.IsBlank()
			},
			Build: buildDefault,
		},
	}
}

func matchCombined(fieldID string) *combinedKey {
	id := strings.ToLower(fieldID)
	for i := range combinedKeys {
		if strings.Contains(id, combinedKeys[i].key) {
			return &combinedKeys[i]
		}
	}
	return nil
}

// buildCombined keeps one subfield of a combined default rule (e.g. only the call
// number prefix of the 852 rule), preserving the parent's indicators.
func buildCombined(t types.Transformation, catalog *Catalog) (Rule, error) {
	ck := matchCombined(t.FieldID)
	id := strings.ToLower(t.FieldID)
	parentID := id[:strings.Index(id, "callnumber")+len("callnumber")]

	parent, ok := catalog.Find(parentID)
	if !ok {
		return Rule{}, &BuildError{FieldID: t.FieldID, Message: "no combined default rule " + parentID}
	}

	rule := Rule{
		ID:          t.FieldID,
		Field:       parent.Field,
		Description: parent.Description,
		Metadata:    maps.Clone(parent.Metadata),
	}
	found := false
	for _, ds := range parent.DataSources {
		if ds.IsIndicator() {
			rule.DataSources = append(rule.DataSources, ds)
			continue
		}
		if ds.Subfield == ck.subfield {
			rule.DataSources = append(rule.DataSources, ds)
			found = true
		}
	}
	if !found {
		return Rule{}, &BuildError{FieldID: t.FieldID, Message: "combined rule " + parentID + " has no subfield $" + ck.subfield}
	}
	return rule.Clone(), nil
}

// buildDefault copies the catalog default rule with the transformation's field id
func buildDefault(t types.Transformation, catalog *Catalog) (Rule, error) {
	rule, ok := catalog.Find(strings.ToLower(t.FieldID))
	if !ok {
		return Rule{}, &BuildError{FieldID: t.FieldID, Message: "no default rule for blank transformation"}
	}
	return rule, nil
}

// buildTransformation is the generic builder: one rule with the indicator pair and a
// single subfield sourced from the transformation path.
func buildTransformation(t types.Transformation, _ *Catalog) (Rule, error) {
	target, err := ParseTarget(t.Transformation)
	if err != nil {
		return Rule{}, &BuildError{FieldID: t.FieldID, Message: "invalid target", Cause: err}
	}

	source := DataSource{From: t.Path, Translation: translationFor(t)}
	rule := Rule{ID: t.FieldID, Field: target.Tag}
	if isControlTag(target.Tag) {
		rule.DataSources = []DataSource{source}
		return rule, nil
	}

	source.Subfield = target.Subfield
	rule.DataSources = []DataSource{
		indicatorSource("1", target.Ind1),
		indicatorSource("2", target.Ind2),
		source,
	}
	return rule, nil
}

// translationFor picks a translation by field id; metadata entries become parameters
func translationFor(t types.Transformation) *Translation {
	id := strings.ToLower(t.FieldID)
	for _, tk := range translationKeys {
		if !strings.Contains(id, tk.key) {
			continue
		}
		params := map[string]string{}
		if tk.table {
			params["field"] = "name"
			if rest := id[strings.Index(id, tk.key)+len(tk.key):]; strings.HasPrefix(rest, ".") && len(rest) > 1 {
				params["field"] = rest[1:]
			}
		}
		maps.Copy(params, t.Metadata)
		return &Translation{Function: tk.function, Parameters: params}
	}
	if fn, ok := t.Metadata["function"]; ok {
		params := maps.Clone(t.Metadata)
		delete(params, "function")
		return &Translation{Function: fn, Parameters: params}
	}
	return nil
}
