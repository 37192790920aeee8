package marc

import (
	"bytes"
	"encoding/json"
	"slices"

	"github.com/jonathan/data-export/internal/rules"
	"github.com/jonathan/data-export/internal/types"
)

// Encoder applies rules to source trees and writes MARC21 binary records.
// It is stateless and safe for concurrent use.
type Encoder struct{}

// NewEncoder creates an Encoder
func NewEncoder() *Encoder {
	return &Encoder{}
}

// NewTree builds the source tree rules are evaluated against:
// {"instance": {...}, "holdings": [...], "items": [...]}.
func NewTree(instance json.RawMessage, holdings, items []json.RawMessage) (map[string]any, error) {
	tree := map[string]any{}
	if len(instance) > 0 {
		v, err := decode(instance)
		if err != nil {
			return nil, err
		}
		tree["instance"] = v
	}

	for key, docs := range map[string][]json.RawMessage{"holdings": holdings, "items": items} {
		list := make([]any, 0, len(docs))
		for _, doc := range docs {
			v, err := decode(doc)
			if err != nil {
				return nil, err
			}
			list = append(list, v)
		}
		tree[key] = list
	}
	return tree, nil
}

func decode(doc json.RawMessage) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(doc))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, &EncodeError{Message: "malformed source JSON", Cause: err}
	}
	return v, nil
}

// Encode applies the rules to a source tree and returns the binary record
func (e *Encoder) Encode(tree any, rs []rules.Rule, ref *types.ReferenceData, opts Options) (string, error) {
	fields, err := e.Fields(tree, rs, ref)
	if err != nil {
		return "", err
	}
	if len(fields) == 0 {
		return "", &EncodeError{Message: "rules produced no fields for the record"}
	}
	sortFields(fields)
	return Marshal(&Record{Leader: defaultLeader(opts), Fields: fields})
}

// EncodeStored re-encodes a stored MARC-in-JSON record with extra fields merged in
func (e *Encoder) EncodeStored(content []byte, extra []Field, opts Options) (string, error) {
	rec, err := ParseJSON(content)
	if err != nil {
		return "", err
	}
	if len(rec.Leader) != leaderLength {
		rec.Leader = defaultLeader(opts)
	}
	if opts.Deleted {
		leader := []byte(rec.Leader)
		leader[5] = StatusDeleted
		rec.Leader = string(leader)
	}
	rec.Fields = append(rec.Fields, extra...)
	sortFields(rec.Fields)
	return Marshal(rec)
}

// Fields evaluates the rules against a source tree. Data fields get one occurrence per
// index of the first wildcard in their sources; values from sources without a wildcard
// repeat in every occurrence.
func (e *Encoder) Fields(tree any, rs []rules.Rule, ref *types.ReferenceData) ([]Field, error) {
	var fields []Field
	for _, rule := range rs {
		var (
			produced []Field
			err      error
		)
		if rule.IsControlField() {
			produced, err = controlField(tree, rule, ref)
		} else {
			produced, err = dataFields(tree, rule, ref)
		}
		if err != nil {
			return nil, err
		}
		fields = append(fields, produced...)
	}
	return fields, nil
}

func controlField(tree any, rule rules.Rule, ref *types.ReferenceData) ([]Field, error) {
	for _, ds := range rule.DataSources {
		if ds.IsIndicator() || ds.From == "" {
			continue
		}
		matches, err := selectPath(tree, ds.From)
		if err != nil {
			return nil, &EncodeError{Message: "rule " + rule.ID, Cause: err}
		}
		for _, m := range matches {
			value, err := translate(ds.Translation, m.value, ref)
			if err != nil {
				return nil, err
			}
			if value != "" {
				return []Field{{Tag: rule.Field, Value: value}}, nil
			}
		}
	}
	return nil, nil
}

func dataFields(tree any, rule rules.Rule, ref *types.ReferenceData) ([]Field, error) {
	sources := rule.SubfieldSources()
	perSource := make([][]match, len(sources))
	var occurrences []int
	for i, ds := range sources {
		if ds.From == "" {
			continue
		}
		matches, err := selectPath(tree, ds.From)
		if err != nil {
			return nil, &EncodeError{Message: "rule " + rule.ID, Cause: err}
		}
		perSource[i] = matches
		for _, m := range matches {
			if m.occurrence != noIndex && !slices.Contains(occurrences, m.occurrence) {
				occurrences = append(occurrences, m.occurrence)
			}
		}
	}
	slices.Sort(occurrences)
	if len(occurrences) == 0 {
		occurrences = []int{noIndex}
	}

	ind1, ind2 := rule.Indicators()
	var fields []Field
	for _, occ := range occurrences {
		field := Field{Tag: rule.Field, Ind1: ind1, Ind2: ind2}
		for i, ds := range sources {
			for _, m := range perSource[i] {
				if m.occurrence != occ && m.occurrence != noIndex {
					continue
				}
				value, err := translate(ds.Translation, m.value, ref)
				if err != nil {
					return nil, err
				}
				if value != "" {
					field.Subfields = append(field.Subfields, Subfield{Code: ds.Subfield, Value: value})
				}
			}
		}
		if len(field.Subfields) > 0 {
			fields = append(fields, field)
		}
	}
	return fields, nil
}
