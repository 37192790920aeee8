package marc

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// jsonRecord is the MARC-in-JSON representation used for stored records
type jsonRecord struct {
	Leader string                       `json:"leader"`
	Fields []map[string]json.RawMessage `json:"fields"`
}

type jsonDataField struct {
	Ind1      string              `json:"ind1"`
	Ind2      string              `json:"ind2"`
	Subfields []map[string]string `json:"subfields"`
}

// ParseJSON decodes a MARC-in-JSON document
func ParseJSON(content []byte) (*Record, error) {
	var doc jsonRecord
	if err := json.Unmarshal(content, &doc); err != nil {
		return nil, &EncodeError{Message: "malformed MARC JSON", Cause: err}
	}

	rec := &Record{Leader: doc.Leader}
	for _, entry := range doc.Fields {
		if len(entry) != 1 {
			return nil, &EncodeError{Message: fmt.Sprintf("MARC JSON field must have exactly one tag, got %d", len(entry))}
		}
		for tag, raw := range entry {
			field, err := parseJSONField(tag, raw)
			if err != nil {
				return nil, err
			}
			rec.Fields = append(rec.Fields, field)
		}
	}
	return rec, nil
}

func parseJSONField(tag string, raw json.RawMessage) (Field, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '"' {
		var value string
		if err := json.Unmarshal(raw, &value); err != nil {
			return Field{}, &EncodeError{Message: "malformed control field " + tag, Cause: err}
		}
		return Field{Tag: tag, Value: value}, nil
	}

	var df jsonDataField
	if err := json.Unmarshal(raw, &df); err != nil {
		return Field{}, &EncodeError{Message: "malformed data field " + tag, Cause: err}
	}
	field := Field{Tag: tag, Ind1: df.Ind1, Ind2: df.Ind2}
	for _, sf := range df.Subfields {
		for code, value := range sf {
			field.Subfields = append(field.Subfields, Subfield{Code: code, Value: value})
		}
	}
	return field, nil
}
