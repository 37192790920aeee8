// Package marc turns source records into MARC21 binary records.
package marc

import (
	"slices"
	"strings"
)

// MARC21 structural bytes
const (
	fieldTerminator    = 0x1E
	subfieldDelimiter  = 0x1F
	recordTerminator   = 0x1D
	leaderLength       = 24
	directoryEntrySize = 12
	maxRecordLength    = 99999
	maxFieldLength     = 9999
)

// Leader/06 record types
const (
	TypeBibliographic = 'a'
	TypeHoldings      = 'u'
	TypeAuthority     = 'z'
)

// Leader/05 record statuses
const (
	StatusNew     = 'n'
	StatusDeleted = 'd'
)

// Options control the leader of an encoded record
type Options struct {
	// Type is leader/06; zero means bibliographic
	Type byte
	// Deleted sets leader/05 to 'd'
	Deleted bool
}

// Record is an in-memory MARC record
type Record struct {
	Leader string
	Fields []Field
}

// Field is a control field (Value set) or a data field (indicators and subfields)
type Field struct {
	Tag       string
	Value     string
	Ind1      string
	Ind2      string
	Subfields []Subfield
}

// Subfield is one coded value of a data field
type Subfield struct {
	Code  string
	Value string
}

// IsControl reports whether the field is a control field (001-009)
func (f Field) IsControl() bool {
	return len(f.Tag) == 3 && f.Tag < "010"
}

// sortFields orders fields by tag, keeping the relative order of equal tags
func sortFields(fields []Field) {
	slices.SortStableFunc(fields, func(a, b Field) int {
		return strings.Compare(a.Tag, b.Tag)
	})
}

// defaultLeader builds a leader for a generated record
func defaultLeader(opts Options) string {
	leader := []byte("00000nam a2200000 a 4500")
	if opts.Type != 0 {
		leader[6] = opts.Type
	}
	if opts.Type == TypeHoldings || opts.Type == TypeAuthority {
		leader[7] = ' '
	}
	if opts.Deleted {
		leader[5] = StatusDeleted
	}
	return string(leader)
}
