package marc

import (
	"bytes"
	"fmt"

	"golang.org/x/text/unicode/norm"
)

// Marshal writes a record in ISO 2709 (MARC21 binary) form. Data is NFC-normalized.
// Records longer than 99999 bytes fail with a TooLong EncodeError.
func Marshal(rec *Record) (string, error) {
	var directory, data bytes.Buffer

	for _, f := range rec.Fields {
		if len(f.Tag) != 3 {
			return "", &EncodeError{Message: fmt.Sprintf("invalid tag %q", f.Tag)}
		}

		start := data.Len()
		if f.IsControl() {
			data.WriteString(norm.NFC.String(f.Value))
		} else {
			data.WriteString(indicator(f.Ind1))
			data.WriteString(indicator(f.Ind2))
			for _, sf := range f.Subfields {
				data.WriteByte(subfieldDelimiter)
				data.WriteString(sf.Code)
				data.WriteString(norm.NFC.String(sf.Value))
			}
		}
		data.WriteByte(fieldTerminator)

		length := data.Len() - start
		if length > maxFieldLength || start > maxRecordLength {
			return "", &EncodeError{TooLong: true, Length: estimatedLength(rec, data.Len())}
		}
		fmt.Fprintf(&directory, "%s%04d%05d", f.Tag, length, start)
	}

	base := leaderLength + directory.Len() + 1
	total := base + data.Len() + 1
	if total > maxRecordLength {
		return "", &EncodeError{TooLong: true, Length: total}
	}

	leader := []byte(rec.Leader)
	if len(leader) != leaderLength {
		leader = []byte(defaultLeader(Options{}))
	}
	copy(leader[0:5], fmt.Sprintf("%05d", total))
	leader[9] = 'a'
	leader[10] = '2'
	leader[11] = '2'
	copy(leader[12:17], fmt.Sprintf("%05d", base))
	copy(leader[20:24], "4500")

	var out bytes.Buffer
	out.Grow(total)
	out.Write(leader)
	out.Write(directory.Bytes())
	out.WriteByte(fieldTerminator)
	out.Write(data.Bytes())
	out.WriteByte(recordTerminator)
	return out.String(), nil
}

func indicator(ind string) string {
	if len(ind) != 1 {
		return " "
	}
	return ind
}

// estimatedLength reports a lower bound of the record length once a field overflows
func estimatedLength(rec *Record, dataLen int) int {
	return leaderLength + len(rec.Fields)*directoryEntrySize + 1 + dataLen + 1
}
