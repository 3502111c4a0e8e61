package tlv

import (
	"fmt"
	"strings"
)

// DATA OBJECT LIST (DOL)
//
// A DOL (PDOL '9F38', CDOL1 '8C', ...) is a list of tag + length pairs with no
// values. The terminal answers it with the concatenation of the requested
// values, each exactly Length bytes long.
//
//	9F66 04  9F02 06  9F37 04  ->  [TTQ:4][Amount:6][Unpredictable Number:4]

// DOLEntry is one requested data object.
type DOLEntry struct {
	Tag    string
	Length int
}

// ParseDOL splits a DOL into its entries. Tags follow the same rules as
// Decode; lengths are single bytes (0-127), the long forms are rejected.
func ParseDOL(data []byte) ([]DOLEntry, error) {
	var entries []DOLEntry

	pos := 0
	for pos < len(data) {
		tag, tagLen, err := readTag(data[pos:])
		if err != nil {
			return nil, &DecodeError{Offset: pos, Err: err}
		}

		length, lenLen, err := readLength(data[pos+tagLen:])
		if err != nil {
			return nil, &DecodeError{Offset: pos + tagLen, Err: err}
		}
		if lenLen != 1 {
			return nil, &DecodeError{Offset: pos + tagLen, Err: fmt.Errorf("%w: DOL length must be one byte", ErrInvalidLength)}
		}

		entries = append(entries, DOLEntry{Tag: fmt.Sprintf("%X", tag), Length: length})
		pos += tagLen + lenLen
	}

	return entries, nil
}

// DOLDataLength returns the size of the data answering entries.
func DOLDataLength(entries []DOLEntry) int {
	total := 0
	for _, e := range entries {
		total += e.Length
	}
	return total
}

// BuildDOLData concatenates the values requested by entries.
//
// Values are fitted to the requested length: numeric data elements (tags in
// numeric) are left-padded with zeros and keep their rightmost bytes when too
// long, any other value is right-padded and keeps its leftmost bytes. Tags
// absent from values are zero-filled.
func BuildDOLData(entries []DOLEntry, values map[string][]byte, numeric map[string]bool) []byte {
	out := make([]byte, 0, DOLDataLength(entries))
	for _, e := range entries {
		field := make([]byte, e.Length)
		tag := strings.ToUpper(e.Tag)
		v := values[tag]

		switch {
		case numeric[tag] && len(v) >= e.Length:
			copy(field, v[len(v)-e.Length:])
		case numeric[tag]:
			copy(field[e.Length-len(v):], v)
		default:
			copy(field, v)
		}
		out = append(out, field...)
	}
	return out
}
