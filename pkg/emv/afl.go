package emv

import (
	"errors"
	"fmt"

	"github.com/gregLibert/emv-reader/pkg/bits"
	"github.com/gregLibert/emv-reader/pkg/iso7816"
)

// APPLICATION FILE LOCATOR (AFL), tag '94'.
//
// A sequence of 4 byte entries:
//
//	byte 1: SFI in bits 8-4 (bits 3-1 are zero)
//	byte 2: first record number
//	byte 3: last record number
//	byte 4: number of records involved in offline data authentication

// ErrMalformedAFL is returned for an AFL that violates the entry rules.
var ErrMalformedAFL = errors.New("malformed AFL")

// AFLEntry designates a range of records of one elementary file.
type AFLEntry struct {
	SFI      byte
	First    byte
	Last     byte
	ODACount byte
}

// Records returns the record numbers of the entry, in reading order.
func (e AFLEntry) Records() []byte {
	records := make([]byte, 0, int(e.Last)-int(e.First)+1)
	for r := int(e.First); r <= int(e.Last); r++ {
		records = append(records, byte(r))
	}
	return records
}

// ParseAFL decodes and validates an AFL.
func ParseAFL(data []byte) ([]AFLEntry, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("%w: length %d is not a multiple of 4", ErrMalformedAFL, len(data))
	}

	entries := make([]AFLEntry, 0, len(data)/4)
	for i := 0; i < len(data); i += 4 {
		e := AFLEntry{
			SFI:      bits.GetRange(data[i], 8, 4),
			First:    data[i+1],
			Last:     data[i+2],
			ODACount: data[i+3],
		}

		switch {
		case bits.GetRange(data[i], 3, 1) != 0:
			return nil, fmt.Errorf("%w: entry %d: reserved SFI bits set in %02X", ErrMalformedAFL, i/4+1, data[i])
		case e.SFI < 1 || e.SFI > iso7816.MaxSFI:
			return nil, fmt.Errorf("%w: entry %d: SFI %d out of range", ErrMalformedAFL, i/4+1, e.SFI)
		case e.First == 0 || e.Last < e.First:
			return nil, fmt.Errorf("%w: entry %d: invalid record range %d-%d", ErrMalformedAFL, i/4+1, e.First, e.Last)
		case int(e.ODACount) > int(e.Last)-int(e.First)+1:
			return nil, fmt.Errorf("%w: entry %d: %d ODA records for range %d-%d", ErrMalformedAFL, i/4+1, e.ODACount, e.First, e.Last)
		}

		entries = append(entries, e)
	}

	return entries, nil
}
