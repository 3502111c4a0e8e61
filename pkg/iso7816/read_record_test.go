package iso7816

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/gregLibert/emv-reader/pkg/tlv"
)

func TestReadRecordCommands(t *testing.T) {
	cls := ClassInterindustry

	tests := []struct {
		name     string
		cmd      *CommandAPDU
		expected []byte
	}{
		{
			name:     "Record 1 of SFI 1",
			cmd:      ReadRecord(cls, 1, 1),
			expected: tlv.Hex("00 B2 01 0C 00"),
		},
		{
			name:     "Record 5 of the current EF",
			cmd:      ReadRecord(cls, 0, 5),
			expected: tlv.Hex("00 B2 05 04 00"),
		},
		{
			name:     "Record 3 of SFI 30",
			cmd:      RecordRef{SFI: MaxSFI, Number: 3}.Command(cls),
			expected: tlv.Hex("00 B2 03 F4 00"),
		},
		{
			name:     "All records of SFI 2 from 1",
			cmd:      NewReadRecordCommand(cls, 2, 1, RecordsFromNumber),
			expected: tlv.Hex("00 B2 01 15 00"),
		},
		{
			name:     "SFI above 5 bits is truncated",
			cmd:      ReadRecord(cls, 0x21, 1),
			expected: tlv.Hex("00 B2 01 0C 00"),
		},
		{
			name:     "Proprietary class",
			cmd:      ReadRecord(ClassProprietary, 2, 4),
			expected: tlv.Hex("80 B2 04 14 00"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.cmd.Bytes()
			if err != nil {
				t.Fatalf("Failed to encode bytes: %v", err)
			}

			if diff := cmp.Diff(tt.expected, got); diff != "" {
				t.Errorf("READ RECORD encoding mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRecordRef_String(t *testing.T) {
	if got := (RecordRef{SFI: 2, Number: 7}).String(); got != "SFI 2 REC 7" {
		t.Errorf("String() = %q", got)
	}
}
