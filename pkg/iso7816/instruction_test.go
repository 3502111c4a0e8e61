package iso7816

import (
	"strings"
	"testing"
)

func TestNewInstruction(t *testing.T) {
	tests := []struct {
		name    string
		ins     InsCode
		wantErr bool
		wantBER bool
	}{
		{name: "Select (A4)", ins: INS_SELECT},
		{name: "Read Record BER (B3)", ins: INS_READ_RECORD_BER, wantBER: true},
		{name: "GPO (A8)", ins: INS_GET_PROCESSING_OPTIONS},
		{name: "Invalid INS 6X", ins: 0x6A, wantErr: true},
		{name: "Invalid INS 9X", ins: 0x90, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewInstruction(tt.ins)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewInstruction(0x%02X) error = %v, wantErr %v", byte(tt.ins), err, tt.wantErr)
				return
			}
			if !tt.wantErr && got.IsBERTLV != tt.wantBER {
				t.Errorf("NewInstruction(0x%02X).IsBERTLV = %v, want %v", byte(tt.ins), got.IsBERTLV, tt.wantBER)
			}
		})
	}
}

func TestInstruction_Verbose(t *testing.T) {
	tests := []struct {
		ins      InsCode
		contains []string
	}{
		{INS_SELECT, []string{"INS: 0xA4", "Command: INS_SELECT", "Format: Standard"}},
		{INS_READ_RECORD_BER, []string{"INS: 0xB3", "Command: INS_READ_RECORD_BER", "Format: BER-TLV"}},
		{0xE0, []string{"INS: 0xE0", "InsCode(0xE0)"}},
	}

	for _, tt := range tests {
		i, _ := NewInstruction(tt.ins)
		desc := i.Verbose()
		for _, part := range tt.contains {
			if !strings.Contains(desc, part) {
				t.Errorf("Verbose() = %q; want containing %q", desc, part)
			}
		}
	}
}
