package iso7816

import (
	"fmt"

	"github.com/gregLibert/emv-reader/pkg/bits"
)

// Instruction Byte (INS) Logic according to ISO/IEC 7816-4.
//
// 1. Data Encoding (Bit 1):
//    Under the interindustry class, bit 1 set means the data field is BER-TLV encoded.
//    Example: READ RECORD (0xB2) vs READ RECORD (BER-TLV) (0xB3).
//
// 2. Reserved Ranges:
//    INS values '6X' and '9X' are invalid; they are reserved for SW1 values and
//    transport procedure bytes (ISO/IEC 7816-3).

// InsCode is a typed representation of the instruction byte.
type InsCode byte

// Instruction codes used by the EMV contactless flow.
const (
	INS_VERIFY                  InsCode = 0x20
	INS_EXTERNAL_AUTHENTICATE   InsCode = 0x82
	INS_GET_CHALLENGE           InsCode = 0x84
	INS_INTERNAL_AUTHENTICATE   InsCode = 0x88
	INS_SELECT                  InsCode = 0xA4
	INS_GET_PROCESSING_OPTIONS  InsCode = 0xA8 // EMV, CLA '80'
	INS_GENERATE_AC             InsCode = 0xAE // EMV, CLA '80'
	INS_READ_BINARY             InsCode = 0xB0
	INS_READ_RECORD             InsCode = 0xB2
	INS_READ_RECORD_BER         InsCode = 0xB3
	INS_GET_RESPONSE            InsCode = 0xC0
	INS_GET_DATA                InsCode = 0xCA
	INS_COMPUTE_CRYPTO_CHECKSUM InsCode = 0x2A // Mastercard magstripe mode, CLA '80'
)

var insNames = map[InsCode]string{
	INS_VERIFY:                  "INS_VERIFY",
	INS_EXTERNAL_AUTHENTICATE:   "INS_EXTERNAL_AUTHENTICATE",
	INS_GET_CHALLENGE:           "INS_GET_CHALLENGE",
	INS_INTERNAL_AUTHENTICATE:   "INS_INTERNAL_AUTHENTICATE",
	INS_SELECT:                  "INS_SELECT",
	INS_GET_PROCESSING_OPTIONS:  "INS_GET_PROCESSING_OPTIONS",
	INS_GENERATE_AC:             "INS_GENERATE_AC",
	INS_READ_BINARY:             "INS_READ_BINARY",
	INS_READ_RECORD:             "INS_READ_RECORD",
	INS_READ_RECORD_BER:         "INS_READ_RECORD_BER",
	INS_GET_RESPONSE:            "INS_GET_RESPONSE",
	INS_GET_DATA:                "INS_GET_DATA",
	INS_COMPUTE_CRYPTO_CHECKSUM: "INS_COMPUTE_CRYPTO_CHECKSUM",
}

func (i InsCode) String() string {
	if name, ok := insNames[i]; ok {
		return name
	}
	return fmt.Sprintf("InsCode(0x%02X)", byte(i))
}

// Instruction represents the parsed ISO 7816-4 Instruction byte (INS).
type Instruction struct {
	Raw      InsCode
	IsBERTLV bool
}

// NewInstruction creates an Instruction object with validation.
// It rejects '6X' and '9X' values as they are invalid according to ISO 7816-3.
func NewInstruction(ins InsCode) (Instruction, error) {
	highNibble := byte(ins) & 0xF0
	if highNibble == 0x60 || highNibble == 0x90 {
		return Instruction{}, fmt.Errorf("invalid INS 0x%02X: 6X and 9X are reserved", byte(ins))
	}

	return Instruction{
		Raw:      ins,
		IsBERTLV: bits.IsSet(byte(ins), 1),
	}, nil
}

// mustInstruction is used by the builders of this package, whose INS codes are constants.
func mustInstruction(ins InsCode) Instruction {
	i, err := NewInstruction(ins)
	if err != nil {
		panic(err)
	}
	return i
}

// Verbose returns a human-readable description of the instruction.
func (i Instruction) Verbose() string {
	format := "Standard"
	if i.IsBERTLV {
		format = "BER-TLV"
	}
	return fmt.Sprintf("INS: 0x%02X | Command: %s | Format: %s", byte(i.Raw), i.Raw.String(), format)
}
