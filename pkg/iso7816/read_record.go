package iso7816

import (
	"fmt"
)

// READ RECORD (INS 'B2') reads one record of a linear file. EMV terminals
// only use the "record number in P1" form, addressing files by their Short
// File Identifier:
//
//	P1 = record number (1-254; 00 designates the current record)
//	P2 = SFI in bits 8-4, '100' in bits 3-1
//
// A record that does not exist answers 6A83, an unknown SFI 6A82.

// ReadRecordMode is the P2 reference control (bits 3-1).
type ReadRecordMode byte

const (
	// RecordByNumber reads the record whose number is P1.
	RecordByNumber ReadRecordMode = 0b100
	// RecordsFromNumber reads every record from P1 to the last one.
	RecordsFromNumber ReadRecordMode = 0b101
)

// MaxSFI is the highest Short File Identifier (5 bits, 31 is reserved).
const MaxSFI = 30

// RecordRef addresses one record by SFI and record number.
type RecordRef struct {
	SFI    byte
	Number byte
}

func (r RecordRef) String() string {
	return fmt.Sprintf("SFI %d REC %d", r.SFI, r.Number)
}

// Command builds the READ RECORD command for r.
func (r RecordRef) Command(cla Class) *CommandAPDU {
	return NewReadRecordCommand(cla, r.SFI, r.Number, RecordByNumber)
}

// NewReadRecordCommand builds a READ RECORD command. Only the low 5 bits of
// sfi are used; SFI 0 addresses the current EF.
func NewReadRecordCommand(cla Class, sfi, p1 byte, mode ReadRecordMode) *CommandAPDU {
	p2 := (sfi&0x1F)<<3 | byte(mode&0x07)

	// Case 2: no data sent, up to 256 bytes expected (Le = 00).
	return NewCommandAPDU(cla, mustInstruction(INS_READ_RECORD), p1, p2, nil, MaxShortLe)
}

// ReadRecord reads record number recordNumber of file sfi.
func ReadRecord(cla Class, sfi, recordNumber byte) *CommandAPDU {
	return RecordRef{SFI: sfi, Number: recordNumber}.Command(cla)
}
