package iso7816

// SELECT (INS 'A4') makes a file or an application current.
//
//	P1 = selection method (04: by DF name, i.e. AID)
//	P2 = response control (bits 4-3) | occurrence (bits 2-1)
//
// EMV terminals select the payment directory and the applications by DF
// name and ask for the FCI.

// SelectionMethod is P1.
type SelectionMethod byte

const (
	SelectByFileID SelectionMethod = 0x00
	SelectByDFName SelectionMethod = 0x04
)

// FileOccurrence is bits 2-1 of P2.
type FileOccurrence byte

const (
	FirstOrOnlyOccurrence FileOccurrence = 0b00
	NextOccurrence        FileOccurrence = 0b10
)

// SelectionControl is bits 4-3 of P2.
type SelectionControl byte

const (
	ReturnFCI    SelectionControl = 0b0000
	ReturnNoData SelectionControl = 0b1100
)

// ProximityPaymentSystem is the DF name of the contactless directory (PPSE).
const ProximityPaymentSystem = "2PAY.SYS.DDF01"

// NewSelectCommand builds a SELECT command.
//
// Contactless cards run T=CL, which carries Lc and Le in the same frame, so
// every SELECT that expects an answer asks for up to 256 bytes (Le = 00).
func NewSelectCommand(cla Class, method SelectionMethod, occurrence FileOccurrence, ctrl SelectionControl, data []byte) *CommandAPDU {
	ne := 0
	if ctrl != ReturnNoData {
		ne = MaxShortLe
	}
	return NewCommandAPDU(cla, mustInstruction(INS_SELECT), byte(method), byte(ctrl)|byte(occurrence), data, ne)
}

// SelectByAID selects an application by its AID.
func SelectByAID(cla Class, aid []byte) *CommandAPDU {
	return NewSelectCommand(cla, SelectByDFName, FirstOrOnlyOccurrence, ReturnFCI, aid)
}

// SelectByName selects a DF by a textual name such as ProximityPaymentSystem.
func SelectByName(cla Class, name string) *CommandAPDU {
	return SelectByAID(cla, []byte(name))
}

// SelectNextByAID selects the next application whose AID starts with aid.
// Cards holding several applications of one RID answer them in turn.
func SelectNextByAID(cla Class, aid []byte) *CommandAPDU {
	return NewSelectCommand(cla, SelectByDFName, NextOccurrence, ReturnFCI, aid)
}
