package iso7816

import (
	"fmt"
	"strings"
)

// TRANSACTION:
// A Transaction represents the atomic unit of communication:
// one Command APDU (C-APDU) sent by the terminal, followed by one Response APDU (R-APDU)
// sent back by the card.
//
// TRACE:
// A Trace is a chronological sequence of Transactions. It captures the full history of a
// logical operation. A single logical intent (e.g., "Select Application") may result in
// multiple physical transactions due to 61XX / 6CXX handling (see Client).
//
// In these cases, the Trace contains the entire conversation, and IsSuccess() evaluates
// the final outcome.

// Transaction represents a completed Command-Response pair.
type Transaction struct {
	Command  *CommandAPDU
	Response *ResponseAPDU
}

// IsSuccess checks if the transaction ended with a successful status.
// It returns false if the response is missing.
func (t *Transaction) IsSuccess() bool {
	if t.Response == nil {
		return false
	}
	return t.Response.Status.IsSuccess()
}

// Trace is a sequence of transactions (Command-Response pairs).
type Trace []Transaction

// Last returns the final transaction of the trace.
// Returns nil if the trace is empty.
func (t Trace) Last() *Transaction {
	if len(t) == 0 {
		return nil
	}
	return &t[len(t)-1]
}

// IsSuccess checks if the FINAL transaction in the trace was successful.
func (t Trace) IsSuccess() bool {
	last := t.Last()
	if last == nil {
		return false
	}
	return last.IsSuccess()
}

// Status returns the status word of the final transaction, or 0 for an empty trace.
func (t Trace) Status() StatusWord {
	last := t.Last()
	if last == nil || last.Response == nil {
		return 0
	}
	return last.Response.Status
}

// Data returns the response payload of the final transaction.
func (t Trace) Data() []byte {
	last := t.Last()
	if last == nil || last.Response == nil {
		return nil
	}
	return last.Response.Data
}

// Describe returns one line per C-APDU and R-APDU, suitable for debug logs.
//
//	>> 00A4040007A000000003101000
//	<<  (0 bytes) [6A82] SW_ERR_FILE_NOT_FOUND
func (t Trace) Describe() string {
	var sb strings.Builder
	for _, tx := range t {
		if tx.Command != nil {
			raw, err := tx.Command.Bytes()
			if err != nil {
				fmt.Fprintf(&sb, ">> %s (unencodable: %v)\n", tx.Command, err)
			} else {
				fmt.Fprintf(&sb, ">> %X\n", raw)
			}
		}
		if tx.Response != nil {
			fmt.Fprintf(&sb, "<< %X (%d bytes) %s\n", tx.Response.Data, len(tx.Response.Data), tx.Response.Status.Verbose())
		}
	}
	return sb.String()
}
