package emv

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gregLibert/emv-reader/pkg/iso7816"
)

var (
	// ErrTransportFailure means the link failed before any exchange with the card completed.
	ErrTransportFailure = errors.New("transport failure")

	// ErrIncompleteCardData means the card data decoded but AID, PAN or expiry is missing or invalid.
	ErrIncompleteCardData = errors.New("incomplete card data")

	// ErrInternal wraps a panic recovered while reading a card.
	ErrInternal = errors.New("internal error")

	// ErrPDOLTooLong means the card's PDOL asks for more data than a GET
	// PROCESSING OPTIONS command can carry.
	ErrPDOLTooLong = errors.New("PDOL data too long")

	// ErrNotRecordTemplate means a record is not a single '70' template.
	ErrNotRecordTemplate = errors.New("record is not a '70' template")
)

// ProtocolError is a mandatory step the card answered with a non-success
// status word, or with an unusable response.
type ProtocolError struct {
	Step   string
	Status iso7816.StatusWord
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol error: %s: %v", e.Step, e.Err)
	}
	return fmt.Sprintf("protocol error: %s: %s", e.Step, e.Status.Verbose())
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// DecodeError is malformed TLV data returned by a step.
type DecodeError struct {
	Step string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode error: %s: %v", e.Step, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// IncompleteCardDataError lists the mandatory elements that are missing or invalid.
type IncompleteCardDataError struct {
	Missing []string
}

func (e *IncompleteCardDataError) Error() string {
	return fmt.Sprintf("%v: %s", ErrIncompleteCardData, strings.Join(e.Missing, ", "))
}

func (e *IncompleteCardDataError) Unwrap() error {
	return ErrIncompleteCardData
}
