// Package cardtag wraps a physically presented contactless card behind a
// byte-level transport so the EMV layer never sees reader specifics.
//
// A reader backend (see the pcsc, pn532 and libnfc sub-packages) implements
// Transport for one detected card and Poller to discover cards. The EMV
// session receives an EmvCardTag, which it opens once, uses for the APDU
// exchanges of one read and closes on every exit path.
package cardtag

import (
	"context"
	"errors"
	"fmt"
)

// Transport is the raw link to one card: send bytes, receive bytes, or fail.
type Transport interface {
	// Connect activates the card for APDU exchanges.
	Connect(ctx context.Context) error
	IsConnected() bool
	// Transceive sends one command frame and returns the card's full answer.
	Transceive(ctx context.Context, cmd []byte) ([]byte, error)
	Close() error
}

// Poller discovers cards on one reader.
type Poller interface {
	// WaitForTag blocks until a card supporting ISO/IEC 14443-4 is in the field.
	WaitForTag(ctx context.Context) (*EmvCardTag, error)
	// WaitForRemoval blocks until tag has left the field.
	WaitForRemoval(ctx context.Context, tag *EmvCardTag) error
	Close() error
}

var (
	// ErrTagLost means the card left the field or the RF link broke mid-exchange.
	ErrTagLost = errors.New("tag lost")

	// ErrTagClosed is returned when a closed EmvCardTag is used.
	ErrTagClosed = errors.New("tag closed")

	// ErrTagReused is returned when an EmvCardTag is opened a second time.
	ErrTagReused = errors.New("tag already used by a session")

	// ErrNotConnected is returned by Transceive before Open.
	ErrNotConnected = errors.New("tag not connected")
)

// TransportError reports a failed link operation.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsTagLost reports whether err means the card is gone: an explicit
// ErrTagLost or a transport deadline.
func IsTagLost(err error) bool {
	return errors.Is(err, ErrTagLost) || errors.Is(err, context.DeadlineExceeded)
}
