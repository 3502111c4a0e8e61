package cardtag

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

type tagState int

const (
	tagFresh tagState = iota
	tagOpen
	tagClosed
)

// EmvCardTag is the handle of one physically presented card for exactly one
// read session. It is not reusable: Open succeeds once, and after Close every
// operation fails with ErrTagClosed.
type EmvCardTag struct {
	// ID identifies the card in logs (usually its UID in hex).
	ID string

	mu        sync.Mutex
	transport Transport
	state     tagState
}

// NewEmvCardTag wraps transport for one session.
func NewEmvCardTag(id string, transport Transport) *EmvCardTag {
	return &EmvCardTag{ID: id, transport: transport}
}

// Open connects the underlying transport.
func (t *EmvCardTag) Open(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.state {
	case tagOpen:
		return ErrTagReused
	case tagClosed:
		return ErrTagClosed
	}
	t.state = tagOpen

	if t.transport.IsConnected() {
		return nil
	}
	if err := t.transport.Connect(ctx); err != nil {
		return wrapTransportError("connect", err)
	}
	return nil
}

// Transceive sends one command to the card.
func (t *EmvCardTag) Transceive(ctx context.Context, cmd []byte) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.state {
	case tagFresh:
		return nil, ErrNotConnected
	case tagClosed:
		return nil, ErrTagClosed
	}

	resp, err := t.transport.Transceive(ctx, cmd)
	if err != nil {
		return nil, wrapTransportError("transceive", err)
	}
	return resp, nil
}

// IsOpen reports whether the tag has been opened and not yet closed.
func (t *EmvCardTag) IsOpen() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state == tagOpen
}

// Close releases the transport. It is safe to call more than once.
func (t *EmvCardTag) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state == tagClosed {
		return nil
	}
	t.state = tagClosed

	if err := t.transport.Close(); err != nil {
		return wrapTransportError("close", err)
	}
	return nil
}

func (t *EmvCardTag) String() string {
	return fmt.Sprintf("tag %s", t.ID)
}

func wrapTransportError(op string, err error) error {
	var te *TransportError
	if errors.As(err, &te) {
		return err
	}
	return &TransportError{Op: op, Err: err}
}
