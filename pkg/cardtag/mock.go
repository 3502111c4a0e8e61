package cardtag

import (
	"bytes"
	"context"
	"fmt"
	"sync"
)

// Exchange is one scripted command/response step of a MockTransport.
type Exchange struct {
	// Command, if set, must match the frame sent by the reader.
	Command []byte
	// Response is returned when Err is nil.
	Response []byte
	// Err, if set, is returned instead of Response.
	Err error
}

// MockTransport is a scripted Transport for tests and demos.
//
// Each Transceive consumes the next Exchange. Once the script is exhausted
// the card behaves as if it left the field.
//
// Example:
//
//	mock := &cardtag.MockTransport{Exchanges: []cardtag.Exchange{
//	    {Command: selectPPSE, Response: fci},
//	    {Err: cardtag.ErrTagLost},
//	}}
//	tag := cardtag.NewEmvCardTag("mock", mock)
type MockTransport struct {
	// ConnectError, if set, will be returned by Connect()
	ConnectError error

	// CloseError, if set, will be returned by Close()
	CloseError error

	// Exchanges is the script consumed by Transceive
	Exchanges []Exchange

	// Sent records every frame received by Transceive
	Sent [][]byte

	// CallLog tracks all method calls for verification in tests
	CallLog []string

	mu        sync.Mutex
	connected bool
	closed    bool
	next      int
}

// Connect simulates card activation.
func (m *MockTransport) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CallLog = append(m.CallLog, "Connect")
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.ConnectError != nil {
		return m.ConnectError
	}
	m.connected = true
	return nil
}

// IsConnected reports whether Connect succeeded and Close was not called.
func (m *MockTransport) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected && !m.closed
}

// Transceive replays the next scripted exchange.
func (m *MockTransport) Transceive(ctx context.Context, cmd []byte) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CallLog = append(m.CallLog, "Transceive")
	m.Sent = append(m.Sent, append([]byte(nil), cmd...))

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.closed {
		return nil, ErrTagClosed
	}
	if m.next >= len(m.Exchanges) {
		return nil, fmt.Errorf("%w: script exhausted after %d exchanges", ErrTagLost, m.next)
	}

	step := m.Exchanges[m.next]
	m.next++

	if step.Command != nil && !bytes.Equal(step.Command, cmd) {
		return nil, fmt.Errorf("unexpected command %X at step %d, want %X", cmd, m.next, step.Command)
	}
	if step.Err != nil {
		return nil, step.Err
	}
	return append([]byte(nil), step.Response...), nil
}

// Close simulates releasing the card.
func (m *MockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CallLog = append(m.CallLog, "Close")
	m.closed = true
	m.connected = false
	return m.CloseError
}

// Closed reports whether Close was called.
func (m *MockTransport) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Remaining returns the number of unconsumed exchanges.
func (m *MockTransport) Remaining() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Exchanges) - m.next
}

// MockPoller hands out the tags pushed on Tags.
type MockPoller struct {
	Tags chan *EmvCardTag

	mu      sync.Mutex
	removed []*EmvCardTag
	closed  bool
}

// NewMockPoller creates a MockPoller with a buffered tag queue.
func NewMockPoller(size int) *MockPoller {
	return &MockPoller{Tags: make(chan *EmvCardTag, size)}
}

// WaitForTag returns the next queued tag.
func (p *MockPoller) WaitForTag(ctx context.Context) (*EmvCardTag, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case tag, ok := <-p.Tags:
		if !ok {
			return nil, ErrTagClosed
		}
		return tag, nil
	}
}

// WaitForRemoval records the tag as removed and returns immediately.
func (p *MockPoller) WaitForRemoval(ctx context.Context, tag *EmvCardTag) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.removed = append(p.removed, tag)
	return ctx.Err()
}

// Removed returns the tags passed to WaitForRemoval.
func (p *MockPoller) Removed() []*EmvCardTag {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*EmvCardTag(nil), p.removed...)
}

// Close marks the poller closed.
func (p *MockPoller) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}
