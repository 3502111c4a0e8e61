// Package pcsc reads contactless cards through a PC/SC reader (ebfe/scard).
//
// Most USB contactless readers (ACR122U, Identiv, HID Omnikey...) expose the
// card in the field as a PC/SC card speaking T=1, so EMV APDUs go straight
// through SCardTransmit.
package pcsc

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ebfe/scard"

	"github.com/gregLibert/emv-reader/pkg/cardtag"
)

// getUID is the PC/SC pseudo-APDU returning the UID of a contactless card.
var getUID = []byte{0xFF, 0xCA, 0x00, 0x00, 0x00}

// DefaultPollInterval is used when Options.PollInterval is zero.
const DefaultPollInterval = 250 * time.Millisecond

// card is the subset of *scard.Card used by the transport.
type card interface {
	Transmit(cmd []byte) ([]byte, error)
	Disconnect() error
}

// system is the subset of *scard.Context used by the poller.
type system interface {
	ListReaders() ([]string, error)
	Connect(reader string) (card, error)
	Release() error
}

type scardSystem struct {
	ctx *scard.Context
}

func (s scardSystem) ListReaders() ([]string, error) {
	return s.ctx.ListReaders()
}

func (s scardSystem) Connect(reader string) (card, error) {
	// Force T=0 or T=1 to avoid "Parameter Incorrect" errors on some drivers
	c, err := s.ctx.Connect(reader, scard.ShareShared, scard.ProtocolT0|scard.ProtocolT1)
	if err != nil {
		return nil, err
	}
	return scardCard{c}, nil
}

func (s scardSystem) Release() error {
	return s.ctx.Release()
}

type scardCard struct {
	card *scard.Card
}

func (c scardCard) Transmit(cmd []byte) ([]byte, error) {
	return c.card.Transmit(cmd)
}

func (c scardCard) Disconnect() error {
	return c.card.Disconnect(scard.LeaveCard)
}

// Transport is a cardtag.Transport over one connected PC/SC card.
type Transport struct {
	mu     sync.Mutex
	card   card
	reader string
}

// Connect is a no-op: the poller hands out transports already connected.
func (t *Transport) Connect(context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.card == nil {
		return &cardtag.TransportError{Op: "connect", Err: cardtag.ErrTagLost}
	}
	return nil
}

// IsConnected reports whether the card handle is still held.
func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.card != nil
}

// Transceive transmits one APDU. Removal errors are reported as cardtag.ErrTagLost.
func (t *Transport) Transceive(ctx context.Context, cmd []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.card == nil {
		return nil, cardtag.ErrTagClosed
	}

	resp, err := t.card.Transmit(cmd)
	if err != nil {
		return nil, classify(t.reader, err)
	}
	return resp, nil
}

// Close disconnects the card, leaving it powered.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.card == nil {
		return nil
	}
	err := t.card.Disconnect()
	t.card = nil
	if err != nil && isCardRemoved(err) {
		return nil
	}
	return err
}

// classify maps PC/SC removal codes to cardtag.ErrTagLost.
func classify(reader string, err error) error {
	if isCardRemoved(err) {
		return fmt.Errorf("%s: %w: %w", reader, cardtag.ErrTagLost, err)
	}
	return fmt.Errorf("%s: %w", reader, err)
}

func isCardRemoved(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, scard.ErrRemovedCard) ||
		errors.Is(err, scard.ErrResetCard) || // Often means removed on macOS
		errors.Is(err, scard.ErrNoSmartcard) ||
		errors.Is(err, scard.ErrUnpoweredCard) {
		return true
	}

	// Some drivers only report a generic communication failure.
	errLower := strings.ToLower(err.Error())
	return strings.Contains(errLower, "removed") ||
		strings.Contains(errLower, "not transacted")
}

// Options configures a Poller.
type Options struct {
	// Reader selects the reader whose name contains this string. Empty means the first reader.
	Reader string
	// PollInterval is the delay between presence checks.
	PollInterval time.Duration
}

// Poller finds cards on a PC/SC reader by repeatedly trying to connect.
type Poller struct {
	sys  system
	opts Options
}

// NewPoller establishes a PC/SC context.
func NewPoller(opts Options) (*Poller, error) {
	ctx, err := scard.EstablishContext()
	if err != nil {
		return nil, fmt.Errorf("failed to establish context: %w", err)
	}
	return newPoller(scardSystem{ctx: ctx}, opts), nil
}

func newPoller(sys system, opts Options) *Poller {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	return &Poller{sys: sys, opts: opts}
}

// WaitForTag blocks until a card can be connected on the configured reader.
func (p *Poller) WaitForTag(ctx context.Context) (*cardtag.EmvCardTag, error) {
	for {
		reader, err := p.reader()
		if err != nil {
			return nil, err
		}

		c, err := p.sys.Connect(reader)
		if err == nil {
			transport := &Transport{card: c, reader: reader}
			return cardtag.NewEmvCardTag(tagID(c, reader), transport), nil
		}
		if !isCardRemoved(err) && !errors.Is(err, scard.ErrTimeout) {
			return nil, fmt.Errorf("connect %s: %w", reader, err)
		}

		if err := sleep(ctx, p.opts.PollInterval); err != nil {
			return nil, err
		}
	}
}

// WaitForRemoval blocks until no card answers on the reader any more.
func (p *Poller) WaitForRemoval(ctx context.Context, _ *cardtag.EmvCardTag) error {
	for {
		reader, err := p.reader()
		if err != nil {
			return err
		}

		c, err := p.sys.Connect(reader)
		if err != nil {
			if isCardRemoved(err) {
				return nil
			}
			return fmt.Errorf("connect %s: %w", reader, err)
		}
		_ = c.Disconnect()

		if err := sleep(ctx, p.opts.PollInterval); err != nil {
			return err
		}
	}
}

// Close releases the PC/SC context.
func (p *Poller) Close() error {
	return p.sys.Release()
}

func (p *Poller) reader() (string, error) {
	readers, err := p.sys.ListReaders()
	if err != nil {
		return "", fmt.Errorf("list readers: %w", err)
	}
	for _, r := range readers {
		if strings.Contains(r, p.opts.Reader) {
			return r, nil
		}
	}
	if p.opts.Reader == "" {
		return "", errors.New("no smart card reader found")
	}
	return "", fmt.Errorf("reader %q not found among %d readers", p.opts.Reader, len(readers))
}

// tagID asks the reader for the card UID, falling back to the reader name.
func tagID(c card, reader string) string {
	resp, err := c.Transmit(getUID)
	if err != nil || len(resp) < 3 || resp[len(resp)-2] != 0x90 || resp[len(resp)-1] != 0x00 {
		return reader
	}
	return strings.ToUpper(hex.EncodeToString(resp[:len(resp)-2]))
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
