// Package pn532 reads contactless cards through an NXP PN532 module
// (UART or I2C) using github.com/ZaparooProject/go-pn532.
//
// InListPassiveTarget activates ISO/IEC 14443-4 cards (RATS included), and
// InDataExchange then carries EMV APDUs unchanged.
package pn532

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	pn532 "github.com/ZaparooProject/go-pn532"
	"github.com/ZaparooProject/go-pn532/transport/i2c"
	"github.com/ZaparooProject/go-pn532/transport/uart"

	"github.com/gregLibert/emv-reader/pkg/bits"
	"github.com/gregLibert/emv-reader/pkg/cardtag"
)

// DefaultPollInterval is used when Options.PollInterval is zero.
const DefaultPollInterval = 100 * time.Millisecond

// device is the subset of *pn532.Device used here.
type device interface {
	detect(ctx context.Context) ([]*pn532.DetectedTag, error)
	exchange(ctx context.Context, data []byte) ([]byte, error)
	close() error
}

type pn532Device struct {
	dev *pn532.Device
}

func (d pn532Device) detect(ctx context.Context) ([]*pn532.DetectedTag, error) {
	return d.dev.DetectTags(ctx, 1, 0)
}

func (d pn532Device) exchange(ctx context.Context, data []byte) ([]byte, error) {
	return d.dev.SendDataExchange(ctx, data)
}

func (d pn532Device) close() error {
	return d.dev.Close()
}

// Options configures the PN532 connection.
type Options struct {
	// Path is the serial device (e.g. /dev/ttyUSB0) or I2C bus (e.g. /dev/i2c-1).
	Path string
	// ConnectTimeout bounds InListPassiveTarget and friends.
	ConnectTimeout time.Duration
	// PollInterval is the delay between two detection attempts.
	PollInterval time.Duration
}

// newTransport picks the go-pn532 transport from the device path.
func newTransport(path string) (pn532.Transport, error) {
	if path == "" {
		return nil, errors.New("empty device path")
	}

	if strings.Contains(strings.ToLower(path), "i2c") {
		transport, err := i2c.New(path)
		if err != nil {
			return nil, fmt.Errorf("failed to create I2C transport: %w", err)
		}
		return transport, nil
	}

	transport, err := uart.New(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create UART transport: %w", err)
	}
	return transport, nil
}

// Poller detects ISO/IEC 14443-4 cards on a PN532.
type Poller struct {
	mu   sync.Mutex
	dev  device
	opts Options
}

// NewPoller connects and initializes the PN532.
func NewPoller(ctx context.Context, opts Options) (*Poller, error) {
	connectOpts := []pn532.ConnectOption{pn532.WithTransportFactory(newTransport)}
	if opts.ConnectTimeout > 0 {
		connectOpts = append(connectOpts, pn532.WithConnectTimeout(opts.ConnectTimeout))
	}

	dev, err := pn532.ConnectDevice(opts.Path, connectOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PN532 device: %w", err)
	}
	if err := dev.InitContext(ctx); err != nil {
		_ = dev.Close()
		return nil, fmt.Errorf("failed to initialize PN532: %w", err)
	}

	return newPoller(pn532Device{dev: dev}, opts), nil
}

func newPoller(dev device, opts Options) *Poller {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	return &Poller{dev: dev, opts: opts}
}

// WaitForTag polls until an ISO/IEC 14443-4 card is in the field. Other
// tags (MIFARE Classic, NTAG...) are ignored.
func (p *Poller) WaitForTag(ctx context.Context) (*cardtag.EmvCardTag, error) {
	for {
		tag, err := p.detect(ctx)
		if err != nil {
			return nil, err
		}
		if tag != nil && bits.IsSet(tag.SAK, 6) {
			return cardtag.NewEmvCardTag(tag.UID, &Transport{poller: p}), nil
		}

		if err := sleep(ctx, p.opts.PollInterval); err != nil {
			return nil, err
		}
	}
}

// WaitForRemoval polls until the tag's UID is no longer detected.
func (p *Poller) WaitForRemoval(ctx context.Context, tag *cardtag.EmvCardTag) error {
	for {
		detected, err := p.detect(ctx)
		if err != nil {
			return err
		}
		if detected == nil || (tag != nil && !strings.EqualFold(detected.UID, tag.ID)) {
			return nil
		}

		if err := sleep(ctx, p.opts.PollInterval); err != nil {
			return err
		}
	}
}

// Close releases the PN532.
func (p *Poller) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dev.close()
}

// detect returns the first target in the field, or nil when there is none.
func (p *Poller) detect(ctx context.Context) (*pn532.DetectedTag, error) {
	p.mu.Lock()
	tags, err := p.dev.detect(ctx)
	p.mu.Unlock()

	switch {
	case err == nil && len(tags) > 0:
		return tags[0], nil
	case err == nil, errors.Is(err, pn532.ErrNoTagDetected), errors.Is(err, pn532.ErrTransportTimeout):
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, nil
	default:
		return nil, fmt.Errorf("detect tags: %w", err)
	}
}

// Transport exchanges APDUs with the target activated by the last detection.
type Transport struct {
	poller *Poller

	mu     sync.Mutex
	closed bool
}

// Connect is a no-op: detection already activated the target.
func (t *Transport) Connect(context.Context) error {
	return nil
}

// IsConnected reports whether the transport is still usable.
func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.closed
}

// Transceive sends one APDU through InDataExchange. Timeouts and read
// failures mean the card left the field and are reported as cardtag.ErrTagLost.
func (t *Transport) Transceive(ctx context.Context, cmd []byte) ([]byte, error) {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return nil, cardtag.ErrTagClosed
	}

	t.poller.mu.Lock()
	resp, err := t.poller.dev.exchange(ctx, cmd)
	t.poller.mu.Unlock()

	if err != nil {
		if errors.Is(err, pn532.ErrTransportTimeout) ||
			errors.Is(err, pn532.ErrTransportRead) ||
			errors.Is(err, pn532.ErrNoTagDetected) {
			return nil, fmt.Errorf("%w: %w", cardtag.ErrTagLost, err)
		}
		return nil, err
	}
	return resp, nil
}

// Close marks the transport closed; the PN532 itself stays open for the poller.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
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
