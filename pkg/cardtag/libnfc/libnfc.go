// Package libnfc reads contactless cards through any reader supported by
// libnfc (ACR122U, PN53x on USB/UART, ...) using github.com/clausecker/nfc/v2.
package libnfc

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/clausecker/nfc/v2"

	"github.com/gregLibert/emv-reader/pkg/bits"
	"github.com/gregLibert/emv-reader/pkg/cardtag"
)

// DefaultPollInterval is used when Options.PollInterval is zero.
const DefaultPollInterval = 150 * time.Millisecond

// rxBufferSize fits a 256 byte response plus SW1 SW2 and framing.
const rxBufferSize = 262

// target is an ISO/IEC 14443 type A target found in the field.
type target struct {
	UID string
	SAK byte
}

// iso14443_4 reports whether the target speaks ISO-DEP (SAK bit 6).
func (t target) iso14443_4() bool {
	return bits.IsSet(t.SAK, 6)
}

// device is the subset of nfc.Device used here.
type device interface {
	listTargets() ([]target, error)
	transceive(tx []byte) ([]byte, error)
	close() error
}

type nfcDevice struct {
	dev nfc.Device
}

func (d nfcDevice) listTargets() ([]target, error) {
	modulation := nfc.Modulation{Type: nfc.ISO14443a, BaudRate: nfc.Nbr106}
	found, err := d.dev.InitiatorListPassiveTargets(modulation)
	if err != nil {
		return nil, err
	}

	targets := make([]target, 0, len(found))
	for _, t := range found {
		isoA, ok := t.(*nfc.ISO14443aTarget)
		if !ok || isoA.UIDLen == 0 || int(isoA.UIDLen) > len(isoA.UID) {
			continue
		}
		targets = append(targets, target{
			UID: strings.ToUpper(hex.EncodeToString(isoA.UID[:isoA.UIDLen])),
			SAK: isoA.Sak,
		})
	}
	return targets, nil
}

func (d nfcDevice) transceive(tx []byte) ([]byte, error) {
	var rx [rxBufferSize]byte
	n, err := d.dev.InitiatorTransceiveBytes(tx, rx[:], 0)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), rx[:n]...), nil
}

func (d nfcDevice) close() error {
	return d.dev.Close()
}

// Options configures the libnfc connection.
type Options struct {
	// Connstring selects the device, e.g. "pn532_uart:/dev/ttyUSB0".
	// When empty the first device reported by libnfc is used.
	Connstring   string
	PollInterval time.Duration
}

// Poller detects ISO/IEC 14443-4 cards on a libnfc device.
type Poller struct {
	mu   sync.Mutex
	dev  device
	opts Options
}

// NewPoller opens the libnfc device and puts it in initiator mode.
func NewPoller(opts Options) (*Poller, error) {
	conn := opts.Connstring
	if conn == "" {
		devices, err := nfc.ListDevices()
		if err != nil {
			return nil, fmt.Errorf("list NFC devices: %w", err)
		}
		if len(devices) == 0 {
			return nil, errors.New("no NFC device found")
		}
		conn = devices[0]
	}

	dev, err := nfc.Open(conn)
	if err != nil {
		return nil, fmt.Errorf("open NFC device %q: %w", conn, err)
	}
	if err := dev.InitiatorInit(); err != nil {
		_ = dev.Close()
		return nil, fmt.Errorf("initiator init: %w", err)
	}

	return newPoller(nfcDevice{dev: dev}, opts), nil
}

func newPoller(dev device, opts Options) *Poller {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	return &Poller{dev: dev, opts: opts}
}

// WaitForTag polls until an ISO/IEC 14443-4 card is in the field.
func (p *Poller) WaitForTag(ctx context.Context) (*cardtag.EmvCardTag, error) {
	for {
		targets, err := p.list()
		if err != nil {
			return nil, err
		}
		for _, t := range targets {
			if t.iso14443_4() {
				return cardtag.NewEmvCardTag(t.UID, &Transport{poller: p}), nil
			}
		}

		if err := sleep(ctx, p.opts.PollInterval); err != nil {
			return nil, err
		}
	}
}

// WaitForRemoval polls until the tag's UID is no longer listed.
func (p *Poller) WaitForRemoval(ctx context.Context, tag *cardtag.EmvCardTag) error {
	for {
		targets, err := p.list()
		if err != nil {
			return err
		}

		present := false
		for _, t := range targets {
			if tag != nil && strings.EqualFold(t.UID, tag.ID) {
				present = true
			}
		}
		if !present {
			return nil
		}

		if err := sleep(ctx, p.opts.PollInterval); err != nil {
			return err
		}
	}
}

// Close releases the libnfc device.
func (p *Poller) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dev.close()
}

func (p *Poller) list() ([]target, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	targets, err := p.dev.listTargets()
	if err != nil {
		if isTargetGone(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list passive targets: %w", err)
	}
	return targets, nil
}

// isTargetGone reports whether a libnfc error means the card left the field.
func isTargetGone(err error) bool {
	var nfcErr nfc.Error
	if errors.As(err, &nfcErr) {
		switch nfcErr {
		case nfc.ETIMEOUT, nfc.ETGRELEASED, nfc.ERFTRANS:
			return true
		}
		return false
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "target released") ||
		strings.Contains(msg, "timed out") ||
		strings.Contains(msg, "rf transmission error")
}

// Transport exchanges APDUs with the selected target.
type Transport struct {
	poller *Poller

	mu     sync.Mutex
	closed bool
}

// Connect is a no-op: InitiatorListPassiveTargets leaves the target selected.
func (t *Transport) Connect(context.Context) error {
	return nil
}

// IsConnected reports whether the transport is still usable.
func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.closed
}

// Transceive sends one APDU. libnfc calls are not cancellable, so ctx is only
// checked before the exchange.
func (t *Transport) Transceive(ctx context.Context, cmd []byte) ([]byte, error) {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return nil, cardtag.ErrTagClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t.poller.mu.Lock()
	resp, err := t.poller.dev.transceive(cmd)
	t.poller.mu.Unlock()

	if err != nil {
		if isTargetGone(err) {
			return nil, fmt.Errorf("%w: %w", cardtag.ErrTagLost, err)
		}
		return nil, err
	}
	return resp, nil
}

// Close marks the transport closed; the device stays open for the poller.
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
