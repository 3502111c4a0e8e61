package emv

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/gregLibert/emv-reader/pkg/iso7816"
	"github.com/gregLibert/emv-reader/pkg/tlv"
)

// TerminalConfig holds the terminal data a card may request in its PDOL.
type TerminalConfig struct {
	// TTQ is the Terminal Transaction Qualifiers ('9F66').
	TTQ []byte
	// Amount and OtherAmount are in minor units ('9F02', '9F03').
	Amount      int64
	OtherAmount int64
	// CountryCode and CurrencyCode are ISO 3166 / ISO 4217 numeric codes ('9F1A', '5F2A').
	CountryCode  int
	CurrencyCode int
	// TransactionType is '9C' (00 = goods and services).
	TransactionType byte
	// TerminalType is '9F35' (22 = attended, offline with online capability).
	TerminalType             byte
	Capabilities             []byte // '9F33'
	AdditionalCapabilities   []byte // '9F40'
	TerminalVerificationData []byte // '95'
	MerchantName             string // '9F4E'

	// Now and Random default to time.Now and crypto/rand.
	Now    func() time.Time
	Random io.Reader
}

// DefaultTerminal returns a contactless, online capable terminal in France
// paying in euros.
func DefaultTerminal() TerminalConfig {
	return TerminalConfig{
		TTQ:                    []byte{0x36, 0x00, 0x40, 0x00},
		CountryCode:            250,
		CurrencyCode:           978,
		TerminalType:           0x22,
		Capabilities:           []byte{0xE0, 0x68, 0xC8},
		AdditionalCapabilities: []byte{0x60, 0x00, 0xF0, 0x50, 0x01},
	}
}

// numericTags lists the PDOL data elements with format n (BCD, left-padded).
var numericTags = map[string]bool{
	"9F02": true,
	"9F03": true,
	"9F1A": true,
	"5F2A": true,
	"9A":   true,
	"9C":   true,
}

// values returns the terminal data objects by tag.
func (c TerminalConfig) values() (map[string][]byte, error) {
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	random := rand.Reader
	if c.Random != nil {
		random = c.Random
	}

	un := make([]byte, 4)
	if _, err := io.ReadFull(random, un); err != nil {
		return nil, fmt.Errorf("unpredictable number: %w", err)
	}

	tvr := c.TerminalVerificationData
	if tvr == nil {
		tvr = make([]byte, 5)
	}

	return map[string][]byte{
		"9F66": c.TTQ,
		"9F02": bcd(strconv.FormatInt(c.Amount, 10), 6),
		"9F03": bcd(strconv.FormatInt(c.OtherAmount, 10), 6),
		"9F1A": bcd(strconv.Itoa(c.CountryCode), 2),
		"5F2A": bcd(strconv.Itoa(c.CurrencyCode), 2),
		"95":   tvr,
		"9A":   bcd(now().Format("060102"), 3),
		"9C":   {c.TransactionType},
		"9F37": un,
		"9F35": {c.TerminalType},
		"9F33": c.Capabilities,
		"9F40": c.AdditionalCapabilities,
		"9F4E": []byte(c.MerchantName),
	}, nil
}

// MaxPDOLDataLength is the most PDOL data a short GET PROCESSING OPTIONS
// command carries once wrapped in '83 81 XX'.
const MaxPDOLDataLength = iso7816.MaxShortLc - 3

// PDOLData answers a Processing Options Data Object List. An empty PDOL
// yields empty data.
func (c TerminalConfig) PDOLData(pdol []byte) ([]byte, error) {
	if len(pdol) == 0 {
		return nil, nil
	}

	entries, err := tlv.ParseDOL(pdol)
	if err != nil {
		return nil, fmt.Errorf("parse PDOL: %w", err)
	}
	if n := tlv.DOLDataLength(entries); n > MaxPDOLDataLength {
		return nil, fmt.Errorf("%w: %d bytes requested (max %d)", ErrPDOLTooLong, n, MaxPDOLDataLength)
	}

	values, err := c.values()
	if err != nil {
		return nil, err
	}
	return tlv.BuildDOLData(entries, values, numericTags), nil
}

// bcd encodes decimal digits on size bytes, left-padded with zeros.
// Longer inputs keep their rightmost digits.
func bcd(digits string, size int) []byte {
	width := size * 2
	if len(digits) > width {
		digits = digits[len(digits)-width:]
	}
	for len(digits) < width {
		digits = "0" + digits
	}
	out, err := hex.DecodeString(digits)
	if err != nil {
		return make([]byte, size)
	}
	return out
}
