package emv

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/gregLibert/emv-reader/pkg/tlv"
)

// PAN length bounds of the ISO/IEC 7812 schemes read here.
const (
	MinPANLength = 12
	MaxPANLength = 19
)

// CardData is the normalized result of a successful read. It is only built
// once AID, PAN and expiry are present and well-formed.
type CardData struct {
	// AID is the selected application.
	AID AID
	// AIDs lists the applications offered by the card, the selected one first.
	AIDs []AID

	PAN         string
	ExpiryMonth int
	ExpiryYear  int // two digits

	Label          string
	PreferredName  string
	CardholderName string
	PANSequence    string
	IssuerCountry  string
	Language       string
}

// FormattedNumber groups the PAN by 4 digits.
func (c CardData) FormattedNumber() string {
	return groupDigits(c.PAN)
}

// MaskedNumber hides all but the last 4 digits of the PAN.
func (c CardData) MaskedNumber() string {
	if len(c.PAN) <= 4 {
		return groupDigits(c.PAN)
	}
	return groupDigits(strings.Repeat("*", len(c.PAN)-4) + c.PAN[len(c.PAN)-4:])
}

// FormattedExpDate returns the expiry as MM/YY.
func (c CardData) FormattedExpDate() string {
	return fmt.Sprintf("%02d/%02d", c.ExpiryMonth, c.ExpiryYear)
}

// Scheme returns the payment scheme of the selected application.
func (c CardData) Scheme() string {
	return c.AID.Scheme()
}

// String never shows the full PAN.
func (c CardData) String() string {
	return fmt.Sprintf("%s %s %s (AID %s)", c.Scheme(), c.MaskedNumber(), c.FormattedExpDate(), c.AID)
}

func groupDigits(s string) string {
	var sb strings.Builder
	for i, r := range s {
		if i > 0 && i%4 == 0 {
			sb.WriteByte(' ')
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// recordFormats renders record contents in logs. The PAN is masked.
var recordFormats = map[string]string{
	tagPAN:            tlv.FormatPAN,
	tagExpiry:         tlv.FormatDate,
	"5F25":            tlv.FormatDate,
	tagCardholderName: tlv.FormatASCII,
	tagIssuerCountry:  tlv.FormatNumeric,
	tagPANSequence:    tlv.FormatNumeric,
}

// Data object tags mapped to CardData.
const (
	tagPAN            = "5A"
	tagExpiry         = "5F24"
	tagTrack2         = "57"
	tagDFName         = "84"
	tagLabel          = "50"
	tagCardholderName = "5F20"
	tagPANSequence    = "5F34"
	tagIssuerCountry  = "5F28"
	tagLanguage       = "5F2D"
	tagCodeTable      = "9F11"
	tagPreferredName  = "9F12"
)

// buildCardData maps the merged tag set to CardData, or reports every
// missing or invalid mandatory element.
func buildCardData(aid AID, aids []AID, fields fieldSet) (CardData, error) {
	var missing []string

	if len(aid) == 0 {
		missing = append(missing, "AID")
	}

	track2PAN, track2Month, track2Year, track2OK := parseTrack2(fields.get(tagTrack2))

	pan, ok := "", false
	if raw, present := fields.lookup(tagPAN); present {
		pan = strings.TrimRight(strings.ToUpper(hex.EncodeToString(raw)), "F")
		ok = true
	} else if track2OK {
		pan, ok = track2PAN, true
	}
	if !ok {
		missing = append(missing, "PAN")
	} else if !validPAN(pan) {
		missing = append(missing, "PAN (invalid)")
	}

	month, year, ok := 0, 0, false
	if raw, present := fields.lookup(tagExpiry); present {
		month, year, ok = parseExpiry(raw)
		if !ok {
			missing = append(missing, "expiry (invalid)")
		}
	} else if track2OK {
		month, year, ok = track2Month, track2Year, validMonth(track2Month)
		if !ok {
			missing = append(missing, "expiry (invalid)")
		}
	} else {
		missing = append(missing, "expiry")
	}

	if len(missing) > 0 {
		return CardData{}, &IncompleteCardDataError{Missing: missing}
	}

	return CardData{
		AID:            aid,
		AIDs:           mergeAIDs([]AID{aid}, aids),
		PAN:            pan,
		ExpiryMonth:    month,
		ExpiryYear:     year,
		Label:          strings.TrimSpace(string(fields.get(tagLabel))),
		PreferredName:  decodePreferredName(fields.get(tagPreferredName), fields.get(tagCodeTable)),
		CardholderName: strings.TrimSpace(strings.TrimRight(string(fields.get(tagCardholderName)), "/")),
		PANSequence:    hex.EncodeToString(fields.get(tagPANSequence)),
		IssuerCountry:  strings.TrimLeft(hex.EncodeToString(fields.get(tagIssuerCountry)), "0"),
		Language:       string(fields.get(tagLanguage)),
	}, nil
}

func validPAN(pan string) bool {
	if len(pan) < MinPANLength || len(pan) > MaxPANLength {
		return false
	}
	for _, r := range pan {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func validMonth(month int) bool {
	return month >= 1 && month <= 12
}

// parseExpiry decodes '5F24' (YYMMDD, or YYMM on some cards).
func parseExpiry(raw []byte) (month, year int, ok bool) {
	if len(raw) != 2 && len(raw) != 3 {
		return 0, 0, false
	}
	digits := hex.EncodeToString(raw)
	return parseYYMM(digits[:4])
}

func parseYYMM(digits string) (month, year int, ok bool) {
	if len(digits) != 4 {
		return 0, 0, false
	}
	y, err := strconv.Atoi(digits[:2])
	if err != nil {
		return 0, 0, false
	}
	m, err := strconv.Atoi(digits[2:])
	if err != nil || !validMonth(m) {
		return 0, 0, false
	}
	return m, y, true
}

// parseTrack2 extracts PAN and expiry from Track 2 Equivalent Data ('57'):
//
//	PAN (up to 19 digits) 'D' YYMM service code discretionary data ['F' padding]
func parseTrack2(raw []byte) (pan string, month, year int, ok bool) {
	if len(raw) == 0 {
		return "", 0, 0, false
	}

	digits := strings.TrimRight(strings.ToUpper(hex.EncodeToString(raw)), "F")
	sep := strings.IndexByte(digits, 'D')
	if sep <= 0 || len(digits) < sep+5 {
		return "", 0, 0, false
	}

	// The month is range checked by the caller, like '5F24'.
	y, errY := strconv.Atoi(digits[sep+1 : sep+3])
	m, errM := strconv.Atoi(digits[sep+3 : sep+5])
	if errY != nil || errM != nil {
		return "", 0, 0, false
	}
	return digits[:sep], m, y, true
}
