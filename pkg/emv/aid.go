package emv

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// AID is an Application Identifier: a 5 byte Registered Application Provider
// Identifier (RID) followed by up to 11 bytes of Proprietary Application
// Identifier Extension (PIX).
type AID []byte

const (
	minAIDLength = 5
	maxAIDLength = 16
)

// ParseAID decodes a hexadecimal AID. Spaces are ignored.
func ParseAID(s string) (AID, error) {
	raw, err := hex.DecodeString(strings.Join(strings.Fields(s), ""))
	if err != nil {
		return nil, fmt.Errorf("invalid AID %q: %w", s, err)
	}
	if len(raw) < minAIDLength || len(raw) > maxAIDLength {
		return nil, fmt.Errorf("invalid AID %q: length %d not in [%d, %d]", s, len(raw), minAIDLength, maxAIDLength)
	}
	return AID(raw), nil
}

// MustParseAID is like ParseAID but panics on error. Intended for constants.
func MustParseAID(s string) AID {
	aid, err := ParseAID(s)
	if err != nil {
		panic(err)
	}
	return aid
}

// String returns the AID as uppercase hex.
func (a AID) String() string {
	return strings.ToUpper(hex.EncodeToString(a))
}

// Equal reports whether both AIDs have the same bytes.
func (a AID) Equal(other AID) bool {
	return a.String() == other.String()
}

// RID returns the Registered Application Provider Identifier.
func (a AID) RID() []byte {
	if len(a) < minAIDLength {
		return a
	}
	return a[:minAIDLength]
}

// Scheme returns the payment scheme name, or "Unknown".
func (a AID) Scheme() string {
	s := a.String()
	for _, known := range schemes {
		if strings.HasPrefix(s, known.prefix) {
			return known.name
		}
	}
	return "Unknown"
}

// schemes is ordered from the most to the least specific prefix.
var schemes = []struct {
	prefix string
	name   string
}{
	{"A0000000032010", "Visa Electron"},
	{"A0000000032020", "V Pay"},
	{"A0000000043060", "Maestro"},
	{"A000000003", "Visa"},
	{"A000000004", "Mastercard"},
	{"A000000025", "American Express"},
	{"A000000152", "Discover"},
	{"A000000065", "JCB"},
	{"A000000333", "UnionPay"},
	{"A000000277", "Interac"},
	{"A000000042", "CB"},
}

// Well-known payment applications.
var (
	AIDVisa         = MustParseAID("A0000000031010")
	AIDVisaElectron = MustParseAID("A0000000032010")
	AIDVPay         = MustParseAID("A0000000032020")
	AIDMastercard   = MustParseAID("A0000000041010")
	AIDMaestro      = MustParseAID("A0000000043060")
	AIDAmex         = MustParseAID("A00000002501")
	AIDDiscover     = MustParseAID("A0000001523010")
	AIDJCB          = MustParseAID("A0000000651010")
	AIDUnionPay     = MustParseAID("A000000333010101")
	AIDInterac      = MustParseAID("A0000002771010")
)

// DefaultCandidates returns the AIDs tried when the card does not list its
// applications, in selection order.
func DefaultCandidates() []AID {
	return []AID{
		AIDVisa, AIDVisaElectron, AIDVPay,
		AIDMastercard, AIDMaestro,
		AIDAmex, AIDDiscover, AIDJCB, AIDUnionPay, AIDInterac,
	}
}

// joinAIDs renders AIDs for display, e.g. "A0000000031010 | A0000000041010".
func joinAIDs(aids []AID) string {
	parts := make([]string, len(aids))
	for i, aid := range aids {
		parts[i] = aid.String()
	}
	return strings.Join(parts, " | ")
}

// mergeAIDs returns first followed by the AIDs of second not already present.
func mergeAIDs(first, second []AID) []AID {
	seen := make(map[string]bool, len(first)+len(second))
	out := make([]AID, 0, len(first)+len(second))
	for _, list := range [][]AID{first, second} {
		for _, aid := range list {
			if seen[aid.String()] {
				continue
			}
			seen[aid.String()] = true
			out = append(out, aid)
		}
	}
	return out
}
