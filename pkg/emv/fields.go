package emv

import (
	"strings"

	"github.com/moov-io/bertlv"

	"github.com/gregLibert/emv-reader/pkg/tlv"
)

// fieldSet is the merged view of every primitive data object read from the
// card. The first value seen for a tag is kept.
type fieldSet map[string][]byte

// add merges the primitive leaves of nodes, depth-first.
func (f fieldSet) add(nodes []bertlv.TLV) {
	tlv.Walk(nodes, func(node bertlv.TLV) {
		tag := strings.ToUpper(node.Tag)
		if _, seen := f[tag]; !seen {
			f[tag] = node.Value
		}
	})
}

func (f fieldSet) lookup(tag string) ([]byte, bool) {
	v, ok := f[tag]
	return v, ok
}

func (f fieldSet) get(tag string) []byte {
	return f[tag]
}

// hasCardholderData reports whether PAN and expiry can already be built.
func (f fieldSet) hasCardholderData() bool {
	_, pan := f[tagPAN]
	_, expiry := f[tagExpiry]
	_, track2 := f[tagTrack2]
	return (pan || track2) && (expiry || track2)
}
