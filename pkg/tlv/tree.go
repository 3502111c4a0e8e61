package tlv

import (
	"encoding/hex"
	"strings"

	"github.com/moov-io/bertlv"
)

// Encode re-encodes decoded nodes. On canonical input (minimal length forms,
// no padding) Encode(Decode(b)) returns b.
func Encode(nodes []bertlv.TLV) ([]byte, error) {
	return bertlv.Encode(nodes)
}

// Walk calls fn for every primitive node, depth-first and in encoding order.
func Walk(nodes []bertlv.TLV, fn func(bertlv.TLV)) {
	for _, node := range nodes {
		if len(node.TLVs) > 0 {
			Walk(node.TLVs, fn)
			continue
		}
		if isConstructedTag(node.Tag) {
			continue
		}
		fn(node)
	}
}

// Find returns the first node carrying tag, searching depth-first.
func Find(nodes []bertlv.TLV, tag string) (bertlv.TLV, bool) {
	tag = strings.ToUpper(tag)
	for _, node := range nodes {
		if strings.ToUpper(node.Tag) == tag {
			return node, true
		}
		if found, ok := Find(node.TLVs, tag); ok {
			return found, true
		}
	}
	return bertlv.TLV{}, false
}

func isConstructedTag(tag string) bool {
	if len(tag) < 2 {
		return false
	}
	raw, err := hex.DecodeString(tag[:2])
	return err == nil && IsConstructed(raw)
}
