/*
Package tlv decodes, re-encodes and maps BER-TLV (Basic Encoding Rules -
Tag-Length-Value) data as used by EMV cards.

# Encoding

Each data object is a Tag, a Length and a Value:

  - Tag: 1 to 4 bytes. Bit 6 of the first byte marks a constructed object (its
    value is itself a sequence of TLV objects). When the low 5 bits of the first
    byte are all set, subsequent bytes follow while their bit 8 is set.
  - Length: short form (one byte, 0 to 127) or long form '81 XX', '82 XX XX',
    '83 XX XX XX'. The indefinite form '80' is not used by EMV and is rejected.
  - Value: exactly Length bytes.

Between objects, '00' and 'FF' bytes are padding and are skipped (EMV Book 3, Annex B).

Decoded nodes are github.com/moov-io/bertlv TLV values: Tag holds the uppercase
hex tag, primitive objects carry Value, constructed objects carry their children
in TLVs.

# Struct mapping

Unmarshal maps decoded objects onto structs annotated with `tlv:"<hex tag>"`:

	type Template struct {
	    DFName []byte       `tlv:"84"`
	    Label  string       `tlv:"50" fmt:"ascii"`
	    Other  []bertlv.TLV `tlv:",unknown"`
	}
*/
package tlv
