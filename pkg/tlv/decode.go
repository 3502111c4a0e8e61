package tlv

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/moov-io/bertlv"

	"github.com/gregLibert/emv-reader/pkg/bits"
)

// MaxTagLength is the longest tag accepted by the decoder, in bytes.
const MaxTagLength = 4

var (
	// ErrTruncatedTLV means a tag, a length or a value runs past the end of the buffer.
	ErrTruncatedTLV = errors.New("truncated TLV")

	// ErrInvalidTag means the tag bytes do not form a valid BER tag.
	ErrInvalidTag = errors.New("invalid TLV tag")

	// ErrInvalidLength means the length bytes use a form EMV does not allow.
	ErrInvalidLength = errors.New("invalid TLV length")
)

// DecodeError locates a decoding failure in the input buffer.
type DecodeError struct {
	Offset int
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%v at offset %d", e.Err, e.Offset)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Decode parses a sequence of BER-TLV objects, recursing into constructed ones.
//
// Declared lengths are checked against the remaining buffer before use, and
// values are sub-slices of data: nothing is allocated from a length field.
func Decode(data []byte) ([]bertlv.TLV, error) {
	return decodeAt(data, 0)
}

// decodeAt decodes data, reporting offsets relative to base.
func decodeAt(data []byte, base int) ([]bertlv.TLV, error) {
	var nodes []bertlv.TLV

	pos := 0
	for pos < len(data) {
		if data[pos] == 0x00 || data[pos] == 0xFF {
			pos++
			continue
		}

		start := pos

		tag, n, err := readTag(data[pos:])
		if err != nil {
			return nil, &DecodeError{Offset: base + start, Err: err}
		}
		pos += n

		length, n, err := readLength(data[pos:])
		if err != nil {
			return nil, &DecodeError{Offset: base + pos, Err: err}
		}
		pos += n

		if length > len(data)-pos {
			return nil, &DecodeError{
				Offset: base + start,
				Err:    fmt.Errorf("%w: tag %X declares %d bytes, %d left", ErrTruncatedTLV, tag, length, len(data)-pos),
			}
		}

		value := data[pos : pos+length : pos+length]
		node := bertlv.TLV{Tag: strings.ToUpper(hex.EncodeToString(tag))}

		if IsConstructed(tag) {
			children, err := decodeAt(value, base+pos)
			if err != nil {
				return nil, err
			}
			node.TLVs = children
		} else {
			node.Value = value
		}

		nodes = append(nodes, node)
		pos += length
	}

	return nodes, nil
}

// readTag returns the tag bytes at the start of data and their count.
func readTag(data []byte) ([]byte, int, error) {
	if len(data) == 0 {
		return nil, 0, ErrTruncatedTLV
	}

	if !bits.AllSet(data[0], 0x1F) {
		return data[:1], 1, nil
	}

	i := 1
	for {
		if i >= len(data) {
			return nil, 0, fmt.Errorf("%w: tag continuation missing", ErrTruncatedTLV)
		}
		if i == 1 && data[i] == 0x80 {
			return nil, 0, fmt.Errorf("%w: leading zero in tag number", ErrInvalidTag)
		}
		if i >= MaxTagLength {
			return nil, 0, fmt.Errorf("%w: longer than %d bytes", ErrInvalidTag, MaxTagLength)
		}
		more := bits.IsSet(data[i], 8)
		i++
		if !more {
			return data[:i], i, nil
		}
	}
}

// readLength returns the decoded length at the start of data and the number
// of length bytes consumed.
func readLength(data []byte) (int, int, error) {
	if len(data) == 0 {
		return 0, 0, fmt.Errorf("%w: length missing", ErrTruncatedTLV)
	}

	first := data[0]
	if first < 0x80 {
		return int(first), 1, nil
	}

	count := int(first & 0x7F)
	if count == 0 {
		return 0, 0, fmt.Errorf("%w: indefinite form", ErrInvalidLength)
	}
	if count > 3 {
		return 0, 0, fmt.Errorf("%w: %d length bytes", ErrInvalidLength, count)
	}
	if len(data) < 1+count {
		return 0, 0, fmt.Errorf("%w: length needs %d bytes", ErrTruncatedTLV, count)
	}

	length := 0
	for _, b := range data[1 : 1+count] {
		length = length<<8 | int(b)
	}
	return length, 1 + count, nil
}

// IsConstructed reports whether a raw tag has the constructed bit (bit 6 of the first byte).
func IsConstructed(tag []byte) bool {
	return len(tag) > 0 && bits.IsSet(tag[0], 6)
}
