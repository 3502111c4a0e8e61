package emv

import (
	"errors"
	"fmt"
	"strings"

	"github.com/moov-io/bertlv"

	"github.com/gregLibert/emv-reader/pkg/iso7816"
	"github.com/gregLibert/emv-reader/pkg/tlv"
)

// GET PROCESSING OPTIONS, EMV Book 3 §6.5.8.
//
//	C-APDU: 80 A8 00 00 Lc [83 L <PDOL data>] 00
//
// The response comes in one of two formats:
//
//	Format 1: 80 L [AIP:2][AFL:4n]
//	Format 2: 77 L [82 AIP][94 AFL][other data objects, e.g. 57, 5F20, 9F10...]

// NewGPOCommand builds GET PROCESSING OPTIONS with the PDOL related data
// wrapped in the Command Template '83'.
func NewGPOCommand(pdolData []byte) (*iso7816.CommandAPDU, error) {
	payload, err := bertlv.Encode([]bertlv.TLV{{Tag: "83", Value: pdolData}})
	if err != nil {
		return nil, fmt.Errorf("encode command template: %w", err)
	}

	ins, err := iso7816.NewInstruction(iso7816.INS_GET_PROCESSING_OPTIONS)
	if err != nil {
		return nil, err
	}
	return iso7816.NewCommandAPDU(iso7816.ClassProprietary, ins, 0x00, 0x00, payload, iso7816.MaxShortLe), nil
}

// ProcessingOptions is the parsed GET PROCESSING OPTIONS response.
type ProcessingOptions struct {
	AIP []byte
	AFL []AFLEntry

	// Fields holds the primitive data objects of the response, AIP ('82') and
	// AFL ('94') included, in response order.
	Fields []bertlv.TLV
}

var errUnknownGPOFormat = errors.New("neither format 1 ('80') nor format 2 ('77')")

// ParseProcessingOptions decodes both response formats.
func ParseProcessingOptions(data []byte) (*ProcessingOptions, error) {
	packets, err := tlv.Decode(data)
	if err != nil {
		return nil, err
	}
	if len(packets) == 0 {
		return nil, errUnknownGPOFormat
	}

	var aip, afl []byte
	var fields []bertlv.TLV

	switch strings.ToUpper(packets[0].Tag) {
	case "80":
		value := packets[0].Value
		if len(value) < 2 {
			return nil, fmt.Errorf("format 1 response of %d bytes has no AIP", len(value))
		}
		aip, afl = value[:2], value[2:]
		fields = []bertlv.TLV{{Tag: "82", Value: aip}, {Tag: "94", Value: afl}}

	case "77":
		tlv.Walk(packets[0].TLVs, func(node bertlv.TLV) {
			fields = append(fields, node)
		})
		if node, ok := tlv.Find(packets[0].TLVs, "82"); ok {
			aip = node.Value
		}
		if node, ok := tlv.Find(packets[0].TLVs, "94"); ok {
			afl = node.Value
		}

	default:
		return nil, fmt.Errorf("%w: got '%s'", errUnknownGPOFormat, packets[0].Tag)
	}

	entries, err := ParseAFL(afl)
	if err != nil {
		return nil, err
	}

	return &ProcessingOptions{AIP: aip, AFL: entries, Fields: fields}, nil
}
