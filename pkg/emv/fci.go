package emv

import (
	"errors"
	"fmt"
	"strings"

	"github.com/moov-io/bertlv"
	"golang.org/x/text/encoding/charmap"

	"github.com/gregLibert/emv-reader/pkg/tlv"
)

// FILE CONTROL INFORMATION (FCI) returned by SELECT, EMV Book 1 §11.3.4.
//
//	6F  FCI Template
//	    84  DF Name (AID, or "2PAY.SYS.DDF01" for the PPSE)
//	    A5  FCI Proprietary Template
//	        50    Application Label
//	        87    Application Priority Indicator
//	        9F38  PDOL
//	        5F2D  Language Preference
//	        9F11  Issuer Code Table Index
//	        9F12  Application Preferred Name
//	        BF0C  FCI Issuer Discretionary Data
//	              61  Directory Entry (PPSE only, repeated)

// FCI represents the EMV-specific File Control Information returned in response to a SELECT command.
type FCI struct {
	DFName              []byte                 `tlv:"84" fmt:"ascii"`
	ProprietaryTemplate FCIProprietaryTemplate `tlv:"A5"`

	Unknown []bertlv.TLV `tlv:",unknown"`
}

// FCIProprietaryTemplate contains the issuer-specific data found in tag 'A5'.
type FCIProprietaryTemplate struct {
	ApplicationLabel []byte `tlv:"50" fmt:"ascii"`

	// Optional EMV fields
	ApplicationPriorityIndicator []byte `tlv:"87" fmt:"int"`
	SFI                          []byte `tlv:"88"`
	PDOL                         []byte `tlv:"9F38"`
	LanguagePreference           []byte `tlv:"5F2D" fmt:"ascii"`
	IssuerCodeTableIndex         []byte `tlv:"9F11" fmt:"int"`
	ApplicationPreferredName     []byte `tlv:"9F12" fmt:"ascii"`

	IssuerDiscretionaryData *FCIIssuerDiscretionaryData `tlv:"BF0C"`

	Unknown []bertlv.TLV `tlv:",unknown"`
}

// FCIIssuerDiscretionaryData represents tag 'BF0C'. In the PPSE FCI it lists
// the card's payment applications.
type FCIIssuerDiscretionaryData struct {
	Applications []ApplicationTemplate `tlv:"61"`

	LogEntry                           []byte `tlv:"9F4D"`
	IssuerIdentificationNumberExtended []byte `tlv:"9F0C"`
	IssuerCountryCodeAlpha3            []byte `tlv:"5F56" fmt:"ascii"`
	IssuerCountryCodeAlpha2            []byte `tlv:"5F55" fmt:"ascii"`
	BankIdentifierCode                 []byte `tlv:"5F54" fmt:"ascii"`
	IBAN                               []byte `tlv:"5F53" fmt:"ascii"`
	IssuerURL                          []byte `tlv:"5F50" fmt:"ascii"`
	IssuerIdentificationNumber         []byte `tlv:"42"`

	Unknown []bertlv.TLV `tlv:",unknown"`
}

// ParseFCI interprets raw byte data as an EMV FCI structure.
func ParseFCI(data []byte) (*FCI, error) {
	if len(data) == 0 {
		return nil, errors.New("empty data cannot be parsed")
	}

	packets, err := tlv.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("BER-TLV decode failed: %w", err)
	}
	return fciFromPackets(packets)
}

func fciFromPackets(packets []bertlv.TLV) (*FCI, error) {
	processingPackets := packets
	if len(packets) > 0 && strings.EqualFold(packets[0].Tag, "6F") {
		processingPackets = packets[0].TLVs
	}

	fci := &FCI{}
	if err := tlv.UnmarshalFromPackets(processingPackets, fci); err != nil {
		return nil, fmt.Errorf("failed to map structure: %w", err)
	}

	return fci, nil
}

// Label returns the Application Label ('50').
func (f *FCI) Label() string {
	return strings.TrimSpace(string(f.ProprietaryTemplate.ApplicationLabel))
}

// PreferredName returns the Application Preferred Name ('9F12') decoded with
// the character set named by the Issuer Code Table Index ('9F11').
func (f *FCI) PreferredName() string {
	p := f.ProprietaryTemplate
	return decodePreferredName(p.ApplicationPreferredName, p.IssuerCodeTableIndex)
}

// Applications returns the PPSE directory entries ordered by priority.
func (f *FCI) Applications() []ApplicationTemplate {
	dd := f.ProprietaryTemplate.IssuerDiscretionaryData
	if dd == nil {
		return nil
	}
	return sortByPriority(dd.Applications)
}

// Describe generates a detailed, standardized report of the FCI content.
func (f *FCI) Describe() string {
	var sb strings.Builder
	sb.WriteString("=== EMV FCI TEMPLATE ===")

	tlv.WriteStructFields(&sb, "FCI", f)

	tlv.WriteStructFields(&sb, "Proprietary", f.ProprietaryTemplate)

	if dd := f.ProprietaryTemplate.IssuerDiscretionaryData; dd != nil {
		tlv.WriteStructFields(&sb, "Discretionary", dd)
		for i, app := range dd.Applications {
			tlv.WriteStructFields(&sb, fmt.Sprintf("App[%d]", i+1), app)
		}
	}

	return strings.TrimRight(sb.String(), "\n")
}

// issuerCodeTables maps the Issuer Code Table Index to ISO/IEC 8859 parts.
var issuerCodeTables = map[byte]*charmap.Charmap{
	1:  charmap.ISO8859_1,
	2:  charmap.ISO8859_2,
	3:  charmap.ISO8859_3,
	4:  charmap.ISO8859_4,
	5:  charmap.ISO8859_5,
	6:  charmap.ISO8859_6,
	7:  charmap.ISO8859_7,
	8:  charmap.ISO8859_8,
	9:  charmap.ISO8859_9,
	10: charmap.ISO8859_10,
	13: charmap.ISO8859_13,
	14: charmap.ISO8859_14,
	15: charmap.ISO8859_15,
	16: charmap.ISO8859_16,
}

// decodePreferredName falls back to printable ASCII when the code table is
// missing or unknown.
func decodePreferredName(name, codeTable []byte) string {
	if len(name) == 0 {
		return ""
	}
	if len(codeTable) == 1 {
		if cm, ok := issuerCodeTables[codeTable[0]]; ok {
			if decoded, err := cm.NewDecoder().Bytes(name); err == nil {
				return strings.TrimSpace(string(decoded))
			}
		}
	}
	return strings.TrimSpace(tlv.MakeSafeASCII(name))
}
