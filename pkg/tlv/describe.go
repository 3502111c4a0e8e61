package tlv

import (
	"encoding/hex"
	"fmt"
	"reflect"
	"strings"

	"github.com/moov-io/bertlv"
)

// Value formats accepted in `fmt:"..."` struct tags and by DescribeNodes.
const (
	FormatHex     = ""
	FormatASCII   = "ascii"
	FormatInt     = "int"
	FormatNumeric = "n"    // BCD digits, e.g. currency codes
	FormatCompact = "cn"   // BCD digits right-padded with F
	FormatDate    = "date" // YYMMDD
	FormatPAN     = "pan"  // cn with all but the last 4 digits masked
)

var formatters = map[string]func([]byte) string{
	FormatASCII: func(b []byte) string {
		return fmt.Sprintf("%X (%q)", b, MakeSafeASCII(b))
	},
	FormatInt: func(b []byte) string {
		var n uint64
		for _, c := range b {
			n = n<<8 | uint64(c)
		}
		return fmt.Sprintf("%X (Dec: %d)", b, n)
	},
	FormatNumeric: func(b []byte) string {
		digits := strings.TrimLeft(fmt.Sprintf("%X", b), "0")
		if digits == "" {
			digits = "0"
		}
		return digits
	},
	FormatCompact: func(b []byte) string {
		return strings.TrimRight(fmt.Sprintf("%X", b), "F")
	},
	FormatDate: func(b []byte) string {
		s := fmt.Sprintf("%X", b)
		if len(s) != 6 {
			return s
		}
		return fmt.Sprintf("20%s-%s-%s", s[0:2], s[2:4], s[4:6])
	},
	FormatPAN: func(b []byte) string {
		pan := strings.TrimRight(fmt.Sprintf("%X", b), "F")
		if len(pan) <= 4 {
			return pan
		}
		return strings.Repeat("*", len(pan)-4) + pan[len(pan)-4:]
	},
}

// FormatValue renders data in one of the Format* styles. Unknown formats
// fall back to uppercase hex.
func FormatValue(data []byte, format string) string {
	if f, ok := formatters[format]; ok {
		return f(data)
	}
	return strings.ToUpper(hex.EncodeToString(data))
}

// WriteStructFields writes one line per populated field of s (a struct or a
// pointer to one). Lines are joined with newlines without a trailing one; a
// non-empty builder gets a separating newline first.
func WriteStructFields(sb *strings.Builder, prefix string, s interface{}) {
	lines := DescribeFields(prefix, s)
	if len(lines) == 0 {
		return
	}
	if sb.Len() > 0 {
		sb.WriteString("\n")
	}
	sb.WriteString(strings.Join(lines, "\n"))
}

// DescribeFields lists the populated byte, string and unknown-TLV fields of
// s as "    - <prefix>.<Field> (<tag>): <value>". Nested templates are
// skipped: describe them with their own prefix.
func DescribeFields(prefix string, s interface{}) []string {
	val := reflect.ValueOf(s)
	if val.Kind() == reflect.Ptr {
		if val.IsNil() {
			return nil
		}
		val = val.Elem()
	}
	if val.Kind() != reflect.Struct {
		return nil
	}

	typ := val.Type()
	var lines []string
	for i := 0; i < val.NumField(); i++ {
		field, sf := val.Field(i), typ.Field(i)

		switch {
		case field.Type() == reflect.TypeOf([]bertlv.TLV{}):
			for _, node := range field.Interface().([]bertlv.TLV) {
				lines = append(lines, line(prefix, "Unknown Tag "+node.Tag, FormatValue(getPacketRawData(node), FormatHex)))
			}
		case isByteSlice(field):
			if field.Len() > 0 {
				lines = append(lines, line(prefix, fieldLabel(sf), FormatValue(field.Bytes(), sf.Tag.Get("fmt"))))
			}
		case field.Kind() == reflect.String:
			if field.Len() > 0 {
				lines = append(lines, line(prefix, fieldLabel(sf), field.String()))
			}
		}
	}
	return lines
}

// DescribeNodes lists the primitive objects under nodes, formatting each
// tag with formats (hex when absent).
func DescribeNodes(prefix string, nodes []bertlv.TLV, formats map[string]string) []string {
	var lines []string
	Walk(nodes, func(node bertlv.TLV) {
		lines = append(lines, line(prefix, node.Tag, FormatValue(node.Value, formats[strings.ToUpper(node.Tag)])))
	})
	return lines
}

func line(prefix, label, value string) string {
	return fmt.Sprintf("    - %s.%s: %s", prefix, label, value)
}

func fieldLabel(sf reflect.StructField) string {
	tag := sf.Tag.Get("tlv")
	if tag == "" || strings.HasPrefix(tag, ",") {
		return sf.Name
	}
	return fmt.Sprintf("%s (%s)", sf.Name, tag)
}

// MakeSafeASCII replaces every non-printable byte with a dot.
func MakeSafeASCII(data []byte) string {
	return strings.Map(func(r rune) rune {
		if r >= 32 && r <= 126 {
			return r
		}
		return '.'
	}, string(data))
}
