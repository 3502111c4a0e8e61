package tlv

import (
	"encoding/hex"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/moov-io/bertlv"
)

// Mock custom unmarshaler
type customType struct {
	Val string
}

func (c *customType) UnmarshalTLV(data []byte) error {
	c.Val = "custom:" + hex.EncodeToString(data)
	return nil
}

type nestedStruct struct {
	Version []byte `tlv:"82"`
}

type testStruct struct {
	AID     []byte       `tlv:"84"`
	Label   string       `tlv:"50"`
	Details nestedStruct `tlv:"A5"`
	Custom  customType   `tlv:"9F02"`
	Other   []bertlv.TLV `tlv:",unknown"`
}

func TestUnmarshal(t *testing.T) {
	rawData := Hex(
		"84", "02", "1122", // AID
		"50", "03", "414243", // Label "ABC"
		"A5", "03", "8201FF", // Nested Details (Template A5, Tag 82)
		"9F02", "01", "AA", // Custom type (Tag 9F02)
		"DF01", "01", "BB", // Unknown tag
	)

	var result testStruct
	err := Unmarshal(rawData, &result)
	if err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if diff := cmp.Diff([]byte{0x11, 0x22}, result.AID); diff != "" {
		t.Errorf("AID mismatch (-want +got):\n%s", diff)
	}

	if result.Label != "414243" {
		t.Errorf("Expected Label 414243, got %s", result.Label)
	}

	if diff := cmp.Diff([]byte{0xFF}, result.Details.Version); diff != "" {
		t.Errorf("nested Version mismatch (-want +got):\n%s", diff)
	}

	if result.Custom.Val != "custom:aa" {
		t.Errorf("Expected custom:aa, got %s", result.Custom.Val)
	}

	if len(result.Other) != 1 || result.Other[0].Tag != "DF01" {
		t.Errorf("Unknown tag DF01 not captured correctly: %+v", result.Other)
	}
}

type cardRecord struct {
	PAN     string   `tlv:"5A" fmt:"bcd"`
	Name    string   `tlv:"5F20" fmt:"ascii"`
	Expiry  []byte   `tlv:"5F24"`
	Entries [][]byte `tlv:"9F4D"`
}

func TestUnmarshal_FormatsAndOccurrences(t *testing.T) {
	rawData := Hex(
		"5A 08 41 11 11 11 11 11 11 1F",
		"5F20 05 4A 4F 4E 45 53",
		"5F24 03 25 12 31",
		"5F24 03 99 01 31", // duplicate: the first occurrence is kept
		"9F4D 01 0A",
		"9F4D 01 0B",
	)

	var got cardRecord
	if err := Unmarshal(rawData, &got); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	want := cardRecord{
		PAN:     "411111111111111",
		Name:    "JONES",
		Expiry:  Hex("25 12 31"),
		Entries: [][]byte{{0x0A}, {0x0B}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Unmarshal mismatch (-want +got):\n%s", diff)
	}
}

func TestGetValue(t *testing.T) {
	rawData := Hex(
		"84", "02", "1122", // AID
		"50", "03", "414243", // Label "ABC"
		"A5", "04", "9F38", "01", "99", // Nested PDOL
	)

	t.Run("Existing Tag", func(t *testing.T) {
		val, err := GetValue(rawData, 0x84)
		if err != nil {
			t.Errorf("GetValue failed: %v", err)
		}
		if hex.EncodeToString(val) != "1122" {
			t.Errorf("Expected 1122, got %x", val)
		}
	})

	t.Run("Nested Tag", func(t *testing.T) {
		val, err := GetValue(rawData, 0x9F38)
		if err != nil {
			t.Fatalf("GetValue failed: %v", err)
		}
		if diff := cmp.Diff([]byte{0x99}, val); diff != "" {
			t.Errorf("nested value mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("Missing Tag", func(t *testing.T) {
		_, err := GetValue(rawData, 0x99)
		if !errors.Is(err, ErrTagNotFound) {
			t.Errorf("Expected ErrTagNotFound, got %v", err)
		}
	})
}

func TestUnmarshalErrors(t *testing.T) {
	t.Run("Non-pointer target", func(t *testing.T) {
		err := Unmarshal([]byte{0x84, 0x00}, testStruct{})
		if err == nil || !strings.Contains(err.Error(), "pointer") {
			t.Errorf("Expected pointer error, got %v", err)
		}
	})

	t.Run("Truncated input", func(t *testing.T) {
		var result testStruct
		err := Unmarshal(Hex("84 05 11 22"), &result)
		if !errors.Is(err, ErrTruncatedTLV) {
			t.Errorf("Expected ErrTruncatedTLV, got %v", err)
		}
	})
}
