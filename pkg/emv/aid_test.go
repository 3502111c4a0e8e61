package emv

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseAID(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "A0000000031010", want: "A0000000031010"},
		{in: "a0 00 00 00 04 10 10", want: "A0000000041010"},
		{in: "A000000025", want: "A000000025"},
		{in: "A0000000", wantErr: true},
		{in: "A0000000031010A0000000031010A000", want: "A0000000031010A0000000031010A000"},
		{in: "A0000000031010A0000000031010A00000", wantErr: true},
		{in: "XYZ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAID(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseAID(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if err == nil && got.String() != tt.want {
				t.Errorf("ParseAID(%q) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}
}

func TestAID_Scheme(t *testing.T) {
	tests := []struct {
		aid  AID
		want string
	}{
		{AIDVisa, "Visa"},
		{AIDVisaElectron, "Visa Electron"},
		{AIDVPay, "V Pay"},
		{AIDMastercard, "Mastercard"},
		{AIDMaestro, "Maestro"},
		{AIDAmex, "American Express"},
		{AIDDiscover, "Discover"},
		{AIDJCB, "JCB"},
		{AIDUnionPay, "UnionPay"},
		{AIDInterac, "Interac"},
		{MustParseAID("A0000000421010"), "CB"},
		{MustParseAID("F000000001"), "Unknown"},
	}

	for _, tt := range tests {
		if got := tt.aid.Scheme(); got != tt.want {
			t.Errorf("%s.Scheme() = %q, want %q", tt.aid, got, tt.want)
		}
	}
}

func TestMergeAIDs(t *testing.T) {
	got := mergeAIDs(
		[]AID{AIDMastercard, AIDVisa},
		[]AID{AIDVisa, AIDMaestro, AIDMastercard},
	)

	want := []string{"A0000000041010", "A0000000031010", "A0000000043060"}
	var gotStr []string
	for _, aid := range got {
		gotStr = append(gotStr, aid.String())
	}
	if diff := cmp.Diff(want, gotStr); diff != "" {
		t.Errorf("mergeAIDs() mismatch (-want +got):\n%s", diff)
	}

	if got := joinAIDs(got[:2]); got != "A0000000041010 | A0000000031010" {
		t.Errorf("joinAIDs() = %q", got)
	}
}

func TestDefaultCandidates(t *testing.T) {
	first := DefaultCandidates()
	first[0] = AIDInterac

	if second := DefaultCandidates(); !second[0].Equal(AIDVisa) {
		t.Errorf("DefaultCandidates() shares its backing array: got %s first", second[0])
	}
}
