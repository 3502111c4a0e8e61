package emv

import (
	"slices"

	"github.com/moov-io/bertlv"

	"github.com/gregLibert/emv-reader/pkg/bits"
)

// DirectoryDiscretionaryTemplate is tag '73' of a directory entry.
type DirectoryDiscretionaryTemplate struct {
	ApplicationSelectionRegisteredProprietaryData []byte `tlv:"9F0A"`
	IssuerCountryCodeAlpha3                       []byte `tlv:"5F56" fmt:"ascii"`
	IssuerCountryCodeAlpha2                       []byte `tlv:"5F55" fmt:"ascii"`
	IssuerIdentificationNumber                    []byte `tlv:"42"`

	Unknown []bertlv.TLV `tlv:",unknown"`
}

// ApplicationTemplate (Tag '61') represents an entry in the Payment System Directory.
// It contains the necessary information to select a specific application.
type ApplicationTemplate struct {
	AID                          []byte                         `tlv:"4F"` // Mandatory
	ApplicationLabel             []byte                         `tlv:"50" fmt:"ascii"`
	ApplicationPriorityIndicator []byte                         `tlv:"87" fmt:"int"`
	KernelIdentifier             []byte                         `tlv:"9F2A"`
	DirectoryDiscretionaryData   DirectoryDiscretionaryTemplate `tlv:"73"`
	ApplicationPreferredName     []byte                         `tlv:"9F12" fmt:"ascii"`

	Unknown []bertlv.TLV `tlv:",unknown"`
}

// Priority returns the application priority (bits 4-1 of '87'): 1 is the
// highest, 0 means no priority and sorts after every other value.
func (a ApplicationTemplate) Priority() int {
	if len(a.ApplicationPriorityIndicator) == 0 {
		return 0
	}
	return int(bits.GetRange(a.ApplicationPriorityIndicator[0], 4, 1))
}

// sortByPriority returns a copy of apps ordered by priority, keeping the card's
// order between equal priorities. Entries without an AID are dropped.
func sortByPriority(apps []ApplicationTemplate) []ApplicationTemplate {
	out := make([]ApplicationTemplate, 0, len(apps))
	for _, app := range apps {
		if len(app.AID) > 0 {
			out = append(out, app)
		}
	}

	rank := func(a ApplicationTemplate) int {
		if p := a.Priority(); p != 0 {
			return p
		}
		return 16
	}
	slices.SortStableFunc(out, func(a, b ApplicationTemplate) int {
		return rank(a) - rank(b)
	})
	return out
}

// directoryAIDs returns the AIDs of the entries, in order.
func directoryAIDs(apps []ApplicationTemplate) []AID {
	aids := make([]AID, 0, len(apps))
	for _, app := range apps {
		aids = append(aids, AID(app.AID))
	}
	return aids
}
