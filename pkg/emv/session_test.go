package emv

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gregLibert/emv-reader/pkg/cardtag"
	"github.com/gregLibert/emv-reader/pkg/iso7816"
	"github.com/gregLibert/emv-reader/pkg/tlv"
)

// ok appends status 9000 to the given hex payload.
func ok(payload ...string) []byte {
	return append(tlv.Hex(payload...), 0x90, 0x00)
}

var (
	cmdSelectPPSE       = tlv.Hex("00 A4 04 00 0E 325041592E5359532E4444463031 00")
	cmdSelectVisa       = tlv.Hex("00 A4 04 00 07 A0000000031010 00")
	cmdSelectMastercard = tlv.Hex("00 A4 04 00 07 A0000000041010 00")
	cmdGPONoPDOL        = tlv.Hex("80 A8 00 00 02 83 00 00")

	swFileNotFound   = tlv.Hex("6A 82")
	swRecordNotFound = tlv.Hex("6A 83")

	fciVisa = ok("6F 11 84 07 A0000000031010 A5 06 50 04 56495341")

	// AIP 0000, AFL: SFI 1 records 1-1.
	gpoOneRecord = ok("80 06 0000 08010100")
)

func cmdReadRecord(sfi, number byte) []byte {
	raw, err := iso7816.ReadRecord(iso7816.ClassInterindustry, sfi, number).Bytes()
	if err != nil {
		panic(err)
	}
	return raw
}

// readCard runs a Reader over a scripted card and returns the outcome and the transport.
func readCard(t *testing.T, exchanges []cardtag.Exchange, opts ...Option) (CardDataResponse, *cardtag.MockTransport) {
	t.Helper()

	mock := &cardtag.MockTransport{Exchanges: exchanges}
	tag := cardtag.NewEmvCardTag("04AABBCCDD", mock)
	resp := NewReader(opts...).ReadCard(context.Background(), tag)

	require.NotNil(t, resp)
	assert.True(t, mock.Closed(), "tag must be closed")
	assert.Equal(t, 0, mock.Remaining(), "unconsumed exchanges")
	return resp, mock
}

func requireSuccess(t *testing.T, resp CardDataResponse) CardData {
	t.Helper()
	success, isSuccess := resp.(Success)
	require.Truef(t, isSuccess, "want Success, got %T: %s", resp, Describe(resp))
	return success.Card
}

func requireError(t *testing.T, resp CardDataResponse) error {
	t.Helper()
	failure, isError := resp.(Error)
	require.Truef(t, isError, "want Error, got %T: %s", resp, Describe(resp))
	require.Error(t, failure.Cause)
	return failure.Cause
}

func TestReadCard_Success(t *testing.T) {
	t.Parallel()

	resp, _ := readCard(t, []cardtag.Exchange{
		{Command: cmdSelectVisa, Response: ok("6F 09 84 07 A0000000031010")},
		{Command: cmdGPONoPDOL, Response: gpoOneRecord},
		{Command: cmdReadRecord(1, 1), Response: ok("70 0F 5A 08 4111111111111111 5F24 02 2512")},
	}, WithPPSE(false), WithCandidates(AIDVisa))

	card := requireSuccess(t, resp)
	assert.Equal(t, CardData{
		AID:         AIDVisa,
		AIDs:        []AID{AIDVisa},
		PAN:         "4111111111111111",
		ExpiryMonth: 12,
		ExpiryYear:  25,
	}, card)
	assert.Equal(t, "AID: A0000000031010\nNumber: 4111 1111 1111 1111\nExpires: 12/25", Describe(resp))
}

func TestReadCard_CardNotSupported(t *testing.T) {
	t.Parallel()

	resp, _ := readCard(t, []cardtag.Exchange{
		{Command: cmdSelectVisa, Response: swFileNotFound},
		{Command: cmdSelectMastercard, Response: swFileNotFound},
	}, WithPPSE(false), WithCandidates(AIDVisa, AIDMastercard))

	assert.Equal(t, CardNotSupported{AIDs: []AID{AIDVisa, AIDMastercard}}, resp)
	assert.Equal(t, "Card is not supported!\nAID: A0000000031010 | A0000000041010", Describe(resp))
}

func TestReadCard_NoCandidates(t *testing.T) {
	t.Parallel()

	resp, _ := readCard(t, []cardtag.Exchange{
		{Command: cmdSelectPPSE, Response: swFileNotFound},
	}, WithCandidates())

	assert.Equal(t, CardNotSupported{}, resp)
	assert.Equal(t, "Card is not supported!\nAID: NOT FOUND", Describe(resp))
}

func TestReadCard_PPSEOrdersCandidates(t *testing.T) {
	t.Parallel()

	// Visa has priority 2 and Mastercard priority 1.
	ppse := ok(
		"6F 31 84 0E 325041592E5359532E4444463031 A5 1F BF0C 1C",
		"61 0C 4F 07 A0000000031010 87 01 02",
		"61 0C 4F 07 A0000000041010 87 01 01",
	)

	resp, mock := readCard(t, []cardtag.Exchange{
		{Command: cmdSelectPPSE, Response: ppse},
		{Command: cmdSelectMastercard, Response: swFileNotFound},
		{Command: cmdSelectVisa, Response: fciVisa},
		{Command: cmdGPONoPDOL, Response: gpoOneRecord},
		{Command: cmdReadRecord(1, 1), Response: ok("70 10 5A 08 4111111111111111 5F24 03 271031")},
	}, WithCandidates(AIDVisa))

	card := requireSuccess(t, resp)
	assert.Equal(t, AIDVisa, card.AID)
	assert.Equal(t, []AID{AIDVisa, AIDMastercard}, card.AIDs)
	assert.Equal(t, "VISA", card.Label)
	assert.Equal(t, "10/27", card.FormattedExpDate())
	assert.Len(t, mock.Sent, 5)
	assert.Equal(t, "AID: A0000000031010 | A0000000041010\nNumber: 4111 1111 1111 1111\nExpires: 10/27", Describe(resp))
}

func TestReadCard_PDOL(t *testing.T) {
	t.Parallel()

	fci := ok("6F 17 84 07 A0000000031010 A5 0C 50 04 56495341 9F38 03 9F02 06")
	terminal := DefaultTerminal()
	terminal.Amount = 1250

	resp, _ := readCard(t, []cardtag.Exchange{
		{Command: cmdSelectVisa, Response: fci},
		{Command: tlv.Hex("80 A8 00 00 08 83 06 000000001250 00"), Response: gpoOneRecord},
		{Command: cmdReadRecord(1, 1), Response: ok("70 0F 5A 08 4111111111111111 5F24 02 2512")},
	}, WithPPSE(false), WithCandidates(AIDVisa), WithTerminal(terminal))

	requireSuccess(t, resp)
}

func TestReadCard_FirstValueWins(t *testing.T) {
	t.Parallel()

	resp, _ := readCard(t, []cardtag.Exchange{
		{Command: cmdSelectVisa, Response: fciVisa},
		{Command: cmdGPONoPDOL, Response: ok("80 06 0000 08010200")},
		{Command: cmdReadRecord(1, 1), Response: ok("70 0A 5A 08 4111111111111111")},
		{Command: cmdReadRecord(1, 2), Response: ok("70 0F 5A 08 5555555555554444 5F24 02 2601")},
	}, WithPPSE(false), WithCandidates(AIDVisa))

	card := requireSuccess(t, resp)
	assert.Equal(t, "4111111111111111", card.PAN)
	assert.Equal(t, 1, card.ExpiryMonth)
	assert.Equal(t, 26, card.ExpiryYear)
}

func TestReadCard_Track2Fallback(t *testing.T) {
	t.Parallel()

	// Format 2 without AFL, the card data only lives in Track 2.
	resp, _ := readCard(t, []cardtag.Exchange{
		{Command: cmdSelectVisa, Response: fciVisa},
		{Command: cmdGPONoPDOL, Response: ok("77 17 82 02 0000 57 11 4111111111111111D2512201000000000F")},
	}, WithPPSE(false), WithCandidates(AIDVisa))

	card := requireSuccess(t, resp)
	assert.Equal(t, "4111111111111111", card.PAN)
	assert.Equal(t, 12, card.ExpiryMonth)
	assert.Equal(t, 25, card.ExpiryYear)
}

func TestReadCard_FallbackScan(t *testing.T) {
	t.Parallel()

	resp, mock := readCard(t, []cardtag.Exchange{
		{Command: cmdSelectVisa, Response: fciVisa},
		{Command: cmdGPONoPDOL, Response: ok("77 04 82 02 0000")},
		{Command: cmdReadRecord(1, 1), Response: ok("70 0F 5A 08 4111111111111111 5F24 02 2512")},
		{Command: cmdReadRecord(1, 2), Response: swRecordNotFound},
		{Command: cmdReadRecord(2, 1), Response: swFileNotFound},
		{Command: cmdReadRecord(3, 1), Response: tlv.Hex("69 85")},
		{Command: cmdReadRecord(3, 2), Response: swRecordNotFound},
	}, WithPPSE(false), WithCandidates(AIDVisa))

	card := requireSuccess(t, resp)
	assert.Equal(t, "4111111111111111", card.PAN)
	assert.Len(t, mock.Sent, 7)
}

func TestReadCard_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		exchanges []cardtag.Exchange
		check     func(t *testing.T, cause error)
		describe  string
	}{
		{
			name: "GPO rejected",
			exchanges: []cardtag.Exchange{
				{Command: cmdSelectVisa, Response: fciVisa},
				{Command: cmdGPONoPDOL, Response: tlv.Hex("69 85")},
			},
			check: func(t *testing.T, cause error) {
				var pe *ProtocolError
				require.ErrorAs(t, cause, &pe)
				assert.Equal(t, "GET PROCESSING OPTIONS", pe.Step)
				assert.Equal(t, iso7816.SW_ERR_COND_OF_USE_NOT_SAT, pe.Status)
			},
			describe: "protocol error: GET PROCESSING OPTIONS: [6985] SW_ERR_COND_OF_USE_NOT_SAT",
		},
		{
			name: "PDOL with long-form length",
			exchanges: []cardtag.Exchange{
				{Command: cmdSelectVisa, Response: ok("6F 14 84 07 A0000000031010 A5 09 9F38 06 9F66 83 FFFFFF")},
			},
			check: func(t *testing.T, cause error) {
				var de *DecodeError
				require.ErrorAs(t, cause, &de)
				assert.Equal(t, "GET PROCESSING OPTIONS", de.Step)
				assert.ErrorIs(t, cause, tlv.ErrInvalidLength)
			},
		},
		{
			name: "PDOL too long for GPO",
			exchanges: []cardtag.Exchange{
				{Command: cmdSelectVisa, Response: ok("6F 14 84 07 A0000000031010 A5 09 9F38 06 9F66 7F 9F02 7F")},
			},
			check: func(t *testing.T, cause error) {
				assert.ErrorIs(t, cause, ErrPDOLTooLong)
			},
		},
		{
			name: "mandatory record missing",
			exchanges: []cardtag.Exchange{
				{Command: cmdSelectVisa, Response: fciVisa},
				{Command: cmdGPONoPDOL, Response: ok("80 06 0000 08010200")},
				{Command: cmdReadRecord(1, 1), Response: ok("70 0A 5A 08 4111111111111111")},
				{Command: cmdReadRecord(1, 2), Response: swRecordNotFound},
			},
			check: func(t *testing.T, cause error) {
				var pe *ProtocolError
				require.ErrorAs(t, cause, &pe)
				assert.Equal(t, "READ RECORD SFI 1 REC 2", pe.Step)
			},
			describe: "protocol error: READ RECORD SFI 1 REC 2: [6A83] SW_ERR_RECORD_NOT_FOUND",
		},
		{
			name: "record is not a 70 template",
			exchanges: []cardtag.Exchange{
				{Command: cmdSelectVisa, Response: fciVisa},
				{Command: cmdGPONoPDOL, Response: gpoOneRecord},
				{Command: cmdReadRecord(1, 1), Response: ok("5A 08 4111111111111111")},
			},
			check: func(t *testing.T, cause error) {
				assert.ErrorIs(t, cause, ErrNotRecordTemplate)
			},
		},
		{
			name: "record overruns its length",
			exchanges: []cardtag.Exchange{
				{Command: cmdSelectVisa, Response: fciVisa},
				{Command: cmdGPONoPDOL, Response: gpoOneRecord},
				{Command: cmdReadRecord(1, 1), Response: ok("70 20 5A 08 4111111111111111")},
			},
			check: func(t *testing.T, cause error) {
				var de *DecodeError
				require.ErrorAs(t, cause, &de)
				assert.Equal(t, "READ RECORD SFI 1 REC 1", de.Step)
				assert.ErrorIs(t, cause, tlv.ErrTruncatedTLV)
			},
		},
		{
			name: "malformed AFL",
			exchanges: []cardtag.Exchange{
				{Command: cmdSelectVisa, Response: fciVisa},
				{Command: cmdGPONoPDOL, Response: ok("80 06 0000 08020100")},
			},
			check: func(t *testing.T, cause error) {
				assert.ErrorIs(t, cause, ErrMalformedAFL)
			},
		},
		{
			name: "expiry missing",
			exchanges: []cardtag.Exchange{
				{Command: cmdSelectVisa, Response: fciVisa},
				{Command: cmdGPONoPDOL, Response: gpoOneRecord},
				{Command: cmdReadRecord(1, 1), Response: ok("70 0A 5A 08 4111111111111111")},
			},
			check: func(t *testing.T, cause error) {
				assert.ErrorIs(t, cause, ErrIncompleteCardData)
			},
			describe: "incomplete card data: expiry",
		},
		{
			name: "PAN too short",
			exchanges: []cardtag.Exchange{
				{Command: cmdSelectVisa, Response: fciVisa},
				{Command: cmdGPONoPDOL, Response: gpoOneRecord},
				{Command: cmdReadRecord(1, 1), Response: ok("70 0A 5A 03 411111 5F24 02 2512")},
			},
			check: func(t *testing.T, cause error) {
				var ie *IncompleteCardDataError
				require.ErrorAs(t, cause, &ie)
				assert.Equal(t, []string{"PAN (invalid)"}, ie.Missing)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			resp, _ := readCard(t, tt.exchanges, WithPPSE(false), WithCandidates(AIDVisa))
			cause := requireError(t, resp)
			tt.check(t, cause)
			if tt.describe != "" {
				assert.Equal(t, tt.describe, Describe(resp))
			}
		})
	}
}

func TestReadCard_TagLostAfterFirstExchange(t *testing.T) {
	t.Parallel()

	resp, _ := readCard(t, []cardtag.Exchange{
		{Command: cmdSelectVisa, Response: fciVisa},
		{Command: cmdGPONoPDOL, Response: gpoOneRecord},
		{Command: cmdReadRecord(1, 1), Err: cardtag.ErrTagLost},
	}, WithPPSE(false), WithCandidates(AIDVisa))

	assert.Equal(t, TagLost{}, resp)
	assert.Equal(t, "Card lost. Keep card steady!", Describe(resp))
}

func TestReadCard_TagLostDuringGPO(t *testing.T) {
	t.Parallel()

	resp, mock := readCard(t, []cardtag.Exchange{
		{Command: cmdSelectVisa, Response: fciVisa},
		{Command: cmdGPONoPDOL, Err: cardtag.ErrTagLost},
	}, WithPPSE(false), WithCandidates(AIDVisa))

	assert.Equal(t, TagLost{}, resp)
	assert.Len(t, mock.Sent, 2)
}

func TestSession_Step(t *testing.T) {
	t.Parallel()

	fci, err := ParseFCI(tlv.Hex("6F 11 84 07 A0000000031010 A5 06 50 04 56495341"))
	require.NoError(t, err)

	tests := []struct {
		name      string
		from      State
		open      bool
		exchanges []cardtag.Exchange
		setup     func(s *Session)
		want      State
		check     func(t *testing.T, s *Session)
	}{
		{
			name: "idle opens the tag",
			from: StateIdle,
			want: StateSelecting,
			check: func(t *testing.T, s *Session) {
				assert.True(t, s.tag.IsOpen())
			},
		},
		{
			name: "idle with a tag owned elsewhere",
			from: StateIdle,
			open: true,
			want: StateDone,
			check: func(t *testing.T, s *Session) {
				assert.False(t, s.ownsTag())
				requireError(t, s.result)
			},
		},
		{
			name:      "selecting finds an application",
			from:      StateSelecting,
			open:      true,
			exchanges: []cardtag.Exchange{{Command: cmdSelectVisa, Response: fciVisa}},
			want:      StateReading,
			check: func(t *testing.T, s *Session) {
				assert.Equal(t, AIDVisa, s.selected)
				assert.Equal(t, "VISA", s.fci.Label())
			},
		},
		{
			name:      "selecting exhausts the candidates",
			from:      StateSelecting,
			open:      true,
			exchanges: []cardtag.Exchange{{Command: cmdSelectVisa, Response: swFileNotFound}},
			want:      StateDone,
			check: func(t *testing.T, s *Session) {
				assert.Equal(t, CardNotSupported{AIDs: []AID{AIDVisa}}, s.result)
			},
		},
		{
			name: "reading runs GPO and the AFL",
			from: StateReading,
			open: true,
			exchanges: []cardtag.Exchange{
				{Command: cmdGPONoPDOL, Response: gpoOneRecord},
				{Command: cmdReadRecord(1, 1), Response: ok("70 10 5A 08 4111111111111111 5F24 03 271231")},
			},
			setup: func(s *Session) {
				s.selected, s.fci, s.exchanged = AIDVisa, fci, true
			},
			want: StateDecoding,
			check: func(t *testing.T, s *Session) {
				require.Len(t, s.records, 1)
				assert.Equal(t, iso7816.RecordRef{SFI: 1, Number: 1}, s.records[0].RecordRef)
			},
		},
		{
			name:      "reading loses the tag",
			from:      StateReading,
			open:      true,
			exchanges: []cardtag.Exchange{{Command: cmdGPONoPDOL, Err: cardtag.ErrTagLost}},
			setup: func(s *Session) {
				s.selected, s.fci, s.exchanged = AIDVisa, fci, true
			},
			want: StateDone,
			check: func(t *testing.T, s *Session) {
				assert.Equal(t, TagLost{}, s.result)
			},
		},
		{
			name: "decoding builds the card",
			from: StateDecoding,
			open: true,
			setup: func(s *Session) {
				s.selected = AIDVisa
				s.records = []record{{
					RecordRef: iso7816.RecordRef{SFI: 1, Number: 1},
					data:      tlv.Hex("70 10 5A 08 4111111111111111 5F24 03 271231"),
				}}
			},
			want: StateDone,
			check: func(t *testing.T, s *Session) {
				card := requireSuccess(t, s.result)
				assert.Equal(t, "4111111111111111", card.PAN)
				assert.Equal(t, 12, card.ExpiryMonth)
				assert.Equal(t, 27, card.ExpiryYear)
			},
		},
		{
			name: "done stays done",
			from: StateDone,
			want: StateDone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			mock := &cardtag.MockTransport{Exchanges: tt.exchanges}
			tag := cardtag.NewEmvCardTag("x", mock)
			if tt.open {
				require.NoError(t, tag.Open(context.Background()))
			}

			r := NewReader(WithPPSE(false), WithCandidates(AIDVisa))
			s := newSession(tag, r.opts)
			s.state = tt.from
			if tt.setup != nil {
				tt.setup(s)
			}

			assert.Equal(t, tt.want, s.step(context.Background()))
			assert.Equal(t, 0, mock.Remaining(), "unconsumed exchanges")
			if tt.check != nil {
				tt.check(t, s)
			}
		})
	}
}

func TestReadCard_TransportFailureOnFirstSelect(t *testing.T) {
	t.Parallel()

	linkErr := errors.New("rf field off")
	resp, _ := readCard(t, []cardtag.Exchange{
		{Command: cmdSelectPPSE, Err: linkErr},
	})

	cause := requireError(t, resp)
	assert.ErrorIs(t, cause, ErrTransportFailure)
	assert.ErrorIs(t, cause, linkErr)
}

func TestReadCard_ConnectFailure(t *testing.T) {
	t.Parallel()

	mock := &cardtag.MockTransport{ConnectError: errors.New("no card in field")}
	resp := NewReader().ReadCard(context.Background(), cardtag.NewEmvCardTag("x", mock))

	cause := requireError(t, resp)
	assert.ErrorIs(t, cause, ErrTransportFailure)
	assert.True(t, mock.Closed())
}

func TestReadCard_Cancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	var once sync.Once
	logger := LoggerFunc(func(key, _ string) {
		// Cancel as soon as the card answered the first SELECT.
		if key == "apdu" {
			once.Do(cancel)
		}
	})

	mock := &cardtag.MockTransport{Exchanges: []cardtag.Exchange{
		{Command: cmdSelectVisa, Response: fciVisa},
		{Command: cmdGPONoPDOL, Response: gpoOneRecord},
	}}
	resp := NewReader(WithPPSE(false), WithCandidates(AIDVisa), WithLogger(logger)).
		ReadCard(ctx, cardtag.NewEmvCardTag("x", mock))

	assert.Equal(t, TagLost{}, resp)
	assert.Equal(t, 1, mock.Remaining())
	assert.True(t, mock.Closed())
}

func TestReadCard_TagReused(t *testing.T) {
	t.Parallel()

	mock := &cardtag.MockTransport{}
	tag := cardtag.NewEmvCardTag("x", mock)
	require.NoError(t, tag.Open(context.Background()))

	resp := NewReader().ReadCard(context.Background(), tag)
	cause := requireError(t, resp)
	assert.ErrorIs(t, cause, cardtag.ErrTagReused)
	assert.Empty(t, mock.Sent)

	// The owner keeps a working tag.
	assert.False(t, mock.Closed())
	assert.True(t, tag.IsOpen())
	_, err := tag.Transceive(context.Background(), cmdSelectVisa)
	assert.NotErrorIs(t, err, cardtag.ErrTagClosed)
}

func TestReadCard_ClosedTag(t *testing.T) {
	t.Parallel()

	mock := &cardtag.MockTransport{}
	tag := cardtag.NewEmvCardTag("x", mock)
	require.NoError(t, tag.Close())

	cause := requireError(t, NewReader().ReadCard(context.Background(), tag))
	assert.ErrorIs(t, cause, cardtag.ErrTagClosed)
	assert.Empty(t, mock.Sent)
}

func TestReadCard_RecoversPanics(t *testing.T) {
	t.Parallel()

	mock := &cardtag.MockTransport{Exchanges: []cardtag.Exchange{
		{Command: cmdSelectVisa, Response: fciVisa},
	}}
	logger := LoggerFunc(func(key, _ string) {
		if key == "select" {
			panic("logger exploded")
		}
	})

	resp := NewReader(WithPPSE(false), WithCandidates(AIDVisa), WithLogger(logger)).
		ReadCard(context.Background(), cardtag.NewEmvCardTag("x", mock))

	cause := requireError(t, resp)
	assert.ErrorIs(t, cause, ErrInternal)
	assert.Contains(t, cause.Error(), "logger exploded")
	assert.True(t, mock.Closed())
}

func TestReadCard_NilTag(t *testing.T) {
	t.Parallel()

	resp := NewReader().ReadCard(context.Background(), nil)
	requireError(t, resp)
}

func TestReadCard_LogsExchanges(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var lines []string
	logger := LoggerFunc(func(key, message string) {
		mu.Lock()
		defer mu.Unlock()
		lines = append(lines, key+": "+message)
	})

	readCard(t, []cardtag.Exchange{
		{Command: cmdSelectVisa, Response: swFileNotFound},
	}, WithPPSE(false), WithCandidates(AIDVisa), WithLogger(logger))

	log := strings.Join(lines, "\n")
	assert.Contains(t, log, "apdu: >> 00A4040007A000000003101000")
	assert.Contains(t, log, "select: A0000000031010 rejected: [6A82] SW_ERR_FILE_NOT_FOUND")
	assert.Contains(t, log, "state: Selecting -> Done")
}

func TestSession_RunOnce(t *testing.T) {
	t.Parallel()

	mock := &cardtag.MockTransport{Exchanges: []cardtag.Exchange{
		{Command: cmdSelectVisa, Response: swFileNotFound},
	}}
	r := NewReader(WithPPSE(false), WithCandidates(AIDVisa))
	s := newSession(cardtag.NewEmvCardTag("x", mock), r.opts)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	first := s.Run(ctx)
	assert.Equal(t, StateDone, s.State())
	assert.Equal(t, first, s.Run(ctx))
	assert.Len(t, mock.Sent, 1)
}
