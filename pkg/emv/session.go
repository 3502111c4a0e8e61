package emv

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/moov-io/bertlv"

	"github.com/gregLibert/emv-reader/pkg/cardtag"
	"github.com/gregLibert/emv-reader/pkg/iso7816"
	"github.com/gregLibert/emv-reader/pkg/tlv"
)

// State is a step of the card reading state machine.
type State int

const (
	StateIdle State = iota
	StateSelecting
	StateReading
	StateDecoding
	StateDone
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateSelecting:
		return "Selecting"
	case StateReading:
		return "Reading"
	case StateDecoding:
		return "Decoding"
	case StateDone:
		return "Done"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Fallback scan when the card returns no AFL.
const (
	fallbackMaxSFI    = 3
	fallbackMaxRecord = 8
)

// record is a READ RECORD payload waiting to be decoded.
type record struct {
	iso7816.RecordRef
	data []byte
}

func (r record) step() string {
	return "READ RECORD " + r.RecordRef.String()
}

// Session reads one card. It is not reusable: once Done, Run returns the
// same response.
type Session struct {
	tag    *cardtag.EmvCardTag
	client *iso7816.Client
	opts   options

	state     State
	exchanged bool
	// foreign is set when the tag belongs to another session.
	foreign bool

	directory []ApplicationTemplate
	attempted []AID
	selected  AID
	fci       *FCI
	fciNodes  []bertlv.TLV
	gpo       *ProcessingOptions
	records   []record

	result CardDataResponse
}

func newSession(tag *cardtag.EmvCardTag, opts options) *Session {
	return &Session{
		tag:    tag,
		client: iso7816.NewClient(tag),
		opts:   opts,
		state:  StateIdle,
	}
}

// ownsTag reports whether closing the tag is up to this session.
func (s *Session) ownsTag() bool {
	return !s.foreign
}

// State returns the current state.
func (s *Session) State() State {
	return s.state
}

// Run drives the session until Done and returns its outcome.
func (s *Session) Run(ctx context.Context) CardDataResponse {
	for s.state != StateDone {
		next := s.step(ctx)
		s.opts.logger.Log("state", fmt.Sprintf("%s -> %s", s.state, next))
		s.state = next
	}
	return s.result
}

// step performs the work of the current state and returns the next one.
func (s *Session) step(ctx context.Context) State {
	switch s.state {
	case StateIdle:
		return s.open(ctx)
	case StateSelecting:
		return s.selectApplication(ctx)
	case StateReading:
		return s.readApplication(ctx)
	case StateDecoding:
		return s.decode()
	default:
		return StateDone
	}
}

func (s *Session) finish(resp CardDataResponse) State {
	s.result = resp
	return StateDone
}

// fail classifies err. Link failures become TagLost once the card has
// answered at least once, and Error(TransportFailure) before that.
func (s *Session) fail(err error) State {
	if isTransportFailure(err) {
		if s.exchanged {
			s.opts.logger.Log("error", fmt.Sprintf("tag lost: %v", err))
			return s.finish(TagLost{})
		}
		err = fmt.Errorf("%w: %w", ErrTransportFailure, err)
	}
	s.opts.logger.Log("error", err.Error())
	return s.finish(Error{Cause: err})
}

func isTransportFailure(err error) bool {
	var te *cardtag.TransportError
	return errors.Is(err, iso7816.ErrTransmission) ||
		errors.As(err, &te) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

func (s *Session) open(ctx context.Context) State {
	if err := s.tag.Open(ctx); err != nil {
		if errors.Is(err, cardtag.ErrTagReused) || errors.Is(err, cardtag.ErrTagClosed) {
			s.foreign = true
			return s.finish(Error{Cause: err})
		}
		return s.fail(err)
	}
	return StateSelecting
}

// send performs one logical exchange. Errors that are not link failures
// (malformed response, endless 61XX) become a ProtocolError for step.
func (s *Session) send(ctx context.Context, step string, cmd *iso7816.CommandAPDU) (iso7816.Trace, error) {
	trace, err := s.client.Send(ctx, cmd)
	if len(trace) > 0 {
		s.exchanged = true
		s.opts.logger.Log("apdu", strings.TrimRight(trace.Describe(), "\n"))
	}
	if err != nil {
		if isTransportFailure(err) {
			return trace, err
		}
		return trace, &ProtocolError{Step: step, Status: trace.Status(), Err: err}
	}
	return trace, nil
}

func (s *Session) selectApplication(ctx context.Context) State {
	candidates := s.opts.candidates
	if s.opts.usePPSE {
		if err := s.discover(ctx); err != nil {
			return s.fail(err)
		}
		candidates = mergeAIDs(directoryAIDs(s.directory), candidates)
	}

	for _, aid := range candidates {
		s.attempted = append(s.attempted, aid)
		step := "SELECT " + aid.String()

		trace, err := s.send(ctx, step, iso7816.SelectByAID(s.opts.class, aid))
		if err != nil {
			return s.fail(err)
		}
		if trace.Status() != iso7816.SW_NO_ERROR {
			s.opts.logger.Log("select", fmt.Sprintf("%s rejected: %s", aid, trace.Status().Verbose()))
			continue
		}

		if err := s.parseFCI(trace.Data()); err != nil {
			return s.fail(&DecodeError{Step: step, Err: err})
		}
		s.selected = aid
		s.opts.logger.Log("select", fmt.Sprintf("selected %s (%s)", aid, aid.Scheme()))
		return StateReading
	}

	return s.finish(CardNotSupported{AIDs: s.attempted})
}

// discover selects the PPSE and records its directory entries. Only link
// failures are returned: a card without PPSE falls back to the candidates.
func (s *Session) discover(ctx context.Context) error {
	trace, err := s.send(ctx, "SELECT PPSE", iso7816.SelectByName(s.opts.class, iso7816.ProximityPaymentSystem))
	if err != nil {
		if isTransportFailure(err) {
			return err
		}
		s.opts.logger.Log("ppse", err.Error())
		return nil
	}
	if trace.Status() != iso7816.SW_NO_ERROR {
		s.opts.logger.Log("ppse", "not available: "+trace.Status().Verbose())
		return nil
	}

	fci, err := ParseFCI(trace.Data())
	if err != nil {
		s.opts.logger.Log("ppse", fmt.Sprintf("ignored: %v", err))
		return nil
	}
	s.directory = fci.Applications()
	s.opts.logger.Log("ppse", fmt.Sprintf("%d application(s): %s", len(s.directory), joinAIDs(directoryAIDs(s.directory))))
	return nil
}

func (s *Session) parseFCI(data []byte) error {
	s.fci = &FCI{}
	if len(data) == 0 {
		return nil
	}

	nodes, err := tlv.Decode(data)
	if err != nil {
		return err
	}
	fci, err := fciFromPackets(nodes)
	if err != nil {
		return err
	}
	s.fci, s.fciNodes = fci, nodes
	return nil
}

func (s *Session) readApplication(ctx context.Context) State {
	const gpoStep = "GET PROCESSING OPTIONS"

	pdolData, err := s.opts.terminal.PDOLData(s.fci.ProprietaryTemplate.PDOL)
	if err != nil {
		return s.fail(&DecodeError{Step: gpoStep, Err: err})
	}
	cmd, err := NewGPOCommand(pdolData)
	if err != nil {
		return s.fail(&ProtocolError{Step: gpoStep, Err: err})
	}

	trace, err := s.send(ctx, gpoStep, cmd)
	if err != nil {
		return s.fail(err)
	}
	if !trace.IsSuccess() {
		return s.fail(&ProtocolError{Step: gpoStep, Status: trace.Status()})
	}

	gpo, err := ParseProcessingOptions(trace.Data())
	if err != nil {
		return s.fail(&DecodeError{Step: gpoStep, Err: err})
	}
	s.gpo = gpo

	for _, entry := range gpo.AFL {
		for _, number := range entry.Records() {
			if err := s.readRecord(ctx, entry.SFI, number); err != nil {
				return s.fail(err)
			}
		}
	}

	if len(gpo.AFL) == 0 && !s.knownFields().hasCardholderData() {
		s.opts.logger.Log("record", "no AFL, scanning SFI 1-3")
		if err := s.scanRecords(ctx); err != nil {
			return s.fail(err)
		}
	}

	return StateDecoding
}

// scanRecords reads records 1-8 of SFI 1-3. A missing record or file ends
// the current SFI.
func (s *Session) scanRecords(ctx context.Context) error {
	for sfi := byte(1); sfi <= fallbackMaxSFI; sfi++ {
		for number := byte(1); number <= fallbackMaxRecord; number++ {
			sw, err := s.readOptionalRecord(ctx, sfi, number)
			if err != nil {
				return err
			}
			if sw == iso7816.SW_ERR_RECORD_NOT_FOUND || sw == iso7816.SW_ERR_FILE_NOT_FOUND {
				break
			}
		}
	}
	return nil
}

func (s *Session) readOptionalRecord(ctx context.Context, sfi, number byte) (iso7816.StatusWord, error) {
	r := record{RecordRef: iso7816.RecordRef{SFI: sfi, Number: number}}
	trace, err := s.send(ctx, r.step(), r.Command(s.opts.class))
	if err != nil {
		return 0, err
	}
	if trace.IsSuccess() {
		r.data = trace.Data()
		s.records = append(s.records, r)
	}
	return trace.Status(), nil
}

// readRecord reads a record listed in the AFL. A non-success status fails
// the session.
func (s *Session) readRecord(ctx context.Context, sfi, number byte) error {
	sw, err := s.readOptionalRecord(ctx, sfi, number)
	if err != nil {
		return err
	}
	if !sw.IsSuccess() {
		return &ProtocolError{Step: record{RecordRef: iso7816.RecordRef{SFI: sfi, Number: number}}.step(), Status: sw}
	}
	return nil
}

// knownFields merges what the FCI and GPO answers already provided.
func (s *Session) knownFields() fieldSet {
	fields := fieldSet{}
	fields.add(s.fciNodes)
	if s.gpo != nil {
		fields.add(s.gpo.Fields)
	}
	return fields
}

func (s *Session) decode() State {
	fields := s.knownFields()

	for _, r := range s.records {
		nodes, err := tlv.Decode(r.data)
		if err != nil {
			return s.fail(&DecodeError{Step: r.step(), Err: err})
		}
		if len(nodes) != 1 || !strings.EqualFold(nodes[0].Tag, "70") {
			return s.fail(&DecodeError{Step: r.step(), Err: ErrNotRecordTemplate})
		}
		fields.add(nodes)
		s.opts.logger.Log("record", r.step()+"\n"+strings.Join(tlv.DescribeNodes("Record", nodes, recordFormats), "\n"))
	}

	card, err := buildCardData(s.selected, directoryAIDs(s.directory), fields)
	if err != nil {
		return s.fail(err)
	}
	s.opts.logger.Log("card", card.String())
	return s.finish(Success{Card: card})
}
