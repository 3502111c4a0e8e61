package emv

import (
	"context"
	"errors"
	"fmt"

	"github.com/gregLibert/emv-reader/pkg/cardtag"
	"github.com/gregLibert/emv-reader/pkg/iso7816"
)

type options struct {
	candidates []AID
	usePPSE    bool
	terminal   TerminalConfig
	logger     Logger
	class      iso7816.Class
}

// Option configures a Reader.
type Option func(*options)

// WithCandidates sets the AIDs selected after the PPSE entries, in order.
func WithCandidates(aids ...AID) Option {
	return func(o *options) {
		o.candidates = append([]AID(nil), aids...)
	}
}

// WithPPSE enables or disables application discovery through 2PAY.SYS.DDF01.
func WithPPSE(enabled bool) Option {
	return func(o *options) {
		o.usePPSE = enabled
	}
}

// WithTerminal sets the terminal data used to answer the PDOL.
func WithTerminal(t TerminalConfig) Option {
	return func(o *options) {
		o.terminal = t
	}
}

// WithLogger sets the diagnostic sink. nil restores NopLogger.
func WithLogger(l Logger) Option {
	return func(o *options) {
		if l == nil {
			l = NopLogger{}
		}
		o.logger = l
	}
}

// WithClass sets the CLA of SELECT and READ RECORD commands.
func WithClass(c iso7816.Class) Option {
	return func(o *options) {
		o.class = c
	}
}

// Reader reads EMV payment cards. A Reader is safe for concurrent use; each
// ReadCard call runs its own Session.
type Reader struct {
	opts options
}

// NewReader returns a Reader trying the PPSE then DefaultCandidates.
func NewReader(opts ...Option) *Reader {
	o := options{
		candidates: DefaultCandidates(),
		usePPSE:    true,
		terminal:   DefaultTerminal(),
		logger:     NopLogger{},
		class:      iso7816.ClassInterindustry,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Reader{opts: o}
}

var errNilTag = errors.New("nil card tag")

// ReadCard reads tag and classifies the outcome. It never returns nil and
// never panics. The tag is closed on return, whatever the outcome, unless it
// was already open in another session.
func (r *Reader) ReadCard(ctx context.Context, tag *cardtag.EmvCardTag) (resp CardDataResponse) {
	if tag == nil {
		return Error{Cause: errNilTag}
	}

	s := newSession(tag, r.opts)
	defer func() {
		if !s.ownsTag() {
			return
		}
		if err := tag.Close(); err != nil {
			r.opts.logger.Log("close", err.Error())
		}
	}()
	defer func() {
		if p := recover(); p != nil {
			resp = Error{Cause: fmt.Errorf("%w: %v", ErrInternal, p)}
		}
	}()

	r.opts.logger.Log("session", "reading "+tag.String())
	resp = s.Run(ctx)
	if resp == nil {
		resp = Error{Cause: fmt.Errorf("%w: session ended without outcome", ErrInternal)}
	}
	return resp
}
