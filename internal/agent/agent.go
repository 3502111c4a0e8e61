package agent

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gregLibert/emv-reader/pkg/cardtag"
	"github.com/gregLibert/emv-reader/pkg/emv"
)

// MessageCardRead is the websocket message type of a read outcome.
const MessageCardRead = "CARD_READ"

var (
	// ErrInvalidAmount is returned by Arm for a non-positive amount.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrTransactionPending is returned by Arm while another transaction waits for a card.
	ErrTransactionPending = errors.New("a transaction is already waiting for a card")
)

// Transaction is an amount waiting for a card. Amounts are in minor units.
type Transaction struct {
	ID        string    `json:"id"`
	Amount    int64     `json:"amount"`
	CreatedAt time.Time `json:"createdAt"`
}

// CardView is the card data published to clients. The PAN is masked.
type CardView struct {
	AID            string `json:"aid"`
	Scheme         string `json:"scheme"`
	Number         string `json:"number"`
	Expiry         string `json:"expiry"`
	Label          string `json:"label,omitempty"`
	CardholderName string `json:"cardholderName,omitempty"`
}

// Result is the payload of a MessageCardRead message. Summary never holds
// the full PAN.
type Result struct {
	TransactionID string    `json:"transactionId,omitempty"`
	Amount        int64     `json:"amount,omitempty"`
	TagID         string    `json:"tagId"`
	Outcome       string    `json:"outcome"`
	Summary       string    `json:"summary"`
	Card          *CardView `json:"card,omitempty"`
	AIDs          []string  `json:"aids,omitempty"`
	PINRequired   bool      `json:"pinRequired"`
}

// Broadcaster publishes messages to connected clients.
type Broadcaster interface {
	BroadcastMessage(messageType string, payload interface{}) error
}

// CardReader reads one card for a transaction amount (0 without transaction).
type CardReader interface {
	ReadCard(ctx context.Context, tag *cardtag.EmvCardTag, amount int64) emv.CardDataResponse
}

// EMVCardReader reads cards with emv.Reader, putting the amount in the terminal data.
type EMVCardReader struct {
	Options  []emv.Option
	Terminal emv.TerminalConfig
}

func (r EMVCardReader) ReadCard(ctx context.Context, tag *cardtag.EmvCardTag, amount int64) emv.CardDataResponse {
	terminal := r.Terminal
	terminal.Amount = amount

	opts := append(append([]emv.Option(nil), r.Options...), emv.WithTerminal(terminal))
	return emv.NewReader(opts...).ReadCard(ctx, tag)
}

// Options configures an Agent.
type Options struct {
	// PINThreshold is in major units: a successful read of a transaction
	// above it requires the PIN.
	PINThreshold int64
	// ReadTimeout bounds one card read. Zero means no limit.
	ReadTimeout time.Duration
	// RetryDelay is the pause after a poller failure.
	RetryDelay time.Duration
}

// Agent waits for cards, reads them and publishes the outcome.
type Agent struct {
	poller cardtag.Poller
	reader CardReader
	out    Broadcaster
	opts   Options

	mu      sync.Mutex
	current *Transaction
}

func New(poller cardtag.Poller, reader CardReader, out Broadcaster, opts Options) *Agent {
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = time.Second
	}
	return &Agent{poller: poller, reader: reader, out: out, opts: opts}
}

// Arm registers the amount of the next card read.
func (a *Agent) Arm(amount int64) (Transaction, error) {
	if amount <= 0 {
		return Transaction{}, ErrInvalidAmount
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current != nil {
		return Transaction{}, ErrTransactionPending
	}

	tx := Transaction{ID: uuid.New().String(), Amount: amount, CreatedAt: time.Now().UTC()}
	a.current = &tx
	log.Printf("Transaction %s armed: amount %d", tx.ID, amount)
	return tx, nil
}

// Current returns the transaction waiting for a card, if any.
func (a *Agent) Current() (Transaction, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current == nil {
		return Transaction{}, false
	}
	return *a.current, true
}

// Cancel drops the transaction waiting for a card.
func (a *Agent) Cancel() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	cancelled := a.current != nil
	a.current = nil
	return cancelled
}

// Run processes cards until ctx is done.
func (a *Agent) Run(ctx context.Context) error {
	for {
		tag, err := a.poller.WaitForTag(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("Waiting for card failed: %v", err)
			if err := sleep(ctx, a.opts.RetryDelay); err != nil {
				return err
			}
			continue
		}

		a.process(ctx, tag)

		if err := a.poller.WaitForRemoval(ctx, tag); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("Waiting for card removal failed: %v", err)
		}
	}
}

// process reads one card and publishes the result.
func (a *Agent) process(ctx context.Context, tag *cardtag.EmvCardTag) Result {
	tx, armed := a.Current()

	readCtx := ctx
	if a.opts.ReadTimeout > 0 {
		var cancel context.CancelFunc
		readCtx, cancel = context.WithTimeout(ctx, a.opts.ReadTimeout)
		defer cancel()
	}

	resp := a.reader.ReadCard(readCtx, tag, tx.Amount)
	result := a.classify(tag, tx, armed, resp)

	// A lost tag keeps the transaction: the card holder taps again.
	if armed && result.Outcome != emv.Outcome(emv.TagLost{}) {
		a.complete(tx.ID)
	}

	log.Printf("Card %s: %s", tag.ID, result.Outcome)
	if err := a.out.BroadcastMessage(MessageCardRead, result); err != nil {
		log.Printf("Failed to broadcast card result: %v", err)
	}
	return result
}

func (a *Agent) classify(tag *cardtag.EmvCardTag, tx Transaction, armed bool, resp emv.CardDataResponse) Result {
	result := Result{
		TagID:   tag.ID,
		Outcome: emv.Outcome(resp),
		Summary: emv.Describe(resp),
	}
	if armed {
		result.TransactionID = tx.ID
		result.Amount = tx.Amount
	}

	emv.Fold(resp,
		func(s emv.Success) struct{} {
			result.Card = newCardView(s.Card)
			result.Summary = s.Card.String()
			result.PINRequired = armed && a.pinRequired(tx.Amount)
			return struct{}{}
		},
		func(emv.Error) struct{} { return struct{}{} },
		func(emv.TagLost) struct{} { return struct{}{} },
		func(n emv.CardNotSupported) struct{} {
			for _, aid := range n.AIDs {
				result.AIDs = append(result.AIDs, aid.String())
			}
			return struct{}{}
		},
	)
	return result
}

// pinRequired compares the amount, in minor units, with the threshold in major units.
func (a *Agent) pinRequired(amount int64) bool {
	return amount > a.opts.PINThreshold*100
}

func (a *Agent) complete(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current != nil && a.current.ID == id {
		a.current = nil
	}
}

func newCardView(c emv.CardData) *CardView {
	return &CardView{
		AID:            c.AID.String(),
		Scheme:         c.Scheme(),
		Number:         c.MaskedNumber(),
		Expiry:         c.FormattedExpDate(),
		Label:          c.Label,
		CardholderName: c.CardholderName,
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// FormatAmount renders minor units as a decimal amount, e.g. 1250 -> "12.50".
func FormatAmount(amount int64) string {
	sign := ""
	if amount < 0 {
		sign, amount = "-", -amount
	}
	return fmt.Sprintf("%s%d.%02d", sign, amount/100, amount%100)
}

// DebugLogger forwards emv.Reader diagnostics to the standard logger.
func DebugLogger() emv.Logger {
	return emv.LoggerFunc(func(key, message string) {
		log.Printf("[emv] %s: %s", key, message)
	})
}
