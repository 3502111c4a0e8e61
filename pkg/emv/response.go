package emv

import "fmt"

// CardDataResponse is the outcome of one card read. It is exactly one of
// Success, Error, TagLost or CardNotSupported; use Fold to handle all of them.
type CardDataResponse interface {
	isCardDataResponse()
}

// Success carries the card data.
type Success struct {
	Card CardData
}

// Error carries the cause of a failed read.
type Error struct {
	Cause error
}

// TagLost means the card left the field during the read. The user may retry.
type TagLost struct{}

// CardNotSupported lists the AIDs the card rejected, in attempt order.
type CardNotSupported struct {
	AIDs []AID
}

func (Success) isCardDataResponse()          {}
func (Error) isCardDataResponse()            {}
func (TagLost) isCardDataResponse()          {}
func (CardNotSupported) isCardDataResponse() {}

// Fold calls the handler matching the variant of resp.
func Fold[T any](
	resp CardDataResponse,
	onSuccess func(Success) T,
	onError func(Error) T,
	onTagLost func(TagLost) T,
	onCardNotSupported func(CardNotSupported) T,
) T {
	switch r := resp.(type) {
	case Success:
		return onSuccess(r)
	case Error:
		return onError(r)
	case TagLost:
		return onTagLost(r)
	case CardNotSupported:
		return onCardNotSupported(r)
	default:
		panic(fmt.Sprintf("emv: unknown CardDataResponse %T", resp))
	}
}

// Messages shown to the card holder.
const (
	TagLostMessage          = "Card lost. Keep card steady!"
	CardNotSupportedMessage = "Card is not supported!"
	NoAIDFound              = "NOT FOUND"
)

// Describe returns the summary shown to the user for resp.
func Describe(resp CardDataResponse) string {
	return Fold(resp,
		func(s Success) string {
			aids := s.Card.AIDs
			if len(aids) == 0 {
				aids = []AID{s.Card.AID}
			}
			return fmt.Sprintf("AID: %s\nNumber: %s\nExpires: %s",
				joinAIDs(aids), s.Card.FormattedNumber(), s.Card.FormattedExpDate())
		},
		func(e Error) string {
			if e.Cause == nil {
				return "unknown error"
			}
			return e.Cause.Error()
		},
		func(TagLost) string {
			return TagLostMessage
		},
		func(n CardNotSupported) string {
			aids := NoAIDFound
			if len(n.AIDs) > 0 {
				aids = joinAIDs(n.AIDs)
			}
			return fmt.Sprintf("%s\nAID: %s", CardNotSupportedMessage, aids)
		},
	)
}

// Outcome returns a short machine-readable name of the variant.
func Outcome(resp CardDataResponse) string {
	return Fold(resp,
		func(Success) string { return "success" },
		func(Error) string { return "error" },
		func(TagLost) string { return "tag_lost" },
		func(CardNotSupported) string { return "card_not_supported" },
	)
}
