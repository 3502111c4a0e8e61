package iso7816

import (
	"context"
	"errors"
	"fmt"
)

// CLIENT & PROTOCOL LOGIC:
// The Client acts as a high-level driver over the physical connection.
// It implements the automatic handling of the transport behaviors that ISO 7816-4
// exposes to the application layer:
//
// 1. "61 XX" (Response Available):
//    The card indicates that XX bytes are waiting. The client automatically generates
//    and sends a GET RESPONSE command to retrieve them.
//
// 2. "6C XX" (Wrong Length):
//    The card indicates that the expected length (Le) was incorrect and suggests XX.
//    The client automatically re-sends the original command with Le = XX.
//
// In both cases XX = 00 stands for 256 bytes.
//
// The Send() method returns a Trace, which is a log of all atomic transactions
// that occurred to fulfill the logical request. The number of follow-up commands
// is bounded by MaxFollowUps.

// MaxFollowUps bounds the GET RESPONSE / re-issue commands sent for one logical exchange.
const MaxFollowUps = 8

var (
	// ErrTransmission wraps any failure reported by the Transceiver.
	ErrTransmission = errors.New("transmission error")

	// ErrFollowUpLimit is returned when the card keeps answering 61XX or 6CXX.
	ErrFollowUpLimit = errors.New("too many follow-up commands")
)

// Transceiver abstracts the physical card connection.
// Transceive sends one C-APDU and returns the raw R-APDU.
type Transceiver interface {
	Transceive(ctx context.Context, cmd []byte) ([]byte, error)
}

// Client manages the high-level communication with the card.
type Client struct {
	Card Transceiver
}

// NewClient creates a new Client instance.
func NewClient(card Transceiver) *Client {
	return &Client{Card: card}
}

// Send transmits a command and handles protocol logic (61xx, 6Cxx).
//
// Errors coming from the Transceiver (including context cancellation) match
// ErrTransmission and keep the original error in their chain. The returned
// Trace always holds the transactions completed before the error.
func (c *Client) Send(ctx context.Context, cmd *CommandAPDU) (Trace, error) {
	var trace Trace

	current := cmd
	for followUps := 0; ; followUps++ {
		if followUps > MaxFollowUps {
			return trace, fmt.Errorf("%w: %d after %s", ErrFollowUpLimit, MaxFollowUps, cmd.Instruction.Raw)
		}

		resp, err := c.exchange(ctx, current)
		if err != nil {
			return trace, err
		}
		trace = append(trace, Transaction{Command: current, Response: resp})

		sw1 := resp.Status.SW1()
		available := lengthFromSW2(resp.Status.SW2())

		switch sw1 {
		case 0x61:
			// GET RESPONSE must use the same logical channel as the original command.
			respCls := cmd.Class
			respCls.IsChained = false
			if respCls.IsProprietary {
				respCls = ClassInterindustry
			}
			current = NewCommandAPDU(respCls, mustInstruction(INS_GET_RESPONSE), 0x00, 0x00, nil, available)

		case 0x6C:
			// Clone command to update Le without mutating the original pointer
			reissue := *current
			reissue.Ne = available
			current = &reissue

		default:
			return trace, nil
		}
	}
}

func (c *Client) exchange(ctx context.Context, cmd *CommandAPDU) (*ResponseAPDU, error) {
	rawCmd, err := cmd.Bytes()
	if err != nil {
		return nil, fmt.Errorf("encoding error: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransmission, err)
	}

	rawResp, err := c.Card.Transceive(ctx, rawCmd)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransmission, err)
	}

	return ParseResponseAPDU(rawResp)
}

// lengthFromSW2 decodes the XX of 61XX / 6CXX, where 00 means 256.
func lengthFromSW2(sw2 byte) int {
	if sw2 == 0 {
		return MaxShortLe
	}
	return int(sw2)
}
