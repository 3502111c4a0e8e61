/*
Package iso7816 implements the ISO/IEC 7816-4 command/response layer used to talk to a
payment card over a contactless (ISO/IEC 14443-4) or contact link.

It covers the framing of Command and Response APDUs, the Class (CLA), Instruction (INS)
and Status Word (SW) vocabularies, the SELECT and READ RECORD builders an EMV kernel
needs, and a Client that hides the T=0 transport procedures ('61XX' and '6CXX') from the
caller.

# Fundamentals

The communication with a smart card is strictly synchronous:
 1. The Host sends a Command APDU (Header + Optional Body).
 2. The Card processes it and returns a Response APDU (Optional Body + Trailer SW1/SW2).

# Status Words

Every response ends with a 2-byte Status Word (SW).
  - 0x9000: Success (OK).
  - 0x61XX: Success, but response data is still available (XX bytes).
  - 0x6CXX: Error, wrong length expectation (XX is the correct length).
  - Other: card-reported conditions the caller must interpret ("file not found", ...).
    They are not transport errors.

# Usage Example

	client := iso7816.NewClient(tag)
	cls, _ := iso7816.NewClass(0x00)

	trace, err := client.Send(ctx, iso7816.SelectByAID(cls, aid))
	if err != nil {
	    // the link failed, the card never answered
	}

	if trace.IsSuccess() {
	    fci := trace.Last().Response.Data
	    ...
	}
*/
package iso7816
