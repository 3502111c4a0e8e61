// Package emv reads payment card data from a contactless EMV card.
//
// A Reader drives one Session per card tag:
//
//	Idle -> Selecting -> Reading -> Decoding -> Done
//
// Selecting sends SELECT 2PAY.SYS.DDF01 (PPSE) to discover the card's
// applications, then SELECTs each candidate AID until the card answers 9000.
// Reading sends GET PROCESSING OPTIONS, then READ RECORD for every record of
// the Application File Locator (AFL). Decoding checks that every record is a
// '70' template and merges all primitive data objects into one tag set, the
// first occurrence of a tag winning, before mapping it to CardData.
//
// The outcome is always exactly one CardDataResponse variant: Success, Error,
// TagLost or CardNotSupported.
package emv
