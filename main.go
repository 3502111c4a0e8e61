package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/gregLibert/emv-reader/pkg/cardtag/pcsc"
	"github.com/gregLibert/emv-reader/pkg/emv"
)

func main() {
	readerName := flag.String("reader", "", "PC/SC reader name (substring); first reader when empty")
	timeout := flag.Duration("timeout", 30*time.Second, "how long to wait for a card")
	debug := flag.Bool("debug", false, "print every APDU exchanged")
	aids := flag.String("aid", "", "comma-separated candidate AIDs; built-in list when empty")
	noPPSE := flag.Bool("no-ppse", false, "skip PPSE discovery")
	flag.Parse()

	opts, err := readerOptions(*aids, !*noPPSE, *debug)
	if err != nil {
		log.Fatalf("Invalid -aid: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// --- 1. Hardware Setup ---
	poller, err := pcsc.NewPoller(pcsc.Options{Reader: *readerName})
	if err != nil {
		log.Fatalf("Error establishing context: %s", err)
	}
	defer func() {
		if err := poller.Close(); err != nil {
			log.Printf("Warning: Failed to release context: %v", err)
		}
	}()

	// --- 2. Wait for a contactless card ---
	fmt.Println("=============================================")
	fmt.Println(" Present a contactless payment card...")
	fmt.Println("=============================================")

	waitCtx, cancel := context.WithTimeout(ctx, *timeout)
	tag, err := poller.WaitForTag(waitCtx)
	cancel()
	if err != nil {
		log.Fatalf("No card detected: %v", err)
	}
	fmt.Printf(">> Card detected: %s\n", tag)

	// --- 3. Read it ---
	resp := emv.NewReader(opts...).ReadCard(ctx, tag)

	fmt.Println("\n=============================================")
	fmt.Printf(" Result: %s\n", emv.Outcome(resp))
	fmt.Println("=============================================")
	fmt.Println(emv.Describe(resp))

	if s, ok := resp.(emv.Success); ok {
		fmt.Printf("\nScheme:  %s\n", s.Card.Scheme())
		if s.Card.Label != "" {
			fmt.Printf("Label:   %s\n", s.Card.Label)
		}
		if s.Card.CardholderName != "" {
			fmt.Printf("Holder:  %s\n", s.Card.CardholderName)
		}
	}
}

func readerOptions(aids string, ppse, debug bool) ([]emv.Option, error) {
	opts := []emv.Option{emv.WithPPSE(ppse)}

	if aids != "" {
		var candidates []emv.AID
		for _, s := range strings.Split(aids, ",") {
			aid, err := emv.ParseAID(strings.TrimSpace(s))
			if err != nil {
				return nil, err
			}
			candidates = append(candidates, aid)
		}
		opts = append(opts, emv.WithCandidates(candidates...))
	}

	if debug {
		opts = append(opts, emv.WithLogger(emv.LoggerFunc(func(key, message string) {
			fmt.Printf("[%s] %s\n", key, message)
		})))
	}
	return opts, nil
}
