package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gregLibert/emv-reader/internal/agent"
	"github.com/gregLibert/emv-reader/internal/api"
	"github.com/gregLibert/emv-reader/internal/config"
	"github.com/gregLibert/emv-reader/internal/hub"
	"github.com/gregLibert/emv-reader/pkg/cardtag"
	"github.com/gregLibert/emv-reader/pkg/cardtag/libnfc"
	"github.com/gregLibert/emv-reader/pkg/cardtag/pcsc"
	"github.com/gregLibert/emv-reader/pkg/cardtag/pn532"
	"github.com/gregLibert/emv-reader/pkg/emv"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Set up logging
	debug := cfg.Log.Level == "debug"
	if debug {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	} else {
		log.SetFlags(log.LstdFlags)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	poller, err := openPoller(ctx, cfg.Reader)
	if err != nil {
		log.Fatalf("Failed to open %s reader: %v", cfg.Reader.Backend, err)
	}
	defer func() {
		if err := poller.Close(); err != nil {
			log.Printf("Warning: Failed to close reader: %v", err)
		}
	}()

	candidates, err := cfg.EMV.CandidateAIDs()
	if err != nil {
		log.Fatalf("Invalid candidate AID: %v", err)
	}
	emvOpts := []emv.Option{emv.WithCandidates(candidates...), emv.WithPPSE(cfg.EMV.PPSE)}
	if debug {
		emvOpts = append(emvOpts, emv.WithLogger(agent.DebugLogger()))
	}

	h := hub.NewHub()
	go h.Run(ctx)

	a := agent.New(poller,
		agent.EMVCardReader{Options: emvOpts, Terminal: cfg.EMV.Terminal()},
		h,
		agent.Options{PINThreshold: cfg.PIN.Threshold, ReadTimeout: cfg.Reader.ReadTimeout},
	)

	server := api.NewServer(cfg, h, a)
	go func() {
		if err := server.Start(); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	if cfg.MDNS.Enabled {
		mdns, err := agent.Advertise(cfg.MDNS.Name, cfg.Server.Port)
		if err != nil {
			log.Printf("Warning: %v", err)
		} else {
			defer mdns.Shutdown()
		}
	}

	log.Printf("Waiting for cards on %s reader", cfg.Reader.Backend)
	if err := a.Run(ctx); err != nil && ctx.Err() == nil {
		log.Printf("Agent stopped: %v", err)
	}

	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}

func openPoller(ctx context.Context, cfg config.ReaderConfig) (cardtag.Poller, error) {
	switch cfg.Backend {
	case config.BackendPCSC:
		return pcsc.NewPoller(pcsc.Options{Reader: cfg.Device, PollInterval: cfg.PollInterval})
	case config.BackendPN532:
		return pn532.NewPoller(ctx, pn532.Options{
			Path:           cfg.Device,
			ConnectTimeout: cfg.ConnectTimeout,
			PollInterval:   cfg.PollInterval,
		})
	case config.BackendLibNFC:
		return libnfc.NewPoller(libnfc.Options{Connstring: cfg.Device, PollInterval: cfg.PollInterval})
	default:
		return nil, fmt.Errorf("unknown reader backend %q", cfg.Backend)
	}
}
