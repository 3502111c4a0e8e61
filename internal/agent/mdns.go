package agent

import (
	"fmt"
	"log"

	"github.com/grandcat/zeroconf"
)

const (
	MDNSServiceType = "_emv-reader._tcp"
	MDNSDomain      = "local."
)

// mdnsText describes the agent endpoints to discovering clients.
func mdnsText() []string {
	return []string{
		"version=1.0",
		"protocol=websocket",
		"path=/ws",
		"transactions=/transactions",
	}
}

// Advertise registers the agent as an mDNS service. Call Shutdown on the
// returned server when the agent stops.
func Advertise(name string, port int) (*zeroconf.Server, error) {
	server, err := zeroconf.Register(name, MDNSServiceType, MDNSDomain, port, mdnsText(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to register mDNS service: %w", err)
	}

	log.Printf("mDNS service registered: %s (%s) on port %d", name, MDNSServiceType, port)
	return server, nil
}
