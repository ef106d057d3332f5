// Package discovery announces the audio server's RPC socket over mDNS/
// DNS-SD, so client processes on the same host/LAN can find it without a
// hardcoded address (spec §9's "service registration" ambient concern).
package discovery

import (
	"context"

	"github.com/brutella/dnssd"

	"github.com/charmbracelet/log"
)

// ServiceType is the DNS-SD service type announced for the audio server's
// RPC socket, in the teacher's "_proto-name._tcp" naming convention (see
// its own "_kiss-tnc._tcp").
const ServiceType = "_audiosrv._tcp"

// Announcer owns the dnssd responder goroutine for the lifetime of the
// process; Stop tears it down during graceful shutdown.
type Announcer struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Announce starts advertising name on port via DNS-SD and returns
// immediately; the responder runs in a background goroutine until Stop is
// called. A failure to create the service or responder is returned to the
// caller; cmd/audioserver logs it as a warning and keeps running —
// discovery is a convenience, not a requirement for
// the server to run (spec §1's RPC boundary is usable with a hardcoded
// address regardless).
func Announce(name string, port int, logger *log.Logger) (*Announcer, error) {
	cfg := dnssd.Config{ //nolint:exhaustruct
		Name: name,
		Type: ServiceType,
		Port: port,
	}

	svc, err := dnssd.NewService(cfg)
	if err != nil {
		return nil, err
	}

	responder, err := dnssd.NewResponder()
	if err != nil {
		return nil, err
	}

	if _, err := responder.Add(svc); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	a := &Announcer{cancel: cancel, done: make(chan struct{})}

	logger.Info("discovery: announcing", "name", name, "type", ServiceType, "port", port)

	go func() {
		defer close(a.done)
		if err := responder.Respond(ctx); err != nil && ctx.Err() == nil {
			logger.Warn("discovery: responder error", "error", err)
		}
	}()

	return a, nil
}

// Stop cancels the responder and waits for its goroutine to exit.
func (a *Announcer) Stop() {
	if a == nil {
		return
	}
	a.cancel()
	<-a.done
}
