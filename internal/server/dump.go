package server

import (
	"fmt"
	"strings"
	"time"
)

// dumpTryAttempts/dumpTryInterval bound the tryLock-with-retry loop spec
// §5 calls for ("Dumping paths use bounded tryLock with retry to detect
// deadlock for diagnostics"): a dump never blocks indefinitely on a
// wedged real-time thread, it just reports the endpoint as busy.
const (
	dumpTryAttempts = 5
	dumpTryInterval = 2 * time.Millisecond
)

// Dump renders a human-readable snapshot of every registered endpoint
// for internal/diag's interactive console. Each endpoint is visited
// under its own tryLock-with-retry rather than the server lock, so one
// endpoint thread stuck inside a long device write can never stall the
// whole dump.
func (s *Server) Dump() string {
	s.mu.Lock()
	type row struct {
		handle int
		kind   Kind
		ep     *endpoint
	}
	rows := make([]row, 0, len(s.endpoints))
	for h, e := range s.endpoints {
		rows = append(rows, row{handle: h, kind: e.kind, ep: e})
	}
	trackCount := len(s.tracks)
	clientCount := len(s.clients)
	s.mu.Unlock()

	var b strings.Builder
	fmt.Fprintf(&b, "audioserver: %d endpoint(s), %d track(s), %d client(s)\n", len(rows), trackCount, clientCount)

	for _, r := range rows {
		locked := false
		for attempt := 0; attempt < dumpTryAttempts && !locked; attempt++ {
			if attempt > 0 {
				time.Sleep(dumpTryInterval)
			}
			locked = r.ep.tryLock()
		}

		if !locked {
			fmt.Fprintf(&b, "  endpoint %d [%s]: BUSY (thread did not release lock within %d attempts)\n",
				r.handle, r.kind, dumpTryAttempts)
			continue
		}
		fmt.Fprintf(&b, "  endpoint %d [%s]: rate=%d channels=%d suspended=%v\n",
			r.handle, r.kind, r.ep.sampleRate, r.ep.channels, r.ep.suspended)
		r.ep.unlock()
	}

	return b.String()
}
