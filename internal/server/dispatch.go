package server

import "github.com/doismellburning/samoyed-audioserver/internal/engine"

// Dispatch implements engine.Dispatcher: every endpoint thread calls this
// with its own thread lock already released (spec §5 "Config-event
// dispatch to clients happens after the thread lock is released"), so
// notify only ever needs the separate observer-list lock, never the
// server lock — an endpoint thread dispatching a batch can never block on
// whatever goroutine currently holds the server lock.
func (s *Server) Dispatch(events []engine.ConfigEvent) {
	for _, ev := range events {
		s.notify(ev)
	}
}

// dispatchLocked is the same fan-out used by Server methods that already
// hold the server lock (OpenOutput/OpenInput/OpenDuplicateOutput,
// setStreamOutput) to emit a synthesized event inline. Safe to call while
// holding s.mu because notify only ever takes s.obsMu, a strictly lower,
// independent lock.
func (s *Server) dispatchLocked(ev engine.ConfigEvent) {
	s.notify(ev)
}

// notify delivers one event to every currently registered observer.
//
// Spec §9 Open Question (a): the original's ioConfigChanged switch falls
// through from STREAM_CONFIG_CHANGED into OUTPUT_CLOSED for certain event
// values, misreporting a stream reroute as an endpoint closing. This
// dispatch never switches on Kind at all — every event kind is delivered
// verbatim to every observer exactly as received — so that bug has no
// equivalent here by construction, not by replicating and then patching a
// switch statement.
func (s *Server) notify(ev engine.ConfigEvent) {
	s.obsMu.Lock()
	obs := make([]Observer, 0, len(s.observers))
	for _, o := range s.observers {
		obs = append(obs, o)
	}
	s.obsMu.Unlock()

	for _, o := range obs {
		o.IOConfigChanged(ev.Kind, ev.Endpoint, ev.Payload)
	}
}
