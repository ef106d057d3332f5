package scb

import (
	"testing"

	"pgregory.net/rapid"
)

// TestRapidCursorInvariants is the property-based test spec §8 asks for:
// for every sequence of producer/consumer steps, the SCB's cursor-window
// invariants must hold, and flush must always reset both cursors to their
// bases.
func TestRapidCursorInvariants(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		frameCount := rapid.IntRange(1, 64).Draw(rt, "frameCount")
		s := New(frameCount, 44100, 2, 4, true)

		steps := rapid.IntRange(1, 200).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			switch rapid.IntRange(0, 2).Draw(rt, "op") {
			case 0: // produce
				free := s.FramesFree()
				if free <= 0 {
					continue
				}
				n := rapid.Int64Range(0, free).Draw(rt, "produce")
				s.AdvanceUser(n)
			case 1: // consume
				ready := s.FramesReady()
				if ready <= 0 {
					continue
				}
				n := rapid.Int64Range(0, ready).Draw(rt, "consume")
				s.StepServer(n)
			case 2: // flush
				s.Reset()
				if s.User() != s.UserBase {
					rt.Fatalf("flush left user=%d, want base=%d", s.User(), s.UserBase)
				}
				if s.Server() != s.ServerBase {
					rt.Fatalf("flush left server=%d, want base=%d", s.Server(), s.ServerBase)
				}
			}

			if s.Server() > s.User() {
				rt.Fatalf("consumed (%d) exceeds produced (%d)", s.Server(), s.User())
			}
			ready := s.User() - s.Server()
			if ready < 0 || ready > int64(s.FrameCount) {
				rt.Fatalf("ready window %d out of [0, %d]", ready, s.FrameCount)
			}
		}
	})
}
