// Package engine implements the per-endpoint real-time threads: the
// common ThreadBase lifecycle (spec §4.5 step 1-2, §5) and its four
// concrete loops — MixerThread, DirectOutputThread, DuplicatingThread,
// and RecordThread.
//
// Each endpoint owns exactly one of these, running on its own goroutine
// at the "thread lock" rank below the server lock and above any SCB
// mutex (spec §5's lock rank). None of these types hold a reference to
// the server; the server holds a reference to them (spec §9's "strong
// ownership flows Server -> Thread -> Track").
package engine

import (
	"sync"
	"time"
)

// ConfigEvent is one notification destined for registered RPC observers
// (spec §4.9 "Client fan-out", §6.2 ioConfigChanged).
type ConfigEvent struct {
	Kind     ConfigEventKind
	Endpoint int
	Payload  any
}

// ConfigEventKind enumerates spec §6.2's ioConfigChanged event set.
type ConfigEventKind int

const (
	OutputOpened ConfigEventKind = iota
	OutputClosed
	OutputConfigChanged
	StreamConfigChanged
	InputOpened
	InputClosed
	InputConfigChanged
)

// String names a ConfigEventKind the way spec §6.2 spells it
// (OUTPUT_OPENED, ...), for logging and for internal/rpc's wire
// encoding of push notifications.
func (k ConfigEventKind) String() string {
	switch k {
	case OutputOpened:
		return "OUTPUT_OPENED"
	case OutputClosed:
		return "OUTPUT_CLOSED"
	case OutputConfigChanged:
		return "OUTPUT_CONFIG_CHANGED"
	case StreamConfigChanged:
		return "STREAM_CONFIG_CHANGED"
	case InputOpened:
		return "INPUT_OPENED"
	case InputClosed:
		return "INPUT_CLOSED"
	case InputConfigChanged:
		return "INPUT_CONFIG_CHANGED"
	default:
		return "UNKNOWN"
	}
}

// Dispatcher receives config events drained from a thread's queue. The
// server core implements this and is always called with the thread lock
// released (spec §5: "Config-event dispatch to clients happens after the
// thread lock is released", to avoid rank inversion against the server
// lock it will take internally to walk its observer list).
type Dispatcher interface {
	Dispatch(events []ConfigEvent)
}

const (
	// recoverySleepMin/Max bound the no-tracks-enabled backoff (spec §4.5
	// step 5): "starts at ~2ms, doubles up to ~20ms".
	recoverySleepMin = 2 * time.Millisecond
	recoverySleepMax = 20 * time.Millisecond

	// standbyTimeout is how long the active set must be empty before the
	// device is put in standby (spec §4.5 step 6).
	standbyTimeout = 3 * time.Second
)

// ThreadBase is the shared lifecycle every endpoint thread embeds:
// parameter-change handshake, config-event queue, standby tracking, and
// cooperative exit (spec §4.5 step 1-2, §5).
type ThreadBase struct {
	mu sync.Mutex // the "thread lock" (spec §5 rank 2)

	workCond  *sync.Cond // signalled to wake the loop: new work, a parameter change, or exit
	paramCond *sync.Cond // signalled once a queued parameter change has been applied

	pendingParams []map[string]string
	queuedSeq     uint64
	appliedSeq    uint64
	configEvents  []ConfigEvent

	exitPending bool

	standby         bool
	lastActivity    time.Time
	recoverySleep   time.Duration
	silentModeApplied bool

	dispatcher Dispatcher
}

func newThreadBase(d Dispatcher) *ThreadBase {
	tb := &ThreadBase{dispatcher: d, lastActivity: time.Time{}, recoverySleep: recoverySleepMin}
	tb.workCond = sync.NewCond(&tb.mu)
	tb.paramCond = sync.NewCond(&tb.mu)
	return tb
}

// QueueConfigEvent enqueues a notification to be drained and dispatched
// on the thread's next iteration (spec §4.5 step 1).
func (tb *ThreadBase) QueueConfigEvent(ev ConfigEvent) {
	tb.mu.Lock()
	tb.configEvents = append(tb.configEvents, ev)
	tb.mu.Unlock()
	tb.workCond.Signal()
}

// drainAndDispatch implements spec §4.5 step 1: pop every queued event
// under the thread lock, then call the dispatcher with the lock released.
func (tb *ThreadBase) drainAndDispatch() {
	tb.mu.Lock()
	if len(tb.configEvents) == 0 {
		tb.mu.Unlock()
		return
	}
	events := tb.configEvents
	tb.configEvents = nil
	tb.mu.Unlock()

	if tb.dispatcher != nil {
		tb.dispatcher.Dispatch(events)
	}
}

// QueueParameter implements the spec §5 configuration-change handshake:
// the caller queues a key/value map, signals the work CV, and blocks on
// the parameter CV until the thread has applied it (and every parameter
// queued before it).
func (tb *ThreadBase) QueueParameter(kv map[string]string) {
	tb.mu.Lock()
	tb.pendingParams = append(tb.pendingParams, kv)
	tb.queuedSeq++
	mySeq := tb.queuedSeq
	tb.workCond.Signal()
	for tb.appliedSeq < mySeq {
		tb.paramCond.Wait()
	}
	tb.mu.Unlock()
}

// applyPendingParameters implements spec §4.5 step 2: under the thread
// lock, apply every queued parameter change via apply, then signal the
// parameter CV so blocked QueueParameter callers unblock. Every queued
// entry is passed to apply in order; apply has no error result, so
// nothing about an individual entry's outcome is reported back to its
// QueueParameter caller.
func (tb *ThreadBase) applyPendingParameters(apply func(kv map[string]string)) {
	tb.mu.Lock()
	pending := tb.pendingParams
	tb.pendingParams = nil
	tb.mu.Unlock()

	if len(pending) == 0 {
		return
	}

	for _, kv := range pending {
		apply(kv)
	}

	tb.mu.Lock()
	tb.appliedSeq += uint64(len(pending))
	tb.paramCond.Broadcast()
	tb.mu.Unlock()
}

// RequestExit sets the exitPending flag and wakes the loop (spec §5
// "Cancellation/timeout").
func (tb *ThreadBase) RequestExit() {
	tb.mu.Lock()
	tb.exitPending = true
	tb.mu.Unlock()
	tb.workCond.Signal()
}

func (tb *ThreadBase) exitRequested() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.exitPending
}

// touchActivity records that the active set was non-empty this cycle,
// resetting the standby timer (spec §4.5 step 6).
func (tb *ThreadBase) touchActivity(now time.Time) {
	tb.mu.Lock()
	tb.lastActivity = now
	tb.standby = false
	tb.mu.Unlock()
}

// standbyDue reports whether the active set has been empty past
// standbyTimeout.
func (tb *ThreadBase) standbyDue(now time.Time) bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	if tb.lastActivity.IsZero() {
		return false
	}
	return !tb.standby && now.Sub(tb.lastActivity) >= standbyTimeout
}

func (tb *ThreadBase) enterStandby() {
	tb.mu.Lock()
	tb.standby = true
	tb.mu.Unlock()
}

// Lock/Unlock/TryLock expose the thread lock itself (spec §5 rank 2) so
// concrete thread types can guard their own state (active track list,
// attached device, current mixer config) with the same single per-
// endpoint lock the spec describes, rather than inventing a second one.
func (tb *ThreadBase) Lock()         { tb.mu.Lock() }
func (tb *ThreadBase) Unlock()       { tb.mu.Unlock() }
func (tb *ThreadBase) TryLock() bool { return tb.mu.TryLock() }

// InStandby reports whether the thread currently considers its device in
// standby.
func (tb *ThreadBase) InStandby() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.standby
}

// nextRecoverySleep implements spec §4.5 step 5's doubling backoff,
// capped at recoverySleepMax, reset to recoverySleepMin once work
// resumes.
func (tb *ThreadBase) nextRecoverySleep() time.Duration {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	d := tb.recoverySleep
	tb.recoverySleep *= 2
	if tb.recoverySleep > recoverySleepMax {
		tb.recoverySleep = recoverySleepMax
	}
	return d
}

func (tb *ThreadBase) resetRecoverySleep() {
	tb.mu.Lock()
	tb.recoverySleep = recoverySleepMin
	tb.mu.Unlock()
}

// waitForWork blocks on the work CV until signalled or timeout elapses,
// for use during the standby sleep (spec §4.5 step 6: "wait on the
// thread condition variable; wake on new activity or a parameter
// change").
func (tb *ThreadBase) waitForWork(timeout time.Duration) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	timer := time.AfterFunc(timeout, func() {
		tb.mu.Lock()
		tb.workCond.Broadcast()
		tb.mu.Unlock()
	})
	defer timer.Stop()
	tb.workCond.Wait()
}

// checkSilentMode implements spec §4.5's one-shot policy hook: on the
// first wake after sleep, if silent mode is asserted, master mute is set
// and cannot be undone from this path again.
func (tb *ThreadBase) checkSilentMode(silentModeAsserted bool, setMasterMute func()) {
	tb.mu.Lock()
	if tb.silentModeApplied || !silentModeAsserted {
		tb.mu.Unlock()
		return
	}
	tb.silentModeApplied = true
	tb.mu.Unlock()
	setMasterMute()
}
