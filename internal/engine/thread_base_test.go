package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingDispatcher struct {
	mu     sync.Mutex
	events [][]ConfigEvent
}

func (d *recordingDispatcher) Dispatch(events []ConfigEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := make([]ConfigEvent, len(events))
	copy(cp, events)
	d.events = append(d.events, cp)
}

func (d *recordingDispatcher) batches() [][]ConfigEvent {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([][]ConfigEvent, len(d.events))
	copy(out, d.events)
	return out
}

func TestDrainAndDispatchDeliversQueuedEventsWithLockReleased(t *testing.T) {
	disp := &recordingDispatcher{}
	tb := newThreadBase(disp)

	tb.QueueConfigEvent(ConfigEvent{Kind: OutputOpened, Endpoint: 1})
	tb.QueueConfigEvent(ConfigEvent{Kind: OutputClosed, Endpoint: 1})

	tb.drainAndDispatch()

	batches := disp.batches()
	require.Len(t, batches, 1)
	assert.Len(t, batches[0], 2)
	assert.Equal(t, OutputOpened, batches[0][0].Kind)
	assert.Equal(t, OutputClosed, batches[0][1].Kind)

	// Nothing left queued, second drain is a no-op.
	tb.drainAndDispatch()
	assert.Len(t, disp.batches(), 1)
}

func TestQueueParameterBlocksUntilApplied(t *testing.T) {
	tb := newThreadBase(nil)
	applied := make([]string, 0)

	done := make(chan struct{})
	go func() {
		tb.QueueParameter(map[string]string{"k": "v1"})
		close(done)
	}()

	// Give QueueParameter a moment to enqueue and start waiting.
	time.Sleep(20 * time.Millisecond)
	select {
	case <-done:
		t.Fatal("QueueParameter returned before its change was applied")
	default:
	}

	tb.applyPendingParameters(func(kv map[string]string) {
		applied = append(applied, kv["k"])
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("QueueParameter did not unblock after applyPendingParameters")
	}
	assert.Equal(t, []string{"v1"}, applied)
}

func TestQueueParameterOrderingAcrossMultipleCallers(t *testing.T) {
	tb := newThreadBase(nil)
	var mu sync.Mutex
	var applied []string

	var wg sync.WaitGroup
	for _, v := range []string{"a", "b", "c"} {
		wg.Add(1)
		go func(v string) {
			defer wg.Done()
			tb.QueueParameter(map[string]string{"k": v})
		}(v)
	}

	// Drain in a loop until all three have been applied, mimicking a
	// thread's Run loop calling applyPendingParameters repeatedly.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		tb.applyPendingParameters(func(kv map[string]string) {
			mu.Lock()
			applied = append(applied, kv["k"])
			mu.Unlock()
		})
		mu.Lock()
		n := len(applied)
		mu.Unlock()
		if n >= 3 {
			break
		}
		time.Sleep(time.Millisecond)
	}
	wg.Wait()

	assert.ElementsMatch(t, []string{"a", "b", "c"}, applied)
}

func TestRequestExitSetsFlagAndWakesWaiter(t *testing.T) {
	tb := newThreadBase(nil)
	assert.False(t, tb.exitRequested())

	woke := make(chan struct{})
	go func() {
		tb.waitForWork(time.Hour)
		close(woke)
	}()

	time.Sleep(20 * time.Millisecond)
	tb.RequestExit()

	select {
	case <-woke:
	case <-time.After(time.Second):
		t.Fatal("waitForWork did not wake on RequestExit")
	}
	assert.True(t, tb.exitRequested())
}

func TestStandbyDueTracksActivityWindow(t *testing.T) {
	tb := newThreadBase(nil)
	now := time.Now()

	assert.False(t, tb.standbyDue(now), "never touched yet")

	tb.touchActivity(now)
	assert.False(t, tb.standbyDue(now.Add(time.Second)))
	assert.True(t, tb.standbyDue(now.Add(standbyTimeout+time.Millisecond)))

	tb.enterStandby()
	assert.True(t, tb.InStandby())
	// Already in standby: standbyDue should not fire again until activity
	// resets it.
	assert.False(t, tb.standbyDue(now.Add(standbyTimeout*2)))

	tb.touchActivity(now.Add(standbyTimeout * 3))
	assert.False(t, tb.InStandby())
}

func TestRecoverySleepDoublesAndCaps(t *testing.T) {
	tb := newThreadBase(nil)

	first := tb.nextRecoverySleep()
	second := tb.nextRecoverySleep()
	assert.Equal(t, recoverySleepMin, first)
	assert.Equal(t, recoverySleepMin*2, second)

	for i := 0; i < 10; i++ {
		tb.nextRecoverySleep()
	}
	assert.Equal(t, recoverySleepMax, tb.nextRecoverySleep())

	tb.resetRecoverySleep()
	assert.Equal(t, recoverySleepMin, tb.nextRecoverySleep())
}

func TestCheckSilentModeAppliesOnlyOnce(t *testing.T) {
	tb := newThreadBase(nil)
	calls := 0

	tb.checkSilentMode(false, func() { calls++ })
	assert.Equal(t, 0, calls)

	tb.checkSilentMode(true, func() { calls++ })
	assert.Equal(t, 1, calls)

	// Asserted again: already applied once, must not re-fire.
	tb.checkSilentMode(true, func() { calls++ })
	assert.Equal(t, 1, calls)
}

func TestLockUnlockTryLockExposeThreadLock(t *testing.T) {
	tb := newThreadBase(nil)
	tb.Lock()
	assert.False(t, tb.TryLock())
	tb.Unlock()
	assert.True(t, tb.TryLock())
	tb.Unlock()
}
