package track

// State is a Track's lifecycle state (spec §4.2):
//
//	IDLE → ACTIVE ↔ PAUSING → PAUSED → RESUMING → ACTIVE
//	(any non-terminal) → STOPPING → STOPPED → FLUSHED
//	(any) → TERMINATED
type State int

const (
	Idle State = iota
	Active
	Pausing
	Paused
	Resuming
	Stopping
	Stopped
	Flushed
	Terminated
)

func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case Active:
		return "ACTIVE"
	case Pausing:
		return "PAUSING"
	case Paused:
		return "PAUSED"
	case Resuming:
		return "RESUMING"
	case Stopping:
		return "STOPPING"
	case Stopped:
		return "STOPPED"
	case Flushed:
		return "FLUSHED"
	case Terminated:
		return "TERMINATED"
	default:
		return "UNKNOWN"
	}
}

// FillStatus tracks the fill-up discipline (spec §4.2): a newly started
// track is not mixed until framesReady >= frameCount or forceReady is set.
// FILLED is a one-cycle acknowledgement used to pick ramped vs instant
// volume on the transition to ACTIVE.
type FillStatus int

const (
	Filling FillStatus = iota
	Filled
	FillActive
)

func (f FillStatus) String() string {
	switch f {
	case Filling:
		return "FILLING"
	case Filled:
		return "FILLED"
	case FillActive:
		return "ACTIVE"
	default:
		return "UNKNOWN"
	}
}
