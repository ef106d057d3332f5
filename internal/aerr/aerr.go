// Package aerr defines the error kinds returned across the audio server's
// RPC surface (spec §7). Real-time threads never return these upward; they
// degrade instead (silence substitution, retry, standby) and only log.
package aerr


// Kind identifies one of the error categories in spec §7.
type Kind int

const (
	InvalidArgument Kind = iota
	NotInitialized
	NoMemory
	PermissionDenied
	WouldBlock
	InvalidOperation
	BadIndex
)

func (k Kind) String() string {
	switch k {
	case InvalidArgument:
		return "InvalidArgument"
	case NotInitialized:
		return "NotInitialized"
	case NoMemory:
		return "NoMemory"
	case PermissionDenied:
		return "PermissionDenied"
	case WouldBlock:
		return "WouldBlock"
	case InvalidOperation:
		return "InvalidOperation"
	case BadIndex:
		return "BadIndex"
	default:
		return "Unknown"
	}
}

// Error is a typed error carrying one of the Kind values plus a message.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Msg
}

// New constructs an *Error for the given kind.
func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}

// Is reports whether err carries the given kind, so callers can write
// errors.Is(err, aerr.ErrWouldBlock) directly against the sentinel values
// below.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Sentinels for errors.Is comparisons against a bare kind, e.g.
//
//	if errors.Is(err, aerr.ErrWouldBlock) { ... }
var (
	ErrInvalidArgument = &Error{Kind: InvalidArgument}
	ErrNotInitialized  = &Error{Kind: NotInitialized}
	ErrNoMemory        = &Error{Kind: NoMemory}
	ErrPermission      = &Error{Kind: PermissionDenied}
	ErrWouldBlock      = &Error{Kind: WouldBlock}
	ErrInvalidOp       = &Error{Kind: InvalidOperation}
	ErrBadIndex        = &Error{Kind: BadIndex}
)
