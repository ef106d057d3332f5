// Package audit keeps a durable CSV trail of config events dispatched by
// the server core (open/close/config-change/stream-reroute), distinct
// from the in-memory FIFO fan-out to RPC observers (spec §4.9/§5). This is
// the "CLI/dump" ambient concern spec.md's §1 scope note puts out of core
// scope — we read that as "the dump command syntax is out of core scope,"
// not "no durable record shall exist" (see SPEC_FULL.md §D.4).
package audit

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/lestrrat-go/strftime"
)

// defaultNamePattern produces one file per UTC day, in the teacher's
// log.go daily-rotation convention ("2006-01-02.log"), but expressed as a
// strftime pattern since the teacher already depends on
// github.com/lestrrat-go/strftime for its own timestamp formatting
// (xmit.go, tq.go) and SPEC_FULL.md §C commits to using it here instead of
// hand-rolling a second time-format mini-language.
const defaultNamePattern = "%Y-%m-%d.audit.csv"

const header = "utime,isotime,event,endpoint,detail\n"

// Log writes one CSV row per audit event to a daily-rotated file under
// dir. A zero-value Log (dir == "") is a no-op sink, matching the
// teacher's "empty string disables feature" convention in log_init.
type Log struct {
	mu       sync.Mutex
	dir      string
	pattern  *strftime.Strftime
	fp       *os.File
	openName string
}

// Open prepares a Log writing daily-rotated CSV files under dir. dir=""
// disables the audit trail entirely (Write becomes a no-op), matching
// spec.md §7's "the server logs but does not terminate" philosophy: audit
// failures degrade, they never block a real-time path.
func Open(dir string) (*Log, error) {
	if dir == "" {
		return &Log{}, nil
	}

	if stat, err := os.Stat(dir); err == nil {
		if !stat.IsDir() {
			return nil, fmt.Errorf("audit: %q is not a directory", dir)
		}
	} else if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("audit: create %q: %w", dir, err)
	}

	pattern, err := strftime.New(defaultNamePattern)
	if err != nil {
		return nil, fmt.Errorf("audit: compile name pattern: %w", err)
	}

	return &Log{dir: dir, pattern: pattern}, nil
}

// Write appends one row: event kind, the endpoint handle it concerns (0
// for process-wide events), and a free-form detail string. Rotation to a
// new day's file happens transparently, same as the teacher's
// fname != g_open_fname check in log_write.
func (l *Log) Write(event string, endpoint int, detail string) {
	if l == nil || l.dir == "" {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now().UTC()
	name := l.pattern.FormatString(now)

	if l.fp != nil && name != l.openName {
		l.closeLocked()
	}

	if l.fp == nil {
		full := filepath.Join(l.dir, name)
		_, statErr := os.Stat(full)
		alreadyThere := statErr == nil

		f, err := os.OpenFile(full, os.O_RDWR|os.O_APPEND|os.O_CREATE, 0o644)
		if err != nil {
			// Degrade silently per spec §7: an audit-write failure must
			// never propagate into a real-time dispatch path.
			return
		}
		l.fp = f
		l.openName = name

		if !alreadyThere {
			_, _ = f.WriteString(header)
		}
	}

	w := csv.NewWriter(l.fp)
	_ = w.Write([]string{
		fmt.Sprintf("%d", now.Unix()),
		now.Format(time.RFC3339),
		event,
		fmt.Sprintf("%d", endpoint),
		detail,
	})
	w.Flush()
}

func (l *Log) closeLocked() {
	if l.fp != nil {
		_ = l.fp.Close()
		l.fp = nil
		l.openName = ""
	}
}

// Close flushes and closes the currently open file, if any. Called during
// graceful shutdown (cmd/audioserver).
func (l *Log) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fp == nil {
		return nil
	}
	err := l.fp.Close()
	l.fp = nil
	l.openName = ""
	return err
}
