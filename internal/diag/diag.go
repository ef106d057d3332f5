// Package diag implements the interactive diagnostic console ("audioserver
// dump"): it attaches a pty and puts the controlling terminal in raw mode
// to page through endpoint/track dumps live (spec §5's "Dumping paths use
// bounded tryLock with retry to detect deadlock for diagnostics"; the
// console is the ambient "CLI/dump" concern spec.md §1 calls out as out
// of core scope, but SPEC_FULL.md §D.7 still gives it a home since a
// running system needs *some* operator-facing dump path).
//
// Grounded on the teacher's serial-port raw-mode handling
// (src/serial_port.go, src/kissserial.go — github.com/pkg/term's
// term.Open(name, term.RawMode)) and its own pseudo-terminal allocation
// for the KISS protocol (src/kiss.go's kisspt_open_pt, github.com/creack/pty's
// pty.Open()), both reused here for a diagnostics console instead of a
// TNC-over-pty or a physical radio's serial CAT port.
package diag

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/creack/pty"
	"github.com/pkg/term"
)

// Dumper is the subset of *server.Server the console needs.
type Dumper interface {
	Dump() string
}

// Console owns a pty pair; Run reads commands from its master side and
// writes dump output back, until the master side is closed or "quit" is
// received.
type Console struct {
	master *os.File
	slave  *os.File
}

// Open allocates a pty pair (spec's equivalent of the teacher's
// kisspt_open_pt, but for operator I/O rather than a virtual TNC port).
// SlavePath returns the path a terminal emulator or `screen` session can
// attach to.
func Open() (*Console, error) {
	ptmx, pts, err := pty.Open()
	if err != nil {
		return nil, fmt.Errorf("diag: open pty: %w", err)
	}
	return &Console{master: ptmx, slave: pts}, nil
}

// SlavePath is the pty slave device path (e.g. /dev/pts/7) to attach a
// terminal to.
func (c *Console) SlavePath() string { return c.slave.Name() }

// Close releases both ends of the pty.
func (c *Console) Close() error {
	err1 := c.master.Close()
	err2 := c.slave.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

// Run reads newline-terminated commands from the pty master and services
// them against dumper until EOF, io.EOF, or a "quit" command. Recognised
// commands: "dump" (print Dumper.Dump()), "quit" (exit the loop).
func (c *Console) Run(dumper Dumper) error {
	reader := bufio.NewReader(c.master)
	fmt.Fprint(c.master, "audioserver diag> ")

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}

		switch strings.TrimSpace(line) {
		case "dump":
			fmt.Fprint(c.master, dumper.Dump())
		case "quit", "exit":
			return nil
		case "":
			// ignore blank lines
		default:
			fmt.Fprintf(c.master, "unknown command %q (try: dump, quit)\n", strings.TrimSpace(line))
		}
		fmt.Fprint(c.master, "audioserver diag> ")
	}
}

// AttachRawTerminal puts the controlling terminal identified by
// devicePath into raw mode for the duration of an interactive diag
// session (matching the teacher's serial_port_open(devicename,
// term.RawMode) call for a physical TTY, here applied to a pty slave or
// the operator's own controlling terminal instead of a radio's CAT
// port). The caller is responsible for Close()ing the returned handle to
// restore cooked mode.
func AttachRawTerminal(devicePath string) (*term.Term, error) {
	t, err := term.Open(devicePath, term.RawMode)
	if err != nil {
		return nil, fmt.Errorf("diag: open %q raw: %w", devicePath, err)
	}
	return t, nil
}
