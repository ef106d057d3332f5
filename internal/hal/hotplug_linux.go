//go:build linux

// Hotplug watches udev for sound-card add/remove events, so the server
// core can tear down endpoints bound to a now-missing card and open
// endpoints for a newly-arrived one. Grounded on the teacher's use of
// libudev for its own CM108/CM119 GPIO-PTT device enumeration
// (src/cm108.go, src/cm108_main.go, via cgo); here the same "watch the
// kernel's device tree for sound hardware" concern is expressed through
// the pure-Go binding the teacher's go.mod already depends on
// (github.com/jochenvg/go-udev) instead of cgo libudev calls.
package hal

import (
	"context"

	"github.com/jochenvg/go-udev"
)

// HotplugEvent describes one sound-card add/remove transition.
type HotplugEvent struct {
	Action  string // "add" or "remove"
	SysPath string
	Name    string
}

// Hotplug streams HotplugEvent over Events until Stop is called.
type Hotplug struct {
	cancel context.CancelFunc
	events chan HotplugEvent
}

// WatchSoundCards starts monitoring udev's "sound" subsystem.
func WatchSoundCards() (*Hotplug, error) {
	u := udev.Udev{}
	mon := u.NewMonitorFromNetlink("udev")
	if err := mon.FilterAddMatchSubsystem("sound"); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	devCh, err := mon.DeviceChan(ctx)
	if err != nil {
		cancel()
		return nil, err
	}

	h := &Hotplug{cancel: cancel, events: make(chan HotplugEvent, 16)}

	go func() {
		defer close(h.events)
		for {
			select {
			case <-ctx.Done():
				return
			case dev, ok := <-devCh:
				if !ok {
					return
				}
				h.events <- HotplugEvent{
					Action:  dev.Action(),
					SysPath: dev.Syspath(),
					Name:    dev.Sysname(),
				}
			}
		}
	}()

	return h, nil
}

// Events returns the channel of hotplug transitions.
func (h *Hotplug) Events() <-chan HotplugEvent { return h.events }

// Stop cancels the monitor and closes Events.
func (h *Hotplug) Stop() { h.cancel() }
