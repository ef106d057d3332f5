// RadioVolume delegates setVoiceVolume (spec §6.1) to a transceiver's own
// AF-gain control via Hamlib, for a hardware output endpoint fronted by a
// radio ("radio patch" output) rather than a plain speaker/headphone
// jack — avoiding double-attenuation from both the software mixer and
// the rig's own gain stage. Grounded on the teacher's Hamlib rig control
// in src/ptt.go (there: CAT-controlled PTT keying, explicitly disabled
// "due to mid-stage porting complexity" and still cgo-based); this
// completes that unfinished migration using the pure-Go binding the
// teacher's go.mod already depends on (github.com/xylo04/goHamlib)
// instead of cgo libhamlib calls, retargeted from keying PTT to setting
// AF gain.
package hal

import (
	"fmt"

	"github.com/xylo04/goHamlib"
)

// RadioVolume wraps one open Hamlib rig connection used purely for its
// AF-gain (volume) control.
type RadioVolume struct {
	rig *goHamlib.Rig
}

// OpenRadioVolume opens a Hamlib rig connection on port at the given
// model number (spec §6.1's setVoiceVolume target), matching the
// teacher's "AUTO option detected rig model" flow in ptt.go but without
// the PTT-keying half of that setup.
func OpenRadioVolume(model int, port string, baud int) (*RadioVolume, error) {
	rig := &goHamlib.Rig{}
	if err := rig.Init(model); err != nil {
		return nil, fmt.Errorf("hal: hamlib init rig model %d: %w", model, err)
	}
	rig.State.RigPort.PortName = port
	if baud > 0 {
		rig.State.RigPort.Parm.Serial.Rate = baud
	}
	if err := rig.Open(); err != nil {
		return nil, fmt.Errorf("hal: hamlib open %q: %w", port, err)
	}
	return &RadioVolume{rig: rig}, nil
}

// SetVoiceVolume pushes v (0.0-1.0) to the rig's AF-gain level, the
// Hamlib-native alternative to the mixer's own software gain (spec §6.1
// "controls... voice volume").
func (r *RadioVolume) SetVoiceVolume(v float64) error {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	return r.rig.SetLevel(goHamlib.VFOCurrent, goHamlib.LevelAF, float32(v))
}

// Close ends the Hamlib rig connection.
func (r *RadioVolume) Close() error {
	return r.rig.Close()
}
