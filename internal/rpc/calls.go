package rpc

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/doismellburning/samoyed-audioserver/internal/track"
)

// call dispatches one Request.Method against h's Backend, matching the
// surface of spec §6.2. Unmarshalling errors and unknown methods are
// ordinary RPC errors, not panics — the RPC boundary is a trust boundary
// (spec §9).
func (h *connHandler) call(method string, params json.RawMessage) (any, error) {
	switch method {
	case "createTrack":
		var p struct {
			Pid        int `json:"pid"`
			StreamType int `json:"streamType"`
			Rate       int `json:"rate"`
			Format     int `json:"format"`
			Channels   int `json:"channels"`
			FrameCount int `json:"frameCount"`
			Endpoint   int `json:"endpoint"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		return h.l.backend.CreateTrack(p.Pid, track.StreamType(p.StreamType), p.Rate, p.Format, p.Channels, p.FrameCount, p.Endpoint)

	case "openRecord":
		var p struct {
			Pid        int `json:"pid"`
			Endpoint   int `json:"endpoint"`
			Rate       int `json:"rate"`
			Format     int `json:"format"`
			Channels   int `json:"channels"`
			FrameCount int `json:"frameCount"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		return h.l.backend.OpenRecord(p.Pid, p.Endpoint, p.Rate, p.Format, p.Channels, p.FrameCount)

	case "openOutput":
		var p struct {
			Devices   []string `json:"devices"`
			Rate      int      `json:"rate"`
			Channels  int      `json:"channels"`
			Format    int      `json:"format"`
			LatencyMS int      `json:"latencyMs"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		return h.l.backend.OpenOutput(p.Devices, p.Rate, p.Channels, p.Format, time.Duration(p.LatencyMS)*time.Millisecond)

	case "openInput":
		var p struct {
			Devices  []string `json:"devices"`
			Rate     int      `json:"rate"`
			Channels int      `json:"channels"`
			Format   int      `json:"format"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		return h.l.backend.OpenInput(p.Devices, p.Rate, p.Channels, p.Format)

	case "openDuplicateOutput":
		var p struct {
			A int `json:"a"`
			B int `json:"b"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		return h.l.backend.OpenDuplicateOutput(p.A, p.B)

	case "closeOutput":
		return nil, h.l.backend.CloseOutput(handleParam(params))
	case "closeInput":
		return nil, h.l.backend.CloseInput(handleParam(params))
	case "suspendOutput":
		return nil, h.l.backend.SuspendOutput(handleParam(params))
	case "restoreOutput":
		return nil, h.l.backend.RestoreOutput(handleParam(params))

	case "setStreamOutput":
		var p struct {
			StreamType  int `json:"streamType"`
			Destination int `json:"destination"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		return nil, h.l.backend.SetStreamOutput(track.StreamType(p.StreamType), p.Destination)

	case "setMasterVolume":
		var p struct {
			Volume float64 `json:"volume"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		return nil, h.l.backend.SetMasterVolume(p.Volume)

	case "setMasterMute":
		h.l.backend.SetMasterMute()
		return nil, nil

	case "setMode":
		var p struct {
			Mode string `json:"mode"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		return nil, h.l.backend.SetMode(p.Mode)

	case "setMicMute":
		var p struct {
			Mute bool `json:"mute"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		return nil, h.l.backend.SetMicMute(p.Mute)

	case "setVoiceVolume":
		var p struct {
			Volume float64 `json:"volume"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		return nil, h.l.backend.SetVoiceVolume(p.Volume)

	case "setParameters":
		var p struct {
			Endpoint int               `json:"endpoint"`
			KV       map[string]string `json:"kv"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		return nil, h.l.backend.SetParameters(p.Endpoint, p.KV)

	case "start":
		return nil, h.l.backend.StartTrack(handleParam(params))
	case "stop":
		return nil, h.l.backend.StopTrack(handleParam(params))
	case "pause":
		return nil, h.l.backend.PauseTrack(handleParam(params))
	case "flush":
		return nil, h.l.backend.FlushTrack(handleParam(params))

	case "mute":
		var p struct {
			Handle int  `json:"handle"`
			Mute   bool `json:"mute"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		return nil, h.l.backend.MuteTrack(p.Handle, p.Mute)

	case "setVolume":
		var p struct {
			Handle int     `json:"handle"`
			Left   float64 `json:"left"`
			Right  float64 `json:"right"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		return nil, h.l.backend.SetTrackVolume(p.Handle, p.Left, p.Right)

	default:
		return nil, fmt.Errorf("rpc: unknown method %q", method)
	}
}

// handleParam unmarshals the common {"handle": n} param shape used by the
// single-handle methods (closeOutput/closeInput/suspendOutput/
// restoreOutput/start/stop/pause/flush). A bad/missing handle resolves to
// 0, which every Backend method rejects as aerr.BadIndex.
func handleParam(params json.RawMessage) int {
	var p struct {
		Handle int `json:"handle"`
	}
	_ = json.Unmarshal(params, &p)
	return p.Handle
}
