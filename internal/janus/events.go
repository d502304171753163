package janus

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pion/webrtc/v4"
)

// Event types of the media-server event feed.
const (
	EventTypeJSEP   = 8
	EventTypePlugin = 64
)

var ErrMalformedBatch = errors.New("janus: malformed event batch")

// Event is one decoded feed entry: a JSEPEvent, PluginEvent or UnknownEvent.
type Event interface {
	Connection() string
}

type envelope struct {
	Type      int             `json:"type"`
	SessionID ID              `json:"session_id"`
	HandleID  ID              `json:"handle_id"`
	Event     json.RawMessage `json:"event"`
}

type JSEPEvent struct {
	ConnectionID string
	HandleID     string
	Owner        string
	Description  webrtc.SessionDescription
}

func (e JSEPEvent) Connection() string { return e.ConnectionID }

// Local reports whether the SDP was produced by the media server itself.
func (e JSEPEvent) Local() bool { return e.Owner == "local" }

type PluginEvent struct {
	ConnectionID string
	HandleID     string
	Plugin       Plugin
	Data         PluginData
}

func (e PluginEvent) Connection() string { return e.ConnectionID }

type UnknownEvent struct {
	Type         int
	ConnectionID string
	HandleID     string
}

func (e UnknownEvent) Connection() string { return e.ConnectionID }

// PluginData is an AudioBridgeEvent, VideoRoomEvent or UnknownPluginData.
type PluginData interface {
	plugin() Plugin
}

type AudioBridgeEvent struct {
	Kind          string
	Room          ID
	ParticipantID ID
}

func (AudioBridgeEvent) plugin() Plugin { return PluginAudioBridge }

// Talking reports whether the event is a talking/stopped-talking change and
// which one.
func (e AudioBridgeEvent) Talking() (talking, ok bool) {
	switch e.Kind {
	case "talking":
		return true, true
	case "stopped-talking":
		return false, true
	}
	return false, false
}

type Stream struct {
	Type   string `json:"type"`
	Mid    string `json:"mid"`
	FeedID ID     `json:"feed_id"`
}

type VideoRoomEvent struct {
	Kind    string
	Room    ID
	Feed    ID
	Streams []Stream
}

func (VideoRoomEvent) plugin() Plugin { return PluginVideoRoom }

type UnknownPluginData struct {
	Name Plugin
}

func (d UnknownPluginData) plugin() Plugin { return d.Name }

// SplitBatch returns the raw entries of a delivery holding either a JSON
// array of events or a single event object.
func SplitBatch(body []byte) ([]json.RawMessage, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, ErrMalformedBatch
	}
	switch body[0] {
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(body, &items); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedBatch, err)
		}
		return items, nil
	case '{':
		if !json.Valid(body) {
			return nil, ErrMalformedBatch
		}
		return []json.RawMessage{body}, nil
	}
	return nil, ErrMalformedBatch
}

// DecodeEvent decodes one feed entry. Event types other than JSEP and
// plugin become UnknownEvent.
func DecodeEvent(raw json.RawMessage) (Event, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("janus event: %w", err)
	}
	conn, handle := env.SessionID.String(), env.HandleID.String()

	switch env.Type {
	case EventTypeJSEP:
		return decodeJSEP(conn, handle, env.Event)
	case EventTypePlugin:
		return decodePlugin(conn, handle, env.Event)
	}
	return UnknownEvent{Type: env.Type, ConnectionID: conn, HandleID: handle}, nil
}

func decodeJSEP(conn, handle string, raw json.RawMessage) (Event, error) {
	var body struct {
		Owner string `json:"owner"`
		JSEP  *JSEP  `json:"jsep"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("janus jsep event: %w", err)
	}
	if body.JSEP == nil {
		return nil, fmt.Errorf("janus jsep event: missing jsep")
	}
	desc, err := ParseDescription(body.JSEP)
	if err != nil {
		return nil, err
	}
	return JSEPEvent{ConnectionID: conn, HandleID: handle, Owner: body.Owner, Description: desc}, nil
}

// ParseDescription validates a JSEP payload as an offer or answer with a
// parseable SDP body.
func ParseDescription(j *JSEP) (webrtc.SessionDescription, error) {
	typ := webrtc.NewSDPType(j.Type)
	if typ != webrtc.SDPTypeOffer && typ != webrtc.SDPTypeAnswer {
		return webrtc.SessionDescription{}, fmt.Errorf("janus jsep: unsupported type %q", j.Type)
	}
	desc := webrtc.SessionDescription{Type: typ, SDP: j.SDP}
	if _, err := desc.Unmarshal(); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("janus jsep: invalid sdp: %w", err)
	}
	return desc, nil
}

func decodePlugin(conn, handle string, raw json.RawMessage) (Event, error) {
	var body struct {
		Plugin Plugin          `json:"plugin"`
		Data   json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("janus plugin event: %w", err)
	}
	ev := PluginEvent{ConnectionID: conn, HandleID: handle, Plugin: body.Plugin}

	switch body.Plugin {
	case PluginAudioBridge:
		var d struct {
			AudioBridge string `json:"audiobridge"`
			Room        ID     `json:"room"`
			ID          ID     `json:"id"`
		}
		if err := json.Unmarshal(body.Data, &d); err != nil {
			return nil, fmt.Errorf("janus audiobridge event: %w", err)
		}
		ev.Data = AudioBridgeEvent{Kind: d.AudioBridge, Room: d.Room, ParticipantID: d.ID}
	case PluginVideoRoom:
		var d struct {
			Event   string   `json:"event"`
			Room    ID       `json:"room"`
			ID      ID       `json:"id"`
			Streams []Stream `json:"streams"`
		}
		if err := json.Unmarshal(body.Data, &d); err != nil {
			return nil, fmt.Errorf("janus videoroom event: %w", err)
		}
		ev.Data = VideoRoomEvent{Kind: d.Event, Room: d.Room, Feed: d.ID, Streams: d.Streams}
	default:
		ev.Data = UnknownPluginData{Name: body.Plugin}
	}
	return ev, nil
}
