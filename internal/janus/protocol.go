// Package janus speaks the media server's HTTP signaling protocol and decodes
// its asynchronous event feed.
package janus

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

type Plugin string

const (
	PluginAudioBridge Plugin = "janus.plugin.audiobridge"
	PluginVideoRoom   Plugin = "janus.plugin.videoroom"
)

// Request types of the core protocol.
const (
	reqCreate  = "create"
	reqAttach  = "attach"
	reqMessage = "message"
	reqDetach  = "detach"
	reqDestroy = "destroy"
)

// Response types of the core protocol.
const (
	respSuccess    = "success"
	respAck        = "ack"
	respError      = "error"
	respServerInfo = "server_info"
)

// ID is a media-server identifier. The server emits numeric ids for
// sessions and handles and, with string ids enabled, strings for rooms and
// feeds; both decode into the same string form.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("janus id: %w", err)
	}
	*id = ID(n.String())
	return nil
}

func (id ID) MarshalJSON() ([]byte, error) {
	if _, err := strconv.ParseUint(string(id), 10, 64); err == nil {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

func (id ID) String() string { return string(id) }

// JSEP carries an SDP offer or answer alongside a plugin message or event.
type JSEP struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

func Offer(sdp string) *JSEP  { return &JSEP{Type: "offer", SDP: sdp} }
func Answer(sdp string) *JSEP { return &JSEP{Type: "answer", SDP: sdp} }

type request struct {
	Janus       string `json:"janus"`
	Transaction string `json:"transaction"`
	Plugin      Plugin `json:"plugin,omitempty"`
	Body        any    `json:"body,omitempty"`
	JSEP        *JSEP  `json:"jsep,omitempty"`
	APISecret   string `json:"apisecret,omitempty"`
}

type response struct {
	Janus       string `json:"janus"`
	Transaction string `json:"transaction"`
	SessionID   ID     `json:"session_id,omitempty"`
	Data        *struct {
		ID ID `json:"id"`
	} `json:"data,omitempty"`
	PluginData *struct {
		Plugin Plugin          `json:"plugin"`
		Data   json.RawMessage `json:"data"`
	} `json:"plugindata,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// PluginResponse is the synchronous answer to a plugin message. Asynchronous
// requests are only acknowledged (Ack is true, Data is empty); their outcome
// arrives through the event feed.
type PluginResponse struct {
	Ack    bool
	Plugin Plugin
	Data   json.RawMessage
}

// RoomResult is the room/plugin response shape: a room id and a status
// literal under the plugin's own key ("audiobridge" or "videoroom").
type RoomResult struct {
	Status string
	Room   ID
}

func (r *PluginResponse) Room() (RoomResult, error) {
	if r == nil || len(r.Data) == 0 {
		return RoomResult{}, fmt.Errorf("janus: empty plugin data")
	}
	var body struct {
		AudioBridge string `json:"audiobridge"`
		VideoRoom   string `json:"videoroom"`
		Room        ID     `json:"room"`
	}
	if err := json.Unmarshal(r.Data, &body); err != nil {
		return RoomResult{}, fmt.Errorf("janus: decode room response: %w", err)
	}
	status := body.VideoRoom
	if status == "" {
		status = body.AudioBridge
	}
	return RoomResult{Status: status, Room: body.Room}, nil
}

// ServerInfo is the subset of the info response used for liveness.
type ServerInfo struct {
	Janus         string `json:"janus"`
	Name          string `json:"name"`
	Version       int    `json:"version"`
	VersionString string `json:"version_string"`
}
