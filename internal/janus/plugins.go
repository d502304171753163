package janus

// Request bodies for the audio-bridge and video-room plugins. Rooms and
// participant ids are strings: publisher feeds are named "<user>/<media>".

type CreateRoom struct {
	Request     string `json:"request"`
	Description string `json:"description,omitempty"`
	Publishers  int    `json:"publishers,omitempty"`
	Permanent   bool   `json:"permanent"`
}

func NewAudioRoom(description string) CreateRoom {
	return CreateRoom{Request: "create", Description: description}
}

func NewVideoRoom(description string, publishers int) CreateRoom {
	return CreateRoom{Request: "create", Description: description, Publishers: publishers}
}

type DestroyRoom struct {
	Request string `json:"request"`
	Room    ID     `json:"room"`
}

func NewDestroyRoom(room string) DestroyRoom {
	return DestroyRoom{Request: "destroy", Room: ID(room)}
}

type AudioJoin struct {
	Request string `json:"request"`
	Room    ID     `json:"room"`
	ID      ID     `json:"id"`
	Display string `json:"display,omitempty"`
	Muted   bool   `json:"muted"`
}

func NewAudioJoin(room, participant string, muted bool) AudioJoin {
	return AudioJoin{Request: "join", Room: ID(room), ID: ID(participant), Display: participant, Muted: muted}
}

type AudioConfigure struct {
	Request string `json:"request"`
	Muted   *bool  `json:"muted,omitempty"`
}

func NewAudioMute(muted bool) AudioConfigure {
	return AudioConfigure{Request: "configure", Muted: &muted}
}

func NewAudioConfigure() AudioConfigure {
	return AudioConfigure{Request: "configure"}
}

type PublisherJoin struct {
	Request string `json:"request"`
	PType   string `json:"ptype"`
	Room    ID     `json:"room"`
	ID      ID     `json:"id"`
	Display string `json:"display,omitempty"`
}

func NewPublisherJoin(room, feed string) PublisherJoin {
	return PublisherJoin{Request: "join", PType: "publisher", Room: ID(room), ID: ID(feed), Display: feed}
}

// SimpleRequest covers body-less requests: publish, unpublish, start.
type SimpleRequest struct {
	Request string `json:"request"`
}

func NewPublish() SimpleRequest   { return SimpleRequest{Request: "publish"} }
func NewUnpublish() SimpleRequest { return SimpleRequest{Request: "unpublish"} }
func NewStart() SimpleRequest     { return SimpleRequest{Request: "start"} }

// StreamRef names one stream of a publisher feed.
type StreamRef struct {
	Feed ID     `json:"feed"`
	Mid  string `json:"mid,omitempty"`
}

type SubscriberJoin struct {
	Request string      `json:"request"`
	PType   string      `json:"ptype"`
	Room    ID          `json:"room"`
	Streams []StreamRef `json:"streams"`
}

func NewSubscriberJoin(room string, streams []StreamRef) SubscriberJoin {
	if streams == nil {
		streams = []StreamRef{}
	}
	return SubscriberJoin{Request: "join", PType: "subscriber", Room: ID(room), Streams: streams}
}

type SubscriptionUpdate struct {
	Request     string      `json:"request"`
	Subscribe   []StreamRef `json:"subscribe,omitempty"`
	Unsubscribe []StreamRef `json:"unsubscribe,omitempty"`
}

func NewSubscriptionUpdate(subscribe, unsubscribe []StreamRef) SubscriptionUpdate {
	return SubscriptionUpdate{Request: "update", Subscribe: subscribe, Unsubscribe: unsubscribe}
}
