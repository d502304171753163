// Package events defines the domain events delivered to clients and the
// contract for publishing them to a user.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Meet/internal/domain"
)

type Event interface {
	EventType() string
}

// Publisher delivers an event to every client channel of a user.
type Publisher interface {
	Publish(ctx context.Context, userID domain.UserID, ev Event) error
}

type envelope struct {
	Type    string `json:"type"`
	Payload Event  `json:"payload"`
}

// Encode serializes an event as {"type": ..., "payload": {...}}, the frame
// format client channels pass through verbatim.
func Encode(ev Event) ([]byte, error) {
	b, err := json.Marshal(envelope{Type: ev.EventType(), Payload: ev})
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", ev.EventType(), err)
	}
	return b, nil
}

// Fanout publishes ev to each user. Failures are logged per recipient and do
// not stop delivery to the others.
func Fanout(ctx context.Context, pub Publisher, users []domain.UserID, ev Event) {
	for _, u := range users {
		if err := pub.Publish(ctx, u, ev); err != nil {
			log.Warn().Str("module", "events").Str("event", ev.EventType()).Str("user", string(u)).Err(err).Msg("publish failed")
		}
	}
}

type MeetingCreated struct {
	MeetingID   domain.MeetingID   `json:"meetingId"`
	RoomID      domain.RoomID      `json:"roomId"`
	Name        string             `json:"name"`
	MeetingType domain.MeetingType `json:"meetingType"`
}

func (MeetingCreated) EventType() string { return "MeetingCreated" }

type MeetingDeleted struct {
	MeetingID domain.MeetingID `json:"meetingId"`
	RoomID    domain.RoomID    `json:"roomId"`
}

func (MeetingDeleted) EventType() string { return "MeetingDeleted" }

type MeetingParticipantJoined struct {
	MeetingID     domain.MeetingID `json:"meetingId"`
	UserID        domain.UserID    `json:"userId"`
	AudioStreamOn bool             `json:"audioStreamEnabled"`
	VideoStreamOn bool             `json:"videoStreamEnabled"`
}

func (MeetingParticipantJoined) EventType() string { return "MeetingParticipantJoined" }

type MeetingParticipantLeft struct {
	MeetingID domain.MeetingID `json:"meetingId"`
	UserID    domain.UserID    `json:"userId"`
}

func (MeetingParticipantLeft) EventType() string { return "MeetingParticipantLeft" }

type MeetingAudioStreamChanged struct {
	MeetingID domain.MeetingID `json:"meetingId"`
	UserID    domain.UserID    `json:"userId"`
	Enabled   bool             `json:"enabled"`
}

func (MeetingAudioStreamChanged) EventType() string { return "MeetingAudioStreamChanged" }

type MeetingMediaStreamChanged struct {
	MeetingID domain.MeetingID `json:"meetingId"`
	UserID    domain.UserID    `json:"userId"`
	MediaType domain.MediaType `json:"mediaType"`
	Active    bool             `json:"active"`
}

func (MeetingMediaStreamChanged) EventType() string { return "MeetingMediaStreamChanged" }

type MeetingParticipantTalking struct {
	MeetingID domain.MeetingID `json:"meetingId"`
	UserID    domain.UserID    `json:"userId"`
	Talking   bool             `json:"talking"`
}

func (MeetingParticipantTalking) EventType() string { return "MeetingParticipantTalking" }

type SubscribedStream struct {
	MediaType domain.MediaType `json:"mediaType"`
	UserID    domain.UserID    `json:"userId"`
	Mid       string           `json:"mid"`
}

type MeetingParticipantSubscribed struct {
	MeetingID domain.MeetingID   `json:"meetingId"`
	Streams   []SubscribedStream `json:"streams"`
}

func (MeetingParticipantSubscribed) EventType() string { return "MeetingParticipantSubscribed" }

type MeetingSdpOffered struct {
	MeetingID domain.MeetingID `json:"meetingId"`
	MediaType domain.MediaType `json:"mediaType"`
	SDP       string           `json:"sdp"`
}

func (MeetingSdpOffered) EventType() string { return "MeetingSdpOffered" }

type MeetingSdpAnswered struct {
	MeetingID domain.MeetingID `json:"meetingId"`
	MediaType domain.MediaType `json:"mediaType"`
	SDP       string           `json:"sdp"`
}

func (MeetingSdpAnswered) EventType() string { return "MeetingSdpAnswered" }

type MeetingAudioAnswered struct {
	MeetingID domain.MeetingID `json:"meetingId"`
	SDP       string           `json:"sdp"`
}

func (MeetingAudioAnswered) EventType() string { return "MeetingAudioAnswered" }

type MeetingWaitingParticipantJoined struct {
	MeetingID domain.MeetingID `json:"meetingId"`
	UserID    domain.UserID    `json:"userId"`
}

func (MeetingWaitingParticipantJoined) EventType() string { return "MeetingWaitingParticipantJoined" }

type MeetingUserAccepted struct {
	MeetingID domain.MeetingID `json:"meetingId"`
}

func (MeetingUserAccepted) EventType() string { return "MeetingUserAccepted" }

type MeetingUserRejected struct {
	MeetingID domain.MeetingID `json:"meetingId"`
}

func (MeetingUserRejected) EventType() string { return "MeetingUserRejected" }
