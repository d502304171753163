package domain

import (
	"fmt"
	"strings"
	"time"
)

type MediaType string

const (
	MediaAudio  MediaType = "audio"
	MediaVideo  MediaType = "video"
	MediaScreen MediaType = "screen"
)

func ParseMediaType(s string) (MediaType, error) {
	switch mt := MediaType(strings.ToLower(s)); mt {
	case MediaAudio, MediaVideo, MediaScreen:
		return mt, nil
	}
	return "", fmt.Errorf("unknown media type %q", s)
}

// HandleKind names one of the four plugin-handle slots of a session.
type HandleKind int

const (
	HandleNone HandleKind = iota
	HandleAudio
	HandleVideoOut
	HandleVideoIn
	HandleScreen
)

func (k HandleKind) String() string {
	switch k {
	case HandleAudio:
		return "audio"
	case HandleVideoOut:
		return "video_out"
	case HandleVideoIn:
		return "video_in"
	case HandleScreen:
		return "screen"
	}
	return "none"
}

// FeedID builds the media-server feed identifier `<userId>/<mediaType>`.
func FeedID(userID UserID, mt MediaType) string {
	return string(userID) + "/" + string(mt)
}

// ParseFeedID splits a `<userId>/<mediaType>` identifier.
func ParseFeedID(feed string) (UserID, MediaType, error) {
	i := strings.LastIndexByte(feed, '/')
	if i <= 0 || i == len(feed)-1 {
		return "", "", fmt.Errorf("malformed feed id %q", feed)
	}
	mt, err := ParseMediaType(feed[i+1:])
	if err != nil {
		return "", "", err
	}
	return UserID(feed[:i]), mt, nil
}

// StreamSelector names one stream of a participant's feed.
type StreamSelector struct {
	UserID    UserID    `json:"userId"`
	MediaType MediaType `json:"mediaType"`
	Mid       string    `json:"mid,omitempty"`
}

// VideoServerSession is the media-server state of one participant: one
// connection and up to four plugin handles, each empty until attached.
// Handles are meaningless without the connection; the whole row goes away
// when the connection is destroyed.
type VideoServerSession struct {
	UserID            UserID    `gorm:"type:varchar(64);primaryKey"`
	MeetingID         MeetingID `gorm:"type:varchar(64);primaryKey"`
	QueueID           QueueID   `gorm:"type:varchar(64);not null;index"`
	ConnectionID      string    `gorm:"size:64;not null;index"`
	AudioHandleID     string    `gorm:"size:64"`
	VideoOutHandleID  string    `gorm:"size:64"`
	VideoInHandleID   string    `gorm:"size:64"`
	ScreenHandleID    string    `gorm:"size:64"`
	AudioStreamOn     bool      `gorm:"not null;default:false"`
	VideoOutStreamOn  bool      `gorm:"not null;default:false"`
	ScreenStreamOn    bool      `gorm:"not null;default:false"`
	VideoInSubscribed bool      `gorm:"not null;default:false"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (VideoServerSession) TableName() string { return "video_server_sessions" }

// HandleKind resolves which slot a media-server handle id occupies.
func (s *VideoServerSession) HandleKind(handleID string) HandleKind {
	if handleID == "" {
		return HandleNone
	}
	switch handleID {
	case s.AudioHandleID:
		return HandleAudio
	case s.VideoOutHandleID:
		return HandleVideoOut
	case s.VideoInHandleID:
		return HandleVideoIn
	case s.ScreenHandleID:
		return HandleScreen
	}
	return HandleNone
}

// Handle returns the handle id stored in a slot.
func (s *VideoServerSession) Handle(k HandleKind) string {
	switch k {
	case HandleAudio:
		return s.AudioHandleID
	case HandleVideoOut:
		return s.VideoOutHandleID
	case HandleVideoIn:
		return s.VideoInHandleID
	case HandleScreen:
		return s.ScreenHandleID
	}
	return ""
}

func (s *VideoServerSession) SetHandle(k HandleKind, id string) {
	switch k {
	case HandleAudio:
		s.AudioHandleID = id
	case HandleVideoOut:
		s.VideoOutHandleID = id
	case HandleVideoIn:
		s.VideoInHandleID = id
	case HandleScreen:
		s.ScreenHandleID = id
	}
}

// AttachedHandles lists the non-empty handle ids.
func (s *VideoServerSession) AttachedHandles() []string {
	out := make([]string, 0, 4)
	for _, k := range []HandleKind{HandleAudio, HandleVideoOut, HandleVideoIn, HandleScreen} {
		if id := s.Handle(k); id != "" {
			out = append(out, id)
		}
	}
	return out
}

// StreamOn returns the persisted stream flag of the slot publishing mt.
func (s *VideoServerSession) StreamOn(mt MediaType) bool {
	switch mt {
	case MediaAudio:
		return s.AudioStreamOn
	case MediaVideo:
		return s.VideoOutStreamOn
	case MediaScreen:
		return s.ScreenStreamOn
	}
	return false
}

func (s *VideoServerSession) SetStream(mt MediaType, on bool) {
	switch mt {
	case MediaAudio:
		s.AudioStreamOn = on
	case MediaVideo:
		s.VideoOutStreamOn = on
	case MediaScreen:
		s.ScreenStreamOn = on
	}
}

// PublisherHandle maps a media type to the slot publishing it.
func PublisherHandle(mt MediaType) HandleKind {
	switch mt {
	case MediaAudio:
		return HandleAudio
	case MediaVideo:
		return HandleVideoOut
	case MediaScreen:
		return HandleScreen
	}
	return HandleNone
}
