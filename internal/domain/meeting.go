package domain

import (
	"time"

	"github.com/google/uuid"
)

type MeetingID string

type MeetingType string

const (
	MeetingTypeScheduled MeetingType = "scheduled"
	MeetingTypePermanent MeetingType = "permanent"
)

func (t MeetingType) Valid() bool {
	return t == MeetingTypeScheduled || t == MeetingTypePermanent
}

// Meeting is a standing video/audio session tied to one room.
type Meeting struct {
	ID          MeetingID   `gorm:"type:varchar(64);primaryKey" json:"id"`
	RoomID      RoomID      `gorm:"type:varchar(64);not null;uniqueIndex" json:"roomId"`
	Name        string      `gorm:"size:255" json:"name"`
	MeetingType MeetingType `gorm:"size:16;not null" json:"meetingType"`
	Active      bool        `gorm:"not null;default:false" json:"active"`
	ExpiresAt   *time.Time  `json:"expiration,omitempty"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

func (Meeting) TableName() string { return "meetings" }

func NewMeeting(roomID RoomID, name string, typ MeetingType, expiresAt *time.Time) *Meeting {
	return &Meeting{
		ID:          MeetingID(uuid.NewString()),
		RoomID:      roomID,
		Name:        name,
		MeetingType: typ,
		ExpiresAt:   expiresAt,
	}
}

// RequiresAdmission reports whether a non-member must pass the waiting room.
func (m *Meeting) RequiresAdmission() bool {
	return m.MeetingType == MeetingTypeScheduled
}

// VideoServerMeeting mirrors the media-server state owned by a meeting: one
// administrative connection and the audio/video room pair created through it.
// A row exists only when both rooms were created.
type VideoServerMeeting struct {
	MeetingID     MeetingID `gorm:"type:varchar(64);primaryKey"`
	ConnectionID  string    `gorm:"size:64;not null"`
	AudioHandleID string    `gorm:"size:64;not null"`
	VideoHandleID string    `gorm:"size:64;not null"`
	AudioRoomID   string    `gorm:"size:64;not null;index"`
	VideoRoomID   string    `gorm:"size:64;not null;index"`
	CreatedAt     time.Time
}

func (VideoServerMeeting) TableName() string { return "video_server_meetings" }
