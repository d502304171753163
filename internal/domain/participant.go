package domain

import "time"

// Participant is a user's membership record within a meeting.
type Participant struct {
	MeetingID      MeetingID `gorm:"type:varchar(64);primaryKey" json:"meetingId"`
	UserID         UserID    `gorm:"type:varchar(64);primaryKey" json:"userId"`
	QueueID        QueueID   `gorm:"type:varchar(64);not null;index" json:"queueId"`
	AudioStreamOn  bool      `gorm:"not null;default:false" json:"audioStreamEnabled"`
	VideoStreamOn  bool      `gorm:"not null;default:false" json:"videoStreamEnabled"`
	ScreenStreamOn bool      `gorm:"not null;default:false" json:"screenStreamEnabled"`
	CreatedAt      time.Time `json:"joinedAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

func (Participant) TableName() string { return "participants" }

// StreamOn returns the flag for the given media type.
func (p *Participant) StreamOn(mt MediaType) bool {
	switch mt {
	case MediaAudio:
		return p.AudioStreamOn
	case MediaVideo:
		return p.VideoStreamOn
	case MediaScreen:
		return p.ScreenStreamOn
	}
	return false
}

func (p *Participant) SetStream(mt MediaType, on bool) {
	switch mt {
	case MediaAudio:
		p.AudioStreamOn = on
	case MediaVideo:
		p.VideoStreamOn = on
	case MediaScreen:
		p.ScreenStreamOn = on
	}
}
