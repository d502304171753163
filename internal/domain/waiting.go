package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

type WaitingStatus string

const (
	WaitingQueued   WaitingStatus = "queued"
	WaitingAccepted WaitingStatus = "accepted"
	WaitingRejected WaitingStatus = "rejected"
)

func ParseWaitingStatus(s string) (WaitingStatus, error) {
	switch st := WaitingStatus(strings.ToLower(s)); st {
	case WaitingQueued, WaitingAccepted, WaitingRejected:
		return st, nil
	}
	return "", fmt.Errorf("unknown waiting status %q", s)
}

// WaitingParticipant is a user waiting for owner approval. IDs are ULIDs so
// ordering by id is ordering by arrival.
type WaitingParticipant struct {
	ID        string        `gorm:"size:26;primaryKey" json:"id"`
	MeetingID MeetingID     `gorm:"type:varchar(64);not null;uniqueIndex:idx_waiting_meeting_user" json:"meetingId"`
	UserID    UserID        `gorm:"type:varchar(64);not null;uniqueIndex:idx_waiting_meeting_user" json:"userId"`
	QueueID   QueueID       `gorm:"type:varchar(64);not null;index" json:"queueId"`
	Status    WaitingStatus `gorm:"size:16;not null" json:"status"`
	CreatedAt time.Time     `json:"createdAt"`
}

func (WaitingParticipant) TableName() string { return "waiting_participants" }

func NewWaitingParticipant(meetingID MeetingID, userID UserID, queueID QueueID) *WaitingParticipant {
	return &WaitingParticipant{
		ID:        ulid.Make().String(),
		MeetingID: meetingID,
		UserID:    userID,
		QueueID:   queueID,
		Status:    WaitingQueued,
	}
}
