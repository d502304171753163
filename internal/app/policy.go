package app

import "github.com/dkeye/Meet/internal/domain"

type AdmissionAction int

const (
	AdmitJoin AdmissionAction = iota
	AdmitWait
)

// Policy decides whether a user joins a meeting directly or waits for an
// owner. member is nil when the user does not belong to the meeting's room.
type Policy interface {
	OnJoin(meeting *domain.Meeting, member *domain.RoomMember) AdmissionAction
}

// SimplePolicy sends non-members of scheduled meetings to the waiting room.
type SimplePolicy struct{}

func (SimplePolicy) OnJoin(meeting *domain.Meeting, member *domain.RoomMember) AdmissionAction {
	if member == nil && meeting.RequiresAdmission() {
		return AdmitWait
	}
	return AdmitJoin
}
