package store

import (
	"context"

	"github.com/dkeye/Meet/internal/domain"
)

func (s *Store) CreateMeeting(ctx context.Context, m *domain.Meeting) error {
	return translate(s.conn(ctx).Create(m).Error, "meeting for room %s", m.RoomID)
}

func (s *Store) GetMeeting(ctx context.Context, id domain.MeetingID) (*domain.Meeting, error) {
	var m domain.Meeting
	if err := s.conn(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, translate(err, "meeting %s", id)
	}
	return &m, nil
}

func (s *Store) GetMeetingByRoom(ctx context.Context, roomID domain.RoomID) (*domain.Meeting, error) {
	var m domain.Meeting
	if err := s.conn(ctx).Where("room_id = ?", roomID).First(&m).Error; err != nil {
		return nil, translate(err, "meeting for room %s", roomID)
	}
	return &m, nil
}

func (s *Store) SetMeetingActive(ctx context.Context, id domain.MeetingID, active bool) error {
	res := s.conn(ctx).Model(&domain.Meeting{}).Where("id = ?", id).Update("active", active)
	if res.Error != nil {
		return translate(res.Error, "meeting %s", id)
	}
	if res.RowsAffected == 0 {
		return domain.NotFound("meeting %s", id)
	}
	return nil
}

// DeleteMeeting removes the meeting with its participants, waiting entries
// and any participant media rows left behind.
func (s *Store) DeleteMeeting(ctx context.Context, id domain.MeetingID) error {
	return s.Transaction(ctx, func(ctx context.Context) error {
		db := s.conn(ctx)
		if err := db.Where("meeting_id = ?", id).Delete(&domain.Participant{}).Error; err != nil {
			return translate(err, "participants of %s", id)
		}
		if err := db.Where("meeting_id = ?", id).Delete(&domain.WaitingParticipant{}).Error; err != nil {
			return translate(err, "waiting room of %s", id)
		}
		if err := db.Where("meeting_id = ?", id).Delete(&domain.VideoServerSession{}).Error; err != nil {
			return translate(err, "video server sessions of %s", id)
		}
		res := db.Where("id = ?", id).Delete(&domain.Meeting{})
		if res.Error != nil {
			return translate(res.Error, "meeting %s", id)
		}
		if res.RowsAffected == 0 {
			return domain.NotFound("meeting %s", id)
		}
		return nil
	})
}

func (s *Store) CreateVideoServerMeeting(ctx context.Context, m *domain.VideoServerMeeting) error {
	return translate(s.conn(ctx).Create(m).Error, "video server meeting %s", m.MeetingID)
}

func (s *Store) GetVideoServerMeeting(ctx context.Context, id domain.MeetingID) (*domain.VideoServerMeeting, error) {
	var m domain.VideoServerMeeting
	if err := s.conn(ctx).Where("meeting_id = ?", id).First(&m).Error; err != nil {
		return nil, translate(err, "video server meeting %s", id)
	}
	return &m, nil
}

// FindVideoServerMeetingByRoom resolves a media-server room (audio or video)
// to its meeting.
func (s *Store) FindVideoServerMeetingByRoom(ctx context.Context, roomID string) (*domain.VideoServerMeeting, error) {
	var m domain.VideoServerMeeting
	err := s.conn(ctx).Where("audio_room_id = ? OR video_room_id = ?", roomID, roomID).First(&m).Error
	if err != nil {
		return nil, translate(err, "video server room %s", roomID)
	}
	return &m, nil
}

func (s *Store) DeleteVideoServerMeeting(ctx context.Context, id domain.MeetingID) error {
	res := s.conn(ctx).Where("meeting_id = ?", id).Delete(&domain.VideoServerMeeting{})
	if res.Error != nil {
		return translate(res.Error, "video server meeting %s", id)
	}
	if res.RowsAffected == 0 {
		return domain.NotFound("video server meeting %s", id)
	}
	return nil
}
