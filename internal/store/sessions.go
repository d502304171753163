package store

import (
	"context"

	"github.com/dkeye/Meet/internal/domain"
)

func (s *Store) CreateSession(ctx context.Context, vs *domain.VideoServerSession) error {
	return translate(s.conn(ctx).Create(vs).Error, "video server session %s in %s", vs.UserID, vs.MeetingID)
}

func (s *Store) GetSession(ctx context.Context, userID domain.UserID, meetingID domain.MeetingID) (*domain.VideoServerSession, error) {
	var vs domain.VideoServerSession
	err := s.conn(ctx).Where("user_id = ? AND meeting_id = ?", userID, meetingID).First(&vs).Error
	if err != nil {
		return nil, translate(err, "video server session %s in %s", userID, meetingID)
	}
	return &vs, nil
}

func (s *Store) GetSessionByConnection(ctx context.Context, connectionID string) (*domain.VideoServerSession, error) {
	var vs domain.VideoServerSession
	if err := s.conn(ctx).Where("connection_id = ?", connectionID).First(&vs).Error; err != nil {
		return nil, translate(err, "video server connection %s", connectionID)
	}
	return &vs, nil
}

func (s *Store) SaveSession(ctx context.Context, vs *domain.VideoServerSession) error {
	return translate(s.conn(ctx).Save(vs).Error, "video server session %s in %s", vs.UserID, vs.MeetingID)
}

func (s *Store) DeleteSession(ctx context.Context, userID domain.UserID, meetingID domain.MeetingID) error {
	res := s.conn(ctx).Where("user_id = ? AND meeting_id = ?", userID, meetingID).Delete(&domain.VideoServerSession{})
	if res.Error != nil {
		return translate(res.Error, "video server session %s in %s", userID, meetingID)
	}
	if res.RowsAffected == 0 {
		return domain.NotFound("video server session %s in %s", userID, meetingID)
	}
	return nil
}
