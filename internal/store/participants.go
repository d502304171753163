package store

import (
	"context"

	"github.com/dkeye/Meet/internal/domain"
)

func (s *Store) AddParticipant(ctx context.Context, p *domain.Participant) error {
	return translate(s.conn(ctx).Create(p).Error, "participant %s in %s", p.UserID, p.MeetingID)
}

func (s *Store) GetParticipant(ctx context.Context, meetingID domain.MeetingID, userID domain.UserID) (*domain.Participant, error) {
	var p domain.Participant
	err := s.conn(ctx).Where("meeting_id = ? AND user_id = ?", meetingID, userID).First(&p).Error
	if err != nil {
		return nil, translate(err, "participant %s in %s", userID, meetingID)
	}
	return &p, nil
}

func (s *Store) ListParticipants(ctx context.Context, meetingID domain.MeetingID) ([]domain.Participant, error) {
	var out []domain.Participant
	err := s.conn(ctx).Where("meeting_id = ?", meetingID).Order("created_at, user_id").Find(&out).Error
	return out, translate(err, "participants of %s", meetingID)
}

func (s *Store) ListParticipantsByQueue(ctx context.Context, queueID domain.QueueID) ([]domain.Participant, error) {
	var out []domain.Participant
	err := s.conn(ctx).Where("queue_id = ?", queueID).Find(&out).Error
	return out, translate(err, "participants on queue %s", queueID)
}

func (s *Store) CountParticipants(ctx context.Context, meetingID domain.MeetingID) (int64, error) {
	var n int64
	err := s.conn(ctx).Model(&domain.Participant{}).Where("meeting_id = ?", meetingID).Count(&n).Error
	return n, translate(err, "participants of %s", meetingID)
}

func (s *Store) SaveParticipant(ctx context.Context, p *domain.Participant) error {
	return translate(s.conn(ctx).Save(p).Error, "participant %s in %s", p.UserID, p.MeetingID)
}

func (s *Store) RemoveParticipant(ctx context.Context, meetingID domain.MeetingID, userID domain.UserID) error {
	res := s.conn(ctx).Where("meeting_id = ? AND user_id = ?", meetingID, userID).Delete(&domain.Participant{})
	if res.Error != nil {
		return translate(res.Error, "participant %s in %s", userID, meetingID)
	}
	if res.RowsAffected == 0 {
		return domain.NotFound("participant %s in %s", userID, meetingID)
	}
	return nil
}
