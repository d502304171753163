package store

import (
	"context"

	"github.com/dkeye/Meet/internal/domain"
)

func (s *Store) AddWaiting(ctx context.Context, w *domain.WaitingParticipant) error {
	return translate(s.conn(ctx).Create(w).Error, "waiting participant %s in %s", w.UserID, w.MeetingID)
}

func (s *Store) GetWaiting(ctx context.Context, meetingID domain.MeetingID, userID domain.UserID) (*domain.WaitingParticipant, error) {
	var w domain.WaitingParticipant
	err := s.conn(ctx).Where("meeting_id = ? AND user_id = ?", meetingID, userID).First(&w).Error
	if err != nil {
		return nil, translate(err, "waiting participant %s in %s", userID, meetingID)
	}
	return &w, nil
}

// ListWaiting returns the queued entries of a meeting in arrival order.
func (s *Store) ListWaiting(ctx context.Context, meetingID domain.MeetingID) ([]domain.WaitingParticipant, error) {
	var out []domain.WaitingParticipant
	err := s.conn(ctx).
		Where("meeting_id = ? AND status = ?", meetingID, domain.WaitingQueued).
		Order("id").
		Find(&out).Error
	return out, translate(err, "waiting room of %s", meetingID)
}

func (s *Store) DeleteWaiting(ctx context.Context, meetingID domain.MeetingID, userID domain.UserID) error {
	res := s.conn(ctx).Where("meeting_id = ? AND user_id = ?", meetingID, userID).Delete(&domain.WaitingParticipant{})
	if res.Error != nil {
		return translate(res.Error, "waiting participant %s in %s", userID, meetingID)
	}
	if res.RowsAffected == 0 {
		return domain.NotFound("waiting participant %s in %s", userID, meetingID)
	}
	return nil
}

func (s *Store) ClearWaiting(ctx context.Context, meetingID domain.MeetingID) (int64, error) {
	res := s.conn(ctx).Where("meeting_id = ?", meetingID).Delete(&domain.WaitingParticipant{})
	return res.RowsAffected, translate(res.Error, "waiting room of %s", meetingID)
}

// RemoveWaitingByQueue deletes every entry registered from a client channel
// and returns what was removed.
func (s *Store) RemoveWaitingByQueue(ctx context.Context, queueID domain.QueueID) ([]domain.WaitingParticipant, error) {
	var out []domain.WaitingParticipant
	err := s.Transaction(ctx, func(ctx context.Context) error {
		db := s.conn(ctx)
		if err := db.Where("queue_id = ?", queueID).Find(&out).Error; err != nil {
			return err
		}
		if len(out) == 0 {
			return nil
		}
		return db.Where("queue_id = ?", queueID).Delete(&domain.WaitingParticipant{}).Error
	})
	return out, translate(err, "waiting entries on queue %s", queueID)
}
