package store

import (
	"context"

	"gorm.io/gorm/clause"

	"github.com/dkeye/Meet/internal/domain"
)

// UpsertRoomMember records membership. Used by seeding; room CRUD lives
// outside this service.
func (s *Store) UpsertRoomMember(ctx context.Context, m *domain.RoomMember) error {
	err := s.conn(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "room_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"owner"}),
	}).Create(m).Error
	return translate(err, "room member %s in %s", m.UserID, m.RoomID)
}

func (s *Store) GetRoomMember(ctx context.Context, roomID domain.RoomID, userID domain.UserID) (*domain.RoomMember, error) {
	var m domain.RoomMember
	if err := s.conn(ctx).Where("room_id = ? AND user_id = ?", roomID, userID).First(&m).Error; err != nil {
		return nil, translate(err, "room member %s in %s", userID, roomID)
	}
	return &m, nil
}

func (s *Store) ListRoomOwners(ctx context.Context, roomID domain.RoomID) ([]domain.UserID, error) {
	var out []domain.UserID
	err := s.conn(ctx).Model(&domain.RoomMember{}).
		Where("room_id = ? AND owner = ?", roomID, true).
		Order("user_id").
		Pluck("user_id", &out).Error
	return out, translate(err, "owners of room %s", roomID)
}

func (s *Store) ListRoomMembers(ctx context.Context, roomID domain.RoomID) ([]domain.UserID, error) {
	var out []domain.UserID
	err := s.conn(ctx).Model(&domain.RoomMember{}).
		Where("room_id = ?", roomID).
		Order("user_id").
		Pluck("user_id", &out).Error
	return out, translate(err, "members of room %s", roomID)
}
