package domain

type RoomID string

// RoomMember is read-only reference data: which users belong to a room and
// who owns it. Room CRUD lives outside this service.
type RoomMember struct {
	RoomID RoomID `gorm:"type:varchar(64);primaryKey" json:"roomId"`
	UserID UserID `gorm:"type:varchar(64);primaryKey" json:"userId"`
	Owner  bool   `gorm:"not null;default:false" json:"owner"`
}

func (RoomMember) TableName() string { return "room_members" }
