package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Meet/internal/domain"
	"github.com/dkeye/Meet/internal/events"
	"github.com/dkeye/Meet/internal/store"
)

// WaitingRoom holds users waiting for a room owner to admit them.
type WaitingRoom struct {
	Store  *store.Store
	Events events.Publisher

	meetings *MeetingService
}

// Enqueue places a user in the meeting's waiting room and tells the room
// owners.
func (w *WaitingRoom) Enqueue(ctx context.Context, meetingID domain.MeetingID, userID domain.UserID, queueID domain.QueueID) error {
	m, err := w.Store.GetMeeting(ctx, meetingID)
	if err != nil {
		return err
	}
	if err := w.Store.AddWaiting(ctx, domain.NewWaitingParticipant(meetingID, userID, queueID)); err != nil {
		return err
	}
	log.Info().Str("module", "app.waiting").Str("meeting", string(meetingID)).Str("user", string(userID)).Msg("queued")

	owners, err := w.Store.ListRoomOwners(ctx, m.RoomID)
	if err != nil {
		log.Warn().Str("module", "app.waiting").Str("room", string(m.RoomID)).Err(err).Msg("list owners")
		return nil
	}
	events.Fanout(ctx, w.Events, owners, events.MeetingWaitingParticipantJoined{MeetingID: meetingID, UserID: userID})
	return nil
}

// GetQueue returns the waiting users in arrival order.
func (w *WaitingRoom) GetQueue(ctx context.Context, meetingID domain.MeetingID) ([]domain.UserID, error) {
	if _, err := w.Store.GetMeeting(ctx, meetingID); err != nil {
		return nil, err
	}
	entries, err := w.Store.ListWaiting(ctx, meetingID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.UserID, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.UserID)
	}
	return out, nil
}

// UpdateQueue admits or rejects a waiting user. Only a room owner may decide.
// An accepted user joins with audio and video off.
func (w *WaitingRoom) UpdateQueue(ctx context.Context, meetingID domain.MeetingID, userID domain.UserID, status domain.WaitingStatus, actor domain.UserID) error {
	m, err := w.Store.GetMeeting(ctx, meetingID)
	if err != nil {
		return err
	}
	if err := w.meetings.requireOwner(ctx, m.RoomID, actor); err != nil {
		return err
	}
	entry, err := w.Store.GetWaiting(ctx, meetingID, userID)
	if err != nil {
		return err
	}

	var ev events.Event
	switch status {
	case domain.WaitingAccepted:
		if err := w.meetings.join(ctx, m, userID, entry.QueueID, false, false); err != nil {
			return err
		}
		ev = events.MeetingUserAccepted{MeetingID: meetingID}
	case domain.WaitingRejected:
		ev = events.MeetingUserRejected{MeetingID: meetingID}
	default:
		return domain.Invalid("waiting status %q", status)
	}

	if err := w.Store.DeleteWaiting(ctx, meetingID, userID); err != nil {
		return err
	}
	log.Info().Str("module", "app.waiting").Str("meeting", string(meetingID)).Str("user", string(userID)).
		Str("status", string(status)).Str("by", string(actor)).Msg("queue updated")
	if err := w.Events.Publish(ctx, userID, ev); err != nil {
		log.Warn().Str("module", "app.waiting").Str("user", string(userID)).Err(err).Msg("notify waiting user")
	}
	return nil
}

// ClearQueue rejects everyone still waiting.
func (w *WaitingRoom) ClearQueue(ctx context.Context, meetingID domain.MeetingID) (int, error) {
	entries, err := w.Store.ListWaiting(ctx, meetingID)
	if err != nil {
		return 0, err
	}
	if _, err := w.Store.ClearWaiting(ctx, meetingID); err != nil {
		return 0, err
	}
	for _, e := range entries {
		if err := w.Events.Publish(ctx, e.UserID, events.MeetingUserRejected{MeetingID: meetingID}); err != nil {
			log.Warn().Str("module", "app.waiting").Str("user", string(e.UserID)).Err(err).Msg("notify waiting user")
		}
	}
	return len(entries), nil
}

// RemoveFromQueue drops the entries registered from a closed client channel.
func (w *WaitingRoom) RemoveFromQueue(ctx context.Context, queueID domain.QueueID) error {
	removed, err := w.Store.RemoveWaitingByQueue(ctx, queueID)
	if err != nil {
		return err
	}
	for _, e := range removed {
		log.Info().Str("module", "app.waiting").Str("meeting", string(e.MeetingID)).Str("user", string(e.UserID)).Msg("left waiting room")
	}
	return nil
}
