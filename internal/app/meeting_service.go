package app

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Meet/internal/domain"
	"github.com/dkeye/Meet/internal/events"
	"github.com/dkeye/Meet/internal/store"
)

// MediaOrchestrator is the media-server side of a meeting.
type MediaOrchestrator interface {
	CreateMeeting(ctx context.Context, meetingID domain.MeetingID) (*domain.VideoServerMeeting, error)
	DeleteMeeting(ctx context.Context, meetingID domain.MeetingID) error
	JoinMeeting(ctx context.Context, userID domain.UserID, queueID domain.QueueID, meetingID domain.MeetingID, videoOn, audioOn bool) (*domain.VideoServerSession, error)
	LeaveMeeting(ctx context.Context, userID domain.UserID, meetingID domain.MeetingID) error
	EnableVideoStream(ctx context.Context, userID domain.UserID, meetingID domain.MeetingID, enable bool) (*domain.VideoServerSession, error)
	EnableAudioStream(ctx context.Context, userID domain.UserID, meetingID domain.MeetingID, enable bool) (*domain.VideoServerSession, error)
	EnableScreenShareStream(ctx context.Context, userID domain.UserID, meetingID domain.MeetingID, enable bool) (*domain.VideoServerSession, error)
	UpdateMediaStream(ctx context.Context, userID domain.UserID, meetingID domain.MeetingID, mt domain.MediaType, sdpOffer string) error
	UpdateAudioStream(ctx context.Context, userID domain.UserID, meetingID domain.MeetingID, sdpOffer string) error
	AnswerRtcMediaStream(ctx context.Context, userID domain.UserID, meetingID domain.MeetingID, sdpAnswer string) error
	UpdateSubscriptionsMediaStream(ctx context.Context, userID domain.UserID, meetingID domain.MeetingID, subscribe, unsubscribe []domain.StreamSelector) (*domain.VideoServerSession, error)
	DestroyConnection(ctx context.Context, connectionID string) error
}

type JoinOutcome string

const (
	JoinJoined  JoinOutcome = "joined"
	JoinWaiting JoinOutcome = "waiting"
)

// MeetingService owns meeting lifecycle and participation. It keeps the
// persisted participants and the media server in step and tells the other
// participants what changed.
type MeetingService struct {
	Store   *store.Store
	Media   MediaOrchestrator
	Events  events.Publisher
	Policy  Policy
	Waiting *WaitingRoom

	// Channels, when set, restricts joins to event channels the actor owns.
	Channels *Registry

	locks *KeyedMutex
}

func NewMeetingService(st *store.Store, media MediaOrchestrator, pub events.Publisher, policy Policy) *MeetingService {
	if policy == nil {
		policy = SimplePolicy{}
	}
	s := &MeetingService{Store: st, Media: media, Events: pub, Policy: policy, locks: NewKeyedMutex()}
	s.Waiting = &WaitingRoom{Store: st, Events: pub, meetings: s}
	return s
}

// CreateMeeting creates the room's meeting and its media rooms. A media
// failure removes the meeting row and tears down any connection it opened.
func (s *MeetingService) CreateMeeting(ctx context.Context, actor domain.UserID, roomID domain.RoomID, name string, typ domain.MeetingType, expiresAt *time.Time) (*domain.Meeting, error) {
	if !typ.Valid() {
		return nil, domain.Invalid("meeting type %q", typ)
	}
	if _, err := s.member(ctx, roomID, actor); err != nil {
		return nil, err
	}

	defer s.locks.Lock("room:" + string(roomID))()

	m := domain.NewMeeting(roomID, name, typ, expiresAt)
	if err := s.Store.CreateMeeting(ctx, m); err != nil {
		return nil, err
	}

	if _, err := s.Media.CreateMeeting(ctx, m.ID); err != nil {
		cctx, cancel := compensationContext(ctx)
		defer cancel()
		var serr *domain.SignalingError
		if errors.As(err, &serr) && serr.ConnectionID != "" {
			if derr := s.Media.DestroyConnection(cctx, serr.ConnectionID); derr != nil {
				log.Error().Str("module", "app.meetings").Str("meeting", string(m.ID)).Err(derr).Msg("compensating teardown failed")
			}
		}
		if derr := s.Store.DeleteMeeting(cctx, m.ID); derr != nil {
			log.Error().Str("module", "app.meetings").Str("meeting", string(m.ID)).Err(derr).Msg("remove meeting after media failure")
		}
		return nil, err
	}

	log.Info().Str("module", "app.meetings").Str("meeting", string(m.ID)).Str("room", string(roomID)).Msg("meeting created")
	s.notifyRoom(ctx, roomID, events.MeetingCreated{MeetingID: m.ID, RoomID: roomID, Name: m.Name, MeetingType: m.MeetingType})
	return m, nil
}

// DeleteMeeting disconnects every participant, rejects the waiting room and
// removes the media rooms. Only a room owner may delete.
func (s *MeetingService) DeleteMeeting(ctx context.Context, actor domain.UserID, meetingID domain.MeetingID) error {
	m, err := s.Store.GetMeeting(ctx, meetingID)
	if err != nil {
		return err
	}
	if err := s.requireOwner(ctx, m.RoomID, actor); err != nil {
		return err
	}

	defer s.locks.Lock(meetingKey(meetingID))()

	participants, err := s.Store.ListParticipants(ctx, meetingID)
	if err != nil {
		return err
	}
	for _, p := range participants {
		if err := s.Media.LeaveMeeting(ctx, p.UserID, meetingID); err != nil && !errors.Is(err, domain.ErrNotFound) {
			log.Warn().Str("module", "app.meetings").Str("meeting", string(meetingID)).Str("user", string(p.UserID)).Err(err).Msg("disconnect on delete")
		}
	}
	if _, err := s.Waiting.ClearQueue(ctx, meetingID); err != nil {
		log.Warn().Str("module", "app.meetings").Str("meeting", string(meetingID)).Err(err).Msg("clear waiting room on delete")
	}
	if err := s.Media.DeleteMeeting(ctx, meetingID); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	if err := s.Store.DeleteMeeting(ctx, meetingID); err != nil {
		return err
	}

	log.Info().Str("module", "app.meetings").Str("meeting", string(meetingID)).Msg("meeting deleted")
	ev := events.MeetingDeleted{MeetingID: meetingID, RoomID: m.RoomID}
	s.notifyRoom(ctx, m.RoomID, ev)
	events.Fanout(ctx, s.Events, nonMembers(participants, s.roomMembers(ctx, m.RoomID)), ev)
	return nil
}

func (s *MeetingService) GetMeeting(ctx context.Context, meetingID domain.MeetingID) (*domain.Meeting, error) {
	return s.Store.GetMeeting(ctx, meetingID)
}

func (s *MeetingService) GetMeetingByRoom(ctx context.Context, roomID domain.RoomID) (*domain.Meeting, error) {
	return s.Store.GetMeetingByRoom(ctx, roomID)
}

func (s *MeetingService) ListParticipants(ctx context.Context, meetingID domain.MeetingID) ([]domain.Participant, error) {
	if _, err := s.Store.GetMeeting(ctx, meetingID); err != nil {
		return nil, err
	}
	return s.Store.ListParticipants(ctx, meetingID)
}

// JoinMeeting admits the user directly or places them in the waiting room,
// as the policy decides.
func (s *MeetingService) JoinMeeting(ctx context.Context, actor domain.UserID, queueID domain.QueueID, meetingID domain.MeetingID, audio, video bool) (JoinOutcome, error) {
	if s.Channels != nil {
		if owner, ok := s.Channels.UserOf(queueID); !ok || owner != actor {
			return "", domain.NotFound("event channel %s of user %s", queueID, actor)
		}
	}
	m, err := s.Store.GetMeeting(ctx, meetingID)
	if err != nil {
		return "", err
	}
	if _, err := s.Store.GetParticipant(ctx, meetingID, actor); err == nil {
		return "", domain.Conflict("user %s already in meeting %s", actor, meetingID)
	}
	member, err := s.Store.GetRoomMember(ctx, m.RoomID, actor)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return "", err
	}

	if s.Policy.OnJoin(m, member) == AdmitWait {
		if err := s.Waiting.Enqueue(ctx, meetingID, actor, queueID); err != nil {
			return "", err
		}
		return JoinWaiting, nil
	}
	if err := s.join(ctx, m, actor, queueID, audio, video); err != nil {
		return "", err
	}
	return JoinJoined, nil
}

func (s *MeetingService) join(ctx context.Context, m *domain.Meeting, userID domain.UserID, queueID domain.QueueID, audio, video bool) error {
	defer s.locks.Lock(meetingKey(m.ID))()

	// Session and participant rows commit together; the connection is torn
	// down if they do not.
	var connectionID string
	p := &domain.Participant{MeetingID: m.ID, UserID: userID, QueueID: queueID, AudioStreamOn: audio, VideoStreamOn: video}
	err := s.Store.Transaction(ctx, func(ctx context.Context) error {
		vs, err := s.Media.JoinMeeting(ctx, userID, queueID, m.ID, video, audio)
		if err != nil {
			return err
		}
		connectionID = vs.ConnectionID
		if err := s.Store.AddParticipant(ctx, p); err != nil {
			return err
		}
		n, err := s.Store.CountParticipants(ctx, m.ID)
		if err != nil {
			return err
		}
		if n == 1 {
			return s.Store.SetMeetingActive(ctx, m.ID, true)
		}
		return nil
	})
	if err != nil {
		if connectionID != "" {
			cctx, cancel := compensationContext(ctx)
			defer cancel()
			if derr := s.Media.DestroyConnection(cctx, connectionID); derr != nil {
				log.Error().Str("module", "app.meetings").Str("meeting", string(m.ID)).Str("user", string(userID)).Err(derr).Msg("compensating teardown failed")
			}
		}
		return err
	}

	log.Info().Str("module", "app.meetings").Str("meeting", string(m.ID)).Str("user", string(userID)).Msg("participant joined")
	s.notifyOthers(ctx, m.ID, userID, events.MeetingParticipantJoined{
		MeetingID: m.ID, UserID: userID, AudioStreamOn: audio, VideoStreamOn: video,
	})
	return nil
}

func (s *MeetingService) LeaveMeeting(ctx context.Context, actor domain.UserID, meetingID domain.MeetingID) error {
	defer s.locks.Lock(meetingKey(meetingID))()

	if _, err := s.Store.GetParticipant(ctx, meetingID, actor); err != nil {
		return err
	}
	if err := s.Media.LeaveMeeting(ctx, actor, meetingID); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return err
	}

	err := s.Store.Transaction(ctx, func(ctx context.Context) error {
		if err := s.Store.RemoveParticipant(ctx, meetingID, actor); err != nil {
			return err
		}
		n, err := s.Store.CountParticipants(ctx, meetingID)
		if err != nil {
			return err
		}
		if n == 0 {
			return s.Store.SetMeetingActive(ctx, meetingID, false)
		}
		return nil
	})
	if err != nil {
		return err
	}

	log.Info().Str("module", "app.meetings").Str("meeting", string(meetingID)).Str("user", string(actor)).Msg("participant left")
	s.notifyOthers(ctx, meetingID, actor, events.MeetingParticipantLeft{MeetingID: meetingID, UserID: actor})
	return nil
}

// LeaveByQueue removes every participation registered from a client
// channel. Each meeting is handled independently.
func (s *MeetingService) LeaveByQueue(ctx context.Context, queueID domain.QueueID) error {
	participants, err := s.Store.ListParticipantsByQueue(ctx, queueID)
	if err != nil {
		return err
	}
	var errs []error
	for _, p := range participants {
		if err := s.LeaveMeeting(ctx, p.UserID, p.MeetingID); err != nil {
			log.Warn().Str("module", "app.meetings").Str("queue", string(queueID)).Str("meeting", string(p.MeetingID)).Err(err).Msg("leave by queue")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *MeetingService) EnableAudioStream(ctx context.Context, actor domain.UserID, meetingID domain.MeetingID, enable bool) error {
	return s.toggle(ctx, actor, meetingID, domain.MediaAudio, enable, s.Media.EnableAudioStream)
}

func (s *MeetingService) EnableVideoStream(ctx context.Context, actor domain.UserID, meetingID domain.MeetingID, enable bool) error {
	return s.toggle(ctx, actor, meetingID, domain.MediaVideo, enable, s.Media.EnableVideoStream)
}

func (s *MeetingService) EnableScreenShareStream(ctx context.Context, actor domain.UserID, meetingID domain.MeetingID, enable bool) error {
	return s.toggle(ctx, actor, meetingID, domain.MediaScreen, enable, s.Media.EnableScreenShareStream)
}

type toggleFunc func(ctx context.Context, userID domain.UserID, meetingID domain.MeetingID, enable bool) (*domain.VideoServerSession, error)

func (s *MeetingService) toggle(ctx context.Context, actor domain.UserID, meetingID domain.MeetingID, mt domain.MediaType, enable bool, fn toggleFunc) error {
	defer s.locks.Lock(meetingKey(meetingID))()

	p, err := s.Store.GetParticipant(ctx, meetingID, actor)
	if err != nil {
		return err
	}
	if _, err := fn(ctx, actor, meetingID, enable); err != nil {
		return err
	}
	changed := p.StreamOn(mt) != enable
	p.SetStream(mt, enable)
	if err := s.Store.SaveParticipant(ctx, p); err != nil {
		return err
	}
	if mt == domain.MediaAudio && changed {
		s.notifyOthers(ctx, meetingID, actor, events.MeetingAudioStreamChanged{MeetingID: meetingID, UserID: actor, Enabled: enable})
	}
	return nil
}

func (s *MeetingService) UpdateMediaStream(ctx context.Context, actor domain.UserID, meetingID domain.MeetingID, mt domain.MediaType, sdpOffer string) error {
	defer s.locks.Lock(meetingKey(meetingID))()

	if _, err := s.Store.GetParticipant(ctx, meetingID, actor); err != nil {
		return err
	}
	return s.Media.UpdateMediaStream(ctx, actor, meetingID, mt, sdpOffer)
}

func (s *MeetingService) UpdateAudioStream(ctx context.Context, actor domain.UserID, meetingID domain.MeetingID, sdpOffer string) error {
	defer s.locks.Lock(meetingKey(meetingID))()

	if _, err := s.Store.GetParticipant(ctx, meetingID, actor); err != nil {
		return err
	}
	return s.Media.UpdateAudioStream(ctx, actor, meetingID, sdpOffer)
}

func (s *MeetingService) AnswerRtcMediaStream(ctx context.Context, actor domain.UserID, meetingID domain.MeetingID, sdpAnswer string) error {
	defer s.locks.Lock(meetingKey(meetingID))()

	if _, err := s.Store.GetParticipant(ctx, meetingID, actor); err != nil {
		return err
	}
	return s.Media.AnswerRtcMediaStream(ctx, actor, meetingID, sdpAnswer)
}

func (s *MeetingService) UpdateSubscriptions(ctx context.Context, actor domain.UserID, meetingID domain.MeetingID, subscribe, unsubscribe []domain.StreamSelector) error {
	defer s.locks.Lock(meetingKey(meetingID))()

	if _, err := s.Store.GetParticipant(ctx, meetingID, actor); err != nil {
		return err
	}
	_, err := s.Media.UpdateSubscriptionsMediaStream(ctx, actor, meetingID, subscribe, unsubscribe)
	return err
}

// GetQueue lists the users waiting to be admitted, in arrival order.
func (s *MeetingService) GetQueue(ctx context.Context, meetingID domain.MeetingID) ([]domain.UserID, error) {
	return s.Waiting.GetQueue(ctx, meetingID)
}

func (s *MeetingService) UpdateQueue(ctx context.Context, meetingID domain.MeetingID, userID domain.UserID, status domain.WaitingStatus, actor domain.UserID) error {
	return s.Waiting.UpdateQueue(ctx, meetingID, userID, status, actor)
}

func (s *MeetingService) member(ctx context.Context, roomID domain.RoomID, userID domain.UserID) (*domain.RoomMember, error) {
	m, err := s.Store.GetRoomMember(ctx, roomID, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.Forbidden("user %s is not a member of room %s", userID, roomID)
	}
	return m, err
}

func (s *MeetingService) requireOwner(ctx context.Context, roomID domain.RoomID, userID domain.UserID) error {
	m, err := s.member(ctx, roomID, userID)
	if err != nil {
		return err
	}
	if !m.Owner {
		return domain.Forbidden("user %s does not own room %s", userID, roomID)
	}
	return nil
}

func (s *MeetingService) roomMembers(ctx context.Context, roomID domain.RoomID) []domain.UserID {
	users, err := s.Store.ListRoomMembers(ctx, roomID)
	if err != nil {
		log.Warn().Str("module", "app.meetings").Str("room", string(roomID)).Err(err).Msg("list room members")
	}
	return users
}

func (s *MeetingService) notifyRoom(ctx context.Context, roomID domain.RoomID, ev events.Event) {
	events.Fanout(ctx, s.Events, s.roomMembers(ctx, roomID), ev)
}

// notifyOthers sends ev to every participant of the meeting except one.
func (s *MeetingService) notifyOthers(ctx context.Context, meetingID domain.MeetingID, except domain.UserID, ev events.Event) {
	participants, err := s.Store.ListParticipants(ctx, meetingID)
	if err != nil {
		log.Warn().Str("module", "app.meetings").Str("meeting", string(meetingID)).Err(err).Msg("list participants")
		return
	}
	users := make([]domain.UserID, 0, len(participants))
	for _, p := range participants {
		if p.UserID != except {
			users = append(users, p.UserID)
		}
	}
	events.Fanout(ctx, s.Events, users, ev)
}

func nonMembers(participants []domain.Participant, members []domain.UserID) []domain.UserID {
	seen := make(map[domain.UserID]struct{}, len(members))
	for _, u := range members {
		seen[u] = struct{}{}
	}
	var out []domain.UserID
	for _, p := range participants {
		if _, ok := seen[p.UserID]; !ok {
			out = append(out, p.UserID)
		}
	}
	return out
}

func meetingKey(id domain.MeetingID) string { return "meeting:" + string(id) }

const compensationTimeout = 10 * time.Second

// compensationContext keeps the caller's values but not its cancellation, so
// undoing a half-done operation still runs after the request went away.
func compensationContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
}
