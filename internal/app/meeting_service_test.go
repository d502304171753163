package app

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/dkeye/Meet/internal/domain"
	"github.com/dkeye/Meet/internal/events/eventstest"
	"github.com/dkeye/Meet/internal/store"
)

type fakeMedia struct {
	mu        sync.Mutex
	meetings  map[domain.MeetingID]bool
	sessions  map[string]string
	destroyed []string
	createErr error
	calls     []string
}

func newFakeMedia() *fakeMedia {
	return &fakeMedia{meetings: map[domain.MeetingID]bool{}, sessions: map[string]string{}}
}

func sessionKey(u domain.UserID, m domain.MeetingID) string { return string(m) + "/" + string(u) }

func (f *fakeMedia) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeMedia) CreateMeeting(_ context.Context, id domain.MeetingID) (*domain.VideoServerMeeting, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.meetings[id] = true
	return &domain.VideoServerMeeting{MeetingID: id}, nil
}

func (f *fakeMedia) DeleteMeeting(_ context.Context, id domain.MeetingID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.meetings[id] {
		return domain.NotFound("meeting %s", id)
	}
	delete(f.meetings, id)
	return nil
}

func (f *fakeMedia) JoinMeeting(_ context.Context, u domain.UserID, q domain.QueueID, m domain.MeetingID, video, audio bool) (*domain.VideoServerSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.meetings[m] {
		return nil, domain.NotFound("meeting %s", m)
	}
	key := sessionKey(u, m)
	if _, ok := f.sessions[key]; ok {
		return nil, domain.Conflict("session")
	}
	f.sessions[key] = "conn-" + key
	return &domain.VideoServerSession{UserID: u, MeetingID: m, QueueID: q, ConnectionID: f.sessions[key]}, nil
}

func (f *fakeMedia) LeaveMeeting(_ context.Context, u domain.UserID, m domain.MeetingID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.sessions[sessionKey(u, m)]; !ok {
		return domain.NotFound("session")
	}
	delete(f.sessions, sessionKey(u, m))
	return nil
}

func (f *fakeMedia) toggle(name string) (*domain.VideoServerSession, error) {
	f.record(name)
	return &domain.VideoServerSession{}, nil
}

func (f *fakeMedia) EnableVideoStream(context.Context, domain.UserID, domain.MeetingID, bool) (*domain.VideoServerSession, error) {
	return f.toggle("video")
}

func (f *fakeMedia) EnableAudioStream(context.Context, domain.UserID, domain.MeetingID, bool) (*domain.VideoServerSession, error) {
	return f.toggle("audio")
}

func (f *fakeMedia) EnableScreenShareStream(context.Context, domain.UserID, domain.MeetingID, bool) (*domain.VideoServerSession, error) {
	return f.toggle("screen")
}

func (f *fakeMedia) UpdateMediaStream(context.Context, domain.UserID, domain.MeetingID, domain.MediaType, string) error {
	f.record("publish")
	return nil
}

func (f *fakeMedia) UpdateAudioStream(context.Context, domain.UserID, domain.MeetingID, string) error {
	f.record("configure")
	return nil
}

func (f *fakeMedia) AnswerRtcMediaStream(context.Context, domain.UserID, domain.MeetingID, string) error {
	f.record("start")
	return nil
}

func (f *fakeMedia) UpdateSubscriptionsMediaStream(context.Context, domain.UserID, domain.MeetingID, []domain.StreamSelector, []domain.StreamSelector) (*domain.VideoServerSession, error) {
	return f.toggle("subscribe")
}

func (f *fakeMedia) DestroyConnection(_ context.Context, conn string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.destroyed = append(f.destroyed, conn)
	for k, c := range f.sessions {
		if c == conn {
			delete(f.sessions, k)
		}
	}
	return nil
}

type fixture struct {
	svc   *MeetingService
	media *fakeMedia
	rec   *eventstest.Recorder
	st    *store.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := store.OpenInMemory(t.Name())
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	ctx := context.Background()
	for _, m := range []domain.RoomMember{
		{RoomID: "r1", UserID: "owner", Owner: true},
		{RoomID: "r1", UserID: "alice"},
		{RoomID: "r1", UserID: "bob"},
	} {
		if err := st.UpsertRoomMember(ctx, &m); err != nil {
			t.Fatal(err)
		}
	}
	media := newFakeMedia()
	rec := &eventstest.Recorder{}
	return &fixture{svc: NewMeetingService(st, media, rec, nil), media: media, rec: rec, st: st}
}

func (f *fixture) meeting(t *testing.T, typ domain.MeetingType) *domain.Meeting {
	t.Helper()
	m, err := f.svc.CreateMeeting(context.Background(), "owner", "r1", "weekly", typ, nil)
	if err != nil {
		t.Fatalf("create meeting: %v", err)
	}
	return m
}

func TestCreateMeetingRequiresMembership(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreateMeeting(context.Background(), "mallory", "r1", "x", domain.MeetingTypePermanent, nil)
	if !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("err = %v, want forbidden", err)
	}
}

func TestCreateMeetingOnePerRoom(t *testing.T) {
	f := newFixture(t)
	m := f.meeting(t, domain.MeetingTypePermanent)
	if got := f.rec.Recipients("MeetingCreated"); len(got) != 3 {
		t.Fatalf("created recipients = %v", got)
	}
	_, err := f.svc.CreateMeeting(context.Background(), "alice", "r1", "again", domain.MeetingTypePermanent, nil)
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("err = %v, want conflict", err)
	}
	if got, _ := f.svc.GetMeetingByRoom(context.Background(), "r1"); got.ID != m.ID {
		t.Fatalf("room meeting = %+v", got)
	}
}

func TestCreateMeetingCompensatesSignalingFailure(t *testing.T) {
	f := newFixture(t)
	f.media.createErr = &domain.SignalingError{Step: "create video room", Entity: "meeting", ConnectionID: "c9", Err: errors.New("boom")}

	_, err := f.svc.CreateMeeting(context.Background(), "owner", "r1", "x", domain.MeetingTypePermanent, nil)
	if !errors.Is(err, domain.ErrSignaling) {
		t.Fatalf("err = %v, want signaling", err)
	}
	if len(f.media.destroyed) != 1 || f.media.destroyed[0] != "c9" {
		t.Fatalf("destroyed = %v", f.media.destroyed)
	}
	if _, err := f.svc.GetMeetingByRoom(context.Background(), "r1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("meeting kept after failure: %v", err)
	}
}

func TestJoinLeaveTracksActive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.meeting(t, domain.MeetingTypePermanent)

	for _, u := range []domain.UserID{"alice", "bob"} {
		out, err := f.svc.JoinMeeting(ctx, u, domain.QueueID("q-"+u), m.ID, true, false)
		if err != nil || out != JoinJoined {
			t.Fatalf("join %s = %s, %v", u, out, err)
		}
	}
	if _, err := f.svc.JoinMeeting(ctx, "alice", "q-x", m.ID, true, false); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("rejoin err = %v", err)
	}
	got, _ := f.svc.GetMeeting(ctx, m.ID)
	if !got.Active {
		t.Fatal("meeting should be active")
	}
	if r := f.rec.Recipients("MeetingParticipantJoined"); len(r) != 1 || r[0] != "alice" {
		t.Fatalf("joined recipients = %v", r)
	}

	if err := f.svc.LeaveMeeting(ctx, "alice", m.ID); err != nil {
		t.Fatal(err)
	}
	if r := f.rec.Recipients("MeetingParticipantLeft"); len(r) != 1 || r[0] != "bob" {
		t.Fatalf("left recipients = %v", r)
	}
	got, _ = f.svc.GetMeeting(ctx, m.ID)
	if !got.Active {
		t.Fatal("meeting should stay active with one participant")
	}

	if err := f.svc.LeaveByQueue(ctx, "q-bob"); err != nil {
		t.Fatal(err)
	}
	got, _ = f.svc.GetMeeting(ctx, m.ID)
	if got.Active {
		t.Fatal("meeting should be inactive")
	}
	if err := f.svc.LeaveMeeting(ctx, "bob", m.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("second leave err = %v", err)
	}
}

func TestAudioToggleNotifiesOthers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.meeting(t, domain.MeetingTypePermanent)
	for _, u := range []domain.UserID{"alice", "bob"} {
		if _, err := f.svc.JoinMeeting(ctx, u, domain.QueueID("q-"+u), m.ID, false, false); err != nil {
			t.Fatal(err)
		}
	}

	if err := f.svc.EnableAudioStream(ctx, "alice", m.ID, true); err != nil {
		t.Fatal(err)
	}
	if err := f.svc.EnableAudioStream(ctx, "alice", m.ID, true); err != nil {
		t.Fatal(err)
	}
	if r := f.rec.Recipients("MeetingAudioStreamChanged"); len(r) != 1 || r[0] != "bob" {
		t.Fatalf("audio recipients = %v", r)
	}
	p, _ := f.st.GetParticipant(ctx, m.ID, "alice")
	if !p.AudioStreamOn {
		t.Fatal("participant flag not persisted")
	}

	if err := f.svc.EnableVideoStream(ctx, "mallory", m.ID, true); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("non participant err = %v", err)
	}
}

func TestDeleteMeeting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.meeting(t, domain.MeetingTypeScheduled)
	if _, err := f.svc.JoinMeeting(ctx, "alice", "q-a", m.ID, false, false); err != nil {
		t.Fatal(err)
	}
	if out, err := f.svc.JoinMeeting(ctx, "guest", "q-g", m.ID, false, false); err != nil || out != JoinWaiting {
		t.Fatalf("guest join = %s, %v", out, err)
	}

	if err := f.svc.DeleteMeeting(ctx, "alice", m.ID); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("non owner delete err = %v", err)
	}
	if err := f.svc.DeleteMeeting(ctx, "owner", m.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := f.svc.GetMeeting(ctx, m.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("meeting kept: %v", err)
	}
	if len(f.media.sessions) != 0 || len(f.media.meetings) != 0 {
		t.Fatalf("media state left: %+v %+v", f.media.sessions, f.media.meetings)
	}
	if r := f.rec.Recipients("MeetingUserRejected"); len(r) != 1 || r[0] != "guest" {
		t.Fatalf("rejected recipients = %v", r)
	}
}

func TestJoinRequiresOwnEventChannel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.meeting(t, domain.MeetingTypePermanent)
	f.svc.Channels = NewRegistry()
	f.svc.Channels.Bind("q-alice", "alice", nil)

	for _, q := range []domain.QueueID{"not-a-channel", "q-alice"} {
		if _, err := f.svc.JoinMeeting(ctx, "bob", q, m.ID, false, false); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("join via %s err = %v, want not found", q, err)
		}
	}
	if _, err := f.st.GetParticipant(ctx, m.ID, "bob"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("participant added: %v", err)
	}
	if len(f.media.sessions) != 0 {
		t.Fatalf("media sessions = %v", f.media.sessions)
	}
	if out, err := f.svc.JoinMeeting(ctx, "alice", "q-alice", m.ID, false, false); err != nil || out != JoinJoined {
		t.Fatalf("owner join = %s, %v", out, err)
	}
}
