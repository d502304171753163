package http

import (
	"context"
	"fmt"
	stdhttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/dkeye/Meet/internal/app"
	"github.com/dkeye/Meet/internal/config"
	"github.com/dkeye/Meet/internal/domain"
)

type fakeMeetings struct {
	MeetingAPI

	calls   []string
	err     error
	outcome app.JoinOutcome
}

func (f *fakeMeetings) record(format string, args ...any) error {
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
	return f.err
}

func (f *fakeMeetings) GetMeeting(_ context.Context, id domain.MeetingID) (*domain.Meeting, error) {
	if err := f.record("get %s", id); err != nil {
		return nil, err
	}
	return &domain.Meeting{ID: id, RoomID: "r1", MeetingType: domain.MeetingTypePermanent}, nil
}

func (f *fakeMeetings) JoinMeeting(_ context.Context, actor domain.UserID, q domain.QueueID, id domain.MeetingID, audio, video bool) (app.JoinOutcome, error) {
	return f.outcome, f.record("join %s %s %s %t %t", actor, q, id, audio, video)
}

func (f *fakeMeetings) EnableVideoStream(_ context.Context, actor domain.UserID, id domain.MeetingID, enable bool) error {
	return f.record("video %s %s %t", actor, id, enable)
}

func (f *fakeMeetings) UpdateAudioStream(_ context.Context, actor domain.UserID, id domain.MeetingID, sdp string) error {
	return f.record("audio-offer %s %s", actor, id)
}

func (f *fakeMeetings) UpdateMediaStream(_ context.Context, actor domain.UserID, id domain.MeetingID, mt domain.MediaType, sdp string) error {
	return f.record("media-offer %s %s %s", actor, id, mt)
}

func (f *fakeMeetings) UpdateQueue(_ context.Context, id domain.MeetingID, user domain.UserID, st domain.WaitingStatus, actor domain.UserID) error {
	return f.record("queue %s %s %s by %s", id, user, st, actor)
}

func (f *fakeMeetings) UpdateSubscriptions(_ context.Context, actor domain.UserID, id domain.MeetingID, sub, unsub []domain.StreamSelector) error {
	return f.record("subs %s %d %d", actor, len(sub), len(unsub))
}

type client struct {
	t      *testing.T
	r      *gin.Engine
	cookie string
}

func newClient(t *testing.T, meetings MeetingAPI) *client {
	return newClientWithLimiter(t, meetings, nil)
}

func newClientWithLimiter(t *testing.T, meetings MeetingAPI, limiter *UserRateLimiter) *client {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{Mode: "test", Secret: "test-secret"}
	return &client{t: t, r: SetupRouter(context.Background(), cfg, Deps{Meetings: meetings, JoinLimiter: limiter})}
}

func (c *client) do(method, path, body string) *httptest.ResponseRecorder {
	c.t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if c.cookie != "" {
		req.Header.Set("Cookie", c.cookie)
	}
	w := httptest.NewRecorder()
	c.r.ServeHTTP(w, req)
	return w
}

func (c *client) login(user string) {
	c.t.Helper()
	w := c.do(stdhttp.MethodPost, "/api/login", `{"userId":"`+user+`"}`)
	if w.Code != stdhttp.StatusOK {
		c.t.Fatalf("login = %d %s", w.Code, w.Body)
	}
	c.cookie = strings.Split(w.Header().Get("Set-Cookie"), ";")[0]
	if c.cookie == "" {
		c.t.Fatal("no session cookie")
	}
}

func TestRequiresSession(t *testing.T) {
	f := &fakeMeetings{}
	c := newClient(t, f)
	if w := c.do(stdhttp.MethodGet, "/api/meetings/m1", ""); w.Code != stdhttp.StatusUnauthorized {
		t.Fatalf("anonymous = %d", w.Code)
	}
	if len(f.calls) != 0 {
		t.Fatalf("service reached: %v", f.calls)
	}

	c.login("alice")
	if w := c.do(stdhttp.MethodGet, "/api/meetings/m1", ""); w.Code != stdhttp.StatusOK {
		t.Fatalf("logged in = %d %s", w.Code, w.Body)
	}
}

func TestLoginRejectsEmptyUser(t *testing.T) {
	c := newClient(t, &fakeMeetings{})
	if w := c.do(stdhttp.MethodPost, "/api/login", `{"userId":""}`); w.Code != stdhttp.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{domain.NotFound("meeting m1"), stdhttp.StatusNotFound},
		{domain.Conflict("already joined"), stdhttp.StatusConflict},
		{domain.Forbidden("not owner"), stdhttp.StatusForbidden},
		{domain.Invalid("bad sdp"), stdhttp.StatusBadRequest},
		{&domain.SignalingError{Step: "attach", Entity: "connection 1", Err: fmt.Errorf("boom")}, stdhttp.StatusBadGateway},
		{fmt.Errorf("db down"), stdhttp.StatusInternalServerError},
	}
	for _, tc := range cases {
		f := &fakeMeetings{err: tc.err}
		c := newClient(t, f)
		c.login("alice")
		if w := c.do(stdhttp.MethodGet, "/api/meetings/m1", ""); w.Code != tc.want {
			t.Errorf("%v: status = %d, want %d", tc.err, w.Code, tc.want)
		}
	}
}

func TestJoinOutcome(t *testing.T) {
	f := &fakeMeetings{outcome: app.JoinWaiting}
	c := newClient(t, f)
	c.login("bob")

	w := c.do(stdhttp.MethodPost, "/api/meetings/m1/join", `{"queueId":"q1","audio":true}`)
	if w.Code != stdhttp.StatusAccepted || !strings.Contains(w.Body.String(), `"waiting"`) {
		t.Fatalf("join = %d %s", w.Code, w.Body)
	}
	if f.calls[0] != "join bob q1 m1 true false" {
		t.Fatalf("calls = %v", f.calls)
	}

	if w := c.do(stdhttp.MethodPost, "/api/meetings/m1/join", `{}`); w.Code != stdhttp.StatusBadRequest {
		t.Fatalf("join without queue = %d", w.Code)
	}
}

func TestStreamRoutes(t *testing.T) {
	f := &fakeMeetings{}
	c := newClient(t, f)
	c.login("alice")

	if w := c.do(stdhttp.MethodPut, "/api/meetings/m1/streams/video", `{"enable":true}`); w.Code != stdhttp.StatusNoContent {
		t.Fatalf("toggle = %d %s", w.Code, w.Body)
	}
	if w := c.do(stdhttp.MethodPut, "/api/meetings/m1/streams/video", `{}`); w.Code != stdhttp.StatusBadRequest {
		t.Fatalf("toggle without flag = %d", w.Code)
	}
	if w := c.do(stdhttp.MethodPut, "/api/meetings/m1/streams/hologram", `{"enable":true}`); w.Code != stdhttp.StatusBadRequest {
		t.Fatalf("unknown media = %d", w.Code)
	}
	if w := c.do(stdhttp.MethodPost, "/api/meetings/m1/streams/audio/offer", `{"sdp":"v=0"}`); w.Code != stdhttp.StatusAccepted {
		t.Fatalf("audio offer = %d", w.Code)
	}
	if w := c.do(stdhttp.MethodPost, "/api/meetings/m1/streams/screen/offer", `{"sdp":"v=0"}`); w.Code != stdhttp.StatusAccepted {
		t.Fatalf("screen offer = %d", w.Code)
	}
	if w := c.do(stdhttp.MethodPut, "/api/meetings/m1/subscriptions", `{"subscribe":[{"userId":"bob","mediaType":"video"}]}`); w.Code != stdhttp.StatusAccepted {
		t.Fatalf("subscriptions = %d %s", w.Code, w.Body)
	}
	if w := c.do(stdhttp.MethodPut, "/api/meetings/m1/subscriptions", `{"subscribe":[{"userId":"bob","mediaType":"smell"}]}`); w.Code != stdhttp.StatusBadRequest {
		t.Fatalf("bad subscription = %d", w.Code)
	}

	want := []string{"video alice m1 true", "audio-offer alice m1", "media-offer alice m1 screen", "subs alice 1 0"}
	if strings.Join(f.calls, "|") != strings.Join(want, "|") {
		t.Fatalf("calls = %v", f.calls)
	}
}

func TestUpdateQueue(t *testing.T) {
	f := &fakeMeetings{}
	c := newClient(t, f)
	c.login("owner")

	if w := c.do(stdhttp.MethodPut, "/api/meetings/m1/queue/bob", `{"status":"accepted"}`); w.Code != stdhttp.StatusNoContent {
		t.Fatalf("accept = %d %s", w.Code, w.Body)
	}
	if w := c.do(stdhttp.MethodPut, "/api/meetings/m1/queue/bob", `{"status":"queued"}`); w.Code != stdhttp.StatusBadRequest {
		t.Fatalf("requeue = %d", w.Code)
	}
	if f.calls[0] != "queue m1 bob accepted by owner" {
		t.Fatalf("calls = %v", f.calls)
	}
}
