package http

import (
	"context"
	"errors"
	stdhttp "net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Meet/internal/app"
	"github.com/dkeye/Meet/internal/domain"
)

// MeetingAPI is the meeting surface the REST handlers expose.
type MeetingAPI interface {
	CreateMeeting(ctx context.Context, actor domain.UserID, roomID domain.RoomID, name string, typ domain.MeetingType, expiresAt *time.Time) (*domain.Meeting, error)
	DeleteMeeting(ctx context.Context, actor domain.UserID, meetingID domain.MeetingID) error
	GetMeeting(ctx context.Context, meetingID domain.MeetingID) (*domain.Meeting, error)
	GetMeetingByRoom(ctx context.Context, roomID domain.RoomID) (*domain.Meeting, error)
	ListParticipants(ctx context.Context, meetingID domain.MeetingID) ([]domain.Participant, error)
	JoinMeeting(ctx context.Context, actor domain.UserID, queueID domain.QueueID, meetingID domain.MeetingID, audio, video bool) (app.JoinOutcome, error)
	LeaveMeeting(ctx context.Context, actor domain.UserID, meetingID domain.MeetingID) error
	EnableAudioStream(ctx context.Context, actor domain.UserID, meetingID domain.MeetingID, enable bool) error
	EnableVideoStream(ctx context.Context, actor domain.UserID, meetingID domain.MeetingID, enable bool) error
	EnableScreenShareStream(ctx context.Context, actor domain.UserID, meetingID domain.MeetingID, enable bool) error
	UpdateMediaStream(ctx context.Context, actor domain.UserID, meetingID domain.MeetingID, mt domain.MediaType, sdpOffer string) error
	UpdateAudioStream(ctx context.Context, actor domain.UserID, meetingID domain.MeetingID, sdpOffer string) error
	AnswerRtcMediaStream(ctx context.Context, actor domain.UserID, meetingID domain.MeetingID, sdpAnswer string) error
	UpdateSubscriptions(ctx context.Context, actor domain.UserID, meetingID domain.MeetingID, subscribe, unsubscribe []domain.StreamSelector) error
	GetQueue(ctx context.Context, meetingID domain.MeetingID) ([]domain.UserID, error)
	UpdateQueue(ctx context.Context, meetingID domain.MeetingID, userID domain.UserID, status domain.WaitingStatus, actor domain.UserID) error
}

type meetingHandlers struct {
	svc MeetingAPI
}

// statusOf maps domain errors to HTTP statuses.
func statusOf(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return stdhttp.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		return stdhttp.StatusConflict
	case errors.Is(err, domain.ErrForbidden):
		return stdhttp.StatusForbidden
	case errors.Is(err, domain.ErrInvalid):
		return stdhttp.StatusBadRequest
	case errors.Is(err, domain.ErrSignaling):
		return stdhttp.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return stdhttp.StatusGatewayTimeout
	}
	return stdhttp.StatusInternalServerError
}

func fail(c *gin.Context, err error) {
	status := statusOf(err)
	ev := log.Warn()
	if status >= stdhttp.StatusInternalServerError {
		ev = log.Error()
	}
	ev.Str("module", "adapters.http").Str("path", c.FullPath()).Int("status", status).Err(err).Msg("request failed")
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(stdhttp.StatusBadRequest, gin.H{"error": err.Error()})
}

func meetingID(c *gin.Context) domain.MeetingID {
	return domain.MeetingID(c.Param("id"))
}

type createMeetingRequest struct {
	RoomID      string     `json:"roomId" binding:"required"`
	Name        string     `json:"name"`
	MeetingType string     `json:"meetingType" binding:"required"`
	Expiration  *time.Time `json:"expiration"`
}

func (h *meetingHandlers) create(c *gin.Context) {
	var req createMeetingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	typ := domain.MeetingType(req.MeetingType)
	if !typ.Valid() {
		badRequest(c, domain.Invalid("meeting type %q", req.MeetingType))
		return
	}
	m, err := h.svc.CreateMeeting(c.Request.Context(), actor(c), domain.RoomID(req.RoomID), req.Name, typ, req.Expiration)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(stdhttp.StatusCreated, m)
}

func (h *meetingHandlers) get(c *gin.Context) {
	m, err := h.svc.GetMeeting(c.Request.Context(), meetingID(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(stdhttp.StatusOK, m)
}

func (h *meetingHandlers) getByRoom(c *gin.Context) {
	m, err := h.svc.GetMeetingByRoom(c.Request.Context(), domain.RoomID(c.Param("roomId")))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(stdhttp.StatusOK, m)
}

func (h *meetingHandlers) delete(c *gin.Context) {
	if err := h.svc.DeleteMeeting(c.Request.Context(), actor(c), meetingID(c)); err != nil {
		fail(c, err)
		return
	}
	c.Status(stdhttp.StatusNoContent)
}

func (h *meetingHandlers) participants(c *gin.Context) {
	ps, err := h.svc.ListParticipants(c.Request.Context(), meetingID(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(stdhttp.StatusOK, gin.H{"participants": ps, "count": len(ps)})
}

type joinRequest struct {
	QueueID string `json:"queueId" binding:"required"`
	Audio   bool   `json:"audio"`
	Video   bool   `json:"video"`
}

func (h *meetingHandlers) join(c *gin.Context) {
	var req joinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	out, err := h.svc.JoinMeeting(c.Request.Context(), actor(c), domain.QueueID(req.QueueID), meetingID(c), req.Audio, req.Video)
	if err != nil {
		fail(c, err)
		return
	}
	status := stdhttp.StatusOK
	if out == app.JoinWaiting {
		status = stdhttp.StatusAccepted
	}
	c.JSON(status, gin.H{"status": out})
}

func (h *meetingHandlers) leave(c *gin.Context) {
	if err := h.svc.LeaveMeeting(c.Request.Context(), actor(c), meetingID(c)); err != nil {
		fail(c, err)
		return
	}
	c.Status(stdhttp.StatusNoContent)
}

type toggleRequest struct {
	Enable *bool `json:"enable" binding:"required"`
}

func (h *meetingHandlers) toggleStream(c *gin.Context) {
	mt, err := domain.ParseMediaType(c.Param("media"))
	if err != nil {
		badRequest(c, err)
		return
	}
	var req toggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	ctx, uid, id := c.Request.Context(), actor(c), meetingID(c)
	switch mt {
	case domain.MediaAudio:
		err = h.svc.EnableAudioStream(ctx, uid, id, *req.Enable)
	case domain.MediaVideo:
		err = h.svc.EnableVideoStream(ctx, uid, id, *req.Enable)
	case domain.MediaScreen:
		err = h.svc.EnableScreenShareStream(ctx, uid, id, *req.Enable)
	}
	if err != nil {
		fail(c, err)
		return
	}
	c.Status(stdhttp.StatusNoContent)
}

type sdpRequest struct {
	SDP string `json:"sdp" binding:"required"`
}

func (h *meetingHandlers) offer(c *gin.Context) {
	mt, err := domain.ParseMediaType(c.Param("media"))
	if err != nil {
		badRequest(c, err)
		return
	}
	var req sdpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if mt == domain.MediaAudio {
		err = h.svc.UpdateAudioStream(c.Request.Context(), actor(c), meetingID(c), req.SDP)
	} else {
		err = h.svc.UpdateMediaStream(c.Request.Context(), actor(c), meetingID(c), mt, req.SDP)
	}
	if err != nil {
		fail(c, err)
		return
	}
	c.Status(stdhttp.StatusAccepted)
}

func (h *meetingHandlers) answer(c *gin.Context) {
	var req sdpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.svc.AnswerRtcMediaStream(c.Request.Context(), actor(c), meetingID(c), req.SDP); err != nil {
		fail(c, err)
		return
	}
	c.Status(stdhttp.StatusAccepted)
}

type subscriptionsRequest struct {
	Subscribe   []domain.StreamSelector `json:"subscribe"`
	Unsubscribe []domain.StreamSelector `json:"unsubscribe"`
}

func (h *meetingHandlers) subscriptions(c *gin.Context) {
	var req subscriptionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if len(req.Subscribe) == 0 && len(req.Unsubscribe) == 0 {
		badRequest(c, domain.Invalid("empty subscription update"))
		return
	}
	for _, s := range append(append([]domain.StreamSelector(nil), req.Subscribe...), req.Unsubscribe...) {
		if _, err := domain.ParseMediaType(string(s.MediaType)); err != nil || s.UserID == "" {
			badRequest(c, domain.Invalid("stream %s/%s", s.UserID, s.MediaType))
			return
		}
	}
	if err := h.svc.UpdateSubscriptions(c.Request.Context(), actor(c), meetingID(c), req.Subscribe, req.Unsubscribe); err != nil {
		fail(c, err)
		return
	}
	c.Status(stdhttp.StatusAccepted)
}

func (h *meetingHandlers) queue(c *gin.Context) {
	users, err := h.svc.GetQueue(c.Request.Context(), meetingID(c))
	if err != nil {
		fail(c, err)
		return
	}
	if users == nil {
		users = []domain.UserID{}
	}
	c.JSON(stdhttp.StatusOK, gin.H{"users": users})
}

type updateQueueRequest struct {
	Status string `json:"status" binding:"required"`
}

func (h *meetingHandlers) updateQueue(c *gin.Context) {
	var req updateQueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	status, err := domain.ParseWaitingStatus(req.Status)
	if err != nil || status == domain.WaitingQueued {
		badRequest(c, domain.Invalid("waiting status %q", req.Status))
		return
	}
	uid, err := domain.ParseUserID(c.Param("userId"))
	if err != nil {
		badRequest(c, err)
		return
	}
	if err := h.svc.UpdateQueue(c.Request.Context(), meetingID(c), uid, status, actor(c)); err != nil {
		fail(c, err)
		return
	}
	c.Status(stdhttp.StatusNoContent)
}
