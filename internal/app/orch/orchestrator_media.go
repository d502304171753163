package orch

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Meet/internal/domain"
	"github.com/dkeye/Meet/internal/janus"
)

func refs(in []domain.StreamSelector) []janus.StreamRef {
	if len(in) == 0 {
		return nil
	}
	out := make([]janus.StreamRef, 0, len(in))
	for _, s := range in {
		out = append(out, janus.StreamRef{Feed: janus.ID(domain.FeedID(s.UserID, s.MediaType)), Mid: s.Mid})
	}
	return out
}

// JoinMeeting opens the participant's connection and joins the video room
// as a publisher so the participant is told about other feeds.
func (o *Orchestrator) JoinMeeting(ctx context.Context, userID domain.UserID, queueID domain.QueueID, meetingID domain.MeetingID, videoOn, audioOn bool) (*domain.VideoServerSession, error) {
	defer o.lock(meetingID)()

	vm, err := o.Store.GetVideoServerMeeting(ctx, meetingID)
	if err != nil {
		return nil, err
	}
	if _, err := o.Store.GetSession(ctx, userID, meetingID); err == nil {
		return nil, domain.Conflict("user %s already in meeting %s", userID, meetingID)
	} else if !isNotFound(err) {
		return nil, err
	}

	entity := "user " + string(userID)
	conn, err := o.Gateway.CreateConnection(ctx)
	if err != nil {
		return nil, &domain.SignalingError{Step: "create connection", Entity: entity, Err: err}
	}

	handle, err := o.joinPublisher(ctx, vm, conn, userID, domain.MediaVideo)
	if err != nil {
		o.destroyQuietly(ctx, conn)
		return nil, err
	}

	vs := &domain.VideoServerSession{
		UserID:           userID,
		MeetingID:        meetingID,
		QueueID:          queueID,
		ConnectionID:     conn,
		VideoOutHandleID: handle,
		VideoOutStreamOn: videoOn,
		AudioStreamOn:    audioOn,
	}
	if err := o.Store.CreateSession(ctx, vs); err != nil {
		o.destroyQuietly(ctx, conn)
		return nil, err
	}
	log.Info().Str("module", "app.orch").Str("meeting", string(meetingID)).Str("user", string(userID)).
		Str("connection", conn).Msg("participant connected")
	return vs, nil
}

// LeaveMeeting destroys the participant's connection with all its handles.
func (o *Orchestrator) LeaveMeeting(ctx context.Context, userID domain.UserID, meetingID domain.MeetingID) error {
	defer o.lock(meetingID)()

	_, vs, err := o.meetingAndSession(ctx, userID, meetingID)
	if err != nil {
		return err
	}
	if err := o.Gateway.DestroyConnection(ctx, vs.ConnectionID); err != nil && !janus.IsNoSuchSession(err) {
		return &domain.SignalingError{Step: "destroy connection", Entity: "user " + string(userID), ConnectionID: vs.ConnectionID, Err: err}
	}
	if err := o.Store.DeleteSession(ctx, userID, meetingID); err != nil {
		return err
	}
	log.Info().Str("module", "app.orch").Str("meeting", string(meetingID)).Str("user", string(userID)).Msg("participant disconnected")
	return nil
}

func (o *Orchestrator) EnableVideoStream(ctx context.Context, userID domain.UserID, meetingID domain.MeetingID, enable bool) (*domain.VideoServerSession, error) {
	return o.enableStream(ctx, userID, meetingID, domain.MediaVideo, enable)
}

func (o *Orchestrator) EnableAudioStream(ctx context.Context, userID domain.UserID, meetingID domain.MeetingID, enable bool) (*domain.VideoServerSession, error) {
	return o.enableStream(ctx, userID, meetingID, domain.MediaAudio, enable)
}

func (o *Orchestrator) EnableScreenShareStream(ctx context.Context, userID domain.UserID, meetingID domain.MeetingID, enable bool) (*domain.VideoServerSession, error) {
	return o.enableStream(ctx, userID, meetingID, domain.MediaScreen, enable)
}

// enableStream is idempotent. The publishing handle is attached on the first
// enable; later toggles mute the audio participant or unpublish the feed.
// Publishing again follows from the client's next SDP offer.
func (o *Orchestrator) enableStream(ctx context.Context, userID domain.UserID, meetingID domain.MeetingID, mt domain.MediaType, enable bool) (*domain.VideoServerSession, error) {
	defer o.lock(meetingID)()

	vm, vs, err := o.meetingAndSession(ctx, userID, meetingID)
	if err != nil {
		return nil, err
	}
	kind := domain.PublisherHandle(mt)
	handle := vs.Handle(kind)
	entity := "user " + string(userID)

	switch {
	case handle == "" && enable:
		if mt == domain.MediaAudio {
			handle, err = o.joinAudio(ctx, vm, vs.ConnectionID, userID)
		} else {
			handle, err = o.joinPublisher(ctx, vm, vs.ConnectionID, userID, mt)
		}
		if err != nil {
			return nil, err
		}
		vs.SetHandle(kind, handle)
	case handle == "":
	case vs.StreamOn(mt) == enable:
		return vs, nil
	case mt == domain.MediaAudio:
		if _, err := o.message(ctx, "configure audio", entity, vs.ConnectionID, handle, janus.NewAudioMute(!enable), nil); err != nil {
			return nil, err
		}
	case !enable:
		if _, err := o.message(ctx, "unpublish "+string(mt), entity, vs.ConnectionID, handle, janus.NewUnpublish(), nil); err != nil {
			return nil, err
		}
	}

	vs.SetStream(mt, enable)
	if err := o.Store.SaveSession(ctx, vs); err != nil {
		return nil, err
	}
	log.Info().Str("module", "app.orch").Str("meeting", string(meetingID)).Str("user", string(userID)).
		Str("media", string(mt)).Bool("enabled", enable).Msg("stream toggled")
	return vs, nil
}

// UpdateMediaStream publishes the camera or screen feed with an SDP offer.
func (o *Orchestrator) UpdateMediaStream(ctx context.Context, userID domain.UserID, meetingID domain.MeetingID, mt domain.MediaType, sdpOffer string) error {
	if mt != domain.MediaVideo && mt != domain.MediaScreen {
		return domain.Invalid("media type %s cannot be published as video", mt)
	}
	return o.sendJSEP(ctx, userID, meetingID, domain.PublisherHandle(mt), "publish "+string(mt), janus.NewPublish(), janus.Offer(sdpOffer))
}

// UpdateAudioStream configures the audio participant with an SDP offer.
func (o *Orchestrator) UpdateAudioStream(ctx context.Context, userID domain.UserID, meetingID domain.MeetingID, sdpOffer string) error {
	return o.sendJSEP(ctx, userID, meetingID, domain.HandleAudio, "configure audio", janus.NewAudioConfigure(), janus.Offer(sdpOffer))
}

// AnswerRtcMediaStream starts the subscriber with the client's SDP answer.
func (o *Orchestrator) AnswerRtcMediaStream(ctx context.Context, userID domain.UserID, meetingID domain.MeetingID, sdpAnswer string) error {
	return o.sendJSEP(ctx, userID, meetingID, domain.HandleVideoIn, "start subscription", janus.NewStart(), janus.Answer(sdpAnswer))
}

func (o *Orchestrator) sendJSEP(ctx context.Context, userID domain.UserID, meetingID domain.MeetingID, kind domain.HandleKind, step string, body any, jsep *janus.JSEP) error {
	if _, err := janus.ParseDescription(jsep); err != nil {
		return domain.Invalid("%s: %v", step, err)
	}

	defer o.lock(meetingID)()

	_, vs, err := o.meetingAndSession(ctx, userID, meetingID)
	if err != nil {
		return err
	}
	handle := vs.Handle(kind)
	if handle == "" {
		return domain.NotFound("%s handle of user %s", kind, userID)
	}
	_, err = o.message(ctx, step, "user "+string(userID), vs.ConnectionID, handle, body, jsep)
	return err
}

// UpdateSubscriptionsMediaStream attaches the subscriber handle on first use
// and joins it with the requested streams; later calls update the stream set.
func (o *Orchestrator) UpdateSubscriptionsMediaStream(ctx context.Context, userID domain.UserID, meetingID domain.MeetingID, subscribe, unsubscribe []domain.StreamSelector) (*domain.VideoServerSession, error) {
	defer o.lock(meetingID)()

	vm, vs, err := o.meetingAndSession(ctx, userID, meetingID)
	if err != nil {
		return nil, err
	}
	entity := "user " + string(userID)

	if vs.VideoInHandleID == "" {
		handle, err := o.attach(ctx, "attach subscriber", entity, vs.ConnectionID, janus.PluginVideoRoom)
		if err != nil {
			return nil, err
		}
		vs.VideoInHandleID = handle
		if err := o.Store.SaveSession(ctx, vs); err != nil {
			o.detachQuietly(ctx, vs.ConnectionID, handle)
			return nil, err
		}
	}

	switch {
	case !vs.VideoInSubscribed && len(subscribe) == 0:
		return vs, nil
	case !vs.VideoInSubscribed:
		body := janus.NewSubscriberJoin(vm.VideoRoomID, refs(subscribe))
		if _, err := o.message(ctx, "join subscriber", entity, vs.ConnectionID, vs.VideoInHandleID, body, nil); err != nil {
			return nil, err
		}
		vs.VideoInSubscribed = true
		if err := o.Store.SaveSession(ctx, vs); err != nil {
			return nil, err
		}
	default:
		body := janus.NewSubscriptionUpdate(refs(subscribe), refs(unsubscribe))
		if _, err := o.message(ctx, "update subscriptions", entity, vs.ConnectionID, vs.VideoInHandleID, body, nil); err != nil {
			return nil, err
		}
	}
	log.Debug().Str("module", "app.orch").Str("meeting", string(meetingID)).Str("user", string(userID)).
		Int("subscribe", len(subscribe)).Int("unsubscribe", len(unsubscribe)).Msg("subscriptions updated")
	return vs, nil
}

// joinPublisher attaches a video-room handle and joins it as the publisher
// of feed <user>/<media>.
func (o *Orchestrator) joinPublisher(ctx context.Context, vm *domain.VideoServerMeeting, conn string, userID domain.UserID, mt domain.MediaType) (string, error) {
	entity := "user " + string(userID)
	handle, err := o.attach(ctx, "attach "+string(mt)+" publisher", entity, conn, janus.PluginVideoRoom)
	if err != nil {
		return "", err
	}
	body := janus.NewPublisherJoin(vm.VideoRoomID, domain.FeedID(userID, mt))
	if _, err := o.message(ctx, "join "+string(mt)+" publisher", entity, conn, handle, body, nil); err != nil {
		o.detachQuietly(ctx, conn, handle)
		return "", err
	}
	return handle, nil
}

func (o *Orchestrator) joinAudio(ctx context.Context, vm *domain.VideoServerMeeting, conn string, userID domain.UserID) (string, error) {
	entity := "user " + string(userID)
	handle, err := o.attach(ctx, "attach audio bridge", entity, conn, janus.PluginAudioBridge)
	if err != nil {
		return "", err
	}
	body := janus.NewAudioJoin(vm.AudioRoomID, string(userID), false)
	if _, err := o.message(ctx, "join audio bridge", entity, conn, handle, body, nil); err != nil {
		o.detachQuietly(ctx, conn, handle)
		return "", err
	}
	return handle, nil
}

func (o *Orchestrator) destroyQuietly(ctx context.Context, conn string) {
	ctx, cancel := cleanupContext(ctx)
	defer cancel()
	if err := o.Gateway.DestroyConnection(ctx, conn); err != nil {
		log.Warn().Str("module", "app.orch").Str("connection", conn).Err(err).Msg("destroy after failed join")
	}
}
