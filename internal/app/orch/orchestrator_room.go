package orch

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Meet/internal/domain"
	"github.com/dkeye/Meet/internal/janus"
)

// CreateMeeting opens the meeting's administrative connection and creates its
// audio-bridge and video rooms. On failure the returned *SignalingError
// carries the connection id, if one was opened; nothing is rolled back here.
func (o *Orchestrator) CreateMeeting(ctx context.Context, meetingID domain.MeetingID) (*domain.VideoServerMeeting, error) {
	defer o.lock(meetingID)()

	if _, err := o.Store.GetVideoServerMeeting(ctx, meetingID); err == nil {
		return nil, domain.Conflict("video server meeting %s", meetingID)
	} else if !isNotFound(err) {
		return nil, err
	}

	entity := "meeting " + string(meetingID)
	conn, err := o.Gateway.CreateConnection(ctx)
	if err != nil {
		return nil, &domain.SignalingError{Step: "create connection", Entity: entity, Err: err}
	}

	audioHandle, err := o.attach(ctx, "attach audio bridge", entity, conn, janus.PluginAudioBridge)
	if err != nil {
		return nil, err
	}
	audioRoom, err := o.createRoom(ctx, "create audio room", entity, conn, audioHandle, janus.NewAudioRoom(string(meetingID)))
	if err != nil {
		return nil, err
	}

	videoHandle, err := o.attach(ctx, "attach video room", entity, conn, janus.PluginVideoRoom)
	if err != nil {
		return nil, err
	}
	videoRoom, err := o.createRoom(ctx, "create video room", entity, conn, videoHandle, janus.NewVideoRoom(string(meetingID), videoRoomPublishers))
	if err != nil {
		return nil, err
	}

	vm := &domain.VideoServerMeeting{
		MeetingID:     meetingID,
		ConnectionID:  conn,
		AudioHandleID: audioHandle,
		VideoHandleID: videoHandle,
		AudioRoomID:   audioRoom,
		VideoRoomID:   videoRoom,
	}
	if err := o.Store.CreateVideoServerMeeting(ctx, vm); err != nil {
		return nil, &domain.SignalingError{Step: "persist rooms", Entity: entity, ConnectionID: conn, Err: err}
	}
	log.Info().Str("module", "app.orch").Str("meeting", string(meetingID)).Str("connection", conn).
		Str("audio_room", audioRoom).Str("video_room", videoRoom).Msg("meeting rooms created")
	return vm, nil
}

func (o *Orchestrator) createRoom(ctx context.Context, step, entity, conn, handle string, body janus.CreateRoom) (string, error) {
	resp, err := o.message(ctx, step, entity, conn, handle, body, nil)
	if err != nil {
		return "", err
	}
	res, err := resp.Room()
	if err == nil && (res.Status != "created" || res.Room == "") {
		err = fmt.Errorf("unexpected room status %q", res.Status)
	}
	if err != nil {
		return "", &domain.SignalingError{Step: step, Entity: entity, ConnectionID: conn, Err: err}
	}
	return res.Room.String(), nil
}

// DeleteMeeting destroys both rooms, detaches their handles and closes the
// administrative connection.
func (o *Orchestrator) DeleteMeeting(ctx context.Context, meetingID domain.MeetingID) error {
	defer o.lock(meetingID)()

	vm, err := o.Store.GetVideoServerMeeting(ctx, meetingID)
	if err != nil {
		return err
	}
	entity := "meeting " + string(meetingID)

	o.destroyRoom(ctx, vm.ConnectionID, vm.AudioHandleID, vm.AudioRoomID)
	o.destroyRoom(ctx, vm.ConnectionID, vm.VideoHandleID, vm.VideoRoomID)

	if err := o.Gateway.Detach(ctx, vm.ConnectionID, vm.AudioHandleID); err != nil {
		return &domain.SignalingError{Step: "detach audio bridge", Entity: entity, ConnectionID: vm.ConnectionID, Err: err}
	}
	if err := o.Gateway.Detach(ctx, vm.ConnectionID, vm.VideoHandleID); err != nil {
		return &domain.SignalingError{Step: "detach video room", Entity: entity, ConnectionID: vm.ConnectionID, Err: err}
	}
	if err := o.Gateway.DestroyConnection(ctx, vm.ConnectionID); err != nil {
		return &domain.SignalingError{Step: "destroy connection", Entity: entity, ConnectionID: vm.ConnectionID, Err: err}
	}
	if err := o.Store.DeleteVideoServerMeeting(ctx, meetingID); err != nil {
		return err
	}
	log.Info().Str("module", "app.orch").Str("meeting", string(meetingID)).Msg("meeting rooms removed")
	return nil
}

// destroyRoom failures are logged; teardown continues.
func (o *Orchestrator) destroyRoom(ctx context.Context, conn, handle, room string) {
	if _, err := o.Gateway.Message(ctx, conn, handle, janus.NewDestroyRoom(room), nil); err != nil {
		log.Warn().Str("module", "app.orch").Str("room", room).Err(err).Msg("destroy room")
	}
}
