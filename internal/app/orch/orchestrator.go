// Package orch drives the media server: one administrative connection and a
// room pair per meeting, one connection with up to four plugin handles per
// participant.
package orch

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Meet/internal/app"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/dkeye/Meet/internal/janus"
	"github.com/dkeye/Meet/internal/store"
)

// videoRoomPublishers bounds concurrent feeds per video room; each
// participant may publish a camera and a screen feed.
const videoRoomPublishers = 100

type Orchestrator struct {
	Gateway janus.Gateway
	Store   *store.Store
	Locks   *app.KeyedMutex
}

func New(gw janus.Gateway, st *store.Store) *Orchestrator {
	return &Orchestrator{Gateway: gw, Store: st, Locks: app.NewKeyedMutex()}
}

// IsAlive probes the media server.
func (o *Orchestrator) IsAlive(ctx context.Context) bool {
	if _, err := o.Gateway.Info(ctx); err != nil {
		log.Warn().Str("module", "app.orch").Err(err).Msg("media server probe failed")
		return false
	}
	return true
}

// DestroyConnection tears down a media-server connection and every handle
// on it. Used to compensate a partially created meeting.
func (o *Orchestrator) DestroyConnection(ctx context.Context, connectionID string) error {
	if err := o.Gateway.DestroyConnection(ctx, connectionID); err != nil {
		return &domain.SignalingError{Step: "destroy connection", Entity: "connection " + connectionID, ConnectionID: connectionID, Err: err}
	}
	log.Info().Str("module", "app.orch").Str("connection", connectionID).Msg("connection destroyed")
	return nil
}

func (o *Orchestrator) lock(meetingID domain.MeetingID) func() {
	return o.Locks.Lock(string(meetingID))
}

// message sends a plugin request and wraps failures with step and entity.
func (o *Orchestrator) message(ctx context.Context, step, entity, conn, handle string, body any, jsep *janus.JSEP) (*janus.PluginResponse, error) {
	resp, err := o.Gateway.Message(ctx, conn, handle, body, jsep)
	if err != nil {
		return nil, &domain.SignalingError{Step: step, Entity: entity, ConnectionID: conn, Err: err}
	}
	return resp, nil
}

func (o *Orchestrator) attach(ctx context.Context, step, entity, conn string, plugin janus.Plugin) (string, error) {
	handle, err := o.Gateway.Attach(ctx, conn, plugin)
	if err != nil {
		return "", &domain.SignalingError{Step: step, Entity: entity, ConnectionID: conn, Err: err}
	}
	return handle, nil
}

// detachQuietly releases a handle whose setup failed.
func (o *Orchestrator) detachQuietly(ctx context.Context, conn, handle string) {
	ctx, cancel := cleanupContext(ctx)
	defer cancel()
	if err := o.Gateway.Detach(ctx, conn, handle); err != nil {
		log.Warn().Str("module", "app.orch").Str("connection", conn).Str("handle", handle).Err(err).Msg("detach after failed setup")
	}
}

func (o *Orchestrator) meetingAndSession(ctx context.Context, userID domain.UserID, meetingID domain.MeetingID) (*domain.VideoServerMeeting, *domain.VideoServerSession, error) {
	vm, err := o.Store.GetVideoServerMeeting(ctx, meetingID)
	if err != nil {
		return nil, nil, err
	}
	vs, err := o.Store.GetSession(ctx, userID, meetingID)
	if err != nil {
		return nil, nil, err
	}
	return vm, vs, nil
}

const cleanupTimeout = 10 * time.Second

// cleanupContext outlives the caller's cancellation but not forever.
func cleanupContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
}

func isNotFound(err error) bool { return errors.Is(err, domain.ErrNotFound) }
