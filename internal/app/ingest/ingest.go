// Package ingest turns media-server events into client events and routes
// them to the affected users.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Meet/internal/domain"
	"github.com/dkeye/Meet/internal/events"
	"github.com/dkeye/Meet/internal/janus"
	"github.com/dkeye/Meet/internal/store"
)

// Source opens a consumer on the event feed. closeFn releases the broker
// channel behind the deliveries.
type Source interface {
	Consume(ctx context.Context) (deliveries <-chan []byte, closeFn func(), err error)
}

type Ingestor struct {
	Store  *store.Store
	Events events.Publisher

	// RetryDelay spaces consumer re-creation after a channel is lost. It
	// doubles while reopening keeps failing, up to maxRetryDelay.
	RetryDelay time.Duration
}

const maxRetryDelay = 30 * time.Second

func New(st *store.Store, pub events.Publisher) *Ingestor {
	return &Ingestor{Store: st, Events: pub, RetryDelay: time.Second}
}

var errFeedClosed = errors.New("event feed closed")

// Run consumes the feed until ctx ends. Only a failure to open the very first
// consumer is returned. Afterwards a malformed batch, a lost broker channel or
// a failed reopen is logged and the consumer is opened again.
func (i *Ingestor) Run(ctx context.Context, src Source) error {
	delay := i.RetryDelay
	for opened := false; ; {
		deliveries, closeFn, err := src.Consume(ctx)
		switch {
		case err != nil && !opened:
			return fmt.Errorf("ingest: consume: %w", err)
		case err != nil:
			log.Warn().Str("module", "app.ingest").Err(err).Dur("retry_in", delay).Msg("reopening event channel failed")
		default:
			opened = true
			delay = i.RetryDelay
			log.Info().Str("module", "app.ingest").Msg("consuming media server events")

			err = i.consume(ctx, deliveries)
			closeFn()
			if ctx.Err() != nil {
				return nil
			}
			log.Warn().Str("module", "app.ingest").Err(err).Msg("recreating event channel")
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
		if deliveries == nil {
			delay = min(delay*2, maxRetryDelay)
		}
	}
}

func (i *Ingestor) consume(ctx context.Context, deliveries <-chan []byte) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case body, ok := <-deliveries:
			if !ok {
				return errFeedClosed
			}
			if err := i.HandleDelivery(ctx, body); err != nil {
				return err
			}
		}
	}
}

// HandleDelivery decodes one delivery and dispatches its events in order.
// Only a malformed batch is returned; bad entries are logged and skipped.
func (i *Ingestor) HandleDelivery(ctx context.Context, body []byte) error {
	items, err := janus.SplitBatch(body)
	if err != nil {
		return err
	}
	for _, raw := range items {
		ev, err := janus.DecodeEvent(raw)
		if err != nil {
			log.Warn().Str("module", "app.ingest").Err(err).Msg("skipping malformed event")
			continue
		}
		i.Handle(ctx, ev)
	}
	return nil
}

func (i *Ingestor) Handle(ctx context.Context, ev janus.Event) {
	switch e := ev.(type) {
	case janus.JSEPEvent:
		i.onJSEP(ctx, e)
	case janus.PluginEvent:
		switch d := e.Data.(type) {
		case janus.AudioBridgeEvent:
			i.onAudioBridge(ctx, d)
		case janus.VideoRoomEvent:
			i.onVideoRoom(ctx, e, d)
		}
	case janus.UnknownEvent:
		log.Trace().Str("module", "app.ingest").Int("type", e.Type).Str("connection", e.ConnectionID).Msg("ignored event")
	}
}

func (i *Ingestor) onJSEP(ctx context.Context, e janus.JSEPEvent) {
	if !e.Local() {
		return
	}
	vs, err := i.Store.GetSessionByConnection(ctx, e.ConnectionID)
	if err != nil {
		log.Debug().Str("module", "app.ingest").Str("connection", e.ConnectionID).Err(err).Msg("jsep for unknown connection")
		return
	}
	kind := vs.HandleKind(e.HandleID)
	sdp := e.Description.SDP

	var out events.Event
	switch e.Description.Type {
	case webrtc.SDPTypeOffer:
		switch kind {
		case domain.HandleVideoIn, domain.HandleVideoOut:
			out = events.MeetingSdpOffered{MeetingID: vs.MeetingID, MediaType: domain.MediaVideo, SDP: sdp}
		case domain.HandleScreen:
			out = events.MeetingSdpOffered{MeetingID: vs.MeetingID, MediaType: domain.MediaScreen, SDP: sdp}
		}
	case webrtc.SDPTypeAnswer:
		switch kind {
		case domain.HandleAudio:
			out = events.MeetingAudioAnswered{MeetingID: vs.MeetingID, SDP: sdp}
		case domain.HandleVideoOut:
			out = events.MeetingSdpAnswered{MeetingID: vs.MeetingID, MediaType: domain.MediaVideo, SDP: sdp}
		case domain.HandleScreen:
			out = events.MeetingSdpAnswered{MeetingID: vs.MeetingID, MediaType: domain.MediaScreen, SDP: sdp}
		}
	}
	if out == nil {
		log.Debug().Str("module", "app.ingest").Str("connection", e.ConnectionID).Str("handle", e.HandleID).
			Str("kind", kind.String()).Str("sdp_type", e.Description.Type.String()).Msg("jsep on unmatched handle")
		return
	}
	i.publish(ctx, vs.UserID, out)
}

func (i *Ingestor) onAudioBridge(ctx context.Context, d janus.AudioBridgeEvent) {
	talking, ok := d.Talking()
	if !ok {
		return
	}
	vm, err := i.Store.FindVideoServerMeetingByRoom(ctx, d.Room.String())
	if err != nil {
		log.Debug().Str("module", "app.ingest").Str("room", d.Room.String()).Err(err).Msg("talking in unknown room")
		return
	}
	user := domain.UserID(d.ParticipantID)
	i.fanoutOthers(ctx, vm.MeetingID, user, events.MeetingParticipantTalking{MeetingID: vm.MeetingID, UserID: user, Talking: talking})
}

func (i *Ingestor) onVideoRoom(ctx context.Context, e janus.PluginEvent, d janus.VideoRoomEvent) {
	switch d.Kind {
	case "updated", "subscribing":
		if len(d.Streams) > 0 {
			i.onSubscribed(ctx, e.ConnectionID, d.Streams)
		}
	case "published", "unpublished":
		i.onPublished(ctx, e.ConnectionID, d)
	}
}

func (i *Ingestor) onSubscribed(ctx context.Context, conn string, streams []janus.Stream) {
	vs, err := i.Store.GetSessionByConnection(ctx, conn)
	if err != nil {
		log.Debug().Str("module", "app.ingest").Str("connection", conn).Err(err).Msg("subscription for unknown connection")
		return
	}
	out := make([]events.SubscribedStream, 0, len(streams))
	for _, s := range streams {
		user, mt, err := domain.ParseFeedID(s.FeedID.String())
		if err != nil {
			log.Debug().Str("module", "app.ingest").Str("feed", s.FeedID.String()).Msg("skipping stream with foreign feed id")
			continue
		}
		out = append(out, events.SubscribedStream{MediaType: mt, UserID: user, Mid: s.Mid})
	}
	if len(out) == 0 {
		return
	}
	i.publish(ctx, vs.UserID, events.MeetingParticipantSubscribed{MeetingID: vs.MeetingID, Streams: out})
}

func (i *Ingestor) onPublished(ctx context.Context, conn string, d janus.VideoRoomEvent) {
	user, mt, err := domain.ParseFeedID(d.Feed.String())
	if err != nil {
		log.Debug().Str("module", "app.ingest").Str("feed", d.Feed.String()).Err(err).Msg("publication with foreign feed id")
		return
	}

	var meetingID domain.MeetingID
	if vm, err := i.Store.FindVideoServerMeetingByRoom(ctx, d.Room.String()); err == nil {
		meetingID = vm.MeetingID
	} else if vs, err := i.Store.GetSessionByConnection(ctx, conn); err == nil && vs.UserID == user {
		meetingID = vs.MeetingID
	} else {
		log.Debug().Str("module", "app.ingest").Str("room", d.Room.String()).Str("feed", d.Feed.String()).Msg("publication in unknown meeting")
		return
	}

	i.fanoutOthers(ctx, meetingID, user, events.MeetingMediaStreamChanged{
		MeetingID: meetingID, UserID: user, MediaType: mt, Active: d.Kind == "published",
	})
}

func (i *Ingestor) fanoutOthers(ctx context.Context, meetingID domain.MeetingID, except domain.UserID, ev events.Event) {
	participants, err := i.Store.ListParticipants(ctx, meetingID)
	if err != nil {
		log.Warn().Str("module", "app.ingest").Str("meeting", string(meetingID)).Err(err).Msg("list participants")
		return
	}
	users := make([]domain.UserID, 0, len(participants))
	for _, p := range participants {
		if p.UserID != except {
			users = append(users, p.UserID)
		}
	}
	events.Fanout(ctx, i.Events, users, ev)
}

func (i *Ingestor) publish(ctx context.Context, user domain.UserID, ev events.Event) {
	if err := i.Events.Publish(ctx, user, ev); err != nil {
		log.Warn().Str("module", "app.ingest").Str("user", string(user)).Str("event", ev.EventType()).Err(err).Msg("publish failed")
	}
}
