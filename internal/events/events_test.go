package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/dkeye/Meet/internal/domain"
)

func TestEncodeEnvelope(t *testing.T) {
	b, err := Encode(MeetingParticipantTalking{MeetingID: "m1", UserID: "u1", Talking: true})
	if err != nil {
		t.Fatal(err)
	}
	var got struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
	}
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatal(err)
	}
	if got.Type != "MeetingParticipantTalking" || got.Payload["userId"] != "u1" || got.Payload["talking"] != true {
		t.Fatalf("frame = %s", b)
	}
}

type flakyPublisher struct {
	got []domain.UserID
}

func (p *flakyPublisher) Publish(_ context.Context, u domain.UserID, _ Event) error {
	p.got = append(p.got, u)
	if u == "bad" {
		return errors.New("channel closed")
	}
	return nil
}

func TestFanoutContinuesPastFailures(t *testing.T) {
	p := &flakyPublisher{}
	Fanout(context.Background(), p, []domain.UserID{"a", "bad", "c"}, MeetingUserAccepted{MeetingID: "m"})
	if len(p.got) != 3 {
		t.Fatalf("published to %v", p.got)
	}
}
