// Package eventstest provides an in-memory events.Publisher for tests.
package eventstest

import (
	"context"
	"sync"

	"github.com/dkeye/Meet/internal/domain"
	"github.com/dkeye/Meet/internal/events"
)

type Delivery struct {
	UserID domain.UserID
	Event  events.Event
}

type Recorder struct {
	mu  sync.Mutex
	all []Delivery
}

func (r *Recorder) Publish(_ context.Context, userID domain.UserID, ev events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.all = append(r.all, Delivery{UserID: userID, Event: ev})
	return nil
}

func (r *Recorder) Deliveries() []Delivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Delivery(nil), r.all...)
}

// Recipients lists the users that received events of the given type.
func (r *Recorder) Recipients(eventType string) []domain.UserID {
	var out []domain.UserID
	for _, d := range r.Deliveries() {
		if d.Event.EventType() == eventType {
			out = append(out, d.UserID)
		}
	}
	return out
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.all = nil
}
