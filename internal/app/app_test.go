package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/Meet/internal/domain"
)

func TestKeyedMutexSerializesPerKey(t *testing.T) {
	k := NewKeyedMutex()
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.Lock("m1")
			defer unlock()
			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			inside--
			mu.Unlock()
		}()
	}
	wg.Wait()
	if maxSeen != 1 {
		t.Fatalf("max concurrent holders = %d", maxSeen)
	}
	if k.size() != 0 {
		t.Fatalf("entries leaked: %d", k.size())
	}
}

func TestKeyedMutexIndependentKeys(t *testing.T) {
	k := NewKeyedMutex()
	unlock := k.Lock("a")
	defer unlock()

	done := make(chan struct{})
	go func() {
		k.Lock("b")()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on another key blocked")
	}
}

func TestSimplePolicy(t *testing.T) {
	scheduled := &domain.Meeting{MeetingType: domain.MeetingTypeScheduled}
	permanent := &domain.Meeting{MeetingType: domain.MeetingTypePermanent}
	member := &domain.RoomMember{}

	cases := []struct {
		m      *domain.Meeting
		member *domain.RoomMember
		want   AdmissionAction
	}{
		{scheduled, nil, AdmitWait},
		{scheduled, member, AdmitJoin},
		{permanent, nil, AdmitJoin},
	}
	for _, c := range cases {
		if got := (SimplePolicy{}).OnJoin(c.m, c.member); got != c.want {
			t.Errorf("OnJoin(%s, %v) = %v, want %v", c.m.MeetingType, c.member != nil, got, c.want)
		}
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	ctx, cancel := context.WithCancel(context.Background())
	r.Bind("q1", "alice", cancel)
	r.Bind("q2", "alice", func() {})

	if u, ok := r.UserOf("q1"); !ok || u != "alice" {
		t.Fatalf("UserOf = %s, %v", u, ok)
	}
	if r.Count() != 2 {
		t.Fatalf("count = %d", r.Count())
	}
	r.CancelAll()
	if ctx.Err() == nil {
		t.Fatal("channel context not canceled")
	}
	r.Unbind("q1")
	if _, ok := r.UserOf("q1"); ok || r.Count() != 1 {
		t.Fatalf("q1 still bound, count = %d", r.Count())
	}
}
