package stream

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"guildhall.org/internal/guild"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestSubscribeReceivesMatchingEvents(t *testing.T) {
	s := New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	all := s.Subscribe(ctx, Filter{})
	one := s.Subscribe(ctx, Filter{GuildID: 2})

	s.Publish(guild.Event{Type: "guild.created", GuildID: 1})
	s.Publish(guild.Event{Type: "vote.cast", GuildID: 2})

	for _, want := range []uint64{1, 2} {
		select {
		case evt := <-all:
			if evt.GuildID != want {
				t.Fatalf("expected guild %d, got %d", want, evt.GuildID)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for event")
		}
	}
	select {
	case evt := <-one:
		if evt.GuildID != 2 {
			t.Fatalf("filter leaked guild %d", evt.GuildID)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for filtered event")
	}
}

func TestTypeFilter(t *testing.T) {
	f := Filter{Types: map[string]bool{"vote.cast": true}}
	if f.match(guild.Event{Type: "guild.created"}) {
		t.Fatalf("type filter matched wrong type")
	}
	if !f.match(guild.Event{Type: "vote.cast", GuildID: 9}) {
		t.Fatalf("type filter rejected matching type")
	}
}

func TestCancelClosesChannel(t *testing.T) {
	s := New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	ch := s.Subscribe(ctx, Filter{})
	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatalf("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatalf("channel not closed after cancel")
	}
	if n := s.Subscribers(); n != 0 {
		t.Fatalf("expected no subscribers, got %d", n)
	}
}

func TestSlowSubscriberDrops(t *testing.T) {
	var drops atomic.Int64
	s := New(func() { drops.Add(1) })
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_ = s.Subscribe(ctx, Filter{})

	for i := 0; i < defaultBuffer+5; i++ {
		s.Publish(guild.Event{Type: "vote.cast"})
	}
	if got := drops.Load(); got != 5 {
		t.Fatalf("expected 5 drops, got %d", got)
	}
}
