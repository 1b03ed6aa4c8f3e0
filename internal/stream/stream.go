// Package stream fans committed guild events out to live subscribers such
// as SSE clients.
package stream

import (
	"context"
	"sync"

	"guildhall.org/internal/guild"
)

const defaultBuffer = 64

// Filter narrows a subscription. The zero value matches every event.
type Filter struct {
	GuildID uint64
	Types   map[string]bool
}

func (f Filter) match(evt guild.Event) bool {
	if f.GuildID != 0 && evt.GuildID != f.GuildID {
		return false
	}
	if len(f.Types) > 0 && !f.Types[evt.Type] {
		return false
	}
	return true
}

type subscriber struct {
	ch     chan guild.Event
	filter Filter
}

// Stream implements guild.EventSink.
type Stream struct {
	mu     sync.RWMutex
	subs   map[int]subscriber
	next   int
	onDrop func()
}

var _ guild.EventSink = (*Stream)(nil)

// New initialises an empty stream. onDrop, if set, is called whenever a
// slow subscriber misses an event.
func New(onDrop func()) *Stream {
	return &Stream{
		subs:   make(map[int]subscriber),
		onDrop: onDrop,
	}
}

// Subscribe registers a subscriber and returns a channel which will receive events.
// The channel is closed when the provided context ends.
func (s *Stream) Subscribe(ctx context.Context, f Filter) <-chan guild.Event {
	ch := make(chan guild.Event, defaultBuffer)

	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = subscriber{ch: ch, filter: f}
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, id)
		close(ch)
		s.mu.Unlock()
	}()

	return ch
}

// Publish fan-outs the event to all matching subscribers.
func (s *Stream) Publish(evt guild.Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sub := range s.subs {
		if !sub.filter.match(evt) {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
			// Drop when subscriber is slow to avoid blocking.
			s.drop()
		}
	}
}

func (s *Stream) drop() {
	if s.onDrop != nil {
		s.onDrop()
	}
}

// Subscribers returns the number of live subscriptions.
func (s *Stream) Subscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}
