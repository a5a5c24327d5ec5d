// Package events fans progress notifications out to subscribers: the console
// logger, the websocket hub, and any notifier that wants live updates.
package events

import (
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/sitewarden/sitewarden/internal/interfaces"
)

// Subscriber receives every published event. Handlers must not block; slow
// consumers get events dropped, not queued without bound.
type Subscriber func(interfaces.Event)

// Service is an in-process publish/subscribe bus with a bounded delivery
// queue per subscriber.
type Service struct {
	logger arbor.ILogger

	mu   sync.RWMutex
	subs map[int]chan interfaces.Event
	next int
	done chan struct{}
}

// NewService creates the event bus.
func NewService(logger arbor.ILogger) *Service {
	return &Service{
		logger: logger,
		subs:   make(map[int]chan interfaces.Event),
		done:   make(chan struct{}),
	}
}

// Publish delivers the event to every subscriber without blocking the
// caller. A subscriber with a full queue misses the event.
func (s *Service) Publish(event interfaces.Event) {
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subs {
		select {
		case ch <- event:
		default:
			s.logger.Debug().Str("type", string(event.Type)).Msg("Dropped event for slow subscriber")
		}
	}
}

// Subscribe registers a handler and returns an unsubscribe function.
func (s *Service) Subscribe(handler Subscriber) func() {
	ch := make(chan interfaces.Event, 256)

	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = ch
	s.mu.Unlock()

	go func() {
		for ev := range ch {
			handler(ev)
		}
	}()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
	}
}

// Close tears down every subscriber channel.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
}
