package myelectric

import (
	"sync"
)

// Stream is a push-based value stream with any number of subscribers.
// A replaying stream hands its latest value to every new subscriber.
type Stream[T any] struct {
	mu      sync.Mutex
	replay  bool
	last    T
	hasLast bool
	nextID  int
	subs    map[int]func(T)
}

func newStream[T any](replay bool) *Stream[T] {
	return &Stream[T]{
		replay: replay,
		subs:   make(map[int]func(T)),
	}
}

func newStreamWith[T any](initial T) *Stream[T] {
	s := newStream[T](true)
	s.last = initial
	s.hasLast = true
	return s
}

// Subscribe registers fn to be called with every published value. The
// returned func removes the subscription.
func (s *Stream[T]) Subscribe(fn func(T)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	last, replay := s.last, s.replay && s.hasLast
	s.mu.Unlock()

	if replay {
		fn(last)
	}
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// Latest returns the most recently published value.
func (s *Stream[T]) Latest() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, s.hasLast
}

func (s *Stream[T]) publish(v T) {
	s.mu.Lock()
	s.last = v
	s.hasLast = true
	subs := make([]func(T), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(v)
	}
}
