package myelectric

import (
	"testing"
	"time"
)

func collect[T any](s *Stream[T]) (<-chan T, func()) {
	ch := make(chan T, 100)
	cancel := s.Subscribe(func(v T) {
		ch <- v
	})
	return ch, cancel
}

func recv[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for value")
	}
	var zero T
	return zero
}

func assertNothing[T any](t *testing.T, ch <-chan T) {
	t.Helper()
	select {
	case v := <-ch:
		t.Fatalf("unexpected value: %v", v)
	case <-time.After(50 * time.Millisecond):
	}
}

func strPtr(s string) *string {
	return &s
}
