package testutil

import (
	"context"
	"sync"
	"time"
)

// PublishedEvent is one recorded publish call.
type PublishedEvent struct {
	Subject string
	Data    interface{}
}

// SpyPublisher records published events.
type SpyPublisher struct {
	mu     sync.Mutex
	Events []PublishedEvent
}

func (s *SpyPublisher) Publish(_ context.Context, subject string, data interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Events = append(s.Events, PublishedEvent{Subject: subject, Data: data})
	return nil
}

func (s *SpyPublisher) Close() error { return nil }

func (s *SpyPublisher) Subjects() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var subjects []string
	for _, e := range s.Events {
		subjects = append(subjects, e.Subject)
	}
	return subjects
}

// FakeLimiter is a ratelimit.Limiter with scripted answers.
type FakeLimiter struct {
	DenyAllow    bool
	DenyCooldown bool

	AllowCalls    int
	CooldownCalls int
}

func (f *FakeLimiter) Allow(_ context.Context, _ string, _ int, _ time.Duration) (bool, error) {
	f.AllowCalls++
	return !f.DenyAllow, nil
}

func (f *FakeLimiter) Cooldown(_ context.Context, _ string, _ time.Duration) (bool, error) {
	f.CooldownCalls++
	return !f.DenyCooldown, nil
}
