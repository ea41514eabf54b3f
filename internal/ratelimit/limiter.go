// Package ratelimit provides per-credential sliding-window admission control
// for provider calls.
//
// A Limiter is constructed once at startup and shared by every adapter. Keys are
// credential identities (see CredentialKey), so two adapters using the same API key
// draw from the same one-minute window.
package ratelimit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"
)

// Limiter admits or rejects a single call for key when at most limit calls may
// occur inside the window. Allow never blocks: a saturated window returns false.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int) (bool, error)
}

// Clock returns the current time; tests inject a fake.
type Clock func() time.Time

// SlidingWindow is the in-process Limiter. Each key owns its own window and mutex;
// the map of windows is guarded separately so unrelated credentials never contend.
type SlidingWindow struct {
	window time.Duration
	now    Clock

	mu      sync.Mutex
	windows map[string]*window
}

type window struct {
	mu     sync.Mutex
	stamps []time.Time // admitted call times, oldest first
}

type Option func(*SlidingWindow)

func WithClock(c Clock) Option {
	return func(s *SlidingWindow) {
		if c != nil {
			s.now = c
		}
	}
}

func WithWindow(d time.Duration) Option {
	return func(s *SlidingWindow) {
		if d > 0 {
			s.window = d
		}
	}
}

func NewSlidingWindow(opts ...Option) *SlidingWindow {
	s := &SlidingWindow{
		window:  time.Minute,
		now:     time.Now,
		windows: make(map[string]*window),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Allow checks and records one call under the key's mutex, so two callers racing
// for the last slot cannot both be admitted.
func (s *SlidingWindow) Allow(_ context.Context, key string, limit int) (bool, error) {
	if limit <= 0 {
		return false, nil
	}
	w := s.windowFor(key)

	w.mu.Lock()
	defer w.mu.Unlock()

	now := s.now()
	cutoff := now.Add(-s.window)
	drop := 0
	for drop < len(w.stamps) && !w.stamps[drop].After(cutoff) {
		drop++
	}
	if drop > 0 {
		w.stamps = append(w.stamps[:0], w.stamps[drop:]...)
	}

	if len(w.stamps) >= limit {
		return false, nil
	}
	w.stamps = append(w.stamps, now)
	return true, nil
}

// InFlight reports how many admissions are currently inside key's window.
func (s *SlidingWindow) InFlight(key string) int {
	w := s.windowFor(key)
	w.mu.Lock()
	defer w.mu.Unlock()

	cutoff := s.now().Add(-s.window)
	n := 0
	for _, t := range w.stamps {
		if t.After(cutoff) {
			n++
		}
	}
	return n
}

func (s *SlidingWindow) windowFor(key string) *window {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.windows[key]
	if !ok {
		w = &window{}
		s.windows[key] = w
	}
	return w
}

// CredentialKey derives a stable, non-secret key from a provider credential.
// An empty credential falls back to the provider name.
func CredentialKey(provider, credential string) string {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return "anon:" + strings.ToLower(strings.TrimSpace(provider))
	}
	sum := sha256.Sum256([]byte(credential))
	return "cred:" + hex.EncodeToString(sum[:8])
}

var _ Limiter = (*SlidingWindow)(nil)
