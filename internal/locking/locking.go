// Package locking provides keyed exclusive locks with bounded waits.
//
// A Session collects the keys held by one logical transaction. Keys passed to a
// single Lock call are acquired in ascending order, so callers that lock the same
// set of rows cannot deadlock against each other. Every key is released by
// ReleaseAll, which transaction scopes call on commit, rollback and timeout alike.
package locking

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"reliefops/internal/common"
)

type slot struct {
	sem  chan struct{}
	refs int
}

// Manager owns the lock table shared by all sessions.
type Manager struct {
	mu    sync.Mutex
	slots map[string]*slot
}

func NewManager() *Manager {
	return &Manager{slots: make(map[string]*slot)}
}

func (m *Manager) ref(key string) *slot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[key]
	if !ok {
		s = &slot{sem: make(chan struct{}, 1)}
		m.slots[key] = s
	}
	s.refs++
	return s
}

func (m *Manager) unref(key string, s *slot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(m.slots, key)
	}
}

// Size returns the number of keys currently tracked (held or awaited).
func (m *Manager) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.slots)
}

// Session is the set of keys held by one transaction. Not safe for concurrent use.
type Session struct {
	m    *Manager
	held map[string]*slot
}

func (m *Manager) NewSession() *Session {
	return &Session{m: m, held: make(map[string]*slot)}
}

// Holds reports whether the session already owns key.
func (s *Session) Holds(key string) bool {
	_, ok := s.held[key]
	return ok
}

// Lock acquires keys in ascending order, skipping keys the session already holds.
// The whole call waits at most wait; a non-positive wait blocks until ctx is done.
// On failure the keys acquired so far stay held until ReleaseAll.
func (s *Session) Lock(ctx context.Context, wait time.Duration, keys ...string) error {
	pending := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if _, dup := seen[k]; dup || s.Holds(k) {
			continue
		}
		seen[k] = struct{}{}
		pending = append(pending, k)
	}
	if len(pending) == 0 {
		return nil
	}
	sort.Strings(pending)

	var deadline <-chan time.Time
	if wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		deadline = timer.C
	}

	for _, key := range pending {
		sl := s.m.ref(key)
		select {
		case sl.sem <- struct{}{}:
			s.held[key] = sl
			continue
		default:
		}
		select {
		case sl.sem <- struct{}{}:
			s.held[key] = sl
		case <-deadline:
			s.m.unref(key, sl)
			return fmt.Errorf("%w: %s after %s", common.ErrLockTimeout, key, wait)
		case <-ctx.Done():
			s.m.unref(key, sl)
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("%w: %s: %v", common.ErrLockTimeout, key, ctx.Err())
			}
			return ctx.Err()
		}
	}
	return nil
}

// ReleaseAll frees every key held by the session. Safe to call more than once.
func (s *Session) ReleaseAll() {
	for key, sl := range s.held {
		<-sl.sem
		s.m.unref(key, sl)
		delete(s.held, key)
	}
}
