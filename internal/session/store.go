package session

import (
	"context"
	"sync"
	"time"
)

// Store indexes live sessions by id and evicts idle ones.
type Store struct {
	idleTTL time.Duration
	now     func() time.Time
	logger  func(ctx context.Context, event string, fields map[string]any)

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewStore returns an empty store. A non-positive idleTTL disables eviction.
func NewStore(idleTTL time.Duration, now func() time.Time, logger func(ctx context.Context, event string, fields map[string]any)) *Store {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &Store{idleTTL: idleTTL, now: now, logger: logger, sessions: make(map[string]*Session)}
}

// Get returns a live session and marks it active.
func (s *Store) Get(id string) (*Session, bool) {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	s.mu.Unlock()
	if !ok {
		return nil, false
	}
	if s.expired(sess, s.now()) {
		s.Remove(id)
		return nil, false
	}
	sess.Touch()
	return sess, true
}

// Put registers sess, replacing and closing any session with the same id.
func (s *Store) Put(sess *Session) {
	s.mu.Lock()
	prev := s.sessions[sess.ID()]
	s.sessions[sess.ID()] = sess
	s.mu.Unlock()
	if prev != nil && prev != sess {
		prev.Close()
	}
}

// Remove closes and forgets a session.
func (s *Store) Remove(id string) {
	s.mu.Lock()
	sess := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if sess != nil {
		sess.Close()
	}
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Store) expired(sess *Session, now time.Time) bool {
	return s.idleTTL > 0 && now.Sub(sess.LastSeen()) > s.idleTTL
}

// Sweep evicts sessions idle for longer than the TTL and returns how many it closed.
func (s *Store) Sweep(ctx context.Context) int {
	now := s.now()
	s.mu.Lock()
	var stale []*Session
	for id, sess := range s.sessions {
		if s.expired(sess, now) {
			stale = append(stale, sess)
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()

	for _, sess := range stale {
		sess.Close()
	}
	if len(stale) > 0 {
		s.logger(ctx, "session.swept", map[string]any{"evicted": len(stale)})
	}
	return len(stale)
}

// Run sweeps every interval until ctx ends, then closes all sessions.
func (s *Store) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		<-ctx.Done()
		s.CloseAll()
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.CloseAll()
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// CloseAll closes every session.
func (s *Store) CloseAll() {
	s.mu.Lock()
	all := s.sessions
	s.sessions = make(map[string]*Session)
	s.mu.Unlock()
	for _, sess := range all {
		sess.Close()
	}
}
