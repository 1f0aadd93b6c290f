package internal

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	// expiryMargin forces a refresh shortly before the upstream expiry to
	// avoid racing the boundary with an in-flight request.
	expiryMargin = time.Minute
	// maxCredentialAge rotates a still-valid credential proactively.
	maxCredentialAge = 24 * time.Hour
)

// TokenStore owns the current bearer credential. Reads are lock-cheap once
// a valid credential exists; a stale or missing credential triggers exactly
// one refresh regardless of how many callers race it, and every waiter
// observes the same credential or the same AuthError.
type TokenStore struct {
	acquirer interface {
		Acquire(ctx context.Context) (Credential, error)
	}

	mu    sync.RWMutex
	cred  Credential
	group singleflight.Group
}

// NewTokenStore creates a store backed by the given acquirer. The first
// Token call performs the initial acquisition lazily.
func NewTokenStore(acquirer *Authenticator) *TokenStore {
	return &TokenStore{acquirer: acquirer}
}

// Token returns a currently valid bearer token, refreshing if needed.
func (s *TokenStore) Token(ctx context.Context) (string, error) {
	s.mu.RLock()
	cred := s.cred
	s.mu.RUnlock()
	if usable(cred, time.Now()) {
		return cred.Token, nil
	}
	return s.refresh(ctx)
}

// refresh funnels concurrent stale observations into a single Acquire call.
// DoChan rather than Do so an abandoned caller can stop waiting without
// cancelling the shared refresh for everyone else.
func (s *TokenStore) refresh(ctx context.Context) (string, error) {
	ch := s.group.DoChan("refresh", func() (interface{}, error) {
		// Re-check under the flight: a racing caller may have refreshed
		// between our staleness observation and this execution.
		s.mu.RLock()
		cred := s.cred
		s.mu.RUnlock()
		if usable(cred, time.Now()) {
			return cred.Token, nil
		}

		fresh, err := s.acquirer.Acquire(context.WithoutCancel(ctx))
		if err != nil {
			CountTokenRefresh("error")
			return "", err
		}
		CountTokenRefresh("ok")
		s.mu.Lock()
		s.cred = fresh
		s.mu.Unlock()
		return fresh.Token, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Invalidate drops the stored credential so the next Token call acquires a
// fresh one. Used when upstream rejects a token before its expiry.
func (s *TokenStore) Invalidate() {
	s.mu.Lock()
	s.cred = Credential{}
	s.mu.Unlock()
}

func usable(c Credential, now time.Time) bool {
	if c.Token == "" {
		return false
	}
	if !now.Add(expiryMargin).Before(c.ExpiresAt) {
		return false
	}
	return now.Sub(c.obtained) < maxCredentialAge
}
