package internal

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	pkgerrs "redveil/pkg/errors"
)

type fakeAcquirer struct {
	calls int64
	delay time.Duration
	err   error
	token string
}

func (f *fakeAcquirer) Acquire(ctx context.Context) (Credential, error) {
	atomic.AddInt64(&f.calls, 1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return Credential{}, f.err
	}
	now := time.Now()
	return Credential{
		Token:     f.token,
		TokenType: "bearer",
		ExpiresAt: now.Add(time.Hour),
		obtained:  now,
	}, nil
}

func TestTokenStoreSingleFlight(t *testing.T) {
	acq := &fakeAcquirer{token: "tok-1", delay: 20 * time.Millisecond}
	store := &TokenStore{acquirer: acq}

	const callers = 25
	var wg sync.WaitGroup
	tokens := make([]string, callers)
	errs := make([]error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			tokens[idx], errs[idx] = store.Token(context.Background())
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if tokens[i] != "tok-1" {
			t.Fatalf("caller %d got %q", i, tokens[i])
		}
	}
	if n := atomic.LoadInt64(&acq.calls); n != 1 {
		t.Errorf("Acquire called %d times, want exactly 1", n)
	}
}

func TestTokenStoreReusesValidCredential(t *testing.T) {
	acq := &fakeAcquirer{token: "tok-1"}
	store := &TokenStore{acquirer: acq}

	for i := 0; i < 5; i++ {
		if _, err := store.Token(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	if n := atomic.LoadInt64(&acq.calls); n != 1 {
		t.Errorf("Acquire called %d times for sequential reads, want 1", n)
	}
}

func TestTokenStoreErrorPropagatesToAllWaiters(t *testing.T) {
	authErr := &pkgerrs.AuthError{StatusCode: 403, Body: "nope"}
	acq := &fakeAcquirer{err: authErr, delay: 10 * time.Millisecond}
	store := &TokenStore{acquirer: acq}

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			_, errs[idx] = store.Token(context.Background())
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if !pkgerrs.IsAuth(err) {
			t.Errorf("caller %d got %v, want AuthError", i, err)
		}
	}

	// A failed refresh must not poison the store.
	acq.err = nil
	acq.token = "tok-2"
	tok, err := store.Token(context.Background())
	if err != nil {
		t.Fatalf("retry after failure: %v", err)
	}
	if tok != "tok-2" {
		t.Errorf("retry token = %q", tok)
	}
}

func TestTokenStoreInvalidate(t *testing.T) {
	acq := &fakeAcquirer{token: "tok-1"}
	store := &TokenStore{acquirer: acq}

	if _, err := store.Token(context.Background()); err != nil {
		t.Fatal(err)
	}
	store.Invalidate()
	acq.token = "tok-2"

	tok, err := store.Token(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if tok != "tok-2" {
		t.Errorf("token after invalidate = %q, want tok-2", tok)
	}
	if n := atomic.LoadInt64(&acq.calls); n != 2 {
		t.Errorf("Acquire called %d times, want 2", n)
	}
}

func TestUsable(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name string
		cred Credential
		want bool
	}{
		{name: "empty", cred: Credential{}, want: false},
		{
			name: "fresh",
			cred: Credential{Token: "t", ExpiresAt: now.Add(time.Hour), obtained: now},
			want: true,
		},
		{
			name: "inside expiry margin",
			cred: Credential{Token: "t", ExpiresAt: now.Add(30 * time.Second), obtained: now},
			want: false,
		},
		{
			name: "expired",
			cred: Credential{Token: "t", ExpiresAt: now.Add(-time.Minute), obtained: now.Add(-time.Hour)},
			want: false,
		},
		{
			name: "over max age",
			cred: Credential{Token: "t", ExpiresAt: now.Add(time.Hour), obtained: now.Add(-25 * time.Hour)},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := usable(tt.cred, now); got != tt.want {
				t.Errorf("usable() = %v, want %v", got, tt.want)
			}
		})
	}
}
