package auth

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"secondbrain/internal/domain"
	"secondbrain/internal/log"
)

func tokenServer(t *testing.T, calls *atomic.Int64, expiresIn int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, grantType, r.PostForm.Get("grant_type"))
		assert.Equal(t, "test-key", r.PostForm.Get("apikey"))
		n := calls.Add(1)
		fmt.Fprintf(w, `{"access_token":"tok-%d","expires_in":%d}`, n, expiresIn)
	}))
}

func newTestManager(url string) *Manager {
	return NewManager(Config{APIKey: "test-key", TokenURL: url}, log.NewNop())
}

func TestTokenCachedUntilExpiry(t *testing.T) {
	var calls atomic.Int64
	srv := tokenServer(t, &calls, 3600)
	defer srv.Close()

	m := newTestManager(srv.URL)
	ctx := context.Background()
	tok1, err := m.Token(ctx)
	require.NoError(t, err)
	tok2, err := m.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, tok1, tok2)
	assert.Equal(t, int64(1), calls.Load())
}

func TestTokenRefreshesWithinMargin(t *testing.T) {
	var calls atomic.Int64
	srv := tokenServer(t, &calls, 3600)
	defer srv.Close()

	m := newTestManager(srv.URL)
	ctx := context.Background()
	_, err := m.Token(ctx)
	require.NoError(t, err)

	// jump to 1 minute before expiry, inside the 5 minute margin
	base := time.Now()
	m.now = func() time.Time { return base.Add(3600*time.Second - time.Minute) }
	_, err = m.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), calls.Load())
}

func TestConcurrentCallersSingleRefresh(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		time.Sleep(50 * time.Millisecond) // widen the race window
		fmt.Fprint(w, `{"access_token":"tok","expires_in":3600}`)
	}))
	defer srv.Close()

	m := newTestManager(srv.URL)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tok, err := m.Token(context.Background())
			assert.NoError(t, err)
			assert.Equal(t, "tok", tok)
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(1), calls.Load())
}

func TestInvalidateForcesRefresh(t *testing.T) {
	var calls atomic.Int64
	srv := tokenServer(t, &calls, 3600)
	defer srv.Close()

	m := newTestManager(srv.URL)
	ctx := context.Background()
	tok1, err := m.Token(ctx)
	require.NoError(t, err)
	m.Invalidate()
	tok2, err := m.Token(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, tok1, tok2)
	assert.Equal(t, int64(2), calls.Load())
}

func TestExhaustedRetriesSurfaceAuthFailure(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	m := newTestManager(srv.URL)
	_, err := m.Token(context.Background())
	assert.ErrorIs(t, err, domain.ErrAuthFailed)
	assert.Equal(t, int64(3), calls.Load(), "three attempts, then give up")

	// nothing cached after failure
	_, ok := m.cached()
	assert.False(t, ok)
}

func TestBadCredentialsNotRetried(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "invalid apikey", http.StatusBadRequest)
	}))
	defer srv.Close()

	m := newTestManager(srv.URL)
	_, err := m.Token(context.Background())
	assert.ErrorIs(t, err, domain.ErrAuthFailed)
	var upstream *domain.UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, http.StatusBadRequest, upstream.Status)
	assert.Equal(t, int64(1), calls.Load())
}
