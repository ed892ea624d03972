package platform

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldops/fieldsync/internal/config"
	apperrors "github.com/fieldops/fieldsync/internal/errors"
)

func setupTestClient(t *testing.T) (*Client, *httptest.Server, func()) {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)

	server := httptest.NewServer(nil)
	cfg := &config.PlatformConfig{
		BaseURL:        server.URL,
		RequestTimeout: 5 * time.Second,
		RateLimit:      config.RateLimitConfig{RemainingBuffer: 5},
	}
	client := NewClient(cfg, NewStaticProvider("test-token"), logger)

	return client, server, server.Close
}

func TestClient_FetchPage(t *testing.T) {
	client, server, cleanup := setupTestClient(t)
	defer cleanup()

	ctx := context.Background()
	desc := testDescriptor()

	t.Run("successful page with cursor and filter", func(t *testing.T) {
		since := time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC)
		server.Config.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "GET", r.Method)
			assert.Equal(t, "/customers", r.URL.Path)
			assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
			assert.Equal(t, "100", r.URL.Query().Get("pageSize"))
			assert.Equal(t, "2024-03-20T00:00:00Z", r.URL.Query().Get("modifiedOnOrAfter"))
			assert.Equal(t, "cur_123", r.URL.Query().Get("continueFrom"))

			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{
				"data": [
					{"id":"cus_1","name":"Acme","balance":1,"modifiedAt":"2024-03-20T10:00:00Z"},
					{"id":"cus_2","name":"Bolt","balance":2,"modifiedAt":"2024-03-20T11:00:00Z"}
				],
				"hasMore": true,
				"continueFrom": "cur_456"
			}`))
		})

		page, err := client.FetchPage(ctx, desc, PageRequest{ModifiedSince: &since, Cursor: "cur_123"})
		require.NoError(t, err)
		assert.Len(t, page.Records, 2)
		assert.True(t, page.HasMore)
		assert.Equal(t, "cur_456", page.NextCursor)
		assert.Equal(t, "cus_1", page.Records[0].ExternalID)
	})

	t.Run("final page has no cursor", func(t *testing.T) {
		server.Config.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Empty(t, r.URL.Query().Get("modifiedOnOrAfter"))
			assert.Empty(t, r.URL.Query().Get("continueFrom"))
			w.Write([]byte(`{"data":[],"hasMore":false,"continueFrom":null}`))
		})

		page, err := client.FetchPage(ctx, desc, PageRequest{})
		require.NoError(t, err)
		assert.Empty(t, page.Records)
		assert.False(t, page.HasMore)
		assert.Empty(t, page.NextCursor)
	})

	t.Run("server errors are transient", func(t *testing.T) {
		server.Config.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		})
		_, err := client.FetchPage(ctx, desc, PageRequest{})
		require.Error(t, err)
		assert.True(t, apperrors.IsTransient(err))
	})

	t.Run("unauthorized is a credential error", func(t *testing.T) {
		server.Config.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "bad token", http.StatusUnauthorized)
		})
		_, err := client.FetchPage(ctx, desc, PageRequest{})
		require.Error(t, err)
		assert.True(t, apperrors.IsCredential(err))
	})

	t.Run("bad request is a validation error", func(t *testing.T) {
		server.Config.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "unknown parameter", http.StatusBadRequest)
		})
		_, err := client.FetchPage(ctx, desc, PageRequest{})
		require.Error(t, err)
		assert.True(t, apperrors.IsValidation(err))
	})

	t.Run("malformed envelope is a validation error", func(t *testing.T) {
		server.Config.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"data": "not-an-array"}`))
		})
		_, err := client.FetchPage(ctx, desc, PageRequest{})
		require.Error(t, err)
		assert.True(t, apperrors.IsValidation(err))
	})

	t.Run("connection failure is transient", func(t *testing.T) {
		down, _, downCleanup := setupTestClient(t)
		downCleanup()
		_, err := down.FetchPage(ctx, desc, PageRequest{})
		require.Error(t, err)
		assert.True(t, apperrors.IsTransient(err))
	})
}

func TestClient_RateLimitHeaders(t *testing.T) {
	client, server, cleanup := setupTestClient(t)
	defer cleanup()

	server.Config.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-RateLimit-Limit", "1000")
		w.Header().Set("X-RateLimit-Remaining", "997")
		w.Write([]byte(`{"data":[],"hasMore":false}`))
	})

	_, err := client.FetchPage(context.Background(), testDescriptor(), PageRequest{})
	require.NoError(t, err)
	assert.Equal(t, 1000, client.rateLimit.Limit)
	assert.Equal(t, 997, client.rateLimit.Remaining)
}

func TestClient_ConcurrentFetchesShareRateLimitState(t *testing.T) {
	client, server, cleanup := setupTestClient(t)
	defer cleanup()

	var served atomic.Int64
	server.Config.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := served.Add(1)
		w.Header().Set("X-RateLimit-Limit", "1000")
		w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(1000-n, 10))
		w.Write([]byte(`{"data":[],"hasMore":false}`))
	})

	// Entity loops share one client; the rate limit bookkeeping must stay
	// consistent when they fetch in parallel.
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				_, err := client.FetchPage(context.Background(), testDescriptor(), PageRequest{})
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(20), served.Load())

	// Responses land in any order; the recorded remaining must be one of
	// the served values, not a torn mix.
	client.rlMu.Lock()
	defer client.rlMu.Unlock()
	assert.Equal(t, 1000, client.rateLimit.Limit)
	assert.GreaterOrEqual(t, client.rateLimit.Remaining, 980)
	assert.LessOrEqual(t, client.rateLimit.Remaining, 999)
}

func TestTokenSourceProvider_Invalidate(t *testing.T) {
	p := NewStaticProvider("tok-1")

	tok, err := p.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok)

	// Invalidate must not lose the ability to mint a credential
	p.Invalidate()
	tok, err = p.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok)
}
