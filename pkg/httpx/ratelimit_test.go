package httpx_test

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/halcyonlabs/adminauth/pkg/httpx"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func getFrom(t *testing.T, h http.Handler, addr, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.RemoteAddr = addr
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRateLimitByIPBlocksOverBurst(t *testing.T) {
	cfg := httpx.RateLimitConfig{Requests: 3, Window: time.Minute, Burst: 3}
	h := httpx.RateLimitByIP(cfg)(okHandler())

	for i := range 3 {
		rec := getFrom(t, h, "192.0.2.1:4000", "/")
		require.Equal(t, http.StatusOK, rec.Code, "request %d", i+1)
	}

	rec := getFrom(t, h, "192.0.2.1:4000", "/")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.NotEmpty(t, rec.Header().Get("Retry-After"))
	require.Contains(t, rec.Body.String(), "rate_limit_exceeded")

	// A different address still gets through.
	rec = getFrom(t, h, "192.0.2.2:4000", "/")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimitTrustsProxyHeaders(t *testing.T) {
	cfg := httpx.RateLimitConfig{Requests: 1, Window: time.Minute, Burst: 1}
	h := httpx.RateLimitByIP(cfg)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:4000"
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	// Same client through a different proxy hop is the same bucket.
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.2:4000"
	req.Header.Set("X-Forwarded-For", "203.0.113.9")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestRateLimitByUser(t *testing.T) {
	cfg := httpx.RateLimitConfig{Requests: 2, Window: time.Minute, Burst: 2}
	h := httpx.RateLimitByUser(cfg)(okHandler())

	send := func(userID, addr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = addr
		if userID != "" {
			req = req.WithContext(httpx.WithUserID(req.Context(), userID))
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	// The bucket follows the user across addresses.
	require.Equal(t, http.StatusOK, send("user-1", "192.0.2.1:4000").Code)
	require.Equal(t, http.StatusOK, send("user-1", "192.0.2.2:4000").Code)
	require.Equal(t, http.StatusTooManyRequests, send("user-1", "192.0.2.3:4000").Code)

	require.Equal(t, http.StatusOK, send("user-2", "192.0.2.1:4000").Code)

	// Unauthenticated requests fall back to the address.
	require.Equal(t, http.StatusOK, send("", "192.0.2.9:4000").Code)
	require.Equal(t, http.StatusOK, send("", "192.0.2.9:4000").Code)
	require.Equal(t, http.StatusTooManyRequests, send("", "192.0.2.9:4000").Code)
}

func TestRateLimitByIPAndFormField(t *testing.T) {
	cfg := httpx.RateLimitConfig{Requests: 2, Window: time.Minute, Burst: 2}
	h := httpx.RateLimitByIPAndFormField(cfg, "identifier")(okHandler())

	post := func(identifier string) *httptest.ResponseRecorder {
		form := url.Values{"identifier": {identifier}}
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.RemoteAddr = "192.0.2.1:4000"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	require.Equal(t, http.StatusOK, post("alice").Code)
	require.Equal(t, http.StatusOK, post("alice").Code)
	require.Equal(t, http.StatusTooManyRequests, post("alice").Code)

	// Same address, different account: separate bucket.
	require.Equal(t, http.StatusOK, post("bob").Code)
}

func TestRateLimitProfilesOrdering(t *testing.T) {
	for name, cfg := range map[string]httpx.RateLimitConfig{
		"strict":   httpx.StrictLimit,
		"moderate": httpx.ModerateLimit,
		"lenient":  httpx.LenientLimit,
		"public":   httpx.PublicLimit,
	} {
		require.Positive(t, cfg.Requests, name)
		require.Positive(t, cfg.Window, name)
		require.Positive(t, cfg.Burst, name)
	}

	require.Less(t, httpx.StrictLimit.Requests, httpx.ModerateLimit.Requests)
	require.Less(t, httpx.ModerateLimit.Requests, httpx.LenientLimit.Requests)
	require.Less(t, httpx.LenientLimit.Requests, httpx.PublicLimit.Requests)
}
