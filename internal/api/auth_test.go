package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"slotbook/internal/config"
	"slotbook/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

func authConfig() config.APIConfig {
	return config.APIConfig{
		Auth: config.APIAuthConfig{
			Enabled:      true,
			HeaderAPIKey: "x-api-key",
			HeaderExtra:  "x-api-extra",
			APIKeys: []config.APIClientKey{
				{Key: "admin-key", Extra: "admin-extra", Name: "front-desk"},
				{Key: "read-key", Extra: "read-extra", Name: "dashboard", Permissions: []string{domain.PermReadSchedule}},
				{Key: "write-only", Extra: "wo-extra", Name: "importer", Permissions: []string{domain.PermWriteSchedule}},
			},
		},
		RateLimit: config.APIRateLimitConfig{RPS: 100, Burst: 200},
	}
}

func TestAuthInterceptor(t *testing.T) {
	auth := NewAuthInterceptor(authConfig())
	interceptor := auth.Unary()

	var seen domain.AuthContext
	handler := func(ctx context.Context, req any) (any, error) {
		seen = AuthFromContext(ctx)
		return "ok", nil
	}
	info := &grpc.UnaryServerInfo{FullMethod: "/slotbook.v1.Schedule/DayStatus"}
	incoming := func(kv ...string) context.Context {
		return metadata.NewIncomingContext(context.Background(), metadata.Pairs(kv...))
	}

	t.Run("Success", func(t *testing.T) {
		resp, err := interceptor(incoming("x-api-key", "admin-key", "x-api-extra", "admin-extra"), "req", info, handler)
		require.NoError(t, err)
		assert.Equal(t, "ok", resp)
		assert.Equal(t, "front-desk", seen.Subject)
		assert.True(t, seen.CanWrite())
	})

	t.Run("ReadOnlyKey", func(t *testing.T) {
		_, err := interceptor(incoming("x-api-key", "read-key", "x-api-extra", "read-extra"), "req", info, handler)
		require.NoError(t, err)
		assert.False(t, seen.CanWrite())
	})

	t.Run("MissingMetadata", func(t *testing.T) {
		_, err := interceptor(context.Background(), "req", info, handler)
		assert.Equal(t, codes.Unauthenticated, status.Code(err))
	})

	t.Run("InvalidKey", func(t *testing.T) {
		_, err := interceptor(incoming("x-api-key", "invalid", "x-api-extra", "admin-extra"), "req", info, handler)
		assert.Equal(t, codes.Unauthenticated, status.Code(err))
	})

	t.Run("InvalidExtra", func(t *testing.T) {
		_, err := interceptor(incoming("x-api-key", "admin-key", "x-api-extra", "invalid"), "req", info, handler)
		assert.Equal(t, codes.Unauthenticated, status.Code(err))
	})

	t.Run("PermissionDenied", func(t *testing.T) {
		_, err := interceptor(incoming("x-api-key", "write-only", "x-api-extra", "wo-extra"), "req", info, handler)
		assert.Equal(t, codes.PermissionDenied, status.Code(err))
	})

	t.Run("HealthIsOpen", func(t *testing.T) {
		healthInfo := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}
		resp, err := interceptor(context.Background(), "req", healthInfo, handler)
		require.NoError(t, err)
		assert.Equal(t, "ok", resp)
	})
}

func TestAuthInterceptorRateLimit(t *testing.T) {
	cfg := authConfig()
	cfg.RateLimit = config.APIRateLimitConfig{RPS: 0.001, Burst: 1}
	interceptor := NewAuthInterceptor(cfg).Unary()
	handler := func(context.Context, any) (any, error) { return "ok", nil }
	info := &grpc.UnaryServerInfo{FullMethod: "/slotbook.v1.Schedule/DayStatus"}
	ctx := metadata.NewIncomingContext(context.Background(),
		metadata.Pairs("x-api-key", "admin-key", "x-api-extra", "admin-extra"))

	_, err := interceptor(ctx, "req", info, handler)
	require.NoError(t, err)
	_, err = interceptor(ctx, "req", info, handler)
	assert.Equal(t, codes.ResourceExhausted, status.Code(err))
}

func TestAuthDisabled(t *testing.T) {
	a := newAuthenticator(config.APIConfig{})
	auth, err := a.authenticate("", "")
	require.NoError(t, err)
	assert.Equal(t, anonymousSubject, auth.Subject)
	assert.True(t, auth.CanWrite())
}

func TestHTTPAuth(t *testing.T) {
	var seen domain.AuthContext
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = AuthFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	handler := NewHTTPAuth(authConfig()).Wrap(next)

	do := func(method, path, key, extra string) int {
		req := httptest.NewRequest(method, path, nil)
		if key != "" {
			req.Header.Set("X-Api-Key", key)
			req.Header.Set("X-Api-Extra", extra)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusNoContent, do(http.MethodGet, "/api/v1/days", "admin-key", "admin-extra"))
	assert.Equal(t, "front-desk", seen.Subject)

	assert.Equal(t, http.StatusUnauthorized, do(http.MethodGet, "/api/v1/days", "", ""))
	assert.Equal(t, http.StatusUnauthorized, do(http.MethodGet, "/api/v1/days", "admin-key", "wrong"))
	assert.Equal(t, http.StatusForbidden, do(http.MethodGet, "/api/v1/days", "write-only", "wo-extra"))
	assert.Equal(t, http.StatusNoContent, do(http.MethodPost, "/api/v1/blocks", "write-only", "wo-extra"))
	assert.Equal(t, http.StatusNoContent, do(http.MethodGet, "/healthz", "", ""))
}

func TestRateLimiter(t *testing.T) {
	l := newRateLimiter(config.APIRateLimitConfig{RPS: 0.001, Burst: 2})
	assert.True(t, l.allow("a"))
	assert.True(t, l.allow("a"))
	assert.False(t, l.allow("a"))
	assert.True(t, l.allow("b"), "limits are per key")
	assert.Same(t, l.getLimiter("a"), l.getLimiter("a"))

	unlimited := newRateLimiter(config.APIRateLimitConfig{})
	for i := 0; i < 100; i++ {
		assert.True(t, unlimited.allow("a"))
	}
}

func TestHTTPClientKey(t *testing.T) {
	assert.Equal(t, "key", httpClientKey("key", "10.0.0.1:1234"))
	assert.Equal(t, "10.0.0.1", httpClientKey("", "10.0.0.1:1234"))
	assert.Equal(t, clientKeyUnknown, httpClientKey("", "garbage"))
}
