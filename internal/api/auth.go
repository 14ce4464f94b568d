package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"net"
	"net/http"
	"strings"

	"slotbook/internal/config"
	"slotbook/internal/domain"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

const (
	apiKeyHeaderDefault   = "x-api-key"
	apiExtraHeaderDefault = "x-api-extra"
	clientKeyUnknown      = "unknown"
	anonymousSubject      = "anonymous"
)

var (
	errMissingCredentials = errors.New("missing api key headers")
	errInvalidKey         = errors.New("invalid api key")
	errInvalidExtra       = errors.New("invalid extra header")
	errRateLimited        = errors.New("rate limit exceeded")
)

// authenticator resolves API key headers into a domain.AuthContext.
// With auth disabled every caller is an anonymous admin.
type authenticator struct {
	cfg         config.APIAuthConfig
	apiKeyName  string
	extraName   string
	clientByKey map[string]config.APIClientKey
	limiter     *rateLimiter
}

func newAuthenticator(cfg config.APIConfig) *authenticator {
	m := make(map[string]config.APIClientKey, len(cfg.Auth.APIKeys))
	for _, k := range cfg.Auth.APIKeys {
		m[k.Key] = k
	}
	return &authenticator{
		cfg:         cfg.Auth,
		apiKeyName:  headerName(cfg.Auth.HeaderAPIKey, apiKeyHeaderDefault),
		extraName:   headerName(cfg.Auth.HeaderExtra, apiExtraHeaderDefault),
		clientByKey: m,
		limiter:     newRateLimiter(cfg.RateLimit),
	}
}

func headerName(configured, fallback string) string {
	if h := strings.ToLower(strings.TrimSpace(configured)); h != "" {
		return h
	}
	return fallback
}

func (a *authenticator) authenticate(apiKey, extra string) (domain.AuthContext, error) {
	if !a.cfg.Enabled {
		return domain.Admin(anonymousSubject), nil
	}
	if apiKey == "" || extra == "" {
		return domain.AuthContext{}, errMissingCredentials
	}

	client, ok := a.clientByKey[apiKey]
	if !ok {
		return domain.AuthContext{}, errInvalidKey
	}
	if subtle.ConstantTimeCompare([]byte(client.Extra), []byte(extra)) != 1 {
		return domain.AuthContext{}, errInvalidExtra
	}

	subject := client.Name
	if subject == "" {
		subject = "api-key"
	}
	return domain.AuthContext{Subject: subject, Authenticated: true, Permissions: client.Permissions}, nil
}

func (a *authenticator) allow(clientKey string) bool {
	return a.limiter.allow(clientKey)
}

type authContextKey struct{}

func withAuth(ctx context.Context, auth domain.AuthContext) context.Context {
	return context.WithValue(ctx, authContextKey{}, auth)
}

// AuthFromContext returns the caller attached by the auth middleware or
// interceptor. A missing value is an unauthenticated caller.
func AuthFromContext(ctx context.Context) domain.AuthContext {
	auth, _ := ctx.Value(authContextKey{}).(domain.AuthContext)
	return auth
}

// HTTPAuth provides API-key auth and per-key rate limiting for HTTP endpoints.
type HTTPAuth struct {
	auth *authenticator
}

func NewHTTPAuth(cfg config.APIConfig) *HTTPAuth {
	return &HTTPAuth{auth: newAuthenticator(cfg)}
}

func (h *HTTPAuth) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isProbe(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		apiKey := strings.TrimSpace(r.Header.Get(h.auth.apiKeyName))
		extra := strings.TrimSpace(r.Header.Get(h.auth.extraName))
		auth, err := h.auth.authenticate(apiKey, extra)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}

		if !h.auth.allow(httpClientKey(apiKey, r.RemoteAddr)) {
			writeError(w, http.StatusTooManyRequests, errRateLimited.Error())
			return
		}

		// Mutations check write access in the service layer.
		if r.Method == http.MethodGet && !auth.Has(domain.PermReadSchedule) {
			writeError(w, http.StatusForbidden, "permission denied")
			return
		}

		next.ServeHTTP(w, r.WithContext(withAuth(r.Context(), auth)))
	})
}

func isProbe(path string) bool {
	return path == "/healthz" || path == "/readyz"
}

func httpClientKey(apiKey, remoteAddr string) string {
	if apiKey != "" {
		return apiKey
	}
	host, _, err := net.SplitHostPort(remoteAddr)
	if err == nil && host != "" {
		return host
	}
	return clientKeyUnknown
}

// AuthInterceptor applies the same checks to unary gRPC calls. The health
// service stays open for probes.
type AuthInterceptor struct {
	auth *authenticator
}

func NewAuthInterceptor(cfg config.APIConfig) *AuthInterceptor {
	return &AuthInterceptor{auth: newAuthenticator(cfg)}
}

func (a *AuthInterceptor) Unary() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if strings.HasPrefix(info.FullMethod, "/grpc.health.v1.Health/") {
			return handler(ctx, req)
		}

		md, _ := metadata.FromIncomingContext(ctx)
		apiKey := first(md.Get(a.auth.apiKeyName))
		auth, err := a.auth.authenticate(apiKey, first(md.Get(a.auth.extraName)))
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, err.Error())
		}

		if !a.auth.allow(grpcClientKey(ctx, apiKey)) {
			return nil, status.Error(codes.ResourceExhausted, errRateLimited.Error())
		}

		if !auth.Has(domain.PermReadSchedule) {
			return nil, status.Error(codes.PermissionDenied, "permission denied")
		}

		return handler(withAuth(ctx, auth), req)
	}
}

func grpcClientKey(ctx context.Context, apiKey string) string {
	if apiKey != "" {
		return apiKey
	}
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		return p.Addr.String()
	}
	return clientKeyUnknown
}

func first(vals []string) string {
	if len(vals) == 0 {
		return ""
	}
	return strings.TrimSpace(vals[0])
}
