package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/matthewhartstonge/argon2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/vasapolrittideah/health-journal-api/services/journal-service/internal/config"
	"github.com/vasapolrittideah/health-journal-api/services/journal-service/internal/model"
	"github.com/vasapolrittideah/health-journal-api/services/journal-service/internal/payload"
	"github.com/vasapolrittideah/health-journal-api/services/journal-service/internal/repository"
	"github.com/vasapolrittideah/health-journal-api/services/journal-service/internal/usecase"
	"github.com/vasapolrittideah/health-journal-api/shared/auth"
	"github.com/vasapolrittideah/health-journal-api/shared/metrics"
	"github.com/vasapolrittideah/health-journal-api/shared/ratelimit"
	"github.com/vasapolrittideah/health-journal-api/shared/security"
	"github.com/vasapolrittideah/health-journal-api/shared/validator"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recordingNotifier struct {
	mu   sync.Mutex
	urls map[string]string
}

func (n *recordingNotifier) SendPasswordReset(_ context.Context, to, resetURL string, _ time.Duration) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.urls == nil {
		n.urls = make(map[string]string)
	}
	n.urls[to] = resetURL
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.urls)
}

func (n *recordingNotifier) tokenFor(t *testing.T, email string) string {
	t.Helper()

	n.mu.Lock()
	resetURL, ok := n.urls[email]
	n.mu.Unlock()
	require.True(t, ok, "no reset link sent to %s", email)

	i := strings.LastIndex(resetURL, "?")
	require.GreaterOrEqual(t, i, 0)
	q, err := url.ParseQuery(resetURL[i+1:])
	require.NoError(t, err)
	return q.Get("token")
}

type testServer struct {
	handler  http.Handler
	notifier *recordingNotifier
	reset    usecase.PasswordResetUsecase
	metrics  *metrics.Metrics
	pingErr  error
}

type serverOption func(*RouterConfig)

func newTestServer(t *testing.T, opts ...serverOption) *testServer {
	t.Helper()

	hashCfg := argon2.DefaultConfig()
	hashCfg.MemoryCost = 8 * 1024
	hashCfg.TimeCost = 1
	hashCfg.Parallelism = 1

	v, err := validator.New()
	require.NoError(t, err)

	cfg := &config.JournalServiceConfig{
		AppPasswordResetURL: "http://localhost:5173/#/reset-password",
		Token: config.TokenConfig{
			Secret:                      "router-test-secret",
			Issuer:                      "health-journal-api",
			AccessTokenExpiresIn:        config.AccessTokenTTL,
			PasswordResetTokenExpiresIn: config.PasswordResetTokenTTL,
		},
		SMTP: config.SMTPConfig{SendTimeout: time.Second},
	}

	logger := zerolog.Nop()
	store := repository.NewMemoryStore()
	hasher := security.NewArgon2HasherWithConfig(hashCfg, 2)
	jwtAuth := auth.NewJWTAuthenticator(cfg.Token.Issuer, cfg.Token.Issuer)
	m := metrics.New("journal_test")

	ts := &testServer{notifier: &recordingNotifier{}, metrics: m}

	authUsecase := usecase.NewAuthUsecase(store.Users, repository.NewMemoryTokenDenylist(time.Now),
		hasher, jwtAuth, v, cfg.Token, &logger)
	ts.reset = usecase.NewPasswordResetUsecase(store.Users, hasher, ts.notifier, v, cfg, &logger,
		usecase.WithResetObserver(m))
	t.Cleanup(ts.reset.Wait)

	limiter := ratelimit.NewMemoryLimiter()
	t.Cleanup(func() { _ = limiter.Close() })

	routerCfg := RouterConfig{
		Logger:               &logger,
		AuthUsecase:          authUsecase,
		PasswordResetUsecase: ts.reset,
		HealthEntryUsecase:   usecase.NewHealthEntryUsecase(store.Entries, v),
		Metrics:              m,
		Limiter:              limiter,
		AuthRateLimit:        100,
		HealthCheck: func(context.Context) error {
			return ts.pingErr
		},
	}
	for _, opt := range opts {
		opt(&routerCfg)
	}

	ts.handler = NewRouter(routerCfg)
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func (ts *testServer) register(t *testing.T, email, password string) payload.AuthResponse {
	t.Helper()

	rec := ts.do(t, http.MethodPost, "/api/auth/register", map[string]string{
		"email":    email,
		"name":     "Alice",
		"password": password,
	}, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[payload.AuthResponse](t, rec)
}

func TestRouter_RegisterLoginMe(t *testing.T) {
	ts := newTestServer(t)

	registered := ts.register(t, "alice@example.com", "secret1")
	assert.NotEmpty(t, registered.Token)
	assert.Equal(t, "alice@example.com", registered.User.Email)

	rec := ts.do(t, http.MethodPost, "/api/auth/login", map[string]string{
		"email":    "alice@example.com",
		"password": "secret1",
	}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	login := decode[payload.AuthResponse](t, rec)
	assert.Equal(t, registered.User.ID, login.User.ID)

	rec = ts.do(t, http.MethodGet, "/api/auth/me", nil, login.Token)
	require.Equal(t, http.StatusOK, rec.Code)

	me := decode[map[string]any](t, rec)
	assert.Equal(t, registered.User.ID, me["id"])
	assert.Equal(t, "alice@example.com", me["email"])
	assert.Equal(t, "Alice", me["name"])
	assert.NotContains(t, rec.Body.String(), "password")
	assert.NotContains(t, rec.Body.String(), "reset")
}

func TestRouter_RegisterErrors(t *testing.T) {
	ts := newTestServer(t)
	ts.register(t, "alice@example.com", "secret1")

	rec := ts.do(t, http.MethodPost, "/api/auth/register", map[string]string{
		"email":    "alice@example.com",
		"password": "another1",
	}, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "Email already in use", decode[payload.ErrorResponse](t, rec).Error)

	rec = ts.do(t, http.MethodPost, "/api/auth/register", map[string]string{
		"email":    "not-an-email",
		"password": "123",
	}, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode[payload.ErrorResponse](t, rec)
	assert.Contains(t, body.Details, "email")
	assert.Contains(t, body.Details, "password")

	rec = ts.do(t, http.MethodPost, "/api/auth/register", "{not json", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid JSON body", decode[payload.ErrorResponse](t, rec).Error)
}

func TestRouter_LoginFailuresAreIndistinguishable(t *testing.T) {
	ts := newTestServer(t)
	ts.register(t, "alice@example.com", "secret1")

	wrongPassword := ts.do(t, http.MethodPost, "/api/auth/login", map[string]string{
		"email":    "alice@example.com",
		"password": "wrong-password",
	}, "")
	unknownEmail := ts.do(t, http.MethodPost, "/api/auth/login", map[string]string{
		"email":    "nobody@example.com",
		"password": "wrong-password",
	}, "")

	assert.Equal(t, http.StatusUnauthorized, wrongPassword.Code)
	assert.Equal(t, wrongPassword.Code, unknownEmail.Code)
	assert.Equal(t, wrongPassword.Body.String(), unknownEmail.Body.String())
}

func TestRouter_AuthenticationErrors(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name   string
		header string
		want   string
	}{
		{name: "no header", header: "", want: "Missing token"},
		{name: "wrong scheme", header: "Basic abc", want: "Missing token"},
		{name: "garbage token", header: "Bearer not-a-jwt", want: "Invalid token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			ts.handler.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, tt.want, decode[payload.ErrorResponse](t, rec).Error)
		})
	}
}

func TestRouter_Logout(t *testing.T) {
	ts := newTestServer(t)
	session := ts.register(t, "alice@example.com", "secret1")

	rec := ts.do(t, http.MethodPost, "/api/auth/logout", nil, session.Token)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/auth/me", nil, session.Token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid token", decode[payload.ErrorResponse](t, rec).Error)
}

func TestRouter_PasswordResetFlow(t *testing.T) {
	ts := newTestServer(t)
	ts.register(t, "alice@example.com", "secret1")

	known := ts.do(t, http.MethodPost, "/api/auth/forgot-password", map[string]string{
		"email": "alice@example.com",
	}, "")
	unknown := ts.do(t, http.MethodPost, "/api/auth/forgot-password", map[string]string{
		"email": "nobody@example.com",
	}, "")

	require.Equal(t, http.StatusOK, known.Code)
	assert.Equal(t, known.Code, unknown.Code)
	assert.Equal(t, known.Body.String(), unknown.Body.String())
	assert.Equal(t, payload.ForgotPasswordMessage, decode[payload.MessageResponse](t, known).Message)

	ts.reset.Wait()
	require.Equal(t, 1, ts.notifier.count())
	token := ts.notifier.tokenFor(t, "alice@example.com")

	rec := ts.do(t, http.MethodGet, "/api/auth/reset-password/validate?token="+token, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[payload.ValidateResetTokenResponse](t, rec).Valid)

	rec = ts.do(t, http.MethodPost, "/api/auth/reset-password", map[string]string{
		"token":    token,
		"password": "secret2",
	}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, payload.ResetPasswordMessage, decode[payload.MessageResponse](t, rec).Message)

	rec = ts.do(t, http.MethodPost, "/api/auth/login", map[string]string{
		"email":    "alice@example.com",
		"password": "secret1",
	}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/auth/login", map[string]string{
		"email":    "alice@example.com",
		"password": "secret2",
	}, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/auth/reset-password", map[string]string{
		"token":    token,
		"password": "secret3",
	}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid or expired token", decode[payload.ErrorResponse](t, rec).Error)

	rec = ts.do(t, http.MethodGet, "/api/auth/reset-password/validate?token="+token, nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_ForgotPasswordValidation(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/auth/forgot-password", map[string]string{"email": "nope"}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[payload.ErrorResponse](t, rec).Details, "email")
}

func TestRouter_HealthEntries(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.register(t, "alice@example.com", "secret1")
	bob := ts.register(t, "bob@example.com", "secret1")

	for _, text := range []string{"first", "second", "third"} {
		rec := ts.do(t, http.MethodPost, "/api/health/entries", map[string]any{
			"entryText":   text,
			"moodScore":   7,
			"energyScore": 0,
			"sleepHours":  7.5,
			"steps":       4000,
		}, alice.Token)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	rec := ts.do(t, http.MethodPost, "/api/health/entries", map[string]any{
		"entryText": "bad",
		"moodScore": 11,
	}, alice.Token)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	details := decode[payload.ErrorResponse](t, rec).Details
	assert.Contains(t, details, "moodScore")
	assert.Contains(t, details, "energyScore")

	rec = ts.do(t, http.MethodGet, "/api/health/entries?limit=2", nil, alice.Token)
	require.Equal(t, http.StatusOK, rec.Code)
	entries := decode[[]map[string]any](t, rec)
	require.Len(t, entries, 2)
	assert.Equal(t, "third", entries[0]["entryText"])
	assert.Equal(t, alice.User.ID, entries[0]["userId"])

	rec = ts.do(t, http.MethodGet, "/api/health/entries?limit=abc", nil, alice.Token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]map[string]any](t, rec), 3)

	rec = ts.do(t, http.MethodGet, "/api/health/entries", nil, bob.Token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String())

	rec = ts.do(t, http.MethodGet, "/api/health/entries", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouter_RateLimit(t *testing.T) {
	ts := newTestServer(t, func(cfg *RouterConfig) {
		cfg.AuthRateLimit = 2
	})

	body := map[string]string{"email": "nobody@example.com", "password": "secret1"}
	for i := 0; i < 2; i++ {
		rec := ts.do(t, http.MethodPost, "/api/auth/login", body, "")
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	}

	rec := ts.do(t, http.MethodPost, "/api/auth/login", body, "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "rate limit exceeded", decode[payload.ErrorResponse](t, rec).Error)
	assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	// Routes have separate buckets.
	rec = ts.do(t, http.MethodPost, "/api/auth/forgot-password", map[string]string{"email": "nobody@example.com"}, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/metrics", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `journal_test_rate_limit_hits_total{route="login"} 1`)
}

func TestRouter_RateLimitIgnoresForwardedHeaders(t *testing.T) {
	ts := newTestServer(t, func(cfg *RouterConfig) {
		cfg.AuthRateLimit = 2
	})

	body, err := json.Marshal(map[string]string{"email": "nobody@example.com", "password": "secret1"})
	require.NoError(t, err)

	rejected := 0
	for i := 0; i < 10; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(body))
		req.RemoteAddr = "203.0.113.7:5000"
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("198.51.100.%d", i))
		req.Header.Set("X-Real-IP", fmt.Sprintf("198.51.100.%d", i))
		req.Header.Set("True-Client-IP", fmt.Sprintf("198.51.100.%d", i))

		rec := httptest.NewRecorder()
		ts.handler.ServeHTTP(rec, req)
		if rec.Code == http.StatusTooManyRequests {
			rejected++
		}
	}

	assert.Equal(t, 8, rejected)
}

func TestRouter_ValidateResetTokenIsRateLimited(t *testing.T) {
	ts := newTestServer(t, func(cfg *RouterConfig) {
		cfg.AuthRateLimit = 3
	})

	for i := 0; i < 3; i++ {
		rec := ts.do(t, http.MethodGet, fmt.Sprintf("/api/auth/reset-password/validate?token=guess-%d", i), nil, "")
		require.Equal(t, http.StatusBadRequest, rec.Code)
	}

	rec := ts.do(t, http.MethodGet, "/api/auth/reset-password/validate?token=guess-4", nil, "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestRouter_Healthz(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/healthz", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[payload.StatusResponse](t, rec).Status)

	ts.pingErr = errors.New("connection refused")
	rec = ts.do(t, http.MethodGet, "/healthz", nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRouter_NotFound(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/unknown", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"Not found"}`, rec.Body.String())

	rec = ts.do(t, http.MethodDelete, "/api/auth/login", nil, "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRouter_CORS(t *testing.T) {
	ts := newTestServer(t, func(cfg *RouterConfig) {
		cfg.CORSOrigins = []string{"http://localhost:5173"}
	})

	req := httptest.NewRequest(http.MethodOptions, "/api/auth/login", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
}

type failingEntries struct{}

func (failingEntries) CreateEntry(context.Context, string, usecase.CreateEntryParams) (*model.HealthEntry, error) {
	return nil, errors.New("store unreachable")
}

func (failingEntries) ListEntries(context.Context, string, int64) ([]*model.HealthEntry, error) {
	return nil, errors.New("store unreachable")
}

func TestRouter_InternalErrorsAreGeneric(t *testing.T) {
	ts := newTestServer(t, func(cfg *RouterConfig) {
		cfg.HealthEntryUsecase = failingEntries{}
	})
	session := ts.register(t, "alice@example.com", "secret1")

	rec := ts.do(t, http.MethodGet, "/api/health/entries", nil, session.Token)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"something went wrong"}`, rec.Body.String())
}
