package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	jwt "github.com/golang-jwt/jwt/v5"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func signToken(t *testing.T, secret, subject string, expires time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    "creditpool",
		ExpiresAt: jwt.NewNumericDate(expires),
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func callerEcho(t *testing.T, want common.Address) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, ok := CallerFrom(r.Context())
		if !ok {
			t.Fatalf("expected caller in context")
		}
		if caller != want {
			t.Fatalf("unexpected caller %s", caller.Hex())
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestAuthenticatorAcceptsValidToken(t *testing.T) {
	caller := common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	auth := NewAuthenticator(AuthConfig{HMACSecret: testSecret, Issuer: "creditpool"}, nil)
	handler := auth.Middleware(callerEcho(t, caller))

	req := httptest.NewRequest(http.MethodPost, "/v1/pool/deposit", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, caller.Hex(), time.Now().Add(time.Hour)))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusNoContent {
		t.Fatalf("expected success, got %d: %s", res.Code, res.Body.String())
	}
}

func TestAuthenticatorRejectsBadTokens(t *testing.T) {
	caller := "0x00000000000000000000000000000000000a11ce"
	auth := NewAuthenticator(AuthConfig{HMACSecret: testSecret, Issuer: "creditpool"}, nil)
	handler := auth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("handler should not run")
	}))

	cases := map[string]string{
		"missing":      "",
		"wrong secret": "Bearer " + signToken(t, "another-secret-entirely-0000", caller, time.Now().Add(time.Hour)),
		"expired":      "Bearer " + signToken(t, testSecret, caller, time.Now().Add(-time.Hour)),
		"not address":  "Bearer " + signToken(t, testSecret, "alice", time.Now().Add(time.Hour)),
		"wrong scheme": "Basic abc",
		"empty bearer": "Bearer ",
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/pool/deposit", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			res := httptest.NewRecorder()
			handler.ServeHTTP(res, req)
			if res.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", res.Code)
			}
		})
	}
}

func TestAuthenticatorAnonymousReads(t *testing.T) {
	auth := NewAuthenticator(AuthConfig{HMACSecret: testSecret, AllowAnonymousReads: true}, nil)
	handler := auth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := CallerFrom(r.Context()); ok {
			t.Fatalf("anonymous request should not carry a caller")
		}
		w.WriteHeader(http.StatusOK)
	}))

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/pool", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("expected anonymous read to succeed, got %d", res.Code)
	}

	res = httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/v1/pool/deposit", nil))
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected anonymous write to be rejected, got %d", res.Code)
	}
}

func TestRateLimiterBlocksAfterBurst(t *testing.T) {
	limiter := NewRateLimiter(RateLimit{RequestsPerMinute: 60, Burst: 1}, nil)
	handler := limiter.Middleware("pool")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/pool", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected first request to succeed, got %d", res.Code)
	}

	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusTooManyRequests {
		t.Fatalf("expected second request to be rate limited, got %d", res.Code)
	}
}

func TestRateLimiterSeparatesCallers(t *testing.T) {
	limiter := NewRateLimiter(RateLimit{RequestsPerMinute: 60, Burst: 1}, nil)
	handler := limiter.Middleware("pool")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for _, raw := range []string{
		"0x0000000000000000000000000000000000000001",
		"0x0000000000000000000000000000000000000002",
	} {
		req := httptest.NewRequest(http.MethodGet, "/v1/pool", nil)
		req = req.WithContext(WithCaller(req.Context(), common.HexToAddress(raw)))
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, req)
		if res.Code != http.StatusOK {
			t.Fatalf("expected first request of %s to succeed, got %d", raw, res.Code)
		}
	}
}

func TestRateLimiterEvictsIdleClients(t *testing.T) {
	limiter := NewRateLimiter(RateLimit{RequestsPerMinute: 1, Burst: 1}, nil)
	now := time.Unix(1_700_000_000, 0)
	limiter.clockNow = func() time.Time { return now }

	if !limiter.Allow("client") {
		t.Fatalf("expected first request to pass")
	}
	if limiter.Allow("client") {
		t.Fatalf("expected second request to be limited")
	}
	now = now.Add(10 * time.Minute)
	if !limiter.Allow("client") {
		t.Fatalf("expected request after idle period to pass")
	}
	if len(limiter.visitors) != 1 {
		t.Fatalf("expected one tracked client, got %d", len(limiter.visitors))
	}
}

func TestRateLimiterDisabled(t *testing.T) {
	limiter := NewRateLimiter(RateLimit{}, nil)
	if limiter.Enabled() {
		t.Fatalf("zero limit should disable limiting")
	}
	handler := limiter.Middleware("pool")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	for i := 0; i < 5; i++ {
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/pool", nil))
		if res.Code != http.StatusOK {
			t.Fatalf("request %d unexpectedly limited", i)
		}
	}
}

func TestObservabilitySetsRequestID(t *testing.T) {
	obs := NewObservability("poold-test", false, nil)
	handler := obs.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if res.Header().Get(RequestIDHeader) == "" {
		t.Fatalf("expected generated request id")
	}

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(RequestIDHeader, "fixed-id")
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if got := res.Header().Get(RequestIDHeader); got != "fixed-id" {
		t.Fatalf("expected propagated request id, got %q", got)
	}
	if res.Code != http.StatusAccepted {
		t.Fatalf("unexpected status %d", res.Code)
	}
}
