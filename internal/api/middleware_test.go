package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"
)

func TestIsAllowedOrigin(t *testing.T) {
	allowed := []string{
		"http://localhost:3000",
		"http://localhost:8080",
		"http://localhost",
		"http://127.0.0.1:3000",
		"http://127.0.0.1",
		"http://[::1]:5173",
		"https://localhost:8443",
	}

	for _, origin := range allowed {
		if !isAllowedOrigin(origin) {
			t.Errorf("isAllowedOrigin(%q) = false, want true", origin)
		}
	}

	denied := []string{
		"https://evil.com",
		"http://localhost.evil.com",
		"http://192.168.1.1:3000",
		"",
		"ftp://localhost:3000",
		"http://localhost:not-a-port",
		"http://localhost:3000/path",
		"http://user@localhost:3000",
		"null",
	}

	for _, origin := range denied {
		if isAllowedOrigin(origin) {
			t.Errorf("isAllowedOrigin(%q) = true, want false", origin)
		}
	}
}

func TestIsLoopbackRemoteAddr(t *testing.T) {
	cases := []struct {
		addr string
		want bool
	}{
		{"127.0.0.1:12345", true},
		{"[::1]:12345", true},
		{"::1", true},
		{"127.0.0.1", true},
		{"8.8.8.8:12345", false},
		{"192.168.1.1:8080", false},
		{"not-an-ip:1234", false},
		{"", false},
	}

	for _, tc := range cases {
		if got := isLoopbackRemoteAddr(tc.addr); got != tc.want {
			t.Errorf("isLoopbackRemoteAddr(%q) = %v, want %v", tc.addr, got, tc.want)
		}
	}
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func headerList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func TestCORSAllowlist_AllowedOrigin(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rr := httptest.NewRecorder()

	CORSAllowlist()(okHandler()).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("ACAO = %q, want %q", got, "http://localhost:3000")
	}
	if got := rr.Header().Get("Vary"); got != "Origin" {
		t.Errorf("Vary = %q, want %q", got, "Origin")
	}
}

func TestCORSAllowlist_DeniedOrigin(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.com")
	rr := httptest.NewRecorder()

	CORSAllowlist()(okHandler()).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (request still served, just no ACAO)", rr.Code, http.StatusOK)
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("ACAO = %q, want empty for denied origin", got)
	}
}

func TestCORSAllowlist_Preflight(t *testing.T) {
	cases := []struct {
		name   string
		origin string
		want   int
	}{
		{"allowed", "http://localhost:3000", http.StatusNoContent},
		{"denied", "https://evil.com", http.StatusForbidden},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := CORSAllowlist()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Fatal("handler should not be called for preflight")
			}))

			req := httptest.NewRequest(http.MethodOptions, "/media/m1/payload", nil)
			req.Header.Set("Origin", tc.origin)
			req.Header.Set("Access-Control-Request-Method", "GET")
			req.Header.Set("Access-Control-Request-Headers", "range,authorization")
			rr := httptest.NewRecorder()

			handler.ServeHTTP(rr, req)

			if rr.Code != tc.want {
				t.Fatalf("status = %d, want %d", rr.Code, tc.want)
			}
		})
	}
}

func TestCORSAllowlist_RangeHeaders(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/media/m1/payload", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rr := httptest.NewRecorder()

	CORSAllowlist()(okHandler()).ServeHTTP(rr, req)

	allowHeaders := headerList(rr.Header().Get("Access-Control-Allow-Headers"))
	for _, h := range []string{"Range", "Content-Type", "Authorization"} {
		if !slices.Contains(allowHeaders, h) {
			t.Errorf("Access-Control-Allow-Headers missing %q, got %v", h, allowHeaders)
		}
	}

	exposeHeaders := headerList(rr.Header().Get("Access-Control-Expose-Headers"))
	for _, h := range []string{"Content-Range", "Accept-Ranges", "Content-Length", "ETag"} {
		if !slices.Contains(exposeHeaders, h) {
			t.Errorf("Access-Control-Expose-Headers missing %q, got %v", h, exposeHeaders)
		}
	}

	allowMethods := headerList(rr.Header().Get("Access-Control-Allow-Methods"))
	for _, m := range []string{"GET", "HEAD", "PUT", "PATCH", "OPTIONS"} {
		if !slices.Contains(allowMethods, m) {
			t.Errorf("Access-Control-Allow-Methods missing %q, got %v", m, allowMethods)
		}
	}
}

func TestCORSAllowlist_VaryIsAdditive(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rr := httptest.NewRecorder()
	rr.Header().Set("Vary", "Accept-Encoding")

	CORSAllowlist()(okHandler()).ServeHTTP(rr, req)

	vary := rr.Header().Values("Vary")
	if !slices.Contains(vary, "Accept-Encoding") {
		t.Errorf("Vary lost Accept-Encoding, got %v", vary)
	}
	if !slices.Contains(vary, "Origin") {
		t.Errorf("Vary missing Origin, got %v", vary)
	}
}

func TestLoopbackGuard(t *testing.T) {
	cases := []struct {
		addr string
		want int
	}{
		{"127.0.0.1:12345", http.StatusOK},
		{"[::1]:12345", http.StatusOK},
		{"8.8.8.8:12345", http.StatusForbidden},
	}

	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/media/m1/payload", nil)
		req.RemoteAddr = tc.addr
		rr := httptest.NewRecorder()

		LoopbackGuard()(okHandler()).ServeHTTP(rr, req)

		if rr.Code != tc.want {
			t.Errorf("%s: status = %d, want %d", tc.addr, rr.Code, tc.want)
			continue
		}
		if tc.want == http.StatusForbidden {
			body := decodeJSONBody(t, rr)
			if body["code"] != "FORBIDDEN" {
				t.Errorf("error code = %v, want FORBIDDEN", body["code"])
			}
		}
	}
}

type staticTokens struct {
	token string
	err   error
}

func (s staticTokens) GetPreference(ctx context.Context, key string) (string, error) {
	return s.token, s.err
}

func TestAuthMiddleware(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cases := []struct {
		name   string
		store  TokenStore
		header string
		want   int
	}{
		{"valid", staticTokens{token: "secret"}, "Bearer secret", http.StatusOK},
		{"missing header", staticTokens{token: "secret"}, "", http.StatusUnauthorized},
		{"wrong scheme", staticTokens{token: "secret"}, "Basic secret", http.StatusUnauthorized},
		{"wrong token", staticTokens{token: "secret"}, "Bearer nope", http.StatusUnauthorized},
		{"no stored token", staticTokens{}, "Bearer secret", http.StatusInternalServerError},
		{"store failure", staticTokens{err: errors.New("disk gone")}, "Bearer secret", http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/sessions", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rr := httptest.NewRecorder()

			AuthMiddleware(tc.store, logger)(okHandler()).ServeHTTP(rr, req)

			if rr.Code != tc.want {
				t.Fatalf("status = %d, want %d", rr.Code, tc.want)
			}
		})
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := RecoveryMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusInternalServerError)
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	handler := RequestIDMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = r.Context().Value(RequestIDKey).(string)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	if len(seen) != 8 {
		t.Fatalf("request id = %q, want 8 chars", seen)
	}
	if got := rr.Header().Get("X-Request-ID"); got != seen {
		t.Errorf("X-Request-ID = %q, want %q", got, seen)
	}
}
