package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"inkboard/internal/api"
	"inkboard/internal/blobstore"
	"inkboard/internal/config"
	"inkboard/internal/services"
	"inkboard/internal/store"
)

const testOrigin = "http://example.com"

type testServer struct {
	srv     *Server
	manager *services.Manager
	store   *store.Store
	h       http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	return newTestServerWithConfig(t, nil)
}

func newTestServerWithConfig(t *testing.T, mutate func(*config.Config)) *testServer {
	t.Helper()

	dir := t.TempDir()
	dbPath := filepath.Join(dir, "inkboard.db")
	st, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	blobs, err := blobstore.NewLocalCAS(filepath.Join(dir, "blobs"))
	if err != nil {
		t.Fatalf("open blob store: %v", err)
	}

	cfg := config.Default()
	cfg.DataDir = dir
	if mutate != nil {
		mutate(&cfg)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m, err := services.NewManager(services.Deps{
		Store:  st,
		Blobs:  blobs,
		Config: cfg,
		Logger: logger,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if err := m.Startup(context.Background()); err != nil {
		t.Fatalf("manager startup: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = m.Shutdown(ctx)
	})

	srv, err := New(Options{
		Addr:          "127.0.0.1:0",
		DBPath:        dbPath,
		Store:         st,
		Manager:       m,
		MaxSceneBytes: cfg.Sync.MaxSceneBytes,
		Logger:        logger,
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return &testServer{srv: srv, manager: m, store: st, h: srv.Handler()}
}

// do sends one request through the full middleware chain. Mutations carry
// a same-host Origin so the CSRF check passes.
func (ts *testServer) do(t *testing.T, method, path string, body any, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch v := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(v)
	case []byte:
		reader = bytes.NewReader(v)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if isMutationMethod(method) {
		req.Header.Set("Origin", testOrigin)
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}
	w := httptest.NewRecorder()
	ts.h.ServeHTTP(w, req)
	return w
}

// signup registers a user and returns its session cookie.
func (ts *testServer) signup(t *testing.T, username, password string) *http.Cookie {
	t.Helper()
	w := ts.do(t, http.MethodPost, "/v1/auth/signup", api.SignupRequest{Username: username, Password: password}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("signup %s: expected 201, got %d (%s)", username, w.Code, w.Body.String())
	}
	cookie := sessionCookieFrom(w)
	if cookie == nil {
		t.Fatalf("signup %s: no session cookie", username)
	}
	return cookie
}

func newRequest(method, path string, body io.Reader) *http.Request {
	return httptest.NewRequest(method, path, body)
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func sessionCookieFrom(w *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == api.SessionCookieName && c.Value != "" {
			return c
		}
	}
	return nil
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return out
}

func TestListenAddrRemoteGuard(t *testing.T) {
	t.Run("allows loopback", func(t *testing.T) {
		t.Setenv(allowRemoteEnvKey, "")
		addr, err := ListenAddr("http://127.0.0.1:7333")
		if err != nil {
			t.Fatalf("expected loopback to be allowed, got error: %v", err)
		}
		if addr != "127.0.0.1:7333" {
			t.Fatalf("unexpected addr: %s", addr)
		}
	})

	t.Run("blocks non-loopback by default", func(t *testing.T) {
		t.Setenv(allowRemoteEnvKey, "")
		_, err := ListenAddr("http://0.0.0.0:7333")
		if err == nil {
			t.Fatal("expected error for non-loopback listen host")
		}
	})

	t.Run("allows non-loopback when explicitly enabled", func(t *testing.T) {
		t.Setenv(allowRemoteEnvKey, "true")
		addr, err := ListenAddr("http://0.0.0.0:7333")
		if err != nil {
			t.Fatalf("expected allow-remote to permit host, got error: %v", err)
		}
		if addr != "0.0.0.0:7333" {
			t.Fatalf("unexpected addr: %s", addr)
		}
	})
}

func TestHealthAndInfo(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/health", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected health 200, got %d", w.Code)
	}

	w = ts.do(t, http.MethodGet, "/v1/info", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected info 200, got %d (%s)", w.Code, w.Body.String())
	}
	info := decodeBody[api.InfoResponse](t, w)
	if info.SchemaVersion == 0 {
		t.Fatal("expected a schema version")
	}
	if !info.SignupOpen {
		t.Fatal("expected signup to be open on a fresh install")
	}
	if len(info.Services) != 4 || info.Services[0] != "account" {
		t.Fatalf("unexpected services: %v", info.Services)
	}
	if info.Logs != 1 {
		t.Fatalf("expected the startup log record, got %d", info.Logs)
	}
}

func TestPanicIsRecovered(t *testing.T) {
	ts := newTestServer(t)
	h := ts.srv.middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/anything", nil))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 after panic, got %d", w.Code)
	}
}

func TestCORSPreflightAllowsLocalhost(t *testing.T) {
	ts := newTestServer(t)
	req := httptest.NewRequest(http.MethodOptions, "/v1/boards", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	ts.h.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Fatalf("expected allow-origin for localhost, got %q", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Fatalf("expected credentials allowed, got %q", got)
	}
}

func TestLoopbackDevOriginWithConfiguredCORS(t *testing.T) {
	ts := newTestServerWithConfig(t, func(cfg *config.Config) {
		cfg.CORSAllowedOrigins = []string{"https://draw.example.com"}
	})
	cookie := ts.signup(t, "ada", "password-123")

	req := httptest.NewRequest(http.MethodPost, "http://127.0.0.1:7480/v1/boards", bytes.NewBufferString(`{"title":"dev"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", "http://localhost:5173")
	req.AddCookie(cookie)
	w := serve(ts.h, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected loopback dev origin to create a board, got %d (%s)", w.Code, w.Body.String())
	}

	for _, origin := range []string{"http://localhost:5173", "https://draw.example.com"} {
		preflight := httptest.NewRequest(http.MethodOptions, "/v1/boards", nil)
		preflight.Header.Set("Origin", origin)
		preflight.Header.Set("Access-Control-Request-Method", http.MethodPost)
		w := serve(ts.h, preflight)
		if got := w.Header().Get("Access-Control-Allow-Origin"); got != origin {
			t.Fatalf("expected allow-origin %q, got %q", origin, got)
		}
	}
}

func TestServerErrorAppendsErrorLog(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/boards", nil)
	w := httptest.NewRecorder()
	ts.srv.writeErrorReq(w, req, http.StatusInternalServerError, internalError(context.DeadlineExceeded))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	resp := decodeBody[api.ErrorResponse](t, w)
	if resp.Error != "internal error" {
		t.Fatalf("expected masked message, got %q", resp.Error)
	}

	records, err := ts.manager.Logs().List(context.Background(), store.LogFilter{Type: "error"})
	if err != nil {
		t.Fatalf("list logs: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected one error record, got %d", len(records))
	}
	if !strings.HasPrefix(records[0].Content, "GET /v1/boards: ") {
		t.Fatalf("unexpected error record content %q", records[0].Content)
	}
}

func TestCanceledRequestDoesNotAppendErrorLog(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/boards", nil)
	w := httptest.NewRecorder()
	ts.srv.writeErrorReq(w, req, http.StatusInternalServerError, context.Canceled)

	records, err := ts.manager.Logs().List(context.Background(), store.LogFilter{Type: "error"})
	if err != nil {
		t.Fatalf("list logs: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected no error records, got %d", len(records))
	}
}
