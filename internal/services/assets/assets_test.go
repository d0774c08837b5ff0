package assets

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"inkboard/internal/rpc"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func newBundle(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, dir, "index.html", "<html>app</html>")
	writeFile(t, dir, "static/app.js", "console.log(1)")
	writeFile(t, dir, ".hidden/secret", "nope")
	return dir
}

func TestManifestListsBundle(t *testing.T) {
	svc, err := New(Options{Dir: newBundle(t)})
	require.NoError(t, err)
	require.NoError(t, svc.Reload())

	manifest := svc.Manifest()
	require.Len(t, manifest, 2)
	assert.Equal(t, "index.html", manifest[0].Path)
	assert.Equal(t, "static/app.js", manifest[1].Path)
	assert.Len(t, manifest[1].SHA256, 64)
	assert.Contains(t, manifest[0].ContentType, "text/html")
}

func TestOpenRejectsTraversal(t *testing.T) {
	svc, err := New(Options{Dir: newBundle(t)})
	require.NoError(t, err)
	require.NoError(t, svc.Reload())

	for _, name := range []string{"../etc/passwd", "static/../../x", "..\\x"} {
		_, _, err := svc.Open(name)
		assert.ErrorIs(t, err, ErrInvalidPath, name)
	}

	_, _, err = svc.Open("missing.js")
	assert.ErrorIs(t, err, ErrNotFound)

	_, rc, err := svc.Open("/static/app.js")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, "console.log(1)", string(data))
}

func TestServeETag(t *testing.T) {
	svc, err := New(Options{Dir: newBundle(t)})
	require.NoError(t, err)
	require.NoError(t, svc.Reload())

	req := httptest.NewRequest(http.MethodGet, "/static/app.js", nil)
	rec := httptest.NewRecorder()
	require.NoError(t, svc.Serve(rec, req, "static/app.js", http.StatusOK))
	assert.Equal(t, http.StatusOK, rec.Code)
	etag := rec.Header().Get("ETag")
	require.NotEmpty(t, etag)
	assert.Equal(t, "console.log(1)", rec.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/static/app.js", nil)
	req.Header.Set("If-None-Match", etag)
	rec = httptest.NewRecorder()
	require.NoError(t, svc.Serve(rec, req, "static/app.js", http.StatusOK))
	assert.Equal(t, http.StatusNotModified, rec.Code)
	assert.Empty(t, rec.Body.String())

	// Fallback responses keep their status even when the tag matches.
	req = httptest.NewRequest(http.MethodGet, "/nope", nil)
	req.Header.Set("If-None-Match", `"`+svc.Manifest()[0].SHA256+`"`)
	rec = httptest.NewRecorder()
	require.NoError(t, svc.Serve(rec, req, IndexPath, http.StatusNotFound))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "<html>app</html>", rec.Body.String())
}

func TestBuiltinIndexWithoutDir(t *testing.T) {
	svc, err := New(Options{})
	require.NoError(t, err)
	require.NoError(t, svc.Startup(context.Background()))
	t.Cleanup(func() { _ = svc.Close() })

	asset, ok := svc.Lookup("/")
	require.True(t, ok)
	assert.Equal(t, IndexPath, asset.Path)

	rec := httptest.NewRecorder()
	require.NoError(t, svc.Serve(rec, httptest.NewRequest(http.MethodGet, "/", nil), IndexPath, http.StatusOK))
	assert.Contains(t, rec.Body.String(), `<div id="root">`)

	_, ok = svc.Lookup("app.js")
	assert.False(t, ok)

	result, err := svc.Methods()["manifest"](context.Background(), rpc.Call{})
	require.NoError(t, err)
	assert.True(t, result.(ManifestResult).Builtin)
}

func TestWatcherReloadsManifest(t *testing.T) {
	dir := newBundle(t)
	svc, err := New(Options{Dir: dir, ReloadDebounce: 20 * time.Millisecond})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, svc.Startup(ctx))
	t.Cleanup(func() { _ = svc.Close() })

	before := svc.reloadCount()
	writeFile(t, dir, "static/new.css", "body{}")

	require.Eventually(t, func() bool {
		_, ok := svc.Lookup("static/new.css")
		return ok
	}, 5*time.Second, 20*time.Millisecond)
	assert.Greater(t, svc.reloadCount(), before)

	require.NoError(t, os.Remove(filepath.Join(dir, "static", "new.css")))
	require.Eventually(t, func() bool {
		_, ok := svc.Lookup("static/new.css")
		return !ok
	}, 5*time.Second, 20*time.Millisecond)
}

func TestStartupRejectsMissingDir(t *testing.T) {
	svc, err := New(Options{Dir: filepath.Join(t.TempDir(), "missing")})
	require.NoError(t, err)
	assert.Error(t, svc.Startup(context.Background()))
}

func TestCacheControlFor(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{IndexPath, "no-cache"},
		{"static/app.3f9a1c2b.js", "public, max-age=31536000, immutable"},
		{"static/app.js", "public, max-age=300"},
		{"static/app.notahash.js", "public, max-age=300"},
		{"static/app.abc.js", "public, max-age=300"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cacheControlFor(tt.name))
		})
	}
}
