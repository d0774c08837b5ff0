// Package assets serves the browser bundle and keeps its manifest current.
package assets

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Name is the service manager key.
const Name = "staticAssets"

// IndexPath is the SPA shell served for page routes.
const IndexPath = "index.html"

const defaultReloadDebounce = 250 * time.Millisecond

var (
	ErrNotFound     = errors.New("asset not found")
	ErrInvalidPath  = errors.New("invalid asset path")
	builtinIndex    = []byte("<!doctype html>\n<html><head><meta charset=\"utf-8\"><title>inkboard</title></head>\n<body><div id=\"root\"></div></body></html>\n")
	builtinIndexSum = sha256.Sum256(builtinIndex)
)

// Options configures the static asset service.
type Options struct {
	Dir            string
	ReloadDebounce time.Duration
	Logger         *slog.Logger
}

// Service holds the asset manifest and watches the bundle directory.
type Service struct {
	dir      string
	debounce time.Duration
	logger   *slog.Logger

	mu       sync.RWMutex
	manifest map[string]Asset
	reloads  int

	watchMu sync.Mutex
	watcher *fsnotify.Watcher
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New builds the static asset service. An empty Dir serves the built-in index.
func New(opts Options) (*Service, error) {
	dir := strings.TrimSpace(opts.Dir)
	if dir != "" {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return nil, err
		}
		dir = abs
	}
	s := &Service{
		dir:      dir,
		debounce: opts.ReloadDebounce,
		logger:   opts.Logger,
		manifest: map[string]Asset{},
	}
	if s.debounce <= 0 {
		s.debounce = defaultReloadDebounce
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s, nil
}

// Name returns the service manager key.
func (s *Service) Name() string { return Name }

// Dir returns the bundle directory, or "" when the built-in index is used.
func (s *Service) Dir() string { return s.dir }

// Startup builds the manifest and starts watching the bundle directory.
// The watcher stops when ctx ends or Close is called.
func (s *Service) Startup(ctx context.Context) error {
	if s.dir == "" {
		s.logger.Info("no assets dir configured; serving built-in index")
		return nil
	}
	info, err := os.Stat(s.dir)
	if err != nil {
		return fmt.Errorf("assets dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("assets dir %s is not a directory", s.dir)
	}
	if err := s.Reload(); err != nil {
		return err
	}
	return s.startWatcher(ctx)
}

// Reload rebuilds the manifest from disk.
func (s *Service) Reload() error {
	manifest, err := buildManifest(s.dir)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.manifest = manifest
	s.reloads++
	s.mu.Unlock()
	s.logger.Debug("asset manifest built", "assets", len(manifest))
	return nil
}

// Manifest returns the current assets ordered by path.
func (s *Service) Manifest() []Asset {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedAssets(s.manifest)
}

// Lookup returns the manifest entry for a request path.
func (s *Service) Lookup(name string) (Asset, bool) {
	clean, err := cleanPath(name)
	if err != nil {
		return Asset{}, false
	}
	s.mu.RLock()
	asset, ok := s.manifest[clean]
	s.mu.RUnlock()
	if !ok && clean == IndexPath && s.dir == "" {
		return builtinIndexAsset(), true
	}
	return asset, ok
}

// Open returns an asset and its content. Paths escaping the bundle root
// are rejected with ErrInvalidPath.
func (s *Service) Open(name string) (Asset, io.ReadSeekCloser, error) {
	clean, err := cleanPath(name)
	if err != nil {
		return Asset{}, nil, err
	}
	asset, ok := s.Lookup(clean)
	if !ok {
		return Asset{}, nil, ErrNotFound
	}
	if s.dir == "" {
		return asset, nopSeekCloser{bytes.NewReader(builtinIndex)}, nil
	}
	f, err := os.Open(filepath.Join(s.dir, filepath.FromSlash(clean)))
	if errors.Is(err, os.ErrNotExist) {
		return Asset{}, nil, ErrNotFound
	}
	if err != nil {
		return Asset{}, nil, err
	}
	return asset, f, nil
}

// Close stops the watcher and waits for it to exit.
func (s *Service) Close() error {
	s.watchMu.Lock()
	watcher, stopCh, doneCh := s.watcher, s.stopCh, s.doneCh
	s.watcher = nil
	s.watchMu.Unlock()
	if watcher == nil {
		return nil
	}
	close(stopCh)
	<-doneCh
	return watcher.Close()
}

func (s *Service) reloadCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reloads
}

// cleanPath maps a URL path to a manifest key.
func cleanPath(name string) (string, error) {
	name = strings.TrimPrefix(strings.ReplaceAll(name, "\\", "/"), "/")
	if name == "" {
		return IndexPath, nil
	}
	for _, part := range strings.Split(name, "/") {
		if part == ".." {
			return "", ErrInvalidPath
		}
	}
	clean := path.Clean(name)
	if clean == "." || strings.HasPrefix(clean, "../") || strings.ContainsRune(clean, 0) {
		return "", ErrInvalidPath
	}
	return clean, nil
}

func builtinIndexAsset() Asset {
	return Asset{
		Path:        IndexPath,
		SHA256:      hex.EncodeToString(builtinIndexSum[:]),
		Size:        int64(len(builtinIndex)),
		ContentType: "text/html; charset=utf-8",
	}
}

type nopSeekCloser struct {
	io.ReadSeeker
}

func (nopSeekCloser) Close() error { return nil }
