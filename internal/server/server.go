package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"inkboard/internal/collab"
	"inkboard/internal/services"
	"inkboard/internal/services/account"
	"inkboard/internal/services/assets"
	"inkboard/internal/services/board"
	"inkboard/internal/store"
)

const (
	allowRemoteEnvKey      = "INKBOARD_ALLOW_REMOTE"
	readHeaderTimeout      = 5 * time.Second
	readTimeout            = 30 * time.Second
	writeTimeout           = 60 * time.Second
	idleTimeout            = 60 * time.Second
	shutdownTimeout        = 10 * time.Second
	importConcurrencyLimit = 1
	exportConcurrencyLimit = 2
)

// InfoStore reports store contents for the info endpoint.
type InfoStore interface {
	StoreInfo(ctx context.Context) (*store.Info, error)
}

// Options configures the HTTP server.
type Options struct {
	Addr           string
	DBPath         string
	Store          InfoStore
	Manager        *services.Manager
	AllowedOrigins []string
	MaxSceneBytes  int64
	Logger         *slog.Logger
}

// Server wraps HTTP handlers for the inkboard API and the SPA shell.
type Server struct {
	addr           string
	dbPath         string
	store          InfoStore
	manager        *services.Manager
	accounts       *account.Service
	boards         *board.Service
	hub            *collab.Hub
	assets         *assets.Service
	logs           *services.LogsCollection
	origins        services.OriginPolicy
	allowedOrigins []string
	maxSceneBytes  int64
	logger         *slog.Logger
	importLimiter  chan struct{}
	exportLimiter  chan struct{}
}

// New creates a new server instance.
func New(opts Options) (*Server, error) {
	if opts.Manager == nil {
		return nil, fmt.Errorf("service manager is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxSceneBytes <= 0 {
		opts.MaxSceneBytes = defaultSceneMaxBody
	}
	m := opts.Manager
	return &Server{
		addr:           opts.Addr,
		dbPath:         opts.DBPath,
		store:          opts.Store,
		manager:        m,
		accounts:       m.Account(),
		boards:         m.Board(),
		hub:            m.Sync(),
		assets:         m.StaticAssets(),
		logs:           m.Logs(),
		origins:        m.Origins(),
		allowedOrigins: corsOrigins(opts.AllowedOrigins),
		maxSceneBytes:  opts.MaxSceneBytes,
		logger:         logger,
		importLimiter:  make(chan struct{}, importConcurrencyLimit),
		exportLimiter:  make(chan struct{}, exportConcurrencyLimit),
	}, nil
}

// Handler returns the full middleware-wrapped router.
func (s *Server) Handler() http.Handler {
	return s.routes()
}

// ListenAndServe serves until ctx ends, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.log().Info("starting server", "addr", s.addr)
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		s.log().Info("stopping server", "addr", s.addr)
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// ListenAddr converts a base API URL into a listen address.
func ListenAddr(apiURL string) (string, error) {
	if apiURL == "" {
		return "", fmt.Errorf("api url is required")
	}
	if u, err := url.Parse(apiURL); err == nil && u.Host != "" {
		host := u.Hostname()
		if !isAllowedListenHost(host) {
			return "", fmt.Errorf("remote listen host %q requires %s=true", host, allowRemoteEnvKey)
		}
		return u.Host, nil
	}

	host, _, err := net.SplitHostPort(apiURL)
	if err == nil && !isAllowedListenHost(host) {
		return "", fmt.Errorf("remote listen host %q requires %s=true", host, allowRemoteEnvKey)
	}

	return apiURL, nil
}

func isAllowedListenHost(host string) bool {
	if host == "" {
		return true
	}
	if strings.EqualFold(strings.TrimSpace(os.Getenv(allowRemoteEnvKey)), "true") {
		return true
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func (s *Server) acquireLimiter(limiter chan struct{}, w http.ResponseWriter, r *http.Request, name string) bool {
	if limiter == nil {
		return true
	}
	select {
	case limiter <- struct{}{}:
		return true
	default:
		err := apiError{
			status:  http.StatusTooManyRequests,
			code:    "resource_exhausted",
			errCode: ErrCodeResourceExhausted,
			err:     fmt.Errorf("too many concurrent %s requests", name),
		}
		s.writeErrorReq(w, r, http.StatusTooManyRequests, err)
		return false
	}
}

func (s *Server) log() *slog.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return slog.Default()
}

func (s *Server) releaseLimiter(limiter chan struct{}) {
	if limiter == nil {
		return
	}
	select {
	case <-limiter:
	default:
	}
}
