// Package services holds the service registry the server starts and calls.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"inkboard/internal/blobstore"
	"inkboard/internal/collab"
	"inkboard/internal/config"
	"inkboard/internal/models"
	"inkboard/internal/rpc"
	"inkboard/internal/services/account"
	"inkboard/internal/services/assets"
	"inkboard/internal/services/board"
	"inkboard/internal/store"
)

var (
	ErrUnknownService = errors.New("unknown service")
	ErrUnknownMethod  = errors.New("unknown method")
)

// Service is the lifecycle every registered service implements.
type Service interface {
	Name() string
	Startup(ctx context.Context) error
}

// Deps are the shared resources services are built from.
type Deps struct {
	Store    *store.Store
	Blobs    blobstore.Store
	Config   config.Config
	Notifier account.ResetNotifier
	Logger   *slog.Logger
	Now      func() time.Time
}

// Manager owns one instance of each service, created eagerly in
// declaration order: account, excalidrawSync, staticAssets, board.
type Manager struct {
	logs     *LogsCollection
	origins  OriginPolicy
	logger   *slog.Logger
	order    []string
	services map[string]Service

	account *account.Service
	sync    *collab.Hub
	assets  *assets.Service
	board   *board.Service
}

// NewManager builds every service.
func NewManager(deps Deps) (*Manager, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := deps.Config

	m := &Manager{
		logs:     NewLogsCollection(deps.Store, deps.Now, logger.With("component", "logs")),
		origins:  NewOriginPolicy(cfg),
		logger:   logger,
		services: map[string]Service{},
	}

	notifier := deps.Notifier
	if notifier == nil {
		notifier = account.LogNotifier{Logger: logger.With("component", account.Name), BaseURL: cfg.APIURL}
	}
	accountSvc, err := account.New(account.Options{
		Store:         deps.Store,
		SessionTTL:    cfg.Auth.SessionTTL.Std(),
		ResetTokenTTL: cfg.Auth.ResetTokenTTL.Std(),
		AllowSignup:   cfg.Auth.AllowSignup,
		Notifier:      notifier,
		Logger:        logger.With("component", account.Name),
		OnUserDeleted: m.collectOrphanBlobs,
	})
	if err != nil {
		return nil, err
	}
	m.register(accountSvc)
	m.account = accountSvc

	hub, err := collab.NewHub(collab.Options{
		Boards:          boardsProxy{m: m},
		MaxMessageBytes: cfg.Sync.MaxSceneBytes,
		ClientBuffer:    cfg.Sync.ClientBuffer,
		PersistDebounce: cfg.Sync.PersistDebounce.Std(),
		CheckOrigin:     m.origins.CheckRequest,
		Logger:          logger.With("component", collab.Name),
	})
	if err != nil {
		return nil, err
	}
	m.register(hub)
	m.sync = hub

	assetsSvc, err := assets.New(assets.Options{
		Dir:    cfg.AssetsDir,
		Logger: logger.With("component", assets.Name),
	})
	if err != nil {
		return nil, err
	}
	m.register(assetsSvc)
	m.assets = assetsSvc

	boardSvc, err := board.New(board.Options{
		Store:          deps.Store,
		Blobs:          deps.Blobs,
		MaxUploadBytes: cfg.Files.MaxUploadBytes,
		Logger:         logger.With("component", board.Name),
	})
	if err != nil {
		return nil, err
	}
	boardSvc.SetListener(hub)
	m.register(boardSvc)
	m.board = boardSvc

	return m, nil
}

func (m *Manager) register(svc Service) {
	m.order = append(m.order, svc.Name())
	m.services[svc.Name()] = svc
}

// Names returns service keys in declaration order.
func (m *Manager) Names() []string {
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

// GetService returns the singleton registered under name.
func (m *Manager) GetService(name string) (Service, error) {
	svc, ok := m.services[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownService, name)
	}
	return svc, nil
}

func (m *Manager) Account() *account.Service     { return m.account }
func (m *Manager) Sync() *collab.Hub             { return m.sync }
func (m *Manager) StaticAssets() *assets.Service { return m.assets }
func (m *Manager) Board() *board.Service         { return m.board }

// Logs returns the logs collection.
func (m *Manager) Logs() *LogsCollection { return m.logs }

// Origins returns the cross-origin policy shared by the server and the sync hub.
func (m *Manager) Origins() OriginPolicy { return m.origins }

// Startup appends a startup log, then starts each service in declaration
// order. The first failure stops the sequence.
func (m *Manager) Startup(ctx context.Context) error {
	if _, err := m.logs.AppendStartupLog(ctx); err != nil {
		return err
	}
	for _, name := range m.order {
		if err := m.services[name].Startup(ctx); err != nil {
			return fmt.Errorf("start %s: %w", name, err)
		}
		m.logger.Debug("service started", "service", name)
	}
	return nil
}

// Shutdown stops services holding goroutines, in reverse declaration order.
func (m *Manager) Shutdown(ctx context.Context) error {
	var errs []error
	if err := m.assets.Close(); err != nil {
		errs = append(errs, fmt.Errorf("stop %s: %w", assets.Name, err))
	}
	if err := m.sync.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop %s: %w", collab.Name, err))
	}
	return errors.Join(errs...)
}

// Call dispatches one remote method call.
func (m *Manager) Call(ctx context.Context, service, method string, call rpc.Call) (any, error) {
	svc, err := m.GetService(service)
	if err != nil {
		return nil, err
	}
	provider, ok := svc.(rpc.Provider)
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownMethod, service, method)
	}
	fn, ok := provider.Methods()[method]
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownMethod, service, method)
	}
	return fn(ctx, call)
}

// collectOrphanBlobs reclaims file blobs left behind when a user's boards
// cascade away with the account.
func (m *Manager) collectOrphanBlobs(ctx context.Context, username string) {
	result, err := m.board.CollectBlobs(ctx, true)
	switch {
	case errors.Is(err, board.ErrFilesUnavailable):
	case err != nil:
		m.logger.WarnContext(ctx, "blob sweep after user delete failed", "username", username, "error", err)
	default:
		m.logger.DebugContext(ctx, "blob sweep after user delete", "username", username, "deleted", result.DeletedCount)
	}
}

// boardsProxy lets the sync hub reach the board service, which is built after it.
type boardsProxy struct {
	m *Manager
}

func (p boardsProxy) Authorize(ctx context.Context, user *models.User, boardID string) error {
	return p.m.board.Authorize(ctx, user, boardID)
}

func (p boardsProxy) LoadScene(ctx context.Context, boardID string) (models.Scene, int64, error) {
	return p.m.board.LoadScene(ctx, boardID)
}

func (p boardsProxy) PersistScene(ctx context.Context, boardID string, scene models.Scene, expectedVersion int64) (int64, bool, error) {
	return p.m.board.PersistScene(ctx, boardID, scene, expectedVersion)
}
