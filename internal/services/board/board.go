// Package board implements whiteboard documents, their scenes, and their files.
package board

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"inkboard/internal/blobstore"
	"inkboard/internal/models"
	"inkboard/internal/rpc"
	"inkboard/internal/store"
)

// Name is the service manager key.
const Name = "board"

var (
	ErrBoardNotFound   = errors.New("board not found")
	ErrInvalidInput    = errors.New("invalid input")
	ErrVersionConflict = errors.New("board was changed by someone else")
)

// SceneListener is told about scene changes that did not come from a live room.
type SceneListener interface {
	SceneReplaced(boardID string, scene models.Scene, version int64)
	BoardDeleted(boardID string)
}

// Options configures the board service.
type Options struct {
	Store          store.BoardStore
	Blobs          blobstore.Store
	MaxUploadBytes int64
	Logger         *slog.Logger
	Now            func() time.Time
}

// Service owns boards. Members reach their own boards; admins reach all.
type Service struct {
	store          store.BoardStore
	blobs          blobstore.Store
	maxUploadBytes int64
	logger         *slog.Logger
	now            func() time.Time
	listener       SceneListener

	// blobMu keeps blob sweeps from racing uploads that have written a blob
	// but not yet its file row.
	blobMu sync.RWMutex
}

// New builds the board service.
func New(opts Options) (*Service, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("board store is required")
	}
	s := &Service{
		store:          opts.Store,
		blobs:          opts.Blobs,
		maxUploadBytes: opts.MaxUploadBytes,
		logger:         opts.Logger,
		now:            opts.Now,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	return s, nil
}

// Name returns the service manager key.
func (s *Service) Name() string { return Name }

// Startup checks that file storage is available.
func (s *Service) Startup(ctx context.Context) error {
	if s.blobs == nil {
		s.logger.Warn("blob store not configured; board file uploads are disabled")
	}
	return ctx.Err()
}

// SetListener registers the live-room observer. It is set once during wiring.
func (s *Service) SetListener(listener SceneListener) {
	s.listener = listener
}

// List returns the boards visible to user.
func (s *Service) List(ctx context.Context, user *models.User) ([]models.BoardSummary, error) {
	if user == nil {
		return nil, rpc.ErrLoginRequired
	}
	if user.IsAdmin() {
		return s.store.ListBoards(ctx, store.BoardFilter{})
	}
	return s.store.ListBoardsByOwner(ctx, user.ID)
}

// Create makes an empty board owned by user.
func (s *Service) Create(ctx context.Context, user *models.User, title string) (*models.Board, error) {
	if user == nil {
		return nil, rpc.ErrLoginRequired
	}
	if strings.TrimSpace(title) == "" {
		title = models.DefaultBoardTitle
	}
	return s.createWithScene(ctx, user, title, models.EmptyScene())
}

func (s *Service) createWithScene(ctx context.Context, user *models.User, title string, scene models.Scene) (*models.Board, error) {
	normalized, err := NormalizeTitle(title)
	if err != nil {
		return nil, err
	}
	id, err := store.GenerateID(store.BoardIDPrefix, s.store.BoardExists)
	if err != nil {
		return nil, err
	}
	now := s.now()
	board := &models.Board{
		ID:        id,
		OwnerID:   user.ID,
		Title:     normalized,
		Scene:     scene,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateBoard(ctx, board); err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "board created", "board_id", id, "owner", user.Username)
	return board, nil
}

// Get returns a board user may access. Boards of other members look absent.
func (s *Service) Get(ctx context.Context, user *models.User, id string) (*models.Board, error) {
	if user == nil {
		return nil, rpc.ErrLoginRequired
	}
	board, err := s.store.GetBoard(ctx, strings.TrimSpace(id))
	if err != nil {
		return nil, err
	}
	if board == nil || !canAccess(user, board) {
		return nil, ErrBoardNotFound
	}
	return board, nil
}

// Authorize returns nil when user may open the board.
func (s *Service) Authorize(ctx context.Context, user *models.User, id string) error {
	_, err := s.Get(ctx, user, id)
	return err
}

// Rename changes a board title.
func (s *Service) Rename(ctx context.Context, user *models.User, id, title string) (*models.Board, error) {
	board, err := s.Get(ctx, user, id)
	if err != nil {
		return nil, err
	}
	normalized, err := NormalizeTitle(title)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if err := s.store.UpdateBoardTitle(ctx, board.ID, normalized, now); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrBoardNotFound
		}
		return nil, err
	}
	board.Title = normalized
	board.UpdatedAt = now
	return board, nil
}

// SaveScene replaces the scene when expectedVersion still matches. Pass
// store.AnyVersion to skip the check. It returns the new version.
func (s *Service) SaveScene(ctx context.Context, user *models.User, id string, scene models.Scene, expectedVersion int64) (int64, error) {
	board, err := s.Get(ctx, user, id)
	if err != nil {
		return 0, err
	}
	if scene.Elements == nil {
		scene.Elements = []models.Element{}
	}
	version, err := s.store.SaveBoardScene(ctx, board.ID, scene, expectedVersion, s.now())
	switch {
	case errors.Is(err, store.ErrVersionConflict):
		return version, ErrVersionConflict
	case errors.Is(err, store.ErrNotFound):
		return 0, ErrBoardNotFound
	case err != nil:
		return 0, err
	}
	if s.listener != nil {
		s.listener.SceneReplaced(board.ID, scene, version)
	}
	return version, nil
}

// Delete removes a board, its file rows, and blobs no other board uses.
func (s *Service) Delete(ctx context.Context, user *models.User, id string) error {
	board, err := s.Get(ctx, user, id)
	if err != nil {
		return err
	}
	keys, err := s.store.DeleteBoardFiles(ctx, board.ID)
	if err != nil {
		return err
	}
	deleted, err := s.store.DeleteBoard(ctx, board.ID)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrBoardNotFound
	}
	s.removeOrphanBlobs(ctx, keys)
	if s.listener != nil {
		s.listener.BoardDeleted(board.ID)
	}
	s.logger.InfoContext(ctx, "board deleted", "board_id", board.ID)
	return nil
}

// LoadScene reads a stored scene and its version without access checks.
// Used by live rooms.
func (s *Service) LoadScene(ctx context.Context, id string) (models.Scene, int64, error) {
	board, err := s.store.GetBoard(ctx, id)
	if err != nil {
		return models.Scene{}, 0, err
	}
	if board == nil {
		return models.Scene{}, 0, ErrBoardNotFound
	}
	return board.Scene, board.Version, nil
}

// PersistScene writes a live room's scene when the board is still at
// expectedVersion, without notifying the listener. saved is false when the
// board was changed outside the room; version is then the current one.
func (s *Service) PersistScene(ctx context.Context, id string, scene models.Scene, expectedVersion int64) (int64, bool, error) {
	version, err := s.store.SaveBoardScene(ctx, id, scene, expectedVersion, s.now())
	switch {
	case errors.Is(err, store.ErrVersionConflict):
		return version, false, nil
	case errors.Is(err, store.ErrNotFound):
		return 0, false, ErrBoardNotFound
	case err != nil:
		return 0, false, err
	}
	return version, true, nil
}

func (s *Service) removeOrphanBlobs(ctx context.Context, keys []string) {
	if s.blobs == nil {
		return
	}
	s.blobMu.Lock()
	defer s.blobMu.Unlock()
	for _, key := range keys {
		referenced, err := s.store.BlobKeyReferenced(ctx, key)
		if err != nil {
			s.logger.WarnContext(ctx, "blob reference check failed", "key", key, "error", err)
			continue
		}
		if referenced {
			continue
		}
		if err := s.blobs.Delete(ctx, key); err != nil {
			s.logger.WarnContext(ctx, "blob delete failed", "key", key, "error", err)
		}
	}
}

func canAccess(user *models.User, board *models.Board) bool {
	return user.IsAdmin() || board.OwnerID == user.ID
}

// NormalizeTitle trims, NFC-normalizes, and validates a board title.
func NormalizeTitle(raw string) (string, error) {
	title := norm.NFC.String(strings.TrimSpace(raw))
	if title == "" {
		return "", fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if utf8.RuneCountInString(title) > models.BoardTitleMaxRunes {
		return "", fmt.Errorf("%w: title must be at most %d characters", ErrInvalidInput, models.BoardTitleMaxRunes)
	}
	for _, r := range title {
		if unicode.IsControl(r) {
			return "", fmt.Errorf("%w: title contains control characters", ErrInvalidInput)
		}
	}
	return title, nil
}
