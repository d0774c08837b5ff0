package store

import (
	"context"
	"time"

	"inkboard/internal/models"
)

// AccountStore abstracts user, session, and reset token storage.
type AccountStore interface {
	CountEnabledUsers(ctx context.Context) (int, error)
	CountUsers(ctx context.Context) (int, error)
	CreateUser(ctx context.Context, in NewUser, now time.Time) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	SetUserDisabled(ctx context.Context, username string, disabled bool, now time.Time) (*models.User, error)
	UpdatePasswordHash(ctx context.Context, userID, passwordHash string, now time.Time) error
	DeleteUser(ctx context.Context, username string) (bool, error)
	CreateSession(ctx context.Context, userID, tokenHash string, expiresAt, createdAt time.Time) error
	GetUserBySessionTokenHash(ctx context.Context, tokenHash string, now time.Time) (*models.User, error)
	RevokeSessionByTokenHash(ctx context.Context, tokenHash string, revokedAt time.Time) error
	RevokeUserSessions(ctx context.Context, userID, keepTokenHash string, revokedAt time.Time) (int64, error)
	CreateResetToken(ctx context.Context, userID, tokenHash string, expiresAt, createdAt time.Time) error
	ConsumeResetToken(ctx context.Context, tokenHash string, now time.Time) (string, error)
}

// BoardStore abstracts board and board file storage.
type BoardStore interface {
	BoardExists(id string) (bool, error)
	CreateBoard(ctx context.Context, board *models.Board) error
	GetBoard(ctx context.Context, id string) (*models.Board, error)
	ListBoards(ctx context.Context, filter BoardFilter) ([]models.BoardSummary, error)
	ListBoardsByOwner(ctx context.Context, ownerID string) ([]models.BoardSummary, error)
	UpdateBoardTitle(ctx context.Context, id, title string, now time.Time) error
	SaveBoardScene(ctx context.Context, id string, scene models.Scene, expectedVersion int64, now time.Time) (int64, error)
	DeleteBoard(ctx context.Context, id string) (bool, error)
	CreateBoardFile(ctx context.Context, file *models.BoardFile) (bool, error)
	GetBoardFile(ctx context.Context, boardID, fileID string) (*models.BoardFile, error)
	ListBoardFiles(ctx context.Context, boardID string) ([]models.BoardFile, error)
	DeleteBoardFiles(ctx context.Context, boardID string) ([]string, error)
	BlobKeyReferenced(ctx context.Context, key string) (bool, error)
	ReferencedBlobKeys(ctx context.Context) (map[string]struct{}, error)
}

// LogStore abstracts the append-only logs collection.
type LogStore interface {
	InsertLog(ctx context.Context, record *models.LogRecord) error
	ListLogs(ctx context.Context, filter LogFilter) ([]models.LogRecord, error)
}

var (
	_ AccountStore = (*Store)(nil)
	_ BoardStore   = (*Store)(nil)
	_ LogStore     = (*Store)(nil)
)
