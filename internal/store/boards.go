package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"inkboard/internal/models"
)

const boardSummaryColumns = "id, owner_id, title, version, created_at, updated_at"

// AnyVersion disables the optimistic version check in SaveBoardScene.
const AnyVersion int64 = -1

// BoardFilter selects boards for listing. An empty OwnerID lists every board.
type BoardFilter struct {
	OwnerID string
	Limit   int
	Offset  int
}

// BoardExists checks whether a board exists by id.
func (s *Store) BoardExists(id string) (bool, error) {
	var exists int
	err := s.db.QueryRow("SELECT 1 FROM boards WHERE id = ? LIMIT 1", id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// CreateBoard inserts a board. The caller assigns the id.
func (s *Store) CreateBoard(ctx context.Context, board *models.Board) error {
	if board == nil {
		return fmt.Errorf("board is required")
	}
	if strings.TrimSpace(board.ID) == "" || strings.TrimSpace(board.OwnerID) == "" {
		return fmt.Errorf("board id and owner are required")
	}
	now := time.Now().UTC()
	if board.CreatedAt.IsZero() {
		board.CreatedAt = now
	}
	if board.UpdatedAt.IsZero() {
		board.UpdatedAt = board.CreatedAt
	}
	if board.Version <= 0 {
		board.Version = 1
	}
	scene, err := models.MarshalScene(board.Scene)
	if err != nil {
		return fmt.Errorf("encode scene: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO boards (id, owner_id, title, scene, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, board.ID, board.OwnerID, board.Title, scene, board.Version, dbFormatTime(board.CreatedAt), dbFormatTime(board.UpdatedAt))
	if err != nil {
		if isUniqueConstraint(err) {
			return fmt.Errorf("board %s: %w", board.ID, ErrDuplicate)
		}
		return err
	}
	return nil
}

// GetBoard returns a board with its scene, or nil when absent.
func (s *Store) GetBoard(ctx context.Context, id string) (*models.Board, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, title, scene, version, created_at, updated_at
		FROM boards WHERE id = ?
	`, id)

	var board models.Board
	var scene, createdAt, updatedAt string
	if err := row.Scan(&board.ID, &board.OwnerID, &board.Title, &scene, &board.Version, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	decoded, err := models.UnmarshalScene(scene)
	if err != nil {
		return nil, fmt.Errorf("decode scene of %s: %w", id, err)
	}
	board.Scene = decoded
	if board.CreatedAt, err = dbParseTime(createdAt); err != nil {
		return nil, err
	}
	if board.UpdatedAt, err = dbParseTime(updatedAt); err != nil {
		return nil, err
	}
	return &board, nil
}

// ListBoards returns board summaries ordered by most recently updated.
func (s *Store) ListBoards(ctx context.Context, filter BoardFilter) ([]models.BoardSummary, error) {
	query := `SELECT ` + boardSummaryColumns + ` FROM boards`
	args := []any{}
	if filter.OwnerID != "" {
		query += ` WHERE owner_id = ?`
		args = append(args, filter.OwnerID)
	}
	query += ` ORDER BY updated_at DESC, id ASC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += ` OFFSET ?`
			args = append(args, filter.Offset)
		}
	} else if filter.Offset > 0 {
		query += ` LIMIT -1 OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	boards := []models.BoardSummary{}
	for rows.Next() {
		var b models.BoardSummary
		var createdAt, updatedAt string
		if err := rows.Scan(&b.ID, &b.OwnerID, &b.Title, &b.Version, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		if b.CreatedAt, err = dbParseTime(createdAt); err != nil {
			return nil, err
		}
		if b.UpdatedAt, err = dbParseTime(updatedAt); err != nil {
			return nil, err
		}
		boards = append(boards, b)
	}
	return boards, rows.Err()
}

// UpdateBoardTitle renames a board.
func (s *Store) UpdateBoardTitle(ctx context.Context, id, title string, now time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE boards SET title = ?, updated_at = ? WHERE id = ?
	`, title, dbFormatTime(now), id)
	if err != nil {
		return err
	}
	return requireAffected(result)
}

// SaveBoardScene replaces a board scene and bumps its version. When
// expectedVersion is not AnyVersion the write only succeeds if the stored
// version still matches. It returns the new version.
func (s *Store) SaveBoardScene(ctx context.Context, id string, scene models.Scene, expectedVersion int64, now time.Time) (int64, error) {
	encoded, err := models.MarshalScene(scene)
	if err != nil {
		return 0, fmt.Errorf("encode scene: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	var current int64
	err = tx.QueryRowContext(ctx, `SELECT version FROM boards WHERE id = ?`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	if expectedVersion != AnyVersion && expectedVersion != current {
		return current, ErrVersionConflict
	}

	next := current + 1
	if _, err := tx.ExecContext(ctx, `
		UPDATE boards SET scene = ?, version = ?, updated_at = ? WHERE id = ?
	`, encoded, next, dbFormatTime(now), id); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return next, nil
}

// DeleteBoard removes a board. Board files cascade.
func (s *Store) DeleteBoard(ctx context.Context, id string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM boards WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// ListBoardsByOwner returns every board owned by one user.
func (s *Store) ListBoardsByOwner(ctx context.Context, ownerID string) ([]models.BoardSummary, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, fmt.Errorf("owner id is required")
	}
	return s.ListBoards(ctx, BoardFilter{OwnerID: ownerID})
}
