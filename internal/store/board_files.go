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

const boardFileColumns = "board_id, file_id, mime_type, blob_key, sha256, size_bytes, created_at"

// CreateBoardFile records a file for a board. Re-uploading an existing
// file id is a no-op and reports created=false.
func (s *Store) CreateBoardFile(ctx context.Context, file *models.BoardFile) (bool, error) {
	if file == nil {
		return false, fmt.Errorf("file is required")
	}
	if strings.TrimSpace(file.BoardID) == "" || strings.TrimSpace(file.FileID) == "" {
		return false, fmt.Errorf("board id and file id are required")
	}
	if file.CreatedAt.IsZero() {
		file.CreatedAt = time.Now().UTC()
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO board_files (`+boardFileColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, file.BoardID, file.FileID, file.MimeType, file.BlobKey, file.SHA256, file.SizeBytes, dbFormatTime(file.CreatedAt))
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// GetBoardFile returns one board file, or nil when absent.
func (s *Store) GetBoardFile(ctx context.Context, boardID, fileID string) (*models.BoardFile, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+boardFileColumns+` FROM board_files WHERE board_id = ? AND file_id = ?`, boardID, fileID)
	return scanBoardFile(row)
}

// ListBoardFiles returns every file of a board ordered by creation.
func (s *Store) ListBoardFiles(ctx context.Context, boardID string) ([]models.BoardFile, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+boardFileColumns+` FROM board_files WHERE board_id = ? ORDER BY created_at ASC, file_id ASC`, boardID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	files := []models.BoardFile{}
	for rows.Next() {
		file, err := scanBoardFile(rows)
		if err != nil {
			return nil, err
		}
		if file != nil {
			files = append(files, *file)
		}
	}
	return files, rows.Err()
}

// BlobKeyReferenced reports whether any board file still points at key.
func (s *Store) BlobKeyReferenced(ctx context.Context, key string) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM board_files WHERE blob_key = ? LIMIT 1`, key).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ReferencedBlobKeys returns every blob key a board file row points at.
func (s *Store) ReferencedBlobKeys(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT blob_key FROM board_files`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := map[string]struct{}{}
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys[key] = struct{}{}
	}
	return keys, rows.Err()
}

func scanBoardFile(scanner rowScanner) (*models.BoardFile, error) {
	var file models.BoardFile
	var createdAt string
	if err := scanner.Scan(&file.BoardID, &file.FileID, &file.MimeType, &file.BlobKey, &file.SHA256, &file.SizeBytes, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	parsed, err := dbParseTime(createdAt)
	if err != nil {
		return nil, err
	}
	file.CreatedAt = parsed
	return &file, nil
}

// DeleteBoardFiles removes every file row of a board and returns the blob
// keys that were referenced.
func (s *Store) DeleteBoardFiles(ctx context.Context, boardID string) ([]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `SELECT DISTINCT blob_key FROM board_files WHERE board_id = ?`, boardID)
	if err != nil {
		return nil, err
	}
	keys := []string{}
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			rows.Close()
			return nil, err
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if _, err := tx.ExecContext(ctx, `DELETE FROM board_files WHERE board_id = ?`, boardID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return keys, nil
}
