package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"inkboard/internal/models"
)

const defaultLogListLimit = 100

// LogFilter selects log records. An empty Type matches every record.
type LogFilter struct {
	Type  models.LogType
	Limit int
}

// InsertLog appends one record to the logs collection.
func (s *Store) InsertLog(ctx context.Context, record *models.LogRecord) error {
	if record == nil {
		return fmt.Errorf("log record is required")
	}
	if !models.IsValidLogType(record.Type) {
		return fmt.Errorf("invalid log type: %s", record.Type)
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO logs (id, type, content, timestamp) VALUES (?, ?, ?, ?)
	`, record.ID, string(record.Type), record.Content, record.Timestamp)
	return err
}

// ListLogs returns log records newest first.
func (s *Store) ListLogs(ctx context.Context, filter LogFilter) ([]models.LogRecord, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultLogListLimit
	}

	query := `SELECT id, type, content, timestamp FROM logs`
	args := []any{}
	if filter.Type != "" {
		query += ` WHERE type = ?`
		args = append(args, string(filter.Type))
	}
	query += ` ORDER BY timestamp DESC, rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []models.LogRecord{}
	for rows.Next() {
		var rec models.LogRecord
		var logType string
		if err := rows.Scan(&rec.ID, &logType, &rec.Content, &rec.Timestamp); err != nil {
			return nil, err
		}
		rec.Type = models.LogType(logType)
		records = append(records, rec)
	}
	return records, rows.Err()
}
