package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"inkboard/internal/models"
	"inkboard/internal/store"
)

// StartupTimeLayout formats the content of startup log records.
const StartupTimeLayout = "2006-01-02 15:04:05"

// LogsCollection is the append-only record of server startups and failures.
type LogsCollection struct {
	store  store.LogStore
	now    func() time.Time
	logger *slog.Logger
}

// NewLogsCollection wraps a log store. now defaults to time.Now.
func NewLogsCollection(logStore store.LogStore, now func() time.Time, logger *slog.Logger) *LogsCollection {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LogsCollection{store: logStore, now: now, logger: logger}
}

// AppendStartupLog records one startup with the local wall-clock time as content.
func (l *LogsCollection) AppendStartupLog(ctx context.Context) (*models.LogRecord, error) {
	now := l.now()
	return l.append(ctx, models.LogStartup, now.Local().Format(StartupTimeLayout), now)
}

// AppendErrorLog records a failure message.
func (l *LogsCollection) AppendErrorLog(ctx context.Context, message string) (*models.LogRecord, error) {
	return l.append(ctx, models.LogError, message, l.now())
}

// List returns records newest first.
func (l *LogsCollection) List(ctx context.Context, filter store.LogFilter) ([]models.LogRecord, error) {
	return l.store.ListLogs(ctx, filter)
}

func (l *LogsCollection) append(ctx context.Context, logType models.LogType, content string, at time.Time) (*models.LogRecord, error) {
	record := &models.LogRecord{
		Type:      logType,
		Content:   content,
		Timestamp: at.UnixMilli(),
	}
	if err := l.store.InsertLog(ctx, record); err != nil {
		return nil, fmt.Errorf("append %s log: %w", logType, err)
	}
	l.logger.Debug("log record appended", "type", logType, "id", record.ID)
	return record, nil
}
