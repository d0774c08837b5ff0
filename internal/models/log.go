package models

// LogRecord is one append-only entry in the logs collection.
// Timestamp is epoch milliseconds.
type LogRecord struct {
	ID        string  `json:"id"`
	Type      LogType `json:"type"`
	Content   string  `json:"content"`
	Timestamp int64   `json:"timestamp"`
}
