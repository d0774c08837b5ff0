package account

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"inkboard/internal/models"
)

// ResetNotifier delivers password reset links to users.
type ResetNotifier interface {
	NotifyPasswordReset(ctx context.Context, user *models.User, token string, expiresAt time.Time) error
}

// LogNotifier writes reset links to the server log. It stands in for mail
// delivery on single-host installs.
type LogNotifier struct {
	Logger  *slog.Logger
	BaseURL string
}

// NotifyPasswordReset logs the reset link for user.
func (n LogNotifier) NotifyPasswordReset(ctx context.Context, user *models.User, token string, expiresAt time.Time) error {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "password reset requested",
		"username", user.Username,
		"link", ResetLink(n.BaseURL, token),
		"expires_at", expiresAt.UTC().Format(time.RFC3339),
	)
	return nil
}

// ResetLink builds the page URL that consumes a reset token.
func ResetLink(baseURL, token string) string {
	return strings.TrimRight(baseURL, "/") + "/reset-password/" + url.PathEscape(token)
}
