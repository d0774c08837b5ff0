package main

import (
	"context"
	"errors"
	"net"
	"slices"

	"inkboard/internal/api"
	"inkboard/internal/server"
)

const (
	hintLogin       = "hint: run `inkboard login <username> --password-stdin` and export INKBOARD_SESSION."
	hintAdmin       = "hint: this command needs an admin account."
	hintAPIURL      = "hint: verify INKBOARD_API_URL points to an inkboard server."
	hintServerLogs  = "hint: the server hit an internal error; see `inkboard logs --type error`."
	hintStartServer = "hint: start a local server with: inkboard srv"
	hintTimeout     = "hint: raise INKBOARD_HTTP_TIMEOUT for slow servers or large boards."
)

// codeHints maps server error codes to the next step a user should take.
var codeHints = map[int]string{
	server.ErrCodeUnauthorized:      hintLogin,
	server.ErrCodeForbidden:         hintAdmin,
	server.ErrCodeSignupClosed:      "hint: signup is closed; ask an admin to run `inkboard user add`.",
	server.ErrCodeResourceExhausted: "hint: wait a few minutes before retrying.",
	server.ErrCodeConflict:          "hint: the board changed meanwhile; run `inkboard board scene <id>` and retry with the new --expected-version.",
	server.ErrCodeBoardNotFound:     "hint: `inkboard board list` shows the boards you can open.",
	server.ErrCodeUnsupportedMedia:  "hint: board files must be png, jpeg, gif, webp, or svg images.",
	server.ErrCodeInvalidToken:      "hint: reset links are single use; request a new one.",
}

func formatCLIError(err error) []string {
	if err == nil {
		return nil
	}
	lines := []string{err.Error()}

	var apiErr *api.APIError
	switch {
	case errors.As(err, &apiErr):
		if hint, ok := codeHints[apiErr.ErrorCode]; ok {
			lines = append(lines, hint)
		} else if apiErr.Status == 401 {
			lines = append(lines, hintLogin)
		}
		if apiErr.Code == "" {
			lines = append(lines, hintAPIURL)
		}
		if apiErr.Status >= 500 {
			lines = append(lines, hintServerLogs)
		}
	case errors.Is(err, context.DeadlineExceeded):
		lines = append(lines, hintTimeout)
	default:
		var netErr net.Error
		if errors.As(err, &netErr) {
			lines = append(lines, hintAPIURL, hintStartServer, hintTimeout)
		}
	}

	return slices.Compact(lines)
}
