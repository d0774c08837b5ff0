package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"inkboard/internal/api"
	"inkboard/internal/collab"
	"inkboard/internal/rpc"
	"inkboard/internal/services"
	"inkboard/internal/services/account"
	"inkboard/internal/services/assets"
	"inkboard/internal/services/board"
	"inkboard/internal/store"
)

const (
	defaultJSONMaxBody  = 1 << 20  // 1 MiB
	defaultSceneMaxBody = 4 << 20  // 4 MiB
	importJSONMaxBody   = 64 << 20 // 64 MiB
	defaultLogsLimit    = 100
	maxLogsLimit        = 1000
)

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeErrorReq(w, nil, status, err)
}

func (s *Server) writeErrorReq(w http.ResponseWriter, r *http.Request, status int, err error) {
	if err == nil {
		err = errors.New(http.StatusText(status))
	}

	code := errorCode(status, err)
	numericCode := errorNumericCode(status, err)
	message := err.Error()

	fields := []any{"status", status, "code", code, "error_code", numericCode, "error", err}
	if r != nil {
		fields = append(fields, "method", r.Method, "path", r.URL.Path, "remote_addr", r.RemoteAddr)
	}

	switch {
	case status >= 500 && errors.Is(err, context.Canceled):
		s.log().Debug("request aborted", fields...)
		return
	case status >= 500:
		s.log().Error("request error", fields...)
		s.recordError(r, err)
		message = "internal error"
	case status >= 400 && shouldWarnClientError(status):
		s.log().Warn("request rejected", fields...)
	case status >= 400:
		s.log().Debug("request rejected", fields...)
	}

	s.writeJSON(w, status, api.ErrorResponse{Error: message, Code: code, ErrorCode: numericCode})
}

// recordError appends a failure to the logs collection.
func (s *Server) recordError(r *http.Request, err error) {
	if s.logs == nil {
		return
	}
	ctx := context.Background()
	message := err.Error()
	if r != nil {
		ctx = context.WithoutCancel(r.Context())
		message = fmt.Sprintf("%s %s: %s", r.Method, r.URL.Path, message)
	}
	if _, logErr := s.logs.AppendErrorLog(ctx, message); logErr != nil {
		s.log().Error("append error log", "error", logErr)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("write json response", "status", status, "error", err)
	}
}

type apiError struct {
	status  int
	code    string
	errCode int
	err     error
}

func (e apiError) Error() string {
	if e.err == nil {
		return ""
	}
	return e.err.Error()
}

func (e apiError) Unwrap() error {
	return e.err
}

func makeAPIError(status int, code string, errCode int, err error) error {
	if err == nil {
		err = errors.New(http.StatusText(status))
	}

	var existing apiError
	if errors.As(err, &existing) {
		if existing.status != 0 {
			return existing
		}
	}

	return apiError{status: status, code: code, errCode: errCode, err: err}
}

func badRequestCode(err error, code int) error {
	return makeAPIError(http.StatusBadRequest, "invalid_argument", code, err)
}

func notFoundCode(err error, code int) error {
	return makeAPIError(http.StatusNotFound, "not_found", code, err)
}

func conflictCode(err error, code int) error {
	return makeAPIError(http.StatusConflict, "conflict", code, err)
}

func unauthorized(err error) error {
	return makeAPIError(http.StatusUnauthorized, "unauthorized", ErrCodeUnauthorized, err)
}

func forbidden(err error) error {
	return makeAPIError(http.StatusForbidden, "forbidden", ErrCodeForbidden, err)
}

func internalError(err error) error {
	return makeAPIError(http.StatusInternalServerError, "internal", ErrCodeInternal, err)
}

func storeFailure(err error) error {
	return makeAPIError(http.StatusInternalServerError, "internal", ErrCodeStoreFailure, err)
}

// classifyError maps service errors onto API errors.
func classifyError(err error) error {
	var existing apiError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &existing):
		return existing
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, rpc.ErrLoginRequired):
		return unauthorized(err)
	case errors.Is(err, rpc.ErrInvalidParams):
		return badRequestCode(err, ErrCodeInvalidParams)
	case errors.Is(err, services.ErrUnknownService):
		return notFoundCode(err, ErrCodeServiceNotFound)
	case errors.Is(err, services.ErrUnknownMethod):
		return notFoundCode(err, ErrCodeMethodNotFound)
	case errors.Is(err, account.ErrInvalidCredentials):
		return unauthorized(fmt.Errorf("invalid credentials"))
	case errors.Is(err, account.ErrRateLimited):
		return makeAPIError(http.StatusTooManyRequests, "resource_exhausted", ErrCodeResourceExhausted, fmt.Errorf("too many login attempts; retry later"))
	case errors.Is(err, account.ErrSignupClosed):
		return makeAPIError(http.StatusForbidden, "forbidden", ErrCodeSignupClosed, err)
	case errors.Is(err, account.ErrUserExists):
		return conflictCode(err, ErrCodeUserExists)
	case errors.Is(err, account.ErrUserNotFound):
		return notFoundCode(err, ErrCodeUserNotFound)
	case errors.Is(err, account.ErrInvalidResetToken):
		return badRequestCode(err, ErrCodeInvalidToken)
	case errors.Is(err, account.ErrInvalidInput):
		return badRequestCode(err, ErrCodeInvalidArgument)
	case errors.Is(err, board.ErrBoardNotFound):
		return notFoundCode(err, ErrCodeBoardNotFound)
	case errors.Is(err, board.ErrFileNotFound):
		return notFoundCode(err, ErrCodeFileNotFound)
	case errors.Is(err, board.ErrVersionConflict):
		return conflictCode(err, ErrCodeConflict)
	case errors.Is(err, board.ErrFileTooLarge):
		return makeAPIError(http.StatusRequestEntityTooLarge, "invalid_argument", ErrCodeRequestTooLarge, err)
	case errors.Is(err, board.ErrUnsupportedMedia):
		return makeAPIError(http.StatusUnsupportedMediaType, "invalid_argument", ErrCodeUnsupportedMedia, err)
	case errors.Is(err, board.ErrFilesUnavailable):
		return makeAPIError(http.StatusServiceUnavailable, "not_implemented", ErrCodeNotImplemented, err)
	case errors.Is(err, board.ErrInvalidInput):
		return badRequestCode(err, ErrCodeInvalidArgument)
	case errors.Is(err, assets.ErrNotFound):
		return notFoundCode(err, ErrCodeRouteNotFound)
	case errors.Is(err, assets.ErrInvalidPath):
		return badRequestCode(err, ErrCodeInvalidArgument)
	case errors.Is(err, collab.ErrHubClosed):
		return makeAPIError(http.StatusServiceUnavailable, "unavailable", ErrCodeNotImplemented, err)
	case errors.Is(err, store.ErrNotFound):
		return notFoundCode(err, ErrCodeRouteNotFound)
	default:
		return storeFailure(err)
	}
}

func httpStatusFromError(err error) int {
	var apiErr apiError
	if errors.As(err, &apiErr) {
		return apiErr.status
	}
	return http.StatusInternalServerError
}

func errorCode(status int, err error) string {
	var apiErr apiError
	if errors.As(err, &apiErr) && apiErr.code != "" {
		return apiErr.code
	}
	switch status {
	case http.StatusBadRequest:
		return "invalid_argument"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusTooManyRequests:
		return "resource_exhausted"
	case http.StatusInternalServerError:
		return "internal"
	default:
		return ""
	}
}

func errorNumericCode(status int, err error) int {
	var apiErr apiError
	if errors.As(err, &apiErr) && apiErr.errCode > 0 {
		return apiErr.errCode
	}
	return defaultErrorCodeByStatus(status)
}

func shouldWarnClientError(status int) bool {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusTooManyRequests:
		return true
	default:
		return false
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, maxBytes int64) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	return json.NewDecoder(r.Body).Decode(dst)
}

func classifyDecodeJSONError(err error) error {
	if err == nil {
		return nil
	}

	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		return badRequestCode(fmt.Errorf("request body too large"), ErrCodeRequestTooLarge)
	}

	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return badRequestCode(fmt.Errorf("invalid JSON payload"), ErrCodeInvalidJSON)
	}

	return badRequestCode(err, ErrCodeInvalidJSON)
}

func (s *Server) decodeJSONReq(w http.ResponseWriter, r *http.Request, dst any) bool {
	return s.decodeJSONReqLimit(w, r, dst, defaultJSONMaxBody)
}

func (s *Server) decodeJSONReqLimit(w http.ResponseWriter, r *http.Request, dst any, maxBytes int64) bool {
	if err := decodeJSON(w, r, dst, maxBytes); err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, classifyDecodeJSONError(err))
		return false
	}
	return true
}

// writeServiceError classifies err and writes it.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	err = classifyError(err)
	s.writeErrorReq(w, r, httpStatusFromError(err), err)
}

func (s *Server) withLimiter(w http.ResponseWriter, r *http.Request, limiter chan struct{}, name string, fn func()) {
	if !s.acquireLimiter(limiter, w, r, name) {
		return
	}
	defer s.releaseLimiter(limiter)
	fn()
}

func (s *Server) pathIDOrBadRequest(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, err := requirePathID(r)
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, err)
		return "", false
	}
	return id, true
}

func requirePathID(r *http.Request) (string, error) {
	id := strings.TrimSpace(r.PathValue("id"))
	if !validateBoardID(id) {
		return "", badRequestCode(fmt.Errorf("invalid board id"), ErrCodeInvalidID)
	}
	return id, nil
}

func queryIntDefault(r *http.Request, key string, def int) (int, error) {
	value := strings.TrimSpace(r.URL.Query().Get(key))
	if value == "" {
		return def, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, badRequestCode(fmt.Errorf("invalid %s", key), ErrCodeInvalidQuery)
	}
	if parsed < 0 {
		return 0, badRequestCode(fmt.Errorf("%s must be >= 0", key), ErrCodeInvalidQuery)
	}
	return parsed, nil
}
