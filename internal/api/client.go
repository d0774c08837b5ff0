package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"inkboard/internal/models"
)

const (
	// SessionCookieName carries the browser session token.
	SessionCookieName = "inkboard_session"

	defaultHTTPTimeout = 10 * time.Second
	httpTimeoutEnvKey  = "INKBOARD_HTTP_TIMEOUT"
	sessionEnvKey      = "INKBOARD_SESSION"
)

// Client is a small HTTP client for the inkboard API.
type Client struct {
	baseURL      string
	origin       string
	http         *http.Client
	sessionToken string
}

// NewClient creates a new API client. INKBOARD_SESSION seeds the session token.
func NewClient(baseURL string) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	return &Client{
		baseURL:      baseURL,
		origin:       originOf(baseURL),
		http:         &http.Client{Timeout: httpTimeoutFromEnv()},
		sessionToken: strings.TrimSpace(os.Getenv(sessionEnvKey)),
	}
}

// SessionToken returns the token captured by Login or Signup.
func (c *Client) SessionToken() string { return c.sessionToken }

// SetSessionToken replaces the session token sent with each request.
func (c *Client) SetSessionToken(token string) { c.sessionToken = strings.TrimSpace(token) }

// Ping checks whether the API server is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil, nil)
}

func (c *Client) GetInfo(ctx context.Context) (InfoResponse, error) {
	var resp InfoResponse
	err := c.do(ctx, http.MethodGet, "/v1/info", nil, nil, &resp)
	return resp, err
}

func (c *Client) Signup(ctx context.Context, req SignupRequest) (AuthMeResponse, error) {
	return c.openSession(ctx, "/v1/auth/signup", req)
}

func (c *Client) Login(ctx context.Context, req LoginRequest) (AuthMeResponse, error) {
	return c.openSession(ctx, "/v1/auth/login", req)
}

func (c *Client) Logout(ctx context.Context) error {
	if err := c.do(ctx, http.MethodPost, "/v1/auth/logout", nil, nil, nil); err != nil {
		return err
	}
	c.sessionToken = ""
	return nil
}

func (c *Client) Me(ctx context.Context) (AuthMeResponse, error) {
	var resp AuthMeResponse
	err := c.do(ctx, http.MethodGet, "/v1/auth/me", nil, nil, &resp)
	return resp, err
}

func (c *Client) ListBoards(ctx context.Context) ([]models.BoardSummary, error) {
	var resp []models.BoardSummary
	err := c.do(ctx, http.MethodGet, "/v1/boards", nil, nil, &resp)
	return resp, err
}

func (c *Client) CreateBoard(ctx context.Context, req BoardCreateRequest) (models.Board, error) {
	var resp models.Board
	err := c.do(ctx, http.MethodPost, "/v1/boards", nil, req, &resp)
	return resp, err
}

func (c *Client) GetBoard(ctx context.Context, id string) (models.Board, error) {
	var resp models.Board
	err := c.do(ctx, http.MethodGet, boardPath(id), nil, nil, &resp)
	return resp, err
}

func (c *Client) RenameBoard(ctx context.Context, id string, req BoardRenameRequest) (models.Board, error) {
	var resp models.Board
	err := c.do(ctx, http.MethodPatch, boardPath(id), nil, req, &resp)
	return resp, err
}

func (c *Client) DeleteBoard(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, boardPath(id), nil, nil, nil)
}

func (c *Client) GetScene(ctx context.Context, id string) (SceneResponse, error) {
	var resp SceneResponse
	err := c.do(ctx, http.MethodGet, boardPath(id)+"/scene", nil, nil, &resp)
	return resp, err
}

func (c *Client) SaveScene(ctx context.Context, id string, req SceneSaveRequest) (SceneSaveResponse, error) {
	var resp SceneSaveResponse
	err := c.do(ctx, http.MethodPut, boardPath(id)+"/scene", nil, req, &resp)
	return resp, err
}

// ExportBoard streams a board document in the given format ("json" or "yaml") to w.
func (c *Client) ExportBoard(ctx context.Context, id, format string, w io.Writer) error {
	query := url.Values{}
	if format != "" {
		query.Set("format", format)
	}
	resp, err := c.send(ctx, http.MethodGet, boardPath(id)+"/export", query, nil, "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, err = io.Copy(w, resp.Body)
	return err
}

// ImportBoard uploads a board document and returns the created board.
func (c *Client) ImportBoard(ctx context.Context, document io.Reader, contentType string) (models.Board, error) {
	var board models.Board
	resp, err := c.send(ctx, http.MethodPost, "/v1/boards/import", nil, document, contentType)
	if err != nil {
		return board, err
	}
	defer resp.Body.Close()
	err = json.NewDecoder(resp.Body).Decode(&board)
	return board, err
}

// UploadFile stores one binary file for a board.
func (c *Client) UploadFile(ctx context.Context, boardID, fileID, mimeType string, data io.Reader) (models.BoardFile, error) {
	var file models.BoardFile
	resp, err := c.send(ctx, http.MethodPost, filePath(boardID, fileID), nil, data, mimeType)
	if err != nil {
		return file, err
	}
	defer resp.Body.Close()
	err = json.NewDecoder(resp.Body).Decode(&file)
	return file, err
}

// DownloadFile copies one board file to w and returns its mime type.
func (c *Client) DownloadFile(ctx context.Context, boardID, fileID string, w io.Writer) (string, error) {
	resp, err := c.send(ctx, http.MethodGet, filePath(boardID, fileID), nil, nil, "")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if _, err := io.Copy(w, resp.Body); err != nil {
		return "", err
	}
	return resp.Header.Get("Content-Type"), nil
}

// ListLogs returns log records newest first. An empty logType lists all.
func (c *Client) ListLogs(ctx context.Context, logType string, limit int) ([]models.LogRecord, error) {
	query := url.Values{}
	if logType != "" {
		query.Set("type", logType)
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	var resp []models.LogRecord
	err := c.do(ctx, http.MethodGet, "/v1/logs", query, nil, &resp)
	return resp, err
}

// Call invokes one service method over the RPC endpoint and decodes its result into out.
func (c *Client) Call(ctx context.Context, service, method string, params any, out any) error {
	if params == nil {
		params = struct{}{}
	}
	var resp RPCResponse
	path := "/v1/rpc/" + url.PathEscape(service) + "/" + url.PathEscape(method)
	if err := c.do(ctx, http.MethodPost, path, nil, params, &resp); err != nil {
		return err
	}
	if out == nil || len(resp.Result) == 0 {
		return nil
	}
	return json.Unmarshal(resp.Result, out)
}

func (c *Client) openSession(ctx context.Context, path string, body any) (AuthMeResponse, error) {
	var out AuthMeResponse
	payload, err := json.Marshal(body)
	if err != nil {
		return out, err
	}
	resp, err := c.send(ctx, http.MethodPost, path, nil, bytes.NewReader(payload), "application/json")
	if err != nil {
		return out, err
	}
	defer resp.Body.Close()
	for _, cookie := range resp.Cookies() {
		if cookie.Name == SessionCookieName {
			c.sessionToken = cookie.Value
		}
	}
	err = json.NewDecoder(resp.Body).Decode(&out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	var reader io.Reader
	contentType := ""
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
		contentType = "application/json"
	}

	resp, err := c.send(ctx, method, path, query, reader, contentType)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// send performs one request. Responses with status >= 400 are returned as *APIError.
func (c *Client) send(ctx context.Context, method, path string, query url.Values, body io.Reader, contentType string) (*http.Response, error) {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if method != http.MethodGet && method != http.MethodHead && c.origin != "" {
		req.Header.Set("Origin", c.origin)
	}
	if c.sessionToken != "" {
		req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: c.sessionToken})
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		return nil, decodeError(resp)
	}
	return resp, nil
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	var errResp ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil && errResp.Error != "" {
		apiErr.Code = errResp.Code
		apiErr.ErrorCode = errResp.ErrorCode
		apiErr.Message = errResp.Error
		return apiErr
	}
	apiErr.Message = fmt.Sprintf("api error: %s", resp.Status)
	return apiErr
}

func boardPath(id string) string {
	return "/v1/boards/" + url.PathEscape(id)
}

func filePath(boardID, fileID string) string {
	return boardPath(boardID) + "/files/" + url.PathEscape(fileID)
}

func originOf(baseURL string) string {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

func httpTimeoutFromEnv() time.Duration {
	value := strings.TrimSpace(os.Getenv(httpTimeoutEnvKey))
	if value == "" {
		return defaultHTTPTimeout
	}

	if duration, err := time.ParseDuration(value); err == nil && duration > 0 {
		return duration
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}

	return defaultHTTPTimeout
}
