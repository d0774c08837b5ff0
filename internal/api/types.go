package api

import (
	"encoding/json"
	"time"

	"inkboard/internal/models"
)

// ErrorResponse is a generic JSON error wrapper.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	ErrorCode int    `json:"error_code,omitempty"`
}

// InfoResponse describes the running server.
type InfoResponse struct {
	DBPath        string   `json:"db_path"`
	SchemaVersion int      `json:"schema_version"`
	Users         int      `json:"users"`
	Boards        int      `json:"boards"`
	Logs          int      `json:"logs"`
	Services      []string `json:"services"`
	SignupOpen    bool     `json:"signup_open"`
}

// SignupRequest registers a new account.
type SignupRequest struct {
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
	Password string `json:"password"`
}

// LoginRequest identifies a user by username or email.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// ForgotPasswordRequest asks for a reset link.
type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

// ResetPasswordRequest sets a new password with a reset token.
type ResetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

// UserResponse is the public view of an account.
type UserResponse struct {
	ID        string          `json:"id"`
	Username  string          `json:"username"`
	Email     string          `json:"email,omitempty"`
	Role      models.UserRole `json:"role"`
	Disabled  bool            `json:"disabled"`
	CreatedAt time.Time       `json:"created_at"`
}

// AuthMeResponse reports the caller's session state.
type AuthMeResponse struct {
	Authenticated bool          `json:"authenticated"`
	SignupOpen    bool          `json:"signup_open"`
	User          *UserResponse `json:"user,omitempty"`
	ExpiresAt     *time.Time    `json:"expires_at,omitempty"`
}

// BoardCreateRequest creates an empty board.
type BoardCreateRequest struct {
	Title string `json:"title"`
}

// BoardRenameRequest changes a board title.
type BoardRenameRequest struct {
	Title string `json:"title"`
}

// SceneResponse is the stored scene of one board.
type SceneResponse struct {
	ID      string       `json:"id"`
	Version int64        `json:"version"`
	Scene   models.Scene `json:"scene"`
}

// SceneSaveRequest replaces a board scene. ExpectedVersion enables the
// optimistic check.
type SceneSaveRequest struct {
	Scene           models.Scene `json:"scene"`
	ExpectedVersion *int64       `json:"expected_version,omitempty"`
}

// SceneSaveResponse reports the version written.
type SceneSaveResponse struct {
	ID      string `json:"id"`
	Version int64  `json:"version"`
}

// RPCResponse wraps the result of one remote method call.
type RPCResponse struct {
	Result json.RawMessage `json:"result"`
}

// UserFromModel converts a stored user to its public view.
func UserFromModel(user *models.User) *UserResponse {
	if user == nil {
		return nil
	}
	return &UserResponse{
		ID:        user.ID,
		Username:  user.Username,
		Email:     user.Email,
		Role:      user.Role,
		Disabled:  user.Disabled,
		CreatedAt: user.CreatedAt,
	}
}

// AdminUserCreateRequest provisions an account with an explicit role.
type AdminUserCreateRequest struct {
	Username string          `json:"username"`
	Email    string          `json:"email,omitempty"`
	Password string          `json:"password"`
	Role     models.UserRole `json:"role,omitempty"`
}

// AdminUserSetDisabledRequest enables or disables an account.
type AdminUserSetDisabledRequest struct {
	Disabled bool `json:"disabled"`
}

// AdminUserDeleteResponse confirms an account removal.
type AdminUserDeleteResponse struct {
	Username string `json:"username"`
	Deleted  bool   `json:"deleted"`
}

// BlobGCRequest asks for a sweep of unreferenced board file blobs.
type BlobGCRequest struct {
	DryRun bool `json:"dry_run"`
}

// BlobGCResponse reports one blob sweep.
type BlobGCResponse struct {
	CandidateCount int   `json:"candidate_count"`
	DeletedCount   int   `json:"deleted_count"`
	FailedCount    int   `json:"failed_count"`
	ReclaimedBytes int64 `json:"reclaimed_bytes"`
	DryRun         bool  `json:"dry_run"`
}
