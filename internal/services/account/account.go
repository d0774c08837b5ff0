// Package account implements signup, login, sessions, and user administration.
package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	internalauth "inkboard/internal/auth"
	"inkboard/internal/models"
	"inkboard/internal/rpc"
	"inkboard/internal/store"
)

// Name is the service manager key.
const Name = "account"

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrSignupClosed       = errors.New("signup is disabled")
	ErrRateLimited        = errors.New("too many failed login attempts")
	ErrUserExists         = errors.New("user already exists")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidResetToken  = errors.New("invalid or expired reset token")
)

// Options configures the account service.
type Options struct {
	Store         store.AccountStore
	SessionTTL    time.Duration
	ResetTokenTTL time.Duration
	AllowSignup   bool
	Notifier      ResetNotifier
	Logger        *slog.Logger
	Now           func() time.Time
	// OnUserDeleted runs after an account and its boards are removed.
	OnUserDeleted func(ctx context.Context, username string)
}

// Service owns users and browser sessions.
type Service struct {
	store         store.AccountStore
	sessionTTL    time.Duration
	resetTokenTTL time.Duration
	allowSignup   bool
	notifier      ResetNotifier
	limiter       *attemptLimiter
	logger        *slog.Logger
	now           func() time.Time
	onUserDeleted func(ctx context.Context, username string)
}

// Session is the result of a successful login or signup.
type Session struct {
	User      *models.User
	Token     string
	ExpiresAt time.Time
}

// SignupInput is the self-service registration payload.
type SignupInput struct {
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
	Password string `json:"password"`
}

// LoginInput identifies a user by username or email.
type LoginInput struct {
	Identifier string
	Password   string
	RemoteAddr string
}

// CreateUserInput is the admin provisioning payload.
type CreateUserInput struct {
	Username string
	Email    string
	Password string
	Role     models.UserRole
}

// New builds the account service.
func New(opts Options) (*Service, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("account store is required")
	}
	s := &Service{
		store:         opts.Store,
		sessionTTL:    opts.SessionTTL,
		resetTokenTTL: opts.ResetTokenTTL,
		allowSignup:   opts.AllowSignup,
		notifier:      opts.Notifier,
		limiter:       newAttemptLimiter(defaultMaxLoginFailures, defaultFailureWindow, defaultBlockDuration),
		logger:        opts.Logger,
		now:           opts.Now,
		onUserDeleted: opts.OnUserDeleted,
	}
	if s.sessionTTL <= 0 {
		s.sessionTTL = 7 * 24 * time.Hour
	}
	if s.resetTokenTTL <= 0 {
		s.resetTokenTTL = time.Hour
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.notifier == nil {
		s.notifier = LogNotifier{Logger: s.logger}
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	return s, nil
}

// Name returns the service manager key.
func (s *Service) Name() string { return Name }

// Startup reports whether the install still waits for its first admin.
func (s *Service) Startup(ctx context.Context) error {
	count, err := s.store.CountUsers(ctx)
	if err != nil {
		return fmt.Errorf("count users: %w", err)
	}
	if count == 0 {
		s.logger.Info("no accounts yet; the first signup becomes admin")
	}
	return nil
}

// SignupOpen reports whether self-service signup is currently accepted.
func (s *Service) SignupOpen(ctx context.Context) (bool, error) {
	if s.allowSignup {
		return true, nil
	}
	count, err := s.store.CountUsers(ctx)
	if err != nil {
		return false, err
	}
	return count == 0, nil
}

// Signup registers a user and opens a session for them. The first account
// on an install becomes admin; the role is settled by the insert itself so
// concurrent first signups cannot both win it.
func (s *Service) Signup(ctx context.Context, in SignupInput) (*Session, error) {
	if !s.allowSignup {
		count, err := s.store.CountUsers(ctx)
		if err != nil {
			return nil, err
		}
		if count > 0 {
			return nil, ErrSignupClosed
		}
	}

	user, err := s.createUser(ctx, CreateUserInput{
		Username: in.Username,
		Email:    in.Email,
		Password: in.Password,
		Role:     models.RoleMember,
	}, true, !s.allowSignup)
	if errors.Is(err, store.ErrUsersExist) {
		return nil, ErrSignupClosed
	}
	if err != nil {
		return nil, err
	}
	return s.openSession(ctx, user)
}

// Login verifies credentials and opens a session.
func (s *Service) Login(ctx context.Context, in LoginInput) (*Session, error) {
	identifier := strings.TrimSpace(strings.ToLower(in.Identifier))
	if identifier == "" || in.Password == "" {
		return nil, fmt.Errorf("%w: identifier and password are required", ErrInvalidInput)
	}

	now := s.now()
	key := limiterKey(in.RemoteAddr, identifier)
	if !s.limiter.allow(key, now) {
		return nil, ErrRateLimited
	}

	var user *models.User
	var err error
	if internalauth.LooksLikeEmail(identifier) {
		user, err = s.store.GetUserByEmail(ctx, identifier)
	} else {
		user, err = s.store.GetUserByUsername(ctx, identifier)
	}
	if err != nil {
		return nil, err
	}
	if user == nil || user.Disabled || !internalauth.VerifyPassword(user.PasswordHash, in.Password) {
		s.limiter.fail(key, now)
		return nil, ErrInvalidCredentials
	}
	s.limiter.reset(key)

	if internalauth.NeedsRehash(user.PasswordHash) {
		if err := s.setPassword(ctx, user.ID, in.Password); err != nil {
			s.logger.WarnContext(ctx, "password rehash failed", "user", user.Username, "err", err)
		}
	}

	return s.openSession(ctx, user)
}

// Logout revokes one session token. Unknown tokens are ignored.
func (s *Service) Logout(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil
	}
	return s.store.RevokeSessionByTokenHash(ctx, internalauth.HashToken(token), s.now())
}

// Authenticate returns the user owning token, or nil when not logged in.
func (s *Service) Authenticate(ctx context.Context, token string) (*models.User, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil
	}
	return s.store.GetUserBySessionTokenHash(ctx, internalauth.HashToken(token), s.now())
}

// ChangePassword replaces the user's password and revokes every other session.
func (s *Service) ChangePassword(ctx context.Context, user *models.User, currentToken, oldPassword, newPassword string) error {
	if user == nil {
		return rpc.ErrLoginRequired
	}
	stored, err := s.store.GetUserByID(ctx, user.ID)
	if err != nil {
		return err
	}
	if stored == nil {
		return ErrUserNotFound
	}
	if !internalauth.VerifyPassword(stored.PasswordHash, oldPassword) {
		return ErrInvalidCredentials
	}
	if err := s.setPassword(ctx, stored.ID, newPassword); err != nil {
		return err
	}
	keep := ""
	if strings.TrimSpace(currentToken) != "" {
		keep = internalauth.HashToken(currentToken)
	}
	_, err = s.store.RevokeUserSessions(ctx, stored.ID, keep, s.now())
	return err
}

// ForgotPassword issues a reset token for the account behind email. Unknown
// or disabled accounts are accepted silently.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	normalized, err := internalauth.NormalizeEmail(email)
	if err != nil || normalized == "" {
		return fmt.Errorf("%w: a valid email is required", ErrInvalidInput)
	}
	user, err := s.store.GetUserByEmail(ctx, normalized)
	if err != nil {
		return err
	}
	if user == nil || user.Disabled {
		s.logger.DebugContext(ctx, "password reset for unknown account ignored")
		return nil
	}

	token, err := internalauth.GenerateToken()
	if err != nil {
		return err
	}
	now := s.now()
	expiresAt := now.Add(s.resetTokenTTL)
	if err := s.store.CreateResetToken(ctx, user.ID, internalauth.HashToken(token), expiresAt, now); err != nil {
		return err
	}
	return s.notifier.NotifyPasswordReset(ctx, user, token, expiresAt)
}

// ResetPassword consumes a reset token and sets a new password. All of the
// user's sessions are revoked.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrInvalidResetToken
	}
	if err := internalauth.ValidatePassword(newPassword); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	userID, err := s.store.ConsumeResetToken(ctx, internalauth.HashToken(token), s.now())
	if errors.Is(err, store.ErrNotFound) {
		return ErrInvalidResetToken
	}
	if err != nil {
		return err
	}
	if err := s.setPassword(ctx, userID, newPassword); err != nil {
		return err
	}
	_, err = s.store.RevokeUserSessions(ctx, userID, "", s.now())
	return err
}

// CreateUser provisions an account with an explicit role.
func (s *Service) CreateUser(ctx context.Context, in CreateUserInput) (*models.User, error) {
	return s.createUser(ctx, in, false, false)
}

func (s *Service) createUser(ctx context.Context, in CreateUserInput, adminIfFirst, onlyIfFirst bool) (*models.User, error) {
	username, err := internalauth.NormalizeUsername(in.Username)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	email, err := internalauth.NormalizeEmail(in.Email)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err := internalauth.ValidatePassword(in.Password); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	role := in.Role
	if role == "" {
		role = models.RoleMember
	}
	if !models.IsValidRole(role) {
		return nil, fmt.Errorf("%w: invalid role %q", ErrInvalidInput, role)
	}

	hash, err := internalauth.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	user, err := s.store.CreateUser(ctx, store.NewUser{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		AdminIfFirst: adminIfFirst,
		OnlyIfFirst:  onlyIfFirst,
	}, s.now())
	if errors.Is(err, store.ErrDuplicate) {
		return nil, ErrUserExists
	}
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "user created", "username", user.Username, "role", user.Role)
	return user, nil
}

// ListUsers returns every account.
func (s *Service) ListUsers(ctx context.Context) ([]models.User, error) {
	return s.store.ListUsers(ctx)
}

// SetDisabled enables or disables an account by username.
func (s *Service) SetDisabled(ctx context.Context, username string, disabled bool) (*models.User, error) {
	normalized, err := internalauth.NormalizeUsername(username)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	user, err := s.store.SetUserDisabled(ctx, normalized, disabled, s.now())
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// DeleteUser removes an account. Its sessions and boards go with it.
func (s *Service) DeleteUser(ctx context.Context, username string) error {
	normalized, err := internalauth.NormalizeUsername(username)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	deleted, err := s.store.DeleteUser(ctx, normalized)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrUserNotFound
	}
	s.logger.InfoContext(ctx, "user deleted", "username", normalized)
	if s.onUserDeleted != nil {
		s.onUserDeleted(ctx, normalized)
	}
	return nil
}

func (s *Service) openSession(ctx context.Context, user *models.User) (*Session, error) {
	token, err := internalauth.GenerateToken()
	if err != nil {
		return nil, err
	}
	now := s.now()
	expiresAt := now.Add(s.sessionTTL)
	if err := s.store.CreateSession(ctx, user.ID, internalauth.HashToken(token), expiresAt, now); err != nil {
		return nil, err
	}
	return &Session{User: user, Token: token, ExpiresAt: expiresAt}, nil
}

func (s *Service) setPassword(ctx context.Context, userID, password string) error {
	if err := internalauth.ValidatePassword(password); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	hash, err := internalauth.HashPassword(password)
	if err != nil {
		return err
	}
	return s.store.UpdatePasswordHash(ctx, userID, hash, s.now())
}

func limiterKey(remoteAddr, identifier string) string {
	return strings.TrimSpace(remoteAddr) + "|" + identifier
}
