package account

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inkboard/internal/models"
	"inkboard/internal/store"
)

type recordingNotifier struct {
	mu     sync.Mutex
	tokens map[string]string
}

func (n *recordingNotifier) NotifyPasswordReset(_ context.Context, user *models.User, token string, _ time.Time) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.tokens == nil {
		n.tokens = map[string]string{}
	}
	n.tokens[user.Username] = token
	return nil
}

func (n *recordingNotifier) token(username string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.tokens[username]
}

func newTestService(t *testing.T, allowSignup bool) (*Service, *recordingNotifier) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "account.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	notifier := &recordingNotifier{}
	svc, err := New(Options{Store: st, AllowSignup: allowSignup, Notifier: notifier})
	require.NoError(t, err)
	return svc, notifier
}

func TestSignupFirstUserIsAdmin(t *testing.T) {
	svc, _ := newTestService(t, true)
	ctx := context.Background()

	first, err := svc.Signup(ctx, SignupInput{Username: "Ada", Email: "ada@example.com", Password: "correct horse"})
	require.NoError(t, err)
	assert.Equal(t, "ada", first.User.Username)
	assert.Equal(t, models.RoleAdmin, first.User.Role)
	assert.NotEmpty(t, first.Token)

	second, err := svc.Signup(ctx, SignupInput{Username: "bob", Password: "correct horse"})
	require.NoError(t, err)
	assert.Equal(t, models.RoleMember, second.User.Role)

	_, err = svc.Signup(ctx, SignupInput{Username: "ADA", Password: "correct horse"})
	assert.ErrorIs(t, err, ErrUserExists)

	_, err = svc.Signup(ctx, SignupInput{Username: "x y", Password: "correct horse"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.Signup(ctx, SignupInput{Username: "carol", Password: "short"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestSignupClosedAfterFirstUser(t *testing.T) {
	svc, _ := newTestService(t, false)
	ctx := context.Background()

	open, err := svc.SignupOpen(ctx)
	require.NoError(t, err)
	assert.True(t, open)

	_, err = svc.Signup(ctx, SignupInput{Username: "admin", Password: "correct horse"})
	require.NoError(t, err)

	open, err = svc.SignupOpen(ctx)
	require.NoError(t, err)
	assert.False(t, open)

	_, err = svc.Signup(ctx, SignupInput{Username: "late", Password: "correct horse"})
	assert.ErrorIs(t, err, ErrSignupClosed)
}

func TestConcurrentFirstSignups(t *testing.T) {
	for _, allowSignup := range []bool{true, false} {
		t.Run(fmt.Sprintf("allow_signup=%v", allowSignup), func(t *testing.T) {
			svc, _ := newTestService(t, allowSignup)
			ctx := context.Background()

			const signups = 6
			var wg sync.WaitGroup
			errs := make(chan error, signups)
			for i := 0; i < signups; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					_, err := svc.Signup(ctx, SignupInput{Username: fmt.Sprintf("user%d", i), Password: "correct horse"})
					errs <- err
				}(i)
			}
			wg.Wait()
			close(errs)

			created := 0
			for err := range errs {
				if err == nil {
					created++
					continue
				}
				assert.ErrorIs(t, err, ErrSignupClosed)
			}

			users, err := svc.ListUsers(ctx)
			require.NoError(t, err)
			require.Len(t, users, created)
			admins := 0
			for _, user := range users {
				if user.IsAdmin() {
					admins++
				}
			}
			assert.Equal(t, 1, admins)
			if !allowSignup {
				assert.Equal(t, 1, created)
			} else {
				assert.Equal(t, signups, created)
			}
		})
	}
}

func TestLoginLogoutAuthenticate(t *testing.T) {
	svc, _ := newTestService(t, true)
	ctx := context.Background()

	_, err := svc.Signup(ctx, SignupInput{Username: "ada", Email: "ada@example.com", Password: "correct horse"})
	require.NoError(t, err)

	byName, err := svc.Login(ctx, LoginInput{Identifier: "ADA", Password: "correct horse", RemoteAddr: "10.0.0.1"})
	require.NoError(t, err)
	byEmail, err := svc.Login(ctx, LoginInput{Identifier: "ada@example.com", Password: "correct horse", RemoteAddr: "10.0.0.1"})
	require.NoError(t, err)

	user, err := svc.Authenticate(ctx, byName.Token)
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "ada", user.Username)

	require.NoError(t, svc.Logout(ctx, byName.Token))
	user, err = svc.Authenticate(ctx, byName.Token)
	require.NoError(t, err)
	assert.Nil(t, user)

	user, err = svc.Authenticate(ctx, byEmail.Token)
	require.NoError(t, err)
	assert.NotNil(t, user)

	user, err = svc.Authenticate(ctx, "")
	require.NoError(t, err)
	assert.Nil(t, user)

	_, err = svc.Login(ctx, LoginInput{Identifier: "ada", Password: "wrong password"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Login(ctx, LoginInput{Identifier: "nobody", Password: "wrong password"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginRateLimited(t *testing.T) {
	svc, _ := newTestService(t, true)
	ctx := context.Background()
	_, err := svc.Signup(ctx, SignupInput{Username: "ada", Password: "correct horse"})
	require.NoError(t, err)

	for i := 0; i < defaultMaxLoginFailures; i++ {
		_, err := svc.Login(ctx, LoginInput{Identifier: "ada", Password: "wrong password", RemoteAddr: "10.0.0.9"})
		require.ErrorIs(t, err, ErrInvalidCredentials)
	}

	_, err = svc.Login(ctx, LoginInput{Identifier: "ada", Password: "correct horse", RemoteAddr: "10.0.0.9"})
	assert.ErrorIs(t, err, ErrRateLimited)

	// Other addresses are unaffected.
	_, err = svc.Login(ctx, LoginInput{Identifier: "ada", Password: "correct horse", RemoteAddr: "10.0.0.10"})
	assert.NoError(t, err)
}

func TestChangePasswordRevokesOtherSessions(t *testing.T) {
	svc, _ := newTestService(t, true)
	ctx := context.Background()

	first, err := svc.Signup(ctx, SignupInput{Username: "ada", Password: "correct horse"})
	require.NoError(t, err)
	other, err := svc.Login(ctx, LoginInput{Identifier: "ada", Password: "correct horse"})
	require.NoError(t, err)

	err = svc.ChangePassword(ctx, first.User, first.Token, "wrong password", "battery staple")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	require.NoError(t, svc.ChangePassword(ctx, first.User, first.Token, "correct horse", "battery staple"))

	kept, err := svc.Authenticate(ctx, first.Token)
	require.NoError(t, err)
	assert.NotNil(t, kept)

	revoked, err := svc.Authenticate(ctx, other.Token)
	require.NoError(t, err)
	assert.Nil(t, revoked)

	_, err = svc.Login(ctx, LoginInput{Identifier: "ada", Password: "battery staple"})
	assert.NoError(t, err)
}

func TestResetTokenIsSingleUse(t *testing.T) {
	svc, notifier := newTestService(t, true)
	ctx := context.Background()

	session, err := svc.Signup(ctx, SignupInput{Username: "ada", Email: "ada@example.com", Password: "correct horse"})
	require.NoError(t, err)

	require.NoError(t, svc.ForgotPassword(ctx, "nobody@example.com"))
	assert.Empty(t, notifier.token("nobody"))

	require.NoError(t, svc.ForgotPassword(ctx, "ADA@example.com"))
	token := notifier.token("ada")
	require.NotEmpty(t, token)

	require.NoError(t, svc.ResetPassword(ctx, token, "brand new pass"))
	assert.ErrorIs(t, svc.ResetPassword(ctx, token, "another pass!"), ErrInvalidResetToken)

	// Reset revokes existing sessions.
	user, err := svc.Authenticate(ctx, session.Token)
	require.NoError(t, err)
	assert.Nil(t, user)

	_, err = svc.Login(ctx, LoginInput{Identifier: "ada", Password: "brand new pass"})
	assert.NoError(t, err)

	assert.ErrorIs(t, svc.ForgotPassword(ctx, "not-an-email"), ErrInvalidInput)
}

func TestAdminUserOperations(t *testing.T) {
	svc, _ := newTestService(t, true)
	ctx := context.Background()

	created, err := svc.CreateUser(ctx, CreateUserInput{Username: "ops", Password: "correct horse", Role: models.RoleAdmin})
	require.NoError(t, err)
	assert.True(t, created.IsAdmin())

	disabled, err := svc.SetDisabled(ctx, "ops", true)
	require.NoError(t, err)
	assert.True(t, disabled.Disabled)

	_, err = svc.Login(ctx, LoginInput{Identifier: "ops", Password: "correct horse"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.SetDisabled(ctx, "ghost", true)
	assert.ErrorIs(t, err, ErrUserNotFound)

	users, err := svc.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)

	require.NoError(t, svc.DeleteUser(ctx, "ops"))
	assert.ErrorIs(t, svc.DeleteUser(ctx, "ops"), ErrUserNotFound)
}

func TestDeleteUserRunsHook(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "account.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	var deleted []string
	svc, err := New(Options{Store: st, OnUserDeleted: func(_ context.Context, username string) {
		deleted = append(deleted, username)
	}})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = svc.CreateUser(ctx, CreateUserInput{Username: "Ops", Password: "correct horse"})
	require.NoError(t, err)
	require.NoError(t, svc.DeleteUser(ctx, "OPS"))
	assert.ErrorIs(t, svc.DeleteUser(ctx, "ops"), ErrUserNotFound)
	assert.Equal(t, []string{"ops"}, deleted)
}

func TestAttemptLimiterWindow(t *testing.T) {
	limiter := newAttemptLimiter(2, time.Minute, 5*time.Minute)
	now := time.Unix(1_700_000_000, 0)

	assert.True(t, limiter.allow("k", now))
	limiter.fail("k", now)
	assert.True(t, limiter.allow("k", now.Add(2*time.Minute)))
	limiter.fail("k", now.Add(2*time.Minute))
	limiter.fail("k", now.Add(2*time.Minute+time.Second))
	assert.False(t, limiter.allow("k", now.Add(3*time.Minute)))
	assert.True(t, limiter.allow("k", now.Add(8*time.Minute)))

	limiter.fail("j", now)
	limiter.reset("j")
	assert.True(t, limiter.allow("j", now))

	var nilLimiter *attemptLimiter
	assert.True(t, nilLimiter.allow("k", now))
}
