package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/KoushikPanda1729/client-ui/internal/auth"
	"github.com/KoushikPanda1729/client-ui/internal/domain"
)

// AuthServiceDeps wires the sign-in flow.
type AuthServiceDeps struct {
	// Public is an auth client without a session transport, used for login and registration.
	Public *auth.Client
	Logger func(ctx context.Context, event string, fields map[string]any)
}

// AuthService signs shoppers in and out of a server-side session and keeps the
// refresh schedule in step with the session's tokens.
type AuthService struct {
	public *auth.Client
	logger func(ctx context.Context, event string, fields map[string]any)
}

// NewAuthService validates deps.
func NewAuthService(deps AuthServiceDeps) (*AuthService, error) {
	if deps.Public == nil {
		return nil, errors.New("auth service: public auth client is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &AuthService{public: deps.Public, logger: logger}, nil
}

// Login authenticates and binds the user and tokens to the session.
func (s *AuthService) Login(ctx context.Context, sess AuthSession, in auth.Credentials) (domain.User, error) {
	res, err := s.public.Login(ctx, in)
	if err != nil {
		return domain.User{}, err
	}
	return s.establish(ctx, sess, res)
}

// Register creates an account and signs it in.
func (s *AuthService) Register(ctx context.Context, sess AuthSession, in auth.Registration) (domain.User, error) {
	res, err := s.public.Register(ctx, in)
	if err != nil {
		return domain.User{}, err
	}
	return s.establish(ctx, sess, res)
}

func (s *AuthService) establish(ctx context.Context, sess AuthSession, res auth.Result) (domain.User, error) {
	sess.SignOut()
	sess.Tokens().Apply(res.Cookies)
	if !sess.Tokens().Authenticated() {
		return domain.User{}, fmt.Errorf("auth service: %w", auth.ErrNoToken)
	}

	user, err := sess.Auth().Self(ctx)
	if err != nil {
		sess.SignOut()
		return domain.User{}, err
	}
	if user.ID == 0 {
		user.ID = res.User.ID
	}
	sess.SetUser(user)
	s.startSchedule(ctx, sess)
	s.logger(ctx, "auth.signed_in", map[string]any{"userID": user.IDString()})
	return user, nil
}

// Logout revokes the refresh token upstream and clears the session. The session is
// cleared even if the revoke call fails.
func (s *AuthService) Logout(ctx context.Context, sess AuthSession) {
	if sess.Tokens().Authenticated() {
		if err := sess.Auth().Logout(ctx); err != nil {
			s.logger(ctx, "auth.logout_failed", map[string]any{"error": err.Error()})
		}
	}
	sess.SignOut()
}

// Refresh rotates the session's tokens on demand and re-arms the schedule.
func (s *AuthService) Refresh(ctx context.Context, sess AuthSession) (auth.TokenSnapshot, error) {
	if !sess.Tokens().Authenticated() {
		return auth.TokenSnapshot{}, auth.ErrNoToken
	}
	if err := sess.Refresher().Refresh(ctx, auth.TriggerManual); err != nil {
		sess.SignOut()
		return auth.TokenSnapshot{}, fmt.Errorf("%w: %v", auth.ErrSessionExpired, err)
	}
	s.startSchedule(ctx, sess)
	return sess.Tokens().Snapshot(), nil
}

// AccessToken returns the current access token.
func (s *AuthService) AccessToken(sess AuthSession) (string, error) {
	token := sess.Tokens().AccessToken()
	if token == "" {
		return "", auth.ErrNoToken
	}
	return token, nil
}

func (s *AuthService) startSchedule(ctx context.Context, sess AuthSession) {
	if err := sess.Scheduler().Start(ctx); err != nil {
		s.logger(ctx, "auth.schedule_failed", map[string]any{"error": err.Error()})
	}
}
