// Package auth talks to the auth service and keeps a session's tokens fresh: it
// decodes token expiry, schedules refreshes ahead of it, and replays requests that
// fail with 401 once a refresh succeeds.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"strings"

	"github.com/KoushikPanda1729/client-ui/internal/domain"
	"github.com/KoushikPanda1729/client-ui/internal/platform/upstream"
)

// Auth service paths.
const (
	LoginPath    = "/auth/login"
	RegisterPath = "/auth/register"
	LogoutPath   = "/auth/logout"
	RefreshPath  = "/auth/refresh"
	SelfPath     = "/auth/self"
)

var (
	// ErrInvalidCredentials is returned for blank or malformed credentials.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrSessionExpired is returned when a 401 cannot be recovered by a refresh.
	ErrSessionExpired = upstream.ErrSessionExpired
)

// Credentials identify a shopper at login.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Registration is the body of a sign up.
type Registration struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

// Result is a successful login or registration: the user and the cookies the auth
// service set.
type Result struct {
	User    domain.User
	Cookies []*http.Cookie
}

// Client calls the auth service. Login, Register and Refresh read the Set-Cookie
// headers; the other calls rely on a session transport to attach cookies.
type Client struct {
	api *upstream.Client
}

// NewClient wraps a gateway client.
func NewClient(api *upstream.Client) (*Client, error) {
	if api == nil {
		return nil, errors.New("auth client: upstream client is required")
	}
	return &Client{api: api}, nil
}

func validEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s
}

// Login exchanges credentials for session cookies.
func (c *Client) Login(ctx context.Context, in Credentials) (Result, error) {
	in.Email = strings.TrimSpace(in.Email)
	if !validEmail(in.Email) || in.Password == "" {
		return Result{}, ErrInvalidCredentials
	}
	return c.authenticate(ctx, LoginPath, in)
}

// Register creates an account and signs it in.
func (c *Client) Register(ctx context.Context, in Registration) (Result, error) {
	in.Email = strings.TrimSpace(in.Email)
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	if !validEmail(in.Email) || in.Password == "" || in.FirstName == "" {
		return Result{}, ErrInvalidCredentials
	}
	return c.authenticate(ctx, RegisterPath, in)
}

func (c *Client) authenticate(ctx context.Context, path string, body any) (Result, error) {
	var payload struct {
		User domain.User `json:"user"`
		ID   int64       `json:"id"`
	}
	header, err := c.api.DoRaw(ctx, upstream.Request{Method: http.MethodPost, Path: path, Body: body}, &payload)
	if err != nil {
		return Result{}, fmt.Errorf("auth: %s: %w", strings.TrimPrefix(path, "/auth/"), err)
	}
	user := payload.User
	if user.ID == 0 {
		user.ID = payload.ID
	}
	return Result{User: user, Cookies: responseCookies(header)}, nil
}

// Refresh asks the auth service to rotate the session cookies and returns the
// rotated values.
func (c *Client) Refresh(ctx context.Context) ([]*http.Cookie, error) {
	header, err := c.api.DoRaw(ctx, upstream.Request{Method: http.MethodPost, Path: RefreshPath}, nil)
	if err != nil {
		return nil, fmt.Errorf("auth: refresh: %w", err)
	}
	return responseCookies(header), nil
}

// Logout revokes the session's refresh token.
func (c *Client) Logout(ctx context.Context) error {
	if err := c.api.Post(ctx, LogoutPath, nil, nil); err != nil {
		return fmt.Errorf("auth: logout: %w", err)
	}
	return nil
}

// Self returns the signed-in user.
func (c *Client) Self(ctx context.Context) (domain.User, error) {
	var user domain.User
	if err := c.api.Get(ctx, SelfPath, nil, &user); err != nil {
		return domain.User{}, fmt.Errorf("auth: self: %w", err)
	}
	return user, nil
}

func responseCookies(header http.Header) []*http.Cookie {
	if len(header) == 0 {
		return nil
	}
	return (&http.Response{Header: header}).Cookies()
}
