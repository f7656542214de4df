package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/fathima-sithara/realtime-client/internal/models"
)

var (
	ErrNoSession    = errors.New("no stored session")
	ErrTokenExpired = errors.New("session token expired")
	ErrInvalidToken = errors.New("invalid session token")
)

// Claims is what the client reads from the access token. The server owns
// the signing key, so the signature is never checked here.
type Claims struct {
	UserID string `json:"user_id,omitempty"`
	Name   string `json:"name,omitempty"`
	Email  string `json:"email,omitempty"`
	Role   string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// SubjectID returns user_id, falling back to the standard sub claim.
func (c *Claims) SubjectID() string {
	if c.UserID != "" {
		return c.UserID
	}
	return c.RegisteredClaims.Subject
}

func (c *Claims) User() models.User {
	return models.User{ID: c.SubjectID(), Name: c.Name, Email: c.Email, Role: c.Role}
}

func ParseClaims(token string) (*Claims, error) {
	return parseClaimsAt(token, time.Now())
}

func parseClaimsAt(token string, now time.Time) (*Claims, error) {
	var c Claims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if c.SubjectID() == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	if c.ExpiresAt != nil && !now.Before(c.ExpiresAt.Time) {
		return nil, ErrTokenExpired
	}
	return &c, nil
}

// Session is the persisted login: the bearer token plus a minimal profile.
type Session struct {
	Token string      `yaml:"token" json:"token"`
	User  models.User `yaml:"user" json:"user"`
}

// NewSession derives the profile from token claims. Fields already set on
// profile win over the claims.
func NewSession(token string, profile models.User) (Session, error) {
	c, err := ParseClaims(token)
	if err != nil {
		return Session{}, err
	}
	u := c.User()
	if profile.ID != "" {
		u.ID = profile.ID
	}
	if profile.Name != "" {
		u.Name = profile.Name
	}
	if profile.Email != "" {
		u.Email = profile.Email
	}
	if profile.Role != "" {
		u.Role = profile.Role
	}
	u.Avatar = profile.Avatar
	return Session{Token: token, User: u}, nil
}

// Valid checks that the stored token is still usable.
func (s Session) Valid() error {
	if s.Token == "" {
		return ErrNoSession
	}
	_, err := ParseClaims(s.Token)
	return err
}
