package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	RoleStudent = "student"
	RoleTeacher = "teacher"
	RoleGrader  = "grader"
	RoleAdmin   = "admin"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid token")
	ErrUnknownRole  = errors.New("unknown role")
)

// User is the caller identity carried in a verified token. Accounts live in
// another system; only the id and role are needed here.
type User struct {
	ID   string `json:"id"`
	Role string `json:"role"`
}

// Privileged reports whether the user may act on other students' attempts.
func (u *User) Privileged() bool {
	return u.Role == RoleTeacher || u.Role == RoleAdmin || u.Role == RoleGrader
}

type claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Verifier checks HS256 tokens issued by the account service.
type Verifier struct {
	secret []byte
	now    func() time.Time
}

func NewVerifier(secret string) (*Verifier, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth secret is required")
	}
	return &Verifier{secret: []byte(secret), now: time.Now}, nil
}

func (v *Verifier) Verify(raw string) (*User, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrMissingToken
	}

	var c claims
	_, err := jwt.ParseWithClaims(raw, &c, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(v.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if strings.TrimSpace(c.Subject) == "" {
		return nil, fmt.Errorf("%w: empty subject", ErrInvalidToken)
	}
	if !validRole(c.Role) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRole, c.Role)
	}
	return &User{ID: c.Subject, Role: c.Role}, nil
}

// Issue signs a token for user. Used by the dev token command and tests.
func (v *Verifier) Issue(user User, ttl time.Duration) (string, error) {
	if !validRole(user.Role) {
		return "", ErrUnknownRole
	}
	now := v.now()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Role: user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	signed, err := tok.SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func validRole(role string) bool {
	switch role {
	case RoleStudent, RoleTeacher, RoleGrader, RoleAdmin:
		return true
	default:
		return false
	}
}
