package auth

import (
	"errors"
	"fmt"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Role names carried in access tokens.
const (
	RoleStudent = "student"
	RoleTeacher = "teacher"
	RoleAdmin   = "admin"
	// RoleSystem is used by background jobs and event consumers, never issued in tokens.
	RoleSystem = "system"
)

// Actor identifies who performs an operation. Every service call receives one explicitly.
type Actor struct {
	ID   uuid.UUID
	Role string
}

// SystemActor is the actor used by jobs and consumers.
func SystemActor() Actor { return Actor{ID: uuid.Nil, Role: RoleSystem} }

func (a Actor) IsAdmin() bool        { return a.Role == RoleAdmin }
func (a Actor) IsSystem() bool       { return a.Role == RoleSystem }
func (a Actor) String() string       { return a.Role + ":" + a.ID.String() }
func (a Actor) Is(id uuid.UUID) bool { return a.ID == id }

// Claims are the JWT claims issued by the identity service.
type Claims struct {
	Sub   string `json:"sub"`
	Role  string `json:"role"`
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Actor converts validated claims into an Actor.
func (c *Claims) Actor() (Actor, error) {
	id, err := uuid.Parse(c.Sub)
	if err != nil {
		return Actor{}, fmt.Errorf("invalid subject: %w", err)
	}
	switch c.Role {
	case RoleStudent, RoleTeacher, RoleAdmin:
	default:
		return Actor{}, fmt.Errorf("unknown role %q", c.Role)
	}
	return Actor{ID: id, Role: c.Role}, nil
}

// JWTManager signs and validates HS256 access tokens.
type JWTManager struct {
	secret          []byte
	accessTokenTTL  time.Duration
	refreshTokenTTL time.Duration
}

// NewJWTManager creates a new JWT manager.
func NewJWTManager(secret string, accessTokenTTL, refreshTokenTTL time.Duration) *JWTManager {
	return &JWTManager{
		secret:          []byte(secret),
		accessTokenTTL:  accessTokenTTL,
		refreshTokenTTL: refreshTokenTTL,
	}
}

// GenerateAccessToken issues a token for the given user. Used by tests and local tooling.
func (m *JWTManager) GenerateAccessToken(userID uuid.UUID, role, email string) (string, error) {
	now := time.Now()
	claims := Claims{
		Sub:   userID.String(),
		Role:  role,
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.accessTokenTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// ValidateToken parses a token and returns its claims.
func (m *JWTManager) ValidateToken(tokenStr string) (*Claims, error) {
	t, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, err
	}
	c, ok := t.Claims.(*Claims)
	if !ok || !t.Valid {
		return nil, errors.New("invalid token")
	}
	return c, nil
}
