package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-live/internal/config"
)

// ErrTokenInvalid is returned for malformed, expired or wrongly-signed tokens.
var ErrTokenInvalid = errors.New("invalid token")

// ErrSessionSuperseded is returned when a student token's JTI no longer matches
// the active login registered by the identity service (logged in elsewhere,
// or reset by an admin).
var ErrSessionSuperseded = errors.New("student session superseded")

// Role is the actor role the identity service embeds in its tokens.
type Role string

const (
	RoleStudent      Role = "STUDENT"
	RoleCollaborator Role = "COLLABORATOR"
	RoleAdmin        Role = "ADMIN"
)

// IsStaff reports whether the role counts as staff. Moderation and monitoring
// treat all staff roles uniformly.
func (r Role) IsStaff() bool {
	return r == RoleCollaborator || r == RoleAdmin
}

// Claims extends JWT standard claims with the fields the identity service issues.
// This service never mints tokens — it only validates them against the shared secret.
type Claims struct {
	jwt.RegisteredClaims
	Role   Role `json:"role"`
	UserID int  `json:"user_id"`
}

// AuthService validates identity-service JWTs and student login sessions.
type AuthService struct {
	cfg *config.Config
	rdb *redis.Client
}

// NewAuthService creates a new AuthService.
func NewAuthService(cfg *config.Config, rdb *redis.Client) *AuthService {
	return &AuthService{cfg: cfg, rdb: rdb}
}

// ValidateToken parses and verifies a JWT issued by the identity service.
func (s *AuthService) ValidateToken(tokenStr string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.cfg.JWTSecret), nil
	})
	if err != nil || !token.Valid {
		return nil, ErrTokenInvalid
	}

	return claims, nil
}

// ValidateStudentSession checks the token's JTI against the active login the
// identity service registered in Redis. Students are limited to one device.
func (s *AuthService) ValidateStudentSession(ctx context.Context, studentID int, jti string) error {
	active, err := s.rdb.Get(ctx, config.CacheKey.StudentSessionKey(studentID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrSessionSuperseded
		}
		return fmt.Errorf("check login session: %w", err)
	}
	if active != jti {
		return ErrSessionSuperseded
	}
	return nil
}
