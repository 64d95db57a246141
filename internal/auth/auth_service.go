package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"codelab/internal/common/cache"
	pkgerrors "codelab/pkg/errors"

	"github.com/golang-jwt/jwt/v5"
)

const (
	revokedKeyPrefix = "auth:revoked:"
	tokenTypeAccess  = "access"
)

// Config holds token verification settings.
type Config struct {
	JWTSecret string        `yaml:"jwtSecret"`
	JWTIssuer string        `yaml:"jwtIssuer"`
	AccessTTL time.Duration `yaml:"accessTTL"`
}

type UserInfo struct {
	ID int64
}

// AuthService verifies HS256 access tokens. Revocation is checked in the
// cache when one is configured.
type AuthService struct {
	jwtSecret []byte
	jwtIssuer string
	accessTTL time.Duration
	revoked   cache.Cache
}

func NewAuthService(cfg Config, revoked cache.Cache) *AuthService {
	ttl := cfg.AccessTTL
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &AuthService{
		jwtSecret: []byte(cfg.JWTSecret),
		jwtIssuer: cfg.JWTIssuer,
		accessTTL: ttl,
		revoked:   revoked,
	}
}

type tokenClaims struct {
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// Authenticate returns the user a raw access token belongs to.
func (s *AuthService) Authenticate(ctx context.Context, raw string) (UserInfo, error) {
	if raw == "" {
		return UserInfo{}, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	claims, err := s.parseToken(raw)
	if err != nil {
		return UserInfo{}, err
	}
	userID, err := parseUserID(claims.Subject)
	if err != nil {
		return UserInfo{}, err
	}
	if s.revoked != nil {
		val, err := s.revoked.Get(ctx, revokedKeyPrefix+hashToken(raw))
		if err != nil {
			return UserInfo{}, pkgerrors.Wrap(err, pkgerrors.ServiceUnavailable)
		}
		if val != "" {
			return UserInfo{}, pkgerrors.New(pkgerrors.TokenInvalid)
		}
	}
	return UserInfo{ID: userID}, nil
}

// IssueAccessToken signs an access token for userID.
func (s *AuthService) IssueAccessToken(userID int64, now time.Time) (string, error) {
	if len(s.jwtSecret) == 0 {
		return "", errors.New("jwt secret is not configured")
	}
	claims := tokenClaims{
		TokenType: tokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			Issuer:    s.jwtIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
}

// Revoke rejects raw until it would have expired anyway.
func (s *AuthService) Revoke(ctx context.Context, raw string) error {
	if s.revoked == nil {
		return pkgerrors.New(pkgerrors.ServiceUnavailable).WithMessage("token revocation is not configured")
	}
	claims, err := s.parseToken(raw)
	if err != nil {
		return err
	}
	ttl := s.accessTTL
	if claims.ExpiresAt != nil {
		ttl = time.Until(claims.ExpiresAt.Time)
	}
	if ttl <= 0 {
		return nil
	}
	if err := s.revoked.Set(ctx, revokedKeyPrefix+hashToken(raw), "1", ttl); err != nil {
		return pkgerrors.Wrap(err, pkgerrors.CacheSetFailed)
	}
	return nil
}

func (s *AuthService) parseToken(raw string) (*tokenClaims, error) {
	if len(s.jwtSecret) == 0 {
		return nil, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	parsed, err := jwt.ParseWithClaims(raw, &tokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, pkgerrors.New(pkgerrors.TokenExpired)
		}
		return nil, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	claims, ok := parsed.Claims.(*tokenClaims)
	if !ok || !parsed.Valid {
		return nil, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	if s.jwtIssuer != "" && claims.Issuer != s.jwtIssuer {
		return nil, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	if claims.TokenType != tokenTypeAccess || claims.Subject == "" {
		return nil, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	return claims, nil
}

func parseUserID(subject string) (int64, error) {
	userID, err := strconv.ParseInt(subject, 10, 64)
	if err != nil || userID <= 0 {
		return 0, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	return userID, nil
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
