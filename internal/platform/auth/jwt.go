package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/yungbote/exampaper-backend/internal/domain/identity"
	"github.com/yungbote/exampaper-backend/internal/platform/ctxutil"
	"github.com/yungbote/exampaper-backend/internal/platform/logger"
)

var ErrInvalidToken = errors.New("invalid or expired token")

// Claims is the token shape issued by the identity provider: the subject is
// the caller id and role is admin or faculty.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Verifier resolves a bearer token to the caller it names.
type Verifier interface {
	SetContextFromToken(ctx context.Context, tokenString string) (context.Context, error)
	Verify(tokenString string) (identity.Caller, error)
}

type hmacVerifier struct {
	log    *logger.Logger
	secret []byte
	leeway time.Duration
}

func NewVerifier(log *logger.Logger, secret string) (Verifier, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, fmt.Errorf("JWT_SECRET_KEY is required")
	}
	return &hmacVerifier{
		log:    log.With("service", "JWTVerifier"),
		secret: []byte(secret),
		leeway: 30 * time.Second,
	}, nil
}

func (v *hmacVerifier) Verify(tokenString string) (identity.Caller, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithLeeway(v.leeway))
	if err != nil {
		return identity.Caller{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return identity.Caller{}, ErrInvalidToken
	}
	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return identity.Caller{}, fmt.Errorf("%w: subject is not a caller id", ErrInvalidToken)
	}
	return identity.Caller{ID: id, Role: identity.ParseRole(claims.Role)}, nil
}

func (v *hmacVerifier) SetContextFromToken(ctx context.Context, tokenString string) (context.Context, error) {
	if tokenString == "" {
		return ctx, ErrInvalidToken
	}
	caller, err := v.Verify(tokenString)
	if err != nil {
		v.log.Debug("Token rejected", "error", err)
		return ctx, err
	}
	return ctxutil.WithRequestData(ctx, &ctxutil.RequestData{TokenString: tokenString, Caller: caller}), nil
}

// Sign issues an HS256 token for caller. It backs local tooling and tests;
// production tokens come from the identity provider.
func Sign(secret string, caller identity.Caller, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: string(caller.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   caller.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
