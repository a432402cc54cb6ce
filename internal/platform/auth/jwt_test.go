package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/yungbote/exampaper-backend/internal/domain/identity"
	"github.com/yungbote/exampaper-backend/internal/platform/ctxutil"
	"github.com/yungbote/exampaper-backend/internal/platform/logger"
)

func TestVerifyRoundTrip(t *testing.T) {
	v, err := NewVerifier(logger.Nop(), "s3cret")
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	want := identity.Caller{ID: uuid.New(), Role: identity.RoleFaculty}
	tok, err := Sign("s3cret", want, time.Minute)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	ctx, err := v.SetContextFromToken(context.Background(), tok)
	if err != nil {
		t.Fatalf("SetContextFromToken: %v", err)
	}
	if got := ctxutil.CallerFrom(ctx); got != want {
		t.Fatalf("caller: want=%+v got=%+v", want, got)
	}
}

func TestVerifyRejectsBadTokens(t *testing.T) {
	v, _ := NewVerifier(logger.Nop(), "s3cret")
	caller := identity.Caller{ID: uuid.New(), Role: identity.RoleAdmin}

	wrongKey, _ := Sign("other", caller, time.Minute)
	expired, _ := Sign("s3cret", caller, -time.Hour)
	badSubject, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role:             "admin",
		RegisteredClaims: jwt.RegisteredClaims{Subject: "not-a-uuid"},
	}).SignedString([]byte("s3cret"))

	for name, tok := range map[string]string{"wrong key": wrongKey, "expired": expired, "bad subject": badSubject, "empty": ""} {
		if _, err := v.SetContextFromToken(context.Background(), tok); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("%s: want=ErrInvalidToken got=%v", name, err)
		}
	}
}

func TestUnknownRoleIsCleared(t *testing.T) {
	v, _ := NewVerifier(logger.Nop(), "s3cret")
	tok, _ := Sign("s3cret", identity.Caller{ID: uuid.New(), Role: "student"}, time.Minute)
	got, err := v.Verify(tok)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if got.Role != "" || got.Valid() {
		t.Fatalf("role: want empty got=%q", got.Role)
	}
}

func TestNewVerifierRequiresSecret(t *testing.T) {
	if _, err := NewVerifier(logger.Nop(), " "); err == nil {
		t.Fatalf("expected missing secret error")
	}
}
