package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestGenerateAndValidate(t *testing.T) {
	svc := NewJWTService([]byte("test-secret-key-32-bytes-long!!"), 15*time.Minute)

	token, err := svc.GenerateToken("alice", "Alice Ops")
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}

	claims, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken failed: %v", err)
	}
	if claims.Subject != "alice" {
		t.Errorf("Subject = %q, want alice", claims.Subject)
	}
	if claims.Name != "Alice Ops" {
		t.Errorf("Name = %q", claims.Name)
	}
	if claims.Issuer != Issuer {
		t.Errorf("Issuer = %q", claims.Issuer)
	}
}

func TestValidateRejects(t *testing.T) {
	secret := []byte("test-secret-key-32-bytes-long!!")
	svc := NewJWTService(secret, 15*time.Minute)

	expired := NewJWTService(secret, 15*time.Minute)
	expired.now = func() time.Time { return time.Now().Add(-time.Hour) }
	expiredToken, _ := expired.GenerateToken("alice", "")

	otherKey, _ := NewJWTService([]byte("another-secret-key-32-bytes!!!!"), time.Minute).GenerateToken("alice", "")

	wrongIssuer, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "someone-else",
			Subject:   "alice",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString(secret)

	noneAlg, _ := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Subject:   "alice",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)

	tests := []struct {
		name  string
		token string
	}{
		{"expired", expiredToken},
		{"wrong key", otherKey},
		{"wrong issuer", wrongIssuer},
		{"none algorithm", noneAlg},
		{"garbage", "not.a.token"},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.ValidateToken(tt.token); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestGenerateRequiresSubject(t *testing.T) {
	svc := NewJWTService([]byte("secret"), time.Minute)
	if _, err := svc.GenerateToken("", ""); err == nil || !strings.Contains(err.Error(), "subject") {
		t.Errorf("err = %v", err)
	}
}
