package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestAccessTokenRoundTrip(t *testing.T) {
	mgr := NewJWTManager("test-secret-key-123")
	token, err := mgr.GenerateAccessToken("user-42")
	if err != nil {
		t.Fatalf("generate access token: %v", err)
	}

	claims, err := mgr.ValidateToken(token)
	if err != nil {
		t.Fatalf("validate token: %v", err)
	}
	if claims.UserID != "user-42" || claims.Subject != "user-42" {
		t.Errorf("claims = %q/%q, want user-42 for both", claims.UserID, claims.Subject)
	}
	if claims.Issuer != issuer {
		t.Errorf("issuer = %q, want %q", claims.Issuer, issuer)
	}
}

func TestRefreshTokenNotValidAsAccess(t *testing.T) {
	mgr := NewJWTManager("test-secret")
	refresh, err := mgr.GenerateRefreshToken("user-42")
	if err != nil {
		t.Fatalf("generate refresh token: %v", err)
	}

	if _, err := mgr.ValidateToken(refresh); err == nil {
		t.Error("refresh token accepted as access token")
	}
	claims, err := mgr.ValidateRefresh(refresh)
	if err != nil {
		t.Fatalf("validate refresh: %v", err)
	}
	if claims.UserID != "user-42" {
		t.Errorf("user = %q, want user-42", claims.UserID)
	}
}

func TestAccessTokenNotValidAsRefresh(t *testing.T) {
	mgr := NewJWTManager("test-secret")
	access, _ := mgr.GenerateAccessToken("user-42")

	if _, err := mgr.ValidateRefresh(access); err == nil {
		t.Error("access token accepted as refresh token")
	}
}

func TestValidateTokenRejectsForeignIssuer(t *testing.T) {
	mgr := NewJWTManager("test-secret")
	foreign := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		UserID:    "user-42",
		TokenType: typeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "somebody-else",
			Subject:   "user-42",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := foreign.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if _, err := mgr.ValidateToken(signed); err == nil {
		t.Error("token with foreign issuer accepted")
	}
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	mgr := NewJWTManager("test-secret")
	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		UserID:    "user-42",
		TokenType: typeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   "user-42",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	})
	signed, err := expired.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if _, err := mgr.ValidateToken(signed); err == nil {
		t.Error("expired token accepted")
	}
}

func TestValidateTokenRejectsWrongSecret(t *testing.T) {
	token, _ := NewJWTManager("secret-a").GenerateAccessToken("user-42")
	if _, err := NewJWTManager("secret-b").ValidateToken(token); err == nil {
		t.Error("token signed with a different secret accepted")
	}
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	mgr := NewJWTManager("test-secret")
	for _, tok := range []string{"", "not-a-jwt", "a.b.c"} {
		if _, err := mgr.ValidateToken(tok); err == nil {
			t.Errorf("garbage token %q accepted", tok)
		}
	}
}

func TestGenerateTokenPair(t *testing.T) {
	mgr := NewJWTManager("test-secret")
	pair, err := mgr.GenerateTokenPair("user-42")
	if err != nil {
		t.Fatalf("generate pair: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatal("expected both tokens")
	}
	if pair.AccessToken == pair.RefreshToken {
		t.Error("access and refresh token are identical")
	}
	if pair.ExpiresIn != int(accessTTL.Seconds()) {
		t.Errorf("expires_in = %d, want %d", pair.ExpiresIn, int(accessTTL.Seconds()))
	}
}
