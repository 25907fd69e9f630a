package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid or expired token")

const issuer = "terraclaim"

// Access tokens are short so a displaced or banned player loses API access
// quickly; refresh tokens span a play week.
const (
	accessTTL  = 15 * time.Minute
	refreshTTL = 7 * 24 * time.Hour
)

const (
	typeAccess  = "access"
	typeRefresh = "refresh"
)

// Claims is the terraclaim JWT payload. TokenType keeps refresh tokens out
// of the API and access tokens out of the refresh endpoint.
type Claims struct {
	UserID    string `json:"user_id"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// JWTManager handles token creation and validation.
type JWTManager struct {
	secret []byte
}

// NewJWTManager creates a JWTManager with the given signing secret.
func NewJWTManager(secret string) *JWTManager {
	return &JWTManager{secret: []byte(secret)}
}

func (m *JWTManager) sign(userID, tokenType string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID:    userID,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// GenerateAccessToken creates a short-lived access token for the given user.
func (m *JWTManager) GenerateAccessToken(userID string) (string, error) {
	return m.sign(userID, typeAccess, accessTTL)
}

// GenerateRefreshToken creates a long-lived refresh token.
func (m *JWTManager) GenerateRefreshToken(userID string) (string, error) {
	return m.sign(userID, typeRefresh, refreshTTL)
}

func (m *JWTManager) parse(tokenStr, wantType string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return m.secret, nil
	}, jwt.WithIssuer(issuer))
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.TokenType != wantType {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// ValidateToken validates an access token and returns its claims. Refresh
// tokens are rejected here.
func (m *JWTManager) ValidateToken(tokenStr string) (*Claims, error) {
	return m.parse(tokenStr, typeAccess)
}

// ValidateRefresh validates a refresh token. Access tokens are rejected so a
// leaked short-lived token cannot mint new pairs.
func (m *JWTManager) ValidateRefresh(tokenStr string) (*Claims, error) {
	return m.parse(tokenStr, typeRefresh)
}

// TokenPair holds an access and refresh token.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"` // seconds
}

// GenerateTokenPair creates both tokens for a user.
func (m *JWTManager) GenerateTokenPair(userID string) (*TokenPair, error) {
	access, err := m.GenerateAccessToken(userID)
	if err != nil {
		return nil, err
	}
	refresh, err := m.GenerateRefreshToken(userID)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int(accessTTL.Seconds()),
	}, nil
}
