package token

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// RoleType service token role
type RoleType string

const (
	// RoleAdmin 可以呼叫 debug 與 metadata 維護
	RoleAdmin RoleType = "admin"
	// RoleService 上游服務，送轉碼與查詢狀態
	RoleService RoleType = "service"
)

// ErrInvalidToken token 格式、簽章或 claims 錯誤
var ErrInvalidToken = errors.New("invalid token")

// Claims structure for custom claims in JWT
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Signer HS256 簽發與驗證
type Signer struct {
	secret     []byte
	issuer     string
	expiration time.Duration
}

// NewSigner issuer 為空時不檢查 iss
func NewSigner(secret, issuer string, expiration time.Duration) *Signer {
	if expiration <= 0 {
		expiration = 60 * time.Minute
	}
	return &Signer{secret: []byte(secret), issuer: issuer, expiration: expiration}
}

// GenerateJWT generates a JWT token
func (s *Signer) GenerateJWT(subject string, role RoleType) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiration)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// ParseJWT parses a JWT and extracts the Claims
func (s *Signer) ParseJWT(tokenStr string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	}, opts...)
	if err != nil {
		return nil, errors.Join(ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// BearerToken 取出 "Bearer xxx" 的 token
func BearerToken(header string) (string, error) {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", errors.New("invalid or missing bearer token")
	}
	return strings.TrimSpace(header[len(prefix):]), nil
}
