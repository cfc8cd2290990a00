package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

type Kind string

const (
	// KindService 큐 API를 호출하는 lobby server
	KindService Kind = "service"
	// KindAccount 매칭 알림을 받는 게임 클라이언트
	KindAccount Kind = "account"
)

const (
	ScopeQueueWrite = "queue:write"
	ScopeQueueRead  = "queue:read"
)

type Claims struct {
	Kind   Kind     `json:"kind"`
	Scopes []string `json:"scopes,omitempty"`
	jwt.RegisteredClaims
}

// HasScope 서비스 토큰의 scope 확인
func (c *Claims) HasScope(scope string) bool {
	for _, s := range c.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

type JWTManager struct {
	secretKey string
	duration  time.Duration
}

// NewJWTManager JWT 매니저 생성
func NewJWTManager(secretKey string, duration time.Duration) *JWTManager {
	return &JWTManager{
		secretKey: secretKey,
		duration:  duration,
	}
}

// GenerateServiceToken lobby server용 토큰
func (m *JWTManager) GenerateServiceToken(serviceID string, scopes ...string) (string, error) {
	return m.generate(KindService, serviceID, scopes)
}

// GenerateAccountToken 게임 클라이언트용 토큰
func (m *JWTManager) GenerateAccountToken(accountID string) (string, error) {
	return m.generate(KindAccount, accountID, nil)
}

func (m *JWTManager) generate(kind Kind, subject string, scopes []string) (string, error) {
	now := time.Now()
	claims := Claims{
		Kind:   kind,
		Scopes: scopes,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(m.duration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(m.secretKey))
}

// Verify 토큰 검증 및 Claims 추출
func (m *JWTManager) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(
		tokenString,
		&Claims{},
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, ErrInvalidToken
			}
			return []byte(m.secretKey), nil
		},
	)
	if errors.Is(err, jwt.ErrTokenExpired) {
		return nil, ErrExpiredToken
	}
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
