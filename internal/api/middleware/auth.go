package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	jwtutil "github.com/tdkkdt/EvoS-sub002/pkg/jwt"
)

const (
	ContextSubject = "subject"
	ContextKind    = "tokenKind"
)

// RequireService 서비스 토큰 + scope 검사 (lobby server → 큐 API)
func RequireService(jwtManager *jwtutil.JWTManager, scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := authenticate(c, jwtManager)
		if !ok {
			return
		}

		if claims.Kind != jwtutil.KindService || !claims.HasScope(scope) {
			c.JSON(http.StatusForbidden, gin.H{
				"error": "Insufficient scope",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// RequireAccount 계정 토큰 검사 (게임 클라이언트 → WebSocket)
func RequireAccount(jwtManager *jwtutil.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := authenticate(c, jwtManager)
		if !ok {
			return
		}

		if claims.Kind != jwtutil.KindAccount {
			c.JSON(http.StatusForbidden, gin.H{
				"error": "Account token required",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

func authenticate(c *gin.Context, jwtManager *jwtutil.JWTManager) (*jwtutil.Claims, bool) {
	token := bearerToken(c)
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "Authorization header required",
		})
		c.Abort()
		return nil, false
	}

	claims, err := jwtManager.Verify(token)
	if err != nil {
		message := "Invalid token"
		if errors.Is(err, jwtutil.ErrExpiredToken) {
			message = "Token expired"
		}
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": message,
		})
		c.Abort()
		return nil, false
	}

	c.Set(ContextSubject, claims.Subject)
	c.Set(ContextKind, string(claims.Kind))
	return claims, true
}

// bearerToken "Bearer <token>" 헤더 파싱. 브라우저 WebSocket은 헤더를 못 붙이므로 token 쿼리도 허용
func bearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return c.Query("token")
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}
	return parts[1]
}

// Subject 인증된 토큰의 subject (서비스 ID 또는 계정 ID)
func Subject(c *gin.Context) string {
	return c.GetString(ContextSubject)
}
