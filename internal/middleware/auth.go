package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"dedicated/internal/domain"
)

const (
	callerIDKey   = "user_id"
	callerRoleKey = "user_role"
)

// JWTClaims represents the JWT token claims.
type JWTClaims struct {
	UserID string          `json:"user_id"`
	Role   domain.UserRole `json:"role"`
	jwt.RegisteredClaims
}

// IssueToken signs a token for userID. It is used by tooling and tests;
// production tokens come from the identity service sharing the secret.
func IssueToken(secret, userID string, role domain.UserRole, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := JWTClaims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// AuthRequired validates the bearer token and stores the caller in the
// context. Websocket clients may pass the token as ?token= instead.
func AuthRequired(secret string) gin.HandlerFunc {
	keyFunc := func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}

	return func(c *gin.Context) {
		tokenString, err := bearerToken(c)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}

		claims := &JWTClaims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, keyFunc,
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
			jwt.WithExpirationRequired(),
		)
		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}

		if claims.UserID == "" || !validRole(claims.Role) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token claims"})
			return
		}

		c.Set(callerIDKey, claims.UserID)
		c.Set(callerRoleKey, claims.Role)
		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, error) {
	header := c.GetHeader("Authorization")
	if header == "" {
		if token := c.Query("token"); token != "" {
			return token, nil
		}
		return "", errors.New("Authorization header required")
	}

	token := strings.TrimPrefix(header, "Bearer ")
	if token == header || token == "" {
		return "", errors.New("Bearer token required")
	}
	return token, nil
}

func validRole(r domain.UserRole) bool {
	return r == domain.UserRoleUser || r == domain.UserRoleDriver || r == domain.UserRoleAdmin
}

// RequireRole rejects callers whose role is not listed.
func RequireRole(roles ...domain.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := CallerRole(c)
		for _, r := range roles {
			if role == r {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Insufficient permissions"})
	}
}

// CallerID returns the authenticated user's ID.
func CallerID(c *gin.Context) string {
	return c.GetString(callerIDKey)
}

// CallerRole returns the authenticated user's role.
func CallerRole(c *gin.Context) domain.UserRole {
	role, _ := c.Get(callerRoleKey)
	r, _ := role.(domain.UserRole)
	return r
}
