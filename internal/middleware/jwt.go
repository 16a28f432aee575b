package middleware

import (
	"errors"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"qrtrack/internal/apperr"
	"qrtrack/internal/logging"
	"qrtrack/internal/types"
	"qrtrack/models"
)

const (
	ContextUserID = "userId"
	ContextRole   = "role"
)

type Claims struct {
	UserID uint   `json:"userId"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// JWT authenticates HS256 bearer tokens and stores the caller's id and role in the
// gin context. With an empty secret every request is rejected.
func JWT(secret, issuer string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			types.Fail(c, apperr.New(apperr.CodeUnauthorized, "authentication is not configured"))
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			types.Fail(c, apperr.New(apperr.CodeUnauthorized, "missing bearer token"))
			return
		}
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			types.Fail(c, apperr.New(apperr.CodeUnauthorized, "malformed authorization header"))
			return
		}

		claims, err := ParseToken(parts[1], secret, issuer)
		if err != nil {
			logging.Ctx(c.Request.Context()).Debug().Err(err).Msg("Rejected bearer token")
			types.Fail(c, apperr.New(apperr.CodeUnauthorized, "invalid or expired token"))
			return
		}

		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextRole, claims.Role)
		c.Next()
	}
}

func ParseToken(tokenString, secret, issuer string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.UserID == 0 || (claims.Role != models.RoleUser && claims.Role != models.RoleAdmin) {
		return nil, errors.New("token is missing user id or role")
	}
	return claims, nil
}

// GenerateToken signs a token for userID with the given role.
func GenerateToken(secret, issuer string, userID uint, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// UserID returns the authenticated caller, or 0.
func UserID(c *gin.Context) uint {
	return c.GetUint(ContextUserID)
}

func Role(c *gin.Context) string {
	return c.GetString(ContextRole)
}

func IsAdmin(c *gin.Context) bool {
	return Role(c) == models.RoleAdmin
}
