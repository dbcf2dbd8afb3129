package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/foodlens/quotagate/pkg/models"
)

const (
	// AuthUserKey is the gin context key carrying the resolved user ID.
	AuthUserKey = "user_id"
	// AuthTierKey is the gin context key carrying the subscription tier.
	AuthTierKey = "tier"
)

var jwtSecret string

// Claims represents JWT claims. The tier claim is resolved by the
// identity service at token issue time; quota enforcement trusts it.
type Claims struct {
	UserID string `json:"user_id"`
	Tier   string `json:"tier"`
	jwt.RegisteredClaims
}

// SetJWTSecret sets the JWT secret for the middleware
func SetJWTSecret(secret string) {
	jwtSecret = secret
}

// JWTAuth middleware validates JWT tokens and puts the user ID and tier
// into the request context. Tokens without a tier claim default to the
// free tier.
func JWTAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			c.Abort()
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization format"})
			c.Abort()
			return
		}

		token, err := jwt.ParseWithClaims(parts[1], &Claims{}, func(token *jwt.Token) (interface{}, error) {
			return []byte(jwtSecret), nil
		})
		if err != nil || !token.Valid {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			c.Abort()
			return
		}

		claims, ok := token.Claims.(*Claims)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token claims"})
			c.Abort()
			return
		}

		tier := claims.Tier
		if tier == "" {
			tier = string(models.TierFree)
		}

		c.Set(AuthUserKey, claims.UserID)
		c.Set(AuthTierKey, tier)
		c.Next()
	}
}

// GenerateToken generates a JWT token for a user. Used by tests and the
// local development issuer.
func GenerateToken(userID string, tier models.Tier, expiresIn time.Duration) (string, error) {
	claims := Claims{
		UserID: userID,
		Tier:   string(tier),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(jwtSecret))
}

// GetUserID retrieves the user ID from the context
func GetUserID(c *gin.Context) (string, bool) {
	userID, exists := c.Get(AuthUserKey)
	if !exists {
		return "", false
	}

	userIDStr, ok := userID.(string)
	return userIDStr, ok
}

// GetTier retrieves the subscription tier from the context
func GetTier(c *gin.Context) (models.Tier, bool) {
	tier, exists := c.Get(AuthTierKey)
	if !exists {
		return "", false
	}

	tierStr, ok := tier.(string)
	return models.Tier(tierStr), ok
}
