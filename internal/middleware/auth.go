package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"taskgrid/internal/services"
)

const (
	ctxUserID = "auth_user_id"
	ctxClaims = "auth_claims"
)

// JWTAuth validates the Bearer token and stores the caller's identity
// in the request context. The role claim is informational; services
// re-read the live user record for authorization.
func JWTAuth(jwtService *services.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization header must be a bearer token"})
			return
		}

		userID, claims, err := jwtService.ValidateToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}

		c.Set(ctxUserID, userID)
		c.Set(ctxClaims, claims)
		c.Next()
	}
}

// GetUserID returns the authenticated caller's user ID.
func GetUserID(c *gin.Context) primitive.ObjectID {
	if v, ok := c.Get(ctxUserID); ok {
		if id, ok := v.(primitive.ObjectID); ok {
			return id
		}
	}
	return primitive.NilObjectID
}

// GetClaims returns the full token claims.
func GetClaims(c *gin.Context) *services.Claims {
	if v, ok := c.Get(ctxClaims); ok {
		if claims, ok := v.(*services.Claims); ok {
			return claims
		}
	}
	return nil
}
