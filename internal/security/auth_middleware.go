package security

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"deltaframe/pkg/response"
)

// RoleAdmin may change the table catalog
const RoleAdmin = "admin"

const claimsKey = "user_claims"

// AuthMiddleware provides JWT authentication middleware
type AuthMiddleware struct {
	jwtManager *JWTManager
}

// NewAuthMiddleware creates a new AuthMiddleware
func NewAuthMiddleware(jwtManager *JWTManager) *AuthMiddleware {
	return &AuthMiddleware{
		jwtManager: jwtManager,
	}
}

// RequireAuth creates a middleware that requires authentication
func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.UnauthorizedResponse(
				"Authorization header is required",
				getCorrelationID(c),
			))
			return
		}

		token, err := am.jwtManager.ExtractTokenFromHeader(authHeader)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.UnauthorizedResponse(
				err.Error(),
				getCorrelationID(c),
			))
			return
		}

		claims, err := am.jwtManager.ValidateToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.UnauthorizedResponse(
				"Invalid or expired token",
				getCorrelationID(c),
			))
			return
		}

		c.Set(claimsKey, claims)
		c.Set("user_id", claims.UserID)
		c.Set("username", claims.Username)

		c.Next()
	}
}

// RequireRole creates a middleware that requires a specific role. It
// must run after RequireAuth.
func (am *AuthMiddleware) RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := GetUserClaims(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.UnauthorizedResponse(
				"User claims not found",
				getCorrelationID(c),
			))
			return
		}

		if !claims.HasRole(role) {
			c.AbortWithStatusJSON(http.StatusForbidden, response.ForbiddenResponse(
				"Insufficient permissions",
				getCorrelationID(c),
			))
			return
		}

		c.Next()
	}
}

// GetUserClaims extracts user claims from context
func GetUserClaims(c *gin.Context) (*Claims, bool) {
	claims, exists := c.Get(claimsKey)
	if !exists {
		return nil, false
	}
	userClaims, ok := claims.(*Claims)
	return userClaims, ok
}

// CanReadTable reports whether the request may read the catalog table.
// Requests without claims are allowed; they only reach handlers when
// authentication is disabled.
func CanReadTable(c *gin.Context, name string) bool {
	claims, ok := GetUserClaims(c)
	if !ok {
		return true
	}
	return claims.CanReadTable(name)
}

// CanReadLocations reports whether the request may resolve raw locations
func CanReadLocations(c *gin.Context) bool {
	claims, ok := GetUserClaims(c)
	if !ok {
		return true
	}
	return claims.CanReadLocations()
}

func getCorrelationID(c *gin.Context) string {
	if correlationID, exists := c.Get("correlation_id"); exists {
		if id, ok := correlationID.(string); ok {
			return id
		}
	}
	return ""
}
