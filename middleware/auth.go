package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/parley-forum/parley/models"
	"github.com/parley-forum/parley/utils"
)

const (
	// ContextUserIDKey is the key used to store authenticated user ID in Gin context.
	ContextUserIDKey = "user_id"
	// ContextUsernameKey stores the username inside Gin context.
	ContextUsernameKey = "username"
	// ContextUserKey stores the loaded *models.User inside Gin context.
	ContextUserKey = "current_user"
)

// CurrentUser returns the user loaded by OptionalAuth or AuthRequired,
// or nil for anonymous requests.
func CurrentUser(ctx *gin.Context) *models.User {
	if v, ok := ctx.Get(ContextUserKey); ok {
		if u, ok := v.(*models.User); ok {
			return u
		}
	}
	return nil
}

// OptionalAuth loads the user when a valid bearer token is present and
// lets the request through either way. Visibility decisions downstream
// read the viewer from the context; a broken token is simply anonymous.
func OptionalAuth(db *gorm.DB) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if claims, ok := bearerClaims(ctx); ok {
			var user models.User
			if err := db.First(&user, claims.UserID).Error; err == nil {
				ctx.Set(ContextUserIDKey, user.ID)
				ctx.Set(ContextUsernameKey, user.Username)
				ctx.Set(ContextUserKey, &user)
			}
		}
		ctx.Next()
	}
}

// AuthRequired ensures the request is authenticated via JWT and loads the
// account behind it.
func AuthRequired(db *gorm.DB) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		claims, ok := bearerClaims(ctx)
		if !ok {
			utils.Error(ctx, http.StatusUnauthorized, 40101, "authentication required")
			ctx.Abort()
			return
		}

		var user models.User
		if err := db.First(&user, claims.UserID).Error; err != nil {
			utils.Error(ctx, http.StatusUnauthorized, 40106, "account no longer exists")
			ctx.Abort()
			return
		}

		ctx.Set(ContextUserIDKey, user.ID)
		ctx.Set(ContextUsernameKey, user.Username)
		ctx.Set(ContextUserKey, &user)
		ctx.Next()
	}
}

// ModeratorRequired gates the moderation endpoints. It must run after
// AuthRequired.
func ModeratorRequired() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		user := CurrentUser(ctx)
		if user == nil || !user.CanModerate() {
			utils.Error(ctx, http.StatusForbidden, 40301, "moderator permission required")
			ctx.Abort()
			return
		}
		ctx.Next()
	}
}

// bearerClaims extracts and validates the bearer token, if any.
func bearerClaims(ctx *gin.Context) (*utils.Claims, bool) {
	authHeader := ctx.GetHeader("Authorization")
	if authHeader == "" {
		return nil, false
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return nil, false
	}

	tokenString := strings.TrimSpace(parts[1])
	if tokenString == "" || utils.IsTokenBlacklisted(tokenString) {
		return nil, false
	}

	claims, err := utils.ParseToken(tokenString)
	if err != nil {
		return nil, false
	}
	return claims, true
}
