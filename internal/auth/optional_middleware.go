package auth

import (
	"strings"

	"songquiz/backend/pkg/jwt"

	"github.com/gin-gonic/gin"
)

// Context keys set by OptionalAuthMiddleware.
const (
	NicknameKey = "nickname"
	RoomKey     = "room"
)

// OptionalAuthMiddleware inspects for a room token and sets the nickname and
// room if present and valid, but does not fail if the token is missing or
// invalid.
func OptionalAuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader != "" {
			parts := strings.Split(authHeader, " ")
			if len(parts) == 2 && parts[0] == "Bearer" {
				if claims, err := jwt.ParseToken(secret, parts[1]); err == nil {
					c.Set(NicknameKey, claims.Nickname)
					c.Set(RoomKey, claims.Room)
				}
			}
		}
		c.Next()
	}
}

// Nickname returns the token's nickname when the token was issued for room.
func Nickname(c *gin.Context, room string) (string, bool) {
	if c.GetString(RoomKey) != room {
		return "", false
	}
	nickname := c.GetString(NicknameKey)
	return nickname, nickname != ""
}
