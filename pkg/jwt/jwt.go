package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenTTL is how long a room session token stays valid.
const TokenTTL = 24 * time.Hour

// Claims identifies a player inside one room.
type Claims struct {
	Nickname string
	Room     string
}

// GenerateToken creates a new JWT binding a nickname to a room.
func GenerateToken(secret, nickname, room string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":  nickname,
		"room": room,
		"exp":  now.Add(TokenTTL).Unix(),
		"iat":  now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	return token.SignedString([]byte(secret))
}

// ParseToken validates a token signed by GenerateToken.
func ParseToken(secret, tokenString string) (Claims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return Claims{}, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return Claims{}, errors.New("invalid token")
	}
	nickname, _ := claims["sub"].(string)
	room, _ := claims["room"].(string)
	if nickname == "" || room == "" {
		return Claims{}, errors.New("token is missing sub or room")
	}
	return Claims{Nickname: nickname, Room: room}, nil
}
