// auth/auth.go
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrNoToken      = errors.New("no authorization token")
	ErrInvalidToken = errors.New("invalid authorization token")
	ErrForbidden    = errors.New("forbidden")
)

var secret []byte

func Init(cfg *Config) {
	secret = []byte(cfg.JWTSecret)
}

// Claims представляет полезную нагрузку токена сессии
type Claims struct {
	UserID string `json:"user_id"`
	Admin  bool   `json:"admin"`
	jwt.RegisteredClaims
}

func tokenFromRequest(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	// Браузерные клиенты передают токен в cookie
	if cookie, err := r.Cookie("auth_token"); err == nil {
		return cookie.Value
	}
	return ""
}

// VerifyToken проверяет подпись токена и возвращает его claims
func VerifyToken(r *http.Request) (*Claims, error) {
	tokenString := tokenFromRequest(r)
	if tokenString == "" {
		return nil, ErrNoToken
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.UserID == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// ResolveOwner возвращает эффективного владельца запроса: самого
// вызывающего либо цель имперсонации (заголовок X-Target-User, только
// для админов). Ядро доверяет этому id как уже авторизованному.
func ResolveOwner(r *http.Request) (string, error) {
	claims, err := VerifyToken(r)
	if err != nil {
		return "", err
	}

	target := r.Header.Get("X-Target-User")
	if target == "" || target == claims.UserID {
		return claims.UserID, nil
	}
	if !claims.Admin {
		return "", ErrForbidden
	}
	return target, nil
}
