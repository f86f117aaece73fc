// Package middleware содержит HTTP middleware сервиса star-burger.
package middleware

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strconv"
	"strings"
	"time"
)

type contextKey string

const managerKey contextKey = "manager"

const (
	authCookieName = "manager_token"
	authCookieTTL  = 24 * time.Hour
)

// AuthMiddleware выполняет проверку доступа менеджера по подписанному cookie.
type AuthMiddleware struct {
	secretKey []byte
}

// NewAuthMiddleware создаёт новый экземпляр AuthMiddleware с указанным секретным ключом.
func NewAuthMiddleware(secret string) *AuthMiddleware {
	key := []byte(secret)
	if len(key) == 0 {
		randomKey := make([]byte, 32)
		if _, err := rand.Read(randomKey); err == nil {
			key = randomKey
		} else {
			key = []byte("default-secret-key")
		}
	}

	return &AuthMiddleware{
		secretKey: key,
	}
}

// Middleware проверяет cookie менеджера и помечает запрос в контексте.
func (a *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(authCookieName)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		if !a.parseCookie(cookie.Value) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), managerKey, true)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// SetAuthCookie устанавливает cookie доступа менеджера.
func (a *AuthMiddleware) SetAuthCookie(w http.ResponseWriter) {
	expires := time.Now().Add(authCookieTTL)

	cookie := &http.Cookie{
		Name:     authCookieName,
		Value:    a.signExpiry(expires.Unix()),
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}

	http.SetCookie(w, cookie)
}

func (a *AuthMiddleware) signExpiry(expiresUnix int64) string {
	mac := hmac.New(sha256.New, a.secretKey)
	expStr := strconv.FormatInt(expiresUnix, 10)
	mac.Write([]byte(expStr))
	signature := mac.Sum(nil)
	return expStr + "." + hex.EncodeToString(signature)
}

func (a *AuthMiddleware) parseCookie(cookieValue string) bool {
	parts := strings.Split(cookieValue, ".")
	if len(parts) != 2 {
		return false
	}

	expStr := parts[0]
	signature := parts[1]

	mac := hmac.New(sha256.New, a.secretKey)
	mac.Write([]byte(expStr))
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return false
	}

	expiresUnix, err := strconv.ParseInt(expStr, 10, 64)
	if err != nil {
		return false
	}

	return time.Now().Unix() < expiresUnix
}

// IsManagerRequest сообщает, прошёл ли запрос проверку доступа менеджера.
func IsManagerRequest(ctx context.Context) bool {
	ok, _ := ctx.Value(managerKey).(bool)
	return ok
}
