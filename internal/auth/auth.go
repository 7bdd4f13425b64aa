package auth

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"github.com/photocore/phashcore/internal/config"
	"github.com/photocore/phashcore/internal/logger"
)

// Context key для хранения имени пользователя
type contextKey string

const UserKey contextKey = "user"

// GetUser извлекает имя администратора из контекста запроса
func GetUser(r *http.Request) string {
	if user, ok := r.Context().Value(UserKey).(string); ok {
		return user
	}
	return ""
}

// Auth проверяет доступ к административным маршрутам
type Auth struct {
	username     string
	passwordHash []byte
}

// NewAuth создает сервис аутентификации. Пароль хешируется сразу и в памяти не хранится.
// Без пароля административные маршруты закрыты.
func NewAuth(cfg *config.Config) (*Auth, error) {
	a := &Auth{username: cfg.Auth.AdminUsername}
	if cfg.Auth.AdminPassword == "" {
		return a, nil
	}

	hash, err := HashPassword(cfg.Auth.AdminPassword)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	a.passwordHash = hash
	return a, nil
}

// HashPassword хеширует пароль
func HashPassword(password string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
}

// Enabled возвращает true, если задан пароль администратора
func (a *Auth) Enabled() bool {
	return len(a.passwordHash) > 0
}

// Check проверяет пару логин/пароль
func (a *Auth) Check(username, password string) bool {
	if !a.Enabled() {
		return false
	}
	if subtle.ConstantTimeCompare([]byte(username), []byte(a.username)) != 1 {
		return false
	}
	return bcrypt.CompareHashAndPassword(a.passwordHash, []byte(password)) == nil
}

// BasicAuth проверяет HTTP Basic аутентификацию для защищенных маршрутов
func (a *Auth) BasicAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, password, ok := r.BasicAuth()
		if !ok || !a.Check(username, password) {
			if ok {
				logger.Entry(r.Context()).WithField("user", username).Warn("Admin authentication failed")
			}
			w.Header().Set("WWW-Authenticate", `Basic realm="phash admin"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		// Добавляем пользователя в контекст запроса
		ctx := context.WithValue(r.Context(), UserKey, username)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
