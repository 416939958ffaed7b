package http

import (
	"context"
	"crypto/hmac"
	"net/http"
)

type ownerKey struct{}

// SessionCookie имя куки с токеном сессии.
const SessionCookie = "session"

// SessionAuthMiddleware сверяет куку сессии с настроенным токеном и
// кладёт владельца в контекст запроса. Пустой токен в конфиге закрывает
// все защищённые маршруты.
func SessionAuthMiddleware(token string, ownerID int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				http.Error(w, "сессия не настроена", http.StatusUnauthorized)
				return
			}
			cookie, err := r.Cookie(SessionCookie)
			if err != nil || cookie.Value == "" {
				http.Error(w, "нет куки сессии", http.StatusUnauthorized)
				return
			}
			if !hmac.Equal([]byte(cookie.Value), []byte(token)) {
				http.Error(w, "сессия недействительна", http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), ownerKey{}, ownerID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OwnerFromContext возвращает владельца, положенного middleware.
func OwnerFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(ownerKey{}).(int64)
	return id, ok
}
