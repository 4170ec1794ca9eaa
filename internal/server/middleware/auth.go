package middleware

import (
	"net/http"
	"strings"

	"serotonyl.ru/waste-rewards/internal/common"
	"serotonyl.ru/waste-rewards/internal/httpx"
	"serotonyl.ru/waste-rewards/internal/session"
)

// Authenticate проверяет токен (Authorization: Bearer или cookie session)
// и кладёт сессию в контекст запроса.
func Authenticate(sessions *session.Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := tokenFromRequest(r)
			if token == "" {
				httpx.Error(w, r, common.ErrUnauthorized)
				return
			}
			s, err := sessions.Parse(token)
			if err != nil {
				httpx.Error(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(session.WithSession(r.Context(), s)))
		})
	}
}

// RequireUser пропускает только пользовательские сессии: у админа нет кошелька.
func RequireUser(next http.Handler) http.Handler {
	return requireRole(session.RoleUser, next)
}

// RequireAdmin пропускает только админские сессии.
func RequireAdmin(next http.Handler) http.Handler {
	return requireRole(session.RoleAdmin, next)
}

func requireRole(role session.Role, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, ok := session.FromContext(r.Context())
		if !ok {
			httpx.Error(w, r, common.ErrUnauthorized)
			return
		}
		if s.Role != role {
			httpx.Error(w, r, common.ErrForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func tokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	if c, err := r.Cookie(httpx.SessionCookie); err == nil {
		return c.Value
	}
	return ""
}
