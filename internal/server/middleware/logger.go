package middleware

import (
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/waste-rewards/internal/session"
)

// RequestLogger логирует каждый запрос.
// Записывает: request_id, метод, путь, статус, длительность и user_id (если есть сессия).
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		fields := log.Fields{
			"request_id": chimw.GetReqID(r.Context()),
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"duration":   time.Since(start).String(),
		}
		if s, ok := session.FromContext(r.Context()); ok {
			fields["user_id"] = s.UserID
			fields["role"] = s.Role
		}

		entry := log.WithFields(fields)
		switch {
		case ww.Status() >= http.StatusInternalServerError:
			entry.Warn("Запрос завершился ошибкой")
		default:
			entry.Debug("Запрос обработан")
		}
	})
}
