package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/waste-rewards/internal/httpx"
)

// Recoverer перехватывает панику обработчика, логирует стек и отвечает 500.
// В Sentry паника уходит раньше, из sentryhttp (Repanic: true).
func Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			log.WithFields(log.Fields{
				"component": "panic_recovery",
				"panic":     fmt.Sprintf("%v", rec),
				"stack":     string(debug.Stack()),
				"path":      r.URL.Path,
			}).Error("ПАНИКА в обработчике — восстановлено")
			httpx.JSON(w, http.StatusInternalServerError, httpx.ErrorResponse{Error: "internal error, please try again later"})
		}()
		next.ServeHTTP(w, r)
	})
}
