// Package httpx содержит общие помощники HTTP-обработчиков:
// JSON-ответы, разбор тела и параметров, маппинг доменных ошибок на статусы.
package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/waste-rewards/internal/common"
	"serotonyl.ru/waste-rewards/internal/session"
)

// MaxBodyBytes — лимит тела запроса (фото в base64 укладываются с запасом).
const MaxBodyBytes = 8 << 20

// SessionCookie — имя cookie с сессионным токеном.
const SessionCookie = "session"

var errEmptyBody = common.Invalid("request body is empty")

// ErrorResponse — тело ответа при ошибке.
type ErrorResponse struct {
	Error string `json:"error"`
}

// JSON пишет v как JSON с заданным статусом.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Warn("Ошибка записи JSON-ответа")
	}
}

// Decode читает JSON-тело запроса в v.
func Decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return common.Invalid(fmt.Sprintf("malformed request body: %v", err))
	}
	return nil
}

// DecodeOptional — как Decode, но пустое тело не ошибка: v остаётся нулевым.
// Наличие тела определяется чтением, а не по ContentLength (chunked-запросы его не передают).
func DecodeOptional(w http.ResponseWriter, r *http.Request, v any) error {
	if r.Body == nil || r.Body == http.NoBody {
		return nil
	}
	err := Decode(w, r, v)
	if errors.Is(err, errEmptyBody) {
		return nil
	}
	return err
}

// SetSessionCookie кладёт токен в HttpOnly-cookie до момента его истечения.
func SetSessionCookie(w http.ResponseWriter, token string, expires time.Time, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// PathID читает положительный int64 из параметра маршрута chi.
func PathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, common.Invalid(name + " must be a positive integer")
	}
	return id, nil
}

// QueryInt читает целый query-параметр, при отсутствии или мусоре — def.
func QueryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

// MustSession достаёт сессию, положенную auth-middleware.
// Без сессии обработчик под auth-группой не вызывается, так что false — это ошибка маршрутизации.
func MustSession(w http.ResponseWriter, r *http.Request) (session.Session, bool) {
	s, ok := session.FromContext(r.Context())
	if !ok {
		Error(w, r, common.ErrUnauthorized)
		return session.Session{}, false
	}
	return s, true
}

// StatusFor возвращает HTTP-статус для ошибки по её месту в таксономии.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, common.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, common.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, common.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, common.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, common.ErrTooManyAttempts):
		return http.StatusTooManyRequests
	case errors.Is(err, common.ErrPrecondition):
		return http.StatusConflict
	case errors.Is(err, common.ErrUpstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Error пишет ответ с ошибкой.
// Ошибки 4xx отдаются пользователю текстом доменной ошибки; 5xx логируются,
// уходят в Sentry и отдаются общим сообщением.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)

	if status >= http.StatusInternalServerError {
		log.WithFields(log.Fields{
			"request_id": middleware.GetReqID(r.Context()),
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     status,
		}).WithError(err).Error("Ошибка обработки запроса")

		if hub := sentry.GetHubFromContext(r.Context()); hub != nil {
			hub.CaptureException(err)
		}

		msg := "internal error, please try again later"
		if status == http.StatusBadGateway {
			msg = "an upstream service failed, please try again later"
		}
		JSON(w, status, ErrorResponse{Error: msg})
		return
	}

	var de *common.Error
	msg := http.StatusText(status)
	if errors.As(err, &de) {
		msg = de.Error()
	} else if errors.Is(err, common.ErrUnauthorized) {
		msg = "unauthorized"
	}
	JSON(w, status, ErrorResponse{Error: msg})
}
