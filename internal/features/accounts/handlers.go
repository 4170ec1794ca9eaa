// Package accounts — handlers.go обрабатывает HTTP-запросы входа и профиля.
package accounts

import (
	"crypto/subtle"
	"net/http"
	"time"

	"serotonyl.ru/waste-rewards/internal/common"
	"serotonyl.ru/waste-rewards/internal/httpx"
	"serotonyl.ru/waste-rewards/internal/session"
)

// ServiceKeyHeader — заголовок, которым фронтенд-сервер подтверждает личность после OAuth.
const ServiceKeyHeader = "X-Service-Key"

// Handler обрабатывает HTTP-запросы пользователей.
type Handler struct {
	service      *Service
	sessions     *session.Manager
	serviceKey   []byte
	secureCookie bool
}

// NewHandler создаёт новый обработчик. secureCookie — ставить флаг Secure на cookie сессии.
func NewHandler(service *Service, sessions *session.Manager, serviceKey string, secureCookie bool) *Handler {
	return &Handler{
		service:      service,
		sessions:     sessions,
		serviceKey:   []byte(serviceKey),
		secureCookie: secureCookie,
	}
}

type signInRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// SessionResponse — ответ на успешный вход.
type SessionResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      *User     `json:"user,omitempty"`
}

// SignIn — POST /api/session.
func (h *Handler) SignIn(w http.ResponseWriter, r *http.Request) {
	key := []byte(r.Header.Get(ServiceKeyHeader))
	if len(h.serviceKey) == 0 || subtle.ConstantTimeCompare(key, h.serviceKey) != 1 {
		httpx.Error(w, r, common.ErrUnauthorized)
		return
	}

	var req signInRequest
	if err := httpx.Decode(w, r, &req); err != nil {
		httpx.Error(w, r, err)
		return
	}

	u, err := h.service.SignIn(r.Context(), req.Email, req.Name)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}

	token, sess, err := h.sessions.Issue(u.ID, session.RoleUser)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.SetSessionCookie(w, token, sess.ExpiresAt, h.secureCookie)
	httpx.JSON(w, http.StatusOK, SessionResponse{Token: token, ExpiresAt: sess.ExpiresAt, User: u})
}

// Me — GET /api/me.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	sess, ok := httpx.MustSession(w, r)
	if !ok {
		return
	}
	u, err := h.service.Get(r.Context(), sess.UserID)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, u)
}

type linkTelegramRequest struct {
	ChatID *int64 `json:"chat_id"`
}

// LinkTelegram — PUT /api/me/telegram. {"chat_id": null} отвязывает чат.
func (h *Handler) LinkTelegram(w http.ResponseWriter, r *http.Request) {
	sess, ok := httpx.MustSession(w, r)
	if !ok {
		return
	}
	var req linkTelegramRequest
	if err := httpx.Decode(w, r, &req); err != nil {
		httpx.Error(w, r, err)
		return
	}
	u, err := h.service.LinkTelegram(r.Context(), sess.UserID, req.ChatID)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, u)
}
