// Package admin — handlers.go обрабатывает вход администратора.
package admin

import (
	"net"
	"net/http"
	"time"

	"serotonyl.ru/waste-rewards/internal/httpx"
)

// Handler обрабатывает HTTP-запросы админки.
type Handler struct {
	service      *Service
	secureCookie bool
}

// NewHandler создаёт обработчик.
func NewHandler(service *Service, secureCookie bool) *Handler {
	return &Handler{service: service, secureCookie: secureCookie}
}

type loginRequest struct {
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Login — POST /api/admin/session.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.Decode(w, r, &req); err != nil {
		httpx.Error(w, r, err)
		return
	}
	token, sess, err := h.service.Login(r.Context(), remoteHost(r), req.Password)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.SetSessionCookie(w, token, sess.ExpiresAt, h.secureCookie)
	httpx.JSON(w, http.StatusOK, loginResponse{Token: token, ExpiresAt: sess.ExpiresAt})
}

// remoteHost — адрес клиента без порта. RealIP-middleware уже подставил X-Forwarded-For.
func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
