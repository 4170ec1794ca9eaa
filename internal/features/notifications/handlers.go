// Package notifications — handlers.go обрабатывает HTTP-запросы уведомлений.
package notifications

import (
	"net/http"

	"serotonyl.ru/waste-rewards/internal/httpx"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Unread — GET /api/notifications.
func (h *Handler) Unread(w http.ResponseWriter, r *http.Request) {
	sess, ok := httpx.MustSession(w, r)
	if !ok {
		return
	}
	list, err := h.service.Unread(r.Context(), sess.UserID)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, list)
}

// MarkRead — POST /api/notifications/{id}/read.
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	sess, ok := httpx.MustSession(w, r)
	if !ok {
		return
	}
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	if err := h.service.MarkRead(r.Context(), sess.UserID, id); err != nil {
		httpx.Error(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
