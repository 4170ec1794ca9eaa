// Package reports — handlers.go обрабатывает HTTP-запросы отчётов и задач сборщиков.
package reports

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

// Create — POST /api/reports.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	sess, ok := httpx.MustSession(w, r)
	if !ok {
		return
	}
	var in NewReport
	if err := httpx.Decode(w, r, &in); err != nil {
		httpx.Error(w, r, err)
		return
	}
	res, err := h.service.CreateReport(r.Context(), sess.UserID, in)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, res)
}

// Recent — GET /api/reports/recent?limit=N.
func (h *Handler) Recent(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.RecentReports(r.Context(), httpx.QueryInt(r, "limit", DefaultRecentLimit))
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, list)
}

// ListTasks — GET /api/tasks?search=&page=.
func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	page, err := h.service.ListTasks(r.Context(), r.URL.Query().Get("search"), httpx.QueryInt(r, "page", 1))
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, page)
}

// Claim — POST /api/tasks/{id}/claim.
func (h *Handler) Claim(w http.ResponseWriter, r *http.Request) {
	sess, ok := httpx.MustSession(w, r)
	if !ok {
		return
	}
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	rep, err := h.service.Claim(r.Context(), sess.UserID, id)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rep)
}

// Complete — POST /api/tasks/{id}/complete.
func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	sess, ok := httpx.MustSession(w, r)
	if !ok {
		return
	}
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	rep, err := h.service.Complete(r.Context(), sess.UserID, id)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rep)
}

type verifyRequest struct {
	Image string `json:"image"`
}

// Verify — POST /api/tasks/{id}/verify с {"image": "data:image/jpeg;base64,..."}.
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	sess, ok := httpx.MustSession(w, r)
	if !ok {
		return
	}
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	var req verifyRequest
	if err := httpx.Decode(w, r, &req); err != nil {
		httpx.Error(w, r, err)
		return
	}
	out, err := h.service.VerifyCollection(r.Context(), sess.UserID, id, req.Image)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

// Collections — GET /api/collections.
func (h *Handler) Collections(w http.ResponseWriter, r *http.Request) {
	sess, ok := httpx.MustSession(w, r)
	if !ok {
		return
	}
	list, err := h.service.CollectedByCollector(r.Context(), sess.UserID)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, list)
}
