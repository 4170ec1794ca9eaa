// Package ledger — handlers.go обрабатывает HTTP-запросы:
// баланс, список наград, обмен, история, лидерборд и управление каталогом.
package ledger

import (
	"net/http"

	"serotonyl.ru/waste-rewards/internal/httpx"
)

// Handler обрабатывает HTTP-запросы ledger.
type Handler struct {
	service *Service
}

// NewHandler создаёт новый обработчик ledger.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// GetWallet — GET /api/wallet.
func (h *Handler) GetWallet(w http.ResponseWriter, r *http.Request) {
	sess, ok := httpx.MustSession(w, r)
	if !ok {
		return
	}
	wallet, err := h.service.GetOrCreateBalance(r.Context(), sess.UserID)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, wallet)
}

// ListRewards — GET /api/rewards.
func (h *Handler) ListRewards(w http.ResponseWriter, r *http.Request) {
	sess, ok := httpx.MustSession(w, r)
	if !ok {
		return
	}
	rewards, err := h.service.ListAvailableRewards(r.Context(), sess.UserID)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rewards)
}

type redeemRequest struct {
	Cost int64 `json:"cost"`
}

// Redeem — POST /api/rewards/{id}/redeem. Тело {"cost": N} необязательно.
func (h *Handler) Redeem(w http.ResponseWriter, r *http.Request) {
	sess, ok := httpx.MustSession(w, r)
	if !ok {
		return
	}
	offerID, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.Error(w, r, err)
		return
	}

	var req redeemRequest
	if err := httpx.DecodeOptional(w, r, &req); err != nil {
		httpx.Error(w, r, err)
		return
	}

	wallet, err := h.service.Redeem(r.Context(), sess.UserID, offerID, req.Cost)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, wallet)
}

// RedeemAll — POST /api/wallet/redeem-all.
func (h *Handler) RedeemAll(w http.ResponseWriter, r *http.Request) {
	sess, ok := httpx.MustSession(w, r)
	if !ok {
		return
	}
	wallet, err := h.service.RedeemAll(r.Context(), sess.UserID)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, wallet)
}

// ListTransactions — GET /api/transactions?limit=N.
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	sess, ok := httpx.MustSession(w, r)
	if !ok {
		return
	}
	txs, err := h.service.GetTransactionHistory(r.Context(), sess.UserID, httpx.QueryInt(r, "limit", DefaultHistoryLimit))
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, txs)
}

// Leaderboard — GET /api/leaderboard?limit=N.
func (h *Handler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.Leaderboard(r.Context(), httpx.QueryInt(r, "limit", DefaultLeaderboardLimit))
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entries)
}

// --- Админка каталога ---

// AdminListOffers — GET /api/admin/offers, весь каталог вместе со снятыми позициями.
func (h *Handler) AdminListOffers(w http.ResponseWriter, r *http.Request) {
	offers, err := h.service.ListOffers(r.Context(), true)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, offers)
}

// AdminCreateOffer — POST /api/admin/offers.
func (h *Handler) AdminCreateOffer(w http.ResponseWriter, r *http.Request) {
	var in OfferInput
	if err := httpx.Decode(w, r, &in); err != nil {
		httpx.Error(w, r, err)
		return
	}
	offer, err := h.service.CreateOffer(r.Context(), in)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, offer)
}

// AdminUpdateOffer — PATCH /api/admin/offers/{id}.
func (h *Handler) AdminUpdateOffer(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	var p OfferPatch
	if err := httpx.Decode(w, r, &p); err != nil {
		httpx.Error(w, r, err)
		return
	}
	offer, err := h.service.UpdateOffer(r.Context(), id, p)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, offer)
}

// AdminReconcile — GET /api/admin/reconcile, сверка кошельков с журналом по запросу.
func (h *Handler) AdminReconcile(w http.ResponseWriter, r *http.Request) {
	drifts, err := h.service.Reconcile(r.Context())
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, drifts)
}
