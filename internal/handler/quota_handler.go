package handler

import (
	"encoding/json"
	"log"
	"net/http"

	"stratodrive/internal/auth"
	"stratodrive/internal/service"
)

type QuotaHandler struct {
	quotaService *service.QuotaService
}

func NewQuotaHandler(quotaService *service.QuotaService) *QuotaHandler {
	return &QuotaHandler{quotaService: quotaService}
}

func (h *QuotaHandler) GetQuotaInfo(w http.ResponseWriter, r *http.Request) {
	ownerID, err := auth.ResolveOwner(r)
	if err != nil {
		writeAuthError(w, err)
		return
	}

	info, err := h.quotaService.Info(r.Context(), ownerID)
	if err != nil {
		log.Printf("[QuotaHandler] Failed to get quota info for owner %s: %v", ownerID, err)
		http.Error(w, "Failed to get quota info", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(info)
}

// Reconcile принудительно сверяет счетчик владельца с каталогом
func (h *QuotaHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	ownerID, err := auth.ResolveOwner(r)
	if err != nil {
		writeAuthError(w, err)
		return
	}

	if err := h.quotaService.Reconcile(r.Context(), ownerID); err != nil {
		log.Printf("[QuotaHandler] Failed to reconcile quota for owner %s: %v", ownerID, err)
		http.Error(w, "Failed to reconcile quota", http.StatusInternalServerError)
		return
	}

	info, err := h.quotaService.Info(r.Context(), ownerID)
	if err != nil {
		log.Printf("[QuotaHandler] Failed to get quota info for owner %s: %v", ownerID, err)
		http.Error(w, "Failed to get quota info", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(info)
}
