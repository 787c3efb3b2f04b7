package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"stratodrive/internal/auth"
	"stratodrive/internal/domain"
	"stratodrive/internal/service"
)

type TransferHandler struct {
	transferService *service.TransferService
}

func NewTransferHandler(transferService *service.TransferService) *TransferHandler {
	return &TransferHandler{transferService: transferService}
}

// transferRequest представляет общий JSON перемещения/копирования/удаления
type transferRequest struct {
	TargetFolderID *int64  `json:"targetFolderId"`
	FolderIDs      []int64 `json:"folderIds"`
	FileIDs        []int64 `json:"fileIds"`
	Overwrite      *bool   `json:"overwrite"`
	SkipIfExist    *bool   `json:"skipIfExist"`
}

// toDomain переводит пару флагов в политику конфликтов; оба флага
// разом: противоречие, отклоняется до любой работы
func (req *transferRequest) toDomain() (domain.TransferRequest, error) {
	overwrite := req.Overwrite != nil && *req.Overwrite
	skip := req.SkipIfExist != nil && *req.SkipIfExist
	if overwrite && skip {
		return domain.TransferRequest{}, service.ErrConflictingPolicy
	}

	policy := domain.PolicyRename
	if overwrite {
		policy = domain.PolicyOverwrite
	}
	if skip {
		policy = domain.PolicySkip
	}

	return domain.TransferRequest{
		TargetFolderID: req.TargetFolderID,
		FolderIDs:      req.FolderIDs,
		FileIDs:        req.FileIDs,
		Policy:         policy,
	}, nil
}

func (h *TransferHandler) Move(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, "Move", h.transferService.Move)
}

func (h *TransferHandler) Copy(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, "Copy", h.transferService.Copy)
}

func (h *TransferHandler) Delete(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, "Delete", h.transferService.Delete)
}

type transferOp func(ctx context.Context, ownerID string, req domain.TransferRequest) (*domain.TransferResult, error)

func (h *TransferHandler) run(w http.ResponseWriter, r *http.Request, name string, op transferOp) {
	ownerID, err := auth.ResolveOwner(r)
	if err != nil {
		writeAuthError(w, err)
		return
	}

	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	domainReq, err := req.toDomain()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := op(r.Context(), ownerID, domainReq)
	if err != nil {
		log.Printf("[TransferHandler] %s failed for owner %s: %v", name, ownerID, err)
		writeTransferError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

func writeAuthError(w http.ResponseWriter, err error) {
	if errors.Is(err, auth.ErrForbidden) {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}
	http.Error(w, "Unauthorized", http.StatusUnauthorized)
}

func writeTransferError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidRequest),
		errors.Is(err, service.ErrConflictingPolicy),
		errors.Is(err, service.ErrCyclicMove):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, service.ErrNotFound),
		errors.Is(err, service.ErrAccessDenied):
		http.Error(w, "Item not found", http.StatusNotFound)
	case errors.Is(err, service.ErrNameTaken),
		errors.Is(err, service.ErrNameResolutionExhausted):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, domain.ErrQuotaExceeded):
		http.Error(w, err.Error(), http.StatusInsufficientStorage)
	case errors.Is(err, domain.ErrOwnerExpired):
		http.Error(w, err.Error(), http.StatusForbidden)
	default:
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}
