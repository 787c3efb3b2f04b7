package handler

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"stratodrive/internal/auth"
	"stratodrive/internal/service"
)

type FolderHandler struct {
	folderService *service.FolderService
}

func NewFolderHandler(folderService *service.FolderService) *FolderHandler {
	return &FolderHandler{folderService: folderService}
}

type createFolderRequest struct {
	Name     string `json:"name"`
	ParentID *int64 `json:"parent_id,omitempty"`
}

func (h *FolderHandler) CreateFolder(w http.ResponseWriter, r *http.Request) {
	ownerID, err := auth.ResolveOwner(r)
	if err != nil {
		writeAuthError(w, err)
		return
	}

	var req createFolderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	folder, err := h.folderService.Create(r.Context(), ownerID, req.ParentID, req.Name)
	if err != nil {
		log.Printf("[FolderHandler] Failed to create folder for owner %s: %v", ownerID, err)
		writeTransferError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(folder)
}

type renameFolderRequest struct {
	Name string `json:"name"`
}

func (h *FolderHandler) RenameFolder(w http.ResponseWriter, r *http.Request) {
	ownerID, err := auth.ResolveOwner(r)
	if err != nil {
		writeAuthError(w, err)
		return
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid folder ID", http.StatusBadRequest)
		return
	}

	var req renameFolderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	folder, err := h.folderService.Rename(r.Context(), ownerID, id, req.Name)
	if err != nil {
		log.Printf("[FolderHandler] Failed to rename folder %d for owner %s: %v", id, ownerID, err)
		writeTransferError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(folder)
}

// GetFolderContent отдает содержимое папки; без id: корень владельца
func (h *FolderHandler) GetFolderContent(w http.ResponseWriter, r *http.Request) {
	ownerID, err := auth.ResolveOwner(r)
	if err != nil {
		writeAuthError(w, err)
		return
	}

	var folderID *int64
	if idStr := chi.URLParam(r, "id"); idStr != "" {
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			http.Error(w, "Invalid folder ID", http.StatusBadRequest)
			return
		}
		folderID = &id
	}

	content, err := h.folderService.Content(r.Context(), ownerID, folderID)
	if err != nil {
		log.Printf("[FolderHandler] Failed to get folder content for owner %s: %v", ownerID, err)
		writeTransferError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(content)
}

type ensurePathsRequest struct {
	ParentID *int64   `json:"parent_id,omitempty"`
	Paths    []string `json:"paths"`
}

// EnsurePaths пакетно создает вложенные пути, переиспользуя
// существующие папки; ответ: путь -> id
func (h *FolderHandler) EnsurePaths(w http.ResponseWriter, r *http.Request) {
	ownerID, err := auth.ResolveOwner(r)
	if err != nil {
		writeAuthError(w, err)
		return
	}

	var req ensurePathsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	folders, err := h.folderService.EnsurePaths(r.Context(), ownerID, req.ParentID, req.Paths)
	if err != nil {
		log.Printf("[FolderHandler] Failed to ensure paths for owner %s: %v", ownerID, err)
		writeTransferError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(struct {
		Folders map[string]int64 `json:"folders"`
	}{Folders: folders})
}
