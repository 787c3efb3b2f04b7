package service

import (
	"context"
	"fmt"

	"stratodrive/internal/domain"
)

// Delete удаляет выбранные папки (с поддеревьями) и файлы. Строки
// каталога уходят в одной транзакции; блобы удаляются после фиксации и
// только best-effort: осиротевший объект безвреднее потерянной записи.
func (s *TransferService) Delete(ctx context.Context, ownerID string, req domain.TransferRequest) (*domain.TransferResult, error) {
	folders, looseFiles, err := s.resolveOwned(ctx, ownerID, req.FolderIDs, req.FileIDs)
	if err != nil {
		return nil, err
	}

	folderIDs := make([]int64, 0, len(folders))
	doomed := make(map[int64]domain.File)
	for _, folder := range folders {
		subtree, err := s.collector.CollectSubtree(ctx, ownerID, folder)
		if err != nil {
			return nil, err
		}
		folderIDs = append(folderIDs, subtree.FolderIDs...)

		files, err := s.collector.CollectFiles(ctx, ownerID, subtree.FolderIDs)
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			doomed[f.ID] = f
		}
	}
	// Файл, выбранный явно и лежащий в удаляемой папке, считается один раз
	for _, f := range looseFiles {
		doomed[f.ID] = f
	}

	fileIDs := make([]int64, 0, len(doomed))
	blobKeys := make([]string, 0, len(doomed))
	for id, f := range doomed {
		fileIDs = append(fileIDs, id)
		blobKeys = append(blobKeys, f.ObjectKey)
	}

	scope, err := s.tx.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer scope.Rollback()

	if len(fileIDs) > 0 {
		if err := s.files.Delete(ctx, scope.Q(), ownerID, fileIDs); err != nil {
			return nil, err
		}
	}
	if len(folderIDs) > 0 {
		if err := s.folders.Delete(ctx, scope.Q(), ownerID, folderIDs); err != nil {
			return nil, err
		}
	}
	if err := scope.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit delete: %w", err)
	}

	s.sync.DeleteMany(ctx, blobKeys)
	s.reconcileQuietly(ctx, ownerID)

	return &domain.TransferResult{
		Success: true,
		Deleted: &domain.TransferCounts{Folders: len(folderIDs), Files: len(fileIDs)},
		Message: fmt.Sprintf("deleted %d files and %d folders", len(fileIDs), len(folderIDs)),
	}, nil
}
