package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"stratodrive/internal/domain"
	"stratodrive/internal/repository"
)

// FolderService реализует прямые операции над папками без координации деревьев:
// создание, переименование, листинг, пакетное создание путей
type FolderService struct {
	folders FolderCatalog
	files   FileCatalog
	tx      TxManager
}

func NewFolderService(folders FolderCatalog, files FileCatalog, tx TxManager) *FolderService {
	return &FolderService{folders: folders, files: files, tx: tx}
}

// Create создает папку; занятое имя получает суффикс " (n)", гонка на
// вставке закрывается ограниченным повтором
func (s *FolderService) Create(ctx context.Context, ownerID string, parentID *int64, name string) (*domain.Folder, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.Contains(name, "/") {
		return nil, fmt.Errorf("%w: invalid folder name", ErrInvalidRequest)
	}
	if parentID != nil {
		parent, err := s.folders.GetByID(ctx, *parentID)
		if err != nil {
			if errors.Is(err, repository.ErrFolderNotFound) {
				return nil, ErrNotFound
			}
			return nil, err
		}
		if parent.OwnerID != ownerID {
			return nil, ErrNotFound
		}
	}

	siblings, err := s.folders.NamesIn(ctx, ownerID, parentID)
	if err != nil {
		return nil, err
	}
	taken := make(map[string]struct{}, len(siblings))
	for n := range siblings {
		taken[n] = struct{}{}
	}

	scope, err := s.tx.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer scope.Rollback()

	candidate := ResolveFolderName(name, taken)
	for attempt := 0; attempt < maxNameRetries; attempt++ {
		folder := &domain.Folder{OwnerID: ownerID, ParentID: parentID, Name: candidate}
		err := scope.WithSavepoint(ctx, func() error {
			return s.folders.Create(ctx, scope.Q(), folder)
		})
		if err == nil {
			if err := scope.Commit(); err != nil {
				return nil, fmt.Errorf("failed to commit folder create: %w", err)
			}
			return folder, nil
		}
		if !repository.IsUniqueViolation(err) {
			return nil, err
		}
		taken[candidate] = struct{}{}
		candidate = ResolveFolderName(name, taken)
	}
	return nil, ErrNameResolutionExhausted
}

// Rename переименовывает папку; конфликт с соседом дает ошибку, а не
// автоподбор: пользователь явно выбрал имя
func (s *FolderService) Rename(ctx context.Context, ownerID string, id int64, newName string) (*domain.Folder, error) {
	newName = strings.TrimSpace(newName)
	if newName == "" || strings.Contains(newName, "/") {
		return nil, fmt.Errorf("%w: invalid folder name", ErrInvalidRequest)
	}

	folder, err := s.folders.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrFolderNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if folder.OwnerID != ownerID {
		return nil, ErrNotFound
	}
	if folder.Name == newName {
		return folder, nil
	}

	siblings, err := s.folders.NamesIn(ctx, ownerID, folder.ParentID)
	if err != nil {
		return nil, err
	}
	if takenBy, ok := siblings[newName]; ok && takenBy != id {
		return nil, ErrNameTaken
	}

	scope, err := s.tx.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer scope.Rollback()

	if err := s.folders.Rename(ctx, scope.Q(), ownerID, id, newName); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, ErrNameTaken
		}
		return nil, err
	}
	if err := scope.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit folder rename: %w", err)
	}

	folder.Name = newName
	return folder, nil
}

// Content возвращает содержимое папки: подпапки и файлы одного уровня.
// folderID == nil: корень владельца.
func (s *FolderService) Content(ctx context.Context, ownerID string, folderID *int64) (*domain.FolderContent, error) {
	content := &domain.FolderContent{}
	if folderID != nil {
		folder, err := s.folders.GetByID(ctx, *folderID)
		if err != nil {
			if errors.Is(err, repository.ErrFolderNotFound) {
				return nil, ErrNotFound
			}
			return nil, err
		}
		if folder.OwnerID != ownerID {
			return nil, ErrNotFound
		}
		content.Folder = *folder
	}

	subfolders, err := s.folders.ChildrenOf(ctx, ownerID, folderID)
	if err != nil {
		return nil, err
	}
	files, err := s.files.InFolder(ctx, ownerID, folderID)
	if err != nil {
		return nil, err
	}

	content.Folders = subfolders
	content.Files = files
	return content, nil
}

// EnsurePaths пакетно материализует относительные пути под родителем,
// переиспользуя существующие папки по имени; возвращает путь -> id
func (s *FolderService) EnsurePaths(ctx context.Context, ownerID string, parentID *int64, paths []string) (map[string]int64, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: no paths given", ErrInvalidRequest)
	}
	if parentID != nil {
		parent, err := s.folders.GetByID(ctx, *parentID)
		if err != nil {
			if errors.Is(err, repository.ErrFolderNotFound) {
				return nil, ErrNotFound
			}
			return nil, err
		}
		if parent.OwnerID != ownerID {
			return nil, ErrNotFound
		}
	}

	plan := newTransferPlan(parentID)
	for _, p := range paths {
		p = strings.Trim(strings.TrimSpace(p), "/")
		if p == "" {
			return nil, fmt.Errorf("%w: empty path", ErrInvalidRequest)
		}
		plan.addDir(p)
	}

	scope, err := s.tx.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer scope.Rollback()

	if err := ensurePaths(ctx, scope, s.folders, ownerID, plan); err != nil {
		return nil, err
	}
	if err := scope.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit ensured paths: %w", err)
	}

	// Промежуточные сегменты тоже попадают в ответ
	result := make(map[string]int64, len(plan.dirIDs))
	for p, id := range plan.dirIDs {
		if p == "" {
			continue
		}
		result[p] = *id
	}
	return result, nil
}
