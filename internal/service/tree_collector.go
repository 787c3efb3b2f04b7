package service

import (
	"context"
	"fmt"

	"stratodrive/internal/domain"
)

// TreeCollector обходит поддерево владельца в ширину. Явная очередь
// вместо рекурсии: глубина дерева не ограничена стеком.
type TreeCollector struct {
	folders FolderCatalog
	files   FileCatalog
}

func NewTreeCollector(folders FolderCatalog, files FileCatalog) *TreeCollector {
	return &TreeCollector{folders: folders, files: files}
}

// Subtree содержит результат обхода: id всех папок поддерева (включая корень)
// и относительный путь каждой от корня; путь корня: его собственное имя
type Subtree struct {
	Root      domain.Folder
	FolderIDs []int64
	RelPath   map[int64]string
}

// CollectSubtree собирает поддерево с корнем root. Фронтир каждого
// уровня запрашивается одним батчем; пустой фронтир завершает обход.
func (c *TreeCollector) CollectSubtree(ctx context.Context, ownerID string, root domain.Folder) (*Subtree, error) {
	result := &Subtree{
		Root:      root,
		FolderIDs: []int64{root.ID},
		RelPath:   map[int64]string{root.ID: root.Name},
	}

	seen := map[int64]struct{}{root.ID: {}}
	frontier := []int64{root.ID}

	for len(frontier) > 0 {
		children, err := c.folders.Children(ctx, ownerID, frontier)
		if err != nil {
			return nil, fmt.Errorf("failed to collect subtree: %w", err)
		}

		next := make([]int64, 0, len(children))
		for _, child := range children {
			if _, ok := seen[child.ID]; ok {
				continue
			}
			seen[child.ID] = struct{}{}

			parentPath := result.RelPath[*child.ParentID]
			result.RelPath[child.ID] = parentPath + "/" + child.Name
			result.FolderIDs = append(result.FolderIDs, child.ID)
			next = append(next, child.ID)
		}
		frontier = next
	}

	return result, nil
}

// CollectFiles возвращает файлы во всех перечисленных папках;
// нарезка по лимиту параметров запроса выполняется в каталоге
func (c *TreeCollector) CollectFiles(ctx context.Context, ownerID string, folderIDs []int64) ([]domain.File, error) {
	if len(folderIDs) == 0 {
		return nil, nil
	}
	files, err := c.files.InFolders(ctx, ownerID, folderIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to collect files: %w", err)
	}
	return files, nil
}
