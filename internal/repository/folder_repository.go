package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"stratodrive/internal/domain"
)

// queryChunkSize ограничивает количество id в одном IN (...): лимит
// параметров запроса у бэкенда
const queryChunkSize = 500

var ErrFolderNotFound = errors.New("folder not found")

type FolderRepository struct {
	db *sqlx.DB
}

func NewFolderRepository(db *sqlx.DB) *FolderRepository {
	return &FolderRepository{db: db}
}

func (r *FolderRepository) GetByID(ctx context.Context, id int64) (*domain.Folder, error) {
	var folder domain.Folder
	err := r.db.GetContext(ctx, &folder,
		`SELECT id, name, owner_id, parent_id, created_at, updated_at
         FROM folders WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrFolderNotFound
		}
		return nil, fmt.Errorf("failed to get folder: %w", err)
	}
	return &folder, nil
}

// Owned возвращает папки владельца по списку id; отсутствующие или чужие
// папки просто не попадают в результат
func (r *FolderRepository) Owned(ctx context.Context, ownerID string, ids []int64) ([]domain.Folder, error) {
	result := make([]domain.Folder, 0, len(ids))
	for start := 0; start < len(ids); start += queryChunkSize {
		end := start + queryChunkSize
		if end > len(ids) {
			end = len(ids)
		}

		query, args, err := sqlx.In(
			`SELECT id, name, owner_id, parent_id, created_at, updated_at
             FROM folders WHERE owner_id = ? AND id IN (?)`,
			ownerID, ids[start:end])
		if err != nil {
			return nil, fmt.Errorf("failed to build query: %w", err)
		}

		var batch []domain.Folder
		if err := r.db.SelectContext(ctx, &batch, r.db.Rebind(query), args...); err != nil {
			return nil, fmt.Errorf("failed to get folders: %w", err)
		}
		result = append(result, batch...)
	}
	return result, nil
}

// Children возвращает всех детей указанных папок: один уровень BFS
func (r *FolderRepository) Children(ctx context.Context, ownerID string, parentIDs []int64) ([]domain.Folder, error) {
	result := make([]domain.Folder, 0)
	for start := 0; start < len(parentIDs); start += queryChunkSize {
		end := start + queryChunkSize
		if end > len(parentIDs) {
			end = len(parentIDs)
		}

		query, args, err := sqlx.In(
			`SELECT id, name, owner_id, parent_id, created_at, updated_at
             FROM folders WHERE owner_id = ? AND parent_id IN (?)`,
			ownerID, parentIDs[start:end])
		if err != nil {
			return nil, fmt.Errorf("failed to build query: %w", err)
		}

		var batch []domain.Folder
		if err := r.db.SelectContext(ctx, &batch, r.db.Rebind(query), args...); err != nil {
			return nil, fmt.Errorf("failed to get child folders: %w", err)
		}
		result = append(result, batch...)
	}
	return result, nil
}

// ChildrenOf возвращает детей одной папки (nil: корень владельца)
func (r *FolderRepository) ChildrenOf(ctx context.Context, ownerID string, parentID *int64) ([]domain.Folder, error) {
	var folders []domain.Folder
	var err error
	if parentID == nil {
		err = r.db.SelectContext(ctx, &folders,
			`SELECT id, name, owner_id, parent_id, created_at, updated_at
             FROM folders WHERE owner_id = $1 AND parent_id IS NULL ORDER BY name`,
			ownerID)
	} else {
		err = r.db.SelectContext(ctx, &folders,
			`SELECT id, name, owner_id, parent_id, created_at, updated_at
             FROM folders WHERE owner_id = $1 AND parent_id = $2 ORDER BY name`,
			ownerID, *parentID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get folders: %w", err)
	}
	return folders, nil
}

// NamesIn возвращает имена папок уровня parentID с их id
func (r *FolderRepository) NamesIn(ctx context.Context, ownerID string, parentID *int64) (map[string]int64, error) {
	type row struct {
		ID   int64  `db:"id"`
		Name string `db:"name"`
	}
	var rows []row
	var err error
	if parentID == nil {
		err = r.db.SelectContext(ctx, &rows,
			`SELECT id, name FROM folders WHERE owner_id = $1 AND parent_id IS NULL`,
			ownerID)
	} else {
		err = r.db.SelectContext(ctx, &rows,
			`SELECT id, name FROM folders WHERE owner_id = $1 AND parent_id = $2`,
			ownerID, *parentID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get folder names: %w", err)
	}

	names := make(map[string]int64, len(rows))
	for _, r := range rows {
		names[r.Name] = r.ID
	}
	return names, nil
}

// ChildByName ищет папку по имени внутри родителя; q: явная сессия,
// чтобы поиск видел строки, созданные внутри текущей транзакции
func (r *FolderRepository) ChildByName(ctx context.Context, q sqlx.ExtContext, ownerID string, parentID *int64, name string) (*domain.Folder, error) {
	var folder domain.Folder
	var err error
	if parentID == nil {
		err = sqlx.GetContext(ctx, q, &folder,
			`SELECT id, name, owner_id, parent_id, created_at, updated_at
             FROM folders WHERE owner_id = $1 AND parent_id IS NULL AND name = $2 LIMIT 1`,
			ownerID, name)
	} else {
		err = sqlx.GetContext(ctx, q, &folder,
			`SELECT id, name, owner_id, parent_id, created_at, updated_at
             FROM folders WHERE owner_id = $1 AND parent_id = $2 AND name = $3 LIMIT 1`,
			ownerID, *parentID, name)
	}
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrFolderNotFound
		}
		return nil, fmt.Errorf("failed to find folder by name: %w", err)
	}
	return &folder, nil
}

func (r *FolderRepository) Create(ctx context.Context, q sqlx.ExtContext, folder *domain.Folder) error {
	err := sqlx.GetContext(ctx, q, folder,
		`INSERT INTO folders (owner_id, parent_id, name)
         VALUES ($1, $2, $3)
         RETURNING id, name, owner_id, parent_id, created_at, updated_at`,
		folder.OwnerID, folder.ParentID, folder.Name)
	if err != nil {
		return fmt.Errorf("failed to create folder: %w", err)
	}
	return nil
}

func (r *FolderRepository) Rename(ctx context.Context, q sqlx.ExtContext, ownerID string, id int64, newName string) error {
	result, err := q.ExecContext(ctx,
		`UPDATE folders SET name = $1, updated_at = CURRENT_TIMESTAMP
         WHERE id = $2 AND owner_id = $3`,
		newName, id, ownerID)
	if err != nil {
		return fmt.Errorf("failed to rename folder: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return ErrFolderNotFound
	}
	return nil
}

func (r *FolderRepository) Delete(ctx context.Context, q sqlx.ExtContext, ownerID string, ids []int64) error {
	for start := 0; start < len(ids); start += queryChunkSize {
		end := start + queryChunkSize
		if end > len(ids) {
			end = len(ids)
		}

		query, args, err := sqlx.In(
			`DELETE FROM folders WHERE owner_id = ? AND id IN (?)`,
			ownerID, ids[start:end])
		if err != nil {
			return fmt.Errorf("failed to build query: %w", err)
		}
		if _, err := q.ExecContext(ctx, sqlx.Rebind(sqlx.DOLLAR, query), args...); err != nil {
			return fmt.Errorf("failed to delete folders: %w", err)
		}
	}
	return nil
}

// EmptyAmong возвращает те из указанных папок, у которых нет ни файлов,
// ни дочерних папок; используется при донной обрезке исходного поддерева
func (r *FolderRepository) EmptyAmong(ctx context.Context, q sqlx.ExtContext, ids []int64) ([]int64, error) {
	empty := make([]int64, 0)
	for start := 0; start < len(ids); start += queryChunkSize {
		end := start + queryChunkSize
		if end > len(ids) {
			end = len(ids)
		}

		query, args, err := sqlx.In(
			`SELECT f.id FROM folders f
             WHERE f.id IN (?)
               AND NOT EXISTS (SELECT 1 FROM files   WHERE folder_id = f.id)
               AND NOT EXISTS (SELECT 1 FROM folders WHERE parent_id = f.id)`,
			ids[start:end])
		if err != nil {
			return nil, fmt.Errorf("failed to build query: %w", err)
		}

		rows, err := q.QueryxContext(ctx, sqlx.Rebind(sqlx.DOLLAR, query), args...)
		if err != nil {
			return nil, fmt.Errorf("failed to find empty folders: %w", err)
		}
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan folder id: %w", err)
			}
			empty = append(empty, id)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to iterate empty folders: %w", err)
		}
		rows.Close()
	}
	return empty, nil
}
