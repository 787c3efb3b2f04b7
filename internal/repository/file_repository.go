package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"stratodrive/internal/domain"
)

var ErrFileNotFound = errors.New("file not found")

type FileRepository struct {
	db *sqlx.DB
}

func NewFileRepository(db *sqlx.DB) *FileRepository {
	return &FileRepository{db: db}
}

const fileColumns = `id, owner_id, folder_id, filename, object_key, size_bytes, content_type, created_at, updated_at`

func (r *FileRepository) GetByID(ctx context.Context, id int64) (*domain.File, error) {
	var file domain.File
	err := r.db.GetContext(ctx, &file,
		`SELECT `+fileColumns+` FROM files WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrFileNotFound
		}
		return nil, fmt.Errorf("failed to get file: %w", err)
	}
	return &file, nil
}

// Owned возвращает файлы владельца по списку id
func (r *FileRepository) Owned(ctx context.Context, ownerID string, ids []int64) ([]domain.File, error) {
	result := make([]domain.File, 0, len(ids))
	for start := 0; start < len(ids); start += queryChunkSize {
		end := start + queryChunkSize
		if end > len(ids) {
			end = len(ids)
		}

		query, args, err := sqlx.In(
			`SELECT `+fileColumns+` FROM files WHERE owner_id = ? AND id IN (?)`,
			ownerID, ids[start:end])
		if err != nil {
			return nil, fmt.Errorf("failed to build query: %w", err)
		}

		var batch []domain.File
		if err := r.db.SelectContext(ctx, &batch, r.db.Rebind(query), args...); err != nil {
			return nil, fmt.Errorf("failed to get files: %w", err)
		}
		result = append(result, batch...)
	}
	return result, nil
}

// InFolders возвращает файлы, лежащие в перечисленных папках; запросы
// нарезаются по queryChunkSize id
func (r *FileRepository) InFolders(ctx context.Context, ownerID string, folderIDs []int64) ([]domain.File, error) {
	result := make([]domain.File, 0)
	for start := 0; start < len(folderIDs); start += queryChunkSize {
		end := start + queryChunkSize
		if end > len(folderIDs) {
			end = len(folderIDs)
		}

		query, args, err := sqlx.In(
			`SELECT `+fileColumns+` FROM files WHERE owner_id = ? AND folder_id IN (?)`,
			ownerID, folderIDs[start:end])
		if err != nil {
			return nil, fmt.Errorf("failed to build query: %w", err)
		}

		var batch []domain.File
		if err := r.db.SelectContext(ctx, &batch, r.db.Rebind(query), args...); err != nil {
			return nil, fmt.Errorf("failed to get files in folders: %w", err)
		}
		result = append(result, batch...)
	}
	return result, nil
}

// InFolder возвращает файлы одной папки (nil: корень владельца)
func (r *FileRepository) InFolder(ctx context.Context, ownerID string, folderID *int64) ([]domain.File, error) {
	var files []domain.File
	var err error
	if folderID == nil {
		err = r.db.SelectContext(ctx, &files,
			`SELECT `+fileColumns+` FROM files
             WHERE owner_id = $1 AND folder_id IS NULL ORDER BY filename`,
			ownerID)
	} else {
		err = r.db.SelectContext(ctx, &files,
			`SELECT `+fileColumns+` FROM files
             WHERE owner_id = $1 AND folder_id = $2 ORDER BY filename`,
			ownerID, *folderID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get files: %w", err)
	}
	return files, nil
}

// FilenamesIn возвращает файлы уровня folderID, индексированные по имени;
// нужен полный FileRecord, чтобы overwrite мог вычесть размер и забрать ключ
func (r *FileRepository) FilenamesIn(ctx context.Context, ownerID string, folderID *int64) (map[string]domain.File, error) {
	files, err := r.InFolder(ctx, ownerID, folderID)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]domain.File, len(files))
	for _, f := range files {
		byName[f.Filename] = f
	}
	return byName, nil
}

func (r *FileRepository) Insert(ctx context.Context, q sqlx.ExtContext, file *domain.File) error {
	err := sqlx.GetContext(ctx, q, file,
		`INSERT INTO files (owner_id, folder_id, filename, object_key, size_bytes, content_type)
         VALUES ($1, $2, $3, $4, $5, $6)
         RETURNING `+fileColumns,
		file.OwnerID, file.FolderID, file.Filename, file.ObjectKey, file.SizeBytes, file.ContentType)
	if err != nil {
		return fmt.Errorf("failed to insert file: %w", err)
	}
	return nil
}

// MoveTo перемещает запись файла в другую папку, возможно с новым именем.
// Перемещение: чисто каталожная операция, блоб не трогается.
func (r *FileRepository) MoveTo(ctx context.Context, q sqlx.ExtContext, ownerID string, id int64, folderID *int64, filename string) error {
	result, err := q.ExecContext(ctx,
		`UPDATE files SET folder_id = $1, filename = $2, updated_at = CURRENT_TIMESTAMP
         WHERE id = $3 AND owner_id = $4`,
		folderID, filename, id, ownerID)
	if err != nil {
		return fmt.Errorf("failed to move file: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return ErrFileNotFound
	}
	return nil
}

func (r *FileRepository) Rename(ctx context.Context, q sqlx.ExtContext, ownerID string, id int64, newName string) error {
	result, err := q.ExecContext(ctx,
		`UPDATE files SET filename = $1, updated_at = CURRENT_TIMESTAMP
         WHERE id = $2 AND owner_id = $3`,
		newName, id, ownerID)
	if err != nil {
		return fmt.Errorf("failed to rename file: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return ErrFileNotFound
	}
	return nil
}

func (r *FileRepository) Delete(ctx context.Context, q sqlx.ExtContext, ownerID string, ids []int64) error {
	for start := 0; start < len(ids); start += queryChunkSize {
		end := start + queryChunkSize
		if end > len(ids) {
			end = len(ids)
		}

		query, args, err := sqlx.In(
			`DELETE FROM files WHERE owner_id = ? AND id IN (?)`,
			ownerID, ids[start:end])
		if err != nil {
			return fmt.Errorf("failed to build query: %w", err)
		}
		if _, err := q.ExecContext(ctx, sqlx.Rebind(sqlx.DOLLAR, query), args...); err != nil {
			return fmt.Errorf("failed to delete files: %w", err)
		}
	}
	return nil
}
