package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jmoiron/sqlx"

	"stratodrive/internal/domain"
)

// defaultStorageLimit задает лимит хранилища для владельца без записи квоты (5GB)
const defaultStorageLimit = 5368709120

type QuotaRepository struct {
	db *sqlx.DB
}

func NewQuotaRepository(db *sqlx.DB) *QuotaRepository {
	return &QuotaRepository{db: db}
}

func (r *QuotaRepository) Get(ctx context.Context, ownerID string) (*domain.OwnerQuota, error) {
	var quota domain.OwnerQuota
	err := r.db.GetContext(ctx, &quota,
		`SELECT owner_id, used_storage_bytes, max_storage_bytes,
                used_download_bytes, max_download_bytes, expires_at,
                created_at, updated_at
         FROM owner_quotas WHERE owner_id = $1`, ownerID)
	if err != nil {
		// Квоты нет: создаем с дефолтным лимитом
		if errors.Is(err, sql.ErrNoRows) {
			quota = domain.OwnerQuota{
				OwnerID:         ownerID,
				MaxStorageBytes: defaultStorageLimit,
			}
			if err := r.create(ctx, &quota); err != nil {
				return nil, fmt.Errorf("failed to create quota: %w", err)
			}
			return &quota, nil
		}
		return nil, fmt.Errorf("failed to get quota: %w", err)
	}
	return &quota, nil
}

func (r *QuotaRepository) create(ctx context.Context, quota *domain.OwnerQuota) error {
	// ON CONFLICT прикрывает гонку двух первых запросов одного владельца
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO owner_quotas (owner_id, max_storage_bytes)
         VALUES ($1, $2)
         ON CONFLICT (owner_id) DO NOTHING`,
		quota.OwnerID, quota.MaxStorageBytes)
	return err
}

func quotaColumns(kind domain.QuotaKind) (used string, max string, err error) {
	switch kind {
	case domain.QuotaStorage:
		return "used_storage_bytes", "max_storage_bytes", nil
	case domain.QuotaDownload:
		return "used_download_bytes", "max_download_bytes", nil
	default:
		return "", "", fmt.Errorf("unknown quota kind: %s", kind)
	}
}

// TryReserve атомарно резервирует deltaBytes в счетчике kind.
// Проверка и инкремент выполняются одним условным UPDATE: два
// конкурентных запроса не могут оба пройти проверку и совместно
// превысить лимит. Ноль затронутых строк означает отказ.
func (r *QuotaRepository) TryReserve(ctx context.Context, ownerID string, kind domain.QuotaKind, deltaBytes int64) error {
	if deltaBytes <= 0 {
		// Чистый возврат: overwrite меньшим файлом резервирует
		// отрицательную дельту. Истекший аккаунт отклоняется и здесь:
		// возврат не дает права на операцию
		quota, err := r.Get(ctx, ownerID)
		if err != nil {
			return err
		}
		if quota.Expired(time.Now()) {
			return domain.ErrOwnerExpired
		}
		return r.Release(ctx, ownerID, kind, -deltaBytes)
	}

	usedCol, maxCol, err := quotaColumns(kind)
	if err != nil {
		return err
	}

	// Строка квоты должна существовать до условного UPDATE
	if _, err := r.Get(ctx, ownerID); err != nil {
		return err
	}

	query := fmt.Sprintf(`
        UPDATE owner_quotas
        SET %[1]s = %[1]s + $1, updated_at = CURRENT_TIMESTAMP
        WHERE owner_id = $2
          AND (%[2]s = 0 OR %[1]s + $1 <= %[2]s)
          AND (expires_at IS NULL OR expires_at > CURRENT_TIMESTAMP)`,
		usedCol, maxCol)

	result, err := r.db.ExecContext(ctx, query, deltaBytes, ownerID)
	if err != nil {
		return fmt.Errorf("failed to reserve quota: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows > 0 {
		return nil
	}

	// Отказ: выясняем причину для сообщения пользователю
	quota, err := r.Get(ctx, ownerID)
	if err != nil {
		return err
	}
	if quota.ExpiresAt != nil {
		var expired bool
		if err := r.db.GetContext(ctx, &expired,
			`SELECT expires_at <= CURRENT_TIMESTAMP FROM owner_quotas WHERE owner_id = $1`,
			ownerID); err == nil && expired {
			return domain.ErrOwnerExpired
		}
	}

	used, max := quota.UsedStorageBytes, quota.MaxStorageBytes
	if kind == domain.QuotaDownload {
		used, max = quota.UsedDownloadBytes, quota.MaxDownloadBytes
	}
	available := max - used
	if available < 0 {
		available = 0
	}
	return &domain.QuotaError{Kind: kind, Requested: deltaBytes, Available: available}
}

// Release возвращает зарезервированные байты; счетчик не уходит ниже нуля
func (r *QuotaRepository) Release(ctx context.Context, ownerID string, kind domain.QuotaKind, deltaBytes int64) error {
	if deltaBytes <= 0 {
		return nil
	}

	usedCol, _, err := quotaColumns(kind)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
        UPDATE owner_quotas
        SET %[1]s = GREATEST(0, %[1]s - $1), updated_at = CURRENT_TIMESTAMP
        WHERE owner_id = $2`, usedCol)

	result, err := r.db.ExecContext(ctx, query, deltaBytes, ownerID)
	if err != nil {
		return fmt.Errorf("failed to release quota: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("quota not found for owner: %s", ownerID)
	}
	return nil
}

// Reconcile пересчитывает used_storage_bytes из каталога: единственного
// источника истины. Идемпотентен.
func (r *QuotaRepository) Reconcile(ctx context.Context, ownerID string) error {
	query := `
        UPDATE owner_quotas
        SET used_storage_bytes = COALESCE(
                (SELECT SUM(size_bytes) FROM files WHERE owner_id = $1), 0),
            updated_at = CURRENT_TIMESTAMP
        WHERE owner_id = $1`

	result, err := r.db.ExecContext(ctx, query, ownerID)
	if err != nil {
		return fmt.Errorf("failed to reconcile quota: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		// Записи квоты еще нет: создаем и повторяем один раз
		if _, err := r.Get(ctx, ownerID); err != nil {
			return fmt.Errorf("failed to get or create quota: %w", err)
		}
		if _, err := r.db.ExecContext(ctx, query, ownerID); err != nil {
			return fmt.Errorf("failed to reconcile quota: %w", err)
		}
	}

	log.Printf("[QuotaRepository] Reconciled used storage for owner %s", ownerID)
	return nil
}

// TouchedOwners возвращает владельцев с файлами, измененными после отметки:
// кандидатов фоновой сверки
func (r *QuotaRepository) TouchedOwners(ctx context.Context, since time.Time) ([]string, error) {
	var owners []string
	err := r.db.SelectContext(ctx, &owners,
		`SELECT DISTINCT owner_id FROM files WHERE updated_at > $1`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to get touched owners: %w", err)
	}
	return owners, nil
}
