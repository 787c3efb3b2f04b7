package domain

import "time"

// QuotaKind выбирает счетчик квоты владельца
type QuotaKind string

const (
	QuotaStorage  QuotaKind = "storage"
	QuotaDownload QuotaKind = "download"
)

// OwnerQuota хранит лимиты владельца; нулевой лимит означает "без ограничений"
type OwnerQuota struct {
	OwnerID           string     `json:"owner_id" db:"owner_id"`
	UsedStorageBytes  int64      `json:"used_storage_bytes" db:"used_storage_bytes"`
	MaxStorageBytes   int64      `json:"max_storage_bytes" db:"max_storage_bytes"`
	UsedDownloadBytes int64      `json:"used_download_bytes" db:"used_download_bytes"`
	MaxDownloadBytes  int64      `json:"max_download_bytes" db:"max_download_bytes"`
	ExpiresAt         *time.Time `json:"expires_at,omitempty" db:"expires_at"`
	CreatedAt         time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at" db:"updated_at"`
}

func (q *OwnerQuota) Expired(now time.Time) bool {
	return q.ExpiresAt != nil && !now.Before(*q.ExpiresAt)
}

type QuotaInfo struct {
	TotalSpace     int64   `json:"total_space"`
	UsedSpace      int64   `json:"used_space"`
	AvailableSpace int64   `json:"available_space"`
	UsagePercent   float64 `json:"usage_percent"`
}
