package domain

import (
	"time"
)

type File struct {
	ID          int64     `json:"id" db:"id"`
	OwnerID     string    `json:"owner_id" db:"owner_id"`
	FolderID    *int64    `json:"folder_id,omitempty" db:"folder_id"`
	Filename    string    `json:"filename" db:"filename"`
	ObjectKey   string    `json:"object_key" db:"object_key"`
	SizeBytes   int64     `json:"size_bytes" db:"size_bytes"`
	ContentType string    `json:"content_type" db:"content_type"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}
