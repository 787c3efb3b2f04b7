package domain

import (
	"time"
)

type Folder struct {
	ID        int64     `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	OwnerID   string    `json:"owner_id" db:"owner_id"`
	ParentID  *int64    `json:"parent_id,omitempty" db:"parent_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type FolderContent struct {
	Folder  Folder   `json:"folder"`
	Files   []File   `json:"files"`
	Folders []Folder `json:"subfolders"`
}
