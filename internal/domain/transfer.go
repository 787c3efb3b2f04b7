package domain

// ConflictPolicy определяет поведение при совпадении имен в целевой папке
type ConflictPolicy int

const (
	// PolicyRename добавляет к имени суффикс " (n)" (поведение по умолчанию)
	PolicyRename ConflictPolicy = iota
	// PolicySkip оставляет конфликтующий элемент на месте
	PolicySkip
	// PolicyOverwrite замещает существующий элемент в целевой папке
	PolicyOverwrite
)

// TransferRequest описывает батч перемещения/копирования/удаления.
// TargetFolderID == nil означает корень владельца.
type TransferRequest struct {
	TargetFolderID *int64
	FolderIDs      []int64
	FileIDs        []int64
	Policy         ConflictPolicy
}

type TransferCounts struct {
	Folders int `json:"folders"`
	Files   int `json:"files"`
}

type TransferResult struct {
	Success bool            `json:"success"`
	Moved   *TransferCounts `json:"moved,omitempty"`
	Copied  *TransferCounts `json:"copied,omitempty"`
	Deleted *TransferCounts `json:"deleted,omitempty"`
	Skipped int             `json:"skipped"`
	Failed  int             `json:"failed"`
	Message string          `json:"message"`
}
