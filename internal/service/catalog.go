package service

import (
	"context"

	"github.com/jmoiron/sqlx"

	"stratodrive/internal/domain"
	"stratodrive/internal/repository"
)

// Интерфейсы каталога. Методы-мутаторы принимают явную сессию
// (sqlx.ExtContext), чтобы savepoint-транзакция оркестратора проходила
// через каждый вызов; это же позволяет подменять каталог в тестах.

type FolderCatalog interface {
	GetByID(ctx context.Context, id int64) (*domain.Folder, error)
	Owned(ctx context.Context, ownerID string, ids []int64) ([]domain.Folder, error)
	Children(ctx context.Context, ownerID string, parentIDs []int64) ([]domain.Folder, error)
	ChildrenOf(ctx context.Context, ownerID string, parentID *int64) ([]domain.Folder, error)
	NamesIn(ctx context.Context, ownerID string, parentID *int64) (map[string]int64, error)
	ChildByName(ctx context.Context, q sqlx.ExtContext, ownerID string, parentID *int64, name string) (*domain.Folder, error)
	Create(ctx context.Context, q sqlx.ExtContext, folder *domain.Folder) error
	Rename(ctx context.Context, q sqlx.ExtContext, ownerID string, id int64, newName string) error
	Delete(ctx context.Context, q sqlx.ExtContext, ownerID string, ids []int64) error
	EmptyAmong(ctx context.Context, q sqlx.ExtContext, ids []int64) ([]int64, error)
}

type FileCatalog interface {
	GetByID(ctx context.Context, id int64) (*domain.File, error)
	Owned(ctx context.Context, ownerID string, ids []int64) ([]domain.File, error)
	InFolders(ctx context.Context, ownerID string, folderIDs []int64) ([]domain.File, error)
	InFolder(ctx context.Context, ownerID string, folderID *int64) ([]domain.File, error)
	FilenamesIn(ctx context.Context, ownerID string, folderID *int64) (map[string]domain.File, error)
	Insert(ctx context.Context, q sqlx.ExtContext, file *domain.File) error
	MoveTo(ctx context.Context, q sqlx.ExtContext, ownerID string, id int64, folderID *int64, filename string) error
	Rename(ctx context.Context, q sqlx.ExtContext, ownerID string, id int64, newName string) error
	Delete(ctx context.Context, q sqlx.ExtContext, ownerID string, ids []int64) error
}

// QuotaLedger ведет атомарный учет квот владельца; единственная точка
// изменения счетчиков (оркестраторы никогда не пишут их напрямую)
type QuotaLedger interface {
	Get(ctx context.Context, ownerID string) (*domain.OwnerQuota, error)
	TryReserve(ctx context.Context, ownerID string, kind domain.QuotaKind, deltaBytes int64) error
	Release(ctx context.Context, ownerID string, kind domain.QuotaKind, deltaBytes int64) error
	Reconcile(ctx context.Context, ownerID string) error
}

// Scope представляет открытую транзакцию одного запроса
type Scope interface {
	Q() sqlx.ExtContext
	Commit() error
	Rollback() error
	WithSavepoint(ctx context.Context, fn func() error) error
}

// TxManager выдает по одной области транзакции на запрос оркестратора
type TxManager interface {
	Begin(ctx context.Context) (Scope, error)
}

type sqlTxManager struct {
	m *repository.TxManager
}

// NewSQLTxManager адаптирует менеджер транзакций репозитория к
// интерфейсу сервиса
func NewSQLTxManager(m *repository.TxManager) TxManager {
	return sqlTxManager{m: m}
}

func (a sqlTxManager) Begin(ctx context.Context) (Scope, error) {
	return a.m.Begin(ctx)
}
