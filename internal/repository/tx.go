package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// TransactionScope оборачивает одну транзакцию запроса.
// Оркестратор открывает ровно одну область на запрос; вложенные шаги
// используют WithSavepoint и никогда не открывают собственную транзакцию.
type TransactionScope struct {
	tx    *sqlx.Tx
	seq   int
	done  bool
}

type TxManager struct {
	db *sqlx.DB
}

func NewTxManager(db *sqlx.DB) *TxManager {
	return &TxManager{db: db}
}

func (m *TxManager) Begin(ctx context.Context) (*TransactionScope, error) {
	tx, err := m.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &TransactionScope{tx: tx}, nil
}

// Q возвращает сессию для передачи в методы репозиториев
func (s *TransactionScope) Q() sqlx.ExtContext {
	return s.tx
}

func (s *TransactionScope) Commit() error {
	if s.done {
		return nil
	}
	s.done = true
	if err := s.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Rollback безопасен после Commit (no-op)
func (s *TransactionScope) Rollback() error {
	if s.done {
		return nil
	}
	s.done = true
	if err := s.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}
	return nil
}

// WithSavepoint выполняет fn внутри вложенной точки сохранения.
// Ошибка fn откатывает только этот шаг; транзакция остается пригодной,
// что позволяет повторять вставку после нарушения уникальности.
func (s *TransactionScope) WithSavepoint(ctx context.Context, fn func() error) error {
	s.seq++
	name := fmt.Sprintf("sp_%d", s.seq)

	if _, err := s.tx.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return fmt.Errorf("failed to create savepoint: %w", err)
	}

	if err := fn(); err != nil {
		if _, rbErr := s.tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name); rbErr != nil {
			return fmt.Errorf("failed to rollback to savepoint: %v (original: %w)", rbErr, err)
		}
		if _, relErr := s.tx.ExecContext(ctx, "RELEASE SAVEPOINT "+name); relErr != nil {
			return fmt.Errorf("failed to release savepoint: %v (original: %w)", relErr, err)
		}
		return err
	}

	if _, err := s.tx.ExecContext(ctx, "RELEASE SAVEPOINT "+name); err != nil {
		return fmt.Errorf("failed to release savepoint: %w", err)
	}
	return nil
}

// IsUniqueViolation распознает нарушение уникального индекса Postgres
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
