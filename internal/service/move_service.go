package service

import (
	"context"
	"fmt"

	"stratodrive/internal/domain"
	"stratodrive/internal/repository"
)

// Move перемещает выбранные папки и файлы в целевую папку. Это чисто
// каталожная операция: байты не двигаются, блобы не копируются.
// Файлы переезжают в материализованное зеркало исходного дерева, после
// чего опустевшие исходные папки обрезаются снизу вверх. Весь план
// выполняется в одной транзакции.
func (s *TransferService) Move(ctx context.Context, ownerID string, req domain.TransferRequest) (*domain.TransferResult, error) {
	plan, err := s.buildPlan(ctx, ownerID, req, true)
	if err != nil {
		return nil, err
	}

	scope, err := s.tx.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer scope.Rollback()

	if err := ensurePaths(ctx, scope, s.folders, ownerID, plan); err != nil {
		return nil, err
	}

	movedFiles := 0
	evicted := make([]string, 0)
	for i := range plan.items {
		item := &plan.items[i]
		destID := plan.dirIDs[item.destPath]

		// Повторная проверка после материализации путей: слияние могло
		// привести файл в его собственную папку
		if sameID(destID, item.src.FolderID) {
			plan.skipped++
			continue
		}

		if item.replaces != nil {
			if err := s.files.Delete(ctx, scope.Q(), ownerID, []int64{item.replaces.ID}); err != nil {
				return nil, err
			}
			evicted = append(evicted, item.replaces.ObjectKey)
		}

		if err := s.moveWithRetry(ctx, scope, ownerID, item, destID, plan); err != nil {
			return nil, err
		}
		movedFiles++
	}

	if _, err := s.pruneEmpty(ctx, scope, ownerID, plan.sourceDirs); err != nil {
		return nil, err
	}

	if err := scope.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit move: %w", err)
	}

	// Блобы замещенных файлов выселяются только после фиксации каталога
	s.sync.DeleteMany(ctx, evicted)
	if len(evicted) > 0 {
		s.reconcileQuietly(ctx, ownerID)
	}

	return &domain.TransferResult{
		Success: true,
		Moved:   &domain.TransferCounts{Folders: len(plan.dirPaths), Files: movedFiles},
		Skipped: plan.skipped,
		Message: fmt.Sprintf("moved %d files into %d folders", movedFiles, len(plan.dirPaths)),
	}, nil
}

// moveWithRetry переносит запись файла; нарушение уникальности имени
// (конкурентная вставка между планом и применением) разрешается заново
// внутри вложенного savepoint, чтобы не отравить транзакцию
func (s *TransferService) moveWithRetry(ctx context.Context, scope Scope, ownerID string, item *filePlan, destID *int64, plan *transferPlan) error {
	name := item.name
	for attempt := 0; attempt < maxNameRetries; attempt++ {
		err := scope.WithSavepoint(ctx, func() error {
			return s.files.MoveTo(ctx, scope.Q(), ownerID, item.src.ID, destID, name)
		})
		if err == nil {
			item.name = name
			return nil
		}
		if !repository.IsUniqueViolation(err) {
			return err
		}
		ns := plan.namesFor(item.destPath)
		ns[name] = struct{}{}
		name = ResolveFileName(item.src.Filename, ns)
		ns[name] = struct{}{}
	}
	return ErrNameResolutionExhausted
}
