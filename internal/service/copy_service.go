package service

import (
	"context"
	"fmt"
	"log"

	"stratodrive/internal/domain"
	"stratodrive/internal/repository"
)

// Copy копирует выбранные папки и файлы в целевую папку. Каждой копии
// минтится свежий ключ объекта: две записи каталога никогда не делят
// один блоб. Порядок строгий: квота резервируется до первого обращения
// к хранилищу, блобы копируются до открытия транзакции, каталог
// фиксируется последним; на любом сбое: компенсация.
func (s *TransferService) Copy(ctx context.Context, ownerID string, req domain.TransferRequest) (*domain.TransferResult, error) {
	plan, err := s.buildPlan(ctx, ownerID, req, false)
	if err != nil {
		return nil, err
	}

	// Чистая дельта: замещаемые файлы освобождают свой размер, поэтому
	// overwrite тем же объемом не упирается в лимит
	var netBytes int64
	for _, item := range plan.items {
		netBytes += item.src.SizeBytes
		if item.replaces != nil {
			netBytes -= item.replaces.SizeBytes
		}
	}
	if err := s.quotas.TryReserve(ctx, ownerID, domain.QuotaStorage, netBytes); err != nil {
		return nil, err
	}

	tasks := make([]CopyTask, len(plan.items))
	for i := range plan.items {
		item := &plan.items[i]
		item.destKey = s.keys.Mint(ownerID, item.name)
		tasks[i] = CopyTask{
			Tag:     item.src.ID,
			SrcKey:  item.src.ObjectKey,
			DestKey: item.destKey,
			Size:    item.src.SizeBytes,
		}
	}

	outcomes := s.sync.CopyMany(ctx, tasks)
	created := make([]string, 0, len(outcomes))
	failed := 0
	for _, o := range outcomes {
		if o.Err != nil {
			failed++
			continue
		}
		created = append(created, o.Task.DestKey)
	}
	if failed > 0 {
		// Частичный сбой синхронизации: каталог не трогаем вовсе
		s.compensateCopy(ctx, ownerID, created, netBytes)
		return &domain.TransferResult{
			Success: false,
			Failed:  failed,
			Skipped: plan.skipped,
			Message: fmt.Sprintf("%d of %d remote copies failed, operation rolled back", failed, len(tasks)),
		}, nil
	}

	scope, err := s.tx.Begin(ctx)
	if err != nil {
		s.compensateCopy(ctx, ownerID, created, netBytes)
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer scope.Rollback()

	evicted := make([]string, 0)
	copiedFiles := 0
	commitErr := func() error {
		if err := ensurePaths(ctx, scope, s.folders, ownerID, plan); err != nil {
			return err
		}
		for i := range plan.items {
			item := &plan.items[i]
			if item.replaces != nil {
				if err := s.files.Delete(ctx, scope.Q(), ownerID, []int64{item.replaces.ID}); err != nil {
					return err
				}
				evicted = append(evicted, item.replaces.ObjectKey)
			}
			if err := s.insertWithRetry(ctx, scope, ownerID, item, plan); err != nil {
				return err
			}
			copiedFiles++
		}
		return scope.Commit()
	}()
	if commitErr != nil {
		s.compensateCopy(ctx, ownerID, created, netBytes)
		return nil, commitErr
	}

	// Старые блобы замещенных файлов больше не в каталоге: выселяем
	s.sync.DeleteMany(ctx, evicted)
	s.reconcileQuietly(ctx, ownerID)

	return &domain.TransferResult{
		Success: true,
		Copied:  &domain.TransferCounts{Folders: len(plan.dirPaths), Files: copiedFiles},
		Skipped: plan.skipped,
		Message: fmt.Sprintf("copied %d files into %d folders", copiedFiles, len(plan.dirPaths)),
	}, nil
}

func (s *TransferService) insertWithRetry(ctx context.Context, scope Scope, ownerID string, item *filePlan, plan *transferPlan) error {
	destID := plan.dirIDs[item.destPath]
	name := item.name
	for attempt := 0; attempt < maxNameRetries; attempt++ {
		record := &domain.File{
			OwnerID:     ownerID,
			FolderID:    destID,
			Filename:    name,
			ObjectKey:   item.destKey,
			SizeBytes:   item.src.SizeBytes,
			ContentType: item.src.ContentType,
		}
		err := scope.WithSavepoint(ctx, func() error {
			return s.files.Insert(ctx, scope.Q(), record)
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

// compensateCopy откатывает внешние эффекты несостоявшегося копирования:
// удаляет уже созданные объекты и возвращает резерв. Оба действия
// best-effort: финальная сверка сводит счетчик к каталогу.
func (s *TransferService) compensateCopy(ctx context.Context, ownerID string, created []string, netBytes int64) {
	s.sync.DeleteMany(ctx, created)
	if netBytes > 0 {
		if err := s.quotas.Release(ctx, ownerID, domain.QuotaStorage, netBytes); err != nil {
			log.Printf("[TransferService] Failed to release reserved quota for owner %s: %v", ownerID, err)
		}
	}
	s.reconcileQuietly(ctx, ownerID)
}
