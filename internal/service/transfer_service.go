package service

import (
	"context"
	"errors"
	"fmt"
	"log"

	"stratodrive/internal/domain"
	"stratodrive/internal/repository"
	"stratodrive/internal/service/s3"
)

// maxNameRetries ограничивает повторные попытки подбора имени при
// конкурентных нарушениях уникальности
const maxNameRetries = 10

// TransferService представляет оркестратор пакетных операций над деревом:
// перемещение, копирование и удаление папок и файлов
type TransferService struct {
	folders   FolderCatalog
	files     FileCatalog
	quotas    QuotaLedger
	tx        TxManager
	collector *TreeCollector
	sync      *ObjectSynchronizer
	keys      *s3.KeyMinter
}

func NewTransferService(
	folders FolderCatalog,
	files FileCatalog,
	quotas QuotaLedger,
	tx TxManager,
	sync *ObjectSynchronizer,
	keys *s3.KeyMinter,
) *TransferService {
	return &TransferService{
		folders:   folders,
		files:     files,
		quotas:    quotas,
		tx:        tx,
		collector: NewTreeCollector(folders, files),
		sync:      sync,
		keys:      keys,
	}
}

// filePlan фиксирует решение по одному файлу: куда, под каким именем и кого он
// замещает. destKey заполняется только при копировании.
type filePlan struct {
	src      domain.File
	destPath string // относительный путь папки назначения; "": сама целевая папка
	name     string
	replaces *domain.File
	destKey  string
}

// transferPlan строится до открытия транзакции: все конфликты имен
// разрешены по текущему состоянию каталога, так что квоту можно
// зарезервировать до первого обращения к удаленному хранилищу
type transferPlan struct {
	targetID   *int64
	dirPaths   []string
	dirSeen    map[string]struct{}
	dirIDs     map[string]*int64
	names      map[string]map[string]struct{}
	existing   map[string]map[string]domain.File
	items      []filePlan
	skipped    int
	sourceDirs []int64
}

func newTransferPlan(targetID *int64) *transferPlan {
	return &transferPlan{
		targetID: targetID,
		dirSeen:  make(map[string]struct{}),
		dirIDs:   map[string]*int64{"": targetID},
		names:    make(map[string]map[string]struct{}),
		existing: make(map[string]map[string]domain.File),
	}
}

func (p *transferPlan) addDir(path string) {
	if _, ok := p.dirSeen[path]; ok {
		return
	}
	p.dirSeen[path] = struct{}{}
	p.dirPaths = append(p.dirPaths, path)
}

func (p *transferPlan) namesFor(path string) map[string]struct{} {
	ns, ok := p.names[path]
	if !ok {
		ns = make(map[string]struct{})
		p.names[path] = ns
	}
	return ns
}

func (p *transferPlan) existingFor(path string) map[string]domain.File {
	m, ok := p.existing[path]
	if !ok {
		m = make(map[string]domain.File)
		p.existing[path] = m
	}
	return m
}

func sameID(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func dedupeIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// resolveOwned загружает выбранные папки и файлы и проверяет, что все
// они принадлежат владельцу; отсутствие любого id: отказ без деталей
func (s *TransferService) resolveOwned(ctx context.Context, ownerID string, folderIDs, fileIDs []int64) ([]domain.Folder, []domain.File, error) {
	folderIDs = dedupeIDs(folderIDs)
	fileIDs = dedupeIDs(fileIDs)

	if len(folderIDs) == 0 && len(fileIDs) == 0 {
		return nil, nil, fmt.Errorf("%w: no items selected", ErrInvalidRequest)
	}

	folders, err := s.folders.Owned(ctx, ownerID, folderIDs)
	if err != nil {
		return nil, nil, err
	}
	if len(folders) != len(folderIDs) {
		return nil, nil, ErrNotFound
	}

	files, err := s.files.Owned(ctx, ownerID, fileIDs)
	if err != nil {
		return nil, nil, err
	}
	if len(files) != len(fileIDs) {
		return nil, nil, ErrNotFound
	}

	return folders, files, nil
}

func (s *TransferService) resolveTarget(ctx context.Context, ownerID string, targetID *int64) (*int64, error) {
	if targetID == nil {
		return nil, nil // корень владельца
	}
	target, err := s.folders.GetByID(ctx, *targetID)
	if err != nil {
		if errors.Is(err, repository.ErrFolderNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if target.OwnerID != ownerID {
		// Не раскрываем существование чужой папки
		return nil, ErrNotFound
	}
	id := target.ID
	return &id, nil
}

// guardCycle отклоняет перемещение папки внутрь собственного поддерева.
// Родительская связь образует лес, поэтому подъем от цели до корня
// конечен; встреча любой выбранной папки по пути: цикл.
func (s *TransferService) guardCycle(ctx context.Context, selected map[int64]struct{}, targetID *int64) error {
	cur := targetID
	for cur != nil {
		if _, ok := selected[*cur]; ok {
			return ErrCyclicMove
		}
		folder, err := s.folders.GetByID(ctx, *cur)
		if err != nil {
			return err
		}
		cur = folder.ParentID
	}
	return nil
}

// buildPlan разворачивает запрос в поэлементный план: поддеревья
// собраны, имена разрешены, замещаемые файлы известны. Никаких записей
// в каталог и обращений к хранилищу на этом этапе.
func (s *TransferService) buildPlan(ctx context.Context, ownerID string, req domain.TransferRequest, forMove bool) (*transferPlan, error) {
	targetID, err := s.resolveTarget(ctx, ownerID, req.TargetFolderID)
	if err != nil {
		return nil, err
	}

	folders, files, err := s.resolveOwned(ctx, ownerID, req.FolderIDs, req.FileIDs)
	if err != nil {
		return nil, err
	}

	if forMove {
		selected := make(map[int64]struct{}, len(folders))
		for _, f := range folders {
			selected[f.ID] = struct{}{}
		}
		if err := s.guardCycle(ctx, selected, targetID); err != nil {
			return nil, err
		}
	}

	plan := newTransferPlan(targetID)

	targetFolderNames, err := s.folders.NamesIn(ctx, ownerID, targetID)
	if err != nil {
		return nil, err
	}
	targetFiles, err := s.files.FilenamesIn(ctx, ownerID, targetID)
	if err != nil {
		return nil, err
	}
	for name, f := range targetFiles {
		plan.namesFor("")[name] = struct{}{}
		plan.existingFor("")[name] = f
	}

	folderNameSet := make(map[string]struct{}, len(targetFolderNames))
	for name := range targetFolderNames {
		folderNameSet[name] = struct{}{}
	}

	for _, folder := range folders {
		// Перемещение папки в ее текущего родителя: no-op
		if forMove && sameID(folder.ParentID, targetID) {
			plan.skipped++
			continue
		}

		existingID, exists := targetFolderNames[folder.Name]

		destName := folder.Name
		switch {
		case req.Policy == domain.PolicySkip && exists:
			plan.skipped++
			continue
		case req.Policy == domain.PolicyOverwrite && exists:
			// Слияние с существующей папкой: ее поддерево и файлы
			// становятся известными путями и именами назначения
			if err := s.mergeExistingTree(ctx, ownerID, existingID, plan); err != nil {
				return nil, err
			}
		default:
			destName = ResolveFolderName(folder.Name, folderNameSet)
		}
		folderNameSet[destName] = struct{}{}

		subtree, err := s.collector.CollectSubtree(ctx, ownerID, folder)
		if err != nil {
			return nil, err
		}

		srcDirToDest := make(map[int64]string, len(subtree.FolderIDs))
		for _, fid := range subtree.FolderIDs {
			destRel := destName + subtree.RelPath[fid][len(folder.Name):]
			srcDirToDest[fid] = destRel
			plan.addDir(destRel)
		}
		plan.sourceDirs = append(plan.sourceDirs, subtree.FolderIDs...)

		subtreeFiles, err := s.collector.CollectFiles(ctx, ownerID, subtree.FolderIDs)
		if err != nil {
			return nil, err
		}
		for _, f := range subtreeFiles {
			s.planFile(plan, f, srcDirToDest[*f.FolderID], req.Policy, forMove)
		}
	}

	for _, f := range files {
		s.planFile(plan, f, "", req.Policy, forMove)
	}

	return plan, nil
}

// mergeExistingTree регистрирует поддерево существующей папки назначения
// в плане, чтобы слияние переиспользовало ее папки и видело ее файлы
func (s *TransferService) mergeExistingTree(ctx context.Context, ownerID string, rootID int64, plan *transferPlan) error {
	root, err := s.folders.GetByID(ctx, rootID)
	if err != nil {
		return err
	}
	subtree, err := s.collector.CollectSubtree(ctx, ownerID, *root)
	if err != nil {
		return err
	}

	for _, fid := range subtree.FolderIDs {
		id := fid
		plan.dirIDs[subtree.RelPath[fid]] = &id
	}

	existFiles, err := s.collector.CollectFiles(ctx, ownerID, subtree.FolderIDs)
	if err != nil {
		return err
	}
	for _, f := range existFiles {
		rel := subtree.RelPath[*f.FolderID]
		plan.namesFor(rel)[f.Filename] = struct{}{}
		plan.existingFor(rel)[f.Filename] = f
	}
	return nil
}

// planFile решает судьбу одного файла по политике конфликтов
func (s *TransferService) planFile(plan *transferPlan, f domain.File, destPath string, policy domain.ConflictPolicy, forMove bool) {
	// Назначение совпадает с текущим расположением: перемещать нечего
	if forMove {
		if destID, ok := plan.dirIDs[destPath]; ok && sameID(destID, f.FolderID) {
			plan.skipped++
			return
		}
	}

	ns := plan.namesFor(destPath)
	existing, exists := plan.existingFor(destPath)[f.Filename]

	item := filePlan{src: f, destPath: destPath, name: f.Filename}
	switch {
	case policy == domain.PolicySkip && exists:
		plan.skipped++
		return
	case policy == domain.PolicyOverwrite && exists:
		item.replaces = &existing
	default:
		item.name = ResolveFileName(f.Filename, ns)
	}
	ns[item.name] = struct{}{}
	plan.items = append(plan.items, item)
}

// ensurePaths материализует пути назначения внутри транзакции,
// аналог mkdir -p с переиспользованием папок по имени. Гонка на
// создании закрыта savepoint-повтором: нарушение уникальности значит,
// что папку уже создал конкурент, и ее достаточно перечитать.
func ensurePaths(ctx context.Context, scope Scope, folders FolderCatalog, ownerID string, plan *transferPlan) error {
	for _, path := range plan.dirPaths {
		if _, ok := plan.dirIDs[path]; ok {
			continue
		}

		cur := plan.targetID
		walked := ""
		for _, seg := range splitPath(path) {
			if walked == "" {
				walked = seg
			} else {
				walked = walked + "/" + seg
			}
			if id, ok := plan.dirIDs[walked]; ok {
				cur = id
				continue
			}

			found, err := folders.ChildByName(ctx, scope.Q(), ownerID, cur, seg)
			if err == nil {
				id := found.ID
				plan.dirIDs[walked] = &id
				cur = &id
				continue
			}
			if !errors.Is(err, repository.ErrFolderNotFound) {
				return err
			}

			created := &domain.Folder{OwnerID: ownerID, ParentID: cur, Name: seg}
			err = scope.WithSavepoint(ctx, func() error {
				return folders.Create(ctx, scope.Q(), created)
			})
			if err != nil {
				if !repository.IsUniqueViolation(err) {
					return err
				}
				found, err2 := folders.ChildByName(ctx, scope.Q(), ownerID, cur, seg)
				if err2 != nil {
					return fmt.Errorf("failed to resolve folder after conflict: %w", err2)
				}
				id := found.ID
				plan.dirIDs[walked] = &id
				cur = &id
				continue
			}
			id := created.ID
			plan.dirIDs[walked] = &id
			cur = &id
		}
	}
	return nil
}

func splitPath(path string) []string {
	segs := make([]string, 0, 4)
	start := 0
	for i := 0; i < len(path); i++ {
		if path[i] == '/' {
			segs = append(segs, path[start:i])
			start = i + 1
		}
	}
	return append(segs, path[start:])
}

// pruneEmpty снизу вверх удаляет опустевшие папки исходного поддерева:
// каждый проход снимает очередной слой листьев
func (s *TransferService) pruneEmpty(ctx context.Context, scope Scope, ownerID string, ids []int64) (int, error) {
	pruned := 0
	remaining := ids
	for len(remaining) > 0 {
		empty, err := s.folders.EmptyAmong(ctx, scope.Q(), remaining)
		if err != nil {
			return pruned, err
		}
		if len(empty) == 0 {
			break
		}
		if err := s.folders.Delete(ctx, scope.Q(), ownerID, empty); err != nil {
			return pruned, err
		}
		pruned += len(empty)

		gone := make(map[int64]struct{}, len(empty))
		for _, id := range empty {
			gone[id] = struct{}{}
		}
		next := make([]int64, 0, len(remaining)-len(empty))
		for _, id := range remaining {
			if _, ok := gone[id]; !ok {
				next = append(next, id)
			}
		}
		remaining = next
	}
	return pruned, nil
}

// reconcileQuietly выполняет сверку квоты после операции; каталог уже верен,
// поэтому сбой сверки логируется и не отменяет результат
func (s *TransferService) reconcileQuietly(ctx context.Context, ownerID string) {
	if err := s.quotas.Reconcile(ctx, ownerID); err != nil {
		log.Printf("[TransferService] Quota reconciliation for owner %s failed: %v", ownerID, err)
	}
}
