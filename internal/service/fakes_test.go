package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"stratodrive/internal/domain"
	"stratodrive/internal/repository"
	"stratodrive/internal/service/s3"
)

// Тестовые фейки каталога, квот, транзакций и хранилища. Фейковый
// каталог честно держит ограничения уникальности и возвращает ту же
// ошибку 23505, что и настоящий бэкенд.

func uniqueViolation() error {
	return &pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"}
}

type fakeStore struct {
	mu      sync.Mutex
	folders map[int64]domain.Folder
	files   map[int64]domain.File
	nextID  int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		folders: make(map[int64]domain.Folder),
		files:   make(map[int64]domain.File),
	}
}

func (s *fakeStore) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *fakeStore) addFolder(ownerID string, parentID *int64, name string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if parentID != nil {
		pid := *parentID
		parentID = &pid
	}
	id := s.id()
	s.folders[id] = domain.Folder{
		ID: id, OwnerID: ownerID, ParentID: parentID, Name: name,
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}
	return id
}

func (s *fakeStore) addFile(ownerID string, folderID *int64, filename, objectKey string, size int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if folderID != nil {
		fid := *folderID
		folderID = &fid
	}
	id := s.id()
	s.files[id] = domain.File{
		ID: id, OwnerID: ownerID, FolderID: folderID, Filename: filename,
		ObjectKey: objectKey, SizeBytes: size, ContentType: "application/octet-stream",
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}
	return id
}

// --- fakeFolders ---

type fakeFolders struct{ st *fakeStore }

func (f *fakeFolders) GetByID(_ context.Context, id int64) (*domain.Folder, error) {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()
	folder, ok := f.st.folders[id]
	if !ok {
		return nil, repository.ErrFolderNotFound
	}
	return &folder, nil
}

func (f *fakeFolders) Owned(_ context.Context, ownerID string, ids []int64) ([]domain.Folder, error) {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()
	out := make([]domain.Folder, 0, len(ids))
	for _, id := range ids {
		if folder, ok := f.st.folders[id]; ok && folder.OwnerID == ownerID {
			out = append(out, folder)
		}
	}
	return out, nil
}

func (f *fakeFolders) Children(_ context.Context, ownerID string, parentIDs []int64) ([]domain.Folder, error) {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()
	parents := make(map[int64]struct{}, len(parentIDs))
	for _, id := range parentIDs {
		parents[id] = struct{}{}
	}
	var out []domain.Folder
	for _, folder := range f.st.folders {
		if folder.OwnerID != ownerID || folder.ParentID == nil {
			continue
		}
		if _, ok := parents[*folder.ParentID]; ok {
			out = append(out, folder)
		}
	}
	return out, nil
}

func (f *fakeFolders) ChildrenOf(_ context.Context, ownerID string, parentID *int64) ([]domain.Folder, error) {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()
	var out []domain.Folder
	for _, folder := range f.st.folders {
		if folder.OwnerID == ownerID && sameID(folder.ParentID, parentID) {
			out = append(out, folder)
		}
	}
	return out, nil
}

func (f *fakeFolders) NamesIn(_ context.Context, ownerID string, parentID *int64) (map[string]int64, error) {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()
	out := make(map[string]int64)
	for _, folder := range f.st.folders {
		if folder.OwnerID == ownerID && sameID(folder.ParentID, parentID) {
			out[folder.Name] = folder.ID
		}
	}
	return out, nil
}

func (f *fakeFolders) ChildByName(_ context.Context, _ sqlx.ExtContext, ownerID string, parentID *int64, name string) (*domain.Folder, error) {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()
	for _, folder := range f.st.folders {
		if folder.OwnerID == ownerID && sameID(folder.ParentID, parentID) && folder.Name == name {
			out := folder
			return &out, nil
		}
	}
	return nil, repository.ErrFolderNotFound
}

func (f *fakeFolders) Create(_ context.Context, _ sqlx.ExtContext, folder *domain.Folder) error {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()
	for _, existing := range f.st.folders {
		if existing.OwnerID == folder.OwnerID && sameID(existing.ParentID, folder.ParentID) && existing.Name == folder.Name {
			return uniqueViolation()
		}
	}
	folder.ID = f.st.id()
	folder.CreatedAt = time.Now()
	folder.UpdatedAt = time.Now()
	f.st.folders[folder.ID] = *folder
	return nil
}

func (f *fakeFolders) Rename(_ context.Context, _ sqlx.ExtContext, ownerID string, id int64, newName string) error {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()
	folder, ok := f.st.folders[id]
	if !ok || folder.OwnerID != ownerID {
		return repository.ErrFolderNotFound
	}
	for _, sibling := range f.st.folders {
		if sibling.ID != id && sibling.OwnerID == ownerID && sameID(sibling.ParentID, folder.ParentID) && sibling.Name == newName {
			return uniqueViolation()
		}
	}
	folder.Name = newName
	folder.UpdatedAt = time.Now()
	f.st.folders[id] = folder
	return nil
}

func (f *fakeFolders) Delete(_ context.Context, _ sqlx.ExtContext, ownerID string, ids []int64) error {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()
	for _, id := range ids {
		if folder, ok := f.st.folders[id]; ok && folder.OwnerID == ownerID {
			delete(f.st.folders, id)
		}
	}
	return nil
}

func (f *fakeFolders) EmptyAmong(_ context.Context, _ sqlx.ExtContext, ids []int64) ([]int64, error) {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()
	var out []int64
	for _, id := range ids {
		if _, ok := f.st.folders[id]; !ok {
			continue
		}
		empty := true
		for _, folder := range f.st.folders {
			if folder.ParentID != nil && *folder.ParentID == id {
				empty = false
				break
			}
		}
		if empty {
			for _, file := range f.st.files {
				if file.FolderID != nil && *file.FolderID == id {
					empty = false
					break
				}
			}
		}
		if empty {
			out = append(out, id)
		}
	}
	return out, nil
}

// --- fakeFiles ---

type fakeFiles struct{ st *fakeStore }

func (f *fakeFiles) GetByID(_ context.Context, id int64) (*domain.File, error) {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()
	file, ok := f.st.files[id]
	if !ok {
		return nil, repository.ErrFileNotFound
	}
	return &file, nil
}

func (f *fakeFiles) Owned(_ context.Context, ownerID string, ids []int64) ([]domain.File, error) {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()
	out := make([]domain.File, 0, len(ids))
	for _, id := range ids {
		if file, ok := f.st.files[id]; ok && file.OwnerID == ownerID {
			out = append(out, file)
		}
	}
	return out, nil
}

func (f *fakeFiles) InFolders(_ context.Context, ownerID string, folderIDs []int64) ([]domain.File, error) {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()
	folders := make(map[int64]struct{}, len(folderIDs))
	for _, id := range folderIDs {
		folders[id] = struct{}{}
	}
	var out []domain.File
	for _, file := range f.st.files {
		if file.OwnerID != ownerID || file.FolderID == nil {
			continue
		}
		if _, ok := folders[*file.FolderID]; ok {
			out = append(out, file)
		}
	}
	return out, nil
}

func (f *fakeFiles) InFolder(_ context.Context, ownerID string, folderID *int64) ([]domain.File, error) {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()
	var out []domain.File
	for _, file := range f.st.files {
		if file.OwnerID == ownerID && sameID(file.FolderID, folderID) {
			out = append(out, file)
		}
	}
	return out, nil
}

func (f *fakeFiles) FilenamesIn(ctx context.Context, ownerID string, folderID *int64) (map[string]domain.File, error) {
	files, err := f.InFolder(ctx, ownerID, folderID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]domain.File, len(files))
	for _, file := range files {
		out[file.Filename] = file
	}
	return out, nil
}

func (f *fakeFiles) Insert(_ context.Context, _ sqlx.ExtContext, file *domain.File) error {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()
	for _, existing := range f.st.files {
		if existing.OwnerID == file.OwnerID && sameID(existing.FolderID, file.FolderID) && existing.Filename == file.Filename {
			return uniqueViolation()
		}
	}
	file.ID = f.st.id()
	file.CreatedAt = time.Now()
	file.UpdatedAt = time.Now()
	f.st.files[file.ID] = *file
	return nil
}

func (f *fakeFiles) MoveTo(_ context.Context, _ sqlx.ExtContext, ownerID string, id int64, folderID *int64, filename string) error {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()
	file, ok := f.st.files[id]
	if !ok || file.OwnerID != ownerID {
		return repository.ErrFileNotFound
	}
	for _, existing := range f.st.files {
		if existing.ID != id && existing.OwnerID == ownerID && sameID(existing.FolderID, folderID) && existing.Filename == filename {
			return uniqueViolation()
		}
	}
	file.FolderID = folderID
	file.Filename = filename
	file.UpdatedAt = time.Now()
	f.st.files[id] = file
	return nil
}

func (f *fakeFiles) Rename(_ context.Context, _ sqlx.ExtContext, ownerID string, id int64, newName string) error {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()
	file, ok := f.st.files[id]
	if !ok || file.OwnerID != ownerID {
		return repository.ErrFileNotFound
	}
	file.Filename = newName
	file.UpdatedAt = time.Now()
	f.st.files[id] = file
	return nil
}

func (f *fakeFiles) Delete(_ context.Context, _ sqlx.ExtContext, ownerID string, ids []int64) error {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()
	for _, id := range ids {
		if file, ok := f.st.files[id]; ok && file.OwnerID == ownerID {
			delete(f.st.files, id)
		}
	}
	return nil
}

// --- fakeLedger ---

type fakeLedger struct {
	st         *fakeStore
	used       int64
	max        int64
	reserves   []int64
	releases   []int64
	reconciles int
	expired    bool
}

func (l *fakeLedger) Get(_ context.Context, ownerID string) (*domain.OwnerQuota, error) {
	return &domain.OwnerQuota{OwnerID: ownerID, UsedStorageBytes: l.used, MaxStorageBytes: l.max}, nil
}

func (l *fakeLedger) TryReserve(_ context.Context, _ string, kind domain.QuotaKind, deltaBytes int64) error {
	if l.expired {
		return domain.ErrOwnerExpired
	}
	if deltaBytes <= 0 {
		l.reserves = append(l.reserves, deltaBytes)
		l.used -= -deltaBytes
		if l.used < 0 {
			l.used = 0
		}
		return nil
	}
	if l.max > 0 && l.used+deltaBytes > l.max {
		available := l.max - l.used
		if available < 0 {
			available = 0
		}
		return &domain.QuotaError{Kind: kind, Requested: deltaBytes, Available: available}
	}
	l.reserves = append(l.reserves, deltaBytes)
	l.used += deltaBytes
	return nil
}

func (l *fakeLedger) Release(_ context.Context, _ string, _ domain.QuotaKind, deltaBytes int64) error {
	l.releases = append(l.releases, deltaBytes)
	l.used -= deltaBytes
	if l.used < 0 {
		l.used = 0
	}
	return nil
}

func (l *fakeLedger) Reconcile(_ context.Context, ownerID string) error {
	l.reconciles++
	l.st.mu.Lock()
	defer l.st.mu.Unlock()
	var sum int64
	for _, file := range l.st.files {
		if file.OwnerID == ownerID {
			sum += file.SizeBytes
		}
	}
	l.used = sum
	return nil
}

// --- fakeTx ---

type fakeScope struct {
	committed  bool
	rolledBack bool
}

func (s *fakeScope) Q() sqlx.ExtContext { return nil }

func (s *fakeScope) Commit() error {
	s.committed = true
	return nil
}

func (s *fakeScope) Rollback() error {
	if !s.committed {
		s.rolledBack = true
	}
	return nil
}

func (s *fakeScope) WithSavepoint(_ context.Context, fn func() error) error {
	return fn()
}

type fakeTx struct {
	scopes []*fakeScope
}

func (t *fakeTx) Begin(_ context.Context) (Scope, error) {
	scope := &fakeScope{}
	t.scopes = append(t.scopes, scope)
	return scope, nil
}

// --- fakeStorage ---

type fakeStorage struct {
	mu       sync.Mutex
	objects  map[string]struct{}
	copied   [][2]string
	deleted  []string
	failSrc  map[string]struct{}
	failDel  bool
	inFlight int
	maxInUse int
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{
		objects: make(map[string]struct{}),
		failSrc: make(map[string]struct{}),
	}
}

func (s *fakeStorage) CopyObject(_ context.Context, srcKey, destKey string) error {
	s.mu.Lock()
	s.inFlight++
	if s.inFlight > s.maxInUse {
		s.maxInUse = s.inFlight
	}
	s.mu.Unlock()

	time.Sleep(time.Millisecond)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight--
	if _, fail := s.failSrc[srcKey]; fail {
		return fmt.Errorf("simulated copy failure for %s", srcKey)
	}
	s.copied = append(s.copied, [2]string{srcKey, destKey})
	s.objects[destKey] = struct{}{}
	return nil
}

func (s *fakeStorage) DeleteObject(_ context.Context, key string) error {
	return s.DeleteObjects(context.Background(), []string{key})
}

func (s *fakeStorage) DeleteObjects(_ context.Context, keys []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failDel {
		return fmt.Errorf("simulated delete failure")
	}
	for _, key := range keys {
		s.deleted = append(s.deleted, key)
		delete(s.objects, key)
	}
	return nil
}

var _ s3.Storage = (*fakeStorage)(nil)

// --- fixture ---

type fixture struct {
	st      *fakeStore
	folders *fakeFolders
	files   *fakeFiles
	ledger  *fakeLedger
	storage *fakeStorage
	tx      *fakeTx
	svc     *TransferService
}

func newFixture() *fixture {
	st := newFakeStore()
	f := &fixture{
		st:      st,
		folders: &fakeFolders{st: st},
		files:   &fakeFiles{st: st},
		ledger:  &fakeLedger{st: st},
		storage: newFakeStorage(),
		tx:      &fakeTx{},
	}
	f.svc = NewTransferService(
		f.folders, f.files, f.ledger, f.tx,
		NewObjectSynchronizer(f.storage, 4),
		s3.NewKeyMinter("test"),
	)
	return f
}

func (f *fixture) folderNamesUnder(ownerID string, parentID *int64) map[string]int64 {
	out, _ := f.folders.NamesIn(context.Background(), ownerID, parentID)
	return out
}

func (f *fixture) fileNamesIn(ownerID string, folderID *int64) map[string]domain.File {
	out, _ := f.files.FilenamesIn(context.Background(), ownerID, folderID)
	return out
}
