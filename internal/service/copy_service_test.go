package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stratodrive/internal/domain"
)

func TestCopyMintsFreshKey(t *testing.T) {
	f := newFixture()

	fileID := f.st.addFile(owner, nil, "a.txt", "k/orig", 100)
	tID := f.st.addFolder(owner, nil, "T")

	result, err := f.svc.Copy(context.Background(), owner, domain.TransferRequest{
		TargetFolderID: &tID,
		FileIDs:        []int64{fileID},
	})
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, 1, result.Copied.Files)

	copied := f.fileNamesIn(owner, &tID)["a.txt"]
	assert.NotEmpty(t, copied.ObjectKey)
	assert.NotEqual(t, "k/orig", copied.ObjectKey, "копия не должна делить ключ с исходником")
	assert.Equal(t, int64(100), copied.SizeBytes)

	// Блоб действительно скопирован на стороне хранилища
	require.Len(t, f.storage.copied, 1)
	assert.Equal(t, "k/orig", f.storage.copied[0][0])
	assert.Equal(t, copied.ObjectKey, f.storage.copied[0][1])

	// Исходная запись не тронута
	assert.Contains(t, f.fileNamesIn(owner, nil), "a.txt")
}

func TestCopyRenamesConflictingFolder(t *testing.T) {
	f := newFixture()

	// Корень: папки A (с x.txt), B и цель T, уже содержащая свою A
	aID := f.st.addFolder(owner, nil, "A")
	bID := f.st.addFolder(owner, nil, "B")
	tID := f.st.addFolder(owner, nil, "T")
	f.st.addFolder(owner, &tID, "A")
	f.st.addFile(owner, &aID, "x.txt", "k/x", 10)

	result, err := f.svc.Copy(context.Background(), owner, domain.TransferRequest{
		TargetFolderID: &tID,
		FolderIDs:      []int64{aID, bID},
		Policy:         domain.PolicyRename,
	})
	require.NoError(t, err)

	assert.True(t, result.Success)
	require.NotNil(t, result.Copied)
	assert.Equal(t, 2, result.Copied.Folders)
	assert.Equal(t, 1, result.Copied.Files)

	inT := f.folderNamesUnder(owner, &tID)
	assert.Contains(t, inT, "A")
	assert.Contains(t, inT, "A (2)")
	assert.Contains(t, inT, "B")

	// Копия файла лежит в переименованном зеркале под свежим ключом
	renamedID := inT["A (2)"]
	copied := f.fileNamesIn(owner, &renamedID)["x.txt"]
	assert.NotEmpty(t, copied.ObjectKey)
	assert.NotEqual(t, "k/x", copied.ObjectKey)

	// Исходные A и B на месте вместе с исходным файлом
	inRoot := f.folderNamesUnder(owner, nil)
	assert.Contains(t, inRoot, "A")
	assert.Contains(t, inRoot, "B")
	assert.Equal(t, "k/x", f.fileNamesIn(owner, &aID)["x.txt"].ObjectKey)
}

func TestCopyReservesQuotaBeforeRemoteCalls(t *testing.T) {
	f := newFixture()
	f.ledger.max = 50

	fileID := f.st.addFile(owner, nil, "big.bin", "k/big", 100)
	tID := f.st.addFolder(owner, nil, "T")

	_, err := f.svc.Copy(context.Background(), owner, domain.TransferRequest{
		TargetFolderID: &tID,
		FileIDs:        []int64{fileID},
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrQuotaExceeded)
	var quotaErr *domain.QuotaError
	require.ErrorAs(t, err, &quotaErr)
	assert.Equal(t, int64(100), quotaErr.Requested)
	assert.Equal(t, int64(50), quotaErr.Available)

	// Отказ квоты не породил ни одного обращения к хранилищу
	assert.Empty(t, f.storage.copied)
	assert.Empty(t, f.storage.deleted)
}

func TestCopyExpiredOwnerRejected(t *testing.T) {
	f := newFixture()
	f.ledger.expired = true

	fileID := f.st.addFile(owner, nil, "a.txt", "k/a", 10)
	tID := f.st.addFolder(owner, nil, "T")

	_, err := f.svc.Copy(context.Background(), owner, domain.TransferRequest{
		TargetFolderID: &tID,
		FileIDs:        []int64{fileID},
	})
	assert.ErrorIs(t, err, domain.ErrOwnerExpired)
	assert.Empty(t, f.storage.copied)
}

func TestCopyExpiredOwnerRejectedOnNegativeNetDelta(t *testing.T) {
	f := newFixture()
	f.ledger.expired = true

	// Overwrite меньшим файлом: чистая дельта отрицательная, но возврат
	// байт не дает истекшему аккаунту права на операцию
	srcID := f.st.addFolder(owner, nil, "src")
	tID := f.st.addFolder(owner, nil, "T")
	copyID := f.st.addFile(owner, &srcID, "a.txt", "k/new", 40)
	f.st.addFile(owner, &tID, "a.txt", "k/old", 100)

	_, err := f.svc.Copy(context.Background(), owner, domain.TransferRequest{
		TargetFolderID: &tID,
		FileIDs:        []int64{copyID},
		Policy:         domain.PolicyOverwrite,
	})
	assert.ErrorIs(t, err, domain.ErrOwnerExpired)

	// Отказ случился до единого обращения к хранилищу
	assert.Empty(t, f.storage.copied)
	assert.Empty(t, f.storage.deleted)
	assert.Equal(t, "k/old", f.fileNamesIn(owner, &tID)["a.txt"].ObjectKey)
}

func TestCopyPartialFailureCompensates(t *testing.T) {
	f := newFixture()

	okID := f.st.addFile(owner, nil, "ok.txt", "k/ok", 10)
	badID := f.st.addFile(owner, nil, "bad.txt", "k/bad", 20)
	f.storage.failSrc["k/bad"] = struct{}{}
	tID := f.st.addFolder(owner, nil, "T")

	before := len(f.st.files)
	result, err := f.svc.Copy(context.Background(), owner, domain.TransferRequest{
		TargetFolderID: &tID,
		FileIDs:        []int64{okID, badID},
	})
	require.NoError(t, err)

	// Все или ничего: частичный сбой откатывает запрос целиком
	assert.False(t, result.Success)
	assert.Equal(t, 1, result.Failed)
	assert.Len(t, f.st.files, before, "каталог не должен измениться")
	assert.Empty(t, f.fileNamesIn(owner, &tID))

	// Успевший скопироваться объект компенсаторно удален
	require.Len(t, f.storage.copied, 1)
	assert.Contains(t, f.storage.deleted, f.storage.copied[0][1])

	// Резерв возвращен, счетчик сведен к каталогу
	require.NotEmpty(t, f.ledger.releases)
	assert.Equal(t, int64(30), f.ledger.releases[0])
	assert.GreaterOrEqual(t, f.ledger.reconciles, 1)
}

func TestCopyOverwriteReservesNetDelta(t *testing.T) {
	f := newFixture()

	srcID := f.st.addFolder(owner, nil, "src")
	tID := f.st.addFolder(owner, nil, "T")
	copyID := f.st.addFile(owner, &srcID, "a.txt", "k/new", 40)
	f.st.addFile(owner, &tID, "a.txt", "k/old", 100)

	result, err := f.svc.Copy(context.Background(), owner, domain.TransferRequest{
		TargetFolderID: &tID,
		FileIDs:        []int64{copyID},
		Policy:         domain.PolicyOverwrite,
	})
	require.NoError(t, err)
	assert.True(t, result.Success)

	// Чистая дельта 40-100 = -60: резерв отрицательный, лимит не мешает
	require.NotEmpty(t, f.ledger.reserves)
	assert.Equal(t, int64(-60), f.ledger.reserves[0])

	// Старый блоб выселен после фиксации
	assert.Contains(t, f.storage.deleted, "k/old")
	got := f.fileNamesIn(owner, &tID)
	require.Len(t, got, 1)
	assert.Equal(t, int64(40), got["a.txt"].SizeBytes)
}

func TestCopySubtreeMirrorsStructure(t *testing.T) {
	f := newFixture()

	aID := f.st.addFolder(owner, nil, "A")
	subID := f.st.addFolder(owner, &aID, "sub")
	f.st.addFile(owner, &aID, "top.txt", "k/top", 1)
	f.st.addFile(owner, &subID, "deep.txt", "k/deep", 2)
	tID := f.st.addFolder(owner, nil, "T")

	result, err := f.svc.Copy(context.Background(), owner, domain.TransferRequest{
		TargetFolderID: &tID,
		FolderIDs:      []int64{aID},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Copied.Folders)
	assert.Equal(t, 2, result.Copied.Files)

	mirrorA := f.folderNamesUnder(owner, &tID)["A"]
	require.NotZero(t, mirrorA)
	mirrorSub := f.folderNamesUnder(owner, &mirrorA)["sub"]
	require.NotZero(t, mirrorSub)
	assert.Contains(t, f.fileNamesIn(owner, &mirrorA), "top.txt")
	assert.Contains(t, f.fileNamesIn(owner, &mirrorSub), "deep.txt")

	// Исходное дерево на месте
	assert.Contains(t, f.fileNamesIn(owner, &aID), "top.txt")
	assert.Contains(t, f.fileNamesIn(owner, &subID), "deep.txt")
}

func TestCopyIntoSameFolderDuplicates(t *testing.T) {
	f := newFixture()

	tID := f.st.addFolder(owner, nil, "T")
	fileID := f.st.addFile(owner, &tID, "a.txt", "k/a", 10)

	result, err := f.svc.Copy(context.Background(), owner, domain.TransferRequest{
		TargetFolderID: &tID,
		FileIDs:        []int64{fileID},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Copied.Files)
	got := f.fileNamesIn(owner, &tID)
	assert.Contains(t, got, "a.txt")
	assert.Contains(t, got, "a (2).txt")
	assert.NotEqual(t, got["a.txt"].ObjectKey, got["a (2).txt"].ObjectKey)
}

func TestCopyIntoOwnSubtreeUsesSnapshot(t *testing.T) {
	f := newFixture()

	aID := f.st.addFolder(owner, nil, "A")
	subID := f.st.addFolder(owner, &aID, "sub")
	f.st.addFile(owner, &aID, "x.txt", "k/x", 1)

	// Копирование A внутрь A/sub разрешено: план снят до вставок,
	// поэтому копия не копирует сама себя
	result, err := f.svc.Copy(context.Background(), owner, domain.TransferRequest{
		TargetFolderID: &subID,
		FolderIDs:      []int64{aID},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Copied.Files)
	mirrorA := f.folderNamesUnder(owner, &subID)["A"]
	require.NotZero(t, mirrorA)
	assert.Contains(t, f.fileNamesIn(owner, &mirrorA), "x.txt")
}

func TestCopySkipPolicy(t *testing.T) {
	f := newFixture()

	srcID := f.st.addFolder(owner, nil, "src")
	tID := f.st.addFolder(owner, nil, "T")
	copyID := f.st.addFile(owner, &srcID, "a.txt", "k/src-a", 10)
	f.st.addFile(owner, &tID, "a.txt", "k/t-a", 5)

	result, err := f.svc.Copy(context.Background(), owner, domain.TransferRequest{
		TargetFolderID: &tID,
		FileIDs:        []int64{copyID},
		Policy:         domain.PolicySkip,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 0, result.Copied.Files)
	assert.Empty(t, f.storage.copied)
	assert.Equal(t, "k/t-a", f.fileNamesIn(owner, &tID)["a.txt"].ObjectKey)
}
