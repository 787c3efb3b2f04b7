package service

import (
	"context"
	"log"
	"sync"

	"stratodrive/internal/service/s3"
)

const defaultCopyConcurrency = 8

// CopyTask описывает одно серверное копирование блоба; Tag связывает результат
// с исходной записью каталога
type CopyTask struct {
	Tag     int64
	SrcKey  string
	DestKey string
	Size    int64
}

type CopyOutcome struct {
	Task CopyTask
	Err  error
}

// ObjectSynchronizer выполняет пакетные операции с удаленным хранилищем
// с ограниченным числом одновременных запросов
type ObjectSynchronizer struct {
	storage     s3.Storage
	concurrency int
}

func NewObjectSynchronizer(storage s3.Storage, concurrency int) *ObjectSynchronizer {
	if concurrency <= 0 {
		concurrency = defaultCopyConcurrency
	}
	return &ObjectSynchronizer{storage: storage, concurrency: concurrency}
}

// CopyMany копирует все задачи пулом воркеров и возвращает поэлементные
// результаты в исходном порядке. Воркер блокируется только на своем
// вызове; просроченный или сорвавшийся вызов: отказ этого элемента,
// а не всей пачки.
func (s *ObjectSynchronizer) CopyMany(ctx context.Context, tasks []CopyTask) []CopyOutcome {
	outcomes := make([]CopyOutcome, len(tasks))

	var wg sync.WaitGroup
	semaphore := make(chan struct{}, s.concurrency)

	for i, task := range tasks {
		wg.Add(1)
		semaphore <- struct{}{} // Ограничиваем количество параллельных запросов

		go func(i int, task CopyTask) {
			defer wg.Done()
			defer func() { <-semaphore }()

			err := s.storage.CopyObject(ctx, task.SrcKey, task.DestKey)
			outcomes[i] = CopyOutcome{Task: task, Err: err}
			if err != nil {
				log.Printf("[ObjectSync] Copy failed for %s -> %s: %v", task.SrcKey, task.DestKey, err)
			}
		}(i, task)
	}

	wg.Wait()
	return outcomes
}

// DeleteMany удаляет объекты по ключам. Всегда best-effort: источником
// истины служит каталог, осиротевший блоб менее вреден, чем
// заблокированная операция, поэтому ошибки логируются и не поднимаются.
func (s *ObjectSynchronizer) DeleteMany(ctx context.Context, keys []string) {
	if len(keys) == 0 {
		return
	}
	if err := s.storage.DeleteObjects(ctx, keys); err != nil {
		log.Printf("[ObjectSync] Best-effort delete of %d objects failed: %v", len(keys), err)
	}
}
