// storage.go
package s3

import (
	"context"
)

// Storage определяет интерфейс удаленного объектного хранилища.
// Все операции серверные: байты объектов не проходят через процесс.
type Storage interface {
	// CopyObject копирует объект внутри хранилища под новый ключ
	CopyObject(ctx context.Context, srcKey, destKey string) error
	// DeleteObject удаляет один объект; отсутствие объекта не ошибка
	DeleteObject(ctx context.Context, key string) error
	// DeleteObjects удаляет пакет объектов, нарезая запросы по лимиту API
	DeleteObjects(ctx context.Context, keys []string) error
}
