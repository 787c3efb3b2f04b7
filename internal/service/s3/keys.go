package s3

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// KeyMinter выпускает свежие ключи объектов: ключ привязан к владельцу,
// разбит по месяцам и заканчивается случайным uuid: коллизии исключены,
// ключ исходника никогда не переиспользуется
type KeyMinter struct {
	prefix string
}

func NewKeyMinter(prefix string) *KeyMinter {
	if prefix == "" {
		prefix = "drive"
	}
	return &KeyMinter{prefix: prefix}
}

// Mint возвращает новый ключ для файла владельца; расширение имени
// сохраняется, само имя в ключ не попадает
func (m *KeyMinter) Mint(ownerID, filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	return fmt.Sprintf("%s/%s/%s/%s%s",
		m.prefix, ownerID, time.Now().Format("200601"), uuid.New().String(), ext)
}
