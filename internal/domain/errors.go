package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrOwnerExpired означает, что аккаунт владельца истек; операция отклоняется до
	// любых обращений к удаленному хранилищу
	ErrOwnerExpired = errors.New("owner account expired")

	// ErrQuotaExceeded сигнализирует превышение квоты; детали несет
	// QuotaError
	ErrQuotaExceeded = errors.New("quota exceeded")
)

// QuotaError сообщает, сколько байт запрошено и сколько доступно
type QuotaError struct {
	Kind      QuotaKind
	Requested int64
	Available int64
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("%s quota exceeded: requested %d bytes, available %d bytes",
		e.Kind, e.Requested, e.Available)
}

func (e *QuotaError) Unwrap() error {
	return ErrQuotaExceeded
}
