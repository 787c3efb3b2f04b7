package service

import "errors"

// Определение пользовательских ошибок. Ошибки каталога и квоты
// авторитетны и прерывают операцию; сбои очистки блобов логируются
// и не эскалируются.
var (
	ErrConflictingPolicy       = errors.New("overwrite and skipIfExist cannot both be set")
	ErrInvalidRequest          = errors.New("invalid request")
	ErrAccessDenied            = errors.New("access denied")
	ErrNotFound                = errors.New("item not found or not owned")
	ErrCyclicMove              = errors.New("cannot move a folder into itself or its own subtree")
	ErrNameTaken               = errors.New("name already taken at this level")
	ErrNameResolutionExhausted = errors.New("unable to resolve a unique name after bounded retries")
	ErrRemoteSyncFailure       = errors.New("remote object synchronization failed")
)
