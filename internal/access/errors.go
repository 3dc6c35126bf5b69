package access

import "errors"

// Sentinel kinds for gateway errors.
var (
	ErrInvalidToken  = errors.New("expired or invalid share token")
	ErrNotAuthorized = errors.New("not authorized")
	ErrTransient     = errors.New("transient upstream error")
	ErrNoProfile     = errors.New("no profile available")
)
