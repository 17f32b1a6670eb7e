package exception

import "errors"

// General errors
var (
	ErrInvalidConfig = errors.New("config: invalid")
)
