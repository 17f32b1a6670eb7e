package exception

import "github.com/yanun0323/errors"

var (
	ErrDialFailed         = errors.New("connection: dial failed")
	ErrReconnectRequested = errors.New("connection: venue requested reconnect")
)
