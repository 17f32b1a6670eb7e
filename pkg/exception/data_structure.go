package exception

import "github.com/yanun0323/errors"

var (
	ErrQueueClosed = errors.New("queue: closed")
	ErrHubClosed   = errors.New("broadcast: hub closed")
)
