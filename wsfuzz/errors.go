package wsfuzz

import "errors"

var (
	// ErrConfig marks malformed user configuration (proxy, target, headers).
	ErrConfig = errors.New("invalid configuration")
	// ErrIO marks an unreadable payload or message file.
	ErrIO = errors.New("cannot read input")
	// ErrConnection marks a failed WebSocket handshake for one attempt.
	ErrConnection = errors.New("connection failed")
	// ErrSend marks a failed frame write for one attempt.
	ErrSend = errors.New("send failed")
	// ErrTimeout is returned by Receive when no frame arrived in time.
	ErrTimeout = errors.New("receive timeout")
)
