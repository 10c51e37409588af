package errors

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflicting update")
	ErrInvalidOrder       = errors.New("invalid order")
	ErrInvalidTransition  = errors.New("invalid order transition")
	ErrGateway            = errors.New("escrow gateway error")
	ErrGatewayTimeout     = errors.New("escrow gateway timeout")
	ErrUnknownMessageType = errors.New("unknown message type")
	ErrAlreadyProcessed   = errors.New("message already processed")
	ErrUnauthorized       = errors.New("unauthorized")
)
