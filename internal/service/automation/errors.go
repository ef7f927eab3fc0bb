package automation

import "errors"

// Sentinel errors for the automation service layer.
var (
	ErrNotFound             = errors.New("automation not found")
	ErrValidation           = errors.New("invalid automation")
	ErrInactive             = errors.New("automation is paused")
	ErrInvalidFilter        = errors.New("invalid filter configuration")
	ErrActionNotImplemented = errors.New("action type is not implemented")
	ErrExecutionInProgress  = errors.New("an execution is already in progress for this automation")
	ErrExecutionNotFound    = errors.New("execution not found")
)
