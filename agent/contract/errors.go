package contract

import "errors"

var (
	ErrValidation      = errors.New("validation failed")
	ErrSchemaViolation = errors.New("model response violates schema")
	ErrModelInvoke     = errors.New("model invoke failed")
	ErrTimeout         = errors.New("call timed out")
	ErrConnection      = errors.New("connection failed")
	ErrNotFound        = errors.New("not found")
)
