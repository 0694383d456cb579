package osal

import "errors"

var (
	ErrInvalidInit    = errors.New("invalid init descriptor")
	ErrAlreadyStarted = errors.New("task already started")
	ErrNilBody        = errors.New("task has no body")
	ErrJoinTimeout    = errors.New("task did not stop in time")

	ErrTimeout       = errors.New("operation timed out")
	ErrNilHandle     = errors.New("nil handle")
	ErrDeleted       = errors.New("handle deleted")
	ErrInvalidLength = errors.New("queue length must be >= 1")

	ErrNilCallback     = errors.New("timer callback is nil")
	ErrInvalidPeriod   = errors.New("timer period must be > 0")
	ErrServiceStopped  = errors.New("timer service not running")
	ErrDeleteUnconfirm = errors.New("timer deletion not confirmed")
)
