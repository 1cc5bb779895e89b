package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrLockHeld      = errors.New("lock already held")

	ErrPositionNotFound            = fmt.Errorf("position %w", ErrNotFound)
	ErrPlanNotFound                = fmt.Errorf("plan %w", ErrNotFound)
	ErrInsufficientQuantity        = errors.New("insufficient quantity")
	ErrInvalidTriggerConfiguration = errors.New("invalid trigger configuration")
	ErrInvalidTrade                = errors.New("invalid trade parameters")
	ErrPlanNotActive               = errors.New("plan is not active")
)
