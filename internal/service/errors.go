package service

import "errors"

// Common service errors
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("resource not found")
)

// Queue specific errors
var (
	ErrModeNotFound   = errors.New("game mode not found")
	ErrInvalidGroup   = errors.New("invalid group")
	ErrGroupTooLarge  = errors.New("group is larger than the mode allows")
	ErrAlreadyQueued  = errors.New("account already queued")
	ErrGroupNotQueued = errors.New("group is not queued")
)

// Match service specific errors
var (
	ErrMatchNotFound = errors.New("match not found")
	ErrLaunchFailed  = errors.New("failed to launch match")
)
