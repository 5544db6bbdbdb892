package repository

import "errors"

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrEmailAlreadyExists   = errors.New("email already exists")
	ErrResetTokenNotFound   = errors.New("reset token not found or expired")
	ErrNoFieldsToUpdate     = errors.New("no user fields to update")
	ErrConflictingResetSpec = errors.New("reset token cannot be set and cleared in one update")
)
