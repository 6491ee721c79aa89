package service

import "errors"

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrUnknownFlow      = errors.New("unknown verification flow")
	ErrNotVerified      = errors.New("email verification not completed")
	ErrWrongFlow        = errors.New("verification belongs to another flow")
	ErrPasswordMismatch = errors.New("passwords do not match")
	ErrWeakPassword     = errors.New("password must be at least 8 characters")
	ErrUnauthenticated  = errors.New("authentication required")
	ErrNothingToUpdate  = errors.New("nothing to update")
)

const minPasswordLength = 8

func checkPassword(password, confirm string) error {
	if len(password) < minPasswordLength {
		return ErrWeakPassword
	}
	if password != confirm {
		return ErrPasswordMismatch
	}
	return nil
}
