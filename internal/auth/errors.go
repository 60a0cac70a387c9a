package auth

import "errors"

var (
	ErrNotFound      = errors.New("auth: not found")
	ErrAlreadyExists = errors.New("auth: already exists")
	ErrInvalidInput  = errors.New("auth: invalid input")
	ErrForbidden     = errors.New("auth: forbidden")
	ErrUnauthorized  = errors.New("auth: unauthorized")
)
