package domain

import "errors"

var (
	ErrValidation   = errors.New("validation error")
	ErrBadRequest   = errors.New("bad request")
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrGateway      = errors.New("gateway error")
	ErrInternal     = errors.New("internal error")
)

func IsValidation(err error) bool   { return errors.Is(err, ErrValidation) }
func IsBadRequest(err error) bool   { return errors.Is(err, ErrBadRequest) }
func IsUnauthorized(err error) bool { return errors.Is(err, ErrUnauthorized) }
func IsNotFound(err error) bool     { return errors.Is(err, ErrNotFound) }
func IsGateway(err error) bool      { return errors.Is(err, ErrGateway) }
func IsConflict(err error) bool     { return errors.Is(err, ErrConflict) }
