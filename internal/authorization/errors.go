package authorization

import "errors"

var (
	ErrForbidden        = errors.New("forbidden")
	ErrInvalidActor     = errors.New("invalid_actor")
	ErrInvalidOrganizer = errors.New("invalid_organizer")
	ErrInvalidObject    = errors.New("invalid_object")
	ErrInvalidAction    = errors.New("invalid_action")
)
