package clinic

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrUserExists    = errors.New("user already exists")
	ErrSlotTaken     = errors.New("this time slot is already booked")
	ErrInvalidInput  = errors.New("invalid input")
	ErrMissingFields = errors.New("missing compulsory fields for new user")
)
