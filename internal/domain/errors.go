package domain

import "errors"

var (
	// ErrNotFound indicates the requested entity was not found.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists indicates a uniqueness constraint was violated.
	ErrAlreadyExists = errors.New("already exists")
	// ErrInvalidInput indicates a request carried values the operation rejects.
	ErrInvalidInput = errors.New("invalid input")
	// ErrForbidden indicates the caller's role does not allow the operation.
	ErrForbidden = errors.New("forbidden")
	// ErrRoomClosed is returned for writes against a closed chat room.
	ErrRoomClosed = errors.New("chat room is closed")
	// ErrEmptyCart is returned when checking out a cart with no lines.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrInsufficientStock is returned when a line asks for more than is available.
	ErrInsufficientStock = errors.New("insufficient stock")
)
