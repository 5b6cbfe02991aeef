package space

import "errors"

var (
	// ErrNoSpace indicates that a space has no room left for the request.
	ErrNoSpace = errors.New("space: no space")

	// ErrBadAddress indicates an address that does not name an object of the space.
	ErrBadAddress = errors.New("space: bad object address")

	// ErrNeedSmall indicates a request for zero bytes.
	ErrNeedSmall = errors.New("space: allocation size must be positive")
)
