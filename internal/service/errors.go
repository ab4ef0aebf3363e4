package service

import "errors"

var (
	// ErrAdminLimitReached is returned when a city already has the
	// configured number of admins.
	ErrAdminLimitReached = errors.New("admin limit reached for city")
	// ErrInvalidStatus is returned for a status outside the lifecycle.
	ErrInvalidStatus = errors.New("invalid report status")
	// ErrInvalidCoordinates is returned for latitude/longitude values
	// that are not decimals in range.
	ErrInvalidCoordinates = errors.New("invalid coordinates")
)
