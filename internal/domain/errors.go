package domain

import "errors"

var (
	// ErrNoSARData means no usable before/after scene pair was found and the
	// SAR fallback policy does not allow substitution.
	ErrNoSARData = errors.New("no usable SAR scene pair")
	// ErrNoElevation means the elevation mosaic failed and missing elevation
	// is not allowed.
	ErrNoElevation = errors.New("elevation unavailable")
)
