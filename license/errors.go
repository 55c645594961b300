package license

import "errors"

var (
	// ErrNotLicenseOutput indicates the script is not a license-header
	// OP_RETURN output.
	ErrNotLicenseOutput = errors.New("license: not a license output")

	// ErrMalformedOutput indicates a license-header output whose payload
	// does not fit the wire layout.
	ErrMalformedOutput = errors.New("license: malformed license output")

	// ErrNilParam indicates a required parameter is nil.
	ErrNilParam = errors.New("license: required parameter is nil")
)
