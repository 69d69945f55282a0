package captain

import "errors"

// Sentinel error kinds for request handling. pkg/api maps them onto
// HTTP status codes; wrap them with fmt.Errorf("%w: ...") to carry a
// detail message.
var (
	ErrInvalid        = errors.New("invalid request")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrNotFound       = errors.New("not found")
	ErrNotImplemented = errors.New("not implemented")
)
