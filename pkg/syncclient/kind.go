package syncclient

import (
	"errors"
	"net/http"
)

// Kind classifies a failed mutation for presentation.
type Kind int

// Failure kinds in rough order of actionability. Transient covers network
// errors, timeouts and 5xx responses: the server-side outcome is unknown and
// the view must be refreshed before a retry.
const (
	KindTransient Kind = iota
	KindValidation
	KindAuth
	KindNotFound
	KindConflict
)

// String returns a human readable kind label.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuth:
		return "auth"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	default:
		return "transient"
	}
}

// Classify maps an error returned by Client calls onto a Kind.
func Classify(err error) Kind {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return KindTransient
	}
	switch apiErr.Status {
	case http.StatusBadRequest:
		return KindValidation
	case http.StatusUnauthorized, http.StatusForbidden:
		return KindAuth
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusConflict, http.StatusPreconditionFailed:
		return KindConflict
	default:
		return KindTransient
	}
}
