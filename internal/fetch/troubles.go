package fetch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

type (
	TroubleType int

	// Trouble wraps an error raised while fetching a reference with a
	// classification that decides whether the fetch is worth retrying.
	Trouble struct {
		error
		tType TroubleType
	}

	RequestError struct {
		url      string
		httpCode int
		message  string
	}
	MalformedResponseError struct{ reason string }
	NotFoundError          struct{ reference string }
)

const (
	TRANSIENT TroubleType = iota
	NOT_FOUND
	MALFORMED
	GENERIC_FAILURE
)

func newTrouble(err error) *Trouble {
	if err == nil {
		return nil
	}

	var trouble *Trouble
	if errors.As(err, &trouble) {
		return trouble
	}

	var requestErr *RequestError
	var malformedErr *MalformedResponseError
	var notFoundErr *NotFoundError
	var netErr net.Error
	switch {
	case errors.Is(err, context.Canceled):
		return &Trouble{error: err, tType: GENERIC_FAILURE}
	case errors.As(err, &notFoundErr):
		return &Trouble{error: err, tType: NOT_FOUND}
	case errors.As(err, &malformedErr):
		return &Trouble{error: err, tType: MALFORMED}
	case errors.As(err, &requestErr):
		return &Trouble{error: err, tType: classifyStatus(requestErr.httpCode)}
	case errors.As(err, &netErr), errors.Is(err, context.DeadlineExceeded):
		return &Trouble{error: err, tType: TRANSIENT}
	}

	return &Trouble{error: err, tType: TRANSIENT}
}

func classifyStatus(code int) TroubleType {
	switch {
	case code == http.StatusNotFound || code == http.StatusGone:
		return NOT_FOUND
	case code == http.StatusTooManyRequests || code == http.StatusRequestTimeout || code >= 500:
		return TRANSIENT
	default:
		return GENERIC_FAILURE
	}
}

func (t *Trouble) Type() TroubleType { return t.tType }
func (t *Trouble) Unwrap() error     { return t.error }

// Transient reports whether another attempt at the fetch may succeed.
func (t *Trouble) Transient() bool { return t.tType == TRANSIENT }

func (t TroubleType) String() string {
	switch t {
	case TRANSIENT:
		return fmt.Sprintf("TRANSIENT[%d]", t)
	case NOT_FOUND:
		return fmt.Sprintf("NOT_FOUND[%d]", t)
	case MALFORMED:
		return fmt.Sprintf("MALFORMED[%d]", t)
	case GENERIC_FAILURE:
		return fmt.Sprintf("GENERIC_FAILURE[%d]", t)
	default:
		return fmt.Sprintf("UNKNOWN[%d]", t)
	}
}

func (err *RequestError) Error() string {
	return fmt.Sprintf("request failure (HTTP %d) for %s: %s", err.httpCode, err.url, err.message)
}
func (err *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed response: %s", err.reason)
}
func (err *NotFoundError) Error() string {
	return fmt.Sprintf("reference %s could not be found", err.reference)
}
