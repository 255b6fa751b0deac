// Package apperr defines the error kinds shared by the services and the HTTP layer.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrAuthenticationFailed = errors.New("could not validate credentials")
	ErrInactiveUser         = errors.New("inactive user")
	ErrPermissionDenied     = errors.New("not enough permissions")
	ErrNotFound             = errors.New("not found")
	ErrConflict             = errors.New("resource was modified concurrently")
)

// ValidationError is a client input problem. Msg is safe to return to the caller.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func Validation(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// NotFoundError names the missing resource. Ownership mismatches use it too.
type NotFoundError struct {
	What string
}

func (e *NotFoundError) Error() string { return e.What + " not found" }

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

func NotFound(what string) error { return &NotFoundError{What: what} }

const maxUpstreamBody = 512

// UpstreamError is returned when the workflow engine is unreachable or answers non-2xx.
// Status is zero for transport failures.
type UpstreamError struct {
	Op     string
	Status int
	Body   string
	Err    error
}

func (e *UpstreamError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	msg := fmt.Sprintf("%s: status %d", e.Op, e.Status)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// NewUpstream builds an UpstreamError, truncating the upstream body.
func NewUpstream(op string, status int, body []byte, err error) *UpstreamError {
	b := string(body)
	if len(b) > maxUpstreamBody {
		b = b[:maxUpstreamBody] + "..."
	}
	return &UpstreamError{Op: op, Status: status, Body: b, Err: err}
}

// OperationError marks a failed multi-step operation. Msg is client-visible; the
// upstream cause is appended when there is one.
type OperationError struct {
	Msg string
	Err error
}

func (e *OperationError) Error() string { return e.Msg + ": " + e.Err.Error() }

func (e *OperationError) Unwrap() error { return e.Err }

func Operation(msg string, err error) error {
	if err == nil {
		return nil
	}
	return &OperationError{Msg: msg, Err: err}
}

// IsUpstreamStatus reports whether err carries an upstream response with the given status.
func IsUpstreamStatus(err error, status int) bool {
	var ue *UpstreamError
	return errors.As(err, &ue) && ue.Status == status
}

// HTTPStatus maps an error to the status code returned to clients.
func HTTPStatus(err error) int {
	var ve *ValidationError
	var ue *UpstreamError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrAuthenticationFailed):
		return http.StatusUnauthorized
	case errors.Is(err, ErrInactiveUser):
		return http.StatusBadRequest
	case errors.Is(err, ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.As(err, &ue):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// Message is the client-visible text for err. Internal errors are not echoed.
func Message(err error) string {
	var ve *ValidationError
	var nf *NotFoundError
	var ue *UpstreamError
	var oe *OperationError
	switch {
	case errors.Is(err, ErrAuthenticationFailed):
		return "Could not validate credentials"
	case errors.Is(err, ErrInactiveUser):
		return "Inactive user"
	case errors.Is(err, ErrPermissionDenied):
		return "Not enough permissions"
	case errors.As(err, &nf):
		return nf.Error()
	case errors.Is(err, ErrNotFound):
		return "Not found"
	case errors.Is(err, ErrConflict):
		return err.Error()
	case errors.As(err, &ve):
		return ve.Msg
	case errors.As(err, &oe):
		if errors.As(oe.Err, &ue) {
			return oe.Msg + ": " + ue.Error()
		}
		return oe.Msg
	case errors.As(err, &ue):
		return "Error communicating with n8n: " + ue.Error()
	default:
		return "internal server error"
	}
}
