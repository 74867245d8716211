package quickbuildapi

import (
	"fmt"
)

// ErrorKind classifies a failure of the QuickBuild api
type ErrorKind int

const (
	// GenericAPIError covers every failure without a more specific kind
	GenericAPIError ErrorKind = iota
	AuthenticationFailed
	ResourceNotFound
	ServerError
	ServiceUnavailable
)

func (k ErrorKind) String() string {
	switch k {
	case AuthenticationFailed:
		return "AuthenticationFailed"
	case ResourceNotFound:
		return "ResourceNotFound"
	case ServerError:
		return "ServerError"
	case ServiceUnavailable:
		return "ServiceUnavailable"
	default:
		return "GenericApiError"
	}
}

const (
	CodeAuthenticationFailed  = "AUTHENTICATION_FAILED"
	CodeAuthenticationError   = "AUTHENTICATION_ERROR"
	CodeResourceNotFound      = "RESOURCE_NOT_FOUND"
	CodeServerError           = "QUICKBUILD_SERVER_ERROR"
	CodeUnavailable           = "QUICKBUILD_UNAVAILABLE"
	CodeMaxRetriesExceeded    = "MAX_RETRIES_EXCEEDED"
	CodeUnknownError          = "UNKNOWN_ERROR"
	CodeInvalidResponse       = "INVALID_RESPONSE"
	CodeRequestCancelled      = "REQUEST_CANCELLED"
	CodeRequestFailed         = "REQUEST_FAILED"
	httpStatusCodePrefix      = "HTTP_"
	defaultUnavailableMessage = "Cannot connect to QuickBuild server"
)

var (
	ErrAuthenticationFailed = &Error{Kind: AuthenticationFailed}
	ErrResourceNotFound     = &Error{Kind: ResourceNotFound}
	ErrServerError          = &Error{Kind: ServerError}
	ErrServiceUnavailable   = &Error{Kind: ServiceUnavailable}
	ErrGenericAPIError      = &Error{Kind: GenericAPIError}
)

// Error is returned by every Client operation that fails
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
	Details map[string]interface{}

	cause error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Is matches any *Error of the same kind, so sentinels like ErrResourceNotFound work with errors.Is
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

func newError(kind ErrorKind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func wrapError(kind ErrorKind, code string, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...), cause: cause}
}

// errorCodeForStatus maps an http status code to the error code reported for it
func errorCodeForStatus(statusCode int) string {
	switch {
	case statusCode == 401:
		return CodeAuthenticationFailed
	case statusCode == 404:
		return CodeResourceNotFound
	case statusCode >= 500:
		return CodeServerError
	case statusCode >= 400:
		return fmt.Sprintf("%v%v", httpStatusCodePrefix, statusCode)
	default:
		return CodeUnknownError
	}
}
