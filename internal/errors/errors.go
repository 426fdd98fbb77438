package errors

import "fmt"

// Kind classifies a storage failure so callers can decide how to surface it.
type Kind string

const (
	KindConnection    Kind = "connection"
	KindOperation     Kind = "operation"
	KindNotFound      Kind = "not_found"
	KindSerialization Kind = "serialization"
)

type AppError struct {
	Kind    Kind
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is lets errors.Is match the package-level sentinels by code.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func New(kind Kind, code, message string, cause ...error) *AppError {
	var c error
	if len(cause) > 0 {
		c = cause[0]
	}
	return &AppError{
		Kind:    kind,
		Code:    code,
		Message: message,
		Cause:   c,
	}
}

var (
	ErrNotFound      = &AppError{Kind: KindNotFound, Code: "STORE_001", Message: "record not found"}
	ErrCorruptRecord = &AppError{Kind: KindSerialization, Code: "STORE_002", Message: "record could not be decoded"}
	ErrConnection    = &AppError{Kind: KindConnection, Code: "STORE_003", Message: "store unreachable"}
	ErrTxnRetries    = &AppError{Kind: KindOperation, Code: "STORE_004", Message: "transaction retries exhausted"}

	ErrInvalidCredentials = &AppError{Kind: KindOperation, Code: "AUTH_001", Message: "invalid username or password"}
	ErrEmailTaken         = &AppError{Kind: KindOperation, Code: "AUTH_002", Message: "email already registered"}
	ErrAmbiguousToken     = &AppError{Kind: KindOperation, Code: "AUTH_003", Message: "token matches more than one record"}
	ErrTokenNotFound      = &AppError{Kind: KindNotFound, Code: "AUTH_004", Message: "token not found or expired"}

	ErrBadRequest = &AppError{Kind: KindOperation, Code: "GEN_001", Message: "bad request"}
	ErrInternal   = &AppError{Kind: KindOperation, Code: "GEN_002", Message: "internal error"}
)

// NotFound wraps a cause as a not-found error for a named entity.
func NotFound(entity string, cause ...error) *AppError {
	var c error
	if len(cause) > 0 {
		c = cause[0]
	}
	return &AppError{Kind: KindNotFound, Code: "STORE_001", Message: entity + " not found", Cause: c}
}

// Operation wraps a cause as an operational store failure.
func Operation(message string, cause ...error) *AppError {
	var c error
	if len(cause) > 0 {
		c = cause[0]
	}
	return &AppError{Kind: KindOperation, Code: "STORE_005", Message: message, Cause: c}
}

// Serialization marks a value that was present but undecodable.
func Serialization(message string, cause error) *AppError {
	return &AppError{Kind: KindSerialization, Code: "STORE_002", Message: message, Cause: cause}
}

func KindOf(err error) Kind {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Kind
	}
	return KindOperation
}

func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}

func GetCode(err error) string {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code
	}
	return "UNKNOWN"
}

func Wrap(err error, kind Kind, code, message string) *AppError {
	return &AppError{
		Kind:    kind,
		Code:    code,
		Message: message,
		Cause:   err,
	}
}
