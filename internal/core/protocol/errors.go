package protocol

import (
	"errors"
	"time"
)

var (
	ErrClosed            = errors.New("transport is closed")
	ErrPeerNotFound      = errors.New("peer not found")
	ErrNotConnected      = errors.New("not connected")
	ErrHandshakeFailed   = errors.New("handshake failed")
	ErrMessageTooLarge   = errors.New("message too large")
	ErrInvalidMessage    = errors.New("invalid message")
	ErrEmptyPayload      = errors.New("empty payload")
	ErrUnknownMethod     = errors.New("unknown method")
	ErrDuplicateHandler  = errors.New("handler already registered")
	ErrInboxFull         = errors.New("inbox is full")
	ErrUnexpectedMessage = errors.New("unexpected message kind")
)

// ErrorCode classifies protocol failures for logging.
type ErrorCode int

const (
	ErrorCodeUnknown ErrorCode = iota
	ErrorCodeConnectionClosed
	ErrorCodeConnectionLost
	ErrorCodeHandshakeFailed
	ErrorCodeSerializationFailed
	ErrorCodeDeserializationFailed
	ErrorCodeMessageTooLarge
	ErrorCodeUnknownMethod
)

func (c ErrorCode) String() string {
	switch c {
	case ErrorCodeConnectionClosed:
		return "connection_closed"
	case ErrorCodeConnectionLost:
		return "connection_lost"
	case ErrorCodeHandshakeFailed:
		return "handshake_failed"
	case ErrorCodeSerializationFailed:
		return "serialization_failed"
	case ErrorCodeDeserializationFailed:
		return "deserialization_failed"
	case ErrorCodeMessageTooLarge:
		return "message_too_large"
	case ErrorCodeUnknownMethod:
		return "unknown_method"
	default:
		return "unknown"
	}
}

// Error represents a protocol-specific error with additional context
type Error struct {
	Code      ErrorCode
	Message   string
	Cause     error
	Timestamp int64
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// NewProtocolError creates a new protocol error
func NewProtocolError(code ErrorCode, message string, cause error) *Error {
	return &Error{
		Code:      code,
		Message:   message,
		Cause:     cause,
		Timestamp: time.Now().Unix(),
	}
}

// IsFatal reports whether the link that produced err should be torn down.
func (e *Error) IsFatal() bool {
	switch e.Code {
	case ErrorCodeConnectionClosed, ErrorCodeConnectionLost, ErrorCodeHandshakeFailed:
		return true
	default:
		return false
	}
}

var errorCodeMap = map[error]ErrorCode{
	ErrClosed:          ErrorCodeConnectionClosed,
	ErrNotConnected:    ErrorCodeConnectionLost,
	ErrHandshakeFailed: ErrorCodeHandshakeFailed,
	ErrMessageTooLarge: ErrorCodeMessageTooLarge,
	ErrUnknownMethod:   ErrorCodeUnknownMethod,
}

// GetErrorCode extracts the error code from err, looking through wrapping.
func GetErrorCode(err error) ErrorCode {
	if err == nil {
		return ErrorCodeUnknown
	}
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Code
	}
	for sentinel, code := range errorCodeMap {
		if errors.Is(err, sentinel) {
			return code
		}
	}
	return ErrorCodeUnknown
}
