package errors

import (
    "fmt"
    "runtime"
    "strings"
)

type ErrorCode string

const (
    // System errors
    ErrInternal      ErrorCode = "INTERNAL_ERROR"
    ErrDatabase      ErrorCode = "DATABASE_ERROR"
    ErrRedis         ErrorCode = "REDIS_ERROR"
    ErrConfiguration ErrorCode = "CONFIG_ERROR"

    // Client protocol errors
    ErrProtocol         ErrorCode = "PROTOCOL_ERROR"
    ErrAuthFailed       ErrorCode = "AUTH_FAILED"
    ErrDuplicateLogin   ErrorCode = "DUPLICATE_LOGIN"
    ErrHeartbeatTimeout ErrorCode = "HEARTBEAT_TIMEOUT"
    ErrPeerDisconnect   ErrorCode = "PEER_DISCONNECT"
    ErrNotFound         ErrorCode = "NOT_FOUND"
    ErrNotAuthorized    ErrorCode = "NOT_AUTHORIZED"

    // Asterisk uplink errors
    ErrAmiDisconnected ErrorCode = "AMI_DISCONNECTED"
    ErrAmiTimeout      ErrorCode = "AMI_TIMEOUT"
    ErrAmiAction       ErrorCode = "AMI_ACTION_FAILED"
)

type AppError struct {
    Code    ErrorCode
    Message string
    Err     error
    Context map[string]interface{}
    Stack   string
}

func New(code ErrorCode, message string) *AppError {
    return &AppError{
        Code:    code,
        Message: message,
        Context: make(map[string]interface{}),
        Stack:   getStack(),
    }
}

func Wrap(err error, code ErrorCode, message string) *AppError {
    if err == nil {
        return nil
    }

    // If already an AppError, enhance it
    if appErr, ok := err.(*AppError); ok {
        appErr.Message = fmt.Sprintf("%s: %s", message, appErr.Message)
        return appErr
    }

    return &AppError{
        Code:    code,
        Message: message,
        Err:     err,
        Context: make(map[string]interface{}),
        Stack:   getStack(),
    }
}

func (e *AppError) Error() string {
    if e.Err != nil {
        return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
    }
    return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
    return e.Err
}

func (e *AppError) WithContext(key string, value interface{}) *AppError {
    e.Context[key] = value
    return e
}

func (e *AppError) IsRetryable() bool {
    switch e.Code {
    case ErrDatabase, ErrRedis, ErrAmiDisconnected, ErrAmiTimeout:
        return true
    default:
        return false
    }
}

func getStack() string {
    var pcs [32]uintptr
    n := runtime.Callers(3, pcs[:])

    var builder strings.Builder
    frames := runtime.CallersFrames(pcs[:n])

    for {
        frame, more := frames.Next()
        if !strings.Contains(frame.File, "runtime/") {
            builder.WriteString(fmt.Sprintf("%s:%d %s\n", frame.File, frame.Line, frame.Function))
        }
        if !more {
            break
        }
    }

    return builder.String()
}

// Reason returns the bare message of a coded error. Protocol frames
// carry the reason text verbatim, without the [CODE] prefix Error()
// renders.
func Reason(err error) string {
    if appErr, ok := err.(*AppError); ok {
        return appErr.Message
    }
    return err.Error()
}

// Error checking helpers
func Is(err error, code ErrorCode) bool {
    if err == nil {
        return false
    }

    appErr, ok := err.(*AppError)
    if !ok {
        return false
    }

    return appErr.Code == code
}
