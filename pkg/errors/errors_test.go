package errors

import (
    "fmt"
    "testing"

    "github.com/stretchr/testify/assert"
)

func TestReasonStripsCodePrefix(t *testing.T) {
    err := New(ErrDuplicateLogin, "same user login")

    assert.Equal(t, "[DUPLICATE_LOGIN] same user login", err.Error())
    assert.Equal(t, "same user login", Reason(err))
}

func TestReasonPassesPlainErrorsThrough(t *testing.T) {
    err := fmt.Errorf("connection reset")
    assert.Equal(t, "connection reset", Reason(err))
}

func TestIsMatchesCode(t *testing.T) {
    err := New(ErrHeartbeatTimeout, "heartbeat timed out")

    assert.True(t, Is(err, ErrHeartbeatTimeout))
    assert.False(t, Is(err, ErrDuplicateLogin))
    assert.False(t, Is(fmt.Errorf("plain"), ErrHeartbeatTimeout))
    assert.False(t, Is(nil, ErrHeartbeatTimeout))
}

func TestWrapKeepsCause(t *testing.T) {
    cause := fmt.Errorf("broken pipe")
    err := Wrap(cause, ErrAmiDisconnected, "AMI connection lost")

    assert.Equal(t, cause, err.Unwrap())
    assert.True(t, err.IsRetryable())
}
