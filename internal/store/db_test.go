package store

import (
    "fmt"
    "testing"

    "github.com/stretchr/testify/assert"
)

func TestSetHealthTransitions(t *testing.T) {
    db := &DB{health: true}

    // Healthy stays healthy, no transition
    changed, healthy := db.setHealth(nil)
    assert.False(t, changed)
    assert.True(t, healthy)

    // First failure flips
    changed, healthy = db.setHealth(fmt.Errorf("connection refused"))
    assert.True(t, changed)
    assert.False(t, healthy)
    assert.False(t, db.IsHealthy())

    // Repeated failure is not a transition
    changed, _ = db.setHealth(fmt.Errorf("connection refused"))
    assert.False(t, changed)

    // Recovery flips back
    changed, healthy = db.setHealth(nil)
    assert.True(t, changed)
    assert.True(t, healthy)
    assert.True(t, db.IsHealthy())
}

func TestIsRetryableError(t *testing.T) {
    assert.True(t, isRetryableError(fmt.Errorf("read tcp: connection reset by peer")))
    assert.True(t, isRetryableError(fmt.Errorf("deadlock detected")))
    assert.False(t, isRetryableError(fmt.Errorf("syntax error at or near")))
    assert.False(t, isRetryableError(nil))
}
