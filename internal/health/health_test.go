package health

import (
    "context"
    "encoding/json"
    "fmt"
    "net/http"
    "net/http/httptest"
    "testing"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

func TestReadinessReportsFailedCheck(t *testing.T) {
    hs := NewHealthService(0)
    hs.RegisterReadinessCheck("database", CheckFunc(func(ctx context.Context) error {
        return nil
    }))
    hs.RegisterReadinessCheck("ami", CheckFunc(func(ctx context.Context) error {
        return fmt.Errorf("AMI not connected")
    }))

    rec := httptest.NewRecorder()
    hs.handleReadiness(rec, httptest.NewRequest("GET", "/health/ready", nil))

    assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

    var response HealthResponse
    require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))

    assert.Equal(t, "failed", response.Status)
    assert.Equal(t, "ok", response.Checks["database"].Status)
    assert.Equal(t, "failed", response.Checks["ami"].Status)
    assert.Equal(t, "AMI not connected", response.Checks["ami"].Error)
}

func TestLivenessAllChecksPass(t *testing.T) {
    hs := NewHealthService(0)
    hs.RegisterLivenessCheck("database", CheckFunc(func(ctx context.Context) error {
        return nil
    }))

    rec := httptest.NewRecorder()
    hs.handleLiveness(rec, httptest.NewRequest("GET", "/health/live", nil))

    assert.Equal(t, http.StatusOK, rec.Code)

    var response HealthResponse
    require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))

    assert.Equal(t, "ok", response.Status)
    assert.NotEmpty(t, response.Uptime)
}

func TestReadinessWithNoChecksIsOK(t *testing.T) {
    hs := NewHealthService(0)

    rec := httptest.NewRecorder()
    hs.handleReadiness(rec, httptest.NewRequest("GET", "/health/ready", nil))

    assert.Equal(t, http.StatusOK, rec.Code)
}
