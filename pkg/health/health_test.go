package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cmatc13/p2pservice/pkg/errors"
	"github.com/cmatc13/p2pservice/pkg/logging"
	"github.com/cmatc13/p2pservice/pkg/service"
)

func up(name string) Checker {
	return func(ctx context.Context) Check { return Check{Name: name, Status: StatusUp} }
}

func TestOverall(t *testing.T) {
	tests := []struct {
		name   string
		checks map[string]Check
		want   Status
	}{
		{"empty", map[string]Check{}, StatusUp},
		{"all up", map[string]Check{"a": {Status: StatusUp}, "b": {Status: StatusUp}}, StatusUp},
		{"unknown", map[string]Check{"a": {Status: StatusUp}, "b": {Status: StatusUnknown}}, StatusUnknown},
		{"down wins", map[string]Check{"a": {Status: StatusUnknown}, "b": {Status: StatusDown}}, StatusDown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Overall(tt.checks))
		})
	}
}

func TestHandler(t *testing.T) {
	registry := NewRegistry(logging.NewNop())
	registry.Register("admin", up("admin"))

	t.Run("healthy", func(t *testing.T) {
		rec := httptest.NewRecorder()
		registry.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

		var body struct {
			Status Status                     `json:"status"`
			Checks map[string]json.RawMessage `json:"checks"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, StatusUp, body.Status)
		assert.Contains(t, body.Checks, "admin")
	})

	t.Run("unhealthy", func(t *testing.T) {
		registry.Register("redis", RedisChecker("localhost:6379", func(ctx context.Context) error {
			return errors.New("connection refused")
		}))
		defer registry.Unregister("redis")

		rec := httptest.NewRecorder()
		registry.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Contains(t, rec.Body.String(), "redis at localhost:6379: connection refused")
		assert.False(t, registry.IsHealthy(context.Background()))
	})

	assert.Equal(t, []string{"admin"}, registry.Names())
}

func TestServiceChecker(t *testing.T) {
	s := service.NewNull(nil, service.WithLogger(logging.NewNop()), service.WithName("status"))
	check := ServiceChecker(s)

	assert.Equal(t, StatusUnknown, check(context.Background()).Status)

	require.NoError(t, s.Run(nil))
	got := check(context.Background())
	assert.Equal(t, StatusDown, got.Status)
	assert.Equal(t, "Service status is FINISHED", got.Message)
}
