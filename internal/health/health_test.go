package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/splitdns/internal/clock"
)

type nopConn struct{ closed *bool }

func (c nopConn) Close() error {
	*c.closed = true
	return nil
}

func TestChecker_Aggregates(t *testing.T) {
	c := NewChecker(clock.NewMockClock(time.Unix(1700000000, 0)))
	c.Register("ok", func(ctx context.Context) Check { return Check{Status: StatusHealthy} })
	c.Register("meh", func(ctx context.Context) Check { return Check{Status: StatusDegraded} })

	report := c.Check(context.Background())
	assert.Equal(t, StatusDegraded, report.Status)
	require.Len(t, report.Checks, 2)
	assert.Equal(t, "meh", report.Checks["meh"].Name)

	c.Register("down", func(ctx context.Context) Check { return Check{Status: StatusUnhealthy} })
	assert.Equal(t, StatusUnhealthy, c.Check(context.Background()).Status)
}

func TestChecker_Caches(t *testing.T) {
	mc := clock.NewMockClock(time.Unix(1700000000, 0))
	c := NewChecker(mc)
	calls := 0
	c.Register("count", func(ctx context.Context) Check {
		calls++
		return Check{Status: StatusHealthy}
	})

	c.Check(context.Background())
	c.Check(context.Background())
	assert.Equal(t, 1, calls)

	mc.Advance(6 * time.Second)
	c.Check(context.Background())
	assert.Equal(t, 2, calls)
}

func TestCheckDial(t *testing.T) {
	closed := false
	ok := CheckDial("resolver", func(ctx context.Context) (interface{ Close() error }, error) {
		return nopConn{&closed}, nil
	})(context.Background())
	assert.Equal(t, StatusHealthy, ok.Status)
	assert.True(t, closed)

	bad := CheckDial("resolver", func(ctx context.Context) (interface{ Close() error }, error) {
		return nil, errors.New("connection refused")
	})(context.Background())
	assert.Equal(t, StatusUnhealthy, bad.Status)
	assert.Contains(t, bad.Message, "connection refused")
}

func TestCheckPipeline(t *testing.T) {
	at := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	c := CheckPipeline(func() (time.Time, string) { return time.Time{}, "" })(context.Background())
	assert.Equal(t, StatusDegraded, c.Status)

	c = CheckPipeline(func() (time.Time, string) { return at, "" })(context.Background())
	assert.Equal(t, StatusHealthy, c.Status)
	assert.Contains(t, c.Message, "2025-06-15T12:00:00Z")

	c = CheckPipeline(func() (time.Time, string) { return at, "broken pipe" })(context.Background())
	assert.Equal(t, StatusDegraded, c.Status)
}

func TestHandler(t *testing.T) {
	c := NewChecker(nil)
	c.Register("down", func(ctx context.Context) Check { return Check{Status: StatusUnhealthy, Message: "x"} })

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var report Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, StatusUnhealthy, report.Status)

	rec = httptest.NewRecorder()
	LivenessHandler().ServeHTTP(rec, httptest.NewRequest("GET", "/livez", nil))
	assert.Equal(t, "OK", rec.Body.String())
}
