package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/splitdns/internal/events"
	"grimm.is/splitdns/internal/logging"
)

func TestCollector_Observe(t *testing.T) {
	reg := NewRegistry()
	c := NewCollector(reg, logging.Nop())
	now := time.Unix(1700000000, 0)

	c.Observe(events.Event{Type: events.EventBatch, Cycle: "c1", Timestamp: now, Data: events.BatchData{IDs: []uint32{1}}})
	c.Observe(events.Event{Type: events.EventConnectionsChanged, Cycle: "c1", Timestamp: now,
		Data: events.ConnectionsData{Requested: 3, Resolved: 2}})
	c.Observe(events.Event{Type: events.EventZonesDerived, Cycle: "c1", Timestamp: now,
		Data: events.ZonesData{Forward: []string{"corp.example", "lab.example"}, Reverse: []string{"10.in-addr.arpa"}}})
	c.Observe(events.Event{Type: events.EventRulesApplied, Cycle: "c1", Timestamp: now,
		Data: events.RulesData{Commands: 4}})

	assert.Equal(t, 1.0, testutil.ToFloat64(reg.MonitorEvents))
	assert.Equal(t, 2.0, testutil.ToFloat64(reg.BatchConnections))
	assert.Equal(t, 2.0, testutil.ToFloat64(reg.Zones.WithLabelValues("forward")))
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.Zones.WithLabelValues("reverse")))
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.Cycles.WithLabelValues("ok")))
	assert.Equal(t, 4.0, testutil.ToFloat64(reg.BackendCommands))

	st := c.Status()
	assert.Equal(t, "c1", st.Cycle)
	assert.Equal(t, 2, st.Connections)
	assert.Equal(t, now, st.LastApply)
	assert.Equal(t, now, c.GetLastUpdate())

	c.Observe(events.Event{Type: events.EventRulesFailed, Cycle: "c2", Timestamp: now.Add(time.Second),
		Data: events.RulesData{Command: "policy.del(4)", Error: "broken pipe"}})
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.Cycles.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.BackendErrors.WithLabelValues("delete")))
	assert.Equal(t, "broken pipe", c.Status().LastError)
}

func TestOpFromCommand(t *testing.T) {
	assert.Equal(t, "connect", opFromCommand(""))
	assert.Equal(t, "list", opFromCommand("policy.rules"))
	assert.Equal(t, "delete", opFromCommand("policy.del(3)"))
	assert.Equal(t, "add", opFromCommand("policy.add(policy.all(policy.FORWARD('1.1.1.1')))"))
	assert.Equal(t, "other", opFromCommand("cache.clear()"))
}

func TestRegistry_Handler(t *testing.T) {
	reg := NewRegistry()
	reg.RecordApply(3, 10*time.Millisecond, time.Unix(1700000000, 0))
	reg.RecordBackendError("")

	rec := httptest.NewRecorder()
	reg.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)

	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "splitdns_backend_commands_total 3"), body)
	assert.True(t, strings.Contains(body, `splitdns_backend_errors_total{op="unknown"} 1`))
	assert.True(t, strings.Contains(body, "splitdns_last_apply_timestamp 1.7e+09"))
}

func TestGet_Singleton(t *testing.T) {
	assert.Same(t, Get(), Get())
}

func TestRecordBackendErrorLowercases(t *testing.T) {
	reg := NewRegistry()
	reg.RecordBackendError("List")
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.BackendErrors.WithLabelValues("list")))
}
