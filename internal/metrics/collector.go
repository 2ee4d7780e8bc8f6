package metrics

import (
	"context"
	"strings"
	"sync"
	"time"

	"grimm.is/splitdns/internal/events"
	"grimm.is/splitdns/internal/logging"
)

// Collector keeps the Prometheus registry in step with the pipeline by
// consuming lifecycle events from the hub.
type Collector struct {
	registry *Registry
	logger   *logging.Logger

	mu         sync.RWMutex
	lastUpdate time.Time
	status     Status
}

// Status is a snapshot of the most recent pipeline outcome.
type Status struct {
	Cycle       string    `json:"cycle"`
	Connections int       `json:"connections"`
	Forward     int       `json:"forward_zones"`
	Reverse     int       `json:"reverse_zones"`
	LastApply   time.Time `json:"last_apply,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
}

// NewCollector creates a collector that writes into registry.
func NewCollector(registry *Registry, logger *logging.Logger) *Collector {
	if logger == nil {
		logger = logging.WithComponent("metrics")
	}
	return &Collector{registry: registry, logger: logger}
}

// Run consumes hub events until ctx is done.
func (c *Collector) Run(ctx context.Context, hub *events.Hub) {
	hub.Forward(ctx, c.Observe)
}

// Observe applies one event to the registry and the status snapshot.
func (c *Collector) Observe(e events.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lastUpdate = e.Timestamp
	if e.Cycle != "" {
		c.status.Cycle = e.Cycle
	}

	switch data := e.Data.(type) {
	case events.BatchData:
		c.registry.MonitorEvents.Inc()
	case events.ConnectionsData:
		c.registry.BatchConnections.Set(float64(data.Resolved))
		c.status.Connections = data.Resolved
	case events.ZonesData:
		c.registry.RecordZones(len(data.Forward), len(data.Reverse))
		c.status.Forward = len(data.Forward)
		c.status.Reverse = len(data.Reverse)
	case events.RulesData:
		if e.Type == events.EventRulesFailed {
			c.registry.RecordCycle("error")
			c.registry.RecordBackendError(opFromCommand(data.Command))
			c.status.LastError = data.Error
			return
		}
		c.registry.RecordCycle("ok")
		c.registry.RecordApply(data.Commands, data.Duration, e.Timestamp)
		c.status.LastApply = e.Timestamp
		c.status.LastError = ""
	default:
		c.logger.Debug("ignoring event", "type", string(e.Type))
	}
}

// Status returns the latest snapshot.
func (c *Collector) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// GetLastUpdate returns the timestamp of the last observed event.
func (c *Collector) GetLastUpdate() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastUpdate
}

// opFromCommand maps a failing control command to a low-cardinality label.
func opFromCommand(cmd string) string {
	switch {
	case cmd == "":
		return "connect"
	case strings.HasPrefix(cmd, "policy.rules"):
		return "list"
	case strings.HasPrefix(cmd, "policy.del"):
		return "delete"
	case strings.HasPrefix(cmd, "policy.add"):
		return "add"
	}
	return "other"
}
