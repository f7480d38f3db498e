package health

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/beamline-mq/beamline-go/internal/rabbitmq"
	"github.com/beamline-mq/beamline-go/outbound"
)

// BrokerChecker probes the broker connection. Beyond the connection flag it
// opens a throwaway channel and passively declares amq.direct, which proves
// the broker is answering frames.
type BrokerChecker struct {
	manager *rabbitmq.ConnectionManager
}

// NewBrokerChecker creates a checker over the connection manager.
func NewBrokerChecker(manager *rabbitmq.ConnectionManager) *BrokerChecker {
	return &BrokerChecker{manager: manager}
}

func (c *BrokerChecker) Name() string {
	return "broker"
}

func (c *BrokerChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{
		Name:      c.Name(),
		Timestamp: start,
		Details:   make(map[string]interface{}),
	}

	conn, err := c.manager.GetConnection()
	if err != nil {
		result.Status = StatusUnhealthy
		result.Message = "connection not available"
		result.Error = err.Error()
		result.Duration = time.Since(start)
		return result
	}

	ch, err := conn.Channel()
	if err != nil {
		result.Status = StatusUnhealthy
		result.Message = "cannot open channel"
		result.Error = err.Error()
		result.Duration = time.Since(start)
		return result
	}
	defer ch.Close()

	if err := ch.ExchangeDeclarePassive("amq.direct", "direct", true, false, false, false, nil); err != nil {
		result.Status = StatusDegraded
		result.Message = "broker not answering declares"
		result.Error = err.Error()
	} else {
		result.Status = StatusHealthy
		result.Message = "broker connection is healthy"
	}

	result.Duration = time.Since(start)
	result.Details["connection_open"] = !conn.IsClosed()
	result.Details["response_time_ms"] = result.Duration.Milliseconds()
	return result
}

// PipelineChecker reports outbound pipeline pressure. A saturated throttle
// is degraded rather than unhealthy: sends still move, they just queue.
type PipelineChecker struct {
	pipeline *outbound.Pipeline
}

// NewPipelineChecker creates a checker over the pipeline gauges.
func NewPipelineChecker(pipeline *outbound.Pipeline) *PipelineChecker {
	return &PipelineChecker{pipeline: pipeline}
}

func (c *PipelineChecker) Name() string {
	return "outbound"
}

func (c *PipelineChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{
		Name:      c.Name(),
		Timestamp: start,
		Details:   make(map[string]interface{}),
	}

	inFlight := c.pipeline.InFlight()
	capacity := c.pipeline.Capacity()
	built, released := c.pipeline.BuilderStats()

	result.Details["in_flight"] = inFlight
	result.Details["capacity"] = capacity
	result.Details["sleeping"] = c.pipeline.Sleeping()
	result.Details["wire_messages_outstanding"] = built - released

	if inFlight >= capacity {
		result.Status = StatusDegraded
		result.Message = "throttle saturated, sends are queueing"
	} else {
		result.Status = StatusHealthy
		result.Message = "pipeline has capacity"
	}

	result.Duration = time.Since(start)
	return result
}

// RuntimeChecker watches process-level pressure through the goroutine
// count.
type RuntimeChecker struct {
	warning  int
	critical int
}

// NewRuntimeChecker creates a runtime checker. Non-positive thresholds fall
// back to 500 and 1000 goroutines.
func NewRuntimeChecker(warning, critical int) *RuntimeChecker {
	if warning <= 0 {
		warning = 500
	}
	if critical <= 0 {
		critical = 1000
	}
	return &RuntimeChecker{warning: warning, critical: critical}
}

func (c *RuntimeChecker) Name() string {
	return "runtime"
}

func (c *RuntimeChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{
		Name:      c.Name(),
		Timestamp: start,
		Details:   make(map[string]interface{}),
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	goroutines := runtime.NumGoroutine()
	result.Details["goroutines"] = goroutines
	result.Details["memory_sys_mb"] = float64(m.Sys) / 1024 / 1024
	result.Details["gc_runs"] = m.NumGC

	switch {
	case goroutines > c.critical:
		result.Status = StatusUnhealthy
		result.Message = fmt.Sprintf("too many goroutines: %d", goroutines)
	case goroutines > c.warning:
		result.Status = StatusDegraded
		result.Message = fmt.Sprintf("high goroutine count: %d", goroutines)
	default:
		result.Status = StatusHealthy
		result.Message = "runtime pressure is normal"
	}

	result.Duration = time.Since(start)
	return result
}
