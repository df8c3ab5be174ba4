package handler

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"tg-amnesia/internal/logger"
	"tg-amnesia/internal/scheduler"
	"tg-amnesia/internal/service"
)

// counters
var (
	totalMessagesProcessed int64
	totalCommands          int64
	totalErrors            int64
	totalTimeouts          int64
	startTime              = time.Now()

	serviceMetrics atomic.Pointer[service.Metrics]
)

const statusInterval = 5 * time.Minute

// incrementCounter atomically adds one
func incrementCounter(counter *int64) {
	atomic.AddInt64(counter, 1)
}

// GetProcessingStats returns handler counters merged with the clear-command metrics
func GetProcessingStats() map[string]interface{} {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	stats := map[string]interface{}{
		"uptime_seconds":          int64(time.Since(startTime).Seconds()),
		"total_messages":          atomic.LoadInt64(&totalMessagesProcessed),
		"total_commands":          atomic.LoadInt64(&totalCommands),
		"total_errors":            atomic.LoadInt64(&totalErrors),
		"total_timeouts":          atomic.LoadInt64(&totalTimeouts),
		"active_handlers":         GetActiveHandlersCount(),
		"max_concurrent_messages": cap(messageProcessingSemaphore),
		"memory_usage_mb":         bToMb(m.Alloc),
		"sys_memory_mb":           bToMb(m.Sys),
		"gc_runs":                 m.NumGC,
		"goroutines":              runtime.NumGoroutine(),
	}

	if metrics := serviceMetrics.Load(); metrics != nil {
		for k, v := range metrics.Snapshot() {
			stats["clear_"+k] = v
		}
	}
	return stats
}

// logProcessingStats logs one snapshot of the counters
func logProcessingStats() {
	stats := GetProcessingStats()
	logger.Infof("Processing stats: %+v", stats)

	// warn when too many handlers are busy
	if activeHandlers := stats["active_handlers"].(int); activeHandlers > maxConcurrentMessages*4/5 {
		logger.Warningf("High number of active handlers: %d", activeHandlers)
	}

	// warn on a high error rate
	totalMessages := stats["total_messages"].(int64)
	errs := stats["total_errors"].(int64)
	if totalMessages > 0 && float64(errs)/float64(totalMessages) > 0.1 {
		logger.Warningf("High error rate: %.2f%% (%d errors out of %d messages)",
			float64(errs)/float64(totalMessages)*100, errs, totalMessages)
	}
}

// StartStatusMonitoring logs the counters every five minutes
func StartStatusMonitoring(sched *scheduler.Scheduler) {
	sched.Every("status-monitor", statusInterval, func(context.Context) {
		logProcessingStats()
	})
}

// bToMb converts bytes to MiB
func bToMb(b uint64) uint64 {
	return b / 1024 / 1024
}

// GetDetailedStatus renders the counters for the debug page
func GetDetailedStatus() string {
	stats := GetProcessingStats()
	return fmt.Sprintf(`
=== TG-Amnesia Processing Status ===
Uptime: %d seconds
Messages Processed: %d
Commands: %d
Errors: %d
Timeouts: %d
Active Handlers: %d/%d
Recorded Messages: %v
Denied Requests: %v
Full Erasures: %v
Rows Removed: %v
Erase Failures: %v
Cleanup Jobs: %v
Memory Usage: %d MB
System Memory: %d MB
GC Runs: %d
Goroutines: %d
====================================`,
		stats["uptime_seconds"],
		stats["total_messages"],
		stats["total_commands"],
		stats["total_errors"],
		stats["total_timeouts"],
		stats["active_handlers"],
		stats["max_concurrent_messages"],
		orZero(stats["clear_recorded"]),
		orZero(stats["clear_denied"]),
		orZero(stats["clear_erasures"]),
		orZero(stats["clear_rows_removed"]),
		orZero(stats["clear_failures"]),
		orZero(stats["clear_cleanup_jobs"]),
		stats["memory_usage_mb"],
		stats["sys_memory_mb"],
		stats["gc_runs"],
		stats["goroutines"],
	)
}

func orZero(v interface{}) interface{} {
	if v == nil {
		return 0
	}
	return v
}
