package service

import "sync/atomic"

// Metrics counts what the clear commands did since startup.
type Metrics struct {
	Commands    atomic.Int64
	Denied      atomic.Int64
	Erasures    atomic.Int64
	RowsRemoved atomic.Int64
	Failures    atomic.Int64
	CleanupJobs atomic.Int64
	Recorded    atomic.Int64
}

func (m *Metrics) Snapshot() map[string]int64 {
	return map[string]int64{
		"commands":     m.Commands.Load(),
		"denied":       m.Denied.Load(),
		"erasures":     m.Erasures.Load(),
		"rows_removed": m.RowsRemoved.Load(),
		"failures":     m.Failures.Load(),
		"cleanup_jobs": m.CleanupJobs.Load(),
		"recorded":     m.Recorded.Load(),
	}
}
