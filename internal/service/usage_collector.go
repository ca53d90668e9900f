package service

import (
	"context"
	"sort"
	"sync"
	"time"
)

// UsageCollector aggregates read activity per table in process memory
type UsageCollector struct {
	mu        sync.RWMutex
	tables    map[string]*TableUsage
	retention time.Duration
	startTime time.Time
}

// TableUsage holds read statistics of one table or location
type TableUsage struct {
	Table         string        `json:"table"`
	TotalReads    int64         `json:"totalReads"`
	FailedReads   int64         `json:"failedReads"`
	TotalRows     int64         `json:"totalRows"`
	TotalReadTime time.Duration `json:"totalReadTimeNs"`
	MaxReadTime   time.Duration `json:"maxReadTimeNs"`
	LastReadAt    time.Time     `json:"lastReadAt"`
	LastError     string        `json:"lastError,omitempty"`
	LastErrorAt   time.Time     `json:"lastErrorAt,omitempty"`
}

// UsageSummary is the gateway-wide view of UsageCollector
type UsageSummary struct {
	Tables      []TableUsage `json:"tables"`
	TotalReads  int64        `json:"totalReads"`
	FailedReads int64        `json:"failedReads"`
	TotalRows   int64        `json:"totalRows"`
	Since       time.Time    `json:"since"`
}

// NewUsageCollector creates a collector that forgets tables not read
// within retention
func NewUsageCollector(retention time.Duration) *UsageCollector {
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	return &UsageCollector{
		tables:    make(map[string]*TableUsage),
		retention: retention,
		startTime: time.Now(),
	}
}

// RecordRead records one read. A nil collector ignores the call.
func (uc *UsageCollector) RecordRead(table string, rows int, elapsed time.Duration, err error) {
	if uc == nil {
		return
	}

	uc.mu.Lock()
	defer uc.mu.Unlock()

	usage, ok := uc.tables[table]
	if !ok {
		usage = &TableUsage{Table: table}
		uc.tables[table] = usage
	}

	now := time.Now()
	usage.TotalReads++
	usage.LastReadAt = now
	usage.TotalReadTime += elapsed
	if elapsed > usage.MaxReadTime {
		usage.MaxReadTime = elapsed
	}
	if err != nil {
		usage.FailedReads++
		usage.LastError = err.Error()
		usage.LastErrorAt = now
		return
	}
	usage.TotalRows += int64(rows)
}

// TableUsage returns a copy of the statistics of table
func (uc *UsageCollector) TableUsage(table string) (TableUsage, bool) {
	uc.mu.RLock()
	defer uc.mu.RUnlock()

	usage, ok := uc.tables[table]
	if !ok {
		return TableUsage{}, false
	}
	return *usage, true
}

// Summary returns every table ordered by read count, busiest first
func (uc *UsageCollector) Summary() UsageSummary {
	uc.mu.RLock()
	defer uc.mu.RUnlock()

	summary := UsageSummary{
		Tables: make([]TableUsage, 0, len(uc.tables)),
		Since:  uc.startTime,
	}
	for _, usage := range uc.tables {
		summary.Tables = append(summary.Tables, *usage)
		summary.TotalReads += usage.TotalReads
		summary.FailedReads += usage.FailedReads
		summary.TotalRows += usage.TotalRows
	}
	sort.Slice(summary.Tables, func(i, j int) bool {
		if summary.Tables[i].TotalReads != summary.Tables[j].TotalReads {
			return summary.Tables[i].TotalReads > summary.Tables[j].TotalReads
		}
		return summary.Tables[i].Table < summary.Tables[j].Table
	})
	return summary
}

// Cleanup drops tables whose last read is older than the retention
func (uc *UsageCollector) Cleanup(now time.Time) {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	cutoff := now.Add(-uc.retention)
	for table, usage := range uc.tables {
		if usage.LastReadAt.Before(cutoff) {
			delete(uc.tables, table)
		}
	}
}

// StartCleanupRoutine runs Cleanup hourly until ctx is done
func (uc *UsageCollector) StartCleanupRoutine(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				uc.Cleanup(now)
			}
		}
	}()
}
