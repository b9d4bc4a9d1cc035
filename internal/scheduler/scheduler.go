// Package scheduler provides cron-based scheduling for recurring mediacore
// housekeeping work: recording rotation policy (C6 rotate_if_needed) as a
// wall-clock alternative to the pure size/duration check, and periodic
// disk-headroom polling. It uses robfig/cron as the timing engine.
package scheduler

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/robfig/cron/v3"
)

// NormalizeCronExpression normalizes a cron expression to 6-field format.
// It accepts both 6-field (default) and 7-field (legacy with year) formats.
//
// Supported formats:
//   - 6 fields: sec min hour dom month dow (passed through as-is)
//   - 7 fields: sec min hour dom month dow year (year stripped after validation)
//
// The year field (if present) must be "*" or a valid year/range (e.g., "2024", "2024-2030", "*").
func NormalizeCronExpression(expr string) (string, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return "", fmt.Errorf("empty cron expression")
	}

	// Handle special descriptors like @every, @hourly, etc.
	if strings.HasPrefix(expr, "@") {
		return expr, nil
	}

	fields := strings.Fields(expr)
	switch len(fields) {
	case 6:
		return expr, nil
	case 7:
		yearField := fields[6]
		if !isValidYearField(yearField) {
			return "", fmt.Errorf("invalid year field %q: must be * or a valid year/range", yearField)
		}
		return strings.Join(fields[:6], " "), nil
	default:
		return "", fmt.Errorf("invalid cron expression: expected 6 or 7 fields, got %d", len(fields))
	}
}

// isValidYearField validates a cron year field.
// Accepts: *, specific years (2024), ranges (2024-2030), lists (2024,2025), step values (*/2, 2024/1).
func isValidYearField(field string) bool {
	if field == "*" {
		return true
	}
	for _, r := range field {
		if !((r >= '0' && r <= '9') || r == ',' || r == '-' || r == '/' || r == '*') {
			return false
		}
	}
	return len(field) > 0
}

// Scheduler runs named cron-triggered functions. It is intentionally
// job-queue-free: callers register a function per named entry, and the
// scheduler invokes it on its own goroutine at each tick.
type Scheduler struct {
	mu sync.RWMutex

	logger *slog.Logger
	parser cron.Parser

	cronScheduler *cron.Cron
	entryMap      map[string]cron.EntryID
}

// New creates a Scheduler.
func New(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	return &Scheduler{
		logger:        logger,
		parser:        parser,
		cronScheduler: cron.New(cron.WithParser(parser)),
		entryMap:      make(map[string]cron.EntryID),
	}
}

// Start begins running scheduled entries.
func (s *Scheduler) Start() {
	s.cronScheduler.Start()
}

// Stop halts the scheduler and waits for running invocations to finish.
func (s *Scheduler) Stop() {
	ctx := s.cronScheduler.Stop()
	<-ctx.Done()
}

// Upsert registers or replaces the cron entry named key with the given
// (possibly 7-field legacy) cron expression and function.
func (s *Scheduler) Upsert(key, cronExpr string, fn func()) error {
	normalized, err := NormalizeCronExpression(cronExpr)
	if err != nil {
		return fmt.Errorf("normalizing cron expression for %q: %w", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.entryMap[key]; ok {
		s.cronScheduler.Remove(existing)
		delete(s.entryMap, key)
	}

	id, err := s.cronScheduler.AddFunc(normalized, func() {
		s.logger.Debug("scheduler tick", slog.String("key", key))
		fn()
	})
	if err != nil {
		return fmt.Errorf("scheduling %q: %w", key, err)
	}

	s.entryMap[key] = id
	return nil
}

// Remove unregisters a named cron entry, if present.
func (s *Scheduler) Remove(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.entryMap[key]; ok {
		s.cronScheduler.Remove(id)
		delete(s.entryMap, key)
	}
}

// Entries returns the currently registered entry names.
func (s *Scheduler) Entries() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.entryMap))
	for k := range s.entryMap {
		keys = append(keys, k)
	}
	return keys
}
