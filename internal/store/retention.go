package store

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/armorclaw/beacon/pkg/logger"
)

// DefaultRetentionSchedule runs cleanup once a day at 03:00
const DefaultRetentionSchedule = "0 3 * * *"

const cleanupTimeout = time.Minute

// StartRetention schedules Cleanup on a standard five-field cron spec.
// An empty spec uses DefaultRetentionSchedule. Calling it again replaces
// the previous schedule.
func (s *Store) StartRetention(spec string, log *logger.Logger) error {
	if spec == "" {
		spec = DefaultRetentionSchedule
	}
	if log == nil {
		log = logger.Global()
	}
	log = log.WithComponent("retention")

	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
		defer cancel()

		removed, err := s.Cleanup(ctx)
		if err != nil {
			log.ErrorEvent(ctx, "retention cleanup failed", err)
			return
		}
		if removed > 0 {
			log.Info("retention cleanup completed", "removed", removed, "retention_days", s.retentionDays)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid retention schedule %q: %w", spec, err)
	}

	s.StopRetention()

	s.mu.Lock()
	s.cron = c
	s.mu.Unlock()

	c.Start()
	return nil
}

// StopRetention stops the retention schedule if running and waits for a
// cleanup in progress to finish
func (s *Store) StopRetention() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()

	if c != nil {
		<-c.Stop().Done()
	}
}

// RetentionRunning reports whether a retention schedule is active
func (s *Store) RetentionRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cron != nil
}
