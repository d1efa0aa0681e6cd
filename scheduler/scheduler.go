// Package scheduler drives the dispatch engine on its three cadences:
// fixed daily posting times, a short re-scan interval, and maintenance.
// Overlapping fires are safe because the dispatcher's in-flight guard
// makes re-driving an item a no-op.
package scheduler

import (
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/robfig/cron/v3"

	"social-poster/database"
	"social-poster/models"
	"social-poster/poster"
)

// HealthReporter mirrors the periodic health snapshot to the operator.
type HealthReporter interface {
	Health(stats *models.Stats)
}

// Scheduler owns the cron instance. It holds no state beyond "running";
// stopping is cooperative and lets in-flight dispatches finish.
type Scheduler struct {
	c          *cron.Cron
	dispatcher *poster.Dispatcher
	store      *database.Store
	reporter   HealthReporter
	cfg        *models.Config
}

// New builds a scheduler; call Start to arm the cadences.
func New(dispatcher *poster.Dispatcher, store *database.Store, reporter HealthReporter, cfg *models.Config) *Scheduler {
	return &Scheduler{
		c:          cron.New(),
		dispatcher: dispatcher,
		store:      store,
		reporter:   reporter,
		cfg:        cfg,
	}
}

// Start registers all cadences and starts the cron loop.
func (s *Scheduler) Start() error {
	log.Println("Initializing scheduler...")

	// Posting at the configured clock times.
	for _, postTime := range s.cfg.PostTimes {
		spec, err := CronSpec(postTime)
		if err != nil {
			return fmt.Errorf("invalid post time %q: %w", postTime, err)
		}
		if _, err := s.c.AddFunc(spec, s.postingCycle); err != nil {
			return fmt.Errorf("could not schedule posting at %s: %w", postTime, err)
		}
		log.Printf("Scheduled posting at %s", postTime)
	}

	// Short interval scan: catches items approved between clock times or
	// whose not-before just passed.
	if _, err := s.c.AddFunc("@every "+s.cfg.ScanInterval.String(), s.dispatcher.ProcessPending); err != nil {
		return fmt.Errorf("could not schedule pending scan: %w", err)
	}

	if _, err := s.c.AddFunc("@every "+s.cfg.HealthInterval.String(), s.healthCheck); err != nil {
		return fmt.Errorf("could not schedule health check: %w", err)
	}

	maintSpec, err := CronSpec(s.cfg.MaintenanceTime)
	if err != nil {
		return fmt.Errorf("invalid maintenance time %q: %w", s.cfg.MaintenanceTime, err)
	}
	if _, err := s.c.AddFunc(maintSpec, s.maintenance); err != nil {
		return fmt.Errorf("could not schedule maintenance: %w", err)
	}

	s.c.Start()
	log.Println("Scheduler started.")
	return nil
}

// Stop stops scheduling new fires and waits for running jobs to return.
func (s *Scheduler) Stop() {
	ctx := s.c.Stop()
	<-ctx.Done()
	log.Println("Scheduler stopped.")
}

func (s *Scheduler) postingCycle() {
	log.Println("=== Posting cycle started ===")
	s.dispatcher.ProcessPending()
}

func (s *Scheduler) healthCheck() {
	stats, err := s.store.Stats()
	if err != nil {
		log.Printf("Health check failed: %v", err)
		return
	}
	log.Printf("Health check OK | Total posts: %d | Pending: %d",
		stats.TotalItems, stats.ByStatus[string(models.StatusPending)])
	if s.reporter != nil {
		s.reporter.Health(stats)
	}
}

func (s *Scheduler) maintenance() {
	if _, err := s.store.CleanupAuditLog(s.cfg.AuditRetention); err != nil {
		log.Printf("Audit log maintenance failed: %v", err)
	}
}

// CronSpec converts an "HH:MM" clock time into a daily cron spec.
func CronSpec(clockTime string) (string, error) {
	parts := strings.Split(clockTime, ":")
	if len(parts) != 2 {
		return "", fmt.Errorf("expected HH:MM")
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return "", fmt.Errorf("bad hour %q", parts[0])
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return "", fmt.Errorf("bad minute %q", parts[1])
	}
	return fmt.Sprintf("%d %d * * *", minute, hour), nil
}
