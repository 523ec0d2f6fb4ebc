package scheduler

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"dmarcview-backend/internal/sync/repository"
	"dmarcview-backend/internal/sync/usecase"
)

// Scheduler periodically runs the sync pipeline over every active config.
// Overlap safety comes from the orchestrator's run lease, not from here.
type Scheduler struct {
	configRepo  repository.SyncConfigRepository
	syncUsecase usecase.SyncUsecase
	interval    time.Duration

	stop    chan struct{}
	wg      sync.WaitGroup
	started bool
	mu      sync.Mutex
}

func NewScheduler(configRepo repository.SyncConfigRepository, syncUsecase usecase.SyncUsecase, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	return &Scheduler{
		configRepo:  configRepo,
		syncUsecase: syncUsecase,
		interval:    interval,
		stop:        make(chan struct{}),
	}
}

// Start launches the ticker loop. Safe to call once.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return
	}
	s.started = true

	s.wg.Add(1)
	go s.loop()
	log.Printf("[Scheduler] Started, interval %s", s.interval)
}

// Stop halts the loop and waits for an in-flight tick to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	close(s.stop)
	s.wg.Wait()
	log.Println("[Scheduler] Stopped")
}

func (s *Scheduler) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.runDue()
		}
	}
}

// runDue syncs every active config sequentially. A config already running
// (manual trigger, push notification) is skipped quietly.
func (s *Scheduler) runDue() {
	configs, err := s.configRepo.FindActive()
	if err != nil {
		log.Printf("[Scheduler] Failed to load active configs: %v", err)
		return
	}

	for _, cfg := range configs {
		select {
		case <-s.stop:
			return
		default:
		}

		summary, err := s.syncUsecase.SyncEmails(context.Background(), cfg.ID, cfg.UserID, nil)
		if err != nil {
			if errors.Is(err, usecase.ErrSyncInProgress) {
				continue
			}
			log.Printf("[Scheduler] Sync failed for config %s (%s): %v", cfg.ID, cfg.EmailAddress, err)
			continue
		}
		if summary != nil && summary.ReportsProcessed > 0 {
			log.Printf("[Scheduler] Config %s imported %d reports", cfg.ID, summary.ReportsProcessed)
		}
	}
}
