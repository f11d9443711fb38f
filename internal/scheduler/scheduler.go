// Package scheduler runs periodic scans on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"

	"nft-tracker/internal/pipeline"

	"github.com/robfig/cron/v3"
)

// Runner executes one scan. Implemented by pipeline.Scanner; the
// daemon wraps it to rebuild per-run state (the rate cache) each tick.
type Runner interface {
	Run(ctx context.Context) (*pipeline.Result, error)
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context) (*pipeline.Result, error)

func (f RunnerFunc) Run(ctx context.Context) (*pipeline.Result, error) { return f(ctx) }

// Scheduler triggers pipeline runs on a cron schedule. Overlapping
// runs are skipped: a scan that outlives its interval must finish
// before the next one starts.
type Scheduler struct {
	cron    *cron.Cron
	scanner Runner
	logger  *log.Logger
	ctx     context.Context

	mu      sync.Mutex
	running bool
}

// New creates a Scheduler driving the given runner.
func New(ctx context.Context, scanner Runner, logger *log.Logger) *Scheduler {
	if logger == nil {
		logger = log.Default()
	}
	return &Scheduler{
		cron:    cron.New(),
		scanner: scanner,
		logger:  logger,
		ctx:     ctx,
	}
}

// Register adds the scan task under the given cron expression.
func (s *Scheduler) Register(scanCron string) error {
	if _, err := s.cron.AddFunc(scanCron, s.scanTask); err != nil {
		return fmt.Errorf("register scan task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Println("[INFO] scheduler started")
}

// Stop stops the cron scheduler gracefully.
func (s *Scheduler) Stop() {
	s.cron.Stop()
	s.logger.Println("[INFO] scheduler stopped")
}

// RunNow executes one scan immediately (manual trigger / run-on-start).
func (s *Scheduler) RunNow() {
	s.scanTask()
}

func (s *Scheduler) scanTask() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.logger.Println("[WARN] previous scan still running, skipping this tick")
		return
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	res, err := s.scanner.Run(s.ctx)
	if err != nil {
		s.logger.Printf("[ERROR] scan failed: %v", err)
		return
	}
	s.logger.Printf("[INFO] scan finished: status=%s ingested=%d assets=%d",
		res.Status, res.TransactionsIngested, res.AssetsTracked)
}
