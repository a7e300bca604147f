package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"inbox-tollbooth-go/internal/config"
	"inbox-tollbooth-go/internal/mailbox"
	"inbox-tollbooth-go/internal/metrics"
	"inbox-tollbooth-go/internal/toll"
)

// Scheduler drives the toll engine over newly observed messages on a fixed
// cadence. At most one poll run is active at a time: a tick that fires while
// the previous run is still going is a logged no-op, with no queueing.
type Scheduler struct {
	cron      *cron.Cron
	entryID   cron.EntryID
	config    *config.SchedulerConfig
	mailbox   mailbox.Mailbox
	engine    *toll.Engine
	metrics   *metrics.Metrics
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	inFlight  atomic.Bool
	isRunning bool
	mu        sync.RWMutex

	// lastRunAt is the watermark of the last completed run; zero means the
	// first run ever, which uses the fixed lookback window instead
	lastRunAt   time.Time
	lastRunAtMu sync.Mutex
}

// NewScheduler creates a new scheduler
func NewScheduler(cfg *config.SchedulerConfig, mb mailbox.Mailbox, engine *toll.Engine, m *metrics.Metrics) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		cron:    cron.New(cron.WithSeconds()),
		config:  cfg,
		mailbox: mb,
		engine:  engine,
		metrics: m,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("scheduler is already running")
	}

	// A fresh context per start; Stop cancelled the previous one
	s.ctx, s.cancel = context.WithCancel(context.Background())

	// The cron entry survives Stop, so only the first Start registers it
	if s.entryID == 0 {
		schedule := fmt.Sprintf("0 */%d * * * *", s.config.IntervalMinutes)

		entryID, err := s.cron.AddFunc(schedule, s.poll)
		if err != nil {
			return fmt.Errorf("failed to add cron job: %w", err)
		}
		s.entryID = entryID
	}
	s.cron.Start()
	s.isRunning = true

	logrus.Infof("Scheduler started with interval: %d minutes", s.config.IntervalMinutes)
	return nil
}

// Stop stops the scheduler
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return nil
	}

	// Cancel context to stop any running operations
	s.cancel()

	// Stop the cron scheduler
	ctx := s.cron.Stop()

	// Wait for all jobs to complete
	select {
	case <-ctx.Done():
		logrus.Info("Scheduler stopped gracefully")
	case <-time.After(30 * time.Second):
		logrus.Warn("Scheduler stop timeout, forcing shutdown")
	}

	s.isRunning = false
	return nil
}

// IsRunning returns whether the scheduler is running
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// poll is the cron entrypoint. The compare-and-swap guard keeps overlapping
// ticks from running the batch concurrently.
func (s *Scheduler) poll() {
	if !s.inFlight.CompareAndSwap(false, true) {
		logrus.Warn("Poll already running, skipping this execution")
		return
	}
	defer s.inFlight.Store(false)

	s.mu.RLock()
	ctx := s.ctx
	s.mu.RUnlock()

	s.wg.Add(1)
	defer s.wg.Done()

	s.runBatch(ctx)
}

// runBatch fetches the current poll window and runs the toll decision over
// every message in it. Per-message failures are logged and skipped; the
// watermark advances regardless so one bad message cannot stall the window.
func (s *Scheduler) runBatch(ctx context.Context) {
	logrus.Debug("Starting poll run")
	startTime := time.Now()
	s.metrics.PollCount.Inc()

	query := s.buildQuery(time.Now())

	ids, err := s.mailbox.ListNewMessages(ctx, query, int64(s.config.MaxResults))
	if err != nil {
		logrus.Errorf("Failed to list messages: %v", err)
		s.metrics.ProcessFailures.Inc()
		return
	}

	if len(ids) == 0 {
		logrus.Debug("No new messages found")
		s.advanceWatermark()
		return
	}

	logrus.Infof("Found %d new messages to process", len(ids))

	for _, id := range ids {
		if err := s.processOne(ctx, id); err != nil {
			logrus.Errorf("Error processing message %s: %v", id, err)
			s.metrics.ProcessFailures.Inc()
		}
	}

	s.advanceWatermark()
	s.metrics.ProcessingTime.Observe(time.Since(startTime).Seconds())
	logrus.Infof("Completed poll run over %d messages in %v", len(ids), time.Since(startTime))
}

// processOne fetches a message and runs the toll decision on it
func (s *Scheduler) processOne(ctx context.Context, id string) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("context cancelled")
	default:
	}

	msg, err := s.mailbox.GetMessage(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to fetch message: %w", err)
	}

	outcome, err := s.engine.ProcessMessage(ctx, msg)
	if err != nil {
		if errors.Is(err, toll.ErrNoSenderAddress) {
			// Skipped, re-attempted on a future window
			logrus.Warnf("Could not extract sender for message %s, skipping", id)
			return nil
		}
		return err
	}

	switch outcome {
	case toll.OutcomeWhitelisted:
		s.metrics.WhitelistedCount.Inc()
	case toll.OutcomeDebited:
		s.metrics.DebitedCount.Inc()
	case toll.OutcomeParked:
		s.metrics.ParkedCount.Inc()
	}
	return nil
}

// buildQuery constructs the Gmail search query for the current poll window.
// The window overlaps the previous run to absorb propagation delay and clock
// skew; the idempotency check makes the re-reads harmless.
func (s *Scheduler) buildQuery(now time.Time) string {
	s.lastRunAtMu.Lock()
	lastRun := s.lastRunAt
	s.lastRunAtMu.Unlock()

	var lowerBound time.Time
	if lastRun.IsZero() {
		lowerBound = now.Add(-time.Duration(s.config.LookbackHours) * time.Hour)
	} else {
		lowerBound = lastRun.Add(-time.Duration(s.config.OverlapMinutes) * time.Minute)
	}

	return fmt.Sprintf("-in:sent after:%d", lowerBound.Unix())
}

// advanceWatermark records the completion time of the current run
func (s *Scheduler) advanceWatermark() {
	s.lastRunAtMu.Lock()
	s.lastRunAt = time.Now()
	s.lastRunAtMu.Unlock()
}

// RunOnce runs the poll once (for manual triggering)
func (s *Scheduler) RunOnce() error {
	logrus.Info("Running poll once")
	s.poll()
	return nil
}

// GetNextRun returns the time of the next scheduled run
func (s *Scheduler) GetNextRun() time.Time {
	if !s.IsRunning() {
		return time.Time{}
	}

	entry := s.cron.Entry(s.entryID)
	return entry.Next
}

// GetLastRun returns the watermark of the last completed run
func (s *Scheduler) GetLastRun() time.Time {
	s.lastRunAtMu.Lock()
	defer s.lastRunAtMu.Unlock()
	return s.lastRunAt
}

// Wait waits for in-flight runs to finish
func (s *Scheduler) Wait() {
	s.wg.Wait()
}
