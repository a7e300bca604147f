package scheduler

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inbox-tollbooth-go/internal/config"
	"inbox-tollbooth-go/internal/metrics"
	"inbox-tollbooth-go/internal/models"
)

// Prometheus collectors register globally, so the package shares one set
var testMetrics = metrics.NewMetrics()

// blockingMailbox lets a test hold a poll run open while another tick fires
type blockingMailbox struct {
	mu        sync.Mutex
	listCalls int
	release   chan struct{}
}

func (b *blockingMailbox) ListNewMessages(ctx context.Context, query string, maxResults int64) ([]string, error) {
	b.mu.Lock()
	b.listCalls++
	b.mu.Unlock()
	if b.release != nil {
		<-b.release
	}
	return nil, nil
}

func (b *blockingMailbox) GetMessage(ctx context.Context, id string) (*models.EmailMessage, error) {
	return &models.EmailMessage{ID: id}, nil
}

func (b *blockingMailbox) EnsureLabel(ctx context.Context, name string) (string, error) {
	return "label", nil
}

func (b *blockingMailbox) ArchiveAndLabel(ctx context.Context, id, labelID string) error { return nil }

func (b *blockingMailbox) UnarchiveAndLabel(ctx context.Context, id, removeLabelID, addLabelID string) error {
	return nil
}

func (b *blockingMailbox) SendNotification(ctx context.Context, to, subject, htmlBody string) error {
	return nil
}

func (b *blockingMailbox) HasSentTo(ctx context.Context, address string) (bool, error) {
	return false, nil
}

func (b *blockingMailbox) Close() error { return nil }

func (b *blockingMailbox) calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.listCalls
}

func newTestScheduler(mb *blockingMailbox) *Scheduler {
	cfg := &config.SchedulerConfig{
		IntervalMinutes: 60,
		LookbackHours:   48,
		OverlapMinutes:  5,
		MaxResults:      500,
	}
	return NewScheduler(cfg, mb, nil, testMetrics)
}

func TestSchedulerRestart(t *testing.T) {
	mb := &blockingMailbox{}
	sched := newTestScheduler(mb)

	require.NoError(t, sched.Start())
	assert.True(t, sched.IsRunning())
	require.NoError(t, sched.Stop())
	assert.False(t, sched.IsRunning())
	require.NoError(t, sched.Start())
	assert.True(t, sched.IsRunning())

	// Restart must not leave a cancelled context or stack cron entries
	assert.NoError(t, sched.ctx.Err())
	assert.Len(t, sched.cron.Entries(), 1)

	// A run after the restart still polls the mailbox
	require.NoError(t, sched.RunOnce())
	assert.Equal(t, 1, mb.calls())

	sched.Stop()
}

func TestOverlappingTickIsSkipped(t *testing.T) {
	mb := &blockingMailbox{release: make(chan struct{})}
	sched := newTestScheduler(mb)

	done := make(chan struct{})
	go func() {
		sched.poll()
		close(done)
	}()

	// Wait for the first run to enter the mailbox call
	require.Eventually(t, func() bool { return mb.calls() == 1 }, time.Second, 5*time.Millisecond)

	// A second tick while the first is in flight must be a no-op
	sched.poll()
	assert.Equal(t, 1, mb.calls())

	close(mb.release)
	<-done

	// With the guard released, the next tick runs
	mb.release = nil
	sched.poll()
	assert.Equal(t, 2, mb.calls())
}

func TestBuildQueryFirstRunUsesLookback(t *testing.T) {
	sched := newTestScheduler(&blockingMailbox{})
	now := time.Now()

	query := sched.buildQuery(now)
	expected := fmt.Sprintf("-in:sent after:%d", now.Add(-48*time.Hour).Unix())
	assert.Equal(t, expected, query)
}

func TestBuildQueryOverlapsWatermark(t *testing.T) {
	sched := newTestScheduler(&blockingMailbox{})
	sched.advanceWatermark()
	lastRun := sched.GetLastRun()

	query := sched.buildQuery(time.Now())
	expected := fmt.Sprintf("-in:sent after:%d", lastRun.Add(-5*time.Minute).Unix())
	assert.Equal(t, expected, query)
}

func TestWatermarkAdvancesAfterRun(t *testing.T) {
	mb := &blockingMailbox{}
	sched := newTestScheduler(mb)

	assert.True(t, sched.GetLastRun().IsZero())
	require.NoError(t, sched.RunOnce())
	assert.False(t, sched.GetLastRun().IsZero())
}
