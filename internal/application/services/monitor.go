package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/longregen/promptforge/internal/adapters/metrics"
	"github.com/longregen/promptforge/internal/domain"
	"github.com/longregen/promptforge/internal/domain/models"
	"github.com/longregen/promptforge/internal/logging"
	"github.com/longregen/promptforge/internal/ports"
)

// Skip reasons reported by the trigger monitor
const (
	SkipCooldown       = "cooldown"
	SkipAlreadyRunning = "already_running"
	SkipNoTrigger      = "no_trigger"
	SkipNoVersions     = "no_versions"
	SkipError          = "error"
)

// MonitorConfig configures the trigger monitor
type MonitorConfig struct {
	Interval            time.Duration
	MinTrainingInterval time.Duration
	FeedbackWindow      time.Duration
	Thresholds          Thresholds
}

// DefaultMonitorConfig returns the default monitor settings
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		Interval:            time.Hour,
		MinTrainingInterval: 24 * time.Hour,
		FeedbackWindow:      7 * 24 * time.Hour,
		Thresholds:          DefaultThresholds(),
	}
}

// SkippedPrompt is a prompt the monitor looked at and did not train
type SkippedPrompt struct {
	PromptID string `json:"prompt_id"`
	Reason   string `json:"reason"`
	Detail   string `json:"detail,omitempty"`
}

// TickReport lists what one monitor tick did
type TickReport struct {
	StartedAt  time.Time             `json:"started_at"`
	FinishedAt time.Time             `json:"finished_at"`
	Purged     int64                 `json:"purged"`
	Scanned    int                   `json:"scanned"`
	Triggered  []*models.TrainingRun `json:"triggered"`
	Skipped    []SkippedPrompt       `json:"skipped"`
}

// MonitorStatus is a snapshot of the monitor state
type MonitorStatus struct {
	Running         bool          `json:"running"`
	Ticking         bool          `json:"ticking"`
	Interval        time.Duration `json:"interval"`
	TicksCompleted  int64         `json:"ticks_completed"`
	TicksOverlapped int64         `json:"ticks_overlapped"`
	LastTick        *TickReport   `json:"last_tick,omitempty"`
}

// TriggerMonitor periodically scans every known prompt and launches training
// where feedback calls for it. Ticks never overlap: a tick that comes due while
// another is executing is dropped with ErrTickInProgress.
type TriggerMonitor struct {
	feedback *FeedbackService
	runs     ports.TrainingRunRepository
	locks    *PromptLocks
	trainer  Trainer
	clock    ports.Clock
	config   MonitorConfig
	logger   *zap.Logger

	ticking    atomic.Bool
	completed  atomic.Int64
	overlapped atomic.Int64

	mu       sync.Mutex
	running  bool
	stopCh   chan struct{}
	wg       sync.WaitGroup
	lastTick *TickReport
}

// NewTriggerMonitor creates a monitor. It does not start until Start is called.
func NewTriggerMonitor(
	feedback *FeedbackService,
	runs ports.TrainingRunRepository,
	locks *PromptLocks,
	trainer Trainer,
	clock ports.Clock,
	config MonitorConfig,
	logger *zap.Logger,
) *TriggerMonitor {
	if config.Interval <= 0 {
		config.Interval = DefaultMonitorConfig().Interval
	}
	return &TriggerMonitor{
		feedback: feedback,
		runs:     runs,
		locks:    locks,
		trainer:  trainer,
		clock:    clock,
		config:   config,
		logger:   logging.OrNop(logger),
	}
}

// Tick runs one scan: purge expired feedback, then summarize each prompt,
// apply cooldown, in-flight and selection checks, and launch runs concurrently.
// It waits for the runs it launched. A failed run never stops the scan.
func (m *TriggerMonitor) Tick(ctx context.Context) (*TickReport, error) {
	if !m.ticking.CompareAndSwap(false, true) {
		m.overlapped.Add(1)
		metrics.MonitorTicksTotal.WithLabelValues("overlapped").Inc()
		m.logger.Warn("monitor tick skipped, previous tick still executing")
		return nil, domain.NewDomainError(domain.ErrTickInProgress, "previous tick still executing")
	}
	defer m.ticking.Store(false)

	now := m.clock.Now()
	report := &TickReport{StartedAt: now}

	// Purge before this tick's summaries so they never race it
	purged, err := m.feedback.Purge(ctx)
	if err != nil {
		m.logger.Warn("feedback purge failed", zap.Error(err))
	}
	report.Purged = purged

	prompts, err := m.feedback.KnownPrompts(ctx)
	if err != nil {
		metrics.MonitorTicksTotal.WithLabelValues("failed").Inc()
		return nil, err
	}
	report.Scanned = len(prompts)

	var mu sync.Mutex
	skip := func(promptID, reason, detail string) {
		mu.Lock()
		report.Skipped = append(report.Skipped, SkippedPrompt{PromptID: promptID, Reason: reason, Detail: detail})
		mu.Unlock()
		metrics.MonitorSkipsTotal.WithLabelValues(reason).Inc()
	}

	var g errgroup.Group
	for _, promptID := range prompts {
		approach, reason, detail := m.decide(ctx, promptID, now)
		if reason != "" {
			skip(promptID, reason, detail)
			continue
		}

		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					m.logger.Error("training run panicked", zap.String("prompt_id", promptID), zap.Any("panic", r), zap.Stack("stack"))
					skip(promptID, SkipError, "panic")
				}
			}()

			run, err := m.trainer.Run(ctx, promptID, approach, models.TriggerMonitor)
			switch {
			case errors.Is(err, domain.ErrAlreadyRunning):
				m.logger.Info("prompt already training, skipped", zap.String("prompt_id", promptID))
				skip(promptID, SkipAlreadyRunning, "")
			case run != nil:
				mu.Lock()
				report.Triggered = append(report.Triggered, run)
				mu.Unlock()
			case errors.Is(err, domain.ErrNotFound):
				skip(promptID, SkipNoVersions, "")
			case err != nil:
				m.logger.Warn("training launch failed", zap.String("prompt_id", promptID), zap.Error(err))
				skip(promptID, SkipError, err.Error())
			}
			return nil
		})
	}
	_ = g.Wait()

	slices.SortFunc(report.Triggered, func(a, b *models.TrainingRun) int { return strings.Compare(a.PromptID, b.PromptID) })
	slices.SortFunc(report.Skipped, func(a, b SkippedPrompt) int { return strings.Compare(a.PromptID, b.PromptID) })
	report.FinishedAt = m.clock.Now()

	m.mu.Lock()
	m.lastTick = report
	m.mu.Unlock()
	m.completed.Add(1)
	metrics.MonitorTicksTotal.WithLabelValues("completed").Inc()

	m.logger.Info("monitor tick finished",
		zap.Int("scanned", report.Scanned),
		zap.Int("triggered", len(report.Triggered)),
		zap.Int("skipped", len(report.Skipped)),
		zap.Int64("purged", report.Purged))

	return report, nil
}

// decide returns the approach to train, or a skip reason
func (m *TriggerMonitor) decide(ctx context.Context, promptID string, now time.Time) (models.Approach, string, string) {
	if m.locks.IsHeld(promptID) {
		return models.ApproachNone, SkipAlreadyRunning, ""
	}

	last, err := m.runs.GetLatestByPrompt(ctx, promptID)
	switch {
	case err == nil:
		if now.Sub(last.StartedAt) < m.config.MinTrainingInterval {
			return models.ApproachNone, SkipCooldown, "last attempt " + last.StartedAt.Format(time.RFC3339)
		}
	case errors.Is(err, domain.ErrNotFound):
	default:
		m.logger.Warn("failed to read training history", zap.String("prompt_id", promptID), zap.Error(err))
		return models.ApproachNone, SkipError, err.Error()
	}

	stats, err := m.feedback.Summary(ctx, promptID, m.config.FeedbackWindow)
	if err != nil {
		m.logger.Warn("failed to summarize feedback", zap.String("prompt_id", promptID), zap.Error(err))
		return models.ApproachNone, SkipError, err.Error()
	}

	approach := SelectApproach(stats, m.config.Thresholds)
	if approach == models.ApproachNone {
		return approach, SkipNoTrigger, ""
	}

	m.logger.Debug("training triggered",
		zap.String("prompt_id", promptID),
		zap.String("approach", string(approach)),
		zap.Float64("error_rate", stats.ErrorRate),
		zap.Float64("mean_rating", stats.MeanRating),
		zap.Int("suggestions", stats.SuggestionCount),
		zap.Int("successes", stats.SuccessVolume))
	return approach, "", ""
}

// TrainNow launches a manual run for one prompt, bypassing the cooldown. An
// empty approach is selected from the prompt's feedback summary; when nothing
// calls for training the request fails with ErrInvalidState.
func (m *TriggerMonitor) TrainNow(ctx context.Context, promptID string, approach models.Approach) (*models.TrainingRun, error) {
	if err := ValidatePromptID(promptID); err != nil {
		return nil, err
	}
	if approach == "" {
		stats, err := m.feedback.Summary(ctx, promptID, m.config.FeedbackWindow)
		if err != nil {
			return nil, err
		}
		approach = SelectApproach(stats, m.config.Thresholds)
		if approach == models.ApproachNone {
			return nil, domain.NewDomainError(domain.ErrInvalidState,
				fmt.Sprintf("feedback for prompt %s does not call for training", promptID))
		}
	}
	return m.trainer.Run(ctx, promptID, approach, models.TriggerManual)
}

// Start begins ticking every Interval until Stop is called. Each tick runs in
// its own goroutine so that an overrun is observed and dropped rather than queued.
func (m *TriggerMonitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return domain.NewDomainError(domain.ErrInvalidState, "monitor is already running")
	}
	m.stopCh = make(chan struct{})
	m.running = true

	m.logger.Info("trigger monitor started", zap.Duration("interval", m.config.Interval))

	ticker := m.clock.NewTicker(m.config.Interval)
	m.wg.Add(1)
	go m.loop(context.WithoutCancel(ctx), ticker, m.stopCh)

	return nil
}

func (m *TriggerMonitor) loop(ctx context.Context, ticker ports.Ticker, stopCh chan struct{}) {
	defer m.wg.Done()
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C():
			m.wg.Add(1)
			go func() {
				defer m.wg.Done()
				defer func() {
					if r := recover(); r != nil {
						m.logger.Error("monitor tick panicked", zap.Any("panic", r), zap.Stack("stack"))
					}
				}()
				if _, err := m.Tick(ctx); err != nil && !errors.Is(err, domain.ErrTickInProgress) {
					m.logger.Error("monitor tick failed", zap.Error(err))
				}
			}()
		}
	}
}

// Stop stops the ticker and waits for in-progress ticks to finish
func (m *TriggerMonitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stopCh)
	m.mu.Unlock()

	m.logger.Info("stopping trigger monitor")
	m.wg.Wait()
}

// Status returns a snapshot of the monitor state
func (m *TriggerMonitor) Status() MonitorStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return MonitorStatus{
		Running:         m.running,
		Ticking:         m.ticking.Load(),
		Interval:        m.config.Interval,
		TicksCompleted:  m.completed.Load(),
		TicksOverlapped: m.overlapped.Load(),
		LastTick:        m.lastTick,
	}
}
