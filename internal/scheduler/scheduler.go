// Package scheduler drives the timed notifications: lesson prompts and
// upcoming-lesson reminders, the evening digest, the weekly archive sweep and
// one-off homework deadline reminders.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/noah-isme/timetable-notifier/internal/models"
	"github.com/noah-isme/timetable-notifier/pkg/logger"
	"github.com/noah-isme/timetable-notifier/pkg/notify"
)

// Names of the recurring jobs; they double as registry keys.
const (
	JobUnifiedCheck    = "unified-lesson-check"
	JobDailyDigest     = "daily-digest"
	JobWeeklyArchive   = "weekly-archive"
	JobReminderRefresh = "reminder-refresh"
	jobDeadlineRemind  = "deadline-reminder"
)

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

type lessonSource interface {
	ListByDay(ctx context.Context, dayOfWeek int) ([]models.Lesson, error)
}

type homeworkSource interface {
	FindByID(ctx context.Context, id string) (*models.HomeworkWithLesson, error)
	ListUndone(ctx context.Context) ([]models.HomeworkWithLesson, error)
	CountPendingByOwner(ctx context.Context) ([]models.PendingCount, error)
}

type archiveSweeper interface {
	Sweep(ctx context.Context) (int64, error)
}

type metricsRecorder interface {
	RecordNotification(kind string, err error)
	ObserveJob(job string, duration time.Duration, err error)
	SetRegisteredJobs(n int)
}

type noopMetrics struct{}

func (noopMetrics) RecordNotification(string, error)        {}
func (noopMetrics) ObserveJob(string, time.Duration, error) {}
func (noopMetrics) SetRegisteredJobs(int)                   {}

// Config holds the cron specs and windows of the recurring jobs.
type Config struct {
	UnifiedCheckSpec    string
	DigestSpec          string
	ArchiveSpec         string
	ReminderRefreshSpec string
	UpcomingLead        time.Duration
	UpcomingTolerance   time.Duration
	JobTimeout          time.Duration
	Location            *time.Location
	Clock               Clock
}

func (c Config) withDefaults() Config {
	if c.UnifiedCheckSpec == "" {
		c.UnifiedCheckSpec = "15 * * * *"
	}
	if c.DigestSpec == "" {
		c.DigestSpec = "0 20 * * *"
	}
	if c.ArchiveSpec == "" {
		c.ArchiveSpec = "0 2 * * 1"
	}
	if c.ReminderRefreshSpec == "" {
		c.ReminderRefreshSpec = "5 0 * * *"
	}
	if c.UpcomingLead <= 0 {
		c.UpcomingLead = 15 * time.Minute
	}
	if c.UpcomingTolerance <= 0 {
		c.UpcomingTolerance = 2 * time.Minute
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = 5 * time.Minute
	}
	if c.Location == nil {
		c.Location = time.UTC
	}
	if c.Clock == nil {
		c.Clock = systemClock{}
	}
	return c
}

type registration struct {
	id cron.EntryID
}

// Scheduler owns the cron engine and a key-addressed registry of its
// entries. Registering under a taken key replaces the previous entry.
type Scheduler struct {
	cfg       Config
	cron      *cron.Cron
	lessons   lessonSource
	homeworks homeworkSource
	archive   archiveSweeper
	notifier  notify.Notifier
	metrics   metricsRecorder
	logger    *zap.Logger

	mu      sync.Mutex
	entries map[string]*registration
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
}

// New builds a scheduler. Nothing runs until Start.
func New(cfg Config, lessons lessonSource, homeworks homeworkSource, archive archiveSweeper, notifier notify.Notifier, metrics metricsRecorder, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if notifier == nil {
		notifier = notify.NewLogNotifier(log)
	}
	cfg = cfg.withDefaults()

	cronLog := logger.Cron(log)
	engine := cron.New(
		cron.WithLocation(cfg.Location),
		cron.WithLogger(cronLog),
		cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
	)

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cfg:       cfg,
		cron:      engine,
		lessons:   lessons,
		homeworks: homeworks,
		archive:   archive,
		notifier:  notifier,
		metrics:   metrics,
		logger:    log,
		entries:   make(map[string]*registration),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start registers the recurring jobs, registers reminders for all undone
// homework and starts the engine. The scheduler stops when ctx is done or
// Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	recurring := []struct {
		key  string
		spec string
		run  func(context.Context) error
	}{
		{JobUnifiedCheck, s.cfg.UnifiedCheckSpec, s.CheckLessons},
		{JobDailyDigest, s.cfg.DigestSpec, s.SendDigests},
		{JobWeeklyArchive, s.cfg.ArchiveSpec, s.ArchiveCompleted},
		{JobReminderRefresh, s.cfg.ReminderRefreshSpec, s.RefreshReminders},
	}
	for _, job := range recurring {
		schedule, err := cron.ParseStandard(job.spec)
		if err != nil {
			return fmt.Errorf("parse %s schedule %q: %w", job.key, job.spec, err)
		}
		run := job.run
		name := job.key
		s.register(job.key, &registration{}, schedule, func() { s.runJob(name, run) })
	}

	if err := s.RefreshReminders(s.context()); err != nil {
		s.logger.Sugar().Warnw("initial reminder registration failed", "error", err)
	}

	s.mu.Lock()
	s.started = true
	s.mu.Unlock()
	s.cron.Start()
	s.logger.Sugar().Infow("scheduler started", "jobs", len(s.PendingJobKeys()), "location", s.cfg.Location.String())
	return nil
}

// Stop halts the engine and waits for running jobs until ctx expires.
func (s *Scheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	started := s.started
	s.started = false
	s.mu.Unlock()
	if !started {
		return
	}
	done := s.cron.Stop()
	s.cancel()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.logger.Warn("scheduler stop timed out")
	}
	s.logger.Info("scheduler stopped")
}

// PendingJobKeys lists the registered keys in lexical order.
func (s *Scheduler) PendingJobKeys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.entries))
	for key := range s.entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// NextRun returns the next activation of key, or the zero time when the key
// is unknown or the engine has not computed it yet.
func (s *Scheduler) NextRun(key string) time.Time {
	s.mu.Lock()
	reg, ok := s.entries[key]
	s.mu.Unlock()
	if !ok {
		return time.Time{}
	}
	return s.cron.Entry(reg.id).Next
}

func (s *Scheduler) register(key string, reg *registration, schedule cron.Schedule, run func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.entries[key]; ok {
		s.cron.Remove(old.id)
	}
	reg.id = s.cron.Schedule(schedule, cron.FuncJob(run))
	s.entries[key] = reg
	s.metrics.SetRegisteredJobs(len(s.entries))
}

// unregister drops key; when reg is set only that exact registration is
// removed, so a replaced entry cannot evict its successor.
func (s *Scheduler) unregister(key string, reg *registration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.entries[key]
	if !ok || (reg != nil && current != reg) {
		return false
	}
	s.cron.Remove(current.id)
	delete(s.entries, key)
	s.metrics.SetRegisteredJobs(len(s.entries))
	return true
}

func (s *Scheduler) context() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}

func (s *Scheduler) runJob(name string, run func(context.Context) error) {
	ctx, cancel := context.WithTimeout(s.context(), s.cfg.JobTimeout)
	defer cancel()

	start := time.Now()
	err := run(ctx)
	s.metrics.ObserveJob(name, time.Since(start), err)
	if err != nil {
		s.logger.Sugar().Errorw("scheduled job failed", "job", name, "error", err)
		return
	}
	s.logger.Sugar().Debugw("scheduled job finished", "job", name, "duration", time.Since(start))
}

func (s *Scheduler) now() time.Time {
	return s.cfg.Clock.Now().In(s.cfg.Location)
}

func (s *Scheduler) send(ctx context.Context, msg notify.Message) error {
	err := s.notifier.Send(ctx, msg)
	s.metrics.RecordNotification(msg.Kind, err)
	if err != nil {
		s.logger.Sugar().Warnw("notification failed", "owner_id", msg.OwnerID, "kind", msg.Kind, "error", err)
	}
	return err
}

// onceSchedule fires a single time at a fixed instant.
type onceSchedule struct {
	at time.Time
}

func (o onceSchedule) Next(t time.Time) time.Time {
	if t.Before(o.at) {
		return o.at
	}
	return time.Time{}
}

var errNoSource = errors.New("scheduler: data source not configured")
