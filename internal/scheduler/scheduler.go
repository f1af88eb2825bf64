// Package scheduler drives the ingestion loop through asynq: one Redis
// backed queue processed with concurrency 1, a periodic task whose
// interval lives in Redis, and the admin operations pause, resume,
// trigger-now, and set-interval. Control state survives restarts because
// it is read back from Redis on every sync.
package scheduler

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/roadpulse/server/internal/cache"
	"github.com/roadpulse/server/internal/config"
	"github.com/roadpulse/server/internal/errcode"
)

// TaskIngestRun is the asynq task type for one full ingestion run.
const TaskIngestRun = "ingest:run"

const (
	queueIngest = "ingest"

	// Control keys. Interval and pause flag are read back on every sync
	// so admin changes apply without a restart.
	keyInterval = "scheduler:interval"
	keyPaused   = "scheduler:paused"
	keyLastRun  = "scheduler:lastrun"

	// syncInterval is how often the periodic manager re-reads control
	// state. Pause and set-interval take effect within one sync.
	syncInterval = 10 * time.Second

	// runTimeout caps one full run. The queue runs one task at a time,
	// so a hung run would otherwise block ingestion forever.
	runTimeout = 30 * time.Minute

	maxIntervalMinutes = 24 * 60
)

// IngestRunner is the engine surface the scheduler drives.
type IngestRunner interface {
	RunAll(ctx context.Context) error
}

// Status is the admin view of the scheduler.
type Status struct {
	IsPaused        bool       `json:"isPaused"`
	IntervalMinutes int        `json:"intervalMinutes"`
	NextRunAt       *time.Time `json:"nextRunAt,omitempty"`
	LastRunAt       *time.Time `json:"lastRunAt,omitempty"`
	ActiveCount     int        `json:"activeCount"`
	WaitingCount    int        `json:"waitingCount"`
}

// Scheduler owns the queue worker, the periodic task manager, and the
// control surface. One instance per process.
type Scheduler struct {
	engine    IngestRunner
	cache     *cache.Client
	logger    *zap.Logger
	client    *asynq.Client
	inspector *asynq.Inspector
	srv       *asynq.Server
	mgr       *asynq.PeriodicTaskManager

	defaultInterval int
}

// RedisOpt translates the cache configuration into asynq's connection
// options, so both sides talk to the same Redis.
func RedisOpt(cfg config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

func New(redisOpt asynq.RedisClientOpt, engine IngestRunner, c *cache.Client, logger *zap.Logger, defaultIntervalMinutes int) (*Scheduler, error) {
	if defaultIntervalMinutes < 1 {
		defaultIntervalMinutes = 5
	}

	s := &Scheduler{
		engine:          engine,
		cache:           c,
		logger:          logger,
		client:          asynq.NewClient(redisOpt),
		inspector:       asynq.NewInspector(redisOpt),
		defaultInterval: defaultIntervalMinutes,
	}

	alog := &asynqLogger{s: logger.Named("asynq").Sugar()}
	s.srv = asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: 1,
		Queues:      map[string]int{queueIngest: 1},
		Logger:      alog,
	})

	mgr, err := asynq.NewPeriodicTaskManager(asynq.PeriodicTaskManagerOpts{
		RedisConnOpt:               redisOpt,
		PeriodicTaskConfigProvider: &periodicProvider{s: s},
		SyncInterval:               syncInterval,
		SchedulerOpts: &asynq.SchedulerOpts{
			Logger:   alog,
			Location: time.UTC,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("creating periodic task manager: %w", err)
	}
	s.mgr = mgr
	return s, nil
}

// Start brings up the worker and the periodic manager. Non-blocking.
func (s *Scheduler) Start() error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskIngestRun, s.handleIngestRun)
	if err := s.srv.Start(mux); err != nil {
		return fmt.Errorf("starting ingest worker: %w", err)
	}
	if err := s.mgr.Start(); err != nil {
		s.srv.Shutdown()
		return fmt.Errorf("starting periodic task manager: %w", err)
	}
	s.logger.Info("scheduler started",
		zap.Int("intervalMinutes", s.intervalMinutes(context.Background())),
		zap.Bool("paused", s.isPaused(context.Background())))
	return nil
}

// Shutdown stops the periodic manager and waits for the in-flight run.
func (s *Scheduler) Shutdown() {
	s.mgr.Shutdown()
	s.srv.Shutdown()
	_ = s.client.Close()
	_ = s.inspector.Close()
}

// handleIngestRun executes one full run. Feed failures are already
// recorded per-feed inside the engine, so the task itself never retries;
// the next tick is the retry.
func (s *Scheduler) handleIngestRun(ctx context.Context, _ *asynq.Task) error {
	started := time.Now()
	err := s.engine.RunAll(ctx)

	stamp := []byte(time.Now().UTC().Format(time.RFC3339))
	if werr := s.cache.SetBytes(ctx, keyLastRun, stamp, 0); werr != nil {
		s.logger.Warn("recording last run time", zap.Error(werr))
	}

	if err != nil {
		s.logger.Error("ingestion run finished with errors",
			zap.Duration("duration", time.Since(started)),
			zap.Error(err))
		return nil
	}
	s.logger.Info("ingestion run finished", zap.Duration("duration", time.Since(started)))
	return nil
}

// TriggerNow enqueues a one-off run. It works while paused; if a run is
// in flight the new one waits behind it.
func (s *Scheduler) TriggerNow(ctx context.Context) error {
	_, err := s.client.EnqueueContext(ctx, asynq.NewTask(TaskIngestRun, nil), taskOpts()...)
	if err != nil {
		return fmt.Errorf("enqueueing ingest run: %w", err)
	}
	s.logger.Info("ingestion run triggered")
	return nil
}

// Pause stops scheduled runs until Resume. Manual triggers still work.
func (s *Scheduler) Pause(ctx context.Context) error {
	if err := s.cache.SetBytes(ctx, keyPaused, []byte("1"), 0); err != nil {
		return fmt.Errorf("pausing scheduler: %w", err)
	}
	s.logger.Info("scheduler paused")
	return nil
}

// Resume restores scheduled runs.
func (s *Scheduler) Resume(ctx context.Context) error {
	if err := s.cache.Delete(ctx, keyPaused); err != nil {
		return fmt.Errorf("resuming scheduler: %w", err)
	}
	s.logger.Info("scheduler resumed")
	return nil
}

// SetInterval replaces the repeating schedule. The new interval applies
// from the next sync, never to an in-flight run.
func (s *Scheduler) SetInterval(ctx context.Context, minutes int) error {
	if minutes < 1 || minutes > maxIntervalMinutes {
		return errcode.Newf(errcode.BadRequest, "intervalMinutes must be between 1 and %d", maxIntervalMinutes)
	}
	if err := s.cache.SetBytes(ctx, keyInterval, []byte(strconv.Itoa(minutes)), 0); err != nil {
		return fmt.Errorf("setting scheduler interval: %w", err)
	}
	s.logger.Info("scheduler interval changed", zap.Int("intervalMinutes", minutes))
	return nil
}

// Status reports the control state plus queue depth from the inspector.
func (s *Scheduler) Status(ctx context.Context) (*Status, error) {
	st := &Status{
		IsPaused:        s.isPaused(ctx),
		IntervalMinutes: s.intervalMinutes(ctx),
	}

	if b, ok, err := s.cache.GetBytes(ctx, keyLastRun); err == nil && ok {
		if t, perr := time.Parse(time.RFC3339, string(b)); perr == nil {
			st.LastRunAt = &t
		}
	}

	// The queue only exists after the first task; absence is not an error.
	if qi, err := s.inspector.GetQueueInfo(queueIngest); err == nil {
		st.ActiveCount = qi.Active
		st.WaitingCount = qi.Pending + qi.Scheduled
	}

	entries, err := s.inspector.SchedulerEntries()
	if err != nil {
		return st, nil
	}
	for _, e := range entries {
		if e.Task.Type() == TaskIngestRun {
			next := e.Next
			st.NextRunAt = &next
			break
		}
	}
	return st, nil
}

func (s *Scheduler) isPaused(ctx context.Context) bool {
	_, ok, err := s.cache.GetBytes(ctx, keyPaused)
	return err == nil && ok
}

func (s *Scheduler) intervalMinutes(ctx context.Context) int {
	b, ok, err := s.cache.GetBytes(ctx, keyInterval)
	if err != nil || !ok {
		return s.defaultInterval
	}
	n, err := strconv.Atoi(string(b))
	if err != nil || n < 1 || n > maxIntervalMinutes {
		return s.defaultInterval
	}
	return n
}

func taskOpts() []asynq.Option {
	return []asynq.Option{
		asynq.Queue(queueIngest),
		asynq.MaxRetry(0),
		asynq.Timeout(runTimeout),
	}
}

// periodicProvider tells the task manager what the repeating schedule
// currently is. Returning no configs while paused removes the entry; the
// manager diffs against the live set, so exactly one repeating job exists.
type periodicProvider struct {
	s *Scheduler
}

func (p *periodicProvider) GetConfigs() ([]*asynq.PeriodicTaskConfig, error) {
	ctx := context.Background()
	if p.s.isPaused(ctx) {
		return nil, nil
	}
	return []*asynq.PeriodicTaskConfig{{
		Cronspec: fmt.Sprintf("@every %dm", p.s.intervalMinutes(ctx)),
		Task:     asynq.NewTask(TaskIngestRun, nil),
		Opts:     taskOpts(),
	}}, nil
}

// asynqLogger adapts zap to asynq's logger interface.
type asynqLogger struct {
	s *zap.SugaredLogger
}

func (l *asynqLogger) Debug(args ...interface{}) { l.s.Debug(args...) }
func (l *asynqLogger) Info(args ...interface{})  { l.s.Info(args...) }
func (l *asynqLogger) Warn(args ...interface{})  { l.s.Warn(args...) }
func (l *asynqLogger) Error(args ...interface{}) { l.s.Error(args...) }
func (l *asynqLogger) Fatal(args ...interface{}) { l.s.Fatal(args...) }
