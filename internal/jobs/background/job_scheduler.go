package background

import (
	"context"
	"sync"
	"time"

	"reliefops/internal/jobs"
	"reliefops/internal/models"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

// Intervals configures how often each sweep runs. A zero interval disables that job.
type Intervals struct {
	Escalation      time.Duration
	DeliveryCheck   time.Duration
	OrphanSweep     time.Duration
	StockAlertCheck time.Duration
}

// JobScheduler runs the engine sweeps periodically. Every job runs in singleton
// mode so a slow sweep is never overlapped by its next tick.
type JobScheduler struct {
	scheduler gocron.Scheduler
	sweeper   *jobs.EscalationSweeper
	stock     *jobs.StockAlertJob
	logger    *zap.Logger
	jobs      map[string]gocron.Job
	mu        sync.RWMutex
}

// NewJobScheduler creates the scheduler and registers every enabled job.
func NewJobScheduler(sweeper *jobs.EscalationSweeper, stock *jobs.StockAlertJob, intervals Intervals, logger *zap.Logger) (*JobScheduler, error) {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	js := &JobScheduler{
		scheduler: scheduler,
		sweeper:   sweeper,
		stock:     stock,
		logger:    logger,
		jobs:      make(map[string]gocron.Job),
	}
	js.registerJobs(intervals)
	return js, nil
}

// Start starts the job scheduler
func (js *JobScheduler) Start() {
	js.logger.Info("starting background job scheduler", zap.Int("jobs", len(js.jobs)))
	js.scheduler.Start()
}

// Stop stops the job scheduler and waits for running jobs.
func (js *JobScheduler) Stop() error {
	js.logger.Info("stopping background job scheduler")
	return js.scheduler.Shutdown()
}

func (js *JobScheduler) registerJobs(intervals Intervals) {
	js.addSweep(jobs.SweepEscalation, intervals.Escalation, js.sweeper.SweepEscalations)
	js.addSweep(jobs.SweepDeliveryAlerts, intervals.DeliveryCheck, js.sweeper.SweepDeliveryAlerts)
	js.addSweep(jobs.SweepOrphanVolunteers, intervals.OrphanSweep, js.sweeper.SweepOrphanedVolunteers)

	if js.stock != nil && intervals.StockAlertCheck > 0 {
		if err := js.AddJob("stock-alerts", intervals.StockAlertCheck, js.stock.Run, context.Background()); err != nil {
			js.logger.Error("failed to create stock alerts job", zap.Error(err))
		}
	}
	js.logger.Info("registered background jobs", zap.Int("count", len(js.jobs)))
}

func (js *JobScheduler) addSweep(name string, interval time.Duration, sweep func(context.Context) (*models.BulkOperationResult, error)) {
	if interval <= 0 {
		js.logger.Info("background job disabled", zap.String("job", name))
		return
	}
	task := func(ctx context.Context) {
		if _, err := sweep(ctx); err != nil {
			js.logger.Error("background sweep failed", zap.String("job", name), zap.Error(err))
		}
	}
	if err := js.AddJob(name, interval, task, context.Background()); err != nil {
		js.logger.Error("failed to create background job", zap.String("job", name), zap.Error(err))
	}
}

// AddJob adds a job to the scheduler
func (js *JobScheduler) AddJob(name string, interval time.Duration, taskFn interface{}, params ...interface{}) error {
	js.mu.Lock()
	defer js.mu.Unlock()

	job, err := js.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(taskFn, params...),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return err
	}

	js.jobs[name] = job
	js.logger.Debug("added background job", zap.String("job", name), zap.Duration("interval", interval))
	return nil
}

// RemoveJob removes a job from the scheduler
func (js *JobScheduler) RemoveJob(name string) error {
	js.mu.Lock()
	defer js.mu.Unlock()

	if job, exists := js.jobs[name]; exists {
		err := js.scheduler.RemoveJob(job.ID())
		delete(js.jobs, name)
		return err
	}
	return nil
}

// GetJobStatus returns information about scheduled jobs
func (js *JobScheduler) GetJobStatus() map[string]interface{} {
	js.mu.RLock()
	defer js.mu.RUnlock()

	status := make(map[string]interface{})
	status["total_jobs"] = len(js.jobs)
	names := make([]string, 0, len(js.jobs))
	for name, job := range js.jobs {
		next, err := job.NextRun()
		if err != nil {
			names = append(names, name)
			continue
		}
		names = append(names, name+" (next "+next.Format(time.RFC3339)+")")
	}
	status["jobs"] = names
	return status
}
