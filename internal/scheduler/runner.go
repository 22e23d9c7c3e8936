package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Task is one periodic operation. An empty Spec disables it.
type Task struct {
	Name string
	Spec string
	Run  func(ctx context.Context) error
}

// Runner triggers tasks on six-field (seconds first) cron specs. A task still
// running when its next tick fires is skipped for that tick.
type Runner struct {
	cron    *cron.Cron
	logger  *zap.Logger
	baseCtx context.Context
}

// New creates a runner whose tasks run under baseCtx
func New(baseCtx context.Context, logger *zap.Logger) *Runner {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cl := cronLogger{logger.Sugar()}
	return &Runner{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		logger:  logger,
		baseCtx: baseCtx,
	}
}

// Add registers a task
func (r *Runner) Add(task Task) error {
	if task.Spec == "" {
		r.logger.Info("Scheduled task disabled", zap.String("task", task.Name))
		return nil
	}

	_, err := r.cron.AddFunc(task.Spec, func() {
		start := time.Now()
		if err := task.Run(r.baseCtx); err != nil {
			r.logger.Error("Scheduled task failed", zap.String("task", task.Name), zap.Error(err))
			return
		}
		r.logger.Info("Scheduled task finished",
			zap.String("task", task.Name),
			zap.Duration("took", time.Since(start)),
		)
	})
	if err != nil {
		return err
	}

	r.logger.Info("Scheduled task", zap.String("task", task.Name), zap.String("spec", task.Spec))
	return nil
}

// Start begins firing tasks
func (r *Runner) Start() {
	r.logger.Info("Scheduler started")
	r.cron.Start()
}

// Stop waits for running tasks to return
func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	r.logger.Info("Scheduler stopped")
}

// cronLogger adapts zap to cron.Logger
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Infow(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
