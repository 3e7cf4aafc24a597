package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/admin/tg-bots/invoice-bot/internal/ports/jobs"
	"github.com/admin/tg-bots/invoice-bot/internal/ports/service"
)

// после скольких подряд неудачных тиков отправляется алерт
const alertAfterFailures = 3

// Scheduler управляет запуском периодических джоб
type Scheduler struct {
	jobs           []jobs.Job
	alerterService service.IAlerterService
	log            *slog.Logger
}

// NewScheduler создаёт новый планировщик джоб
func NewScheduler(log *slog.Logger, alerterService service.IAlerterService) *Scheduler {
	return &Scheduler{
		jobs:           make([]jobs.Job, 0),
		alerterService: alerterService,
		log:            log,
	}
}

// Register регистрирует джобу в планировщике
func (s *Scheduler) Register(job jobs.Job) {
	s.jobs = append(s.jobs, job)
	s.log.Debug("job registered", "job_name", job.Name(), "total_jobs", len(s.jobs))
}

// Start запускает планировщик и все зарегистрированные джобы
func (s *Scheduler) Start(ctx context.Context) error {
	if len(s.jobs) == 0 {
		s.log.Error("no jobs registered, scheduler not started")
		return nil
	}

	s.log.Info("starting job scheduler", "jobs_count", len(s.jobs))

	for _, job := range s.jobs {
		job := job
		jobName := job.Name()
		go func() {
			s.runJob(ctx, job, jobName)
		}()
	}

	return nil
}

// runJob запускает отдельную джобу в цикле. Интервалы короткие, поэтому
// упавший тик не ретраится немедленно: следующий тик и есть ретрай. Алерт
// уходит только после нескольких неудач подряд, чтобы мигнувшая сеть не
// будила дежурного
func (s *Scheduler) runJob(ctx context.Context, job jobs.Job, jobName string) {
	consecutiveFailures := 0

	for {
		now := time.Now()
		duration := job.NextRun(now).Sub(now)

		select {
		case <-ctx.Done():
			s.log.Info("job stopped by context", "job_name", jobName)
			return
		case <-time.After(duration):
			if err := s.executeTick(ctx, job); err != nil {
				consecutiveFailures++
				s.log.Error("job tick failed",
					"job_name", jobName,
					"error", err,
					"consecutive_failures", consecutiveFailures,
				)
				if consecutiveFailures == alertAfterFailures {
					s.sendAlert(ctx, jobName, err, consecutiveFailures)
				}
				continue
			}
			if consecutiveFailures >= alertAfterFailures {
				s.sendAlert(ctx, jobName, nil, consecutiveFailures)
			}
			consecutiveFailures = 0
			s.log.Debug("job tick executed", "job_name", jobName)
		}
	}
}

// executeTick выполняет один тик джобы. Паника внутри джобы превращается
// в ошибку тика, иначе она уронила бы весь процесс
func (s *Scheduler) executeTick(ctx context.Context, job jobs.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return job.Run(ctx)
}

// sendAlert алертит о серии неудачных тиков либо о восстановлении
func (s *Scheduler) sendAlert(ctx context.Context, jobName string, err error, failures int) {
	if s.alerterService == nil {
		return
	}

	var message string
	if err != nil {
		message = fmt.Sprintf("⚠️ Джоба %s падает %d тиков подряд\n\nПоследняя ошибка: %s",
			jobName, failures, err.Error())
	} else {
		message = fmt.Sprintf("✅ Джоба %s восстановилась после %d неудачных тиков", jobName, failures)
	}

	if alertErr := s.alerterService.SendAlert(ctx, message); alertErr != nil {
		s.log.Warn("failed to send job alert",
			"job_name", jobName,
			"error", alertErr,
		)
	}
}
