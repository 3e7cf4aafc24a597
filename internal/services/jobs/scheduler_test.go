package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeJob тикает с заданным интервалом и выполняет переданную функцию
type fakeJob struct {
	name     string
	interval time.Duration
	run      func(ctx context.Context) error
	runs     atomic.Int64
}

func (j *fakeJob) Name() string { return j.name }

func (j *fakeJob) NextRun(now time.Time) time.Time {
	return now.Add(j.interval)
}

func (j *fakeJob) Run(ctx context.Context) error {
	j.runs.Add(1)
	return j.run(ctx)
}

type fakeAlerter struct {
	mu     sync.Mutex
	alerts []string
}

func (a *fakeAlerter) SendAlert(_ context.Context, message string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.alerts = append(a.alerts, message)
	return nil
}

func (a *fakeAlerter) Alerts() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.alerts...)
}

func TestExecuteTick(t *testing.T) {
	s := NewScheduler(testLogger(), nil)

	t.Run("успешный тик", func(t *testing.T) {
		job := &fakeJob{name: "ok", run: func(context.Context) error { return nil }}
		if err := s.executeTick(context.Background(), job); err != nil {
			t.Fatalf("неожиданная ошибка: %v", err)
		}
	})

	t.Run("ошибка тика возвращается как есть", func(t *testing.T) {
		want := errors.New("boom")
		job := &fakeJob{name: "fail", run: func(context.Context) error { return want }}
		if err := s.executeTick(context.Background(), job); !errors.Is(err, want) {
			t.Fatalf("ожидалась ошибка %v, получено %v", want, err)
		}
	})

	t.Run("паника превращается в ошибку", func(t *testing.T) {
		job := &fakeJob{name: "panic", run: func(context.Context) error { panic("nil map write") }}
		err := s.executeTick(context.Background(), job)
		if err == nil {
			t.Fatal("ожидалась ошибка после паники")
		}
		if !strings.Contains(err.Error(), "nil map write") {
			t.Fatalf("ошибка должна содержать причину паники, получено: %v", err)
		}
	})
}

func TestRunJobSurvivesPanic(t *testing.T) {
	s := NewScheduler(testLogger(), nil)

	job := &fakeJob{
		name:     "flaky",
		interval: time.Millisecond,
	}
	job.run = func(context.Context) error {
		if job.runs.Load() == 1 {
			panic("first tick explodes")
		}
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		s.runJob(ctx, job, job.Name())
		close(done)
	}()

	deadline := time.After(time.Second)
	for job.runs.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("джоба не продолжила тикать после паники, тиков: %d", job.runs.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("runJob не завершился по отмене контекста")
	}
}

func TestRunJobAlertsAfterConsecutiveFailures(t *testing.T) {
	alerter := &fakeAlerter{}
	s := NewScheduler(testLogger(), alerter)

	job := &fakeJob{
		name:     "broken",
		interval: time.Millisecond,
		run:      func(context.Context) error { panic("always") },
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		s.runJob(ctx, job, job.Name())
		close(done)
	}()

	deadline := time.After(time.Second)
	for job.runs.Load() < alertAfterFailures+1 {
		select {
		case <-deadline:
			t.Fatalf("джоба перестала тикать, тиков: %d", job.runs.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	<-done

	alerts := alerter.Alerts()
	if len(alerts) == 0 {
		t.Fatal("ожидался алерт после серии падений")
	}
	if !strings.Contains(alerts[0], "broken") {
		t.Fatalf("алерт должен содержать имя джобы, получено: %q", alerts[0])
	}
}
