// Package scheduler runs jobs on fixed intervals or cron expressions from a
// single tick loop.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/adhocore/gronx"
	"github.com/sipeed/picopost/pkg/logger"
	"github.com/sipeed/picopost/pkg/metrics"
)

const DefaultTick = time.Minute

// Job is a unit of scheduled work. Expr, when set, takes precedence over Interval.
type Job struct {
	Name     string
	Interval time.Duration
	Expr     string
	Action   func(ctx context.Context)
}

type jobState struct {
	Job
	next    time.Time
	running bool
}

type Scheduler struct {
	tick       time.Duration
	runOnStart bool

	mu   sync.Mutex
	jobs []*jobState
	wg   sync.WaitGroup
	now  func() time.Time
}

func New(tick time.Duration, runOnStart bool) *Scheduler {
	if tick <= 0 {
		tick = DefaultTick
	}
	return &Scheduler{
		tick:       tick,
		runOnStart: runOnStart,
		now:        time.Now,
	}
}

// Add registers job. The first run is one interval (or the next cron match)
// from now, unless the scheduler runs jobs on start.
func (s *Scheduler) Add(job Job) error {
	if job.Name == "" {
		return errors.New("job name is required")
	}
	if job.Action == nil {
		return fmt.Errorf("job %s: action is required", job.Name)
	}
	if job.Expr == "" && job.Interval <= 0 {
		return fmt.Errorf("job %s: interval or cron expression is required", job.Name)
	}
	if job.Expr != "" && !gronx.IsValid(job.Expr) {
		return fmt.Errorf("job %s: invalid cron expression %q", job.Name, job.Expr)
	}

	st := &jobState{Job: job}
	next, err := st.nextAfter(s.now())
	if err != nil {
		return err
	}
	st.next = next

	s.mu.Lock()
	s.jobs = append(s.jobs, st)
	s.mu.Unlock()

	logger.InfoCF("scheduler", "Job registered", map[string]any{
		"job":      job.Name,
		"interval": job.Interval.String(),
		"cron":     job.Expr,
		"next_run": next.Format(time.RFC3339),
	})
	return nil
}

func (j *jobState) nextAfter(t time.Time) (time.Time, error) {
	if j.Expr == "" {
		return t.Add(j.Interval), nil
	}
	next, err := gronx.NextTickAfter(j.Expr, t, false)
	if err != nil {
		return time.Time{}, fmt.Errorf("job %s: next tick: %w", j.Name, err)
	}
	return next, nil
}

// Run ticks until ctx is done and then waits for running jobs to return.
func (s *Scheduler) Run(ctx context.Context) error {
	logger.InfoCF("scheduler", "Scheduler started", map[string]any{
		"tick":         s.tick.String(),
		"jobs":         s.Len(),
		"run_on_start": s.runOnStart,
	})

	if s.runOnStart {
		s.RunAll(ctx)
	}

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			logger.InfoC("scheduler", "Scheduler stopped")
			return nil
		case <-ticker.C:
			s.RunDue(ctx, s.now())
		}
	}
}

func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// RunAll starts every job regardless of its schedule.
func (s *Scheduler) RunAll(ctx context.Context) int {
	return s.run(ctx, s.now(), true)
}

// RunDue starts every job whose next run is at or before now and returns how
// many were started. Jobs run on their own goroutines.
func (s *Scheduler) RunDue(ctx context.Context, now time.Time) int {
	return s.run(ctx, now, false)
}

func (s *Scheduler) run(ctx context.Context, now time.Time, all bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	started := 0
	for _, j := range s.jobs {
		if !all && now.Before(j.next) {
			continue
		}

		next, err := j.nextAfter(now)
		if err != nil {
			logger.ErrorCF("scheduler", "Failed to compute next run", map[string]any{
				"job":   j.Name,
				"error": err.Error(),
			})
			continue
		}
		j.next = next

		if j.running {
			metrics.JobRuns.WithLabelValues(j.Name, "skipped").Inc()
			logger.WarnCF("scheduler", "Job still running, skipping", map[string]any{
				"job": j.Name,
			})
			continue
		}

		j.running = true
		started++
		s.wg.Add(1)
		go s.execute(ctx, j)
	}
	return started
}

func (s *Scheduler) execute(ctx context.Context, j *jobState) {
	start := s.now()
	result := "ok"

	defer func() {
		if r := recover(); r != nil {
			result = "panic"
			logger.ErrorCF("scheduler", "Job panicked", map[string]any{
				"job":   j.Name,
				"panic": fmt.Sprint(r),
			})
		}

		s.mu.Lock()
		j.running = false
		s.mu.Unlock()

		metrics.JobRuns.WithLabelValues(j.Name, result).Inc()
		logger.DebugCF("scheduler", "Job finished", map[string]any{
			"job":      j.Name,
			"result":   result,
			"duration": s.now().Sub(start).String(),
		})
		s.wg.Done()
	}()

	logger.DebugCF("scheduler", "Job started", map[string]any{"job": j.Name})
	j.Action(ctx)
}

// Wait blocks until all started jobs have returned.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}
