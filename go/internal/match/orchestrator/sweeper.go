package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog/log"
)

// Job is a periodic task run by the sweeper next to the overdue sweep, such
// as purging idle clock sessions or relayed outbox rows.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// AddJob registers j. It must be called before Run.
func (o *Orchestrator) AddJob(j Job) {
	o.jobs = append(o.jobs, j)
}

// Sweep enqueues every active match whose stored deadline has passed.
func (o *Orchestrator) Sweep(ctx context.Context) error {
	ids, err := o.service.FetchOverdueMatches(ctx, o.sweepBatch)
	if err != nil {
		return fmt.Errorf("failed to fetch overdue matches: %w", err)
	}
	for _, id := range ids {
		o.enqueue(id)
	}
	if len(ids) > 0 {
		log.Info().Int("count", len(ids)).Str("instance", o.instanceID).Msg("swept overdue matches")
	}
	return nil
}

// startSweeper schedules the overdue sweep and any registered jobs. It
// returns a nil scheduler when there is nothing to run.
func (o *Orchestrator) startSweeper(ctx context.Context) (gocron.Scheduler, error) {
	var jobs []Job
	if o.sweepInterval > 0 {
		jobs = append(jobs, Job{Name: "overdue-sweep", Interval: o.sweepInterval, Run: o.Sweep})
	}
	jobs = append(jobs, o.jobs...)
	if len(jobs) == 0 {
		return nil, nil
	}

	sched, err := gocron.NewScheduler(gocron.WithClock(o.clock), gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, fmt.Errorf("create sweeper: %w", err)
	}
	for _, j := range jobs {
		_, err := sched.NewJob(
			gocron.DurationJob(j.Interval),
			gocron.NewTask(func(job Job) {
				if err := job.Run(ctx); err != nil {
					log.Error().Err(err).Str("job", job.Name).Msg("sweeper job failed")
				}
			}, j),
			gocron.WithName(j.Name),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			_ = sched.Shutdown()
			return nil, fmt.Errorf("schedule %s: %w", j.Name, err)
		}
		log.Info().Str("job", j.Name).Dur("interval", j.Interval).Msg("sweeper job scheduled")
	}
	sched.Start()
	return sched, nil
}
