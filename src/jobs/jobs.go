package jobs

import (
	"context"
	"time"

	"git.handmade.network/hmn/edu/src/logging"
	"github.com/rs/zerolog"
)

/*
Background work for long-running commands: periodic sweeps, the metrics
server, anything that must be shut down cleanly on exit. A Job pairs a
cancelable context with a done signal, so the owner can ask every job to stop
and then wait a bounded amount of time for them to do so.
*/
type Job struct {
	Name   string
	Ctx    context.Context
	Logger zerolog.Logger
	cancel func()
	done   chan struct{}
}

func New(name string) *Job {
	logger := logging.With().Str("job", name).Logger()
	ctx, cancel := context.WithCancel(context.Background())
	ctx = logging.AttachLoggerToContext(&logger, ctx)
	return &Job{
		Name:   name,
		Ctx:    ctx,
		Logger: logger,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// Starts work on a new goroutine and finishes the job when it returns. Panics
// and errors are logged with the job's logger.
func Go(name string, work func(ctx context.Context) error) *Job {
	job := New(name)
	go func() {
		defer job.Finish()
		defer logging.LogPanics(&job.Logger)

		if err := work(job.Ctx); err != nil {
			job.Logger.Error().Err(err).Msg("job failed")
		}
	}()
	return job
}

// Asks the job to stop by canceling its context. Called from outside the job.
func (j *Job) Cancel() {
	j.cancel()
}

func (j *Job) Canceled() <-chan struct{} {
	return j.Ctx.Done()
}

// Marks the job as done. Called by the job itself once its work is over.
func (j *Job) Finish() *Job {
	close(j.done)
	return j
}

func (j *Job) Finished() <-chan struct{} {
	return j.done
}

type Jobs []*Job

// Cancels every job and waits for all of them to finish, or for the timeout
// to expire. Returns the names of the jobs that were still running.
func (jobs Jobs) CancelAndWait(timeout time.Duration) []string {
	allDoneChan := make(chan struct{})
	for _, job := range jobs {
		job.Cancel()
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	go func() {
		for _, job := range jobs {
			<-job.Finished()
		}
		close(allDoneChan)
	}()

	select {
	case <-timer.C:
		return jobs.ListUnfinished()
	case <-allDoneChan:
		return nil
	}
}

func (jobs Jobs) ListUnfinished() []string {
	unfinished := []string{}
	for _, job := range jobs {
		select {
		case <-job.Finished():
			continue
		default:
			unfinished = append(unfinished, job.Name)
		}
	}
	return unfinished
}
