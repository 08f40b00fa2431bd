package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"git.handmade.network/hmn/edu/src/logging"
	"github.com/stretchr/testify/assert"
)

func TestCancelAndWait(t *testing.T) {
	t.Run("finishes fast enough", func(t *testing.T) {
		testJobs := Jobs{
			slowToStop("orphan sweep", time.Millisecond*100),
			slowToStop("metrics", time.Millisecond*200),
		}

		before := time.Now()
		unfinished := testJobs.CancelAndWait(time.Second * 1)
		after := time.Now()
		assert.WithinDuration(t, after, before, time.Millisecond*500)
		assert.Len(t, unfinished, 0)
	})
	t.Run("reports unfinished jobs", func(t *testing.T) {
		testJobs := Jobs{
			slowToStop("orphan sweep", time.Millisecond*100),
			slowToStop("metrics", time.Second*10),
		}

		unfinished := testJobs.CancelAndWait(time.Second * 1)
		assert.Equal(t, []string{"metrics"}, unfinished)
	})
}

func TestGo(t *testing.T) {
	t.Run("logger in context", func(t *testing.T) {
		var sawJobLogger bool
		job := Go("sweep", func(ctx context.Context) error {
			sawJobLogger = logging.ExtractLogger(ctx) != logging.GlobalLogger()
			return nil
		})
		<-job.Finished()
		assert.True(t, sawJobLogger)
	})
	t.Run("error still finishes", func(t *testing.T) {
		job := Go("sweep", func(ctx context.Context) error {
			return errors.New("no such directory")
		})
		select {
		case <-job.Finished():
		case <-time.After(time.Second):
			assert.Fail(t, "job did not finish")
		}
	})
	t.Run("panic still finishes", func(t *testing.T) {
		job := Go("sweep", func(ctx context.Context) error {
			panic("boom")
		})
		select {
		case <-job.Finished():
		case <-time.After(time.Second):
			assert.Fail(t, "job did not finish")
		}
	})
	t.Run("stops on cancel", func(t *testing.T) {
		job := Go("sweep", func(ctx context.Context) error {
			<-ctx.Done()
			return nil
		})
		assert.Empty(t, Jobs{job}.CancelAndWait(time.Second))
	})
}

func slowToStop(name string, delay time.Duration) *Job {
	job := New(name)
	go func() {
		<-job.Ctx.Done()
		time.Sleep(delay)
		job.Finish()
	}()
	return job
}
