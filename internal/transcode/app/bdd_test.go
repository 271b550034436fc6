package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"hls_transcode_service/internal/transcode/domain"
	"hls_transcode_service/internal/transcode/repository"
	errprocess "hls_transcode_service/pkg/err"

	"github.com/cucumber/godog"
)

func TestQueueFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: initializeQueueScenario,
		Options: &godog.Options{
			Paths:    []string{"./features"},
			Format:   "pretty",
			Output:   os.Stdout,
			TestingT: t,
		},
	}
	if suite.Run() != 0 {
		t.Fatal("queue features failed")
	}
}

type queueWorld struct {
	ctx     context.Context
	clock   *fakeClock
	queue   JobQueue
	jobID   string
	claimed *domain.TranscodeJob
}

func initializeQueueScenario(s *godog.ScenarioContext) {
	w := &queueWorld{ctx: context.Background()}

	s.Step(`^a queue allowing (\d+) attempts with a base delay of (\d+) seconds$`, w.aQueue)
	s.Step(`^a job for "([^"]*)" into "([^"]*)"$`, w.aJob)
	s.Step(`^a worker claims the job$`, w.claim)
	s.Step(`^no worker can claim the job$`, w.noClaim)
	s.Step(`^the attempt fails with a transient error$`, func() error {
		return w.fail(&errprocess.EncodeError{ExitCode: 1, StderrExcerpt: "moov atom not found"})
	})
	s.Step(`^the attempt fails with access denied$`, func() error {
		return w.fail(errprocess.Wrap(errprocess.ErrAccessDenied, errors.New("403")))
	})
	s.Step(`^the attempt completes with manifest "([^"]*)"$`, w.complete)
	s.Step(`^(\d+) seconds pass$`, func(n int) error {
		w.clock.Advance(time.Duration(n) * time.Second)
		return nil
	})
	s.Step(`^the job is "([^"]*)" with (\d+) attempts$`, w.jobIs)
	s.Step(`^the manifest key is "([^"]*)"$`, w.manifestIs)
}

func (w *queueWorld) aQueue(maxAttempts, baseSeconds int) error {
	w.clock = newFakeClock()
	policy := domain.RetryPolicy{
		MaxAttempts: maxAttempts,
		BaseDelay:   time.Duration(baseSeconds) * time.Second,
		MaxDelay:    time.Hour,
	}
	w.queue = NewJobQueue(repository.NewMemoryJobRepo(), nil, policy, WithClock(w.clock.Now))
	return nil
}

func (w *queueWorld) aJob(source, dest string) error {
	id, err := w.queue.Enqueue(w.ctx, domain.EnqueueRequest{SourceURL: source, DestinationID: dest})
	w.jobID = id
	return err
}

func (w *queueWorld) claim() error {
	job, err := w.queue.Dequeue(w.ctx)
	if err != nil {
		return err
	}
	if job == nil || job.JobID != w.jobID {
		return fmt.Errorf("expected to claim job %s, got %v", w.jobID, job)
	}
	w.claimed = job
	return nil
}

func (w *queueWorld) noClaim() error {
	job, err := w.queue.Dequeue(w.ctx)
	if err != nil {
		return err
	}
	if job != nil {
		return fmt.Errorf("job %s claimed before its backoff elapsed", job.JobID)
	}
	return nil
}

func (w *queueWorld) fail(cause error) error {
	_, err := w.queue.Fail(w.ctx, w.jobID, cause)
	return err
}

func (w *queueWorld) complete(manifestKey string) error {
	return w.queue.Complete(w.ctx, w.jobID, domain.JobResult{ManifestKey: manifestKey})
}

func (w *queueWorld) jobIs(state string, attempts int) error {
	st, err := w.queue.GetStatus(w.ctx, w.jobID)
	if err != nil {
		return err
	}
	if string(st.State) != state || st.Attempts != attempts {
		return fmt.Errorf("expected %s/%d, got %s/%d", state, attempts, st.State, st.Attempts)
	}
	return nil
}

func (w *queueWorld) manifestIs(key string) error {
	st, err := w.queue.GetStatus(w.ctx, w.jobID)
	if err != nil {
		return err
	}
	if st.Result == nil || st.Result.ManifestKey != key {
		return fmt.Errorf("expected manifest %s, got %+v", key, st.Result)
	}
	return nil
}
