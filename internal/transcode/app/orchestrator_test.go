package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"hls_transcode_service/internal/transcode/domain"
	"hls_transcode_service/internal/transcode/repository"
	errprocess "hls_transcode_service/pkg/err"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type orchestratorFixture struct {
	clock    *fakeClock
	queue    JobQueue
	store    *memStore
	encoder  *fakeEncoder
	stager   *passthroughStager
	notifier *MockNotifier
	attempts repository.AttemptLogRepo
	scratch  string
	orch     *Orchestrator
}

func newOrchestratorFixture(t *testing.T) *orchestratorFixture {
	t.Helper()
	clock := newFakeClock()
	q, _ := newTestQueue(clock)

	src := filepath.Join(t.TempDir(), "source.mp4")
	require.NoError(t, os.WriteFile(src, []byte("source"), 0o644))

	f := &orchestratorFixture{
		clock:    clock,
		queue:    q,
		store:    newMemStore(),
		encoder:  &fakeEncoder{},
		stager:   &passthroughStager{path: src},
		notifier: new(MockNotifier),
		attempts: repository.NewMemoryAttemptLog(),
		scratch:  t.TempDir(),
	}
	f.orch = NewOrchestrator(f.queue, f.store, f.encoder, f.stager, f.notifier, f.attempts, OrchestratorConfig{
		Renditions:           domain.DefaultRenditions(),
		ScratchDir:           f.scratch,
		AttemptTimeout:       time.Minute,
		RenditionParallelism: 2,
	})
	return f
}

// runNext 領取下一個 job 並執行，退避時間直接快轉
func (f *orchestratorFixture) runNext(t *testing.T) error {
	t.Helper()
	job, err := f.queue.Dequeue(context.Background())
	require.NoError(t, err)
	require.NotNil(t, job)
	return f.orch.Run(context.Background(), job)
}

func (f *orchestratorFixture) assertScratchEmpty(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(f.scratch)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestOrchestrator_AllRenditionsSucceed(t *testing.T) {
	f := newOrchestratorFixture(t)
	ctx := context.Background()
	jobID, err := f.queue.Enqueue(ctx, testRequest)
	require.NoError(t, err)

	f.notifier.On("Notify", mock.Anything, mock.MatchedBy(func(ev domain.CompletionEvent) bool {
		return ev.JobID == jobID && ev.DestinationID == "ep42" &&
			ev.ManifestURL == "https://cdn.test/videos/ep42/master.m3u8"
	})).Once()

	require.NoError(t, f.runNext(t))

	st, err := f.queue.GetStatus(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobCompleted, st.State)
	assert.Empty(t, st.LastError)
	require.NotNil(t, st.Result)
	assert.Equal(t, "videos/ep42/master.m3u8", st.Result.ManifestKey)

	var manifests []string
	for _, a := range st.Result.Artifacts {
		if a.Kind == domain.ArtifactVariant || a.Kind == domain.ArtifactMaster {
			manifests = append(manifests, a.Key)
		}
		assert.Equal(t, f.store.URL(a.Key), a.URL)
	}
	assert.ElementsMatch(t, []string{
		"videos/ep42/240p.m3u8",
		"videos/ep42/480p.m3u8",
		"videos/ep42/720p.m3u8",
		"videos/ep42/master.m3u8",
	}, manifests)
	assert.Len(t, st.Result.Artifacts, 10)

	// master 最後上傳，各畫質的 playlist 在自己的 segment 之後
	assert.Equal(t, "videos/ep42/master.m3u8", f.store.puts[len(f.store.puts)-1])
	for _, r := range domain.DefaultRenditions() {
		seg := indexOf(f.store.puts, domain.ArtifactKey("ep42", r.Name+"_001.ts"))
		pl := indexOf(f.store.puts, domain.ArtifactKey("ep42", r.ManifestName()))
		assert.Less(t, seg, pl, r.Name)
	}

	master := string(f.store.objects["videos/ep42/master.m3u8"])
	assert.Contains(t, master, "RESOLUTION=1280x720\n720p.m3u8")
	assert.Equal(t, "application/vnd.apple.mpegurl", f.store.types["videos/ep42/master.m3u8"])
	assert.Equal(t, "video/MP2T", f.store.types["videos/ep42/240p_000.ts"])

	f.assertScratchEmpty(t)
	f.notifier.AssertExpectations(t)

	recs, err := f.attempts.ListByJob(ctx, jobID)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, domain.StageSucceeded, recs[0].Outcome)
}

func TestOrchestrator_EncoderAlwaysFails(t *testing.T) {
	f := newOrchestratorFixture(t)
	ctx := context.Background()
	jobID, err := f.queue.Enqueue(ctx, testRequest)
	require.NoError(t, err)

	f.encoder.fail = func(domain.Rendition) error {
		return &errprocess.EncodeError{ExitCode: 1, StderrExcerpt: "moov atom not found"}
	}

	var delays []time.Duration
	for attempt := 1; attempt <= 3; attempt++ {
		err := f.runNext(t)
		require.Error(t, err)
		assert.True(t, errors.Is(err, errprocess.ErrEncodeFailed))

		st, err := f.queue.GetStatus(ctx, jobID)
		require.NoError(t, err)
		assert.Equal(t, attempt, st.Attempts)
		assert.LessOrEqual(t, st.Attempts, 3)
		if attempt < 3 {
			assert.Equal(t, domain.JobQueued, st.State)
			job, err := f.queue.Dequeue(ctx)
			require.NoError(t, err)
			assert.Nil(t, job)

			delay := 5 * time.Second << (attempt - 1)
			delays = append(delays, delay)
			f.clock.Advance(delay)
		}
	}
	assert.Equal(t, []time.Duration{5 * time.Second, 10 * time.Second}, delays)

	st, err := f.queue.GetStatus(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobFailed, st.State)
	assert.Contains(t, st.LastError, "moov atom not found")

	// 轉碼失敗不會上傳任何東西
	assert.Empty(t, f.store.puts)
	f.assertScratchEmpty(t)
	f.notifier.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything)

	recs, err := f.attempts.ListByJob(ctx, jobID)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, domain.StageEncoding, recs[2].Stage)
}

func TestOrchestrator_AccessDeniedOnFirstPut(t *testing.T) {
	f := newOrchestratorFixture(t)
	ctx := context.Background()
	jobID, err := f.queue.Enqueue(ctx, testRequest)
	require.NoError(t, err)

	f.store.putErr = func(string) error {
		return errprocess.Wrap(errprocess.ErrAccessDenied, errors.New("AccessDenied"))
	}

	err = f.runNext(t)
	assert.True(t, errors.Is(err, errprocess.ErrAccessDenied))

	st, err := f.queue.GetStatus(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobFailed, st.State)
	assert.Equal(t, 1, st.Attempts)
	assert.Len(t, f.store.puts, 1)

	f.clock.Advance(time.Hour)
	job, err := f.queue.Dequeue(ctx)
	require.NoError(t, err)
	assert.Nil(t, job)
	f.assertScratchEmpty(t)
}

func TestOrchestrator_PartialUploadIsRemoved(t *testing.T) {
	f := newOrchestratorFixture(t)
	ctx := context.Background()
	jobID, err := f.queue.Enqueue(ctx, testRequest)
	require.NoError(t, err)

	f.store.putErr = func(key string) error {
		if strings.HasPrefix(key, "videos/ep42/480p") {
			return errprocess.Wrap(errprocess.ErrStorageUnavailable, errors.New("connection reset"))
		}
		return nil
	}

	err = f.runNext(t)
	assert.True(t, errors.Is(err, errprocess.ErrStorageUnavailable))
	assert.NotEmpty(t, f.store.deletes)
	assert.Empty(t, f.store.keys())

	st, err := f.queue.GetStatus(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobQueued, st.State)
	assert.NotEqual(t, domain.JobCompleted, st.State)
}

func TestOrchestrator_OneRenditionFailsNothingUploaded(t *testing.T) {
	f := newOrchestratorFixture(t)
	ctx := context.Background()
	_, err := f.queue.Enqueue(ctx, testRequest)
	require.NoError(t, err)

	f.encoder.fail = func(r domain.Rendition) error {
		if r.Name == "720p" {
			return &errprocess.EncodeError{ExitCode: 137, StderrExcerpt: "killed"}
		}
		return nil
	}

	err = f.runNext(t)
	var encErr *errprocess.EncodeError
	require.True(t, errors.As(err, &encErr))
	assert.Equal(t, 137, encErr.ExitCode)
	assert.Empty(t, f.store.puts)
	f.assertScratchEmpty(t)
}

func TestOrchestrator_TerminalFailureSweepsDestination(t *testing.T) {
	f := newOrchestratorFixture(t)
	ctx := context.Background()

	_, err := f.store.PutBytes(ctx, "videos/ep42/240p_000.ts", []byte("orphan"), "video/MP2T")
	require.NoError(t, err)

	_, err = f.queue.Enqueue(ctx, domain.EnqueueRequest{
		SourceURL:     "https://example/video.mp4",
		DestinationID: "ep42",
		Options:       domain.EnqueueOptions{MaxAttempts: 1},
	})
	require.NoError(t, err)
	f.stager.err = errprocess.Wrap(errprocess.ErrStorageUnavailable, errors.New("dns"))

	require.Error(t, f.runNext(t))
	assert.Empty(t, f.store.keys())
}

func TestOrchestrator_SweepKeepsCompletedDestination(t *testing.T) {
	f := newOrchestratorFixture(t)
	ctx := context.Background()

	_, err := f.queue.Enqueue(ctx, testRequest)
	require.NoError(t, err)
	f.notifier.On("Notify", mock.Anything, mock.Anything)
	require.NoError(t, f.runNext(t))
	uploaded := f.store.keys()
	require.NotEmpty(t, uploaded)

	_, err = f.queue.Enqueue(ctx, domain.EnqueueRequest{
		SourceURL:     "https://example/video.mp4",
		DestinationID: "ep42",
		Options:       domain.EnqueueOptions{MaxAttempts: 1},
	})
	require.NoError(t, err)
	f.stager.err = errprocess.Wrap(errprocess.ErrStorageUnavailable, errors.New("dns"))

	require.Error(t, f.runNext(t))
	assert.Equal(t, uploaded, f.store.keys())
}

func TestOrchestrator_SweepKeepsDestinationWithActiveSibling(t *testing.T) {
	f := newOrchestratorFixture(t)
	ctx := context.Background()

	// 同一個 destination 的另一個 job 正在上傳
	siblingID, err := f.queue.Enqueue(ctx, testRequest)
	require.NoError(t, err)
	sibling, err := f.queue.Dequeue(ctx)
	require.NoError(t, err)
	require.Equal(t, siblingID, sibling.JobID)
	_, err = f.store.PutBytes(ctx, "videos/ep42/240p_000.ts", []byte("sibling"), "video/MP2T")
	require.NoError(t, err)

	_, err = f.queue.Enqueue(ctx, domain.EnqueueRequest{
		SourceURL:     "https://example/video.mp4",
		DestinationID: "ep42",
		Options:       domain.EnqueueOptions{MaxAttempts: 1},
	})
	require.NoError(t, err)
	f.stager.err = errprocess.Wrap(errprocess.ErrStorageUnavailable, errors.New("dns"))

	require.Error(t, f.runNext(t))
	assert.Equal(t, []string{"videos/ep42/240p_000.ts"}, f.store.keys())

	st, err := f.queue.GetStatus(ctx, siblingID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobActive, st.State)
}

func TestOrchestrator_SweepKeepsDestinationWithQueuedSibling(t *testing.T) {
	f := newOrchestratorFixture(t)
	ctx := context.Background()

	_, err := f.store.PutBytes(ctx, "videos/ep42/240p_000.ts", []byte("earlier"), "video/MP2T")
	require.NoError(t, err)

	_, err = f.queue.Enqueue(ctx, domain.EnqueueRequest{
		SourceURL:     "https://example/video.mp4",
		DestinationID: "ep42",
		Options:       domain.EnqueueOptions{MaxAttempts: 1},
	})
	require.NoError(t, err)
	_, err = f.queue.Enqueue(ctx, testRequest)
	require.NoError(t, err)
	f.stager.err = errprocess.Wrap(errprocess.ErrStorageUnavailable, errors.New("dns"))

	require.Error(t, f.runNext(t))
	assert.Equal(t, []string{"videos/ep42/240p_000.ts"}, f.store.keys())
}

func TestOrchestrator_TimeoutCleansWorkspace(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.orch.cfg.AttemptTimeout = 50 * time.Millisecond
	ctx := context.Background()
	jobID, err := f.queue.Enqueue(ctx, testRequest)
	require.NoError(t, err)

	f.encoder.hook = func(ctx context.Context, _ domain.Rendition) {
		<-ctx.Done()
	}
	f.encoder.fail = func(domain.Rendition) error {
		return errors.New("killed")
	}

	err = f.runNext(t)
	assert.True(t, errors.Is(err, errprocess.ErrTimeout), "%v", err)
	f.assertScratchEmpty(t)

	st, err := f.queue.GetStatus(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobQueued, st.State)
	assert.Equal(t, 1, st.Attempts)
}

func TestOrchestrator_PanicIsAttemptFailure(t *testing.T) {
	f := newOrchestratorFixture(t)
	ctx := context.Background()
	jobID, err := f.queue.Enqueue(ctx, testRequest)
	require.NoError(t, err)

	f.encoder.hook = func(context.Context, domain.Rendition) {
		panic("nil map")
	}

	err = f.runNext(t)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic")
	f.assertScratchEmpty(t)

	st, err := f.queue.GetStatus(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Attempts)
}

func indexOf(list []string, v string) int {
	for i, s := range list {
		if s == v {
			return i
		}
	}
	return -1
}
