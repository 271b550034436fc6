package repository

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"hls_transcode_service/internal/transcode/domain"
	"hls_transcode_service/pkg/database"
	testtool "hls_transcode_service/pkg/test_tool"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupPostgres(t *testing.T) (*gorm.DB, string) {
	t.Helper()
	testtool.SkipUnlessIntegration(t)

	ctx := context.Background()
	container, host, port, err := testtool.SetupContainer(ctx, testtool.PostgresRequest("test", "test", "transcode"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	var p int
	_, err = fmt.Sscanf(port, "%d", &p)
	require.NoError(t, err)
	dsn := database.PostgresDSN(host, p, "test", "test", "transcode")

	db, err := database.NewPGConnection(database.Connection{ConnectStr: dsn, RetryCount: 5, RetryInterval: 1})
	require.NoError(t, err)
	require.NoError(t, NewJobRepo(db).AutoMigrate())
	return db, dsn
}

func TestJobRepo_ConcurrentClaimIsExclusive(t *testing.T) {
	db, _ := setupPostgres(t)
	ctx := context.Background()
	repo := NewJobRepo(db)

	now := time.Now().UTC()
	const jobs = 20
	for i := 0; i < jobs; i++ {
		require.NoError(t, repo.Create(ctx, newQueuedJob(fmt.Sprintf("job-%02d", i), now.Add(-time.Second))))
	}

	var (
		mu      sync.Mutex
		claimed = map[string]int{}
		wg      sync.WaitGroup
	)
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				job, err := repo.ClaimNext(ctx, time.Now().UTC())
				if !assert.NoError(t, err) || job == nil {
					return
				}
				mu.Lock()
				claimed[job.JobID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, claimed, jobs)
	for id, n := range claimed {
		assert.Equal(t, 1, n, "job %s claimed more than once", id)
	}
}

func TestJobRepo_UpdateFromRejectsStaleWriter(t *testing.T) {
	db, _ := setupPostgres(t)
	ctx := context.Background()
	repo := NewJobRepo(db)

	require.NoError(t, repo.Create(ctx, newQueuedJob("job-1", time.Now().UTC().Add(-time.Second))))
	job, err := repo.ClaimNext(ctx, time.Now().UTC())
	require.NoError(t, err)
	require.NotNil(t, job)

	first := *job
	first.State = domain.JobCompleted
	first.Result = &domain.JobResult{ManifestKey: "videos/ep42/master.m3u8"}
	require.NoError(t, repo.UpdateFrom(ctx, &first, domain.JobActive, 0))

	second := *job
	second.State = domain.JobQueued
	second.Attempts = 1
	assert.Error(t, repo.UpdateFrom(ctx, &second, domain.JobActive, 0))

	got, err := repo.GetByJobID(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.JobCompleted, got.State)
	require.NotNil(t, got.Result)
	assert.Equal(t, "videos/ep42/master.m3u8", got.Result.ManifestKey)

	n, err := repo.CountByDestination(ctx, "ep42", domain.JobCompleted)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestPGSignal_WakesListener(t *testing.T) {
	_, dsn := setupPostgres(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := database.NewDatabaseConnection(database.Connection{ConnectStr: dsn, RetryCount: 3, RetryInterval: 1})
	require.NoError(t, err)
	defer pool.Close()

	listener := NewPGSignal(ctx, pool, true)
	notifier := NewPGSignal(ctx, pool, false)

	// LISTEN 建立需要一點時間，重送直到收到
	woke := make(chan error, 1)
	go func() { woke <- listener.Wait(ctx) }()
	for {
		require.NoError(t, notifier.Notify(ctx))
		select {
		case err := <-woke:
			require.NoError(t, err)
			return
		case <-time.After(200 * time.Millisecond):
		}
	}
}
