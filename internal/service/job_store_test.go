package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/influencerlab/api/internal/model"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	rdb := redis.NewClient(&redis.Options{Addr: "localhost:6379", DB: 15})
	t.Cleanup(func() { rdb.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Skipf("skipping: redis not available: %v", err)
	}
	return rdb
}

func TestMemoryJobStoreUpdate(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryJobStore()
	require.NoError(t, store.Save(ctx, &model.Job{ID: "j1", Status: model.JobStatusQueued}))

	job, err := store.Update(ctx, "j1", func(job *model.Job) error {
		job.Status = model.JobStatusRunning
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusRunning, job.Status)

	boom := errors.New("boom")
	_, err = store.Update(ctx, "j1", func(job *model.Job) error {
		job.Status = model.JobStatusFailed
		return boom
	})
	assert.ErrorIs(t, err, boom)

	stored, err := store.Get(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusRunning, stored.Status)

	_, err = store.Update(ctx, "missing", func(*model.Job) error { return nil })
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestRedisJobStoreUpdateRetriesOnConcurrentWrite(t *testing.T) {
	rdb := newTestRedis(t)
	ctx := context.Background()
	store := NewRedisJobStore(rdb, time.Minute)

	id := "store-test-" + time.Now().Format("150405.000000000")
	t.Cleanup(func() { rdb.Del(context.Background(), jobKey(id)) })
	require.NoError(t, store.Save(ctx, &model.Job{ID: id, Status: model.JobStatusRunning}))

	calls := 0
	_, err := store.Update(ctx, id, func(job *model.Job) error {
		calls++
		if calls == 1 {
			// Another writer cancels the job while this update is in flight.
			canceled, err := json.Marshal(&model.Job{ID: id, Status: model.JobStatusCanceled})
			require.NoError(t, err)
			require.NoError(t, rdb.Set(ctx, jobKey(id), canceled, time.Minute).Err())
		}
		if job.Status.IsTerminal() {
			return ErrJobAlreadyFinished
		}
		job.Progress = 50
		return nil
	})

	assert.ErrorIs(t, err, ErrJobAlreadyFinished)
	assert.Equal(t, 2, calls)

	stored, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCanceled, stored.Status)
	assert.Zero(t, stored.Progress)
}

func TestRedisJobStoreUpdateMissing(t *testing.T) {
	store := NewRedisJobStore(newTestRedis(t), time.Minute)
	_, err := store.Update(context.Background(), "does-not-exist", func(*model.Job) error { return nil })
	assert.ErrorIs(t, err, ErrJobNotFound)
}
