package sync_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	gosync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/nhle/reminders/internal/model"
	"github.com/nhle/reminders/internal/remote"
	"github.com/nhle/reminders/internal/remote/remotetest"
	"github.com/nhle/reminders/internal/store"
	"github.com/nhle/reminders/internal/sync"
	"github.com/nhle/reminders/tests/testutil"
)

type fixture struct {
	store  *store.SQLiteStore
	remote *remotetest.Server
	engine *sync.Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{store: testutil.NewTestStore(t), remote: remotetest.New()}
	ts := httptest.NewServer(f.remote.Handler())
	t.Cleanup(ts.Close)

	client := remote.NewHTTPClient(ts.URL, remote.WithTimeout(2*time.Second))
	f.engine = sync.New(f.store, client, sync.WithLogger(zaptest.NewLogger(t)))
	f.engine.Start()
	t.Cleanup(func() { _ = f.engine.Shutdown(context.Background()) })
	return f
}

func (f *fixture) insert(t *testing.T, name, date, hhmm string) int64 {
	t.Helper()
	id, err := f.store.InsertEvent(context.Background(), model.Event{Name: name, Date: date, Time: hhmm})
	require.NoError(t, err)
	return id
}

func (f *fixture) event(t *testing.T, id int64) *model.Event {
	t.Helper()
	e, err := f.store.GetEventByID(context.Background(), id)
	require.NoError(t, err)
	return e
}

func (f *fixture) count(t *testing.T) int {
	t.Helper()
	events, err := f.store.GetEvents(context.Background(), store.EventFilter{})
	require.NoError(t, err)
	return len(events)
}

func TestSync_EndToEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.remote.Seed(remote.Post{ID: "r1", Title: "Standup", Body: "daily", UserID: 1})
	dentist := f.insert(t, "Dentist", "2024-05-02", "14:30")

	before := time.Now().UnixMilli()
	res := f.engine.SyncNow(ctx)

	assert.Equal(t, sync.StatusSuccess, res.Status)
	assert.Equal(t, "Sync completed successfully", res.Message)
	assert.Equal(t, 1, res.Uploaded)
	assert.Equal(t, 1, res.Downloaded)

	local := f.event(t, dentist)
	assert.Equal(t, model.SyncSynced, local.SyncStatus)
	require.NotNil(t, local.RemoteID)
	assert.Equal(t, "101", *local.RemoteID)

	imported, err := f.store.GetEvents(ctx, store.EventFilter{RemoteID: strPtr("r1")})
	require.NoError(t, err)
	require.Len(t, imported, 1)
	assert.Equal(t, "Standup", imported[0].Name)
	assert.Equal(t, "daily", imported[0].Description)
	assert.Equal(t, "2025-01-01", imported[0].Date)
	assert.Equal(t, "12:00", imported[0].Time)
	assert.Equal(t, model.SyncSynced, imported[0].SyncStatus)
	assert.Equal(t, model.AlarmUnscheduled, imported[0].AlarmState)

	ts, err := f.store.LastSyncTimestamp(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, ts, before)

	last, ok, err := f.engine.LastSync(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, ts, last.UnixMilli())
}

func strPtr(s string) *string { return &s }

func TestSync_DownloadMergeIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.remote.Seed(
		remote.Post{ID: "r1", Title: "Standup", UserID: 1},
		remote.Post{ID: "r2", Title: "Retro", UserID: 1},
	)

	first := f.engine.SyncNow(ctx)
	require.Equal(t, sync.StatusSuccess, first.Status)
	assert.Equal(t, 2, first.Downloaded)
	n := f.count(t)

	second := f.engine.SyncNow(ctx)
	require.Equal(t, sync.StatusSuccess, second.Status)
	assert.Equal(t, 0, second.Downloaded)
	assert.Equal(t, 2, second.Skipped)
	assert.Equal(t, n, f.count(t))
}

func TestSync_PartialUploadTolerance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.remote.FailUpload = func(p remote.Post) int {
		if p.Title == "two" {
			return http.StatusBadGateway
		}
		return 0
	}

	one := f.insert(t, "one", "2024-05-01", "09:00")
	two := f.insert(t, "two", "2024-05-01", "10:00")
	three := f.insert(t, "three", "2024-05-01", "11:00")

	res := f.engine.SyncNow(ctx)
	assert.Equal(t, sync.StatusSuccess, res.Status)
	assert.Equal(t, 2, res.Uploaded)
	assert.Equal(t, 1, res.UploadFailed)

	assert.Equal(t, model.SyncSynced, f.event(t, one).SyncStatus)
	assert.Equal(t, model.SyncPending, f.event(t, two).SyncStatus)
	assert.Nil(t, f.event(t, two).RemoteID)
	assert.Equal(t, model.SyncSynced, f.event(t, three).SyncStatus)
}

func TestSync_UploadedRowsAreNotResent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.insert(t, "once", "2024-05-01", "09:00")

	require.Equal(t, sync.StatusSuccess, f.engine.SyncNow(ctx).Status)
	require.Len(t, f.remote.Uploads(), 1)

	res := f.engine.SyncNow(ctx)
	assert.Equal(t, sync.StatusSuccess, res.Status)
	assert.Zero(t, res.Uploaded)
	assert.Len(t, f.remote.Uploads(), 1)
}

func TestSync_LegacyRowsAreUploaded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id, err := f.store.InsertEvent(ctx, model.Event{
		Name: "old", Date: "2023-01-01", Time: "08:00", SyncStatus: model.SyncLocalOnly,
	})
	require.NoError(t, err)

	res := f.engine.SyncNow(ctx)
	assert.Equal(t, 1, res.Uploaded)
	assert.Equal(t, model.SyncSynced, f.event(t, id).SyncStatus)
}

func TestSync_PhaseFailures(t *testing.T) {
	t.Run("download fails", func(t *testing.T) {
		f := newFixture(t)
		f.remote.DownloadStatus = http.StatusInternalServerError
		f.insert(t, "a", "2024-05-01", "09:00")

		res := f.engine.SyncNow(context.Background())
		assert.Equal(t, sync.StatusPartial, res.Status)
		assert.Equal(t, "Sync completed with some errors", res.Message)
		assert.Error(t, res.DownloadErr)

		ts, err := f.store.LastSyncTimestamp(context.Background())
		require.NoError(t, err)
		assert.Positive(t, ts)
	})

	t.Run("every upload rejected", func(t *testing.T) {
		f := newFixture(t)
		f.remote.FailUpload = func(remote.Post) int { return http.StatusInternalServerError }
		f.insert(t, "a", "2024-05-01", "09:00")

		res := f.engine.SyncNow(context.Background())
		assert.Equal(t, sync.StatusPartial, res.Status)
		assert.Equal(t, 1, res.UploadFailed)
	})

	t.Run("both fail", func(t *testing.T) {
		f := newFixture(t)
		f.remote.FailUpload = func(remote.Post) int { return http.StatusInternalServerError }
		f.remote.DownloadStatus = http.StatusInternalServerError
		f.insert(t, "a", "2024-05-01", "09:00")

		res := f.engine.SyncNow(context.Background())
		assert.Equal(t, sync.StatusFailed, res.Status)
		assert.Equal(t, "Sync failed", res.Message)
		assert.False(t, res.OK())

		ts, err := f.store.LastSyncTimestamp(context.Background())
		require.NoError(t, err)
		assert.Zero(t, ts)
	})

	t.Run("auth rejected", func(t *testing.T) {
		f := newFixture(t)
		f.remote.Token = "expected"
		f.insert(t, "a", "2024-05-01", "09:00")

		res := f.engine.SyncNow(context.Background())
		assert.Equal(t, sync.StatusFailed, res.Status)
		assert.True(t, res.AuthFailed)
	})
}

// scriptedClient is a remote.Client driven by test hooks.
type scriptedClient struct {
	mu       gosync.Mutex
	active   int
	overlaps int
	calls    []string

	upload   func(ctx context.Context, events []model.Event) ([]remote.UploadResult, error)
	download func(ctx context.Context) ([]model.RemoteEvent, error)
}

func (c *scriptedClient) enter(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active++
	if c.active > 1 {
		c.overlaps++
	}
	c.calls = append(c.calls, name)
}

func (c *scriptedClient) leave() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active--
}

func (c *scriptedClient) Upload(ctx context.Context, events []model.Event) ([]remote.UploadResult, error) {
	c.enter("upload")
	defer c.leave()
	if c.upload != nil {
		return c.upload(ctx, events)
	}
	return nil, nil
}

func (c *scriptedClient) Download(ctx context.Context) ([]model.RemoteEvent, error) {
	c.enter("download")
	defer c.leave()
	if c.download != nil {
		return c.download(ctx)
	}
	return nil, nil
}

func TestEngine_PassesAreSerializedFIFO(t *testing.T) {
	s := testutil.NewTestStore(t)
	release := make(chan struct{})
	var order []int
	var orderMu gosync.Mutex
	pass := 0

	client := &scriptedClient{
		download: func(ctx context.Context) ([]model.RemoteEvent, error) {
			orderMu.Lock()
			pass++
			n := pass
			orderMu.Unlock()
			if n == 1 {
				<-release
			}
			orderMu.Lock()
			order = append(order, n)
			orderMu.Unlock()
			return nil, nil
		},
	}

	e := sync.New(s, client)
	e.Start()
	defer e.Shutdown(context.Background())

	ctx := context.Background()
	replies := []<-chan sync.Result{e.PerformSync(ctx)}
	time.Sleep(20 * time.Millisecond)
	replies = append(replies, e.PerformSync(ctx), e.PerformSync(ctx))
	close(release)

	for _, ch := range replies {
		select {
		case res := <-ch:
			assert.Equal(t, sync.StatusSuccess, res.Status)
		case <-time.After(5 * time.Second):
			t.Fatal("sync result not delivered")
		}
	}

	assert.Equal(t, []int{1, 2, 3}, order)
	assert.Zero(t, client.overlaps)
	assert.Equal(t, []string{"download", "download", "download"}, client.calls)
}

func TestEngine_UploadPrecedesDownload(t *testing.T) {
	s := testutil.NewTestStore(t)
	testutil.SeedEvent(t, s, model.Event{Name: "a", Date: "2024-05-01", Time: "09:00"})

	client := &scriptedClient{
		upload: func(_ context.Context, events []model.Event) ([]remote.UploadResult, error) {
			return []remote.UploadResult{{RemoteID: "x1"}}, nil
		},
	}
	e := sync.New(s, client)
	e.Start()
	defer e.Shutdown(context.Background())

	res := e.SyncNow(context.Background())
	assert.Equal(t, sync.StatusSuccess, res.Status)
	assert.Equal(t, []string{"upload", "download"}, client.calls)
}

func TestEngine_ShutdownDrainsQueue(t *testing.T) {
	s := testutil.NewTestStore(t)
	started := make(chan struct{})
	release := make(chan struct{})
	client := &scriptedClient{
		download: func(ctx context.Context) ([]model.RemoteEvent, error) {
			close(started)
			<-release
			return nil, nil
		},
	}

	e := sync.New(s, client)
	e.Start()
	ctx := context.Background()

	inFlight := e.PerformSync(ctx)
	<-started
	queued := []<-chan sync.Result{e.PerformSync(ctx), e.PerformSync(ctx)}

	shutdown := make(chan error, 1)
	go func() { shutdown <- e.Shutdown(context.Background()) }()
	require.Eventually(t, func() bool {
		select {
		case res := <-e.PerformSync(ctx):
			return res.Message == sync.MessageStopped
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
	close(release)

	require.NoError(t, <-shutdown)
	assert.Equal(t, sync.StatusSuccess, (<-inFlight).Status)
	for _, ch := range queued {
		res := <-ch
		assert.Equal(t, sync.StatusFailed, res.Status)
		assert.Equal(t, "sync engine stopped", res.Message)
	}

	late := <-e.PerformSync(ctx)
	assert.Equal(t, sync.StatusFailed, late.Status)
	assert.Equal(t, "sync engine stopped", late.Message)
}

func TestEngine_ShutdownWithoutStart(t *testing.T) {
	e := sync.New(testutil.NewTestStore(t), &scriptedClient{})
	pending := e.PerformSync(context.Background())

	require.NoError(t, e.Shutdown(context.Background()))
	assert.Equal(t, sync.StatusFailed, (<-pending).Status)
}

func TestEngine_PanicBecomesFailedResult(t *testing.T) {
	s := testutil.NewTestStore(t)
	calls := 0
	client := &scriptedClient{
		download: func(ctx context.Context) ([]model.RemoteEvent, error) {
			calls++
			if calls == 1 {
				panic("boom")
			}
			return nil, nil
		},
	}
	e := sync.New(s, client, sync.WithLogger(zaptest.NewLogger(t)))
	e.Start()
	defer e.Shutdown(context.Background())

	res := e.SyncNow(context.Background())
	assert.Equal(t, sync.StatusFailed, res.Status)
	assert.Equal(t, "Sync failed: boom", res.Message)

	res = e.SyncNow(context.Background())
	assert.Equal(t, sync.StatusSuccess, res.Status)
}

func TestEngine_RepeatedRemoteIDIsItemFailure(t *testing.T) {
	s := testutil.NewTestStore(t)
	first := testutil.SeedEvent(t, s, model.Event{Name: "a", Date: "2024-05-01", Time: "09:00"})
	second := testutil.SeedEvent(t, s, model.Event{Name: "b", Date: "2024-05-01", Time: "10:00"})
	third := testutil.SeedEvent(t, s, model.Event{Name: "c", Date: "2024-05-01", Time: "11:00"})

	client := &scriptedClient{
		upload: func(_ context.Context, events []model.Event) ([]remote.UploadResult, error) {
			return []remote.UploadResult{{RemoteID: "101"}, {RemoteID: "101"}, {RemoteID: "102"}}, nil
		},
	}
	e := sync.New(s, client)
	e.Start()
	defer e.Shutdown(context.Background())

	res := e.SyncNow(context.Background())
	assert.Equal(t, sync.StatusSuccess, res.Status)
	assert.NoError(t, res.UploadErr)
	assert.Equal(t, 2, res.Uploaded)
	assert.Equal(t, 1, res.UploadFailed)

	want := map[int64]model.SyncStatus{first: model.SyncSynced, second: model.SyncPending, third: model.SyncSynced}
	for id, status := range want {
		ev, err := s.GetEventByID(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, status, ev.SyncStatus, "event %d", id)
	}
}

func TestEngine_MismatchedUploadResults(t *testing.T) {
	s := testutil.NewTestStore(t)
	testutil.SeedEvent(t, s, model.Event{Name: "a", Date: "2024-05-01", Time: "09:00"})

	client := &scriptedClient{
		upload: func(context.Context, []model.Event) ([]remote.UploadResult, error) {
			return nil, nil
		},
		download: func(context.Context) ([]model.RemoteEvent, error) {
			return nil, errors.New("offline")
		},
	}
	e := sync.New(s, client)
	e.Start()
	defer e.Shutdown(context.Background())

	res := e.SyncNow(context.Background())
	assert.Equal(t, sync.StatusFailed, res.Status)
	assert.Error(t, res.UploadErr)
	assert.Error(t, res.DownloadErr)
}

func TestEngine_DuplicateRemoteIDsInOneDownload(t *testing.T) {
	s := testutil.NewTestStore(t)
	client := &scriptedClient{
		download: func(context.Context) ([]model.RemoteEvent, error) {
			item := model.RemoteEvent{RemoteID: "r9", Name: "dup", Date: "2025-01-01", Time: "12:00"}
			return []model.RemoteEvent{item, item}, nil
		},
	}
	e := sync.New(s, client)
	e.Start()
	defer e.Shutdown(context.Background())

	res := e.SyncNow(context.Background())
	assert.Equal(t, sync.StatusSuccess, res.Status)
	assert.Equal(t, 1, res.Downloaded)
	assert.Equal(t, 1, res.Skipped)
}

func TestEngine_ResultsStream(t *testing.T) {
	e := sync.New(testutil.NewTestStore(t), &scriptedClient{})
	e.Start()
	defer e.Shutdown(context.Background())

	res := e.SyncNow(context.Background())
	select {
	case streamed := <-e.Results():
		assert.Equal(t, res.Status, streamed.Status)
	case <-time.After(time.Second):
		t.Fatal("result not published")
	}

	msg := e.WaitForResult()
	e.PerformSync(context.Background())
	got, ok := msg().(sync.ResultMsg)
	require.True(t, ok)
	assert.Equal(t, sync.StatusSuccess, got.Result.Status)
}

func TestEngine_PassesSerializedAcrossStoreHandles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.db")
	open := func() *store.SQLiteStore {
		s, err := store.NewSQLiteStore(path)
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	}
	first, second := open(), open()
	id := testutil.SeedEvent(t, first, model.Event{Name: "Standup", Date: "2024-05-01", Time: "09:00"})

	var mu gosync.Mutex
	uploads := 0
	newEngine := func(s *store.SQLiteStore, remoteID string) *sync.Engine {
		client := &scriptedClient{
			upload: func(_ context.Context, events []model.Event) ([]remote.UploadResult, error) {
				mu.Lock()
				uploads += len(events)
				mu.Unlock()
				time.Sleep(200 * time.Millisecond)
				results := make([]remote.UploadResult, len(events))
				for i := range results {
					results[i] = remote.UploadResult{RemoteID: remoteID}
				}
				return results, nil
			},
		}
		e := sync.New(s, client, sync.WithLeaseTiming(time.Minute, 20*time.Millisecond))
		e.Start()
		t.Cleanup(func() { _ = e.Shutdown(context.Background()) })
		return e
	}
	e1, e2 := newEngine(first, "r-1"), newEngine(second, "r-2")

	c1 := e1.PerformSync(context.Background())
	c2 := e2.PerformSync(context.Background())
	r1, r2 := <-c1, <-c2

	assert.Equal(t, sync.StatusSuccess, r1.Status)
	assert.Equal(t, sync.StatusSuccess, r2.Status)
	assert.Equal(t, 1, r1.Uploaded+r2.Uploaded)

	mu.Lock()
	assert.Equal(t, 1, uploads)
	mu.Unlock()

	ev, err := first.GetEventByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, ev.RemoteID)
	want := "r-1"
	if r2.Uploaded == 1 {
		want = "r-2"
	}
	assert.Equal(t, want, *ev.RemoteID)
}

func TestEngine_ShutdownWhileWaitingForLease(t *testing.T) {
	s := testutil.NewTestStore(t)
	ok, err := s.AcquireSyncLease(context.Background(), "other-process", time.Hour)
	require.NoError(t, err)
	require.True(t, ok)

	e := sync.New(s, &scriptedClient{}, sync.WithLeaseTiming(time.Hour, 10*time.Millisecond))
	e.Start()
	reply := e.PerformSync(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, e.Shutdown(ctx), context.DeadlineExceeded)

	res := <-reply
	assert.Equal(t, sync.StatusFailed, res.Status)
	assert.Equal(t, sync.MessageStopped, res.Message)
}
