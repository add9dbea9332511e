// Package sync reconciles the local event store with the remote service.
// Passes run one at a time on a single worker, in request order: upload
// local changes first, then download and merge remote rows.
package sync

import (
	"context"
	"errors"
	"fmt"
	gosync "sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nhle/reminders/internal/metrics"
	"github.com/nhle/reminders/internal/model"
	"github.com/nhle/reminders/internal/remote"
	"github.com/nhle/reminders/internal/store"
)

// Store is the subset of store.Store a sync pass touches.
type Store interface {
	GetUnsyncedEvents(ctx context.Context) ([]model.Event, error)
	MarkEventSynced(ctx context.Context, id int64, remoteID string) error
	EventExistsByRemoteID(ctx context.Context, remoteID string) (bool, error)
	InsertEvent(ctx context.Context, e model.Event) (int64, error)
	LastSyncTimestamp(ctx context.Context) (int64, error)
	UpdateLastSyncTimestamp(ctx context.Context, at time.Time) error
}

// Leaser hands out the database-wide sync lease. A Store that implements
// it keeps engines in different processes from running passes at the same
// time against one database.
type Leaser interface {
	AcquireSyncLease(ctx context.Context, owner string, ttl time.Duration) (bool, error)
	ReleaseSyncLease(ctx context.Context, owner string) error
}

// Lease defaults. The holder renews every third of the TTL, so a crashed
// holder blocks others for at most one TTL.
const (
	DefaultLeaseTTL  = 2 * time.Minute
	DefaultLeasePoll = 250 * time.Millisecond
)

// ResultMsg is a tea.Msg carrying a finished pass to the TUI.
type ResultMsg struct {
	Result Result
}

// Engine owns the sync worker.
type Engine struct {
	store  Store
	client remote.Client
	now    func() time.Time
	log    *zap.Logger

	queue   *requestQueue
	results chan Result

	lease     Leaser
	owner     string
	leaseTTL  time.Duration
	leasePoll time.Duration

	mu      gosync.Mutex
	started bool
	done    chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
}

// Option customizes an Engine.
type Option func(*Engine)

// WithClock overrides the clock used for the last-sync timestamp.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithLeaseTiming tunes how long the sync lease lasts and how often a
// waiting engine retries it.
func WithLeaseTiming(ttl, poll time.Duration) Option {
	return func(e *Engine) {
		if ttl > 0 {
			e.leaseTTL = ttl
		}
		if poll > 0 {
			e.leasePoll = poll
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(log *zap.Logger) Option {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// New creates an engine. Call Start before requesting passes. When s is
// also a Leaser every pass runs under the sync lease.
func New(s Store, c remote.Client, opts ...Option) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		store:     s,
		client:    c,
		now:       time.Now,
		log:       zap.NewNop(),
		queue:     newRequestQueue(),
		results:   make(chan Result, 16),
		owner:     uuid.NewString(),
		leaseTTL:  DefaultLeaseTTL,
		leasePoll: DefaultLeasePoll,
		done:      make(chan struct{}),
		ctx:       ctx,
		cancel:    cancel,
	}
	if l, ok := s.(Leaser); ok {
		e.lease = l
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start launches the worker. Calling it more than once has no effect.
func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.started {
		return
	}
	e.started = true
	go e.loop()
}

// PerformSync queues a pass and returns a channel that receives exactly
// one Result. Requests are served in arrival order; none is dropped.
func (e *Engine) PerformSync(ctx context.Context) <-chan Result {
	reply := make(chan Result, 1)
	if err := ctx.Err(); err != nil {
		reply <- failedResult(fmt.Sprintf("%s: %v", MessageFailed, err))
		return reply
	}
	if !e.queue.Enqueue(request{reply: reply}) {
		reply <- failedResult(MessageStopped)
		return reply
	}
	metrics.SetSyncQueueDepth(e.queue.Len())
	return reply
}

// SyncNow queues a pass and waits for its result or ctx.
func (e *Engine) SyncNow(ctx context.Context) Result {
	select {
	case res := <-e.PerformSync(ctx):
		return res
	case <-ctx.Done():
		return failedResult(fmt.Sprintf("%s: %v", MessageFailed, ctx.Err()))
	}
}

// Shutdown stops accepting requests, lets the in-flight pass finish and
// answers every queued request with a stopped result. If ctx expires
// first the in-flight pass is cancelled.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.queue.Close()

	e.mu.Lock()
	started := e.started
	e.mu.Unlock()

	if !started {
		e.drain()
		e.cancel()
		return nil
	}

	select {
	case <-e.done:
		e.cancel()
		return nil
	case <-ctx.Done():
		e.cancel()
		<-e.done
		return ctx.Err()
	}
}

// LastSync returns the time of the last pass in which a phase succeeded.
// The boolean is false if the store has never synced.
func (e *Engine) LastSync(ctx context.Context) (time.Time, bool, error) {
	ms, err := e.store.LastSyncTimestamp(ctx)
	if err != nil {
		return time.Time{}, false, err
	}
	if ms == 0 {
		return time.Time{}, false, nil
	}
	return time.UnixMilli(ms), true, nil
}

// Results streams every finished pass. Slow readers miss results rather
// than stall the worker.
func (e *Engine) Results() <-chan Result {
	return e.results
}

// WaitForResult returns a tea.Cmd that waits for the next finished pass.
func (e *Engine) WaitForResult() tea.Cmd {
	return func() tea.Msg {
		res, ok := <-e.results
		if !ok {
			return nil
		}
		return ResultMsg{Result: res}
	}
}

// SyncCmd returns a tea.Cmd that runs a pass. Its result arrives through
// WaitForResult like any other pass.
func (e *Engine) SyncCmd() tea.Cmd {
	return func() tea.Msg {
		e.PerformSync(context.Background())
		return nil
	}
}

func (e *Engine) loop() {
	defer close(e.done)
	e.log.Info("sync worker started")
	defer e.log.Info("sync worker stopped")

	for {
		if e.queue.Closed() {
			e.drain()
			return
		}
		req, ok := e.queue.TryDequeue()
		if !ok {
			<-e.queue.Wait()
			continue
		}
		metrics.SetSyncQueueDepth(e.queue.Len())

		res := e.runLeased()
		req.reply <- res
		e.publish(res)
	}
}

// drain answers every queued request with a stopped result.
func (e *Engine) drain() {
	for {
		req, ok := e.queue.TryDequeue()
		if !ok {
			metrics.SetSyncQueueDepth(0)
			return
		}
		req.reply <- failedResult(MessageStopped)
	}
}

func (e *Engine) publish(res Result) {
	select {
	case e.results <- res:
	default:
	}
}

// runLeased runs one pass while holding the sync lease.
func (e *Engine) runLeased() Result {
	if e.lease == nil {
		return e.runPass()
	}
	if err := e.acquireLease(); err != nil {
		if e.ctx.Err() != nil {
			return failedResult(MessageStopped)
		}
		e.log.Error("acquiring sync lease", zap.Error(err))
		return failedResult(fmt.Sprintf("%s: %v", MessageFailed, err))
	}
	stop := e.keepLease()
	defer func() {
		stop()
		if err := e.lease.ReleaseSyncLease(context.Background(), e.owner); err != nil {
			e.log.Warn("releasing sync lease", zap.Error(err))
		}
	}()
	return e.runPass()
}

// acquireLease blocks until the lease is ours or the engine stops.
func (e *Engine) acquireLease() error {
	logged := false
	for {
		ok, err := e.lease.AcquireSyncLease(e.ctx, e.owner, e.leaseTTL)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if !logged {
			e.log.Info("waiting for another process to finish syncing")
			logged = true
		}
		select {
		case <-e.ctx.Done():
			return e.ctx.Err()
		case <-time.After(e.leasePoll):
		}
	}
}

// keepLease renews the lease until the returned func is called.
func (e *Engine) keepLease() (stop func()) {
	quit := make(chan struct{})
	var wg gosync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		t := time.NewTicker(e.leaseTTL / 3)
		defer t.Stop()
		for {
			select {
			case <-quit:
				return
			case <-t.C:
				ok, err := e.lease.AcquireSyncLease(e.ctx, e.owner, e.leaseTTL)
				if err != nil || !ok {
					e.log.Warn("renewing sync lease", zap.Bool("held", ok), zap.Error(err))
				}
			}
		}
	}()
	return func() {
		close(quit)
		wg.Wait()
	}
}

// runPass executes upload then download and folds both into one Result.
func (e *Engine) runPass() (res Result) {
	ctx := e.ctx
	res.StartedAt = e.now()
	log := e.log.With(zap.Time("started_at", res.StartedAt))

	defer func() {
		if r := recover(); r != nil {
			log.Error("sync pass panicked", zap.Any("panic", r), zap.Stack("stack"))
			res.Status = StatusFailed
			res.Message = fmt.Sprintf("%s: %v", MessageFailed, r)
		}
		res.FinishedAt = e.now()
		metrics.ObserveSyncPass(string(res.Status), res.StartedAt)
	}()

	uploadOK := e.upload(ctx, &res)
	downloadOK := e.download(ctx, &res)

	res.Status, res.Message = aggregate(uploadOK, downloadOK)
	if uploadOK || downloadOK {
		if err := e.store.UpdateLastSyncTimestamp(ctx, e.now()); err != nil {
			log.Error("recording last sync time", zap.Error(err))
			if res.Status == StatusSuccess {
				res.Status, res.Message = StatusPartial, MessagePartial
			}
		}
	}

	metrics.AddSyncItems("upload", "ok", res.Uploaded)
	metrics.AddSyncItems("upload", "failed", res.UploadFailed)
	metrics.AddSyncItems("download", "imported", res.Downloaded)
	metrics.AddSyncItems("download", "skipped", res.Skipped)
	metrics.AddSyncItems("download", "failed", res.InsertFailed)

	fields := []zap.Field{
		zap.String("status", string(res.Status)),
		zap.Int("uploaded", res.Uploaded),
		zap.Int("upload_failed", res.UploadFailed),
		zap.Int("downloaded", res.Downloaded),
		zap.Int("skipped", res.Skipped),
		zap.Int("insert_failed", res.InsertFailed),
	}
	if res.UploadErr != nil {
		fields = append(fields, zap.NamedError("upload_error", res.UploadErr))
	}
	if res.DownloadErr != nil {
		fields = append(fields, zap.NamedError("download_error", res.DownloadErr))
	}
	log.Info(res.Message, fields...)
	return res
}

// upload pushes PENDING and LOCAL_ONLY rows. The phase succeeds when
// there is nothing to send or at least one row was accepted.
func (e *Engine) upload(ctx context.Context, res *Result) bool {
	events, err := e.store.GetUnsyncedEvents(ctx)
	if err != nil {
		res.UploadErr = fmt.Errorf("loading unsynced events: %w", err)
		return false
	}
	if len(events) == 0 {
		return true
	}

	results, err := e.client.Upload(ctx, events)
	if err != nil {
		res.UploadErr = err
		res.UploadFailed = len(events)
		res.AuthFailed = remote.IsAuthError(err)
		return false
	}
	if len(results) != len(events) {
		res.UploadErr = fmt.Errorf("remote returned %d results for %d events", len(results), len(events))
		res.UploadFailed = len(events)
		return false
	}

	for i, r := range results {
		ev := events[i]
		if !r.OK() {
			res.UploadFailed++
			e.log.Debug("event not accepted", zap.Int64("event_id", ev.ID), zap.Error(r.Err))
			continue
		}
		err := e.store.MarkEventSynced(ctx, ev.ID, r.RemoteID)
		if errors.Is(err, store.ErrNotFound) {
			// Deleted locally while the upload was in flight.
			res.Uploaded++
			continue
		}
		if errors.Is(err, store.ErrConflict) {
			// The remote reused an id another row already holds.
			res.UploadFailed++
			e.log.Warn("remote id already stored",
				zap.Int64("event_id", ev.ID), zap.String("remote_id", r.RemoteID))
			continue
		}
		if err != nil {
			res.UploadErr = fmt.Errorf("marking event %d synced: %w", ev.ID, err)
			return false
		}
		res.Uploaded++
	}
	return res.Uploaded > 0
}

// download imports remote rows not yet present locally. A row that fails
// to insert is counted and skipped; any other fault fails the phase.
func (e *Engine) download(ctx context.Context, res *Result) bool {
	items, err := e.client.Download(ctx)
	if err != nil {
		res.DownloadErr = err
		if remote.IsAuthError(err) {
			res.AuthFailed = true
		}
		return false
	}

	for _, item := range items {
		exists, err := e.store.EventExistsByRemoteID(ctx, item.RemoteID)
		if err != nil {
			res.DownloadErr = fmt.Errorf("checking remote id %s: %w", item.RemoteID, err)
			return false
		}
		if exists {
			res.Skipped++
			continue
		}

		remoteID := item.RemoteID
		rec := item.Recurrence
		if rec == "" {
			rec = model.RecurrenceNone
		}
		_, err = e.store.InsertEvent(ctx, model.Event{
			RemoteID:    &remoteID,
			Name:        item.Name,
			Date:        item.Date,
			Time:        item.Time,
			Description: item.Description,
			Recurrence:  rec,
			SyncStatus:  model.SyncSynced,
			AlarmState:  model.AlarmUnscheduled,
		})
		switch {
		case errors.Is(err, store.ErrConflict):
			res.Skipped++
		case err != nil:
			res.InsertFailed++
			e.log.Warn("importing remote event", zap.String("remote_id", remoteID), zap.Error(err))
		default:
			res.Downloaded++
		}
	}
	return true
}
