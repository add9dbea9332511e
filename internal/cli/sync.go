package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/nhle/reminders/internal/model"
	appsync "github.com/nhle/reminders/internal/sync"
)

// syncReport is the machine-readable form of a sync Result.
type syncReport struct {
	Status        string    `json:"status" yaml:"status"`
	Message       string    `json:"message" yaml:"message"`
	Uploaded      int       `json:"uploaded" yaml:"uploaded"`
	UploadFailed  int       `json:"upload_failed" yaml:"upload_failed"`
	Downloaded    int       `json:"downloaded" yaml:"downloaded"`
	Skipped       int       `json:"skipped" yaml:"skipped"`
	InsertFailed  int       `json:"insert_failed" yaml:"insert_failed"`
	UploadError   string    `json:"upload_error,omitempty" yaml:"upload_error,omitempty"`
	DownloadError string    `json:"download_error,omitempty" yaml:"download_error,omitempty"`
	AuthFailed    bool      `json:"auth_failed,omitempty" yaml:"auth_failed,omitempty"`
	StartedAt     time.Time `json:"started_at" yaml:"started_at"`
	FinishedAt    time.Time `json:"finished_at" yaml:"finished_at"`
}

func newSyncReport(res appsync.Result) syncReport {
	r := syncReport{
		Status:       string(res.Status),
		Message:      res.Message,
		Uploaded:     res.Uploaded,
		UploadFailed: res.UploadFailed,
		Downloaded:   res.Downloaded,
		Skipped:      res.Skipped,
		InsertFailed: res.InsertFailed,
		AuthFailed:   res.AuthFailed,
		StartedAt:    res.StartedAt,
		FinishedAt:   res.FinishedAt,
	}
	if res.UploadErr != nil {
		r.UploadError = res.UploadErr.Error()
	}
	if res.DownloadErr != nil {
		r.DownloadError = res.DownloadErr.Error()
	}
	return r
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run one sync pass: upload local changes, then download",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(cmd.Context(), rootOpts, runtimeOptions{})
			if err != nil {
				return err
			}
			defer rt.Close()

			engine, err := rt.requireSync()
			if err != nil {
				return err
			}
			res := runOneSync(cmd.Context(), engine)
			if err := printSyncResult(cmd.OutOrStdout(), rootOpts, res); err != nil {
				return err
			}
			if !res.OK() {
				return &ExitError{Code: ExitFailure, Message: res.Message}
			}
			return nil
		},
	}
}

// runOneSync starts engine, waits for a single pass and drains it.
func runOneSync(ctx context.Context, engine *appsync.Engine) appsync.Result {
	engine.Start()
	res := engine.SyncNow(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = engine.Shutdown(shutdownCtx)
	return res
}

func printSyncResult(w io.Writer, rootOpts *RootOptions, res appsync.Result) error {
	report := newSyncReport(res)
	return newFormatter(rootOpts, w).Write(report, func(w io.Writer) error {
		if _, err := fmt.Fprintln(w, res.Summary()); err != nil {
			return err
		}
		if res.AuthFailed {
			fmt.Fprintln(w, `Remote rejected the credentials. Run "reminders login".`)
		}
		if res.UploadErr != nil {
			fmt.Fprintf(w, "  upload: %v\n", res.UploadErr)
		}
		if res.DownloadErr != nil {
			fmt.Fprintf(w, "  download: %v\n", res.DownloadErr)
		}
		return nil
	})
}

// statusReport summarizes local state for the status command.
type statusReport struct {
	SyncEnabled   bool                 `json:"sync_enabled" yaml:"sync_enabled"`
	LastSync      *time.Time           `json:"last_sync,omitempty" yaml:"last_sync,omitempty"`
	Unsynced      int                  `json:"unsynced" yaml:"unsynced"`
	NextAlarm     *time.Time           `json:"next_alarm,omitempty" yaml:"next_alarm,omitempty"`
	Unread        int                  `json:"unread_notifications" yaml:"unread_notifications"`
	TimerBackend  string               `json:"timer_backend" yaml:"timer_backend"`
	DatabasePath  string               `json:"database_path" yaml:"database_path"`
	Notifications []model.Notification `json:"notifications,omitempty" yaml:"notifications,omitempty"`
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	var markRead bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show last sync time, pending uploads, next alarm and notifications",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := openRuntime(ctx, rootOpts, runtimeOptions{})
			if err != nil {
				return err
			}
			defer rt.Close()

			report := statusReport{
				SyncEnabled:  rt.sync != nil,
				TimerBackend: rt.cfg.Timer.Backend,
				DatabasePath: rt.cfg.Database.Path,
			}

			ms, err := rt.store.LastSyncTimestamp(ctx)
			if err != nil {
				return err
			}
			if ms > 0 {
				t := time.UnixMilli(ms).In(rt.cfg.Location())
				report.LastSync = &t
			}

			unsynced, err := rt.store.GetUnsyncedEvents(ctx)
			if err != nil {
				return err
			}
			report.Unsynced = len(unsynced)

			next, ok, err := rt.timers.Next(ctx)
			if err != nil {
				return err
			}
			if ok {
				t := next.In(rt.cfg.Location())
				report.NextAlarm = &t
			}

			notes, err := rt.store.GetUnreadNotifications(ctx)
			if err != nil {
				return err
			}
			report.Unread = len(notes)
			report.Notifications = notes

			if err := newFormatter(rootOpts, cmd.OutOrStdout()).Write(report, func(w io.Writer) error {
				return writeStatus(w, report)
			}); err != nil {
				return err
			}

			if markRead {
				for _, n := range notes {
					if err := rt.store.MarkNotificationRead(ctx, n.ID); err != nil {
						return err
					}
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&markRead, "mark-read", false, "mark listed notifications as read")
	return cmd
}

func writeStatus(w io.Writer, r statusReport) error {
	lastSync := "never"
	if r.LastSync != nil {
		lastSync = r.LastSync.Format("2006-01-02 15:04:05")
	}
	if !r.SyncEnabled {
		lastSync += " (sync disabled)"
	}
	nextAlarm := "none armed"
	if r.NextAlarm != nil {
		nextAlarm = r.NextAlarm.Format("2006-01-02 15:04")
	}

	fmt.Fprintf(w, "Last sync:      %s\n", lastSync)
	fmt.Fprintf(w, "Pending upload: %d\n", r.Unsynced)
	fmt.Fprintf(w, "Next alarm:     %s (%s backend)\n", nextAlarm, r.TimerBackend)
	_, err := fmt.Fprintf(w, "Notifications:  %d unread\n", r.Unread)
	for _, n := range r.Notifications {
		fmt.Fprintf(w, "  [%s] %s: %s\n", n.CreatedAt.Format("01/02 15:04"), n.Title, n.Message)
	}
	return err
}
