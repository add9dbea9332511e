package cli

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nhle/reminders/internal/credential"
	"github.com/nhle/reminders/internal/metrics"
	"github.com/nhle/reminders/internal/reminder"
	appsync "github.com/nhle/reminders/internal/sync"
)

// shutdownTimeout bounds each step of the daemon's shutdown.
const shutdownTimeout = 10 * time.Second

// NewRunCommand creates the run command: the long-lived daemon that fires
// alarms, reschedules recurring events and syncs in the background.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the reminder daemon",
		Long: `Run the reminder daemon. It recovers the alarm chain left by a previous
run, delivers reminders as they come due, syncs on the configured schedule
and serves /healthz, /readyz, /metrics and POST /sync.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runDaemon(ctx, rootOpts)
		},
	}
}

func runDaemon(ctx context.Context, rootOpts *RootOptions) error {
	rt, err := openRuntime(ctx, rootOpts, runtimeOptions{})
	if err != nil {
		return err
	}
	defer rt.Close()
	log := rt.log

	ctx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	report, err := rt.recurrence.Recover(ctx)
	if err != nil {
		return WrapExitError(ExitFailure, "recovering alarms", err)
	}
	log.Info("alarm recovery finished",
		zap.Int("rearmed", report.Rearmed),
		zap.Int("completed", report.Completed),
		zap.Int("rescheduled", report.Rescheduled),
		zap.Int("terminated", report.Terminated),
	)

	opts := []reminder.Option{
		reminder.WithDeliveryTimeout(rt.cfg.Delivery.Timeout),
		reminder.WithLogger(log.Named("reminder")),
	}
	if sms := newSMSSender(rt); sms != nil {
		opts = append(opts, reminder.WithSMS(sms))
	}
	dispatcher := reminder.NewDispatcher(rt.store, rt.recurrence, opts...)

	var sched *appsync.Scheduler
	if rt.sync != nil {
		rt.sync.Start()
		if rt.cfg.Sync.Schedule != "" {
			sched, err = appsync.NewScheduler(rt.sync, rt.cfg.Sync.Schedule, log.Named("sync"))
			if err != nil {
				return WrapExitError(ExitCommandError, "sync", err)
			}
			sched.Start()
		}
	} else {
		log.Info("sync disabled: remote.base_url is empty")
	}

	srv := &http.Server{
		Addr:              rt.cfg.HTTP.Listen,
		Handler:           metrics.Router(rt.store.HealthCheck, syncTrigger(rt.sync)),
		ReadHeaderTimeout: 5 * time.Second,
	}
	serveErr := make(chan error, 1)
	if srv.Addr != "" {
		go func() {
			log.Info("http listening", zap.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serveErr <- err
			}
		}()
	}

	timerErr := make(chan error, 1)
	go func() {
		timerErr <- rt.timers.Run(ctx, dispatcher.Handle)
	}()

	var (
		runErr      error
		timerExited bool
	)
	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-serveErr:
		runErr = WrapExitError(ExitFailure, "serving http", err)
	case err := <-timerErr:
		timerExited = true
		if err != nil && !errors.Is(err, context.Canceled) {
			runErr = WrapExitError(ExitFailure, "timer loop", err)
		}
	}
	cancelRun()
	if !timerExited {
		<-timerErr
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if srv.Addr != "" {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("http shutdown", zap.Error(err))
		}
	}
	if sched != nil {
		sched.Stop()
	}
	if rt.sync != nil {
		if err := rt.sync.Shutdown(shutdownCtx); err != nil {
			log.Warn("sync shutdown", zap.Error(err))
		}
	}
	if err := dispatcher.Wait(shutdownCtx); err != nil {
		log.Warn("waiting for deliveries", zap.Error(err))
	}
	return runErr
}

// newSMSSender builds the email-to-SMS gateway when SMS delivery is
// enabled. A misconfigured gateway falls back to in-app notifications.
func newSMSSender(rt *runtime) reminder.Sender {
	cfg := rt.cfg.Delivery
	if !cfg.SMSEnabled {
		return nil
	}
	password, err := credential.Lookup(credential.SMTPPassword)
	if err != nil {
		rt.log.Warn("reading smtp password from keyring", zap.Error(err))
	}
	gw, err := reminder.NewSMSGateway(cfg, password)
	if err != nil {
		rt.log.Warn("sms delivery disabled", zap.Error(err))
		return nil
	}
	rt.log.Info("sms delivery enabled", zap.String("recipient", gw.Recipient()))
	return gw
}

// syncTrigger answers POST /sync with the pass result.
func syncTrigger(engine *appsync.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		if engine == nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": errSyncDisabled.Error()})
			return
		}
		res := engine.SyncNow(r.Context())
		status := http.StatusOK
		if !res.OK() {
			status = http.StatusBadGateway
		}
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(newSyncReport(res))
	}
}
