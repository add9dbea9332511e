package cli

import (
	"context"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nhle/reminders/internal/app"
	"github.com/nhle/reminders/internal/model"
)

// NewTUICommand creates the tui command.
func NewTUICommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Open the interactive event list",
		Long: `Open the interactive event list. Alarms are fired by 'reminders run';
the TUI creates, lists and deletes events and runs sync passes on demand.
Logs go to reminders.log in the config directory.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(cmd.Context(), rootOpts, runtimeOptions{
				logOutput: filepath.Join(model.DefaultConfigDir(), "reminders.log"),
			})
			if err != nil {
				return err
			}
			defer rt.Close()

			opts := app.Options{
				Store:     rt.store,
				Scheduler: rt.recurrence,
				Location:  rt.cfg.Location(),
			}
			if rt.sync != nil {
				rt.sync.Start()
				defer func() {
					ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
					defer cancel()
					if err := rt.sync.Shutdown(ctx); err != nil {
						rt.log.Warn("sync shutdown", zap.Error(err))
					}
				}()
				opts.Sync = rt.sync
			}

			p := tea.NewProgram(app.New(opts), tea.WithAltScreen(), tea.WithContext(cmd.Context()))
			if _, err := p.Run(); err != nil {
				return WrapExitError(ExitFailure, "running tui", err)
			}
			return nil
		},
	}
}
