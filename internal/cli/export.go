package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/nhle/reminders/internal/ics"
	"github.com/nhle/reminders/internal/store"
)

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export events as an iCalendar (.ics) feed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(cmd.Context(), rootOpts, runtimeOptions{})
			if err != nil {
				return err
			}
			defer rt.Close()

			events, err := rt.store.GetEvents(cmd.Context(), store.EventFilter{})
			if err != nil {
				return err
			}

			var w io.Writer = cmd.OutOrStdout()
			if output != "" && output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return WrapExitError(ExitCommandError, "creating export file", err)
				}
				defer f.Close()
				w = f
			}

			if err := ics.Write(w, events, rt.cfg.Location(), time.Now()); err != nil {
				return err
			}
			if output != "" && output != "-" {
				fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d events to %s\n", len(events), output)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "write to file instead of stdout")
	return cmd
}
