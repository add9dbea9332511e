package cli

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nhle/reminders/internal/model"
	"github.com/nhle/reminders/internal/recurrence"
	"github.com/nhle/reminders/internal/store"
)

// AddOptions holds flags for the add command.
type AddOptions struct {
	Date        string
	Time        string
	Description string
	Recurrence  string
}

// NewAddCommand creates the add command.
func NewAddCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AddOptions{}

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Create an event and arm its reminder",
		Long: `Create an event at a date and time. The reminder is armed immediately
and fires while "reminders run" is active. Recurring events produce their
next occurrence each time they fire.`,
		Example: `  reminders add Standup --date 2024-05-01 --time 09:00 --repeat daily`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdd(cmd, rootOpts, opts, strings.Join(args, " "))
		},
	}

	cmd.Flags().StringVar(&opts.Date, "date", "", "date as YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&opts.Time, "time", "", "time of day as HH:MM (required)")
	cmd.Flags().StringVarP(&opts.Description, "description", "d", "", "free-form notes")
	cmd.Flags().StringVarP(&opts.Recurrence, "repeat", "r", "none", "recurrence (none|daily|weekly|monthly)")
	_ = cmd.MarkFlagRequired("time")

	return cmd
}

func runAdd(cmd *cobra.Command, rootOpts *RootOptions, opts *AddOptions, name string) error {
	rec, err := model.ParseRecurrence(opts.Recurrence)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --repeat", err)
	}
	if _, _, err := recurrence.ParseClock(opts.Time); err != nil {
		return WrapExitError(ExitCommandError, "invalid --time", err)
	}

	rt, err := openRuntime(cmd.Context(), rootOpts, runtimeOptions{})
	if err != nil {
		return err
	}
	defer rt.Close()

	date := opts.Date
	if date == "" {
		date = time.Now().In(rt.cfg.Location()).Format(model.DateLayout)
	}

	ev, err := rt.recurrence.Schedule(cmd.Context(), model.Event{
		Name:        name,
		Date:        date,
		Time:        opts.Time,
		Description: opts.Description,
		Recurrence:  rec,
	})
	if err != nil {
		return err
	}

	return newFormatter(rootOpts, cmd.OutOrStdout()).Write(ev, func(w io.Writer) error {
		_, err := fmt.Fprintf(w, "Created event %d: %s on %s at %s (%s)\n",
			ev.ID, ev.Name, ev.Date, ev.Time, strings.ToLower(string(ev.Recurrence)))
		return err
	})
}

// ListOptions holds flags for the list command.
type ListOptions struct {
	Date     string
	Query    string
	Unsynced bool
	Limit    int
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ListOptions{}

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List events ordered by date and time",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := store.EventFilter{Limit: opts.Limit}
			if opts.Date != "" {
				filter.Date = &opts.Date
			}
			if opts.Query != "" {
				filter.Query = &opts.Query
			}
			if opts.Unsynced {
				filter.SyncStatuses = []model.SyncStatus{model.SyncPending, model.SyncLocalOnly}
			}
			return runList(cmd, rootOpts, filter)
		},
	}

	cmd.Flags().StringVar(&opts.Date, "date", "", "only events on this date (YYYY-MM-DD)")
	cmd.Flags().StringVarP(&opts.Query, "query", "q", "", "search name and description")
	cmd.Flags().BoolVar(&opts.Unsynced, "unsynced", false, "only events not yet uploaded")
	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 0, "maximum number of events (0 for all)")

	return cmd
}

// NewTodayCommand creates the today command.
func NewTodayCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "today",
		Short: "List today's events ordered by time",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(rootOpts)
			if err != nil {
				return err
			}
			today := time.Now().In(cfg.Location()).Format(model.DateLayout)
			return runList(cmd, rootOpts, store.EventFilter{Date: &today})
		},
	}
}

func runList(cmd *cobra.Command, rootOpts *RootOptions, filter store.EventFilter) error {
	rt, err := openRuntime(cmd.Context(), rootOpts, runtimeOptions{})
	if err != nil {
		return err
	}
	defer rt.Close()

	events, err := rt.store.GetEvents(cmd.Context(), filter)
	if err != nil {
		return err
	}

	return newFormatter(rootOpts, cmd.OutOrStdout()).Write(events, func(w io.Writer) error {
		return writeEventTable(w, events)
	})
}

func writeEventTable(w io.Writer, events []model.Event) error {
	if len(events) == 0 {
		_, err := fmt.Fprintln(w, "No events.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tTIME\tNAME\tREPEAT\tSYNC\tALARM")
	for _, e := range events {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			e.ID, e.Date, e.Time, e.Name,
			strings.ToLower(string(e.Recurrence)),
			strings.ToLower(string(e.SyncStatus)),
			strings.ToLower(string(e.AlarmState)),
		)
	}
	return tw.Flush()
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Delete an event",
		Long: `Delete an event row. An alarm that is already armed still fires and,
for a recurring event, still produces the next occurrence.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid event id", err)
			}

			rt, err := openRuntime(cmd.Context(), rootOpts, runtimeOptions{})
			if err != nil {
				return err
			}
			defer rt.Close()

			err = rt.store.DeleteEvent(cmd.Context(), id)
			if errors.Is(err, store.ErrNotFound) {
				return WrapExitError(ExitFailure, "delete", err)
			}
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Deleted event %d\n", id)
			return err
		},
	}
}
