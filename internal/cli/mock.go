package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nhle/reminders/internal/remote"
	"github.com/nhle/reminders/internal/remote/remotetest"
)

// NewServeMockCommand creates the serve-mock command, an in-memory remote
// for trying sync without a real backend.
func NewServeMockCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		addr   string
		token  string
		userID int
		seed   []string
	)

	cmd := &cobra.Command{
		Use:   "serve-mock",
		Short: "Serve an in-memory remote posts API for local testing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			mock := remotetest.New()
			mock.Token = token
			for _, title := range seed {
				mock.Seed(remote.Post{Title: title, UserID: userID})
			}

			srv := &http.Server{
				Addr:              addr,
				Handler:           mock.Handler(),
				ReadHeaderTimeout: 5 * time.Second,
			}
			errCh := make(chan error, 1)
			go func() {
				errCh <- srv.ListenAndServe()
			}()
			fmt.Fprintf(cmd.OutOrStdout(), "Mock remote listening on http://%s/posts\n", addr)

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return WrapExitError(ExitFailure, "serving mock remote", err)
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8090", "listen address")
	cmd.Flags().StringVar(&token, "token", "", "require this bearer token")
	cmd.Flags().IntVar(&userID, "user-id", 1, "user id for seeded posts")
	cmd.Flags().StringSliceVar(&seed, "seed", nil, "seed posts with these titles")
	return cmd
}
