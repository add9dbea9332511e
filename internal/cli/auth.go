package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nhle/reminders/internal/credential"
)

// credentialKey picks the keyring entry a login/logout command targets.
func credentialKey(smtp bool) (key, label string) {
	if smtp {
		return credential.SMTPPassword, "SMTP password"
	}
	return credential.RemoteToken, "remote API token"
}

// NewLoginCommand creates the login command.
func NewLoginCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		smtp   bool
		noSync bool
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store the remote API token (or SMTP password) in the system keyring",
		Long: `Read a secret from stdin and store it in the system keyring. After
storing the remote token a sync pass runs immediately.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, label := credentialKey(smtp)

			fmt.Fprintf(cmd.ErrOrStderr(), "Enter %s: ", label)
			secret, err := readSecret(cmd.InOrStdin())
			if err != nil {
				return WrapExitError(ExitCommandError, "reading "+label, err)
			}
			if err := credential.Set(key, secret); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stored %s.\n", label)

			if smtp || noSync {
				return nil
			}

			rt, err := openRuntime(cmd.Context(), rootOpts, runtimeOptions{})
			if err != nil {
				return err
			}
			defer rt.Close()

			if rt.sync == nil {
				return nil
			}
			res := runOneSync(cmd.Context(), rt.sync)
			return printSyncResult(cmd.OutOrStdout(), rootOpts, res)
		},
	}

	cmd.Flags().BoolVar(&smtp, "smtp", false, "store the SMTP password used for SMS delivery")
	cmd.Flags().BoolVar(&noSync, "no-sync", false, "do not sync after storing the token")
	return cmd
}

// NewLogoutCommand creates the logout command.
func NewLogoutCommand(rootOpts *RootOptions) *cobra.Command {
	var smtp bool

	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Remove the stored remote API token (or SMTP password)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, label := credentialKey(smtp)
			err := credential.Delete(key)
			if err != nil && !errors.Is(err, credential.ErrNotFound) {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Removed %s.\n", label)
			return err
		},
	}

	cmd.Flags().BoolVar(&smtp, "smtp", false, "remove the SMTP password instead")
	return cmd
}

func readSecret(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	secret := strings.TrimSpace(line)
	if secret == "" {
		return "", errors.New("empty input")
	}
	return secret, nil
}
