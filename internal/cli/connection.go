package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newTestConnectionCmd creates the 'test-connection' command.
func newTestConnectionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "test-connection <bucket>",
		Short: "Check credentials and connectivity for a bucket",
		Long: `Check credentials and connectivity without downloading anything.

Probes, in order:
  1. Signed HEAD of a sentinel object: 200 or 404 means the credentials
     are accepted for the bucket.
  2. Unsigned HEAD of the bucket: 200 or 403 means DNS, routing and
     region are right even if the credentials are not.

Exits non-zero when no probe succeeds.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := GetContext()
			s, err := newSession(ctx, true)
			if err != nil {
				return err
			}
			defer s.close()

			creds, err := s.creds.Get(ctx)
			if err != nil {
				// The unsigned probe can still tell whether the bucket is reachable
				s.logger.Warn().Err(err).Msg("No credentials, signed probe will fail")
			}

			diag := s.tester().Test(ctx, creds, args[0])

			out := cmd.OutOrStdout()
			for _, p := range diag.Probes {
				status := "ok"
				if !p.OK {
					status = "failed"
				}
				line := fmt.Sprintf("  %-15s %s", p.Name, status)
				if p.StatusCode != 0 {
					line += fmt.Sprintf(" (HTTP %d)", p.StatusCode)
				}
				if p.Err != nil && !p.OK {
					line += ": " + p.Err.Error()
				}
				fmt.Fprintln(out, line)
			}

			if !diag.OK {
				return fmt.Errorf("%s", diag.Message)
			}
			fmt.Fprintf(out, "✓ %s\n", diag.Message)
			return nil
		},
	}
	return cmd
}
