package cli

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rescale/s3fetch/internal/sigv4"
)

// newPresignCmd creates the 'presign' command.
func newPresignCmd() *cobra.Command {
	var (
		ttl    time.Duration
		method string
	)

	cmd := &cobra.Command{
		Use:   "presign <bucket> <key>",
		Short: "Print a presigned URL for an object",
		Long: `Print a self-authenticating URL for an object. Nothing is sent to the
storage service; an expired or otherwise invalid URL only fails when used.

Examples:
  s3fetch presign docs reports/q3.pdf
  s3fetch presign docs reports/q3.pdf --ttl 15m`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			method = strings.ToUpper(method)
			if method != http.MethodGet && method != http.MethodHead {
				return fmt.Errorf("--method must be GET or HEAD")
			}

			ctx := GetContext()
			s, err := newSession(ctx, true)
			if err != nil {
				return err
			}
			defer s.close()

			if ttl == 0 {
				ttl = s.cfg.PresignTTL()
			}

			creds, err := s.creds.Get(ctx)
			if err != nil {
				return err
			}

			u, err := s.signer.Presign(method, creds, sigv4.Locator{Bucket: args[0], Key: args[1]}, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), u)
			return nil
		},
	}

	cmd.Flags().DurationVar(&ttl, "ttl", 0, "URL lifetime, at most 168h (default from config, 1h)")
	cmd.Flags().StringVar(&method, "method", http.MethodGet, "HTTP method the URL is valid for (GET or HEAD)")

	return cmd
}
