// Package cli provides the command-line interface for s3fetch.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/rescale/s3fetch/internal/fips"
	"github.com/rescale/s3fetch/internal/logging"
	"github.com/rescale/s3fetch/internal/version"
)

var (
	// Global flags
	cfgFile         string
	verbose         bool
	debug           bool
	region          string
	endpoint        string
	pathStyle       bool
	profile         string
	accessKey       string
	secretKey       string
	sessionToken    string
	metricsTextfile string
	maxRPS          float64

	// Global logger
	logger *logging.Logger

	// Global context for signal handling
	rootContext context.Context
	cancelFunc  context.CancelFunc
)

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "s3fetch",
		Short: "Fetch private objects from S3-compatible storage",
		Long: `s3fetch ` + version.Version + ` - Built: ` + version.BuildTime + `
Downloads objects from private S3 or S3-compatible buckets using
Signature Version 4. Each download tries a presigned URL first and
falls back to header-signed requests; access denied stops immediately.

Credentials come from --access-key/--secret-key, the AWS_* environment
variables, or a shared AWS profile (--profile). They are never written
to the configuration file.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger = logging.NewDefaultCLILogger()
			if verbose || debug {
				logging.SetGlobalLevel(zerolog.DebugLevel)
			}
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&cfgFile, "config", "c", "", "Configuration file path")
	pf.BoolVarP(&verbose, "verbose", "v", false, "Verbose output (shows debug messages)")
	pf.BoolVar(&debug, "debug", false, "Enable debug output (same as --verbose)")
	pf.StringVar(&region, "region", "", "Signing region (overrides config and profile)")
	pf.StringVar(&endpoint, "endpoint", "", "S3-compatible endpoint URL, e.g. http://127.0.0.1:9000")
	pf.BoolVar(&pathStyle, "path-style", false, "Use path-style addressing with --endpoint")
	pf.StringVar(&profile, "profile", "", "Shared AWS config profile")
	pf.StringVar(&accessKey, "access-key", "", "Access key id (prompts for the secret if --secret-key is not given)")
	pf.StringVar(&secretKey, "secret-key", "", "Secret access key")
	pf.StringVar(&sessionToken, "session-token", "", "Session token for temporary credentials")
	pf.Float64Var(&maxRPS, "max-rps", 0, "Maximum requests per second to the storage service (0 = unlimited)")
	pf.StringVar(&metricsTextfile, "metrics-textfile", "", "Write Prometheus metrics to this file on exit")

	rootCmd.Version = version.Version + " (" + version.BuildTime + ") " + fips.Status()

	rootCmd.AddCommand(newCompletionCmd(rootCmd))
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	return rootCmd
}

// Execute runs the CLI.
func Execute() error {
	rootContext, cancelFunc = context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		for sig := range sigChan {
			if sig != nil {
				fmt.Fprintf(os.Stderr, "\nReceived signal %v, cancelling downloads...\n", sig)
				cancelFunc()
			}
		}
	}()

	rootCmd := NewRootCmd()
	AddCommands(rootCmd)
	err := rootCmd.Execute()

	signal.Stop(sigChan)
	close(sigChan)
	cancelFunc()

	return err
}

// AddCommands adds all subcommands to the root command.
func AddCommands(rootCmd *cobra.Command) {
	rootCmd.AddCommand(newDownloadCmd())
	rootCmd.AddCommand(newBatchCmd())
	rootCmd.AddCommand(newPresignCmd())
	rootCmd.AddCommand(newTestConnectionCmd())
	rootCmd.AddCommand(newConfigCmd())
}

// GetLogger returns the global CLI logger.
func GetLogger() *logging.Logger {
	if logger == nil {
		logger = logging.NewDefaultCLILogger()
	}
	return logger
}

// GetContext returns the global CLI context with signal handling.
// This context will be cancelled when the user presses Ctrl+C.
func GetContext() context.Context {
	if rootContext == nil {
		return context.Background()
	}
	return rootContext
}

func newCompletionCmd(rootCmd *cobra.Command) *cobra.Command {
	completionCmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for s3fetch.

QUICK TEST (current session only):
  source <(s3fetch completion bash)
  source <(s3fetch completion zsh)
  s3fetch completion fish | source
  s3fetch completion powershell | Out-String | Invoke-Expression`,
		ValidArgs: []string{"bash", "zsh", "fish", "powershell"},
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return rootCmd.GenBashCompletion(out)
			case "zsh":
				return rootCmd.GenZshCompletion(out)
			case "fish":
				return rootCmd.GenFishCompletion(out, true)
			default:
				return rootCmd.GenPowerShellCompletion(out)
			}
		},
	}
	return completionCmd
}
