package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/rescale/s3fetch/internal/config"
)

// newConfigCmd creates the 'config' command group.
func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage s3fetch configuration",
		Long: `Configuration management commands for s3fetch.

Commands:
  init  - Interactive configuration setup
  show  - Display current configuration
  path  - Show configuration file path`,
	}

	configCmd.AddCommand(newConfigInitCmd())
	configCmd.AddCommand(newConfigShowCmd())
	configCmd.AddCommand(newConfigPathCmd())

	return configCmd
}

// configPath returns --config or the default path.
func configPath() (string, error) {
	if cfgFile != "" {
		return cfgFile, nil
	}
	return config.DefaultConfigPath()
}

// newConfigInitCmd creates the 'config init' command.
func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize configuration interactively",
		Long: `Interactive configuration setup for s3fetch.

The configuration is saved to ~/.config/s3fetch/s3fetch.conf unless
--config is given. Credentials are never stored; use --access-key,
the AWS_* environment variables or a shared AWS profile.

Use --force to overwrite existing configuration.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configPath()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if !force {
				if _, err := os.Stat(path); err == nil {
					fmt.Fprintf(out, "Configuration already exists at: %s\n", path)
					fmt.Fprintln(out, "Use --force to overwrite or run 'config show' to view current config.")
					return nil
				}
			}

			cfg, err := runConfigWizard(cmd.InOrStdin(), out)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			if err := config.Save(cfg, path); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}

			GetLogger().Info().Str("path", path).Msg("Configuration saved")
			fmt.Fprintf(out, "\n✓ Configuration saved to: %s\n", path)
			fmt.Fprintln(out, "Test it with: s3fetch test-connection <bucket>")
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite existing configuration")

	return cmd
}

// runConfigWizard asks for each setting, offering the default in brackets.
func runConfigWizard(in io.Reader, out io.Writer) (*config.Config, error) {
	cfg := config.NewConfig()
	reader := bufio.NewReader(in)

	ask := func(label, def string) string {
		fmt.Fprintf(out, "%s [%s]: ", label, def)
		input, _ := reader.ReadString('\n')
		if input = strings.TrimSpace(input); input == "" {
			return def
		}
		return input
	}
	askInt := func(label string, def int) int {
		v, err := strconv.Atoi(ask(label, strconv.Itoa(def)))
		if err != nil {
			fmt.Fprintf(out, "  Not a number, using %d\n", def)
			return def
		}
		return v
	}
	askBool := func(label string, def bool) bool {
		d := "y/N"
		if def {
			d = "Y/n"
		}
		switch strings.ToLower(ask(label, d)) {
		case "y", "yes":
			return true
		case "n", "no":
			return false
		}
		return def
	}

	fmt.Fprintln(out, "s3fetch Configuration Setup")
	fmt.Fprintln(out, "===========================")
	fmt.Fprintln(out)

	cfg.Storage.Region = ask("Region", cfg.Storage.Region)
	cfg.Storage.Endpoint = ask("Custom endpoint (empty for AWS)", "")
	if cfg.Storage.Endpoint != "" {
		cfg.Storage.PathStyle = askBool("Path-style addressing", true)
	}
	cfg.Storage.Profile = ask("Shared AWS profile (empty for default chain)", "")

	fmt.Fprintln(out)
	fmt.Fprintln(out, "Transfer Settings (press Enter for defaults)")
	fmt.Fprintln(out, "--------------------------------------------")
	cfg.Transfer.MaxAttempts = askInt("Attempts per request", cfg.Transfer.MaxAttempts)
	cfg.Transfer.BackoffStepSeconds = askInt("Backoff step (seconds)", cfg.Transfer.BackoffStepSeconds)
	cfg.Transfer.RequestTimeoutSeconds = askInt("Request timeout (seconds)", cfg.Transfer.RequestTimeoutSeconds)

	fmt.Fprintln(out)
	if askBool("Configure proxy?", false) {
		fmt.Fprintln(out, "Proxy modes: no-proxy, system, basic, ntlm")
		cfg.Proxy.Mode = ask("Proxy mode", config.ProxyModeSystem)
		if cfg.Proxy.Mode == config.ProxyModeBasic || cfg.Proxy.Mode == config.ProxyModeNTLM {
			cfg.Proxy.Host = ask("Proxy host", "")
			cfg.Proxy.Port = askInt("Proxy port", cfg.Proxy.Port)
			cfg.Proxy.User = ask("Proxy user", "")
			cfg.Proxy.NoProxy = ask("Bypass list (comma-separated)", "")
		}
	}

	return cfg, nil
}

// newConfigShowCmd creates the 'config show' command.
func newConfigShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Display current configuration",
		Long: `Display the current configuration settings.

This command shows the merged configuration from:
  1. Configuration file (~/.config/s3fetch/s3fetch.conf)
  2. Command-line flags (--region, --endpoint, --path-style, --profile)

Priority: flags > config file > defaults`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configPath()
			if err != nil {
				return err
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			printConfig(cmd.OutOrStdout(), cfg, path)
			return nil
		},
	}

	return cmd
}

func printConfig(out io.Writer, cfg *config.Config, path string) {
	fmt.Fprintln(out, "Current Configuration")
	fmt.Fprintln(out, "=====================")
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Storage:")
	fmt.Fprintf(out, "  Region:     %s\n", cfg.Storage.Region)
	if cfg.Storage.Endpoint != "" {
		fmt.Fprintf(out, "  Endpoint:   %s\n", cfg.Storage.Endpoint)
		fmt.Fprintf(out, "  Path style: %t\n", cfg.Storage.PathStyle)
	} else {
		fmt.Fprintln(out, "  Endpoint:   AWS")
	}
	if cfg.Storage.Profile != "" {
		fmt.Fprintf(out, "  Profile:    %s\n", cfg.Storage.Profile)
	}
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Transfer:")
	fmt.Fprintf(out, "  Attempts per request: %d\n", cfg.Transfer.MaxAttempts)
	fmt.Fprintf(out, "  Backoff step:         %s\n", cfg.BackoffStep())
	fmt.Fprintf(out, "  Request timeout:      %s\n", cfg.RequestTimeout())
	fmt.Fprintf(out, "  Presigned URL TTL:    %s\n", cfg.PresignTTL())
	if cfg.Transfer.MaxRequestsPerSecond > 0 {
		fmt.Fprintf(out, "  Request rate limit:   %g/s (burst %d)\n", cfg.Transfer.MaxRequestsPerSecond, cfg.Transfer.RequestBurst)
	} else {
		fmt.Fprintln(out, "  Request rate limit:   none")
	}
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Proxy:")
	fmt.Fprintf(out, "  Mode: %s\n", cfg.Proxy.Mode)
	if cfg.Proxy.Host != "" {
		fmt.Fprintf(out, "  Host: %s:%d\n", cfg.Proxy.Host, cfg.Proxy.Port)
	}
	if cfg.Proxy.User != "" {
		fmt.Fprintf(out, "  User: %s\n", cfg.Proxy.User)
	}
	if cfg.Proxy.NoProxy != "" {
		fmt.Fprintf(out, "  Bypass: %s\n", cfg.Proxy.NoProxy)
	}
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Logging:")
	fmt.Fprintf(out, "  Level: %s\n", cfg.Logging.Level)
	if cfg.Logging.File != "" {
		fmt.Fprintf(out, "  File:  %s\n", config.ResolveLogFile(cfg.Logging.File))
	}
	fmt.Fprintln(out)

	fmt.Fprintf(out, "Configuration file: %s\n", path)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		fmt.Fprintln(out, "  (file does not exist - using defaults)")
	}
}

// newConfigPathCmd creates the 'config path' command.
func newConfigPathCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		Long:  `Display the path to the configuration file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configPath()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "  %s\n", path)

			if info, err := os.Stat(path); err == nil {
				fmt.Fprintln(out, "Status: ✓ File exists")
				fmt.Fprintf(out, "Size:     %s\n", humanize.Bytes(uint64(info.Size())))
				fmt.Fprintf(out, "Modified: %s\n", humanize.Time(info.ModTime()))
			} else {
				fmt.Fprintln(out, "Status: File does not exist")
				fmt.Fprintln(out, "Create a configuration file with: s3fetch config init")
			}
			return nil
		},
	}

	return cmd
}
