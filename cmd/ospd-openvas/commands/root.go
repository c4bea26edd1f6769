package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/janowagner/ospd-openvas/pkg/config"
)

const cliExecutable = "ospd-openvas"

// NewCommand constructs the top-level CLI command, wiring global flags,
// configuration loading and the single-instance workspace lock.
func NewCommand() *cobra.Command {
	var (
		configFile     string
		verbosityCount int
		verbose        bool
		noLock         bool

		manager       *config.Manager
		workspaceLock *flock.Flock
	)

	cmd := &cobra.Command{
		Use:   cliExecutable,
		Short: "Bridge between scan management and the OpenVAS engine",
		Long: `ospd-openvas drives OpenVAS scans through a shared key-value
blackboard: it encodes scan preferences, launches the engine and forwards
results, progress and lifecycle changes back to the caller.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			manager = config.NewManager()
			if err := manager.Load(cmd.Flags(), configFile); err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			cfg = manager.Get()

			if verbose {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			} else {
				switch {
				case verbosityCount <= 0:
					zerolog.SetGlobalLevel(zerolog.ErrorLevel)
				case verbosityCount == 1:
					zerolog.SetGlobalLevel(zerolog.InfoLevel)
				default:
					zerolog.SetGlobalLevel(zerolog.DebugLevel)
				}
			}

			if !noLock {
				// Two bridge instances must not share one blackboard.
				if err := os.MkdirAll(cfg.Workspace, 0o755); err != nil {
					return fmt.Errorf("prepare workspace %s: %w", cfg.Workspace, err)
				}
				workspaceLock = flock.New(filepath.Join(cfg.Workspace, cliExecutable+".lock"))
				locked, err := workspaceLock.TryLock()
				if err != nil {
					return fmt.Errorf("acquire workspace lock: %w", err)
				}
				if !locked {
					return fmt.Errorf("workspace %s is locked by another instance", cfg.Workspace)
				}
			}
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if workspaceLock != nil {
				return workspaceLock.Unlock()
			}
			return nil
		},
	}

	cmd.SilenceUsage = true

	cmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Configuration file path")
	cmd.PersistentFlags().CountVarP(&verbosityCount, "verbosity", "v", "Increase logging verbosity (repeatable)")
	cmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Enable verbose logging")
	cmd.PersistentFlags().BoolVar(&noLock, "no-lock", false, "Skip the single-instance workspace lock")

	config.BindFlags(cmd.PersistentFlags())

	cmd.AddCommand(NewScanCommand())
	cmd.AddCommand(NewVTsCommand())

	return cmd
}

// cfg holds the configuration loaded by the root command's pre-run, for
// use by the subcommands.
var cfg config.Config
