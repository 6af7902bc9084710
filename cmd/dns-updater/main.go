// Command dns-updater keeps DNS A records pointed at this host's public address.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	updater "github.com/danarchy85/dns-updater"
)

const version = "1.2.0"

const usage = `Run without an argument to run DNS Updater once for configured domains.
Run with [start] to run as a daemon with a 15 minute update interval.
Run with [status|stop|restart] to manage an already running daemon.
Run with [setup] to create a new configuration.

A Cloudflare API token with Zone:Read and DNS:Edit permissions is needed for each account.
The first run walks through creating the configuration file.`

var config = struct {
	Path    string
	Verbose bool
}{}

var (
	zlog   *zap.Logger
	logger *log.Logger
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "dns-updater [status|start|stop|restart|setup]",
		Short:         "Keep DNS A records pointed at this host's public address",
		Long:          usage,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("invalid argument provided: %s\n%s", args[0], truncatedUsage())
			}
			return nil
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("load .env: %w", err)
			}
			if config.Path == "" {
				config.Path = env("DNS_UPDATER_CONFIG", filepath.Join(os.Getenv("HOME"), ".dns-updater.yaml"))
			}
			var err error
			if zlog, err = newLogger(config.Verbose); err != nil {
				return fmt.Errorf("create logger: %w", err)
			}
			logger = zap.NewStdLog(zlog)
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if zlog != nil {
				_ = zlog.Sync()
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd.Context())
		},
	}
	root.PersistentFlags().StringVarP(&config.Path, "config", "c", "", "Path to the configuration file (default $DNS_UPDATER_CONFIG or ~/.dns-updater.yaml)")
	root.PersistentFlags().BoolVarP(&config.Verbose, "verbose", "v", false, "Enable verbose logging")

	root.AddCommand(
		&cobra.Command{
			Use:   "status",
			Short: "Report whether the daemon is running",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				sup, err := supervisor()
				if err != nil {
					return err
				}
				// the supervisor reports the state through the logger
				logger.Printf("Checking status of DNS Updater")
				sup.Status()
				return nil
			},
		},
		&cobra.Command{
			Use:   "start",
			Short: "Start the daemon in the background",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				sup, err := supervisor()
				if err != nil {
					return err
				}
				_, err = sup.Start()
				return err
			},
		},
		&cobra.Command{
			Use:   "stop",
			Short: "Stop the daemon",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				sup, err := supervisor()
				if err != nil {
					return err
				}
				if err := sup.Stop(); err != nil && !errors.Is(err, updater.ErrNotRunning) {
					return err
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "restart",
			Short: "Stop the daemon if it is running, then start it",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				sup, err := supervisor()
				if err != nil {
					return err
				}
				_, err = sup.Restart()
				return err
			},
		},
		&cobra.Command{
			Use:   "setup",
			Short: "Create a new configuration file interactively",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runSetup(config.Path)
			},
		},
		&cobra.Command{
			Use:    "worker",
			Short:  "Run the daemon loop in the foreground",
			Hidden: true,
			Args:   cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runWorker(cmd.Context())
			},
		},
	)
	return root
}

// truncatedUsage is the short form printed after an invalid argument.
func truncatedUsage() string {
	lines := strings.SplitN(usage, "\n", 5)
	if len(lines) > 4 {
		lines = lines[:4]
	}
	return strings.Join(lines, "\n")
}

func runOnce(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client, err := newClient(cfg)
	if err != nil {
		return err
	}
	fmt.Println("No action provided! Running once to update all domains!")
	if err := client.RunCycle(ctx); err != nil {
		return fmt.Errorf("%s: %w", updater.ResultOf(err), err)
	}
	fmt.Println("All finished!")
	return nil
}

func runWorker(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client, err := newClient(cfg)
	if err != nil {
		return err
	}
	lock, err := updater.LockPIDFile(cfg.PIDFile)
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			zlog.Warn("release pid file", zap.Error(err))
		}
	}()

	ctx, stop := updater.WorkerContext(ctx)
	defer stop()

	zlog.Info("DNS Updater worker started", zap.Int("pid", os.Getpid()), zap.Duration("interval", cfg.Interval), zap.Duration("retry_interval", cfg.RetryInterval))
	err = updater.RunDaemon(ctx, client, updater.DaemonOptions{
		Interval:      cfg.Interval,
		RetryInterval: cfg.RetryInterval,
		Logger:        logger,
	})
	if errors.Is(err, context.Canceled) {
		zlog.Info("Exiting DNS Updater")
		return nil
	}
	return err
}

func loadConfig() (*updater.Config, error) {
	_, err := os.Stat(config.Path)
	if errors.Is(err, fs.ErrNotExist) {
		zlog.Debug("configuration not found", zap.String("path", config.Path))
		if err := runSetup(config.Path); err != nil {
			return nil, fmt.Errorf("setup: %w", err)
		}
	}
	if err := updater.VerifyPermissions(config.Path); err != nil {
		return nil, err
	}
	cfg, err := updater.LoadConfig(config.Path)
	if err != nil {
		return nil, err
	}
	zlog.Debug("config is valid", zap.String("path", config.Path), zap.Int("connections", len(cfg.Connections)))
	return cfg, nil
}

func newClient(cfg *updater.Config) (*updater.Client, error) {
	accounts, err := cfg.Accounts(func(token string) (updater.Provider, error) {
		return updater.NewCloudflare(token)
	})
	if err != nil {
		return nil, err
	}
	client, err := updater.New(accounts,
		updater.UsingResolver(cfg.NewResolver()),
		updater.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("error creating updater client: %w", err)
	}
	return client, nil
}

func supervisor() (*updater.Supervisor, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("locate executable: %w", err)
	}
	path, err := filepath.Abs(config.Path)
	if err != nil {
		return nil, err
	}
	worker := func() *exec.Cmd {
		args := []string{"--config", path}
		if config.Verbose {
			args = append(args, "--verbose")
		}
		return exec.Command(exe, append(args, "worker")...)
	}
	return updater.NewSupervisor(cfg.PIDFile, cfg.Log, worker, logger), nil
}

func env(envvar string, defaultvalue string) string {
	e, found := os.LookupEnv(envvar)
	if found {
		return e
	}
	return defaultvalue
}
