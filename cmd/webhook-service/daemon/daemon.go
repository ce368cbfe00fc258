// Package daemon provides the sales webhook service daemon.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
	"time"

	"github.com/dhelos/saleshook/internal/cli"
	"github.com/dhelos/saleshook/internal/config"
	"github.com/dhelos/saleshook/internal/constants"
	"github.com/dhelos/saleshook/internal/pipeline"
	"github.com/dhelos/saleshook/internal/store"
	"github.com/dhelos/saleshook/internal/webservice"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// App represents the application.
type App struct {
	cmd    *cobra.Command
	viper  *viper.Viper
	config appConfig

	daemon *webservice.Server

	ready chan struct{}
}

// appConfig holds the configuration for the application.
type appConfig struct {
	Verbosity int
	JSONLogs  bool

	Credentials string
	Daemon      webservice.StaticConfig
}

// New creates a new App instance with default values.
func New() (*App, error) {
	a := App{ready: make(chan struct{})}

	a.cmd = &cobra.Command{
		Use:   constants.CmdName,
		Short: "Sales webhook ingestion service",
		Long: "Sales webhook ingestion service receiving sales-event webhooks and appending them " +
			"to Parquet and Excel artifacts on Google Drive.",
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Command parsing has been successful. Returns to not print usage anymore.
			a.cmd.SilenceUsage = true
			cli.SetVerbosity(a.config.Verbosity) // Set verbosity before loading config
			if err := cli.InitViperConfig(constants.CmdName, a.cmd, a.viper); err != nil {
				return err
			}
			if err := a.viper.Unmarshal(&a.config); err != nil {
				return fmt.Errorf("unable to strictly decode configuration into struct: %w", err)
			}
			slog.Info("got app config", "config", a.config)

			cli.SetSlog(a.config.Verbosity, a.config.JSONLogs)
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			a.cmd.SilenceUsage = true

			return a.run()
		},
	}
	a.viper = viper.New()
	a.cmd.CompletionOptions.HiddenDefaultCmd = true

	installRootCmd(&a)
	cli.InstallConfigFlag(a.cmd)

	if err := a.viper.BindPFlags(a.cmd.PersistentFlags()); err != nil {
		return nil, err
	}

	a.installVersion()

	return &a, nil
}

func installRootCmd(app *App) {
	cmd := app.cmd

	defaultConf := webservice.StaticConfig{
		StateFile: constants.DefaultStateFile,

		ReadTimeout:    5 * time.Second,
		WriteTimeout:   30 * time.Second,
		RequestTimeout: 25 * time.Second,
		MaxHeaderBytes: 1 << 13, // 8 KB
		MaxBodyBytes:   1 << 20, // 1 MB

		ListenPort: 8080,
	}

	cmd.PersistentFlags().CountVarP(&app.config.Verbosity, "verbose", "v", "issue INFO (-v), DEBUG (-vv)")
	cmd.PersistentFlags().BoolVar(&app.config.JSONLogs, "json-logs", false, "emit logs in JSON format")

	// Daemon flags
	cmd.Flags().StringVar(&app.config.Daemon.StateFile, "state-file", defaultConf.StateFile, "path to the ingestion state file")
	cmd.Flags().StringVar(&app.config.Credentials, "credentials", "", "path to a Google service account credentials file")

	cmd.Flags().DurationVar(&app.config.Daemon.ReadTimeout, "read-timeout", defaultConf.ReadTimeout, "read timeout for HTTP server")
	cmd.Flags().DurationVar(&app.config.Daemon.WriteTimeout, "write-timeout", defaultConf.WriteTimeout, "write timeout for HTTP server")
	cmd.Flags().DurationVar(&app.config.Daemon.RequestTimeout, "request-timeout", defaultConf.RequestTimeout, "request timeout for HTTP server")
	cmd.Flags().IntVar(&app.config.Daemon.MaxHeaderBytes, "max-header-bytes", defaultConf.MaxHeaderBytes, "maximum header bytes for HTTP server")
	cmd.Flags().IntVar(&app.config.Daemon.MaxBodyBytes, "max-body-bytes", defaultConf.MaxBodyBytes, "maximum webhook body bytes")

	cmd.Flags().StringVar(&app.config.Daemon.ListenHost, "listen-host", defaultConf.ListenHost, "host to listen on")
	cmd.Flags().IntVar(&app.config.Daemon.ListenPort, "listen-port", defaultConf.ListenPort, "port to listen on")

	err := cmd.MarkFlagFilename("state-file")
	if err != nil {
		// This should never happen.
		panic(fmt.Sprintf("failed to mark state-file flag as filename: %v", err))
	}

	err = cmd.MarkFlagFilename("credentials")
	if err != nil {
		// This should never happen.
		panic(fmt.Sprintf("failed to mark credentials flag as filename: %v", err))
	}
}

// Run executes the command and associated process, returning an error if any.
func (a App) Run() error {
	return a.cmd.Execute()
}

// UsageError returns if the error is a command parsing or runtime one.
func (a App) UsageError() bool {
	return !a.cmd.SilenceUsage
}

// Hup prints all goroutine stack traces and return false to signal you shouldn't quit.
func (a App) Hup() (shouldQuit bool) {
	buf := make([]byte, 1<<16)
	runtime.Stack(buf, true)
	fmt.Printf("%s", buf)
	return false
}

// Quit gracefully shuts down the daemon.
func (a *App) Quit() {
	a.WaitReady()
	if a.daemon != nil {
		a.daemon.Quit(false)
	}
}

// WaitReady waits for the daemon to be ready.
func (a *App) WaitReady() {
	<-a.ready
}

// RootCmd returns the root command.
func (a App) RootCmd() cobra.Command {
	return *a.cmd
}

func (a *App) run() (err error) {
	a.config.Daemon.StateFile, err = filepath.Abs(a.config.Daemon.StateFile)
	if err != nil {
		return fmt.Errorf("failed to get absolute path for state file: %v", err)
	}
	dConf := a.config.Daemon

	ctx := context.Background()
	drv, err := store.New(ctx, store.Config{CredentialsFile: a.config.Credentials})
	if err != nil {
		close(a.ready)
		return fmt.Errorf("failed to create file store: %v", err)
	}

	cm := config.New(dConf.StateFile)
	a.daemon, err = webservice.New(ctx, cm, pipeline.New(drv), dConf)
	close(a.ready)
	if err != nil {
		return fmt.Errorf("failed to create server: %v", err)
	}

	return a.daemon.Run()
}
