// Package daemon provides the Zenodo adapter daemon.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/public-data-space/zenodo-adapter/internal/adapter/database"
	"github.com/public-data-space/zenodo-adapter/internal/adapter/files"
	"github.com/public-data-space/zenodo-adapter/internal/adapter/ids"
	"github.com/public-data-space/zenodo-adapter/internal/adapter/ingest"
	"github.com/public-data-space/zenodo-adapter/internal/adapter/probe"
	"github.com/public-data-space/zenodo-adapter/internal/adapter/registration"
	"github.com/public-data-space/zenodo-adapter/internal/adapter/zenodo"
	"github.com/public-data-space/zenodo-adapter/internal/common/cli"
	"github.com/public-data-space/zenodo-adapter/internal/common/config"
	"github.com/public-data-space/zenodo-adapter/internal/common/constants"
	"github.com/public-data-space/zenodo-adapter/internal/webservice"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

// App represents the application.
type App struct {
	cmd    *cobra.Command
	viper  *viper.Viper
	config appConfig

	daemon *webservice.Server

	ready     chan struct{}
	readyOnce sync.Once
}

// appConfig holds the configuration for the application.
type appConfig struct {
	Verbosity int
	JSONLogs  bool

	Daemon   webservice.StaticConfig
	DBconfig database.Config
	Manager  managerConfig
	Ingest   ingestConfig

	// ClientTimeout bounds every outbound call made on behalf of a request.
	ClientTimeout time.Duration

	MigrationsDir string
}

// managerConfig locates the coordinating manager and describes how the adapter announces itself.
type managerConfig struct {
	Host string
	Port int

	RouteAlias  string
	AdapterPort int

	RegisterAttempts int
	RegisterDelay    time.Duration
}

type ingestConfig struct {
	ExtendedMetadata   bool
	MaxConcurrentFiles int
}

// New creates a new App instance with default values.
func New() (*App, error) {
	a := App{ready: make(chan struct{})}

	a.cmd = &cobra.Command{
		Use:           constants.CmdName,
		Short:         "Zenodo adapter",
		Long:          "Zenodo adapter ingesting Zenodo records as datasets and proxying access to their files.",
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Command parsing has been successful. Returns to not print usage anymore.
			a.cmd.SilenceUsage = true
			cli.SetSlog(a.config.Verbosity, a.config.JSONLogs) // Set verbosity before loading config
			if err := cli.InitViperConfig(constants.CmdName, a.cmd, a.viper); err != nil {
				return err
			}
			if err := a.viper.Unmarshal(&a.config); err != nil {
				return fmt.Errorf("unable to strictly decode configuration into struct: %w", err)
			}
			slog.Info("got app config", "daemon", a.config.Daemon, "manager", a.config.Manager, "ingest", a.config.Ingest)

			cli.SetSlog(a.config.Verbosity, a.config.JSONLogs) // Update logging after loading config if necessary
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
	installMigrateCmd(&a)
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
		ReadTimeout:     5 * time.Second,
		WriteTimeout:    10 * time.Second,
		RequestTimeout:  30 * time.Second,
		MaxHeaderBytes:  1 << 20, // 1 MB
		MaxRequestBytes: 1 << 20, // 1 MB

		ListenPort:  constants.DefaultListenPort,
		MetricsPort: constants.DefaultMetricsPort,
	}

	cmd.PersistentFlags().CountVarP(&app.config.Verbosity, "verbose", "v", "issue INFO (-v), DEBUG (-vv)")
	cmd.PersistentFlags().BoolVar(&app.config.JSONLogs, "json-logs", false, "enable JSON formatted logs")

	// Daemon flags
	cmd.Flags().StringVar(&app.config.Daemon.ConfigPath, "daemon-config", defaultConf.ConfigPath, "path to the dynamic configuration file")

	cmd.Flags().DurationVar(&app.config.Daemon.ReadTimeout, "read-timeout", defaultConf.ReadTimeout, "read timeout for HTTP server")
	cmd.Flags().DurationVar(&app.config.Daemon.WriteTimeout, "write-timeout", defaultConf.WriteTimeout, "write timeout for HTTP server")
	cmd.Flags().DurationVar(&app.config.Daemon.RequestTimeout, "request-timeout", defaultConf.RequestTimeout, "request timeout for HTTP server, file streams excepted")
	cmd.Flags().IntVar(&app.config.Daemon.MaxHeaderBytes, "max-header-bytes", defaultConf.MaxHeaderBytes, "maximum header bytes for HTTP server")
	cmd.Flags().IntVar(&app.config.Daemon.MaxRequestBytes, "max-request-bytes", defaultConf.MaxRequestBytes, "maximum request body bytes for HTTP server")

	cmd.Flags().StringVar(&app.config.Daemon.ListenHost, "listen-host", defaultConf.ListenHost, "host to listen on")
	cmd.Flags().IntVar(&app.config.Daemon.ListenPort, "listen-port", defaultConf.ListenPort, "port to listen on")

	cmd.Flags().StringVar(&app.config.Daemon.MetricsHost, "metrics-host", defaultConf.MetricsHost, "host for the metrics endpoint")
	cmd.Flags().IntVar(&app.config.Daemon.MetricsPort, "metrics-port", defaultConf.MetricsPort, "port for the metrics endpoint")

	cmd.Flags().DurationVar(&app.config.ClientTimeout, "client-timeout", 30*time.Second, "timeout of each outbound call")

	// Manager flags
	cmd.Flags().StringVar(&app.config.Manager.Host, "manager-host", constants.DefaultManagerHost, "host of the manager to register with")
	cmd.Flags().IntVar(&app.config.Manager.Port, "manager-port", constants.DefaultManagerPort, "port of the manager to register with")
	cmd.Flags().StringVar(&app.config.Manager.RouteAlias, "route-alias", "", "name and host announced to the manager")
	cmd.Flags().IntVar(&app.config.Manager.AdapterPort, "adapter-port", constants.DefaultListenPort, "port announced to the manager")
	cmd.Flags().IntVar(&app.config.Manager.RegisterAttempts, "register-attempts", constants.DefaultRegisterAttempts, "number of registration calls before giving up")
	cmd.Flags().DurationVar(&app.config.Manager.RegisterDelay, "register-delay", 0, "pause between two registration calls")

	// Ingestion flags
	cmd.Flags().BoolVar(&app.config.Ingest.ExtendedMetadata, "extended-metadata", false, "fill pid, author and access level metadata of datasets")
	cmd.Flags().IntVar(&app.config.Ingest.MaxConcurrentFiles, "max-concurrent-files", 0, "maximum files resolved concurrently per ingestion, 0 for no limit")

	addDBFlags(cmd, &app.config.DBconfig)

	if err := cmd.MarkFlagFilename("daemon-config"); err != nil {
		// This should never happen.
		panic(fmt.Sprintf("failed to mark daemon-config flag as filename: %v", err))
	}
}

func addDBFlags(cmd *cobra.Command, config *database.Config) {
	cmd.PersistentFlags().StringVar(&config.Host, "db-host", "localhost", "database host")
	cmd.PersistentFlags().IntVarP(&config.Port, "db-port", "p", 5432, "database port")
	cmd.PersistentFlags().StringVarP(&config.User, "db-user", "u", "", "database user")
	cmd.PersistentFlags().StringVarP(&config.Password, "db-password", "P", "", "database password")
	cmd.PersistentFlags().StringVarP(&config.DBName, "db-name", "n", constants.DefaultDBName, "database name")
	cmd.PersistentFlags().StringVarP(&config.SSLMode, "db-sslmode", "s", "disable", "database SSL mode")
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

func (a *App) markReady() {
	a.readyOnce.Do(func() { close(a.ready) })
}

// payload returns how the adapter announces itself to the manager.
func (c managerConfig) payload() registration.Payload {
	p := registration.Payload{
		Name:    constants.DefaultAdapterName,
		Address: registration.Address{Host: constants.DefaultAdvertisedHost, Port: c.AdapterPort},
	}
	if c.RouteAlias != "" {
		p.Name = c.RouteAlias
		p.Address.Host = c.RouteAlias
	}
	return p
}

func (a *App) run() (err error) {
	// Startup failures must not leave Quit waiting.
	defer a.markReady()

	if a.config.Daemon.ConfigPath != "" {
		a.config.Daemon.ConfigPath, err = filepath.Abs(a.config.Daemon.ConfigPath)
		if err != nil {
			return fmt.Errorf("failed to get absolute path for config file: %v", err)
		}
	}

	ctx := context.Background()
	registry := prometheus.NewRegistry()

	db, err := database.New(ctx, a.config.DBconfig)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			slog.Error("Failed to close database", "err", err)
		}
	}()

	m := a.config.Manager
	registrar, err := registration.New(registration.Config{
		ManagerHost: m.Host,
		ManagerPort: m.Port,
		Attempts:    m.RegisterAttempts,
		Delay:       m.RegisterDelay,
		Timeout:     a.config.ClientTimeout,
	}, m.payload(), registry)
	if err != nil {
		return fmt.Errorf("failed to create registrar: %v", err)
	}

	// Schema readiness and registration are independent preconditions.
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error { return db.EnsureSchema(gCtx) })
	g.Go(func() error { return registrar.Register(gCtx) })
	if err := g.Wait(); err != nil {
		return fmt.Errorf("adapter initialization failed: %v", err)
	}
	slog.Info("Initialization complete")

	cm := config.New(a.config.Daemon.ConfigPath)
	gen := ids.Random{}

	assets, err := ingest.New(
		zenodo.New(zenodo.WithTimeout(a.config.ClientTimeout)),
		probe.New(gen, probe.WithTimeout(a.config.ClientTimeout)),
		db,
		gen,
		registry,
		ingest.WithHostPolicy(cm),
		ingest.WithExtendedMetadata(a.config.Ingest.ExtendedMetadata),
		ingest.WithConcurrencyLimit(a.config.Ingest.MaxConcurrentFiles),
	)
	if err != nil {
		return fmt.Errorf("failed to create ingestion service: %v", err)
	}
	fileService := files.New(db, files.WithResponseHeaderTimeout(a.config.ClientTimeout))

	a.daemon, err = webservice.New(ctx, cm, assets, fileService, a.config.Daemon, registry)
	if err != nil {
		return fmt.Errorf("failed to create server: %v", err)
	}
	a.markReady()

	return a.daemon.Run()
}
