package main

import (
    "context"
    "fmt"
    "os"
    "os/signal"
    "strings"
    "syscall"
    "time"

    "github.com/spf13/cobra"
    "github.com/spf13/viper"

    "github.com/rudilee/OrangeServer/internal/ami"
    "github.com/rudilee/OrangeServer/internal/config"
    "github.com/rudilee/OrangeServer/internal/health"
    "github.com/rudilee/OrangeServer/internal/metrics"
    "github.com/rudilee/OrangeServer/internal/server"
    "github.com/rudilee/OrangeServer/internal/store"
    "github.com/rudilee/OrangeServer/pkg/logger"
)

var (
    configFile string
    verbose    bool

    // Global services
    cfg        *config.Config
    database   *store.DB
    cache      *store.Cache
    storeSvc   store.Store
    amiClient  *ami.Client
    orangeSrv  *server.Server
    healthSvc  *health.HealthService
    metricsSvc *metrics.PrometheusMetrics
)

func main() {
    rootCmd := &cobra.Command{
        Use:   "orange",
        Short: "Orange CTI Server",
        Long:  "CTI server mediating between agent desktops and the Asterisk switch",
    }

    rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Configuration file path")
    rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

    rootCmd.AddCommand(
        createServeCommand(),
        createMigrateCommand(),
        createAgentCommands(),
        createSkillCommands(),
        createGroupCommands(),
    )

    if err := rootCmd.Execute(); err != nil {
        fmt.Fprintf(os.Stderr, "Error: %v\n", err)
        os.Exit(1)
    }
}

func loadConfig() error {
    if configFile != "" {
        viper.SetConfigFile(configFile)
    } else {
        viper.SetConfigName("orange")
        viper.SetConfigType("ini")
        viper.AddConfigPath(".")
        viper.AddConfigPath("/etc/orange")
    }

    viper.SetEnvPrefix("ORANGE")
    viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
    viper.AutomaticEnv()

    config.SetDefaults(viper.GetViper())

    if err := viper.ReadInConfig(); err != nil {
        if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
            return err
        }
    }

    cfg = config.FromViper(viper.GetViper())
    return nil
}

func initLogger() error {
    logCfg := logger.Config{
        Level:  cfg.Monitoring.Logging.Level,
        Format: cfg.Monitoring.Logging.Format,
        File: logger.FileConfig{
            Enabled:    cfg.Monitoring.Logging.File.Enabled,
            Path:       cfg.Monitoring.Logging.File.Path,
            MaxSize:    cfg.Monitoring.Logging.File.MaxSize,
            MaxBackups: cfg.Monitoring.Logging.File.MaxBackups,
            MaxAge:     cfg.Monitoring.Logging.File.MaxAge,
            Compress:   cfg.Monitoring.Logging.File.Compress,
        },
    }

    if verbose {
        logCfg.Level = "debug"
    }

    return logger.Init(logCfg)
}

// initializeServices wires the database, cache and store. Called by every
// command; the serve command additionally brings up AMI and the listener.
func initializeServices() error {
    if err := loadConfig(); err != nil {
        return fmt.Errorf("failed to load config: %v", err)
    }
    if err := initLogger(); err != nil {
        return fmt.Errorf("failed to initialize logger: %v", err)
    }

    var err error
    database, err = store.Open(cfg.Database)
    if err != nil {
        return err
    }

    cache, err = store.NewCache(cfg.Redis, "orange")
    if err != nil {
        logger.WithError(err).Warn("Redis cache unavailable, lookups go to the database")
    }

    storeSvc = store.New(database, cache)
    return nil
}

func createServeCommand() *cobra.Command {
    return &cobra.Command{
        Use:   "serve",
        Short: "Run the CTI server",
        RunE: func(cmd *cobra.Command, args []string) error {
            if err := initializeServices(); err != nil {
                return err
            }

            ctx, cancel := context.WithCancel(context.Background())
            defer cancel()

            amiClient = ami.NewClient(ami.Config{
                Host:              cfg.Asterisk.Host,
                Port:              cfg.Asterisk.Port,
                Username:          cfg.Asterisk.Username,
                Secret:            cfg.Asterisk.Secret,
                ReconnectInterval: cfg.Asterisk.ReconnectInterval,
                ActionTimeout:     cfg.Asterisk.ActionTimeout,
            })

            go connectSwitch(ctx)
            amiClient.Run(ctx)

            metricsSvc = metrics.NewPrometheusMetrics()
            if cfg.Monitoring.MetricsEnabled {
                go metricsSvc.ServeHTTP(cfg.Monitoring.MetricsPort)
            }

            if cfg.Monitoring.HealthEnabled {
                startHealthService()
            }

            orangeSrv = server.New(cfg.Orange, storeSvc, amiClient, metricsSvc)
            if err := orangeSrv.Start(); err != nil {
                return err
            }

            sigChan := make(chan os.Signal, 1)
            signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
            <-sigChan

            logger.Info("Shutting down")

            orangeSrv.Stop()
            if amiClient.IsConnected() {
                logoffCtx, logoffCancel := context.WithTimeout(context.Background(), 5*time.Second)
                amiClient.Logoff(logoffCtx)
                logoffCancel()
            }
            amiClient.Close()
            if healthSvc != nil {
                healthSvc.Stop()
            }
            database.Close()

            logger.Info("Shutdown complete")
            return nil
        },
    }
}

// connectSwitch performs the first AMI login; once up, the client's own
// reconnect loop owns the link.
func connectSwitch(ctx context.Context) {
    for {
        err := amiClient.Connect(ctx)
        if err == nil {
            return
        }

        logger.WithError(err).Error("AMI connection failed, retrying")

        select {
        case <-ctx.Done():
            return
        case <-time.After(cfg.Asterisk.ReconnectInterval):
        }
    }
}

func startHealthService() {
    healthSvc = health.NewHealthService(cfg.Monitoring.HealthPort)

    healthSvc.RegisterLivenessCheck("database", health.CheckFunc(func(ctx context.Context) error {
        if !database.IsHealthy() {
            return fmt.Errorf("database not healthy")
        }
        return database.PingContext(ctx)
    }))

    healthSvc.RegisterReadinessCheck("database", health.CheckFunc(func(ctx context.Context) error {
        return database.PingContext(ctx)
    }))

    healthSvc.RegisterReadinessCheck("ami", health.CheckFunc(func(ctx context.Context) error {
        if !amiClient.IsConnected() {
            return fmt.Errorf("AMI not connected")
        }
        return amiClient.Ping(ctx)
    }))

    go healthSvc.Start()
}

func createMigrateCommand() *cobra.Command {
    return &cobra.Command{
        Use:   "migrate",
        Short: "Apply database migrations",
        RunE: func(cmd *cobra.Command, args []string) error {
            if err := initializeServices(); err != nil {
                return err
            }
            defer database.Close()

            return store.RunMigrations(database.DB)
        },
    }
}
