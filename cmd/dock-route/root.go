package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/auto-dns/dock-route/internal/api"
	"github.com/auto-dns/dock-route/internal/app"
	"github.com/auto-dns/dock-route/internal/config"
	"github.com/auto-dns/dock-route/internal/logger"
)

type contextKey string

const instanceTimeout = 2 * time.Second

const configKey = contextKey("config")

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "dock-route",
	Short: "Deploy containers behind automatic subdomain routing",
	Long: `dock-route builds and runs Next.js, React.js and Node.js applications in
Docker containers and routes <subdomain>.<domain> to each of them through a
single reverse proxy.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.InitConfig(cfgFile); err != nil {
			return err
		}
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		ctx := context.WithValue(cmd.Context(), configKey, cfg)
		cmd.SetContext(ctx)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "INFO", "set log level (e.g. INFO, DEBUG, WARN)")
	rootCmd.PersistentFlags().StringP("port", "p", "8080", "port for the reverse proxy server")
	rootCmd.PersistentFlags().StringP("domain", "d", "dock-route.local", "base domain for subdomains")
	_ = viper.BindPFlag("log.log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("proxy.port", rootCmd.PersistentFlags().Lookup("port"))
	_ = viper.BindPFlag("proxy.domain", rootCmd.PersistentFlags().Lookup("domain"))
}

func configFrom(cmd *cobra.Command) *config.Config {
	return cmd.Context().Value(configKey).(*config.Config)
}

// newApplication builds the app for cmd. Callers must Close it.
func newApplication(cmd *cobra.Command) (application, *config.Config, zerolog.Logger, error) {
	cfg := configFrom(cmd)
	logInstance := logger.SetupLogger(&cfg.Logging)

	a, err := app.New(cfg, logInstance)
	if err != nil {
		return nil, nil, logInstance, fmt.Errorf("failed to create app: %w", err)
	}
	return a, cfg, logInstance, nil
}

// runningInstance returns a client for the admin API of a dock-route serve
// process on this host, or nil when the admin API is disabled.
func runningInstance(cfg *config.Config) *api.Client {
	if !cfg.Admin.Enabled {
		return nil
	}
	return api.NewClient("http://127.0.0.1:"+cfg.Admin.Port, instanceTimeout)
}

// runUntilSignal runs the application until SIGINT or SIGTERM.
func runUntilSignal(a application, logInstance zerolog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			logInstance.Info().Msgf("Received signal: %v", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := a.Run(ctx); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Execution error: %v\n", err)
		os.Exit(1)
	}
}
