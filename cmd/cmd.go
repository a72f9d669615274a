package cmd

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"github.com/xj1core/cloud-bridge/config"
)

const (
	ServiceName      = "xj1cloud-bridge"
	ServiceNamespace = "xj1core"

	stopTimeout = 15 * time.Second
)

var (
	version        = "0.0.0"
	commit         = "hash"
	commitDate     = time.Now().String()
	branch         = "branch"
	buildTimestamp = ""
)

func Run() error {
	app := &cli.App{
		Name:    ServiceName,
		Usage:   "MQTT to web bridge for XJ1 devices",
		Version: version,
		Commands: []*cli.Command{
			serverCmd(),
			configCmd(),
		},
	}

	return app.Run(os.Args)
}

func serverCmd() *cli.Command {
	return &cli.Command{
		Name:    "server",
		Aliases: []string{"s"},
		Usage:   "Run the bridge (MQTT link, REST API and websocket)",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config_file",
				Usage:   "Path to the configuration file",
				EnvVars: []string{config.EnvPrefix + "_CONFIG_FILE"},
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.LoadConfig(c.String("config_file"))
			if err != nil {
				return err
			}
			app := NewApp(cfg)

			if err := app.Start(c.Context); err != nil {
				return err
			}

			slog.Info("SERVICE_STARTED",
				"commit", commit, "commit_date", commitDate, "branch", branch, "build", buildTimestamp,
				"web", cfg.Web.Host, "port", cfg.Web.Port)

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

			select {
			case <-stop:
			case sig := <-app.Wait():
				slog.Info("SHUTDOWN_REQUESTED", "exit_code", sig.ExitCode)
			}

			slog.Info("Shutting down...")
			ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
			defer cancel()
			return app.Stop(ctx)
		},
	}
}

// configCmd prints the effective configuration with secrets masked.
func configCmd() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Print the effective configuration",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config_file", Usage: "Path to the configuration file"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.LoadConfig(c.String("config_file"))
			if err != nil {
				return err
			}
			enc := json.NewEncoder(c.App.Writer)
			enc.SetIndent("", "  ")
			return enc.Encode(cfg.Redacted())
		},
	}
}
