package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hadlocna/PaperDrop/config"
	"github.com/hadlocna/PaperDrop/infra/storage/sqlite"
	"github.com/hadlocna/PaperDrop/internal/metrics"
	"github.com/hadlocna/PaperDrop/internal/service"
	"github.com/urfave/cli/v2"
)

const ServiceName = "paperdrop-delivery-service"

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
		Usage:   "Connects print appliances and delivers messages to them",
		Version: fmt.Sprintf("%s (%s, %s@%s %s)", version, commit, branch, commitDate, buildTimestamp),
		Commands: []*cli.Command{
			serverCmd(),
			provisionCmd(),
		},
	}

	return app.Run(os.Args)
}

var configFileFlag = &cli.StringFlag{
	Name:    "config_file",
	Usage:   "Path to the configuration file",
	EnvVars: []string{config.EnvPrefix + "_CONFIG_FILE"},
}

// loadConfig treats arguments after the command as config flag overrides,
// e.g. `server --config_file=cfg.yaml -- --http.addr=:9000`.
func loadConfig(c *cli.Context) (*config.Config, error) {
	return config.LoadConfig(c.String(configFileFlag.Name), c.Args().Slice())
}

func serverCmd() *cli.Command {
	return &cli.Command{
		Name:    "server",
		Aliases: []string{"s"},
		Usage:   "Run the device gateway and HTTP API",
		Flags:   []cli.Flag{configFileFlag},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}

			logger, level, closer, err := newLogger(cfg.Log)
			if err != nil {
				return err
			}
			defer closer.Close()
			slog.SetDefault(logger)

			// [HOT_RELOAD] Only the log level is applied to a running process.
			cfg.Watch(func(next *config.Config) {
				lvl, err := parseLevel(next.Log.Level)
				if err != nil {
					logger.Warn("[CONFIG] ignoring log level", slog.Any("err", err))
					return
				}
				level.Set(lvl)
				logger.Info("[CONFIG] log level changed", slog.String("level", lvl.String()))
			}, func(err error) {
				logger.Warn("[CONFIG] reload rejected", slog.Any("err", err))
			})

			app := NewApp(cfg, logger)

			if err := app.Start(c.Context); err != nil {
				return err
			}

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
			<-stop

			logger.Info("Shutting down...")
			return app.Stop(context.Background())
		},
	}
}

func provisionCmd() *cli.Command {
	return &cli.Command{
		Name:      "provision",
		Aliases:   []string{"p"},
		Usage:     "Register a device ahead of its first connection",
		ArgsUsage: "-- [config overrides]",
		Flags: []cli.Flag{
			configFileFlag,
			&cli.StringFlag{Name: "code", Usage: "Pairing code printed on the device", Required: true},
			&cli.StringFlag{Name: "secret", Usage: "Device secret", Required: true},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			logger, _, closer, err := newLogger(cfg.Log)
			if err != nil {
				return err
			}
			defer closer.Close()

			db, err := sqlite.Open(c.Context, cfg.Store.DSN)
			if err != nil {
				return err
			}
			defer db.Close()

			auth := service.NewAuthService(db, cfg, metrics.New(), logger)
			device, err := auth.Provision(c.Context, service.Credentials{
				PairingCode: c.String("code"),
				Secret:      c.String("secret"),
			})
			if err != nil {
				return err
			}

			_, err = fmt.Fprintln(c.App.Writer, device.ID)
			return err
		},
	}
}
