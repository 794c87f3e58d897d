package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/privchat/privchat-sdk-go/internal/config"
)

const (
	AppName      = "privchat-sdk-go"
	AppNamespace = "privchat"
)

var (
	version        = "0.0.0"
	commit         = "hash"
	commitDate     = time.Now().String()
	branch         = "branch"
	buildTimestamp = ""
)

// Run is the demo CLI entrypoint: it exercises the façade exactly the way
// a host application would (load config, connect, authenticate, run
// bootstrap sync, block until signaled, disconnect cleanly).
func Run() error {
	app := &cli.App{
		Name:  AppName,
		Usage: "Reference CLI driver for the privchat client SDK",
		Commands: []*cli.Command{
			connectCmd(),
		},
	}
	return app.Run(os.Args)
}

func connectCmd() *cli.Command {
	flags := []cli.Flag{
		&cli.StringFlag{Name: "config_file", Usage: "Path to the configuration file"},
		&cli.StringFlag{Name: "data_dir", Usage: "SDK data directory"},
		&cli.StringSliceFlag{Name: "server_urls", Usage: "Ordered candidate server endpoints"},
		&cli.Int64Flag{Name: "user_id", Usage: "User id to authenticate as"},
		&cli.StringFlag{Name: "token", Usage: "Bearer token issued by account/user/login"},
		&cli.StringFlag{Name: "device_id", Usage: "Stable device UUID, generated if omitted"},
	}

	return &cli.Command{
		Name:    "connect",
		Aliases: []string{"c"},
		Usage:   "Connect, authenticate, run bootstrap sync, and hold the session open",
		Flags:   flags,
		Action: func(c *cli.Context) error {
			fc, v, err := config.LoadConfig(nil)
			if err != nil {
				return err
			}
			if cfgFile := c.String("config_file"); cfgFile != "" {
				v.SetConfigFile(cfgFile)
				if err := v.ReadInConfig(); err != nil {
					return err
				}
				if err := v.Unmarshal(fc); err != nil {
					return err
				}
			}
			if c.String("data_dir") != "" {
				fc.DataDir = c.String("data_dir")
			}
			if urls := c.StringSlice("server_urls"); len(urls) > 0 {
				fc.ServerURLs = urls
			}

			cfg, err := fc.ToBuilder().Build()
			if err != nil {
				return err
			}

			logger := slog.New(slog.NewJSONHandler(os.Stdout, nil)).With(
				slog.String("app", AppName), slog.String("version", version))

			config.WatchEndpoints(logger, v, func(urls []string) {
				logger.Info("server_urls changed in config file; the running client keeps its endpoints until restart", slog.Any("urls", urls))
			})

			deviceID := uuid.New()
			if raw := c.String("device_id"); raw != "" {
				if parsed, err := uuid.Parse(raw); err == nil {
					deviceID = parsed
				}
			}

			app := NewApp(logger, cfg, sessionArgs{
				userID:   c.Int64("user_id"),
				token:    c.String("token"),
				deviceID: deviceID,
			})

			if err := app.Start(c.Context); err != nil {
				return err
			}

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
			<-stop

			logger.Info("shutting down")
			return app.Stop(context.Background())
		},
	}
}
