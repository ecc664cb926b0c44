package main

import (
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ruteri/smartcard-provisioning-worker/api/jobsource"
	"github.com/ruteri/smartcard-provisioning-worker/cmd/flags"
	"github.com/ruteri/smartcard-provisioning-worker/httpserver"
	"github.com/urfave/cli/v2"
	"github.com/urfave/cli/v2/altsrc"
)

func serverFlags() []cli.Flag {
	return append([]cli.Flag{
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:    flags.ListenAddrFlagName,
			Value:   "127.0.0.1:50055",
			EnvVars: []string{"LISTEN_ADDR"},
			Usage:   "address to listen on for API",
		}),
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:    flags.TokenFlagName,
			EnvVars: []string{"DEFGUARD_TOKEN"},
			Usage:   "bearer token required from workers and operators",
		}),
	}, flags.CommonFlags("jobsource-server")...)
}

func main() {
	allFlags := serverFlags()

	app := &cli.App{
		Name:   "jobsource-server",
		Usage:  "Serve an in-memory provisioning job source",
		Flags:  allFlags,
		Before: flags.LoadConfigFile(allFlags),
		Action: func(cCtx *cli.Context) error {
			logger := flags.SetupLogger(cCtx)

			token := cCtx.String(flags.TokenFlagName)
			if token == "" {
				logger.Error("token is required")
				return errors.New("--token is required")
			}

			handler := jobsource.NewHandler(logger, token)
			cfg := flags.ConfigureServer(cCtx, logger, cCtx.String(flags.ListenAddrFlagName))

			server, err := httpserver.New(cfg, nil, handler.RegisterRoutes)
			if err != nil {
				logger.Error("Failed to create server", "err", err)
				return err
			}

			logger.Info("Starting server")
			server.RunInBackground()

			exit := make(chan os.Signal, 1)
			signal.Notify(exit, os.Interrupt, syscall.SIGTERM)

			logger.Info("Server is running, press Ctrl+C to stop")
			<-exit
			logger.Info("Shutdown signal received")

			server.Shutdown()
			logger.Info("Server shutdown complete")
			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
