package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ruteri/device-onboarding-backend/api/recordhandler"
	"github.com/ruteri/device-onboarding-backend/cmd/flags"
	"github.com/ruteri/device-onboarding-backend/cmd/onboardingcommon"
	"github.com/ruteri/device-onboarding-backend/common"
	"github.com/ruteri/device-onboarding-backend/httpserver"
	"github.com/ruteri/device-onboarding-backend/metrics"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "onboarding-server",
		Usage: "Onboard devices from signed production records delivered by S3 event notifications",
		Flags: append(append([]cli.Flag{flags.ListenAddrFlag}, flags.CommonFlags...), onboardingcommon.OnboardingFlags...),
		Action: func(cCtx *cli.Context) error {
			logger := flags.SetupLogger(cCtx)
			m := metrics.NewMetrics(common.PackageName)

			processor, err := onboardingcommon.SetupProcessor(context.Background(), cCtx, logger, m)
			if err != nil {
				logger.Error("Failed to set up onboarding", "err", err)
				return err
			}

			cfg := flags.ConfigureServer(cCtx, logger, cCtx.String(flags.ListenAddrFlag.Name))
			server, err := httpserver.New(cfg, recordhandler.NewHandler(processor, m, logger), m)
			if err != nil {
				logger.Error("Failed to create server", "err", err)
				return err
			}

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
