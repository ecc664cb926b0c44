package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/ruteri/smartcard-provisioning-worker/api/jobsource"
	"github.com/ruteri/smartcard-provisioning-worker/cmd/flags"
	"github.com/ruteri/smartcard-provisioning-worker/cryptoutils"
	"github.com/ruteri/smartcard-provisioning-worker/gpgutils"
	"github.com/ruteri/smartcard-provisioning-worker/httpserver"
	"github.com/ruteri/smartcard-provisioning-worker/interfaces"
	"github.com/ruteri/smartcard-provisioning-worker/metrics"
	"github.com/ruteri/smartcard-provisioning-worker/procutils"
	"github.com/ruteri/smartcard-provisioning-worker/provisioner"
	"github.com/ruteri/smartcard-provisioning-worker/smartcard"
	"github.com/ruteri/smartcard-provisioning-worker/storage"
	"github.com/ruteri/smartcard-provisioning-worker/worker"
	"github.com/urfave/cli/v2"
)

func main() {
	workerFlags := flags.WorkerFlags()

	app := &cli.App{
		Name:   "smartcard-provisioning-worker",
		Usage:  "Provision OpenPGP keys onto hardware tokens for jobs from a remote job source",
		Flags:  workerFlags,
		Before: flags.LoadConfigFile(workerFlags),
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)

	cfg, err := flags.ParseWorkerConfig(cCtx)
	if err != nil {
		logger.Error("Invalid configuration", "err", err)
		return err
	}

	tlsConfig, err := cryptoutils.ClientTLSConfig(cfg.CAFile)
	if err != nil {
		logger.Error("Failed to load CA file", "err", err, "file", cfg.CAFile)
		return fmt.Errorf("%w: %w", interfaces.ErrInvalidConfig, err)
	}

	bins, err := gpgutils.ResolveBinaries(exec.LookPath)
	if err != nil {
		logger.Error("Key-management tools not found", "err", err)
		return err
	}
	tokenTool, err := exec.LookPath(cfg.TokenTool)
	if err != nil {
		logger.Error("Token-management tool not found", "err", err, "tool", cfg.TokenTool)
		return fmt.Errorf("%w: %w", interfaces.ErrExternalTool, err)
	}
	logger.Info("External tools resolved", "gpg", bins.GPG, "gpg_agent", bins.Agent, "gpgconf", bins.GPGConf, "token_tool", tokenTool)

	runner := procutils.NewExecRunner(logger)
	pipeline, err := provisioner.NewPipeline(logger, cfg.Provisioner,
		smartcard.NewDetector(logger, runner, tokenTool),
		gpgutils.NewSessionManager(logger, runner, bins, cfg.GnuPGHome),
		gpgutils.NewKeyring(logger, runner, bins.GPG, cfg.GPGDebugLevel),
	)
	if err != nil {
		logger.Error("Failed to create pipeline", "err", err)
		return err
	}

	var archive interfaces.ArtifactBackend
	if len(cfg.ArchiveURIs) > 0 {
		archive, err = storage.NewBackendFactory(logger).FromURIs(cfg.ArchiveURIs)
		if err != nil {
			logger.Error("Failed to create artifact archive", "err", err)
			return fmt.Errorf("%w: %w", interfaces.ErrInvalidConfig, err)
		}
		logger.Info("Archiving public artifacts", "location", archive.LocationURI())
	}

	source := jobsource.NewClient(logger, cfg.URL, cfg.Token, tlsConfig)
	w, err := worker.New(logger, worker.Config{
		WorkerID:     cfg.WorkerID,
		PollInterval: cfg.JobInterval,
	}, source, pipeline, archive)
	if err != nil {
		logger.Error("Failed to create worker", "err", err)
		return err
	}
	pipeline.SetObserver(func(jobID string, stage provisioner.Stage) {
		w.SetStage(jobID, string(stage))
	})

	metrics.MustRegister()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.StatusAddr != "" || cfg.MetricsAddr != "" {
		server, err := httpserver.New(flags.ConfigureServer(cCtx, logger, cfg.StatusAddr), w)
		if err != nil {
			logger.Error("Failed to create status server", "err", err)
			return err
		}
		server.RunInBackground()
		defer server.Shutdown()
	}

	if err := w.Register(ctx); err != nil {
		logger.Error("Failed to register worker", "err", err, "url", cfg.URL)
		return err
	}

	logger.Info("Worker is running, press Ctrl+C to stop", "worker_id", cfg.WorkerID, "url", cfg.URL)
	if err := w.Run(ctx); err != nil {
		return err
	}
	logger.Info("Shutdown complete")
	return nil
}
