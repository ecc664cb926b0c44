package flags

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ruteri/smartcard-provisioning-worker/api"
	"github.com/ruteri/smartcard-provisioning-worker/common"
	"github.com/ruteri/smartcard-provisioning-worker/gpgutils"
	"github.com/ruteri/smartcard-provisioning-worker/interfaces"
	"github.com/ruteri/smartcard-provisioning-worker/provisioner"
	"github.com/ruteri/smartcard-provisioning-worker/smartcard"
	"github.com/urfave/cli/v2"
	"github.com/urfave/cli/v2/altsrc"
)

// Flag names shared between definitions, config files and lookups.
const (
	ConfigFlagName                  = "config"
	WorkerIDFlagName                = "worker-id"
	URLFlagName                     = "url"
	TokenFlagName                   = "token"
	CAFileFlagName                  = "ca-file"
	JobIntervalFlagName             = "job-interval"
	SmartcardRetriesFlagName        = "smartcard-retries"
	SmartcardRetryIntervalFlagName  = "smartcard-retry-interval"
	GPGDebugLevelFlagName           = "gpg-debug-level"
	SkipPermissionHardeningFlagName = "skip-permission-hardening"
	GnuPGHomeFlagName               = "gnupg-home"
	AdminPINFlagName                = "admin-pin"
	TokenToolFlagName               = "token-tool"
	ArchiveURIFlagName              = "archive-uri"
	StatusAddrFlagName              = "status-addr"
	ListenAddrFlagName              = "listen-addr"
	MetricsAddrFlagName             = "metrics-addr"
	PprofFlagName                   = "pprof"
	LogLevelFlagName                = "log-level"
	LogJSONFlagName                 = "log-json"
	LogDebugFlagName                = "log-debug"
	LogUIDFlagName                  = "log-uid"
	LogServiceFlagName              = "log-service"
)

// DefaultService tags log records when --log-service is not given.
const DefaultService = "smartcard-provisioning-worker"

func SetupLogger(cCtx *cli.Context) (log *slog.Logger) {
	logger := common.SetupLogger(&common.LoggingOpts{
		Debug:   cCtx.Bool(LogDebugFlagName),
		Level:   cCtx.String(LogLevelFlagName),
		JSON:    cCtx.Bool(LogJSONFlagName),
		Service: cCtx.String(LogServiceFlagName),
		Version: common.Version,
	})

	if cCtx.Bool(LogUIDFlagName) {
		id := uuid.Must(uuid.NewRandom())
		logger = logger.With("uid", id.String())
	}
	return logger
}

func ConfigureServer(cCtx *cli.Context, logger *slog.Logger, listenAddr string) *api.HTTPServerConfig {
	return &api.HTTPServerConfig{
		ListenAddr:               listenAddr,
		MetricsAddr:              cCtx.String(MetricsAddrFlagName),
		Log:                      logger,
		EnablePprof:              cCtx.Bool(PprofFlagName),
		GracefulShutdownDuration: 30 * time.Second,
		ReadTimeout:              60 * time.Second,
		WriteTimeout:             30 * time.Second,
	}
}

// LoadConfigFile fills flags that were not set on the command line or in the
// environment from the file named by --config. Files ending in .yaml or .yml
// are read as YAML, anything else as TOML.
func LoadConfigFile(flags []cli.Flag) cli.BeforeFunc {
	return func(cCtx *cli.Context) error {
		source := altsrc.NewTomlSourceFromFlagFunc(ConfigFlagName)
		switch strings.ToLower(filepath.Ext(cCtx.String(ConfigFlagName))) {
		case ".yaml", ".yml":
			source = altsrc.NewYamlSourceFromFlagFunc(ConfigFlagName)
		}
		return altsrc.InitInputSourceWithContext(flags, source)(cCtx)
	}
}

// CommonFlags are shared by every binary. A fresh slice is built on each call.
func CommonFlags(service string) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    ConfigFlagName,
			EnvVars: []string{"CONFIG"},
			Usage:   "TOML or YAML file with flag values, keys named as flags",
		},
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:    LogLevelFlagName,
			Value:   "info",
			EnvVars: []string{"LOG_LEVEL"},
			Usage:   "log level: debug, info, warn, error",
		}),
		altsrc.NewBoolFlag(&cli.BoolFlag{
			Name:  LogJSONFlagName,
			Value: false,
			Usage: "log in JSON format",
		}),
		altsrc.NewBoolFlag(&cli.BoolFlag{
			Name:  LogDebugFlagName,
			Value: false,
			Usage: "log debug messages",
		}),
		altsrc.NewBoolFlag(&cli.BoolFlag{
			Name:  LogUIDFlagName,
			Value: false,
			Usage: "generate a uuid and add to all log messages",
		}),
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:  LogServiceFlagName,
			Value: service,
			Usage: "add 'service' tag to logs",
		}),
		altsrc.NewBoolFlag(&cli.BoolFlag{
			Name:  PprofFlagName,
			Value: false,
			Usage: "enable pprof debug endpoint",
		}),
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:    MetricsAddrFlagName,
			EnvVars: []string{"METRICS_ADDR"},
			Usage:   "address to listen on for Prometheus metrics, disabled if empty",
		}),
	}
}

// WorkerFlags returns the flags of the provisioning worker.
func WorkerFlags() []cli.Flag {
	return append([]cli.Flag{
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:    WorkerIDFlagName,
			Value:   "YubiBridge",
			EnvVars: []string{"WORKER_ID"},
			Usage:   "identifier announced to the job source",
		}),
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:    URLFlagName,
			Value:   "http://localhost:50055",
			EnvVars: []string{"URL"},
			Usage:   "base URL of the job source",
		}),
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:    TokenFlagName,
			EnvVars: []string{"DEFGUARD_TOKEN"},
			Usage:   "bearer token for the job source (required)",
		}),
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:    CAFileFlagName,
			EnvVars: []string{"CA_FILE"},
			Usage:   "PEM file with the CA certificates trusted for the job source",
		}),
		altsrc.NewDurationFlag(&cli.DurationFlag{
			Name:    JobIntervalFlagName,
			Value:   2 * time.Second,
			EnvVars: []string{"JOB_INTERVAL"},
			Usage:   "interval between job polls",
		}),
		altsrc.NewIntFlag(&cli.IntFlag{
			Name:    SmartcardRetriesFlagName,
			Value:   1,
			EnvVars: []string{"SMARTCARD_RETRIES"},
			Usage:   "number of token checks before a job fails with NoTokenFound",
		}),
		altsrc.NewDurationFlag(&cli.DurationFlag{
			Name:    SmartcardRetryIntervalFlagName,
			Value:   15 * time.Second,
			EnvVars: []string{"SMARTCARD_RETRY_INTERVAL"},
			Usage:   "pause between token checks",
		}),
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:    GPGDebugLevelFlagName,
			EnvVars: []string{"GPG_DEBUG_LEVEL"},
			Usage:   "debug level forwarded to gpg, none if empty",
		}),
		altsrc.NewBoolFlag(&cli.BoolFlag{
			Name:    SkipPermissionHardeningFlagName,
			EnvVars: []string{"SKIP_PERMISSION_HARDENING"},
			Usage:   "leave the temporary keyring home with default permissions",
		}),
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:    GnuPGHomeFlagName,
			Value:   gpgutils.DefaultHomePath(),
			EnvVars: []string{"GNUPG_HOME_PATH"},
			Usage:   "temporary keyring home, destroyed and recreated for every job",
		}),
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:    AdminPINFlagName,
			Value:   smartcard.DefaultAdminPIN,
			EnvVars: []string{"ADMIN_PIN"},
			Usage:   "token admin PIN used for the key transfer",
		}),
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:    TokenToolFlagName,
			Value:   smartcard.DefaultToolName,
			EnvVars: []string{"TOKEN_TOOL"},
			Usage:   "token-management tool used to list and reset tokens",
		}),
		altsrc.NewStringSliceFlag(&cli.StringSliceFlag{
			Name:    ArchiveURIFlagName,
			EnvVars: []string{"ARCHIVE_URI"},
			Usage:   "archive public artifacts to file://, s3:// or vault:// (repeatable)",
		}),
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:    StatusAddrFlagName,
			EnvVars: []string{"STATUS_ADDR"},
			Usage:   "address to serve /livez, /readyz and /status on, disabled if empty",
		}),
	}, CommonFlags(DefaultService)...)
}

// WorkerConfig is the validated configuration of the provisioning worker.
type WorkerConfig struct {
	WorkerID      string
	URL           string
	Token         string
	CAFile        string
	JobInterval   time.Duration
	Provisioner   provisioner.Config
	GPGDebugLevel string
	GnuPGHome     string
	TokenTool     string
	ArchiveURIs   []string
	StatusAddr    string
	MetricsAddr   string
}

// ParseWorkerConfig reads and validates the worker flags. Failures wrap
// interfaces.ErrInvalidConfig.
func ParseWorkerConfig(cCtx *cli.Context) (WorkerConfig, error) {
	cfg := WorkerConfig{
		WorkerID:    strings.TrimSpace(cCtx.String(WorkerIDFlagName)),
		URL:         strings.TrimSpace(cCtx.String(URLFlagName)),
		Token:       cCtx.String(TokenFlagName),
		CAFile:      cCtx.String(CAFileFlagName),
		JobInterval: cCtx.Duration(JobIntervalFlagName),
		Provisioner: provisioner.Config{
			TokenWaitRetries:        cCtx.Int(SmartcardRetriesFlagName),
			TokenWaitInterval:       cCtx.Duration(SmartcardRetryIntervalFlagName),
			SkipPermissionHardening: cCtx.Bool(SkipPermissionHardeningFlagName),
			AdminPIN:                cCtx.String(AdminPINFlagName),
		}.WithDefaults(),
		GPGDebugLevel: cCtx.String(GPGDebugLevelFlagName),
		GnuPGHome:     cCtx.String(GnuPGHomeFlagName),
		TokenTool:     cCtx.String(TokenToolFlagName),
		ArchiveURIs:   cCtx.StringSlice(ArchiveURIFlagName),
		StatusAddr:    cCtx.String(StatusAddrFlagName),
		MetricsAddr:   cCtx.String(MetricsAddrFlagName),
	}

	switch {
	case cfg.WorkerID == "":
		return cfg, fmt.Errorf("%w: --%s must not be empty", interfaces.ErrInvalidConfig, WorkerIDFlagName)
	case cfg.URL == "":
		return cfg, fmt.Errorf("%w: --%s must not be empty", interfaces.ErrInvalidConfig, URLFlagName)
	case cfg.Token == "":
		return cfg, fmt.Errorf("%w: --%s is required", interfaces.ErrInvalidConfig, TokenFlagName)
	case cfg.JobInterval <= 0:
		return cfg, fmt.Errorf("%w: --%s must be positive, got %s", interfaces.ErrInvalidConfig, JobIntervalFlagName, cfg.JobInterval)
	case cfg.GnuPGHome == "":
		return cfg, fmt.Errorf("%w: --%s must not be empty", interfaces.ErrInvalidConfig, GnuPGHomeFlagName)
	}
	if err := cfg.Provisioner.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
