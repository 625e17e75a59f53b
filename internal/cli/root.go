package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dl-alexandre/netdeploy/internal/config"
	apperrors "github.com/dl-alexandre/netdeploy/internal/errors"
	"github.com/dl-alexandre/netdeploy/internal/logging"
	"github.com/dl-alexandre/netdeploy/internal/types"
	"github.com/dl-alexandre/netdeploy/internal/utils"
	"github.com/dl-alexandre/netdeploy/pkg/version"
)

var (
	globalFlags    types.GlobalFlags
	logger         logging.Logger = logging.NewNoOpLogger()
	debugTransport *logging.DebugTransport
	appConfig      *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "netdeploy",
	Short: "Content-addressed static site deploys",
	Long: `netdeploy publishes a directory tree to a Netlify-compatible deploy service.

Every file is identified by the digest of its content. The service is told
the whole path -> digest manifest and answers with the digests it lacks, so
only new content is uploaded and identical files are sent once.`,
	Version:       version.Get().Version,
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := globalFlags.Validate(); err != nil {
			return utils.WrapAppError(utils.NewCLIError(utils.ErrCodeInvalidArgument, err.Error()).Build(), err)
		}

		cfg, err := config.Load(globalFlags.ConfigPath)
		if err != nil {
			return utils.WrapAppError(utils.NewCLIError(utils.ErrCodeInvalidArgument, err.Error()).Build(), err)
		}
		applyFlagOverrides(cmd, cfg)
		appConfig = cfg

		level, _ := logging.ParseLevel(cfg.LogLevel)
		logConfig := logging.LogConfig{
			Level:           level,
			OutputFile:      globalFlags.LogFile,
			EnableConsole:   !globalFlags.Quiet,
			EnableDebug:     globalFlags.Debug,
			MaxFileSize:     logging.DefaultLogConfig().MaxFileSize,
			RedactSensitive: true,
			EnableColor:     true,
			EnableTimestamp: true,
		}
		if globalFlags.Verbose {
			logConfig.Level = logging.DEBUG
		}
		if globalFlags.OutputFormat != types.OutputFormatTable && !globalFlags.Verbose && !globalFlags.Debug {
			logConfig.EnableConsole = false
		}

		logger, debugTransport, err = logging.NewDebugLoggerWithTransport(logConfig)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Close()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  "Print the version and build metadata of netdeploy",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := NewOutputWriter(globalFlags.OutputFormat, globalFlags.Quiet, globalFlags.Verbose)
		info := version.Get()
		return out.WriteSuccess("version", map[string]string{
			"version":   info.Version,
			"commit":    info.Commit,
			"date":      info.Date,
			"goVersion": info.GoVersion,
			"platform":  info.Platform,
		})
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&globalFlags.Profile, "profile", "default", "Credential profile to use")
	pf.StringVar(&globalFlags.ConfigPath, "config", "", "Path to configuration file")
	pf.StringVar(&globalFlags.SiteID, "site-id", "", "Site to deploy to (overrides "+utils.EnvSiteID+")")
	pf.StringVar(&globalFlags.APIBase, "api-base", "", "Deploy service base URL")
	pf.StringVar(&globalFlags.Token, "auth-token", "", "Bearer token (overrides "+utils.EnvAuthToken+" and stored credentials)")
	pf.StringVar((*string)(&globalFlags.OutputFormat), "output", "table", "Output format (json, table, yaml)")
	pf.BoolVarP(&globalFlags.Quiet, "quiet", "q", false, "Suppress non-essential output")
	pf.BoolVarP(&globalFlags.Verbose, "verbose", "v", false, "Enable verbose logging")
	pf.BoolVar(&globalFlags.Debug, "debug", false, "Log every deploy service request")
	pf.StringVar(&globalFlags.LogFile, "log-file", "", "Path to log file")
	pf.DurationVar(&globalFlags.Timeout, "timeout", 0, "Per-request timeout (default from config)")

	rootCmd.AddCommand(versionCmd)
}

// applyFlagOverrides gives explicitly set flags the last word over file and
// environment configuration.
func applyFlagOverrides(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("site-id") {
		cfg.SiteID = globalFlags.SiteID
	}
	if flags.Changed("api-base") {
		cfg.APIBase = globalFlags.APIBase
	}
	if flags.Changed("output") {
		cfg.OutputFormat = globalFlags.OutputFormat
	} else {
		globalFlags.OutputFormat = cfg.OutputFormat
	}
	if flags.Changed("timeout") && globalFlags.Timeout > 0 {
		cfg.RequestTimeout = int(globalFlags.Timeout.Seconds())
		if cfg.RequestTimeout < 1 {
			cfg.RequestTimeout = 1
		}
	}
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		return utils.ExitSuccess
	}
	return exitCode(err)
}

// exitCode prints err unless a command already reported it and maps it to a
// process exit code.
func exitCode(err error) int {
	var reported *reportedError
	if errors.As(err, &reported) {
		return utils.GetExitCode(reported.CLIError.Code)
	}

	cliErr := apperrors.ToCLIError(err)
	fmt.Fprintf(os.Stderr, "Error [%s]: %s\n", cliErr.Code, cliErr.Message)
	return utils.GetExitCode(cliErr.Code)
}

// GetGlobalFlags returns the global flags
func GetGlobalFlags() types.GlobalFlags {
	return globalFlags
}

// GetLogger returns the global logger
func GetLogger() logging.Logger {
	return logger
}
