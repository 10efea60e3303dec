package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"taxiflow/config"
	"taxiflow/logger"
	"taxiflow/models"
)

var (
	configPath string
	taxiType   string

	cfg   *config.Config
	kinds []models.TaxiKind
)

var rootCmd = &cobra.Command{
	Use:           "taxiflow",
	Short:         "Normalize NYC TLC yellow and green trip records into one canonical store",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		log := logger.GetLogger()

		// Load environment variables from .env if present
		if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
			log.WithError(err).Warn("Error loading .env file")
		}

		var err error
		if cfg, err = config.LoadConfig(configPath); err != nil {
			return err
		}
		if kinds, err = models.ParseKindSelection(taxiType); err != nil {
			return err
		}
		if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
			return fmt.Errorf("failed to configure logger: %w", err)
		}
		if cfg.Metrics.CloudWatch {
			logger.InitCloudWatch(cfg.Metrics.Region, cfg.Metrics.Namespace, cfg.Metrics.DashboardName)
		}

		log.WithFields(logger.Fields{
			"service":     cfg.Taxiflow.Name,
			"version":     cfg.Taxiflow.Version,
			"environment": config.AppEnvironment(),
			"command":     cmd.Name(),
			"kinds":       kinds,
		}).Info("starting taxiflow")
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath, "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&taxiType, "taxi-type", "all", "Taxi kinds to process: yellow, green or all")

	rootCmd.AddCommand(ingestCmd, fetchCmd, verifyCmd, schemaCmd, exportCmd)
}

// signalContext is canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// Execute runs the command line and returns the process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		logger.GetLogger().WithError(err).Error("taxiflow failed")
		return 1
	}
	return 0
}
