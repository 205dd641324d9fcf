// Command trendscout collects recent, media-bearing Weibo posts for a list
// of keywords or accounts, keeps the high-quality ones and writes them out
// as CSV, JSON and an HTML gallery.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ibeckermayer/trendscout/internal/config"
	"github.com/ibeckermayer/trendscout/internal/logging"
)

// envFile is read for secret overrides when present.
const envFile = ".env"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// session is what every subcommand works from once flags are parsed.
type session struct {
	cfgPath string
	cfg     *config.Config
	log     *logrus.Logger
	closer  io.Closer
}

func newRootCmd() *cobra.Command {
	s := &session{}
	var logLevel string

	rootCmd := &cobra.Command{
		Use:           "trendscout",
		Short:         "Collect trending Weibo posts by keyword or account",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return s.open(logLevel)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return s.close()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&s.cfgPath, "config", "c", config.DefaultPath, "config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level")

	rootCmd.AddCommand(newKeywordsCmd(s))
	rootCmd.AddCommand(newUsersCmd(s))
	rootCmd.AddCommand(newScheduleCmd(s))
	rootCmd.AddCommand(newLoginCmd(s))
	rootCmd.AddCommand(newCheckCookieCmd(s))
	rootCmd.AddCommand(newHistoryCmd(s))
	rootCmd.AddCommand(newGalleryCmd(s))
	rootCmd.AddCommand(newConfigCmd(s))

	return rootCmd
}

// open loads the config, repairing it if needed, and sets up logging.
func (s *session) open(logLevel string) error {
	cfg, report, saveErr := config.Ensure(s.cfgPath)
	cfg.ApplyEnv(envFile)
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}

	logger, closer, err := logging.NewLogger(cfg.Log.Level, cfg.Log.File)
	if err != nil {
		return err
	}
	s.cfg, s.log, s.closer = cfg, logger, closer

	log := logger.WithField("config", s.cfgPath)
	switch {
	case report.Created:
		log.Info("created default config")
	case report.Cause != nil:
		log.WithError(report.Cause).WithField("backup", report.Backup).Warn("config was corrupt, replaced with defaults")
	case len(report.Filled) > 0:
		log.WithField("keys", report.Filled).Info("filled missing config keys with defaults")
	}
	if saveErr != nil {
		log.WithError(saveErr).Warn("could not persist config")
	}
	return nil
}

func (s *session) close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}
