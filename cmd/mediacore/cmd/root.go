// Package cmd implements the CLI commands for mediacore.
package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/embedops/mediacore/internal/config"
	"github.com/embedops/mediacore/internal/observability"
	"github.com/embedops/mediacore/internal/service/logs"
	"github.com/embedops/mediacore/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var (
	cfgFile   string
	logLevel  string
	logFormat string

	// logService is the in-memory ring buffer every log record also lands
	// in, so the control API can serve GET /api/v1/logs and its live-tail
	// stream without a second logging transport. Populated by initLogging.
	logService = logs.New()
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:     "mediacore",
	Short:   "Multi-camera capture, recording, and live-mix engine",
	Version: version.Short(),
	Long: `mediacore drives an embedded multi-camera capture and mixing engine:
four HDMI inputs, hardware H.264 encode/decode, continuous per-camera
recording, and a compositor that mixes any subset of cameras plus file and
graphic sources into a single program output routed to a colocated media
server.`,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		return initLogging()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		return fmt.Errorf("executing root command: %w", err)
	}
	return nil
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.mediacore.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")

	mustBindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	mustBindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	config.SetDefaults(viper.GetViper())

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/mediacore")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".mediacore")
	}

	viper.SetEnvPrefix("MEDIACORE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// initLogging configures the slog logger based on configuration. The
// redacting handler from internal/observability writes to stderr; the log
// service's ring buffer sits in front of it so the control API can serve
// recent/live-tail logs without a second logging transport.
func initLogging() error {
	cfg := config.LoggingConfig{
		Level:      strings.ToLower(viper.GetString("logging.level")),
		Format:     strings.ToLower(viper.GetString("logging.format")),
		AddSource:  viper.GetBool("logging.add_source"),
		TimeFormat: viper.GetString("logging.time_format"),
	}

	handler := observability.NewHandler(cfg, os.Stderr)
	slog.SetDefault(slog.New(logService.WrapHandler(handler)))
	return nil
}

// mustBindPFlag binds a viper key to a cobra flag and panics if binding fails.
func mustBindPFlag(key string, flag *pflag.Flag) {
	if err := viper.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("failed to bind flag %q to key %q: %v", flag.Name, key, err))
	}
}
