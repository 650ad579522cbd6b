package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jmcleod/homly/config"
)

// Version is set at build time with -ldflags "-X .../cmd.Version=...".
var Version = "dev"

var (
	envFile   string
	apiURL    string
	profile   string
	dataDir   string
	logLevel  string
	logFormat string

	cfg    config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "homly",
	Short: "Homly storefront client",
	Long: `A command-line client for the Homly storefront: sign in, browse the
catalog and keep a cart. The session survives restarts and is checked
against the server on every start.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var files []string
		if envFile != "" {
			files = append(files, envFile)
		}
		c, err := config.Load(files...)
		if err != nil {
			return err
		}
		flags := cmd.Flags()
		if flags.Changed("api-url") {
			c.APIBaseURL = apiURL
		}
		if flags.Changed("profile") {
			c.Profile = profile
		}
		if flags.Changed("data-dir") {
			c.DataDir = dataDir
		}
		if flags.Changed("log-level") {
			c.LogLevel = logLevel
		}
		if flags.Changed("log-format") {
			c.LogFormat = logFormat
		}
		l, err := config.NewLogger(os.Stderr, c.LogLevel, c.LogFormat)
		if err != nil {
			return err
		}
		cfg, logger = c, l
		slog.SetDefault(logger)
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&envFile, "env-file", "", "Load settings from this .env file instead of ./.env")
	pf.StringVar(&apiURL, "api-url", config.DefaultAPIBaseURL, "API base URL (HOMLY_API_BASE_URL)")
	pf.StringVar(&profile, "profile", config.DefaultProfile, "Local profile name (HOMLY_PROFILE)")
	pf.StringVar(&dataDir, "data-dir", "", "Directory for the local store (HOMLY_DATA_DIR)")
	pf.StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn or error (HOMLY_LOG_LEVEL)")
	pf.StringVar(&logFormat, "log-format", "text", "Log format: text or json (HOMLY_LOG_FORMAT)")
}
