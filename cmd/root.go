package cmd

import (
	"errors"
	"io/fs"
	"os"
	"time"

	"github.com/AzielCF/az-publish/core/config"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "az-publish",
	Short: "Social publish job pipeline",
	Long: `az-publish claims due scheduled posts, fans them out to the connected social
providers as publish jobs and streams job status to clients over websocket.`,
}

func init() {
	time.Local = time.UTC

	rootCmd.CompletionOptions.DisableDefaultCmd = true
	initFlags()
}

func initFlags() {
	rootCmd.PersistentFlags().StringP(
		"port", "p", "",
		"change port number with --port <number> | example: --port=8080",
	)
	rootCmd.PersistentFlags().BoolP(
		"debug", "d", false,
		"hide or displaying log with --debug <true/false> | example: --debug=true",
	)
	rootCmd.PersistentFlags().String(
		"db-driver", "",
		`database driver --db-driver <sqlite|postgres> | example: --db-driver="postgres"`,
	)
	rootCmd.PersistentFlags().String(
		"base-path", "",
		`base path for subpath deployment --base-path <string> | example: --base-path="/publish"`,
	)
}

// loadConfig reads .env, the environment and the flags of cmd, in increasing
// priority, and configures logging.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logrus.Warnf("[CONFIG] Failed to load .env: %v", err)
	}

	v := viper.New()
	v.AutomaticEnv()

	flags := cmd.Flags()
	bindings := map[string]string{
		"APP_PORT":      "port",
		"APP_DEBUG":     "debug",
		"DB_DRIVER":     "db-driver",
		"APP_BASE_PATH": "base-path",
	}
	for key, name := range bindings {
		if f := flags.Lookup(name); f != nil && f.Changed {
			if err := v.BindPFlag(key, f); err != nil {
				return nil, err
			}
		}
	}

	cfg, err := config.LoadConfig(v)
	if err != nil {
		return nil, err
	}

	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if cfg.App.Debug {
		logrus.SetLevel(logrus.DebugLevel)
	}
	return cfg, nil
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
