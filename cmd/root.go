// Package cmd implements the regcount command-line interface.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jonesrussell/north-cloud/regcount/cmd/analyze"
	cmdcache "github.com/jonesrussell/north-cloud/regcount/cmd/cache"
	"github.com/jonesrussell/north-cloud/regcount/cmd/common"
	"github.com/jonesrussell/north-cloud/regcount/cmd/serve"
	"github.com/jonesrussell/north-cloud/regcount/internal/config"
)

// Version is set at build time with -ldflags "-X ...cmd.Version=...".
var Version = "dev"

var (
	cfgFile string
	debug   bool

	rootCmd = &cobra.Command{
		Use:   "regcount",
		Short: "Word counts of the Code of Federal Regulations by agency",
		Long: `regcount retrieves agency and title data from the eCFR API, counts the words
of each title and aggregates them by agency, title and date.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
)

// Execute runs the root command.
func Execute() error {
	return rootCmd.ExecuteContext(context.Background())
}

func init() {
	// assigned here rather than in the literal to avoid an initialization
	// cycle (initConfig refers to rootCmd)
	rootCmd.PersistentPreRunE = func(*cobra.Command, []string) error {
		return initConfig()
	}
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is ./config.yaml or ./config/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "regcount version %s\n", Version)
		},
	})
	rootCmd.AddCommand(analyze.Command())
	rootCmd.AddCommand(serve.Command(Version))
	rootCmd.AddCommand(cmdcache.Command())
}

// initConfig loads .env files, then layers the config file and REGCOUNT_*
// environment over the defaults.
func initConfig() error {
	if path := os.Getenv("ENV_FILE"); path != "" {
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
	} else {
		// missing .env files are fine
		_ = godotenv.Load()
	}

	v := viper.GetViper()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}
	config.BindDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.BindPFlag(common.DebugKey, rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		return fmt.Errorf("failed to bind debug flag: %w", err)
	}
	return nil
}
