// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the entity-eval CLI.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/pdiddy/entity-eval/internal/logging"
	"github.com/pdiddy/entity-eval/internal/secrets"
	"github.com/pdiddy/entity-eval/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

var (
	// loadedSecrets holds API keys loaded from .secrets/ at startup.
	loadedSecrets secrets.Secrets

	// logger is built from the --log-level and --log-format flags.
	logger = zap.NewNop()
)

// rootCmd is the base command for the entity-eval CLI.
var rootCmd = &cobra.Command{
	Use:   "entity-eval",
	Short: "Evaluate LLM entity extraction against structured case records",
	Long: `entity-eval measures how well a language model extracts people,
locations, location types and behavioural patterns from missing-person
case narratives.

For every case it builds the ground truth from the structured entity
columns, asks the model to extract the same entities from the free text,
scores the extraction in exact, partial and semantic tiers, and classifies
every surplus item as found in the source text or hallucinated. Results are
stored per case in a SQLite database under the results directory.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, _ := cmd.Flags().GetString("log-level")
		format, _ := cmd.Flags().GetString("log-format")
		l, err := logging.New(level, format)
		if err != nil {
			return err
		}
		logger = l

		s, err := secrets.Load(".secrets/", logger)
		if err != nil {
			return err
		}
		loadedSecrets = s
		if len(s) > 0 {
			logger.Debug("loaded secrets", zap.Strings("keys", s.Keys()))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./entity-eval.yaml or ~/.config/entity-eval/entity-eval.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", "console", "log format: console or json")
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("entity-eval")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "entity-eval"))
		}
	}

	setDefaults()

	viper.SetEnvPrefix("ENTITY_EVAL")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// setDefaults registers every configuration key so environment overrides
// reach Unmarshal.
func setDefaults() {
	retry := types.DefaultRetryConfig()

	viper.SetDefault("records.missing_person_file", "records/missing_person.csv")
	viper.SetDefault("records.vulnerability_file", "records/vulnerability.csv")
	viper.SetDefault("results.dir", "results")
	viper.SetDefault("artifacts_dir", "artifacts")

	viper.SetDefault("ai.model", "gpt-4o-mini")
	viper.SetDefault("ai.api_key", "")
	viper.SetDefault("ai.base_url", "")
	viper.SetDefault("ai.max_tokens", 5000)
	viper.SetDefault("ai.requests_per_second", 0)

	viper.SetDefault("embedding.model", "text-embedding-3-small")
	viper.SetDefault("embedding.cache_ttl", "1h")

	viper.SetDefault("retry.max_attempts", retry.MaxAttempts)
	viper.SetDefault("retry.initial_temperature", retry.InitialTemperature)
	viper.SetDefault("retry.temperature_step", retry.TemperatureStep)
	viper.SetDefault("retry.max_temperature", retry.MaxTemperature)
	viper.SetDefault("retry.attempt_timeout", retry.AttemptTimeout)
}

// loadConfig decodes the merged file, environment and default settings.
func loadConfig() (types.EvalConfig, error) {
	cfg, err := decodeConfig(viper.GetViper())
	if err != nil {
		return cfg, err
	}
	cfg.AI.APIKey = loadedSecrets.Value(secrets.OpenAIAPIKey, cfg.AI.APIKey)
	return cfg, nil
}

func decodeConfig(v *viper.Viper) (types.EvalConfig, error) {
	var cfg types.EvalConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decoding configuration: %w", err)
	}
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
