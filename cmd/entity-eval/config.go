// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/entity-eval/pkg/types"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration as YAML",
	Long: `Config prints the configuration evaluate would run with: the config
file merged over the built-in defaults and ENTITY_EVAL_ environment
overrides, with the matching policy of every category filled in. The API
key is redacted. The output is a valid entity-eval.yaml.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.AI.APIKey != "" {
			cfg.AI.APIKey = "REDACTED"
		}

		policies := make(map[types.Category]types.CategoryOverride, len(types.AllCategories()))
		for _, c := range types.AllCategories() {
			policies[c] = cfg.CategoryPolicy(c).Override()
		}
		cfg.Categories = policies

		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			return fmt.Errorf("encoding configuration: %w", err)
		}
		return enc.Close()
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
}
