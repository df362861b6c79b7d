// Copyright Bio312 course staff, 2026. All rights reserved.

// Package main is the entry point for the structfetch CLI, the course
// tool that resolves protein cross-references to predicted structure
// files from AlphaFold and SWISS-MODEL.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Bio312/labfiles/internal/secrets"
)

// version is set at build time via ldflags.
var version = "dev"

// loadedSecrets holds values loaded from .secrets/ at startup.
var loadedSecrets map[string]string

// rootCmd is the base command for the structfetch CLI.
var rootCmd = &cobra.Command{
	Use:   "structfetch",
	Short: "Fetch predicted protein structures for course lab tables",
	Long: `structfetch resolves protein cross-reference identifiers to predicted
structure files. For each input row it tries AlphaFold directly (static file
probe, prediction API, entry-page scrape), remaps the identifier through the
AlphaFold search and UniProt accession APIs when that fails, and falls back
to SWISS-MODEL homology models as a last resort.

Downstream lab scripts (net-charge summation, DSSP summaries, tree plotting)
consume the output directory; filenames keep the referenceId__ prefix and the
AF-/SWM markers those scripts group by.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		s, err := secrets.Load(".secrets/")
		if err != nil {
			return err
		}
		loadedSecrets = s
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./structfetch.yaml or ~/.config/structfetch/config.yaml)")
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("structfetch")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "structfetch"))
		}
	}

	viper.SetEnvPrefix("STRUCTFETCH")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
