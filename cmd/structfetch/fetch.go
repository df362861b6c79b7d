// Copyright Bio312 course staff, 2026. All rights reserved.

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/Bio312/labfiles/internal/fetch"
	"github.com/Bio312/labfiles/internal/httputil"
	"github.com/Bio312/labfiles/internal/ledger"
	"github.com/Bio312/labfiles/internal/secrets"
	"github.com/Bio312/labfiles/pkg/types"
)

const (
	defaultTimeout        = 60 * time.Second
	defaultConnectTimeout = 10 * time.Second
	defaultRetries        = 2
	defaultRate           = 2.0
	defaultSWMMax         = 1
	defaultUserAgent      = "structfetch/0.1"
	ledgerDir             = "ledger"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch <table.tsv>",
	Short: "Resolve a table of cross-references to structure files",
	Long: `Fetch reads a two-column tab-separated table (referenceId, crossRefId)
and downloads one predicted structure per resolvable row into the output
directory. Rows whose cross-reference is MISSING, NA, or "-" are skipped.
Individual row failures are logged and do not abort the batch or change the
exit status; only an unreadable input table or unwritable output directory
is fatal.`,
	Args: cobra.ExactArgs(1),
	RunE: runFetch,
}

func init() {
	fetchCmd.Flags().String("out-dir", "", "output directory for structure files (default structures)")
	fetchCmd.Flags().Duration("timeout", 0, "total HTTP request timeout (default 60s)")
	fetchCmd.Flags().Duration("connect-timeout", 0, "HTTP connect timeout (default 10s)")
	fetchCmd.Flags().Int("retries", -1, "automatic retries on transient failures (default 2)")
	fetchCmd.Flags().Float64("rate", 0, "maximum outbound requests per second (default 2)")
	fetchCmd.Flags().Int("swm-max", 0, "maximum SWISS-MODEL downloads per record (default 1)")
	fetchCmd.Flags().Bool("no-ledger", false, "do not record outcomes in the run ledger")
	fetchCmd.Flags().Bool("verbose", false, "log every mechanism decision")

	rootCmd.AddCommand(fetchCmd)
}

// fetchConfig resolves the run configuration with flag > config file >
// default precedence.
func fetchConfig(cmd *cobra.Command) types.FetchConfig {
	cfg := types.FetchConfig{
		HTTPConfig: types.HTTPConfig{
			ConnectTimeout:    viper.GetDuration("fetch.connect_timeout"),
			Timeout:           viper.GetDuration("fetch.timeout"),
			Retries:           defaultRetries,
			RequestsPerSecond: viper.GetFloat64("fetch.requests_per_second"),
		},
		OutDir: viper.GetString("fetch.out_dir"),
		SWMMax: viper.GetInt("fetch.swm_max"),
	}

	if viper.IsSet("fetch.retries") {
		cfg.Retries = viper.GetInt("fetch.retries")
	}

	if v, _ := cmd.Flags().GetDuration("timeout"); v > 0 {
		cfg.Timeout = v
	}
	if v, _ := cmd.Flags().GetDuration("connect-timeout"); v > 0 {
		cfg.ConnectTimeout = v
	}
	if v, _ := cmd.Flags().GetInt("retries"); v >= 0 {
		cfg.Retries = v
	}
	if v, _ := cmd.Flags().GetFloat64("rate"); v > 0 {
		cfg.RequestsPerSecond = v
	}
	if v, _ := cmd.Flags().GetInt("swm-max"); v > 0 {
		cfg.SWMMax = v
	}
	if v, _ := cmd.Flags().GetString("out-dir"); v != "" {
		cfg.OutDir = v
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = defaultRate
	}
	if cfg.SWMMax <= 0 {
		cfg.SWMMax = defaultSWMMax
	}
	if cfg.OutDir == "" {
		cfg.OutDir = "structures"
	}
	cfg.UserAgent = secrets.UserAgent(defaultUserAgent, loadedSecrets)

	return cfg
}

func runFetch(cmd *cobra.Command, args []string) error {
	cfg := fetchConfig(cmd)

	input, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("opening input table: %w", err)
	}
	defer input.Close()

	records, err := fetch.ParseTable(input)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.OutDir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	log, err := buildLogger(cmd)
	if err != nil {
		return err
	}
	defer log.Sync()

	var led *ledger.Store
	if noLedger, _ := cmd.Flags().GetBool("no-ledger"); !noLedger {
		led, err = ledger.Open(filepath.Join(cfg.OutDir, ledgerDir))
		if err != nil {
			return err
		}
		defer led.Close()
	}

	runner := fetch.NewRunner(httputil.New(cfg.HTTPConfig), cfg, log, led)
	result, err := runner.Run(cmd.Context(), records)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Batch summary: %d resolved, %d skipped, %d failed (total: %d)\n",
		result.Resolved, result.Skipped, result.Failed, result.Total())
	if result.HasFailures() {
		fmt.Fprintln(cmd.OutOrStdout(), "Some rows could not be resolved; see the log and the run ledger for details.")
	}

	// Row failures are part of normal operation and do not change the
	// exit status.
	return nil
}

// buildLogger returns a console zap logger writing to stderr.
func buildLogger(cmd *cobra.Command) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	zcfg.Encoding = "console"
	zcfg.OutputPaths = []string{"stderr"}
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		zcfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	log, err := zcfg.Build()
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}
	return log, nil
}
