package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/relayloop/capi-dispatch/internal/capi"
	"github.com/relayloop/capi-dispatch/internal/config"
	"github.com/relayloop/capi-dispatch/internal/dispatch"
	"github.com/relayloop/capi-dispatch/internal/eligibility"
	"github.com/relayloop/capi-dispatch/internal/ledger"
	"github.com/relayloop/capi-dispatch/internal/logging"
	"github.com/relayloop/capi-dispatch/internal/metabase"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "capi-dispatch",
	Short: "Idempotent conversion event dispatcher",
	Long: `capi-dispatch reads candidate conversion events from a Metabase saved
question, filters and deduplicates them against a Redis ledger, and delivers
them as one batch to the Meta Conversions API.

Triggering is external: run the HTTP service with "serve" and point a cron
at /api/v1/dispatch, or execute a single pass with "run".`,
	Version: "0.1.0",
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to config file")
	rootCmd.AddCommand(serveCmd, runCmd, fireCmd, configCmd)
}

// loadConfig loads and validates configuration, then installs the logger.
func loadConfig() (*config.Config, *logging.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, err
	}

	log := logging.New(
		logging.ParseLevel(cfg.Logging.Level),
		cfg.Logging.Format,
	).With(logging.Service("capi-dispatch"))
	logging.SetDefault(log)

	return cfg, log, nil
}

// pipeline bundles the wired collaborators. Close releases the ledger
// connection.
type pipeline struct {
	dispatcher *dispatch.Dispatcher
	source     *metabase.Client
	sender     *capi.Client
	ledger     *ledger.RedisLedger
}

func (p *pipeline) Close() error {
	return p.ledger.Close()
}

func buildPipeline(cfg *config.Config, log *logging.Logger) (*pipeline, error) {
	led, err := ledger.Open(cfg.Redis.URL, cfg.Dispatch.LedgerTTL)
	if err != nil {
		return nil, err
	}

	source := metabase.New(metabase.Config{
		SiteURL:      cfg.Metabase.SiteURL,
		Token:        cfg.Metabase.EffectiveToken(),
		QuestionID:   cfg.Metabase.QuestionID,
		DateStart:    cfg.Metabase.DateStart,
		DateEnd:      cfg.Metabase.DateEnd,
		BotID:        cfg.Metabase.BotID,
		DateStartTag: cfg.Metabase.DateStartTag,
		DateEndTag:   cfg.Metabase.DateEndTag,
		BotIDTag:     cfg.Metabase.BotIDTag,
	}, 30*time.Second)

	sender := capi.New(
		cfg.Meta.GraphURL,
		cfg.Meta.PixelID,
		cfg.Meta.AccessToken,
		cfg.Meta.TestEventCode,
		30*time.Second,
	)

	dispatcher := dispatch.New(source, sender, led, dispatch.Config{
		Exclusions:   eligibility.ParseExclusions(cfg.Dispatch.TestNumbers),
		ActionSource: cfg.Meta.ActionSource,
		Logger:       log,
	})

	return &pipeline{
		dispatcher: dispatcher,
		source:     source,
		sender:     sender,
		ledger:     led,
	}, nil
}
