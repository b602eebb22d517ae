package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute one dispatch pass and exit",
	Long: `Run the pipeline once: fetch rows, filter, dedup, deliver, commit.
Exits non-zero when the run fails, suitable for direct cron invocation.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}

		p, err := buildPipeline(cfg, log)
		if err != nil {
			return fmt.Errorf("failed to initialize pipeline: %w", err)
		}
		defer p.Close()

		res, err := p.dispatcher.Run(cmd.Context())
		if err != nil {
			return err
		}

		out := map[string]any{
			"status":    "ok",
			"processed": res.Processed,
		}
		if len(res.Meta) > 0 {
			out["meta"] = json.RawMessage(res.Meta)
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}
