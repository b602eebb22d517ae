package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/relayloop/capi-dispatch/internal/capi"
	"github.com/relayloop/capi-dispatch/internal/dispatch"
	"github.com/relayloop/capi-dispatch/internal/identity"
	"github.com/relayloop/capi-dispatch/internal/models"
)

var fireCmd = &cobra.Command{
	Use:   "fire",
	Short: "Send one synthetic event (diagnostic)",
	Long: `Send a single synthetic conversion event directly to the Conversions
API, bypassing the eligibility filter and the dedup ledger. For verifying
credentials and downstream wiring only.`,
	Example: `  capi-dispatch fire --e164 "+15550001111" --session-id s1
  capi-dispatch fire --e164 "+15550001111" --session-id s1 --experiment-label A`,
	RunE: func(cmd *cobra.Command, args []string) error {
		e164, _ := cmd.Flags().GetString("e164")
		sessionID, _ := cmd.Flags().GetString("session-id")
		label, _ := cmd.Flags().GetString("experiment-label")
		sourceURL, _ := cmd.Flags().GetString("source-url")

		if e164 == "" || sessionID == "" {
			return fmt.Errorf("--e164 and --session-id are required")
		}
		if strings.TrimSpace(label) == "" {
			label = identity.DefaultLabel
		}

		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}

		sender := capi.New(
			cfg.Meta.GraphURL,
			cfg.Meta.PixelID,
			cfg.Meta.AccessToken,
			cfg.Meta.TestEventCode,
			30*time.Second,
		)

		var customSourceURL any
		if sourceURL != "" {
			customSourceURL = sourceURL
		}

		evt := models.OutboundEvent{
			EventName:      dispatch.EventName,
			EventTime:      time.Now().Unix(),
			EventSourceURL: sourceURL,
			ActionSource:   cfg.Meta.ActionSource,
			EventID:        identity.EventID(sessionID, label),
			UserData:       models.UserData{Phones: []string{identity.Hash(e164)}},
			CustomData: map[string]any{
				"messages_sent":    6,
				"experiment_label": label,
				"source_url":       customSourceURL,
			},
		}

		out, err := sender.Send(cmd.Context(), []models.OutboundEvent{evt})
		if err != nil {
			return fmt.Errorf("failed to send event: %w", err)
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"ok":   true,
			"out":  json.RawMessage(out),
			"sent": []models.OutboundEvent{evt},
		})
	},
}

func init() {
	fireCmd.Flags().String("e164", "", "phone number in E.164 form")
	fireCmd.Flags().String("session-id", "", "session identifier")
	fireCmd.Flags().String("experiment-label", "", "experiment label (default: default)")
	fireCmd.Flags().String("source-url", "", "event source URL")
}
