package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dyluth/hark/internal/filter"
	"github.com/dyluth/hark/internal/history"
	"github.com/dyluth/hark/internal/printer"
	"github.com/dyluth/hark/internal/resolver"
	"github.com/dyluth/hark/internal/timespec"
	"github.com/dyluth/hark/pkg/blackboard"
)

var (
	historyOutputFormat string
	historySince        string
	historyUntil        string
	historyTopic        string
	historyChannel      string
	historyLimit        int
)

var historyCmd = &cobra.Command{
	Use:   "history [MESSAGE_ID]",
	Short: "Inspect emitted messages",
	Long: `Inspect the stored history of emitted messages in list or get mode.

List Mode (no MESSAGE_ID):
  Displays messages matching filters as a table or JSONL stream.

Get Mode (with MESSAGE_ID):
  Displays one message as pretty-printed JSON.
  Supports short IDs (e.g., "1b4e2f" instead of the full UUID).

Examples:
  # Messages from the last two hours on margin topics
  hark history --since=2h --topic="margem_*"

  # Admin channel as JSONL for jq
  hark history --channel=ADMIN --output=jsonl | jq .title

  # One message by short ID
  hark history 1b4e2f`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().StringVarP(&historyOutputFormat, "output", "o", "default", "Output format (default or jsonl)")
	historyCmd.Flags().StringVar(&historySince, "since", "", "Only messages after this time (duration like 1h or RFC3339)")
	historyCmd.Flags().StringVar(&historyUntil, "until", "", "Only messages before this time (duration like 1h or RFC3339)")
	historyCmd.Flags().StringVar(&historyTopic, "topic", "", "Topic glob pattern")
	historyCmd.Flags().StringVar(&historyChannel, "channel", "", "USER or ADMIN")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 0, "Read at most this many stored messages (0 for all)")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	format := history.OutputFormat(historyOutputFormat)
	if format != history.OutputFormatDefault && format != history.OutputFormatJSONL {
		return printer.Error(
			"invalid output format",
			fmt.Sprintf("Unknown format: %s", historyOutputFormat),
			[]string{"Valid formats: default, jsonl"},
		)
	}

	since, until, err := timespec.ParseRange(historySince, historyUntil, time.Now())
	if err != nil {
		return printer.Error("invalid time range", err.Error(), nil)
	}

	criteria := &filter.Criteria{Since: since, Until: until, TopicGlob: historyTopic}
	if historyChannel != "" {
		ch := blackboard.Channel(historyChannel)
		if err := ch.Validate(); err != nil {
			return printer.Error("invalid channel", err.Error(), []string{"Valid channels: USER, ADMIN"})
		}
		criteria.Channel = ch
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	client, err := connectStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	if len(args) == 1 {
		_, err := history.Get(ctx, client, cfg.Identity.UserID, args[0], os.Stdout)
		var amb *resolver.AmbiguousError
		switch {
		case err == nil:
			return nil
		case resolver.IsNotFoundError(err):
			return printer.Error("message not found", err.Error(), []string{"List recent messages:\n  hark history"})
		case errors.As(err, &amb):
			return printer.Error("ambiguous message ID", resolver.FormatAmbiguousError(amb), nil)
		default:
			return printer.Error("failed to read message", err.Error(), nil)
		}
	}

	return history.List(ctx, client, cfg.Identity.UserID, historyLimit, format, criteria, os.Stdout, time.Now())
}
