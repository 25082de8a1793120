package commands

import (
	"context"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/dyluth/hark/internal/admin"
	"github.com/dyluth/hark/internal/printer"
	"github.com/dyluth/hark/pkg/blackboard"
)

var (
	feedbackOutcome string
	feedbackTopic   string

	silenceFor    time.Duration
	silenceReason string
	silenceClear  bool
)

var feedbackCmd = &cobra.Command{
	Use:   "feedback SEMANTIC_HASH",
	Short: "Record the viewer's reaction to an emitted message",
	Long: `Record whether an emitted message was accepted, dismissed or ignored.

Dismissing a message blocks its topic for the configured cooldown; every
outcome feeds the learned preferences.

Examples:
  hark feedback 9f2c1a0b3d4e5f60 --outcome dismissed
  hark feedback 9f2c1a0b3d4e5f60 --outcome accepted --topic margem_baixa`,
	Args: cobra.ExactArgs(1),
	RunE: runFeedback,
}

var silenceCmd = &cobra.Command{
	Use:   "silence",
	Short: "Open or clear a global silence window",
	Long: `Open a silence window during which only critical messages are emitted.

Examples:
  hark silence --for 30m --reason "client meeting"
  hark silence --clear`,
	Args: cobra.NoArgs,
	RunE: runSilence,
}

func init() {
	feedbackCmd.Flags().StringVar(&feedbackOutcome, "outcome", "", "accepted, dismissed or ignored")
	feedbackCmd.Flags().StringVar(&feedbackTopic, "topic", "", "Topic, when the message is no longer in memory")
	feedbackCmd.MarkFlagRequired("outcome")
	rootCmd.AddCommand(feedbackCmd)

	silenceCmd.Flags().DurationVar(&silenceFor, "for", 0, "Silence duration")
	silenceCmd.Flags().StringVar(&silenceReason, "reason", "", "Why output is silenced")
	silenceCmd.Flags().BoolVar(&silenceClear, "clear", false, "End the current silence window")
	rootCmd.AddCommand(silenceCmd)
}

func runFeedback(cmd *cobra.Command, args []string) error {
	outcome := blackboard.Outcome(feedbackOutcome)
	if err := outcome.Validate(); err != nil {
		return printer.Error("invalid outcome", err.Error(), []string{"Valid outcomes: accepted, dismissed, ignored"})
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	req := admin.FeedbackRequest{SemanticHash: args[0], Topic: feedbackTopic, Outcome: outcome}
	if err := newAdminClient(cfg).do(context.Background(), http.MethodPost, "/feedback", req, nil); err != nil {
		return printer.Error("failed to record feedback", err.Error(), nil)
	}
	printer.Success("recorded %s for %s\n", outcome, args[0])
	return nil
}

func runSilence(cmd *cobra.Command, args []string) error {
	if silenceClear == (silenceFor > 0) {
		return printer.Error("invalid flags", "Pass exactly one of --for or --clear.", nil)
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	client := newAdminClient(cfg)
	ctx := context.Background()

	if silenceClear {
		if err := client.do(ctx, http.MethodDelete, "/silence", nil, nil); err != nil {
			return printer.Error("failed to clear silence", err.Error(), nil)
		}
		printer.Success("silence cleared\n")
		return nil
	}

	req := admin.SilenceRequest{DurationMS: silenceFor.Milliseconds(), Reason: silenceReason}
	var resp admin.SilenceResponse
	if err := client.do(ctx, http.MethodPost, "/silence", req, &resp); err != nil {
		return printer.Error("failed to request silence", err.Error(), nil)
	}
	printer.Success("silenced until %s\n", resp.Until.Local().Format(time.Kitchen))
	return nil
}
