package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dyluth/hark/internal/filter"
	"github.com/dyluth/hark/internal/printer"
	"github.com/dyluth/hark/internal/watch"
	"github.com/dyluth/hark/pkg/blackboard"
)

var (
	sendSource   string
	sendPayload  string
	sendPriority int
	sendWait     time.Duration
)

var sendCmd = &cobra.Command{
	Use:   "send EVENT_TYPE",
	Short: "Publish an event to a running pipeline",
	Long: `Publish a raw event on the instance's ingress channel.

With --wait, the command polls the stored history until a message created
after the send appears, and prints it. Most events are silenced by design, so
a timeout is not an error.

Examples:
  # Report a finished margin calculation
  hark send calc:completed --source calculator --payload '{"margemLucro": 3}'

  # Send a critical alert and wait for the resulting message
  hark send alert:stock --priority 9 --payload '{"message": "Estoque zerado"}' --wait 5s`,
	Args: cobra.ExactArgs(1),
	RunE: runSend,
}

func init() {
	sendCmd.Flags().StringVar(&sendSource, "source", "cli", "Producing component")
	sendCmd.Flags().StringVar(&sendPayload, "payload", "", "JSON object payload")
	sendCmd.Flags().IntVar(&sendPriority, "priority", -1, "Explicit priority 0-10 (omit to derive)")
	sendCmd.Flags().DurationVar(&sendWait, "wait", 0, "Wait this long for a resulting message")
	rootCmd.AddCommand(sendCmd)
}

func runSend(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	ev := blackboard.RawEvent{
		Type:      args[0],
		Source:    sendSource,
		Timestamp: time.Now().UTC(),
	}
	if sendPayload != "" {
		if err := json.Unmarshal([]byte(sendPayload), &ev.Payload); err != nil {
			return printer.Error("invalid payload", fmt.Sprintf("--payload must be a JSON object: %v", err), nil)
		}
	}
	if sendPriority >= 0 {
		p := sendPriority
		ev.Priority = &p
	}
	if err := ev.Validate(); err != nil {
		return printer.Error("invalid event", err.Error(), nil)
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

	if err := client.PublishEvent(ctx, ev); err != nil {
		return printer.Error("failed to publish event", err.Error(), nil)
	}
	printer.Success("sent %s\n", ev.Type)

	if sendWait <= 0 {
		return nil
	}

	printer.Step("waiting up to %s for a message\n", sendWait)
	msg, err := watch.ForMessage(ctx, client, cfg.Identity.UserID, filter.Criteria{Since: ev.Timestamp}, sendWait)
	if err != nil {
		printer.Warning("no message emitted: %v\n", err)
		return nil
	}
	printer.Message(msg)
	return nil
}
