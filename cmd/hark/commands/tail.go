package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dyluth/hark/internal/printer"
)

var tailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Stream emitted messages as they happen",
	Long: `Stream messages emitted by a running pipeline until interrupted.

Delivery is best effort: messages published while tail is not connected are
not replayed. Use "hark history" for stored messages.`,
	Args: cobra.NoArgs,
	RunE: runTail,
}

func init() {
	rootCmd.AddCommand(tailCmd)
}

func runTail(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	client, err := connectStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	sub, err := client.SubscribeMessages(ctx)
	if err != nil {
		return printer.Error("failed to subscribe", err.Error(), nil)
	}
	defer sub.Close()

	printer.Step("tailing messages for instance '%s'\n", cfg.Redis.Instance)
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-sub.Messages():
			if !ok {
				return nil
			}
			printer.Message(msg)
			printer.Println()
		case err, ok := <-sub.Errors():
			if !ok {
				return nil
			}
			printer.Warning("skipping malformed message: %v\n", err)
		}
	}
}
