package commands

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/dyluth/hark/internal/core"
	"github.com/dyluth/hark/internal/printer"
)

var statsJSON bool

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show decision, output and learning counters of a running pipeline",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func init() {
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "Print the raw JSON document")
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	var stats core.Stats
	if err := newAdminClient(cfg).do(context.Background(), http.MethodGet, "/stats", nil, &stats); err != nil {
		return printer.Error("failed to read stats", err.Error(), []string{"Is the pipeline running?\n  hark serve"})
	}

	if statsJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	}
	printStats(os.Stdout, stats)
	return nil
}

func printStats(w io.Writer, s core.Stats) {
	prev := printer.Out
	printer.Out = w
	defer func() { printer.Out = prev }()

	if s.Health.Score >= 0.8 {
		printer.Success("health %.2f\n", s.Health.Score)
	} else {
		printer.Warning("health %.2f\n", s.Health.Score)
	}
	for _, e := range s.Health.RecentErrors {
		printer.Printf("  %s %s: %s\n", e.At.Format("15:04:05"), e.Component, e.Message)
	}

	printer.Printf("\nqueue %d, scheduled %d\n", s.QueueDepth, s.Scheduled)
	if s.Persistence != nil {
		printer.Printf("persistence pending %d, dropped %d\n", s.Persistence.Pending, s.Persistence.Dropped)
	}

	printer.Printf("\nDecisions\n")
	for _, k := range sortedKeys(s.Decisions) {
		printer.Printf("  %-10s %d\n", k, s.Decisions[k])
	}
	printer.Printf("\nEmitted\n")
	for _, k := range sortedKeys(s.Output.Emitted) {
		printer.Printf("  %-10s %d\n", k, s.Output.Emitted[k])
	}
	printer.Printf("\nSilenced\n")
	for _, k := range sortedKeys(s.Output.Silenced) {
		printer.Printf("  %-18s %d\n", k, s.Output.Silenced[k])
	}
	if len(s.Rejections) > 0 {
		printer.Printf("\nRejected\n")
		for _, k := range sortedKeys(s.Rejections) {
			printer.Printf("  %-18s %d\n", k, s.Rejections[k])
		}
	}

	printer.Printf("\nFeedback: %d accepted, %d dismissed, %d ignored\n",
		s.Session.Accepted, s.Session.Dismissed, s.Session.Ignored)
	if s.Preferences.FrequencyKnown {
		printer.Printf("Learned ideal frequency: %d/hour\n", s.Preferences.IdealFrequency)
	}
	for _, p := range s.Preferences.TopicPatterns {
		printer.Printf("  %-24s %3.0f%% of %d (%s)\n", p.Key, p.AcceptanceRate*100, p.SampleSize, p.Trend)
	}
}

func sortedKeys[K ~string, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
