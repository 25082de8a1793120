package commands

import (
	"github.com/spf13/cobra"

	"github.com/dyluth/hark/internal/printer"
	"github.com/dyluth/hark/internal/scaffold"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init [DIR]",
	Short: "Write a starter hark.yml",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := "."
		if len(args) == 1 {
			dir = args[0]
		}

		path, err := scaffold.Initialize(dir, initForce)
		if err != nil {
			return printer.Error("initialization failed", err.Error(), nil)
		}

		printer.Success("created %s\n", path)
		printer.Println("\nNext steps:")
		printer.Println("  1. Set identity.user_id and, for persistence, redis.url")
		printer.Println("  2. Export HARK_GEMINI_API_KEY and set advisor.enabled to use the language model")
		printer.Println("  3. Run 'hark serve'")
		return nil
	},
}

func init() {
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "Overwrite an existing hark.yml")
	rootCmd.AddCommand(initCmd)
}
