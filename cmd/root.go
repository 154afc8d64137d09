package cmd

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// NewRootCmd builds the orderimages command tree.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "orderimages",
		Short: "Customer image attachments for shop orders",
		Long: `orderimages lets customers attach images to cart items at checkout,
records them on the order and removes uploads that never made it onto one.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()
		},
	}

	cmd.AddCommand(
		newServeCmd(),
		newInstallCmd(),
		newUninstallCmd(),
		newCleanupCmd(),
		newHashPasswordCmd(),
	)

	return cmd
}
