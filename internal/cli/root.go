package cli

import (
	"github.com/spf13/cobra"
)

// NewRootCommand creates the root command for the venue ledger.
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "venue-ledger",
		Short: "Venue ledger API",
		Long: `Venue ledger API: orders, inventory, guest wallets, XP and quests,
and automation rules for a nightlife venue.

Configuration is read from the environment (see internal/config).`,
		SilenceUsage: true,
	}

	cmd.AddCommand(NewServeCommand())
	cmd.AddCommand(NewMigrateCommand())
	cmd.AddCommand(NewSeedCommand())

	return cmd
}
