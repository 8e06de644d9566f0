package cli

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/obsidianstack/alertrelay/relay/internal/apitransport"
)

func init() {
	rootCmd.AddCommand(schemaCmd)
}

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the transport configuration schema as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(apitransport.Schema())
	},
}
