package cli

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/obsidianstack/alertrelay/relay/internal/config"
	"github.com/obsidianstack/alertrelay/relay/internal/probe"
)

func init() {
	rootCmd.AddCommand(validateCmd)
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check a config file",
	Long:  "Loads the config file, applies the save-time transport rules and parses every probe rule condition.",
	RunE:  runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	for _, p := range cfg.Relay.Probes {
		if _, err := probe.NewEngine(p, http.DefaultClient, nil, nil); err != nil {
			return fmt.Errorf("relay config: %w", err)
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s: OK (%d transports, %d probes)\n",
		configPath, len(cfg.Relay.Transports), len(cfg.Relay.Probes))
	return nil
}
