// cmd/probe.go
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/relaymesh/gauntlet-cli/internal/gateway"
	"github.com/relaymesh/gauntlet-cli/internal/preflight"
)

// probeCmd checks the gateway without sending any load
var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Check that the gateway is reachable and show host vitals",
	Long: `Performs the same reachability probe a run starts with, plus a snapshot of
the load-generating host's own CPU and memory. Exits 1 if the gateway does
not answer.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			fmt.Fprintf(os.Stderr, "❌ Error: %v\n", err)
			os.Exit(1)
		}

		headerColor.Println("--- 🔎 Gateway Probe ---")
		fmt.Printf("Gateway: %s\n", cfg.GatewayURL)

		client := gateway.NewClient(cfg.GatewayURL, cfg.RequestTimeout)
		if err := preflight.CheckGateway(context.Background(), client); err != nil {
			badColor.Fprintf(os.Stderr, "❌ %v\n", err)
			os.Exit(1)
		}
		goodColor.Println("✅ Gateway is reachable.")

		headerColor.Println("\n--- 💻 Host Vitals ---")
		preflight.CollectVitals().Print(os.Stdout)
	},
}

func init() {
	rootCmd.AddCommand(probeCmd)
}
