// cmd/report.go
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/relaymesh/gauntlet-cli/internal/report"
)

// reportCmd pretty-prints a report produced by `gauntlet run --report`
var reportCmd = &cobra.Command{
	Use:   "report <file>",
	Short: "Pretty-print a previously saved run report",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		rep, err := report.Load(args[0])
		if err != nil {
			badColor.Fprintf(os.Stderr, "❌ %v\n", err)
			os.Exit(1)
		}

		headerColor.Printf("--- 📊 Run %s ---\n", rep.RunID)
		fmt.Printf("Timestamp: %s\n", rep.Timestamp.Format("2006-01-02 15:04:05 MST"))
		fmt.Printf("Gateway:   %s\n", rep.Config.GatewayURL)
		fmt.Printf("Users:     %d (prefix %q)\n", rep.Config.UserCount, rep.Config.UserPrefix)
		if rep.Passed {
			goodColor.Println("Result:    PASS")
		} else {
			badColor.Println("Result:    FAIL")
		}
		for _, s := range rep.Phases {
			fmt.Println()
			printSummary(s)
		}
	},
}

func init() {
	rootCmd.AddCommand(reportCmd)
}
