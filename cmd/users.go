// cmd/users.go
package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/relaymesh/gauntlet-cli/internal/cleanup"
	"github.com/relaymesh/gauntlet-cli/internal/gateway"
	"github.com/relaymesh/gauntlet-cli/internal/provision"
)

var (
	usersCount  int
	usersPrefix string
)

// usersCmd groups the standalone admin helpers. They run the same
// provisioning and teardown code paths a full run uses, without any traffic.
var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage test accounts on the gateway without running load",
}

var usersCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Provision and activate test accounts",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			fmt.Fprintf(os.Stderr, "❌ Error: %v\n", err)
			os.Exit(1)
		}
		if cmd.Flags().Changed("count") {
			cfg.UserCount = usersCount
		}
		if cmd.Flags().Changed("prefix") {
			cfg.UserPrefix = usersPrefix
		}

		client := gateway.NewClient(cfg.GatewayURL, cfg.RequestTimeout)
		prov := provision.New(client, cfg.UserPassword, cfg.QuotaTier, cfg.CreateWorkers, cfg.ActivateWorkers)
		usernames := provision.Usernames(cfg.UserPrefix, cfg.UserCount)

		fmt.Printf("Provisioning %d accounts with prefix %q ...\n", cfg.UserCount, cfg.UserPrefix)
		res := prov.Provision(context.Background(), usernames)
		if res.Usable < cfg.UserCount {
			warnColor.Printf("⚠ Provisioned %d/%d (new=%d); the rest failed.\n", res.Usable, cfg.UserCount, len(res.Created))
			os.Exit(1)
		}
		goodColor.Printf("✅ Provisioned %d/%d (new=%d).\n", res.Usable, cfg.UserCount, len(res.Created))
	},
}

var usersDeactivateCmd = &cobra.Command{
	Use:   "deactivate",
	Short: "Deactivate test accounts (best effort)",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			fmt.Fprintf(os.Stderr, "❌ Error: %v\n", err)
			os.Exit(1)
		}
		if cmd.Flags().Changed("count") {
			cfg.UserCount = usersCount
		}
		if cmd.Flags().Changed("prefix") {
			cfg.UserPrefix = usersPrefix
		}

		client := gateway.NewClient(cfg.GatewayURL, cfg.RequestTimeout)
		usernames := provision.Usernames(cfg.UserPrefix, cfg.UserCount)
		n := cleanup.DeactivateAll(context.Background(), client, usernames)
		fmt.Printf("Deactivated %d/%d accounts.\n", n, len(usernames))
	},
}

var usersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the accounts the gateway knows about",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			fmt.Fprintf(os.Stderr, "❌ Error: %v\n", err)
			os.Exit(1)
		}

		client := gateway.NewClient(cfg.GatewayURL, cfg.RequestTimeout)
		users, err := client.ListUsers(context.Background())
		if err != nil {
			badColor.Fprintf(os.Stderr, "❌ %v\n", err)
			os.Exit(1)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		defer w.Flush()
		fmt.Fprintf(w, "%s\t%s\t%s\n", labelColor.Sprint("USERNAME"), labelColor.Sprint("TIER"), labelColor.Sprint("ACTIVE"))
		for _, u := range users {
			active := "no"
			if u.IsActive {
				active = "yes"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", u.Username, u.QuotaTier, active)
		}
	},
}

func init() {
	usersCreateCmd.Flags().IntVar(&usersCount, "count", 100, "number of accounts")
	usersCreateCmd.Flags().StringVar(&usersPrefix, "prefix", "st_user", "username prefix")
	usersDeactivateCmd.Flags().IntVar(&usersCount, "count", 100, "number of accounts")
	usersDeactivateCmd.Flags().StringVar(&usersPrefix, "prefix", "st_user", "username prefix")
	usersCmd.AddCommand(usersCreateCmd)
	usersCmd.AddCommand(usersDeactivateCmd)
	usersCmd.AddCommand(usersListCmd)
	rootCmd.AddCommand(usersCmd)
}
