// cmd/run.go
package cmd

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/relaymesh/gauntlet-cli/internal/auth"
	"github.com/relaymesh/gauntlet-cli/internal/cleanup"
	"github.com/relaymesh/gauntlet-cli/internal/config"
	"github.com/relaymesh/gauntlet-cli/internal/credential"
	"github.com/relaymesh/gauntlet-cli/internal/executor"
	"github.com/relaymesh/gauntlet-cli/internal/gateway"
	"github.com/relaymesh/gauntlet-cli/internal/metrics"
	"github.com/relaymesh/gauntlet-cli/internal/phase"
	"github.com/relaymesh/gauntlet-cli/internal/preflight"
	"github.com/relaymesh/gauntlet-cli/internal/provision"
	"github.com/relaymesh/gauntlet-cli/internal/report"
)

// failureRatioLimit is the pass/fail line: any phase losing more than this
// share of its requests fails the whole run.
const failureRatioLimit = 0.20

var (
	runUserCount  int
	runUserPrefix string
	runRest       float64
	runBurstCount int
	runBurstWidth int
	runBatchSize  int
	runReportPath string
	runSeed       int64
	runSkipCreate bool
	runDeactivate bool
)

// runCmd executes a full stability run against the gateway
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full stability suite against the gateway",
	Long: `Runs the complete stability scenario:

  1. Probe the gateway; abort immediately if it is unreachable.
  2. Pre-clean stale on-disk artifacts left by earlier runs (same prefix).
  3. Provision N test accounts (create, then activate - two idempotent phases).
  4. Log every account in concurrently.
  5. Round 1: one staggered, ramped request per account.
  6. Rest, then Round 2.
  7. Burst: a fixed number of requests at maximal concurrency from random identities.
  8. Print per-phase statistics, optionally write a JSON report.
  9. Deactivate accounts and purge artifacts, best effort.

Exit code 0 means every phase kept its failure ratio at or below 20%;
1 means the gateway was unreachable, no account could log in, or a phase
exceeded the threshold.`,
	Example: `  # Default run against a local gateway
  gauntlet run

  # Small smoke run with a report
  gauntlet run --users 5 --burst-requests 50 --report run.json

  # Reuse accounts provisioned by a previous run
  gauntlet run --skip-create`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			fmt.Fprintf(os.Stderr, "❌ Error: %v\n", err)
			os.Exit(1)
		}
		applyRunFlags(cmd, &cfg)
		os.Exit(runStability(cfg))
	},
}

// applyRunFlags folds explicitly-set command flags over the config.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("users") {
		cfg.UserCount = runUserCount
	}
	if cmd.Flags().Changed("prefix") {
		cfg.UserPrefix = runUserPrefix
	}
	if cmd.Flags().Changed("rest") {
		cfg.RestInterval = time.Duration(runRest * float64(time.Second))
	}
	if cmd.Flags().Changed("burst-requests") {
		cfg.BurstRequests = runBurstCount
	}
	if cmd.Flags().Changed("burst-concurrency") {
		cfg.BurstConcurrency = runBurstWidth
	}
	if cmd.Flags().Changed("batch-size") {
		cfg.RampBatchSize = runBatchSize
	}
	if cmd.Flags().Changed("report") {
		cfg.ReportPath = runReportPath
	}
	if cmd.Flags().Changed("seed") {
		cfg.RandomSeed = runSeed
	}
	if cmd.Flags().Changed("skip-create") {
		cfg.CreateUsers = !runSkipCreate
	}
	if cmd.Flags().Changed("deactivate") {
		cfg.CleanupUsers = runDeactivate
	}
}

// runStability executes the whole scenario and returns the process exit code.
// Teardown runs on every exit path and swallows its own errors, so a failed
// run still reports why it failed rather than how cleanup went.
func runStability(cfg config.Config) int {
	ctx := context.Background()

	printSection("Gateway Stability Run")
	fmt.Printf("Gateway:        %s\n", cfg.GatewayURL)
	fmt.Printf("Users:          %d (prefix %q)\n", cfg.UserCount, cfg.UserPrefix)
	fmt.Printf("Rest interval:  %s\n", cfg.RestInterval)
	fmt.Printf("Burst:          %d requests, concurrency %d\n", cfg.BurstRequests, cfg.BurstConcurrency)
	fmt.Printf("Create users:   %v, deactivate after: %v\n", cfg.CreateUsers, cfg.CleanupUsers)
	fmt.Printf("Random seed:    %d\n", cfg.RandomSeed)
	preflight.CollectVitals().Print(os.Stdout)
	fmt.Println()

	client := gateway.NewClient(cfg.GatewayURL, cfg.RequestTimeout)

	// 1. Reachability probe - the only fatal error of the run.
	if err := preflight.CheckGateway(ctx, client); err != nil {
		badColor.Fprintf(os.Stderr, "❌ %v\n", err)
		fmt.Fprintln(os.Stderr, "   Start the gateway first, or point --gateway at it.")
		return 1
	}
	goodColor.Printf("✅ Gateway is reachable.\n")

	purger := cleanup.NewPurger(cfg.DataDir, cfg.LogsDir, cfg.UserPrefix)

	// 2. Pre-clean leftovers from interrupted earlier runs.
	if cfg.PreClean {
		stats := purger.PurgeByPrefix()
		Debug("pre-clean removed: users=%d quotas=%d logdirs=%d", stats.UserFiles, stats.QuotaFiles, stats.LogDirs)
	}

	// 3. Provision accounts.
	usernames := provision.Usernames(cfg.UserPrefix, cfg.UserCount)
	var created []string
	if cfg.CreateUsers {
		fmt.Printf("Provisioning %d accounts (create=%d, activate=%d workers) ...\n",
			cfg.UserCount, cfg.CreateWorkers, cfg.ActivateWorkers)
		prov := provision.New(client, cfg.UserPassword, cfg.QuotaTier, cfg.CreateWorkers, cfg.ActivateWorkers)
		res := prov.Provision(ctx, usernames)
		created = res.Created
		fmt.Printf("Provisioned: usable=%d/%d (new=%d)\n", res.Usable, cfg.UserCount, len(res.Created))
	} else {
		fmt.Println("Skipping account creation; assuming prefix-matching accounts exist and are active.")
	}

	// Teardown is registered before any traffic flows so that every exit
	// path below, pass or fail, runs it.
	defer func() {
		if cfg.CleanupUsers {
			n := cleanup.DeactivateAll(ctx, client, usernames)
			fmt.Printf("Deactivated %d/%d accounts.\n", n, len(usernames))
		}
		if cfg.PhysicalClean {
			stats := purger.PurgeUsers(usernames, created)
			Debug("post-clean removed: users=%d quotas=%d logdirs=%d", stats.UserFiles, stats.QuotaFiles, stats.LogDirs)
		}
	}()

	// 4. Log everyone in.
	store := credential.NewStore()
	tokens := auth.NewManager(client, store, cfg.UserPassword, cfg.RefreshGrace)
	fmt.Printf("Logging in %d accounts ...\n", len(usernames))
	loggedIn := tokens.LoginAll(ctx, usernames)
	if loggedIn == 0 {
		badColor.Fprintln(os.Stderr, "❌ No account could log in; aborting.")
		return 1
	}
	if loggedIn < len(usernames) {
		warnColor.Printf("⚠ Only %d/%d accounts logged in; continuing with those.\n", loggedIn, len(usernames))
	} else {
		goodColor.Printf("✅ All %d accounts logged in.\n", loggedIn)
	}

	exec := executor.New(client, tokens, cfg.Model, cfg.RetryRateLimit, cfg.MaxRateLimitTry)
	rounds := phase.NewRunner(exec, tokens, cfg.Prompt)

	// 5-7. Round 1, rest, Round 2.
	printSection("Round 1")
	m1 := rounds.Round(ctx, "round1", usernames, cfg.RampBatchSize, cfg.RampInterval)
	s1 := metrics.Summarize(m1)
	printSummary(s1)

	fmt.Printf("\nResting %s before round 2 ...\n", cfg.RestInterval)
	time.Sleep(cfg.RestInterval)

	printSection("Round 2")
	m2 := rounds.Round(ctx, "round2", usernames, cfg.RampBatchSize, cfg.RampInterval)
	s2 := metrics.Summarize(m2)
	printSummary(s2)

	// 8. Burst.
	printSection("Burst")
	burst := phase.NewBurst(exec, tokens, cfg.Prompt, cfg.RandomSeed, cfg.BurstRPS)
	mb := burst.Run(ctx, cfg.BurstRequests, cfg.BurstConcurrency)
	sb := metrics.Summarize(mb)
	if sb.Total == 0 {
		warnColor.Println("⚠ Burst skipped: no usable credentials.")
	}
	printSummary(sb)

	// 9-10. Aggregate, report, judge.
	printSection("Summary")
	summaries := []metrics.Summary{s1, s2, sb}
	var failedPhases []string
	for _, s := range summaries {
		printSummary(s)
		if s.Total > 0 && s.FailureRatio() > failureRatioLimit {
			failedPhases = append(failedPhases, s.Phase)
		}
	}

	passed := len(failedPhases) == 0
	if cfg.ReportPath != "" {
		rep := report.New(cfg, summaries, passed)
		if err := rep.Write(cfg.ReportPath); err != nil {
			warnColor.Printf("⚠ Could not write report: %v\n", err)
		} else {
			fmt.Printf("\nReport written: %s (run %s)\n", cfg.ReportPath, rep.RunID)
		}
	}

	if !passed {
		badColor.Printf("\n⚠ Run finished, but these phases exceeded the %.0f%% failure threshold: %s\n",
			failureRatioLimit*100, strings.Join(failedPhases, ", "))
		return 1
	}
	goodColor.Println("\n🎉 Run finished; all phases within the failure threshold.")
	return 0
}

func printSection(title string) {
	fmt.Println()
	headerColor.Printf("%s\n", strings.Repeat("=", 70))
	headerColor.Printf("  %s\n", title)
	headerColor.Printf("%s\n", strings.Repeat("=", 70))
}

// printSummary renders one phase's statistics as a compact table.
func printSummary(s metrics.Summary) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintf(w, "%s\t\n", labelColor.Sprintf("Phase: %s", s.Phase))
	fmt.Fprintf(w, "  Requests:\t%d total, %d ok, %d failed (%.2f%% success)\n",
		s.Total, s.Successes, s.Failures, s.SuccessRate)
	fmt.Fprintf(w, "  Latency (ms):\tmin=%.1f max=%.1f avg=%.1f median=%.1f p95=%.1f p99=%.1f\n",
		ms(s.LatencyMin), ms(s.LatencyMax), ms(s.LatencyAvg), ms(s.LatencyMedian), ms(s.LatencyP95), ms(s.LatencyP99))
	if s.Failures > 0 {
		fmt.Fprintf(w, "  Fail latency (ms):\tavg=%.1f p95=%.1f\n", ms(s.FailLatencyAvg), ms(s.FailLatencyP95))
	}
	if s.Wall > 0 {
		fmt.Fprintf(w, "  Wall clock:\t%.2fs (%.2f ok/s)\n", s.Wall.Seconds(), s.TPS)
	}
	if len(s.Errors) == 0 {
		fmt.Fprintf(w, "  Errors:\tnone\n")
		return
	}
	fmt.Fprintf(w, "  Errors:\t\n")
	tags := make([]string, 0, len(s.Errors))
	for tag := range s.Errors {
		tags = append(tags, tag)
	}
	// Most frequent first, name as tiebreaker, so output is stable.
	sort.Slice(tags, func(i, j int) bool {
		if s.Errors[tags[i]] != s.Errors[tags[j]] {
			return s.Errors[tags[i]] > s.Errors[tags[j]]
		}
		return tags[i] < tags[j]
	})
	for _, tag := range tags {
		fmt.Fprintf(w, "    - %s:\t%d\n", tag, s.Errors[tag])
	}
	for _, cat := range []metrics.Category{
		metrics.CategoryAuth, metrics.CategoryRateLimit, metrics.CategoryUpstream,
		metrics.CategoryTimeout, metrics.CategoryOther,
	} {
		if count := s.Categories[cat]; count > 0 {
			fmt.Fprintf(w, "    [%s]\t%d\n", cat, count)
		}
	}
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func init() {
	runCmd.Flags().IntVar(&runUserCount, "users", 100, "number of test accounts")
	runCmd.Flags().StringVar(&runUserPrefix, "prefix", "st_user", "username prefix")
	runCmd.Flags().Float64Var(&runRest, "rest", 60, "seconds to rest between rounds")
	runCmd.Flags().IntVar(&runBurstCount, "burst-requests", 500, "burst request count")
	runCmd.Flags().IntVar(&runBurstWidth, "burst-concurrency", 50, "burst pool width")
	runCmd.Flags().IntVar(&runBatchSize, "batch-size", 25, "ramp batch size per round")
	runCmd.Flags().StringVar(&runReportPath, "report", "", "write a JSON report to this path")
	runCmd.Flags().Int64Var(&runSeed, "seed", 0, "random seed for burst identity selection")
	runCmd.Flags().BoolVar(&runSkipCreate, "skip-create", false, "assume accounts already exist")
	runCmd.Flags().BoolVar(&runDeactivate, "deactivate", false, "deactivate accounts after the run")
	rootCmd.AddCommand(runCmd)
}
