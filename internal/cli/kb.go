package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/triage/internal/model"
	"github.com/ppiankov/triage/internal/validate"
)

var (
	checkLinks  bool
	checkStrict bool
)

var kbCmd = &cobra.Command{
	Use:   "kb",
	Short: "Inspect the knowledge base",
}

// kbCheckCmd loads the knowledge base the same way serve does and reports what it found
var kbCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Load the knowledge base and report missing or malformed resources",
	Long: `Check loads the red flags, the clinical protocol, the clinical reference
documents and the facility directory, and prints what was loaded and every
resource that was missing, malformed or skipped.

With --links, the monitoring link of every facility is checked as well.

Example:
  triage kb check
  triage kb check --kb-dir ./knowledge_base --links --strict`,
	Args: cobra.NoArgs,
	RunE: runKBCheck,
}

func init() {
	rootCmd.AddCommand(kbCmd)
	kbCmd.AddCommand(kbCheckCmd)

	kbCheckCmd.Flags().BoolVar(&checkLinks, "links", false, "check facility monitoring links")
	kbCheckCmd.Flags().BoolVar(&checkStrict, "strict", false, "exit with an error when any resource is degraded")
}

func runKBCheck(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	cfg, logger, knowledge, report, err := setup(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	out := cmd.OutOrStdout()
	fmt.Fprint(out, report.String())
	if len(report.Cities) > 0 {
		fmt.Fprintf(out, "cities:     %s\n", strings.Join(report.Cities, ", "))
	}

	degraded := !report.OK()
	if checkLinks {
		results := validate.NewLinkChecker(cfg.Links, logger).Check(ctx, knowledge.Facilities)
		printLinkResults(cmd, results)
		for _, r := range results {
			if !r.IsAccessible {
				degraded = true
			}
		}
	}

	if checkStrict && degraded {
		return fmt.Errorf("knowledge base check failed")
	}
	return nil
}

func printLinkResults(cmd *cobra.Command, results []model.LinkResult) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\nmonitoring links: %d\n", len(results))
	for _, r := range results {
		mark := "✓"
		detail := fmt.Sprintf("%d", r.StatusCode)
		switch {
		case r.Disallowed:
			mark, detail = "-", "disallowed by robots.txt"
		case !r.IsAccessible && r.Error != "":
			mark, detail = "✗", r.Error
		case !r.IsAccessible:
			mark = "✗"
		}
		fmt.Fprintf(out, "  %s %s (%s) [%s] %s\n", mark, r.Facility, r.City, r.Tier, detail)
		if r.RedirectURL != "" {
			fmt.Fprintf(out, "      -> %s\n", r.RedirectURL)
		}
		if r.IsStale {
			fmt.Fprintf(out, "      stale since %s\n", r.LastModified.Format("2006-01-02"))
		}
	}
}
