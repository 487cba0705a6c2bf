package cli

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/triage/internal/pipeline"
	"github.com/ppiankov/triage/internal/worker"
)

var (
	concurrency   int
	replayTimeout time.Duration
)

// replayCmd represents the replay command
var replayCmd = &cobra.Command{
	Use:   "replay <file>",
	Short: "Replay scripted conversations and check the outcomes",
	Long: `Replay runs scripted conversations from a YAML file through the full
pipeline, each in its own session, and checks the final response of each
script against its expectations.

Example script file:

  scripts:
    - name: chest-pain
      turns:
        - message: "ho un forte dolore al petto"
      expect:
        emergency: true

Example:
  triage replay scripts.yaml
  triage replay scripts.yaml --concurrency 4 --timeout 5m`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)

	replayCmd.Flags().IntVar(&concurrency, "concurrency", runtime.NumCPU(), "number of concurrent scripts")
	replayCmd.Flags().DurationVar(&replayTimeout, "timeout", 10*time.Minute, "total timeout for the replay")
}

func runReplay(cmd *cobra.Command, args []string) error {
	scripts, err := worker.LoadScripts(args[0])
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), replayTimeout)
	defer cancel()

	cfg, logger, knowledge, _, err := setup(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	p, err := pipeline.NewPipeline(cfg, knowledge, logger)
	if err != nil {
		return fmt.Errorf("build pipeline: %w", err)
	}

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  Triage Replay\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Script file:  %s\n", args[0])
	fmt.Fprintf(os.Stderr, "  Scripts:      %d\n", len(scripts))
	fmt.Fprintf(os.Stderr, "  Workers:      %d\n", concurrency)
	fmt.Fprintf(os.Stderr, "  Provider:     %s/%s\n", cfg.LLM.Provider, cfg.LLM.Model)
	fmt.Fprintf(os.Stderr, "\n")

	processor := worker.NewReplayProcessor(p, concurrency, sessionLimiter(cfg), logger)
	results := processor.Run(ctx, scripts)

	failed := printReplayResults(cmd, results)
	if failed > 0 {
		return fmt.Errorf("%d of %d scripts failed", failed, len(results))
	}
	return nil
}

// printReplayResults prints one line per script and returns the failure count
func printReplayResults(cmd *cobra.Command, results []*worker.ReplayResult) int {
	out := cmd.OutOrStdout()
	failed := 0
	for _, r := range results {
		if r.Passed() {
			fmt.Fprintf(out, "✓ %s (%d turns, %v)\n", r.Script, len(r.Responses), r.Duration.Round(time.Millisecond))
			continue
		}
		failed++
		if r.Error != nil {
			fmt.Fprintf(out, "✗ %s: %v\n", r.Script, r.Error)
			continue
		}
		fmt.Fprintf(out, "✗ %s\n", r.Script)
		for _, f := range r.Failures {
			fmt.Fprintf(out, "    - %s\n", f)
		}
		if verbose {
			fmt.Fprintf(out, "    last response: %s\n", r.Final().Response)
		}
	}

	fmt.Fprintf(out, "\n  Total: %d  Passed: %d  Failed: %d\n", len(results), len(results)-failed, failed)
	return failed
}
