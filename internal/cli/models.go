package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ppiankov/triage/internal/llm"
)

// modelsCmd lists the models the configured provider offers
var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the models available from the configured LLM provider",
	Long: `Models queries the configured provider and prints the model names it
offers. Useful to verify an API key and pick a value for llm.model.

Example:
  triage models --provider gemini
  TRIAGE_LLM_PROVIDER=ollama triage models`,
	Args: cobra.NoArgs,
	RunE: runModels,
}

func init() {
	rootCmd.AddCommand(modelsCmd)
}

func runModels(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return err
	}
	if cfg.LLM.Provider == "" {
		return fmt.Errorf("no LLM provider configured (set llm.provider or --provider)")
	}

	provider, err := llm.NewProvider(llm.ConfigFromModel(cfg.LLM))
	if err != nil {
		return fmt.Errorf("create provider: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	models, err := provider.ListModels(ctx)
	if err != nil {
		return fmt.Errorf("list models from %s: %w", provider.Name(), err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s: %d models\n", provider.Name(), len(models))
	for _, m := range models {
		marker := " "
		if m == cfg.LLM.Model {
			marker = "*"
		}
		fmt.Fprintf(out, " %s %s\n", marker, m)
	}
	return nil
}
