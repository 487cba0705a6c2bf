package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/triage/internal/kb"
	"github.com/ppiankov/triage/internal/llm"
	"github.com/ppiankov/triage/internal/logging"
	"github.com/ppiankov/triage/internal/model"
)

// Version is set at build time
var Version = "v0.1.0"

var (
	cfgFile string
	verbose bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "triage",
	Short: "Triage - conversational first-contact medical triage assistant",
	Long: `Triage turns a free-text symptom description into one of three outcomes:
an immediate emergency escalation, a guided clinical questionnaire, or a
recommendation of where to go among the regional urgent care (CAU) and
emergency (Pronto Soccorso) facilities.

Triage does not diagnose. Every red-flag symptom is answered with an
instruction to call 118 before anything else happens.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Display the version number of Triage.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "triage %s\n", Version)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.triage/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().String("kb-dir", "", "knowledge base directory or URL")
	rootCmd.PersistentFlags().String("provider", "", "LLM provider (openai, anthropic, ollama, gemini)")
	rootCmd.PersistentFlags().String("model", "", "LLM model name")

	// Bind flags to viper
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("knowledge_base.dir", rootCmd.PersistentFlags().Lookup("kb-dir"))
	_ = viper.BindPFlag("llm.provider", rootCmd.PersistentFlags().Lookup("provider"))
	_ = viper.BindPFlag("llm.model", rootCmd.PersistentFlags().Lookup("model"))

	rootCmd.AddCommand(versionCmd)
}

// initConfig reads in config file and ENV variables
func initConfig() {
	if err := registerDefaults(viper.GetViper(), model.DefaultConfig()); err != nil {
		fmt.Fprintf(os.Stderr, "Error registering defaults: %v\n", err)
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			return
		}

		viper.AddConfigPath(filepath.Join(home, ".triage"))
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	// Read in environment variables that match TRIAGE_*, e.g. TRIAGE_LLM_PROVIDER
	viper.SetEnvPrefix("TRIAGE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// registerDefaults declares every configuration key so that environment
// variables can override keys absent from the config file
func registerDefaults(v *viper.Viper, cfg *model.Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	var tree map[string]any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return err
	}
	setDefaults(v, "", tree)
	for _, key := range optionalKeys {
		v.SetDefault(key, "")
	}
	return nil
}

// optionalKeys are omitted from the marshalled defaults when empty
var optionalKeys = []string{
	"llm.api_key",
	"llm.base_url",
	"llm.http_proxy",
	"llm.https_proxy",
	"llm.no_proxy",
	"links.http_proxy",
	"links.https_proxy",
	"links.no_proxy",
}

func setDefaults(v *viper.Viper, prefix string, tree map[string]any) {
	for k, val := range tree {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if sub, ok := val.(map[string]any); ok && len(sub) > 0 {
			setDefaults(v, key, sub)
			continue
		}
		v.SetDefault(key, val)
	}
}

// loadConfig resolves the effective configuration: flags, then TRIAGE_*
// environment, then the config file, then defaults
func loadConfig(v *viper.Viper) (*model.Config, error) {
	cfg := model.DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	llm.ApplyEnv(&cfg.LLM)
	return cfg, nil
}

// newLogger builds the zap logger for a command
func newLogger(cfg *model.Config) (*zap.Logger, error) {
	return logging.New(cfg.Logging, verbose)
}

// loadKnowledgeBase loads the knowledge base and logs every degraded resource
func loadKnowledgeBase(ctx context.Context, cfg *model.Config, logger *zap.Logger) (*model.KnowledgeBase, *kb.Report) {
	return kb.Load(ctx, cfg.KnowledgeBase, kb.WithLogger(logger))
}

// setup loads configuration, logger and knowledge base for a command
func setup(ctx context.Context) (*model.Config, *zap.Logger, *model.KnowledgeBase, *kb.Report, error) {
	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return nil, nil, nil, nil, err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	knowledge, report := loadKnowledgeBase(ctx, cfg, logger)
	return cfg, logger, knowledge, report, nil
}
