package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"swarmgov/internal/config"
	"swarmgov/internal/llm"
	"swarmgov/internal/logging"
	"swarmgov/internal/orchestrator"
	"swarmgov/internal/store"
	"swarmgov/internal/types"
	"swarmgov/internal/verification"
)

var (
	// Global flags
	verbose    bool
	configPath string
	apiKey     string

	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "swarmgov",
	Short: "swarmgov - multi-agent DAO governance runtime",
	Long: `swarmgov runs a cooperative of role-specialized agents under DAO
governance: experiments are proposed, attested, corroborated against sensor
data, and norm updates are voted on by stakeholders. A token-budgeted context
window builder and a plan/execute/verify/refine pipeline drive each task
session.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zapCfg := zap.NewProductionConfig()
		if verbose {
			zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zapCfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		logging.Initialize(logger)
		logging.SetDebug(verbose)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// session wires an orchestrator from the config file and any persisted state.
type session struct {
	cfg   *config.Config
	orch  *orchestrator.Orchestrator
	store *store.Store
}

func openSession(requireState bool) (*session, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if apiKey != "" {
		cfg.LLM.APIKey = apiKey
	}

	if dir := filepath.Dir(cfg.Storage.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage directory: %w", err)
		}
	}
	st, err := store.Open(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, err
	}

	generator, baseline, err := buildClients(cfg)
	if err != nil {
		st.Close()
		return nil, err
	}

	orch := orchestrator.New(cfg, generator, baseline, st, verification.AllowAll())
	if err := orch.LoadState(); err != nil {
		if requireState || !errors.Is(err, store.ErrKeyNotFound) {
			st.Close()
			return nil, fmt.Errorf("load session state: %w", err)
		}
	}
	return &session{cfg: cfg, orch: orch, store: st}, nil
}

func (s *session) close() error {
	if err := s.orch.SaveState(); err != nil {
		s.store.Close()
		return err
	}
	return s.store.Close()
}

// buildClients constructs the generation and baseline fallback profiles.
// Without an API key a deterministic offline client is used so ledger and
// voting commands still work.
func buildClients(cfg *config.Config) (llm.Client, llm.Client, error) {
	if cfg.LLM.APIKey == "" {
		offline := llm.NewMockClient("offline mode: no generation capability configured")
		return offline, offline, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.LLMTimeout())
	defer cancel()

	primary, err := llm.NewGenAIClient(ctx, llm.GenAIConfig{
		APIKey:    cfg.LLM.APIKey,
		Model:     cfg.LLM.Model,
		MaxTokens: cfg.LLM.MaxTokens,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create generation client: %w", err)
	}

	generator := llm.NewRetryClient(primary, 3, time.Second)
	baseline := primary.WithModel(cfg.LLM.BaselineModel)
	return generator, baseline, nil
}

func printJSON(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

// signalContext cancels on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-ch:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(ch)
	}()
	return ctx, cancel
}

func main() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "swarmgov.yaml", "Config file path")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", os.Getenv("GEMINI_API_KEY"), "Generation API key (or set GEMINI_API_KEY)")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(addAgentCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(pipelineCmd)
	rootCmd.AddCommand(proposeCmd)
	rootCmd.AddCommand(attestCmd)
	rootCmd.AddCommand(remediateCmd)
	rootCmd.AddCommand(corroborateCmd)
	rootCmd.AddCommand(normUpdateCmd)
	rootCmd.AddCommand(voteCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// roleFor maps the CLI role shorthand to the domain role.
func roleFor(s string) (types.Role, error) {
	switch s {
	case "proposal":
		return types.RoleProposal, nil
	case "risk":
		return types.RoleRisk, nil
	case "grant":
		return types.RoleGrant, nil
	default:
		return "", fmt.Errorf("%w: %q (want proposal, risk, or grant)", types.ErrUnknownRole, s)
	}
}
