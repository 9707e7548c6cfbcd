package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/cmw-cli/internal/config"
	"github.com/sells-group/cmw-cli/internal/llm"
	"github.com/sells-group/cmw-cli/internal/scorer"
	"github.com/sells-group/cmw-cli/internal/store"
	"github.com/sells-group/cmw-cli/internal/suggest"
	"github.com/sells-group/cmw-cli/internal/task"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "cmw",
	Short: "Collision matrix cost workbench",
	Long:  "Maps a price catalog onto a BIM collision matrix, estimates remediation costs and risk per collision via heuristic scoring with optional LLM reranking.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

// openStore opens the configured backend.
func openStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return store.NewSQLite(cfg.Store.DatabaseURL)
	}
}

// newLLMService builds the provider service. With incomplete provider
// config the service is disabled and everything runs heuristic-only.
func newLLMService() *llm.Service {
	debug := llm.NewDebugLog(cfg.LLM.Debug, cfg.LLM.DebugLogPath)
	if !cfg.LLM.Configured() {
		return llm.NewService(nil, debug)
	}
	client := llm.NewClient(cfg.LLM.BaseURL, cfg.LLM.Key, cfg.LLM.Model,
		llm.WithRetry(cfg.LLM.MaxRetries, 200*time.Millisecond),
		llm.WithRequestDelay(time.Duration(cfg.LLM.RequestDelayMs)*time.Millisecond),
		llm.WithDebugLog(debug),
	)
	return llm.NewService(client, debug)
}

// appEnv bundles the long-lived collaborators commands share.
type appEnv struct {
	store   store.Store
	llm     *llm.Service
	builder *suggest.Builder
	runner  *task.Runner
}

func initApp(ctx context.Context) (*appEnv, error) {
	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, err
	}

	tables, err := scorer.LoadTables(cfg.Suggest.KeywordsPath)
	if err != nil {
		st.Close()
		return nil, err
	}

	svc := newLLMService()
	builder := suggest.NewBuilder(st, scorer.New(tables), svc, suggest.Options{
		TopN:         cfg.Suggest.TopN,
		CatalogLimit: cfg.Suggest.CatalogLimit,
	})
	runner := task.NewRunner(st, task.Deps{
		Builder:       builder,
		LLM:           svc,
		MatrixPath:    cfg.Matrix.Path,
		CatalogLimit:  cfg.Suggest.CatalogLimit,
		AcceptedLimit: cfg.Suggest.AcceptedLimit,
	})

	return &appEnv{store: st, llm: svc, builder: builder, runner: runner}, nil
}

func (e *appEnv) Close() {
	if err := e.store.Close(); err != nil {
		zap.L().Error("store close failed", zap.Error(err))
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
