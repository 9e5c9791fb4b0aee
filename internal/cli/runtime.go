package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mark-chris/threatc/internal/agents"
	"github.com/mark-chris/threatc/internal/compiler"
	"github.com/mark-chris/threatc/internal/knowledge"
	"github.com/mark-chris/threatc/internal/llm"
	"github.com/mark-chris/threatc/internal/store"
)

var errNoHistory = errors.New("model history needs a persistent store: set store.driver to sqlite or postgres (THREATC_STORE_DRIVER)")

// newCompiler wires the configured model provider into a compiler over the loaded index
func newCompiler(opts ...compiler.Option) (*compiler.Compiler, error) {
	adapter, err := llm.NewFromConfig(cfg.LLM, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to configure model provider: %w", err)
	}

	tokens, err := knowledge.NewTokenCounter()
	if err != nil {
		logger.Debug("token encoder unavailable, estimating prompt sizes", zap.Error(err))
	}

	runner := agents.New(adapter, tokens, cfg.AgentOptions(), logger)
	return compiler.New(index, runner, cfg.Compiler, logger, opts...), nil
}

// openHistory opens the configured store, which must outlive the process
func openHistory(ctx context.Context) (store.Store, error) {
	if cfg.Store.Driver == "" || cfg.Store.Driver == store.DriverMemory {
		return nil, errNoHistory
	}
	return store.Open(ctx, cfg.Store, logger)
}

// signalContext is cancelled on interrupt so a compilation stops between stages
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// commandContext tolerates commands run directly, outside Execute
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
