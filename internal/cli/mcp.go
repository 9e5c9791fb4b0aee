package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mark-chris/threatc/internal/mcp"
	"github.com/mark-chris/threatc/internal/store"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve MCP tools on stdio for AI coding agents",
	Long: `Run a Model Context Protocol server on stdin/stdout. It exposes the
threat_model_compile, threat_model_get, threat_model_regenerate and
knowledge_lookup tools to Claude Code, Cursor and other MCP clients.

Logs go to stderr; stdout carries only protocol messages.

Example client configuration:
  {"mcpServers": {"threatc": {"command": "threatc", "args": ["mcp"]}}}`,
	RunE: runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	st, err := store.Open(ctx, cfg.Store, logger)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	comp, err := newCompiler()
	if err != nil {
		return err
	}

	srv := mcp.NewServer(index,
		mcp.WithCompiler(comp),
		mcp.WithStore(st),
		mcp.WithLogger(logger),
		mcp.WithVersion(Version))
	if err := srv.ServeStdio(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
