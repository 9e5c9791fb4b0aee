package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mark-chris/threatc/internal/compiler"
	"github.com/mark-chris/threatc/internal/server"
	"github.com/mark-chris/threatc/internal/store"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API",
	Long: `Serve threat model compilation, model history and knowledge lookups over
HTTP. Stage progress is streamed to websocket clients on /api/v1/events.

Endpoints:
  POST   /api/v1/models                          compile a model
  GET    /api/v1/models                          list saved models
  GET    /api/v1/models/:id                      fetch a model
  DELETE /api/v1/models/:id                      delete a model
  GET    /api/v1/models/:id/report?format=...    render a report
  POST   /api/v1/models/:id/regenerate/:section  rebuild one section
  GET    /api/v1/knowledge?context=...           query the knowledge base
  GET    /api/v1/knowledge/:type                 component type guidance

Examples:
  threatc serve
  threatc serve --addr 127.0.0.1:9000`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "",
		"Listen address (default from config, :8080)")
}

func runServe(cmd *cobra.Command, args []string) error {
	addr := cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}

	ctx, cancel := signalContext()
	defer cancel()

	st, err := store.Open(ctx, cfg.Store, logger)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	hub := server.NewHub(logger)
	comp, err := newCompiler(compiler.WithObserver(hub.Observe))
	if err != nil {
		return err
	}

	logger.Info("serving",
		zap.String("addr", addr),
		zap.String("provider", cfg.LLM.Provider),
		zap.String("store", cfg.Store.Driver),
		zap.Int("templates", index.Count()))

	return server.New(server.Deps{
		Compiler:  comp,
		Knowledge: index,
		Store:     st,
		Hub:       hub,
		Logger:    logger,
	}).Run(ctx, addr)
}
