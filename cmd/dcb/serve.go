package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"dcb/internal/compile"
	"dcb/internal/configstore"
	"dcb/internal/mcp"
	"dcb/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the MCP server on stdio",
	Long: `Start the MCP server speaking line-delimited JSON-RPC on stdin and
stdout. This is the entry point MCP clients launch; all logging goes to
stderr so the protocol stream stays clean.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	s, err := loadSettings()
	if err != nil {
		return err
	}

	// stdout carries the protocol; logs go to stderr only.
	log := newLogger(s)

	loader := newLoader(s, log)
	services := &mcp.Services{
		Compiler:  &compile.Service{Loader: loader, Log: log},
		Loader:    loader,
		Generator: &configstore.Generator{Log: log},
		Extender:  &configstore.Extender{Log: log},
	}
	server := mcp.NewServer(version.Version, services, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := server.Run(ctx); err != nil {
		log.Error("server stopped", "error", err)
		return err
	}
	log.Info("server shut down")
	return nil
}
