package main

import (
	"context"

	"github.com/spf13/cobra"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"prism/internal/logging"
	"prism/internal/mcpserver"
	"prism/internal/reliability"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server over stdio",
	Long: `Starts an MCP server over stdin/stdout exposing fuse_image and
verifier_vote_gate, so agent tooling can run detections and query
verifier trust without linking the engine.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	srv := mcpserver.NewServer(
		newFusionEngine(cfg),
		reliability.NewGate(cfg.Paths.ReliabilityTable),
		version,
	)
	logging.New("mcp").Info("starting prism MCP server over stdio")
	return srv.Run(ctx, &sdkmcp.StdioTransport{})
}
