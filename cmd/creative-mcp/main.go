// Command creative-mcp exposes creative reviews to MCP clients over stdio.
//
// Tools:
//
//	review_creative   review local image or video files against a campaign
//	campaign_options  list the accepted channels, objectives and devices
//
// stdout carries the protocol; logs go to stderr.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/creative-review/internal/cli"
	"github.com/fpang/creative-review/internal/logging"
	"github.com/fpang/creative-review/internal/progress"
)

const version = "v1.0.0"

var modelFlag string

var rootCmd = &cobra.Command{
	Use:   "creative-mcp",
	Short: "MCP server for ad creative reviews",
	Long: `Creative MCP serves the review_creative tool over stdio so that MCP
clients can request critiques of local creatives.

Example client configuration:
  {"command": "creative-mcp", "env": {"GEMINI_API_KEY": "..."}}`,
	Run: runMain,
}

func init() {
	rootCmd.Flags().StringVarP(&modelFlag, "model", "m", "", "Gemini model to use (default from GEMINI_MODEL)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runMain(cmd *cobra.Command, args []string) {
	logging.Init()
	initStart := time.Now()

	cfg := cli.LoadConfig()
	if modelFlag != "" {
		cfg.Gemini.Model = modelFlag
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := cli.InitGeminiClient(ctx, cfg)
	tools := &reviewTools{service: cli.NewService(cfg, client, progress.Log, nil)}

	server := mcp.NewServer(&mcp.Implementation{Name: "creative-review", Version: version}, nil)
	tools.register(server)

	logging.NewStartupLogger("creative-mcp").
		InitDuration(time.Since(initStart)).
		Config("model", cfg.Gemini.Model).
		Config("transport", "stdio").
		Log()

	if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
		log.Fatal().Err(err).Msg("MCP server failed")
	}
}
