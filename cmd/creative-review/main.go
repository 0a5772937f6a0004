// Command creative-review critiques ad creatives against best practices for
// the chosen channel, objective and device.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/creative-review/internal/cli"
	"github.com/fpang/creative-review/internal/creative"
	"github.com/fpang/creative-review/internal/ingest"
	"github.com/fpang/creative-review/internal/logging"
	"github.com/fpang/creative-review/internal/progress"
	"github.com/fpang/creative-review/internal/report"
	"github.com/fpang/creative-review/internal/review"
)

// CLI flags
var (
	filesFlag     []string
	channelFlag   string
	objectiveFlag string
	deviceFlag    string
	combinedFlag  bool
	jsonFlag      bool
	askFlag       bool
	modelFlag     string
	pdfFlag       string
	bundleFlag    string
)

var rootCmd = &cobra.Command{
	Use:   "creative-review",
	Short: "AI critique of ad creatives",
	Long: `Creative Review uploads up to five ad creatives (JPEG, PNG or MP4) to Gemini
and returns a best-practice critique of each one for the campaign's channel,
objective and primary device.

Without --file a file picker opens.

Exit status is 0 when every creative was reviewed, 1 when the review was
interrupted or every run failed, and 2 when only some runs failed.

Examples:
  creative-review -f banner.png --channel Instagram --objective Awareness --device Mobile
  creative-review -f a.png -f b.png -f c.mp4 --combined
  creative-review -f spot.mp4 --json --pdf review.pdf
  creative-review --ask`,
	Run: runMain,
}

func init() {
	rootCmd.Flags().StringArrayVarP(&filesFlag, "file", "f", nil, "Creative to review (repeatable, up to 5)")
	rootCmd.Flags().StringVar(&channelFlag, "channel", "", "Ad channel (e.g. Instagram, TikTok, YouTube)")
	rootCmd.Flags().StringVar(&objectiveFlag, "objective", "", "Campaign objective (e.g. Awareness, Conversion)")
	rootCmd.Flags().StringVar(&deviceFlag, "device", "", "Primary device (Mobile, Desktop, Tablet, Connected TV)")
	rootCmd.Flags().BoolVar(&combinedFlag, "combined", false, "Review all creatives together in one request")
	rootCmd.Flags().BoolVar(&jsonFlag, "json", false, "Ask for a structured (JSON) critique")
	rootCmd.Flags().BoolVar(&askFlag, "ask", false, "Prompt for campaign details that were not given as flags")
	rootCmd.Flags().StringVarP(&modelFlag, "model", "m", "", "Gemini model to use (default from GEMINI_MODEL)")
	rootCmd.Flags().StringVar(&pdfFlag, "pdf", "", "Write a PDF report to this path")
	rootCmd.Flags().StringVar(&bundleFlag, "bundle", "", "Write a ZIP bundle (PDF + results.json) to this path")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runMain(cmd *cobra.Command, args []string) {
	logging.Init()
	start := time.Now()

	cfg := cli.LoadConfig()
	if modelFlag != "" {
		cfg.Gemini.Model = modelFlag
	}
	if jsonFlag {
		cfg.Gemini.ResponseMIMEType = "application/json"
	}

	paths := filesFlag
	if len(paths) == 0 {
		picked, err := cli.PickFiles()
		if err != nil {
			if errors.Is(err, cli.ErrNoSelection) {
				log.Fatal().Msg("No creatives selected. Pass --file or pick files in the dialog")
			}
			log.Fatal().Err(err).Msg("Failed to select files")
		}
		paths = picked
	}
	assets := cli.LoadAssets(paths)

	campaign := creative.Campaign{Channel: channelFlag, Objective: objectiveFlag, Device: deviceFlag}
	if askFlag {
		campaign = askCampaign(campaign)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := cli.InitGeminiClient(ctx, cfg)

	runs := len(assets)
	if combinedFlag {
		runs = 1
	}
	svc := cli.NewService(cfg, client, &progress.Printer{W: os.Stderr, Total: runs}, nil)

	rv, err := svc.Review(ctx, review.Request{Assets: assets, Campaign: campaign, Combined: combinedFlag})
	if err != nil {
		var ie *ingest.Error
		if errors.As(err, &ie) {
			log.Fatal().Msg(ie.UserMessage())
		}
		log.Fatal().Err(err).Msg("Review failed")
	}

	cli.PrintReview(os.Stdout, rv)
	writeReports(rv)

	log.Info().
		Int("runs", len(rv.Items)).
		Int("failed", rv.Failed()).
		Str("elapsed", cli.FormatDurationShort(time.Since(start))).
		Msg("Done")
	if code := exitCode(ctx.Err(), rv); code != 0 {
		os.Exit(code)
	}
}

// exitCode is 0 when every run produced a critique, 1 when the review was
// interrupted or every run failed, and 2 when only some runs failed.
func exitCode(ctxErr error, rv *review.Review) int {
	failed := rv.Failed()
	switch {
	case ctxErr != nil || failed == len(rv.Items):
		return 1
	case failed > 0:
		return 2
	}
	return 0
}

func askCampaign(c creative.Campaign) creative.Campaign {
	if c.Channel == "" {
		c.Channel = cli.PromptChoice(os.Stdin, os.Stderr, "Channel", creative.Channels)
	}
	if c.Objective == "" {
		c.Objective = cli.PromptChoice(os.Stdin, os.Stderr, "Objective", creative.Objectives)
	}
	if c.Device == "" {
		c.Device = cli.PromptChoice(os.Stdin, os.Stderr, "Primary device", creative.Devices)
	}
	return c
}

func writeReports(rv *review.Review) {
	if pdfFlag == "" && bundleFlag == "" {
		return
	}
	doc := report.FromReview("", rv)
	if pdfFlag != "" {
		if err := writeFile(pdfFlag, func(f *os.File) error { return report.WritePDF(f, doc) }); err != nil {
			log.Error().Err(err).Str("path", pdfFlag).Msg("Failed to write PDF report")
		} else {
			fmt.Fprintf(os.Stderr, "PDF report: %s\n", pdfFlag)
		}
	}
	if bundleFlag != "" {
		if err := writeFile(bundleFlag, func(f *os.File) error { return report.WriteBundle(f, doc) }); err != nil {
			log.Error().Err(err).Str("path", bundleFlag).Msg("Failed to write report bundle")
		} else {
			fmt.Fprintf(os.Stderr, "Report bundle: %s\n", bundleFlag)
		}
	}
}

func writeFile(path string, write func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}
