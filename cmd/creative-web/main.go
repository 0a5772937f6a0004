// Command creative-web serves the review API locally. Reviews run in-process
// and their progress is kept in memory.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/creative-review/internal/cli"
	"github.com/fpang/creative-review/internal/logging"
	"github.com/fpang/creative-review/internal/progress"
	"github.com/fpang/creative-review/internal/store"
	"github.com/fpang/creative-review/internal/web"
)

// CLI flags
var (
	addrFlag  string
	modelFlag string
)

var rootCmd = &cobra.Command{
	Use:   "creative-web",
	Short: "Local HTTP API for ad creative reviews",
	Long: `Creative Web starts a local server exposing the review API. Upload
creatives with POST /api/reviews and poll GET /api/reviews/{id}.

Examples:
  creative-web
  creative-web --addr :9090
  creative-web --model gemini-2.5-flash`,
	Run: runMain,
}

func init() {
	rootCmd.Flags().StringVar(&addrFlag, "addr", "", "Listen address (default from HTTP_ADDR)")
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
	if addrFlag != "" {
		cfg.HTTP.Addr = addrFlag
	}
	if modelFlag != "" {
		cfg.Gemini.Model = modelFlag
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := cli.InitGeminiClient(ctx, cfg)
	svc := cli.NewService(cfg, client, progress.Log, nil)
	st := store.NewMemoryStore()
	dispatcher := web.NewLocalDispatcher(ctx, svc, st)

	kafkaWriter := progress.NewKafkaWriter(cfg.Kafka)
	if kafkaWriter != nil {
		defer kafkaWriter.Close()
		dispatcher.Notify = func(jobID string) progress.Notifier {
			return &progress.KafkaPublisher{Writer: kafkaWriter, JobID: jobID}
		}
	}

	server := &web.Server{
		Service:         svc,
		Store:           st,
		Dispatcher:      dispatcher,
		MaxUploadBytes:  cfg.HTTP.MaxUploadBytes,
		MultipartMemory: cfg.HTTP.MultipartMemory,
		AllowedOrigins:  cfg.HTTP.AllowedOrigins,
	}
	srv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      server.Router(),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	logging.NewStartupLogger("creative-web").
		InitDuration(time.Since(initStart)).
		Config("addr", cfg.HTTP.Addr).
		Config("model", cfg.Gemini.Model).
		Config("maxAssets", fmt.Sprint(cfg.Batch.MaxAssets)).
		Config("workers", fmt.Sprint(cfg.Batch.Workers)).
		Resource("kafkaTopic", kafkaTopic(cfg.Kafka.Topic, kafkaWriter != nil)).
		Feature("structuredCritique", cfg.Gemini.ResponseMIMEType == "application/json").
		Feature("kafkaProgress", kafkaWriter != nil).
		Log()

	go func() {
		<-ctx.Done()
		log.Info().Msg("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("Server shutdown failed")
		}
	}()

	log.Info().Str("addr", cfg.HTTP.Addr).Msg("Starting web server")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("Server failed")
	}

	// Canceled runs still clean up their uploads before exiting.
	dispatcher.Wait()
	log.Info().Msg("All reviews finished")
}

func kafkaTopic(topic string, enabled bool) string {
	if !enabled {
		return ""
	}
	return topic
}
