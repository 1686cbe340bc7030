package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/Indy1131/kotoba/internal/metrics"
	"github.com/Indy1131/kotoba/internal/protocol"
	"github.com/Indy1131/kotoba/internal/reference"
	"github.com/Indy1131/kotoba/internal/server"
	"github.com/Indy1131/kotoba/internal/stream"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the formant streaming service",
	Long: `Start the HTTP API and the WebSocket streaming channel. The service runs
until it receives SIGINT or SIGTERM, then drains connections and sessions.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger := initLogger(cfg.Logging)

	logger.Info("Service starting",
		slog.String("service", cfg.Server.Name),
		slog.String("version", serviceVersion),
		slog.String("config_path", configPath),
	)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.HTTP.Addr()),
		slog.String("stream_path", cfg.Stream.Path),
		slog.String("encoding", cfg.Stream.Encoding),
		slog.Int("inbox_size", cfg.Stream.InboxSize),
		slog.Int("max_sessions", cfg.Stream.MaxSessions),
		slog.Int("sample_rate", cfg.Analysis.SampleRate),
		slog.Int("fft_size", cfg.Analysis.FFTSize),
		slog.Float64("amplitude_threshold", cfg.Analysis.AmplitudeThreshold),
		slog.String("log_level", cfg.Logging.Level),
	)

	encoding, err := protocol.ParseEncoding(cfg.Stream.Encoding)
	if err != nil {
		return err
	}

	catalog, err := reference.Load(cfg.Reference.Path)
	if err != nil {
		return err
	}
	logger.Info("Vowel references loaded", slog.Any("speakers", catalog.Speakers()))

	appMetrics := metrics.New(prometheus.DefaultRegisterer)
	logger.Info("Prometheus metrics initialized")

	pipeline, err := buildPipeline(cfg, appMetrics, logger)
	if err != nil {
		return err
	}

	streamMgr, err := stream.NewManager(logger, pipeline, appMetrics, stream.ManagerConfig{
		InboxSize:      cfg.Stream.InboxSize,
		MaxSessions:    cfg.Stream.MaxSessions,
		SessionTimeout: cfg.Stream.GetSessionTimeout(),
	})
	if err != nil {
		return fmt.Errorf("failed to create stream manager: %w", err)
	}
	logger.Info("Stream manager initialized",
		slog.Duration("session_timeout", cfg.Stream.GetSessionTimeout()),
	)

	wsServer := server.NewWebSocketServer(server.WebSocketConfig{
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		ReadLimit:      cfg.Stream.ReadLimit,
		SendBuffer:     cfg.Stream.SendBuffer,
		WriteTimeout:   cfg.Stream.GetWriteTimeout(),
		Encoding:       encoding,
	}, logger, streamMgr, appMetrics)

	httpServer := server.NewHTTPServer(cfg, logger, streamMgr, wsServer, catalog, appMetrics, prometheus.DefaultGatherer)
	if err := httpServer.Start(); err != nil {
		streamMgr.Stop()
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Service started successfully, waiting for signals...",
		slog.String("http_address", cfg.HTTP.Addr()),
	)

	<-ctx.Done()
	logger.Info("Starting graceful shutdown...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.GetShutdownTimeout())
	defer shutdownCancel()

	// Stop HTTP first so no new sessions are created while draining.
	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
	}

	streamMgr.Stop()

	stats := streamMgr.Stats()
	wsStats := wsServer.GetStatistics()
	logger.Info("Final service statistics",
		slog.Uint64("sessions_created", stats.SessionsCreated),
		slog.Uint64("chunks_received", stats.ChunksReceived),
		slog.Uint64("chunks_emitted", stats.ChunksEmitted),
		slog.Uint64("chunks_dropped", stats.ChunksDropped),
		slog.Uint64("chunks_failed", stats.ChunksFailed),
		slog.Uint64("frames_received", wsStats.FramesReceived),
	)

	logger.Info("Service stopped")
	return nil
}
