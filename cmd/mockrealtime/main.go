// mockrealtime serves a local stand-in for the realtime model endpoint.
//
// It accepts the same websocket handshake as the hosted API, echoes every
// appended audio buffer back as response.audio.delta and answers each
// commit with response.done, so the bridge can be exercised end to end
// without credentials.
//
// Usage:
//
//	mockrealtime --addr 127.0.0.1:8081
//	OPENAI_REALTIME_URL=ws://127.0.0.1:8081/v1/realtime voice-bridge
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var (
	listenAddr string
	apiKey     string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "mockrealtime",
	Short: "Local realtime model endpoint that echoes caller audio",
	Long: `mockrealtime accepts realtime websocket sessions on /v1/realtime.

Appended input audio is sent straight back as response.audio.delta and every
input_audio_buffer.commit is answered with response.done.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context())
	},
}

func init() {
	rootCmd.Flags().StringVar(&listenAddr, "addr", "127.0.0.1:8081", "address to listen on")
	rootCmd.Flags().StringVar(&apiKey, "api-key", "", "require this bearer token (default accepts any)")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", logLevel, err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	mux := http.NewServeMux()
	mux.Handle("/v1/realtime", newEchoModel(apiKey, logger))

	server := &http.Server{
		Addr:              listenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Mock realtime endpoint listening",
			slog.String("url", "ws://"+listenAddr+"/v1/realtime"),
		)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
