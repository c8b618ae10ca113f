// Command voxrelay starts the voice-turn gateway: one process accepting
// many concurrent WebSocket connections, each driving a full
// STT -> LLM -> TTS conversation loop over a single /ws endpoint.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/shashank8104/voxrelay/internal/config"
	"github.com/shashank8104/voxrelay/internal/llm"
	"github.com/shashank8104/voxrelay/internal/server"
	"github.com/shashank8104/voxrelay/internal/stt"
	"github.com/shashank8104/voxrelay/internal/tts"
	"github.com/shashank8104/voxrelay/internal/turn"
)

func main() {
	if err := run(); err != nil {
		log.Printf("fatal: %v", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, warnings, err := config.Load(os.Getenv("VOXRELAY_CONFIG_FILE"))
	if err != nil {
		return err
	}
	for _, w := range warnings {
		log.Printf("config warning: %s", w)
	}

	sttClient := stt.NewClient(cfg.SarvamAPIKey, "")

	llmClient, err := llm.NewClient(cfg.LLMProvider, llmAPIKey(&cfg), cfg.LLMModel)
	if err != nil {
		return err
	}

	ttsClient := tts.NewClient(cfg.ElevenLabsAPIKey, cfg.ElevenLabsVoiceID, cfg.ElevenLabsModelID)

	adapters := server.Adapters{
		STT: turn.TranscribeFunc(sttClient.TranscribeWithRetry),
		LLM: llmClient,
		TTS: ttsStreamer{ttsClient},
		SilenceParams: turn.SilenceParams{
			SilenceRMS:       float64(cfg.SilenceRMS),
			SilenceTurnEndMS: cfg.SilenceTurnEndMS,
			BargeInRMS:       float64(cfg.BargeInRMS),
			MinVoicedFrames:  cfg.MinVoicedFrames,
		},
		SessionTimeout: cfg.ParsedSessionTimeout(),
	}

	addr := ":" + strconv.Itoa(cfg.Port)
	httpServer := &http.Server{
		Addr:    addr,
		Handler: server.Handler(adapters),
	}

	serveErrCh := make(chan error, 1)
	go func() {
		log.Printf("voxrelay gateway listening on %s", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErrCh <- err
			return
		}
		serveErrCh <- nil
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serveErrCh:
		return err
	case <-sigCh:
		log.Printf("shutdown signal received")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		return err
	}
	return <-serveErrCh
}

// ttsStreamer adapts *tts.Client's Chunk type to the turn.TTSChunk shape
// turn.TTSClient expects, keeping internal/tts free of a dependency on
// internal/turn.
type ttsStreamer struct {
	client *tts.Client
}

func (t ttsStreamer) Stream(ctx context.Context, text string) (<-chan turn.TTSChunk, error) {
	chunks, err := t.client.Stream(ctx, text)
	if err != nil {
		return nil, err
	}

	out := make(chan turn.TTSChunk)
	go func() {
		defer close(out)
		for c := range chunks {
			out <- turn.TTSChunk{Data: c.Data, Err: c.Err}
		}
	}()
	return out, nil
}

// llmAPIKey selects the credential matching the configured provider.
func llmAPIKey(cfg *config.Config) string {
	switch cfg.LLMProvider {
	case "anthropic":
		return cfg.AnthropicAPIKey
	case "gemini":
		return cfg.GeminiAPIKey
	default:
		return cfg.OpenAIAPIKey
	}
}
