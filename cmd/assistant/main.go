package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime"
	"github.com/aws/aws-sdk-go-v2/service/transcribestreaming"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"voice-chat/config"
	"voice-chat/internal/application"
	"voice-chat/internal/domain"
	"voice-chat/internal/infra"
	"voice-chat/internal/infra/anthropic"
	"voice-chat/internal/infra/audio"
	"voice-chat/internal/infra/bedrock"
	"voice-chat/internal/infra/console"
	"voice-chat/internal/infra/gemini"
	"voice-chat/internal/infra/openai"
	"voice-chat/internal/infra/pushover"
	"voice-chat/internal/infra/transcribe"
	"voice-chat/internal/infra/wsbridge"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "assistant",
	Short:         "Talk to a chat bot through your microphone",
	Long:          `Streams microphone audio to a speech recognition service and answers every finished utterance with a conversational response service.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runAssistant,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the voice chat pipeline",
	RunE:  runAssistant,
}

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List audio capture devices",
	RunE:  runDevices,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	RunE:  runConfig,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to config file")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(devicesCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func runAssistant(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.Log)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	audioSource := createAudioSource(cfg.Audio, logger)

	stt, err := createTranscriptionService(ctx, cfg.Transcription, logger)
	if err != nil {
		logger.Error("creating transcription service", "error", err)
		return err
	}

	generator, closeGenerator, err := createResponseGenerator(ctx, cfg.Response, logger)
	if err != nil {
		logger.Error("creating response generator", "error", err)
		return err
	}
	defer closeGenerator()

	var notifier application.Notifier
	if cfg.Pushover.Enabled {
		notifier = pushover.NewClient(cfg.Pushover.Token, cfg.Pushover.UserKey, cfg.Pushover.Title)
	} else {
		notifier = &application.NoopNotifier{}
	}

	agent := application.NewResponseAgent(generator, application.AgentOptions{
		ContextTurns: cfg.Response.ContextTurns,
		MaxTurns:     cfg.Response.MaxTurns,
		Timeout:      cfg.ResponseTimeout(),
	}, logger)

	streamCfg := domain.StreamConfig{
		LanguageCode: cfg.Transcription.Language,
		SampleRate:   cfg.Audio.SampleRate,
		Encoding:     domain.EncodingPCM,
	}

	pipeline := application.NewPipeline(
		audioSource,
		stt,
		streamCfg,
		agent,
		console.NewDisplay(os.Stdout, cfg.Transcription.ShowPartials),
		notifier,
		logger,
	)

	go func() {
		sigCh := make(chan os.Signal, 2)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigCh)

		select {
		case <-sigCh:
		case <-ctx.Done():
			return
		}
		logger.Info("stopping, press Ctrl+C again to quit immediately")
		pipeline.Shutdown()

		select {
		case <-sigCh:
			logger.Info("shutting down")
			cancel()
		case <-ctx.Done():
		}
	}()

	logger.Info("starting voice chat",
		"audioSource", audioSource.Name(),
		"transcription", stt.Name(),
		"response", generator.Name(),
		"language", streamCfg.LanguageCode,
	)

	if err := pipeline.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("voice chat stopped", "error", err)
		return err
	}

	logger.Info("voice chat stopped", "turns", len(agent.Turns()))
	return nil
}

func createAudioSource(cfg config.AudioConfig, logger *slog.Logger) application.AudioSource {
	switch cfg.Source {
	case "http":
		return audio.NewHTTPSource(cfg.HTTPAddr, cfg.AuthToken, cfg.SampleRate, cfg.FrameSamples, logger)
	case "file":
		return audio.NewFileSource(cfg.FilePath, cfg.SampleRate, cfg.FrameSamples, cfg.Realtime, logger)
	default:
		return audio.NewMicrophoneSource(cfg.Device, cfg.SampleRate, cfg.FrameSamples, logger)
	}
}

func createTranscriptionService(ctx context.Context, cfg config.TranscriptionConfig, logger *slog.Logger) (application.TranscriptionService, error) {
	retry := infra.DefaultRetryConfig()
	retry.MaxAttempts = cfg.DialAttempts
	retry.InitialDelay = 500 * time.Millisecond

	switch cfg.Provider {
	case "wsbridge":
		return wsbridge.NewService(cfg.BridgeURL, retry, logger), nil
	default:
		awsCfg, err := loadAWSConfig(ctx, cfg.Region)
		if err != nil {
			return nil, err
		}
		return transcribe.NewService(transcribestreaming.NewFromConfig(awsCfg), retry, logger), nil
	}
}

func createResponseGenerator(ctx context.Context, cfg config.ResponseConfig, logger *slog.Logger) (application.ResponseGenerator, func(), error) {
	noop := func() {}

	switch cfg.Provider {
	case "openai":
		return openai.NewChatClient(cfg.APIKey, cfg.Model, cfg.BaseURL, cfg.SystemPrompt, logger), noop, nil
	case "anthropic":
		return anthropic.NewClaudeClientWithURL(cfg.APIKey, cfg.Model, cfg.SystemPrompt, cfg.BaseURL), noop, nil
	case "gemini":
		client, err := gemini.NewClient(ctx, cfg.APIKey, cfg.Model, cfg.SystemPrompt, logger)
		if err != nil {
			return nil, noop, err
		}
		return client, func() {
			if err := client.Close(); err != nil {
				logger.Warn("closing gemini client", "error", err)
			}
		}, nil
	default:
		awsCfg, err := loadAWSConfig(ctx, cfg.Region)
		if err != nil {
			return nil, noop, err
		}
		flow := bedrock.NewFlowClient(bedrockagentruntime.NewFromConfig(awsCfg), bedrock.FlowConfig{
			FlowID:      cfg.FlowID,
			FlowAliasID: cfg.FlowAliasID,
			InputNode:   cfg.InputNode,
		}, logger)
		return flow, noop, nil
	}
}

func loadAWSConfig(ctx context.Context, region string) (aws.Config, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return aws.Config{}, fmt.Errorf("loading AWS config: %w", err)
	}
	return cfg, nil
}

func runDevices(cmd *cobra.Command, _ []string) error {
	devices, err := audio.ListInputDevices()
	if err != nil {
		return fmt.Errorf("listing capture devices: %w", err)
	}

	out := cmd.OutOrStdout()
	for _, d := range devices {
		marker := " "
		if d.IsDefault {
			marker = "*"
		}
		fmt.Fprintf(out, "%s %-40s %d ch  %.0f Hz\n", marker, d.Name, d.Channels, d.DefaultSampleRate)
	}
	return nil
}

func runConfig(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	redacted := *cfg
	redacted.Audio.AuthToken = redact(redacted.Audio.AuthToken)
	redacted.Response.APIKey = redact(redacted.Response.APIKey)
	redacted.Pushover.Token = redact(redacted.Pushover.Token)
	redacted.Pushover.UserKey = redact(redacted.Pushover.UserKey)

	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	if err := enc.Encode(redacted); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "\nconfig problems:\n  %s\n", strings.ReplaceAll(err.Error(), "\n", "\n  "))
	}
	return nil
}

func redact(secret string) string {
	if secret == "" {
		return ""
	}
	return "********"
}

func setupLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = log.NewWithOptions(os.Stderr, log.Options{
			Level:           log.Level(level),
			ReportTimestamp: true,
			TimeFormat:      time.TimeOnly,
		})
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
