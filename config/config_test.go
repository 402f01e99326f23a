package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"voice-chat/config"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := config.Parse([]byte("response:\n  flow_id: F\n  flow_alias_id: A\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if cfg.Audio.Source != "microphone" || cfg.Audio.SampleRate != 16000 || cfg.Audio.FrameSamples != 1024 {
		t.Errorf("audio defaults: got %+v", cfg.Audio)
	}
	if cfg.Transcription.Provider != "aws" || cfg.Transcription.Language != "zh-CN" || cfg.Transcription.Region != "us-west-2" {
		t.Errorf("transcription defaults: got %+v", cfg.Transcription)
	}
	if cfg.Response.Provider != "bedrock" || cfg.Response.Region != "us-west-2" || cfg.Response.InputNode != "FlowInputNode" {
		t.Errorf("response defaults: got %+v", cfg.Response)
	}
	if cfg.ResponseTimeout() != time.Minute {
		t.Errorf("timeout: got %s", cfg.ResponseTimeout())
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestParse_ExpandsEnv(t *testing.T) {
	t.Setenv("VOICE_CHAT_TEST_KEY", "sk-test")

	cfg, err := config.Parse([]byte(`
response:
  provider: openai
  api_key: ${VOICE_CHAT_TEST_KEY}
  context_turns: 3
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if cfg.Response.APIKey != "sk-test" {
		t.Errorf("api key: got %q", cfg.Response.APIKey)
	}
	if cfg.Response.ContextTurns != 3 {
		t.Errorf("context turns: got %d", cfg.Response.ContextTurns)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestValidate_ReportsAllProblems(t *testing.T) {
	cfg, err := config.Parse([]byte(`
audio:
  source: file
transcription:
  provider: wsbridge
response:
  provider: gemini
  timeout: soon
log:
  format: xml
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	err = cfg.Validate()
	if err == nil {
		t.Fatal("expected validation errors")
	}

	for _, want := range []string{
		"audio.file_path",
		"transcription.bridge_url",
		"response.api_key",
		"response.timeout",
		"log.format",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("validation error missing %q: %v", want, err)
		}
	}
}

func TestValidate_UnknownProviders(t *testing.T) {
	cfg, err := config.Parse([]byte(`
transcription:
  provider: whisper
response:
  provider: llama
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	err = cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "whisper") || !strings.Contains(err.Error(), "llama") {
		t.Errorf("Validate: got %v", err)
	}
}

func TestValidate_FixedAudioGeometry(t *testing.T) {
	cfg, err := config.Parse([]byte(`
audio:
  sample_rate: 44100
  frame_samples: 512
response:
  provider: openai
  api_key: sk-test
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	err = cfg.Validate()
	if err == nil {
		t.Fatal("expected validation errors")
	}
	for _, want := range []string{"audio.sample_rate must be 16000", "audio.frame_samples must be 1024"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("validation error missing %q: %v", want, err)
		}
	}

	cfg.Audio.SampleRate = 16000
	cfg.Audio.FrameSamples = 1024
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate with 16 kHz / 1024 samples: %v", err)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("log:\n  level: debug\n"), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "text" {
		t.Errorf("log: got %+v", cfg.Log)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
