// Package speech wraps speech-to-text and text-to-speech providers.
package speech

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/ziadkadry99/docqa/internal/config"
)

var (
	ErrEmptyAudio = errors.New("audio is empty")
	ErrEmptyText  = errors.New("text is empty")
)

// Recognizer turns audio into text. Audio with no speech yields "" and no
// error.
type Recognizer interface {
	Recognize(ctx context.Context, audio io.Reader, filename string) (string, error)
}

// Synthesizer turns text into mp3 audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// OpenAI implements both interfaces with the OpenAI audio endpoints.
type OpenAI struct {
	client   *openai.Client
	sttModel string
	ttsModel string
	voice    string
	logger   *zap.Logger
}

// NewOpenAI creates a speech client. cfg.BaseURL, when set, selects an
// OpenAI-compatible endpoint.
func NewOpenAI(apiKey string, cfg config.SpeechConfig, logger *zap.Logger) *OpenAI {
	clientCfg := openai.DefaultConfig(apiKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &OpenAI{
		client:   openai.NewClientWithConfig(clientCfg),
		sttModel: cfg.STTModel,
		ttsModel: cfg.TTSModel,
		voice:    cfg.Voice,
		logger:   logger,
	}
	if s.sttModel == "" {
		s.sttModel = openai.Whisper1
	}
	if s.ttsModel == "" {
		s.ttsModel = string(openai.TTSModel1)
	}
	if s.voice == "" {
		s.voice = string(openai.VoiceAlloy)
	}
	return s
}

// NewFromConfig reads the key from OPENAI_API_KEY.
func NewFromConfig(cfg config.SpeechConfig, logger *zap.Logger) (*OpenAI, error) {
	name := config.APIKeyEnvVar(config.ProviderOpenAI)
	key := os.Getenv(name)
	if key == "" {
		return nil, fmt.Errorf("%s environment variable is not set", name)
	}
	return NewOpenAI(key, cfg, logger), nil
}

func (s *OpenAI) Recognize(ctx context.Context, audio io.Reader, filename string) (string, error) {
	if audio == nil {
		return "", ErrEmptyAudio
	}
	if filename == "" {
		filename = "audio.wav"
	}

	resp, err := s.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    s.sttModel,
		FilePath: filename,
		Reader:   audio,
	})
	if err != nil {
		return "", fmt.Errorf("transcribing %s: %w", filename, err)
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		s.logger.Info("no speech recognized", zap.String("file", filename))
	}
	return text, nil
}

func (s *OpenAI) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}

	resp, err := s.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(s.ttsModel),
		Input:          text,
		Voice:          openai.SpeechVoice(s.voice),
		ResponseFormat: openai.SpeechResponseFormatMp3,
	})
	if err != nil {
		return nil, fmt.Errorf("synthesizing speech: %w", err)
	}
	defer resp.Close()

	audio, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("reading synthesized audio: %w", err)
	}
	s.logger.Debug("speech synthesized", zap.Int("chars", len(text)), zap.Int("bytes", len(audio)))
	return audio, nil
}
