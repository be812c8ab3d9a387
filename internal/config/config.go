package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Speech-to-Text transports
const (
	SpeechTransportREST = "rest"
	SpeechTransportGRPC = "grpc"
)

// Config holds all configuration for the voice assistant
type Config struct {
	// Control API configuration
	HTTPHost        string `envconfig:"HTTP_HOST" default:"127.0.0.1"`
	HTTPPort        string `envconfig:"HTTP_PORT" default:"8080"`
	KeyboardEnabled bool   `envconfig:"KEYBOARD_ENABLED" default:"true"` // Space bar triggers, q/Esc quits

	// Google API key shared by Speech-to-Text and Gemini (sent as ?key=)
	GoogleAPIKey string `envconfig:"GOOGLE_API_KEY" required:"true"`

	// Speech-to-Text configuration
	SpeechTransport    string `envconfig:"SPEECH_TRANSPORT" default:"rest"` // rest or grpc
	SpeechGRPCEndpoint string `envconfig:"SPEECH_GRPC_ENDPOINT" default:""` // Library default when empty
	SpeechAPIURL       string `envconfig:"SPEECH_API_URL" default:"https://speech.googleapis.com/v1/speech:recognize"`
	SpeechLanguage     string `envconfig:"SPEECH_LANGUAGE" default:"en-US"`
	SpeechModel        string `envconfig:"SPEECH_MODEL" default:"latest_short"`

	// Gemini configuration
	GeminiAPIURL string `envconfig:"GEMINI_API_URL" default:"https://generativelanguage.googleapis.com/v1beta"`
	GeminiModel  string `envconfig:"GEMINI_MODEL" default:"gemini-1.5-flash"`

	// Microphone capture configuration
	CaptureSampleRate int `envconfig:"CAPTURE_SAMPLE_RATE" default:"48000"` // Hz
	CaptureChannels   int `envconfig:"CAPTURE_CHANNELS" default:"1"`        // Mono
	CaptureFrameMs    int `envconfig:"CAPTURE_FRAME_MS" default:"20"`       // Opus frame duration

	// RMS level above which a captured frame counts as speech (diagnostics only)
	CaptureSpeechThreshold float64 `envconfig:"CAPTURE_SPEECH_THRESHOLD" default:"500"`

	// Speech output configuration
	TTSCommand string `envconfig:"TTS_COMMAND" default:""` // espeak on linux, say on darwin when empty
	TTSArgs    string `envconfig:"TTS_ARGS" default:""`    // Extra arguments placed before the text

	// Resilience configuration
	RequestTimeout             int `envconfig:"REQUEST_TIMEOUT_SECONDS" default:"0"`        // 0 disables the per-turn deadline
	RetryMaxAttempts           int `envconfig:"RETRY_MAX_ATTEMPTS" default:"1"`             // 1 means no retry
	RetryInitialBackoff        int `envconfig:"RETRY_INITIAL_BACKOFF" default:"200"`        // milliseconds
	CircuitBreakerMaxFailures  int `envconfig:"CIRCUIT_BREAKER_MAX_FAILURES" default:"5"`   // Failures before opening circuit
	CircuitBreakerResetTimeout int `envconfig:"CIRCUIT_BREAKER_RESET_TIMEOUT" default:"30"` // Seconds before attempting recovery

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`       // Log level: debug, info, warn, error
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"true"`      // Console output for terminal use
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"` // Enable Prometheus metrics
}

// Load reads configuration from environment variables
// It first attempts to load from .env file if it exists, then from environment
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load .env file
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks values envconfig cannot express
func (c *Config) Validate() error {
	if c.GoogleAPIKey == "" {
		return fmt.Errorf("GOOGLE_API_KEY is required")
	}
	if c.SpeechTransport != SpeechTransportREST && c.SpeechTransport != SpeechTransportGRPC {
		return fmt.Errorf("SPEECH_TRANSPORT must be %q or %q, got %q", SpeechTransportREST, SpeechTransportGRPC, c.SpeechTransport)
	}
	// Rates the Opus encoder accepts
	switch c.CaptureSampleRate {
	case 8000, 12000, 16000, 24000, 48000:
	default:
		return fmt.Errorf("CAPTURE_SAMPLE_RATE must be one of 8000, 12000, 16000, 24000, 48000, got %d", c.CaptureSampleRate)
	}
	if c.CaptureChannels != 1 && c.CaptureChannels != 2 {
		return fmt.Errorf("CAPTURE_CHANNELS must be 1 or 2, got %d", c.CaptureChannels)
	}
	switch c.CaptureFrameMs {
	case 10, 20, 40, 60:
	default:
		return fmt.Errorf("CAPTURE_FRAME_MS must be one of 10, 20, 40, 60, got %d", c.CaptureFrameMs)
	}
	if c.RetryMaxAttempts < 1 {
		return fmt.Errorf("RETRY_MAX_ATTEMPTS must be at least 1, got %d", c.RetryMaxAttempts)
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("REQUEST_TIMEOUT_SECONDS must not be negative, got %d", c.RequestTimeout)
	}
	return nil
}

// TurnTimeout is the deadline for one transcribe+respond pipeline, zero when unbounded
func (c *Config) TurnTimeout() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Second
}

// TTSArgList splits TTS_ARGS on whitespace
func (c *Config) TTSArgList() []string {
	return strings.Fields(c.TTSArgs)
}

