package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	cli "github.com/spf13/pflag"
)

// Config aggregates every setting of the daemon.
type Config struct {
	Dir      string
	LogLevel string
	LogPath  string
	Proxy    string
	BusURL   string
	Socket   string
	Stdin    bool

	AssistantName  string
	TempDir        string
	AssetsDir      string
	TranscriptPath string

	Capture CaptureConfig
	Whisper WhisperConfig
	LLM     LLMConfig
	TTS     TTSConfig
}

type CaptureConfig struct {
	Path       string
	Duration   time.Duration
	SampleRate int
	CuePath    string
}

type WhisperConfig struct {
	ModelPath   string
	Language    string
	Temperature float32
	BeamSize    int
	Threads     int
	Denylist    []string
}

type LLMConfig struct {
	BaseURL   string
	APIKey    string
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

type TTSConfig struct {
	Engine     string // "google" or "espeak"
	Language   string
	Grace      time.Duration
	Duck       bool
	DuckFactor float64
}

// DefaultSocket is where the daemon listens for elisa-ctl commands.
const DefaultSocket = "/tmp/elisa.sock"

// DefaultDenylist holds words whisper tends to hallucinate on silence.
var DefaultDenylist = []string{"喝水", "thereel", "谢谢", "gracias", "thank you"}

// Load parses flags from args, loads the env file they point at and
// resolves every setting from flags, environment and defaults.
func Load(args []string) (*Config, error) {
	fs := cli.NewFlagSet("elisa", cli.ContinueOnError)
	envFile := fs.StringP("env", "e", ".env", "Env file path")
	dir := fs.StringP("dir", "d", "", "Working directory for audio, transcript and log files")
	logLevel := fs.StringP("log", "l", "debug", "Log level")
	proxyAddr := fs.StringP("proxy", "p", "", "Socks proxy address")
	busURL := fs.StringP("bus", "b", "", "Websocket url of the UI bus")
	model := fs.StringP("model", "m", "", "Whisper model path")
	socket := fs.StringP("socket", "s", "", "Control socket path")
	stdin := fs.Bool("stdin", false, "Read typed messages from stdin")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	// a missing env file is not an error
	_ = godotenv.Load(*envFile)

	base := firstNonEmpty(*dir, os.Getenv("ELISA_DIR"))
	if base == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("resolve executable: %w", err)
		}
		base = filepath.Dir(exe)
	}

	duration, err := parseDurationEnv("ELISA_RECORD_DURATION", 15*time.Second)
	if err != nil {
		return nil, err
	}
	timeout, err := parseDurationEnv("OLLAMA_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, err
	}
	grace, err := parseDurationEnv("ELISA_TTS_GRACE", 500*time.Millisecond)
	if err != nil {
		return nil, err
	}
	maxTokens, err := parseIntEnv("OLLAMA_MAX_TOKENS", 50)
	if err != nil {
		return nil, err
	}
	duck, err := parseBoolEnv("ELISA_DUCK", true)
	if err != nil {
		return nil, err
	}

	tempDir := filepath.Join(base, "temp_audio")
	assetsDir := filepath.Join(base, "assets")

	cfg := &Config{
		Dir:      base,
		LogLevel: strings.ToLower(*logLevel),
		LogPath:  filepath.Join(base, "asistente.log"),
		Proxy:    firstNonEmpty(*proxyAddr, os.Getenv("ELISA_PROXY")),
		BusURL:   firstNonEmpty(*busURL, os.Getenv("BUS_URL")),
		Socket:   firstNonEmpty(*socket, getEnvOrDefault("ELISA_SOCKET", DefaultSocket)),
		Stdin:    *stdin,

		AssistantName:  getEnvOrDefault("ELISA_NAME", "ELISA"),
		TempDir:        tempDir,
		AssetsDir:      assetsDir,
		TranscriptPath: filepath.Join(base, "conversacion.txt"),

		Capture: CaptureConfig{
			Path:       filepath.Join(tempDir, "grabacion.wav"),
			Duration:   duration,
			SampleRate: 44100,
			CuePath:    filepath.Join(assetsDir, "beep.mp3"),
		},
		Whisper: WhisperConfig{
			ModelPath:   firstNonEmpty(*model, getEnvOrDefault("WHISPER_MODEL", "models/ggml-small.bin")),
			Language:    "es",
			Temperature: 0.2,
			BeamSize:    5,
			Denylist:    parseListEnv("ELISA_DENYLIST", DefaultDenylist),
		},
		LLM: LLMConfig{
			BaseURL:   getEnvOrDefault("OLLAMA_URL", "http://localhost:11434/v1/"),
			APIKey:    getEnvOrDefault("OLLAMA_API_KEY", "ollama"),
			Model:     getEnvOrDefault("OLLAMA_MODEL", "mistral"),
			MaxTokens: maxTokens,
			Timeout:   timeout,
		},
		TTS: TTSConfig{
			Engine:     getEnvOrDefault("ELISA_TTS", "google"),
			Language:   "es",
			Grace:      grace,
			Duck:       duck,
			DuckFactor: 0.3,
		},
	}

	switch cfg.TTS.Engine {
	case "google", "espeak":
	default:
		return nil, fmt.Errorf("invalid ELISA_TTS value %q", cfg.TTS.Engine)
	}

	return cfg, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseIntEnv(key string, defaultValue int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	if val <= 0 {
		return 0, fmt.Errorf("invalid %s value %q: must be positive", key, raw)
	}
	return val, nil
}

// parseListEnv splits a comma separated variable. An empty entry list
// falls back to defaultValue.
func parseListEnv(key string, defaultValue []string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return append([]string(nil), defaultValue...)
	}

	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return append([]string(nil), defaultValue...)
	}
	return out
}
