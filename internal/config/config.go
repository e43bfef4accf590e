package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr    string
	LogLevel    string
	LogFormat   string
	CORSOrigins []string

	// Worker supervision.
	SynthesisWorkerCmd      string
	OCRWorkerCmd            string
	SynthesisCompleteOnExit bool
	OCRCompleteOnExit       bool
	WorkerOutputDir         string
	MaxWorkerProcesses      int
	KillGrace               time.Duration
	WorkerStderrLevel       string
	ShutdownTimeout         time.Duration

	// Transformation backend for the text pipeline.
	LLMBackend           string
	LLMExecCmd           string
	LLMTimeout           time.Duration
	LLMRequestsPerSecond float64
	LLMBurst             int
	OpenAIAPIKey         string
	OpenAIBaseURL        string
	OpenAIModel          string
	OpenAIInputPrice     float64
	OpenAIOutputPrice    float64
	PipelinePreset       string
	MaxPipelineInput     int64

	// Artifact storage.
	StorageMode      string
	S3Bucket         string
	S3Endpoint       string
	S3Region         string
	AWSAccessKey     string
	AWSSecretKey     string
	S3ForcePathStyle bool
	LocalStorageDir  string
	LocalStorageURL  string
	ArtifactURLTTL   time.Duration

	// Event mirror. An empty RedisURL disables it.
	RedisURL     string
	RedisChannel string

	SubmitRatePerMinute int
	StreamBuffer        int
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func mustInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
		slog.Warn("bad int env, using default", "key", key, "value", v)
	}
	return def
}

func mustFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err == nil {
			return f
		}
		slog.Warn("bad float env, using default", "key", key, "value", v)
	}
	return def
}

func getBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if v == "true" || v == "1" {
			return true
		}
		if v == "false" || v == "0" {
			return false
		}
		slog.Warn("bad bool env, using default", "key", key, "value", v)
	}
	return def
}

func mustDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err == nil {
			return d
		}
		slog.Warn("bad duration env, using default", "key", key, "value", v)
	}
	return def
}

func getList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func loadEnvFiles() {
	envFiles := []string{
		".env.local",
		".env",
	}

	// try to find .env files starting from current directory and going up
	currentDir, err := os.Getwd()
	if err != nil {
		slog.Debug("failed to get current directory", "error", err)
		return
	}

	// look in current directory and up to 3 parent directories
	searchDirs := []string{currentDir}
	for i := 0; i < 3; i++ {
		parent := filepath.Dir(currentDir)
		if parent == currentDir {
			break // reached root
		}
		searchDirs = append(searchDirs, parent)
		currentDir = parent
	}

	loadedAny := false
	for _, dir := range searchDirs {
		for _, envFile := range envFiles {
			envPath := filepath.Join(dir, envFile)
			if _, err := os.Stat(envPath); err == nil {
				if err := godotenv.Load(envPath); err == nil {
					slog.Debug("loaded environment file", "path", envPath)
					loadedAny = true
				} else {
					slog.Debug("failed to load environment file", "path", envPath, "error", err)
				}
			}
		}
		if loadedAny {
			break // stop searching once we find .env files in a directory
		}
	}

	if !loadedAny {
		slog.Debug("no .env files found, using system environment variables only")
	}
}

// Load reads .env files and the environment.
func Load() Config {
	loadEnvFiles()
	return FromEnv()
}

// FromEnv builds the config from the process environment only.
func FromEnv() Config {
	return Config{
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),
		LogLevel:    getenv("LOG_LEVEL", "info"),
		LogFormat:   getenv("LOG_FORMAT", "text"),
		CORSOrigins: getList("CORS_ALLOWED_ORIGINS", []string{"*"}),

		SynthesisWorkerCmd:      getenv("SYNTHESIS_WORKER_CMD", ""),
		OCRWorkerCmd:            getenv("OCR_WORKER_CMD", ""),
		SynthesisCompleteOnExit: getBool("SYNTHESIS_COMPLETE_ON_EXIT", true),
		OCRCompleteOnExit:       getBool("OCR_COMPLETE_ON_EXIT", false),
		WorkerOutputDir:         getenv("WORKER_OUTPUT_DIR", "./jobs"),
		MaxWorkerProcesses:      mustInt("MAX_WORKER_PROCESSES", 2),
		KillGrace:               mustDuration("WORKER_KILL_GRACE", 5*time.Second),
		WorkerStderrLevel:       getenv("WORKER_STDERR_LEVEL", "warn"),
		ShutdownTimeout:         mustDuration("SHUTDOWN_TIMEOUT", 15*time.Second),

		LLMBackend:           getenv("LLM_BACKEND", "openai"),
		LLMExecCmd:           getenv("LLM_EXEC_CMD", ""),
		LLMTimeout:           mustDuration("LLM_TIMEOUT", 2*time.Minute),
		LLMRequestsPerSecond: mustFloat("LLM_REQUESTS_PER_SECOND", 0),
		LLMBurst:             mustInt("LLM_BURST", 1),
		OpenAIAPIKey:         getenv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:        getenv("OPENAI_BASE_URL", ""),
		OpenAIModel:          getenv("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIInputPrice:     mustFloat("OPENAI_INPUT_PRICE_PER_MTOK", 0.15),
		OpenAIOutputPrice:    mustFloat("OPENAI_OUTPUT_PRICE_PER_MTOK", 0.60),
		PipelinePreset:       getenv("PIPELINE_PRESET", ""),
		MaxPipelineInput:     int64(mustInt("MAX_PIPELINE_INPUT_BYTES", 8<<20)),

		StorageMode:      getenv("STORAGE_MODE", "local"),
		S3Bucket:         getenv("S3_BUCKET", "narrator-artifacts"),
		S3Endpoint:       getenv("S3_ENDPOINT", "http://localhost:4566"),
		S3Region:         getenv("S3_REGION", "us-east-1"),
		AWSAccessKey:     getenv("AWS_ACCESS_KEY_ID", "test"),
		AWSSecretKey:     getenv("AWS_SECRET_ACCESS_KEY", "test"),
		S3ForcePathStyle: getBool("S3_FORCE_PATH_STYLE", true),
		LocalStorageDir:  getenv("LOCAL_STORAGE_DIR", "./artifacts"),
		LocalStorageURL:  getenv("LOCAL_STORAGE_URL", "http://localhost:8080/files"),
		ArtifactURLTTL:   mustDuration("ARTIFACT_URL_TTL", 24*time.Hour),

		RedisURL:     getenv("REDIS_URL", ""),
		RedisChannel: getenv("REDIS_CHANNEL", "narrator:events"),

		SubmitRatePerMinute: mustInt("SUBMIT_RATE_PER_MINUTE", 60),
		StreamBuffer:        mustInt("STREAM_BUFFER", 256),
	}
}

// SlogLevel maps LogLevel onto a slog level, defaulting to info.
func (c Config) SlogLevel() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return l
}
