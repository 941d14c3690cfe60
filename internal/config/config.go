package config

import (
	"bufio"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Service identity
	ServiceName string

	// NATS Configuration (empty NatsURL selects the in-process dispatcher)
	NatsURL               string
	Stream                string
	Subject               string
	Durable               string
	EventPrefix           string
	SubmitSubject         string
	MaxMsgs               int
	MaxAge                time.Duration
	AckWait               time.Duration
	MaxDeliver            int
	MonitoringTopic       string
	BackpressureThreshold int

	// Worker Configuration
	Concurrency int
	QueueSize   int

	// HTTP Configuration
	HTTPAddr string

	// LLM Configuration
	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string
	LLMTimeout    time.Duration

	// Script Configuration
	PythonBin     string
	ScriptTimeout time.Duration

	// Data Directory Configuration
	DataDir  string
	RulesDir string

	// Database Configuration
	DBPath string
}

func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := loadDotEnv(envFile); err != nil {
			slog.Warn("Could not load env file", "file", envFile, "error", err)
		} else {
			slog.Info("Environment loaded", "file", envFile)
		}
	}

	dataDir := getEnv("DATA_DIR", "data")

	return &Config{
		ServiceName:           getEnv("SERVICE_NAME", "mmss"),
		NatsURL:               getEnv("NATS_URL", ""),
		Stream:                getEnv("STREAM_NAME", "MMSS_TASKS"),
		Subject:               getEnv("SUBJECT", "mmss.tasks.execute"),
		Durable:               getEnv("QUEUE_DURABLE", "mmss-wq"),
		EventPrefix:           getEnv("EVENT_PREFIX", "mmss.tasks.events"),
		SubmitSubject:         getEnv("SUBMIT_SUBJECT", "mmss.tasks.submit"),
		MaxMsgs:               getEnvInt("QUEUE_MAX_MSGS", 2000),
		MaxAge:                getEnvDuration("QUEUE_MAX_AGE", "10m"),
		AckWait:               getEnvDuration("ACK_WAIT", "60s"),
		MaxDeliver:            getEnvInt("MAX_DELIVER", 5),
		MonitoringTopic:       getEnv("MONITORING_TOPIC", "mmss.monitoring.backpressure"),
		BackpressureThreshold: getEnvInt("BACKPRESSURE_THRESHOLD", 16),
		Concurrency:           getEnvInt("WORKER_CONCURRENCY", 2),
		QueueSize:             getEnvInt("QUEUE_SIZE", 256),
		HTTPAddr:              getEnv("HTTP_ADDR", ":8080"),
		OpenAIAPIKey:          getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:         getEnv("OPENAI_BASE_URL", ""),
		OpenAIModel:           getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		LLMTimeout:            getEnvDuration("LLM_TIMEOUT", "60s"),
		PythonBin:             getEnv("PYTHON_BIN", ""),
		ScriptTimeout:         getEnvDuration("SCRIPT_TIMEOUT", "30s"),
		DataDir:               dataDir,
		RulesDir:              getEnv("RULES_DIR", dataDir+"/rules"),
		DBPath:                getEnv("DB_PATH", dataDir+"/mmss.sqlite"),
	}, nil
}

// NATSEnabled reports whether tasks are dispatched through JetStream
func (c *Config) NATSEnabled() bool {
	return c.NatsURL != ""
}

func loadDotEnv(filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) == 2 {
			key := strings.TrimSpace(parts[0])
			value := strings.Trim(strings.TrimSpace(parts[1]), `"'`)
			os.Setenv(key, value)
		}
	}
	return scanner.Err()
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvDuration(key, defaultVal string) time.Duration {
	val := getEnv(key, defaultVal)
	if d, err := time.ParseDuration(val); err == nil {
		return d
	}
	d, _ := time.ParseDuration(defaultVal)
	return d
}
