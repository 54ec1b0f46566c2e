package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
}

type MQConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type JWTConfig struct {
	Secret string `yaml:"secret"`
}

type ServerConfig struct {
	Port string `yaml:"port"`
}

// LLMConfig configures the optional external analysis service.
// Disabled when BaseURL is empty.
type LLMConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// Weights is the explicit confidence weight table handed to the
// confidence calculator. Kept in config so threshold boundaries can be
// exercised precisely in tests instead of hiding constants in code.
type Weights struct {
	ActionRequired  float64 `yaml:"action_required"`
	Urgency         float64 `yaml:"urgency"`
	Request         float64 `yaml:"request"`
	FYI             float64 `yaml:"fyi"`
	AutomatedSender float64 `yaml:"automated_sender"`
	KeywordCap      float64 `yaml:"keyword_cap"`
	Deadline        float64 `yaml:"deadline"`
	KnownSender     float64 `yaml:"known_sender"`
	ReplyInThread   float64 `yaml:"reply_in_thread"`
	LLMAgreement    float64 `yaml:"llm_agreement"`
}

// EngineConfig controls decision routing and the rule snapshot loop.
type EngineConfig struct {
	AutoApprove          bool          `yaml:"auto_approve"`
	AutoApproveThreshold float64       `yaml:"auto_approve_threshold"`
	IgnoreThreshold      float64       `yaml:"ignore_threshold"`
	KnownSenderMin       int           `yaml:"known_sender_min"`
	SnapshotRefresh      time.Duration `yaml:"snapshot_refresh"`
	MaxExecutionRetries  int           `yaml:"max_execution_retries"`
	Weights              Weights       `yaml:"weights"`
}

type Config struct {
	DB     DBConfig     `yaml:"db"`
	MQ     MQConfig     `yaml:"mq"`
	Redis  RedisConfig  `yaml:"redis"`
	JWT    JWTConfig    `yaml:"jwt"`
	Server ServerConfig `yaml:"server"`
	LLM    LLMConfig    `yaml:"llm"`
	Engine EngineConfig `yaml:"engine"`
}

func Load() *Config {
	f, err := os.Open("config.yaml")
	if err != nil {
		log.Fatalf("failed to open config.yaml: %v", err)
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		log.Fatalf("failed to decode config.yaml: %v", err)
	}

	applyEngineDefaults(&cfg.Engine)

	// 环境变量覆盖（生产环境使用）
	overrideFromEnv(&cfg)

	return &cfg
}

// DefaultWeights mirrors the shipped config.yaml weight table.
func DefaultWeights() Weights {
	return Weights{
		ActionRequired:  0.35,
		Urgency:         0.30,
		Request:         0.15,
		FYI:             0.20,
		AutomatedSender: 0.35,
		KeywordCap:      0.50,
		Deadline:        0.20,
		KnownSender:     0.10,
		ReplyInThread:   0.10,
		LLMAgreement:    0.10,
	}
}

func applyEngineDefaults(cfg *EngineConfig) {
	if cfg.AutoApproveThreshold == 0 {
		cfg.AutoApproveThreshold = 0.9
	}
	if cfg.IgnoreThreshold == 0 {
		cfg.IgnoreThreshold = 0.3
	}
	if cfg.KnownSenderMin == 0 {
		cfg.KnownSenderMin = 3
	}
	if cfg.SnapshotRefresh == 0 {
		cfg.SnapshotRefresh = 30 * time.Second
	}
	if cfg.MaxExecutionRetries == 0 {
		cfg.MaxExecutionRetries = 3
	}
	if cfg.Weights == (Weights{}) {
		cfg.Weights = DefaultWeights()
	}
}

func overrideFromEnv(cfg *Config) {
	// DB配置
	if host := os.Getenv("DB_HOST"); host != "" {
		cfg.DB.Host = host
	}
	if port := os.Getenv("DB_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.DB.Port = p
		}
	}
	if user := os.Getenv("DB_USER"); user != "" {
		cfg.DB.User = user
	}
	if password := os.Getenv("DB_PASSWORD"); password != "" {
		cfg.DB.Password = password
	}
	if name := os.Getenv("DB_NAME"); name != "" {
		cfg.DB.Name = name
	}

	// MQ配置
	if url := os.Getenv("MQ_URL"); url != "" {
		cfg.MQ.URL = url
	}

	// Redis配置
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		cfg.Redis.Password = password
	}

	// JWT配置
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		cfg.JWT.Secret = secret
	}

	// Server配置
	if port := os.Getenv("SERVER_PORT"); port != "" {
		cfg.Server.Port = port
	}

	// LLM配置
	if url := os.Getenv("LLM_BASE_URL"); url != "" {
		cfg.LLM.BaseURL = url
	}

	// Engine配置
	if v := os.Getenv("ENGINE_AUTO_APPROVE"); v != "" {
		cfg.Engine.AutoApprove = v == "true" || v == "1"
	}
	if v := os.Getenv("ENGINE_IGNORE_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Engine.IgnoreThreshold = f
		}
	}
}
