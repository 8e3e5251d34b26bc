package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config file location.
const ConfigPath = "config.yaml"

// Stale podcast policies.
const (
	StalePolicyLeave = "leave"
	StalePolicyFail  = "fail"
)

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port                     string        `yaml:"port"`
	LogLevel                 string        `yaml:"logLevel"`
	DatabaseURL              string        `yaml:"databaseURL"`
	SecretKey                string        `yaml:"secretKey"`
	Algorithm                string        `yaml:"algorithm"`
	AccessTokenExpireMinutes int           `yaml:"accessTokenExpireMinutes"`
	JWTLeeway                string        `yaml:"jwtLeeway"`
	APISecretKey             string        `yaml:"apiSecretKey"`
	RedisAddr                string        `yaml:"redisAddr"`
	RedisPassword            string        `yaml:"redisPassword"`
	CORSOrigins              []string      `yaml:"corsOrigins"`
	TrustedProxyCIDRs        []string      `yaml:"trustedProxyCidrs"`
	SignupRateLimitPerMinute int           `yaml:"signupRateLimitPerMinute"`
	LoginRateLimitPerMinute  int           `yaml:"loginRateLimitPerMinute"`
	MaxUploadBytes           int64         `yaml:"maxUploadBytes"`
	UploadConcurrency        int           `yaml:"uploadConcurrency"`
	IndexDir                 string        `yaml:"indexDir"`
	LLM                      LLMConfig     `yaml:"llm"`
	Podcast                  PodcastConfig `yaml:"podcast"`
	Minio                    MinioConfig   `yaml:"minio"`
}

// LLMConfig selects the chat and speech providers.
type LLMConfig struct {
	SmartLLM      string  `yaml:"smartLLM"`
	OpenAIAPIKey  string  `yaml:"openaiAPIKey"`
	OpenAIBaseURL string  `yaml:"openaiBaseURL"`
	OllamaURL     string  `yaml:"ollamaURL"`
	TTSModel      string  `yaml:"ttsModel"`
	Temperature   float64 `yaml:"temperature"`
}

// PodcastConfig controls audio storage and stale generation handling.
type PodcastConfig struct {
	Dir         string `yaml:"dir"`
	StalePolicy string `yaml:"stalePolicy"`
	StaleAfter  string `yaml:"staleAfter"`
}

// MinioConfig enables MinIO audio storage when Endpoint is set.
type MinioConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"useSSL"`
}

// Load reads config from path (defaults to config.yaml). A missing file is
// allowed; environment variables and defaults fill the gaps.
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return cfg, fmt.Errorf("read config: %w", err)
	}
	applyEnv(&cfg)
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *FileConfig) {
	setString := func(dst *string, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	setInt := func(dst *int, key string) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				*dst = n
			}
		}
	}
	setString(&cfg.Port, "PORT")
	setString(&cfg.LogLevel, "LOG_LEVEL")
	setString(&cfg.DatabaseURL, "DATABASE_URL")
	setString(&cfg.SecretKey, "SECRET_KEY")
	setString(&cfg.Algorithm, "ALGORITHM")
	setInt(&cfg.AccessTokenExpireMinutes, "ACCESS_TOKEN_EXPIRE_MINUTES")
	setString(&cfg.JWTLeeway, "JWT_LEEWAY")
	setString(&cfg.APISecretKey, "API_SECRET_KEY")
	setString(&cfg.RedisAddr, "REDIS_ADDR")
	setString(&cfg.RedisPassword, "REDIS_PASSWORD")
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		cfg.CORSOrigins = splitCSV(v)
	}
	if v := os.Getenv("TRUSTED_PROXY_CIDRS"); v != "" {
		cfg.TrustedProxyCIDRs = splitCSV(v)
	}
	setInt(&cfg.SignupRateLimitPerMinute, "SIGNUP_RATE_LIMIT_PER_MINUTE")
	setInt(&cfg.LoginRateLimitPerMinute, "LOGIN_RATE_LIMIT_PER_MINUTE")
	if v := os.Getenv("MAX_UPLOAD_BYTES"); v != "" {
		if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			cfg.MaxUploadBytes = n
		}
	}
	setInt(&cfg.UploadConcurrency, "UPLOAD_CONCURRENCY")
	setString(&cfg.IndexDir, "INDEX_DIR")

	setString(&cfg.LLM.SmartLLM, "SMART_LLM")
	setString(&cfg.LLM.OpenAIAPIKey, "OPENAI_API_KEY")
	setString(&cfg.LLM.OpenAIBaseURL, "OPENAI_BASE_URL")
	setString(&cfg.LLM.OllamaURL, "OLLAMA_URL")
	setString(&cfg.LLM.TTSModel, "TTS_MODEL")

	setString(&cfg.Podcast.Dir, "PODCAST_DIR")
	setString(&cfg.Podcast.StalePolicy, "PODCAST_STALE_POLICY")
	setString(&cfg.Podcast.StaleAfter, "PODCAST_STALE_AFTER")

	setString(&cfg.Minio.Endpoint, "MINIO_ENDPOINT")
	setString(&cfg.Minio.AccessKey, "MINIO_ACCESS_KEY")
	setString(&cfg.Minio.SecretKey, "MINIO_SECRET_KEY")
	setString(&cfg.Minio.Bucket, "MINIO_BUCKET")
	if v := os.Getenv("MINIO_USE_SSL"); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			cfg.Minio.UseSSL = b
		}
	}
}

func applyDefaults(cfg *FileConfig) {
	if cfg.Port == "" {
		cfg.Port = "8000"
	}
	if cfg.Algorithm == "" {
		cfg.Algorithm = "HS256"
	}
	if cfg.AccessTokenExpireMinutes == 0 {
		cfg.AccessTokenExpireMinutes = 720
	}
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"http://localhost:3000"}
	}
	if cfg.SignupRateLimitPerMinute == 0 {
		cfg.SignupRateLimitPerMinute = 10
	}
	if cfg.LoginRateLimitPerMinute == 0 {
		cfg.LoginRateLimitPerMinute = 20
	}
	if cfg.MaxUploadBytes == 0 {
		cfg.MaxUploadBytes = 50 << 20
	}
	if cfg.UploadConcurrency == 0 {
		cfg.UploadConcurrency = 4
	}
	if cfg.IndexDir == "" {
		cfg.IndexDir = "index"
	}
	if cfg.LLM.OllamaURL == "" {
		cfg.LLM.OllamaURL = "http://localhost:11434"
	}
	if cfg.Podcast.Dir == "" {
		cfg.Podcast.Dir = "podcasts"
	}
	if cfg.Podcast.StalePolicy == "" {
		cfg.Podcast.StalePolicy = StalePolicyLeave
	}
	if cfg.Podcast.StaleAfter == "" {
		cfg.Podcast.StaleAfter = "30m"
	}
	if cfg.Minio.Bucket == "" {
		cfg.Minio.Bucket = "surfsense-podcasts"
	}
}

func validateConfig(cfg FileConfig) error {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		return errors.New("config: databaseURL is required (set in config.yaml or DATABASE_URL)")
	}
	if strings.TrimSpace(cfg.SecretKey) == "" {
		return errors.New("config: secretKey is required (set in config.yaml or SECRET_KEY)")
	}
	if strings.TrimSpace(cfg.APISecretKey) == "" {
		return errors.New("config: apiSecretKey is required (set in config.yaml or API_SECRET_KEY)")
	}
	switch cfg.Algorithm {
	case "HS256", "HS384", "HS512":
	default:
		return fmt.Errorf("config: unsupported algorithm %q", cfg.Algorithm)
	}
	if cfg.AccessTokenExpireMinutes < 0 {
		return errors.New("config: accessTokenExpireMinutes must be positive")
	}
	if strings.TrimSpace(cfg.LLM.SmartLLM) == "" {
		return errors.New("config: llm.smartLLM is required (set in config.yaml or SMART_LLM)")
	}
	if !strings.HasPrefix(cfg.LLM.SmartLLM, "ollama:") && strings.TrimSpace(cfg.LLM.OpenAIAPIKey) == "" {
		return errors.New("config: OPENAI_API_KEY is required for remote models")
	}
	if cfg.SignupRateLimitPerMinute < 0 || cfg.LoginRateLimitPerMinute < 0 {
		return errors.New("config: rate limits must be >= 0")
	}
	if cfg.UploadConcurrency < 0 {
		return errors.New("config: uploadConcurrency must be >= 0")
	}
	switch cfg.Podcast.StalePolicy {
	case StalePolicyLeave, StalePolicyFail:
	default:
		return fmt.Errorf("config: podcast.stalePolicy must be %q or %q", StalePolicyLeave, StalePolicyFail)
	}
	if _, err := time.ParseDuration(cfg.Podcast.StaleAfter); err != nil {
		return fmt.Errorf("config: invalid podcast.staleAfter: %w", err)
	}
	if _, err := ParseJWTLeeway(cfg.JWTLeeway); err != nil {
		return err
	}
	return nil
}

// TokenTTL returns the access token lifetime.
func (c FileConfig) TokenTTL() time.Duration {
	return time.Duration(c.AccessTokenExpireMinutes) * time.Minute
}

// StaleAfter returns the parsed stale threshold.
func (c FileConfig) StaleAfter() time.Duration {
	d, _ := time.ParseDuration(c.Podcast.StaleAfter)
	return d
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}

// ParseJWTLeeway parses optional JWT leeway duration string.
func ParseJWTLeeway(leewayStr string) (time.Duration, error) {
	if leewayStr == "" {
		return 0, nil
	}
	dur, err := time.ParseDuration(leewayStr)
	if err != nil {
		return 0, fmt.Errorf("invalid jwtLeeway duration: %w", err)
	}
	return dur, nil
}
