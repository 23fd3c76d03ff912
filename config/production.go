// Package config provides configuration management and environment variable handling for the application
package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ProductionConfig holds all configuration for production environment
type ProductionConfig struct {
	Database   DatabaseConfig   `json:"database"`
	Server     ServerConfig     `json:"server"`
	Security   SecurityConfig   `json:"security"`
	JWT        JWTConfig        `json:"jwt"`
	Logging    LoggingConfig    `json:"logging"`
	Metrics    MetricsConfig    `json:"metrics"`
	Cache      CacheConfig      `json:"cache"`
	Queue      QueueConfig      `json:"queue"`
	Payment    PaymentConfig    `json:"payment"`
	Alipay     AlipayConfig     `json:"alipay"`
	WechatPay  WechatPayConfig  `json:"wechat_pay"`
	Deployment DeploymentConfig `json:"deployment"`
}

type DatabaseConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	Name            string        `json:"name"`
	User            string        `json:"user"`
	Password        string        `json:"password"`
	SSLMode         string        `json:"ssl_mode"`
	MaxOpenConns    int           `json:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time"`
	SlowQueryTime   time.Duration `json:"slow_query_time"`
}

// DSN renders the libpq style connection string
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

type ServerConfig struct {
	Host              string        `json:"host"`
	Port              int           `json:"port"`
	ReadTimeout       time.Duration `json:"read_timeout"`
	WriteTimeout      time.Duration `json:"write_timeout"`
	IdleTimeout       time.Duration `json:"idle_timeout"`
	ShutdownTimeout   time.Duration `json:"shutdown_timeout"`
	BodyLimit         int           `json:"body_limit"`
	TrustedProxies    []string      `json:"trusted_proxies"`
	ProxyHeader       string        `json:"proxy_header"`
	EnableCompression bool          `json:"enable_compression"`
}

type SecurityConfig struct {
	// CORS
	AllowedOrigins   []string `json:"allowed_origins"`
	AllowedMethods   []string `json:"allowed_methods"`
	AllowedHeaders   []string `json:"allowed_headers"`
	AllowCredentials bool     `json:"allow_credentials"`
	CORSMaxAge       int      `json:"cors_max_age"`

	// Rate Limiting
	GlobalRateLimit   int           `json:"global_rate_limit"`   // requests per window
	CallbackRateLimit int           `json:"callback_rate_limit"` // gateway notifications per window
	RateLimitWindow   time.Duration `json:"rate_limit_window"`

	// Content Security
	XFrameOptions  string `json:"x_frame_options"`
	ReferrerPolicy string `json:"referrer_policy"`
}

type JWTConfig struct {
	SecretKey  string `json:"secret_key"`
	PrivateKey string `json:"private_key"` // RSA private key in PEM format, only needed to mint tokens
	PublicKey  string `json:"public_key"`  // RSA public key in PEM format
	UseRSAKeys bool   `json:"use_rsa_keys"`
	Issuer     string `json:"issuer"`
	Audience   string `json:"audience"`
}

type LoggingConfig struct {
	Level            string `json:"level"`  // debug, info, warn, error
	Format           string `json:"format"` // json, console
	Output           string `json:"output"` // stdout, file, both
	FilePath         string `json:"file_path"`
	MaxSize          int    `json:"max_size"` // MB
	MaxBackups       int    `json:"max_backups"`
	MaxAge           int    `json:"max_age"` // days
	Compress         bool   `json:"compress"`
	EnableCaller     bool   `json:"enable_caller"`
	EnableStacktrace bool   `json:"enable_stacktrace"`
	EnableAccessLog  bool   `json:"enable_access_log"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type CacheConfig struct {
	Enabled             bool          `json:"enabled"`
	RedisURL            string        `json:"redis_url"`
	RedisDB             int           `json:"redis_db"`
	RedisPrefix         string        `json:"redis_prefix"`
	DefaultTTL          time.Duration `json:"default_ttl"`
	HealthCheckInterval time.Duration `json:"health_check_interval"`
}

// QueueConfig configures the background reconciliation worker
type QueueConfig struct {
	Enabled        bool          `json:"enabled"`
	RedisURL       string        `json:"redis_url"`
	Concurrency    int           `json:"concurrency"`
	ReconcileDelay time.Duration `json:"reconcile_delay"`
	MaxRetry       int           `json:"max_retry"`
}

// PaymentConfig holds engine wide payment settings
type PaymentConfig struct {
	OrderTTL             time.Duration `json:"order_ttl"`
	ConfigEncryptionKey  string        `json:"-"` // base64, 32 bytes
	GatewayTimeout       time.Duration `json:"gateway_timeout"`
	GatewayRatePerSecond float64       `json:"gateway_rate_per_second"`
	GatewayBurst         int           `json:"gateway_burst"`
	GatewayRefundEnabled bool          `json:"gateway_refund_enabled"`
	CallbackLockTTL      time.Duration `json:"callback_lock_ttl"`
	ExportMaxRows        int           `json:"export_max_rows"`
}

// AlipayConfig holds env level defaults; rows in payment_configs override them
type AlipayConfig struct {
	AppID           string `json:"app_id"`
	PrivateKey      string `json:"-"`
	AlipayPublicKey string `json:"-"`
	MD5Key          string `json:"-"`
	SignType        string `json:"sign_type"`
	GatewayURL      string `json:"gateway_url"`
	NotifyURL       string `json:"notify_url"`
	ReturnURL       string `json:"return_url"`
}

// WechatPayConfig holds env level defaults; rows in payment_configs override them
type WechatPayConfig struct {
	AppID     string `json:"app_id"`
	MchID     string `json:"mch_id"`
	APIKey    string `json:"-"`
	SignType  string `json:"sign_type"`
	APIURL    string `json:"api_url"`
	NotifyURL string `json:"notify_url"`
}

type DeploymentConfig struct {
	Environment string `json:"environment"`
	Version     string `json:"version"`
	CommitHash  string `json:"commit_hash"`
	BuildTime   string `json:"build_time"`
}

// AsMap flattens the Alipay defaults into gateway credential keys
func (a AlipayConfig) AsMap() map[string]string {
	return map[string]string{
		"app_id":            a.AppID,
		"private_key":       a.PrivateKey,
		"alipay_public_key": a.AlipayPublicKey,
		"md5_key":           a.MD5Key,
		"sign_type":         a.SignType,
		"gateway_url":       a.GatewayURL,
		"notify_url":        a.NotifyURL,
		"return_url":        a.ReturnURL,
	}
}

// AsMap flattens the WeChat Pay defaults into gateway credential keys
func (w WechatPayConfig) AsMap() map[string]string {
	return map[string]string{
		"app_id":     w.AppID,
		"mch_id":     w.MchID,
		"api_key":    w.APIKey,
		"sign_type":  w.SignType,
		"api_url":    w.APIURL,
		"notify_url": w.NotifyURL,
	}
}

// LoadProductionConfig loads and validates configuration from environment variables
func LoadProductionConfig() (*ProductionConfig, error) {
	// Values already present in the environment win over .env
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	cfg := &ProductionConfig{
		Database: DatabaseConfig{
			Host:            getEnvString("DB_HOST", "localhost"),
			Port:            getEnvInt("DB_PORT", 5432),
			Name:            getEnvString("DB_NAME", "medipay"),
			User:            getEnvString("DB_USER", "postgres"),
			Password:        getEnvString("DB_PASSWORD", ""),
			SSLMode:         getEnvString("DB_SSL_MODE", "require"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 50),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 10),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getEnvDuration("DB_CONN_MAX_IDLE_TIME", 15*time.Minute),
			SlowQueryTime:   getEnvDuration("DB_SLOW_QUERY_TIME", 500*time.Millisecond),
		},
		Server: ServerConfig{
			Host:              getEnvString("SERVER_HOST", "0.0.0.0"),
			Port:              getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:       getEnvDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:      getEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:       getEnvDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
			ShutdownTimeout:   getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			BodyLimit:         getEnvInt("SERVER_BODY_LIMIT", 1024*1024), // 1MB
			TrustedProxies:    getEnvStringSlice("SERVER_TRUSTED_PROXIES", []string{"127.0.0.1"}),
			ProxyHeader:       getEnvString("SERVER_PROXY_HEADER", "X-Real-IP"),
			EnableCompression: getEnvBool("SERVER_ENABLE_COMPRESSION", true),
		},
		Security: SecurityConfig{
			AllowedOrigins:    getEnvStringSlice("CORS_ALLOWED_ORIGINS", []string{"https://medipay.example.com"}),
			AllowedMethods:    getEnvStringSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "OPTIONS"}),
			AllowedHeaders:    getEnvStringSlice("CORS_ALLOWED_HEADERS", []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"}),
			AllowCredentials:  getEnvBool("CORS_ALLOW_CREDENTIALS", true),
			CORSMaxAge:        getEnvInt("CORS_MAX_AGE", 86400),
			GlobalRateLimit:   getEnvInt("GLOBAL_RATE_LIMIT", 2000),
			CallbackRateLimit: getEnvInt("CALLBACK_RATE_LIMIT", 600),
			RateLimitWindow:   getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
			XFrameOptions:     getEnvString("X_FRAME_OPTIONS", "DENY"),
			ReferrerPolicy:    getEnvString("REFERRER_POLICY", "strict-origin-when-cross-origin"),
		},
		JWT: JWTConfig{
			SecretKey:  getEnvString("JWT_SECRET_KEY", ""),
			PrivateKey: getEnvString("JWT_PRIVATE_KEY", ""),
			PublicKey:  getEnvString("JWT_PUBLIC_KEY", ""),
			UseRSAKeys: getEnvBool("JWT_USE_RSA_KEYS", false),
			Issuer:     getEnvString("JWT_ISSUER", "telemed-identity"),
			Audience:   getEnvString("JWT_AUDIENCE", "telemed-api"),
		},
		Logging: LoggingConfig{
			Level:            getEnvString("LOG_LEVEL", "info"),
			Format:           getEnvString("LOG_FORMAT", "json"),
			Output:           getEnvString("LOG_OUTPUT", "stdout"),
			FilePath:         getEnvString("LOG_FILE_PATH", "/var/log/medipay/app.log"),
			MaxSize:          getEnvInt("LOG_MAX_SIZE", 100),
			MaxBackups:       getEnvInt("LOG_MAX_BACKUPS", 10),
			MaxAge:           getEnvInt("LOG_MAX_AGE", 30),
			Compress:         getEnvBool("LOG_COMPRESS", true),
			EnableCaller:     getEnvBool("LOG_ENABLE_CALLER", true),
			EnableStacktrace: getEnvBool("LOG_ENABLE_STACKTRACE", false),
			EnableAccessLog:  getEnvBool("LOG_ENABLE_ACCESS", true),
		},
		Metrics: MetricsConfig{
			Enabled: getEnvBool("METRICS_ENABLED", true),
			Path:    getEnvString("METRICS_PATH", "/metrics"),
		},
		Cache: CacheConfig{
			Enabled:             getEnvBool("CACHE_ENABLED", true),
			RedisURL:            getEnvString("CACHE_REDIS_URL", "redis://localhost:6379"),
			RedisDB:             getEnvInt("CACHE_REDIS_DB", 0),
			RedisPrefix:         getEnvString("CACHE_REDIS_PREFIX", "medipay:"),
			DefaultTTL:          getEnvDuration("CACHE_DEFAULT_TTL", 5*time.Minute),
			HealthCheckInterval: getEnvDuration("CACHE_HEALTH_CHECK_INTERVAL", 30*time.Second),
		},
		Queue: QueueConfig{
			Enabled:        getEnvBool("QUEUE_ENABLED", true),
			RedisURL:       getEnvString("QUEUE_REDIS_URL", "redis://localhost:6379/1"),
			Concurrency:    getEnvInt("QUEUE_CONCURRENCY", 5),
			ReconcileDelay: getEnvDuration("QUEUE_RECONCILE_DELAY", 15*time.Minute),
			MaxRetry:       getEnvInt("QUEUE_MAX_RETRY", 6),
		},
		Payment: PaymentConfig{
			OrderTTL:             getEnvDuration("PAYMENT_ORDER_TTL", 2*time.Hour),
			ConfigEncryptionKey:  getEnvString("PAYMENT_CONFIG_ENCRYPTION_KEY", ""),
			GatewayTimeout:       getEnvDuration("PAYMENT_GATEWAY_TIMEOUT", 15*time.Second),
			GatewayRatePerSecond: getEnvFloat("PAYMENT_GATEWAY_RATE_PER_SECOND", 20),
			GatewayBurst:         getEnvInt("PAYMENT_GATEWAY_BURST", 40),
			GatewayRefundEnabled: getEnvBool("PAYMENT_GATEWAY_REFUND_ENABLED", false),
			CallbackLockTTL:      getEnvDuration("PAYMENT_CALLBACK_LOCK_TTL", 30*time.Second),
			ExportMaxRows:        getEnvInt("PAYMENT_EXPORT_MAX_ROWS", 10000),
		},
		Alipay: AlipayConfig{
			AppID:           getEnvString("ALIPAY_APP_ID", ""),
			PrivateKey:      getEnvString("ALIPAY_PRIVATE_KEY", ""),
			AlipayPublicKey: getEnvString("ALIPAY_PUBLIC_KEY", ""),
			MD5Key:          getEnvString("ALIPAY_MD5_KEY", ""),
			SignType:        getEnvString("ALIPAY_SIGN_TYPE", "RSA2"),
			GatewayURL:      getEnvString("ALIPAY_GATEWAY_URL", "https://openapi.alipay.com/gateway.do"),
			NotifyURL:       getEnvString("ALIPAY_NOTIFY_URL", ""),
			ReturnURL:       getEnvString("ALIPAY_RETURN_URL", ""),
		},
		WechatPay: WechatPayConfig{
			AppID:     getEnvString("WECHAT_PAY_APP_ID", ""),
			MchID:     getEnvString("WECHAT_PAY_MCH_ID", ""),
			APIKey:    getEnvString("WECHAT_PAY_API_KEY", ""),
			SignType:  getEnvString("WECHAT_PAY_SIGN_TYPE", "MD5"),
			APIURL:    getEnvString("WECHAT_PAY_API_URL", "https://api.mch.weixin.qq.com"),
			NotifyURL: getEnvString("WECHAT_PAY_NOTIFY_URL", ""),
		},
		Deployment: DeploymentConfig{
			Environment: getEnvString("APP_ENV", "production"),
			Version:     getEnvString("VERSION", "1.0.0"),
			CommitHash:  getEnvString("COMMIT_HASH", "unknown"),
			BuildTime:   getEnvString("BUILD_TIME", "unknown"),
		},
	}

	// Validate the loaded configuration
	if err := ValidateProductionConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Helper functions for environment variable parsing
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var result []string
		for _, item := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(item); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}

// ValidateProductionConfig validates the production configuration
func ValidateProductionConfig(cfg *ProductionConfig) error {
	var problems []string

	// Database
	if cfg.Database.Host == "" {
		problems = append(problems, "DB_HOST is required")
	}
	if cfg.Database.Port <= 0 || cfg.Database.Port > 65535 {
		problems = append(problems, "DB_PORT must be between 1 and 65535")
	}
	if cfg.Database.Name == "" {
		problems = append(problems, "DB_NAME is required")
	}
	if cfg.Database.User == "" {
		problems = append(problems, "DB_USER is required")
	}
	if cfg.Database.Password == "" {
		problems = append(problems, "DB_PASSWORD is required")
	}

	// JWT
	if cfg.JWT.UseRSAKeys {
		if cfg.JWT.PublicKey == "" {
			problems = append(problems, "JWT_PUBLIC_KEY is required when JWT_USE_RSA_KEYS is set")
		}
	} else if len(cfg.JWT.SecretKey) < 32 {
		problems = append(problems, "JWT_SECRET_KEY must be at least 32 characters long")
	}

	// Server
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		problems = append(problems, "SERVER_PORT must be between 1 and 65535")
	}
	if cfg.Server.ReadTimeout <= 0 {
		problems = append(problems, "SERVER_READ_TIMEOUT must be positive")
	}
	if cfg.Server.WriteTimeout <= 0 {
		problems = append(problems, "SERVER_WRITE_TIMEOUT must be positive")
	}

	// Logging
	if cfg.Logging.Level != "" {
		validLevels := []string{"debug", "info", "warn", "error"}
		if !slices.Contains(validLevels, cfg.Logging.Level) {
			problems = append(problems, fmt.Sprintf("LOG_LEVEL must be one of: %v", validLevels))
		}
	}
	if cfg.Logging.Output != "stdout" && cfg.Logging.FilePath == "" {
		problems = append(problems, "LOG_FILE_PATH is required when logging to file")
	}

	// Cache and queue
	if cfg.Cache.Enabled && cfg.Cache.RedisURL == "" {
		problems = append(problems, "CACHE_REDIS_URL is required when cache is enabled")
	}
	if cfg.Queue.Enabled {
		if cfg.Queue.RedisURL == "" {
			problems = append(problems, "QUEUE_REDIS_URL is required when queue is enabled")
		}
		if cfg.Queue.Concurrency <= 0 {
			problems = append(problems, "QUEUE_CONCURRENCY must be positive")
		}
	}

	// Payment
	if cfg.Payment.OrderTTL <= 0 {
		problems = append(problems, "PAYMENT_ORDER_TTL must be positive")
	}
	if cfg.Payment.GatewayTimeout <= 0 {
		problems = append(problems, "PAYMENT_GATEWAY_TIMEOUT must be positive")
	}
	if cfg.Payment.ConfigEncryptionKey != "" {
		key, err := base64.StdEncoding.DecodeString(cfg.Payment.ConfigEncryptionKey)
		if err != nil || len(key) != 32 {
			problems = append(problems, "PAYMENT_CONFIG_ENCRYPTION_KEY must be base64 of exactly 32 bytes")
		}
	}
	if cfg.Alipay.SignType != "RSA2" && cfg.Alipay.SignType != "MD5" {
		problems = append(problems, "ALIPAY_SIGN_TYPE must be RSA2 or MD5")
	}
	if cfg.WechatPay.SignType != "MD5" && cfg.WechatPay.SignType != "HMAC-SHA256" {
		problems = append(problems, "WECHAT_PAY_SIGN_TYPE must be MD5 or HMAC-SHA256")
	}

	if len(problems) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(problems, "; "))
	}

	return nil
}
