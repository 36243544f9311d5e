package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config アプリケーション全体の設定
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Kafka         KafkaConfig
	JWT           JWTConfig
	AdminAPI      AdminAPIConfig
	OpenTelemetry OpenTelemetryConfig
	Mpesa         MpesaConfig
	Environment   string
}

// ServerConfig サーバー設定
type ServerConfig struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	AllowOrigins []string
	// TrustedProxies X-Forwarded-Forを信頼するプロキシ（IPまたはCIDR）
	TrustedProxies []string
}

// DatabaseConfig データベース設定
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// RedisConfig Redis設定（M-Pesaアクセストークンの共有キャッシュ）
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	Enabled  bool
}

// KafkaConfig Kafka設定（決済結果イベントの発行先）
type KafkaConfig struct {
	Brokers []string
	Topic   string
	Enabled bool
	// BatchTimeout 1件でも送信するまでの待ち時間（kafka-goの既定は1秒）
	BatchTimeout time.Duration
	// PublishTimeout 1イベントの発行を待つ上限
	PublishTimeout time.Duration
}

// JWTConfig JWT設定
type JWTConfig struct {
	Secret     string
	Expiration time.Duration
	Issuer     string
}

// AdminAPIConfig 管理API設定
type AdminAPIConfig struct {
	Enabled    bool
	APIKey     string
	AllowedIPs []string
}

// OpenTelemetryConfig OpenTelemetry設定
type OpenTelemetryConfig struct {
	Enabled         bool
	ServiceName     string
	ServiceVersion  string
	OTLPEndpoint    string
	OTLPInsecure    bool
	TraceExporter   string // "otlp", "stdout"
	MetricsExporter string // "otlp", "prometheus", "stdout"
}

// MpesaEnvironment M-Pesa (Daraja) の接続先環境
type MpesaEnvironment string

const (
	MpesaEnvironmentSandbox    MpesaEnvironment = "sandbox"
	MpesaEnvironmentProduction MpesaEnvironment = "production"
)

const (
	mpesaSandboxBaseURL    = "https://sandbox.safaricom.co.ke"
	mpesaProductionBaseURL = "https://api.safaricom.co.ke"
)

// ErrMpesaConfigIncomplete M-Pesa設定の不足エラー
var ErrMpesaConfigIncomplete = errors.New("M-Pesa configuration incomplete")

// MpesaConfig M-Pesa設定
type MpesaConfig struct {
	ConsumerKey       string
	ConsumerSecret    string
	Shortcode         string
	Passkey           string
	CallbackURL       string
	Environment       MpesaEnvironment
	Timezone          string
	RequestTimeout    time.Duration
	TokenCacheEnabled bool
	// BaseURLOverride テストやモックサーバー向けにベースURLを差し替える
	BaseURLOverride string
	// CallbackToken コールバックURLのtokenクエリに付与し、受信時に照合する共有シークレット
	CallbackToken string
}

// Load 設定を読み込む
func Load() (*Config, error) {
	// .envファイルを読み込む（存在しない場合は無視）
	_ = godotenv.Load()

	env := getEnv("ENVIRONMENT", "development")

	cfg := &Config{
		Environment: env,
		Server: ServerConfig{
			Port:         getEnvAsInt("SERVER_PORT", 8080),
			ReadTimeout:  getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:  getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			AllowOrigins: getEnvAsSlice("SERVER_ALLOW_ORIGINS", []string{"*"}),

			TrustedProxies: getEnvAsSlice("SERVER_TRUSTED_PROXIES", nil),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvAsInt("DB_PORT", 3306),
			User:            getEnv("DB_USER", "root"),
			Password:        getEnv("DB_PASSWORD", ""),
			Database:        getEnv("DB_NAME", "tip_db"),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			ConnMaxIdleTime: getEnvAsDuration("DB_CONN_MAX_IDLE_TIME", 10*time.Minute),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvAsInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
		},
		Kafka: KafkaConfig{
			Brokers: getEnvAsSlice("KAFKA_BROKERS", []string{"localhost:9092"}),
			Topic:   getEnv("KAFKA_TOPIC", "mpesa.payment.outcome"),
			Enabled: getEnvAsBool("KAFKA_ENABLED", false),

			BatchTimeout:   getEnvAsDuration("KAFKA_BATCH_TIMEOUT", 10*time.Millisecond),
			PublishTimeout: getEnvAsDuration("KAFKA_PUBLISH_TIMEOUT", 2*time.Second),
		},
		JWT: JWTConfig{
			Secret:     getEnv("JWT_SECRET", ""),
			Expiration: getEnvAsDuration("JWT_EXPIRATION", 24*time.Hour),
			Issuer:     getEnv("JWT_ISSUER", "tip-server"),
		},
		AdminAPI: AdminAPIConfig{
			Enabled:    getEnvAsBool("ADMIN_API_ENABLED", false),
			APIKey:     getEnv("ADMIN_API_KEY", ""),
			AllowedIPs: getEnvAsSlice("ADMIN_ALLOWED_IPS", nil),
		},
		OpenTelemetry: OpenTelemetryConfig{
			Enabled:         getEnvAsBool("OTEL_ENABLED", true),
			ServiceName:     getEnv("OTEL_SERVICE_NAME", "tip-server"),
			ServiceVersion:  getEnv("OTEL_SERVICE_VERSION", "1.0.0"),
			OTLPEndpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
			OTLPInsecure:    getEnvAsBool("OTEL_EXPORTER_OTLP_INSECURE", true),
			TraceExporter:   getEnv("OTEL_TRACES_EXPORTER", "otlp"),
			MetricsExporter: getEnv("OTEL_METRICS_EXPORTER", "prometheus"),
		},
		Mpesa: MpesaConfig{
			ConsumerKey:       getEnv("MPESA_CONSUMER_KEY", ""),
			ConsumerSecret:    getEnv("MPESA_CONSUMER_SECRET", ""),
			Shortcode:         getEnv("MPESA_SHORTCODE", ""),
			Passkey:           getEnv("MPESA_PASSKEY", ""),
			CallbackURL:       getEnv("MPESA_CALLBACK_URL", ""),
			Environment:       parseMpesaEnvironment(getEnv("MPESA_ENVIRONMENT", string(MpesaEnvironmentSandbox))),
			Timezone:          getEnv("MPESA_TIMEZONE", ""),
			RequestTimeout:    getEnvAsDuration("MPESA_REQUEST_TIMEOUT", 30*time.Second),
			TokenCacheEnabled: getEnvAsBool("MPESA_TOKEN_CACHE_ENABLED", true),
			BaseURLOverride:   getEnv("MPESA_BASE_URL", ""),
			CallbackToken:     getEnv("MPESA_CALLBACK_TOKEN", ""),
		},
	}

	// 必須設定の検証
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate 設定の検証
// M-Pesa設定の不足は起動を止めない（リクエスト時に500で通知する）
func (c *Config) validate() error {
	if c.Database.Host == "" {
		return fmt.Errorf("DB_HOST is required")
	}
	if c.Database.Database == "" {
		return fmt.Errorf("DB_NAME is required")
	}
	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.AdminAPI.Enabled && c.AdminAPI.APIKey == "" {
		return fmt.Errorf("ADMIN_API_KEY is required when ADMIN_API_ENABLED is true")
	}
	for _, proxy := range c.Server.TrustedProxies {
		if !isIPOrCIDR(proxy) {
			return fmt.Errorf("SERVER_TRUSTED_PROXIES must be IPs or CIDRs: %s", proxy)
		}
	}
	switch c.Mpesa.Environment {
	case MpesaEnvironmentSandbox, MpesaEnvironmentProduction:
	default:
		return fmt.Errorf("MPESA_ENVIRONMENT must be sandbox or production: %s", c.Mpesa.Environment)
	}
	if _, err := c.Mpesa.Location(); err != nil {
		return fmt.Errorf("MPESA_TIMEZONE is invalid: %w", err)
	}
	return nil
}

// Validate STK Pushに必要な設定が揃っているかを検証
func (c *MpesaConfig) Validate() error {
	var missing []string
	if c.Shortcode == "" {
		missing = append(missing, "MPESA_SHORTCODE")
	}
	if c.Passkey == "" {
		missing = append(missing, "MPESA_PASSKEY")
	}
	if c.CallbackURL == "" {
		missing = append(missing, "MPESA_CALLBACK_URL")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMpesaConfigIncomplete, strings.Join(missing, ", "))
	}
	return nil
}

// HasCredentials Consumer Key/Secretが設定されているかを返す
func (c *MpesaConfig) HasCredentials() bool {
	return c.ConsumerKey != "" && c.ConsumerSecret != ""
}

// BaseURL 環境に応じたDaraja APIのベースURLを返す
func (c *MpesaConfig) BaseURL() string {
	if c.BaseURLOverride != "" {
		return strings.TrimRight(c.BaseURLOverride, "/")
	}
	if c.Environment == MpesaEnvironmentProduction {
		return mpesaProductionBaseURL
	}
	return mpesaSandboxBaseURL
}

// CallbackQueryToken コールバックURLに付与するクエリパラメータ名
const CallbackQueryToken = "token"

// CallbackURLWithToken CallbackTokenをクエリに付与したコールバックURLを返す
func (c *MpesaConfig) CallbackURLWithToken() string {
	if c.CallbackToken == "" {
		return c.CallbackURL
	}
	u, err := url.Parse(c.CallbackURL)
	if err != nil {
		return c.CallbackURL
	}
	q := u.Query()
	q.Set(CallbackQueryToken, c.CallbackToken)
	u.RawQuery = q.Encode()
	return u.String()
}

func isIPOrCIDR(v string) bool {
	if _, _, err := net.ParseCIDR(v); err == nil {
		return true
	}
	return net.ParseIP(v) != nil
}

// parseMpesaEnvironment 大文字小文字と前後の空白を無視して環境名を正規化
func parseMpesaEnvironment(v string) MpesaEnvironment {
	return MpesaEnvironment(strings.ToLower(strings.TrimSpace(v)))
}

// Location タイムスタンプ生成に使うタイムゾーンを返す
func (c *MpesaConfig) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}

// DSN データベース接続文字列を返す
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.User,
		c.Password,
		c.Host,
		c.Port,
		c.Database,
	)
}

// Address Redis接続アドレスを返す
func (c *RedisConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// getEnv 環境変数を取得（デフォルト値付き）
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt 環境変数を整数として取得
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool 環境変数を真偽値として取得
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration 環境変数を時間として取得
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsSlice カンマ区切りの環境変数をスライスとして取得
func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	var values []string
	for _, v := range strings.Split(valueStr, ",") {
		if v = strings.TrimSpace(v); v != "" {
			values = append(values, v)
		}
	}
	return values
}
