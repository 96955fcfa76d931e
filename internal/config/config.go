package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config хранит все настройки приложения
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	OTP       OTPConfig
	Delivery  DeliveryConfig
	RateLimit RateLimitConfig
	JWT       JWTConfig
}

// ServerConfig содержит настройки HTTP сервера
type ServerConfig struct {
	Port         string
	ReadTimeout  int
	WriteTimeout int
}

// DatabaseConfig содержит настройки подключения к PostgreSQL
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig содержит унифицированные настройки подключения к Redis
// Поддерживает режимы: single, sentinel, cluster
type RedisConfig struct {
	Mode       string   `mapstructure:"mode"`
	Addrs      []string `mapstructure:"addrs"`
	Addr       string   `mapstructure:"addr"`
	Password   string   `mapstructure:"password"`
	DB         int      `mapstructure:"db"`
	MasterName string   `mapstructure:"master_name"`
}

// OTPConfig содержит настройки жизненного цикла одноразовых кодов.
//
// Secret and the TTL triple are security-relevant and have no defaults:
// Load fails closed when they are absent.
type OTPConfig struct {
	Secret             string `mapstructure:"secret"`
	TTLSeconds         int    `mapstructure:"ttl_seconds"`
	MinTTLSeconds      int    `mapstructure:"min_ttl_seconds"`
	MaxTTLSeconds      int    `mapstructure:"max_ttl_seconds"`
	MaxAttempts        int    `mapstructure:"max_attempts"`
	LockPollIntervalMs int    `mapstructure:"lock_poll_interval_ms"`
	LockPollAttempts   int    `mapstructure:"lock_poll_attempts"`
}

// TTL возвращает настроенный TTL, ограниченный диапазоном [MinTTL, MaxTTL]
func (o *OTPConfig) TTL() time.Duration {
	seconds := o.TTLSeconds
	if seconds < o.MinTTLSeconds {
		seconds = o.MinTTLSeconds
	}
	if seconds > o.MaxTTLSeconds {
		seconds = o.MaxTTLSeconds
	}
	return time.Duration(seconds) * time.Second
}

// LockPollInterval возвращает интервал опроса при конфликте блокировки
func (o *OTPConfig) LockPollInterval() time.Duration {
	if o.LockPollIntervalMs <= 0 {
		return 150 * time.Millisecond
	}
	return time.Duration(o.LockPollIntervalMs) * time.Millisecond
}

// DeliveryConfig содержит настройки каналов доставки
type DeliveryConfig struct {
	AckTimeoutSeconds int    `mapstructure:"ack_timeout_seconds"`
	SendRetries       int    `mapstructure:"send_retries"`
	BrandName         string `mapstructure:"brand_name"`

	ResendAPIKey string `mapstructure:"resend_api_key"`
	EmailFrom    string `mapstructure:"email_from"`

	SMSGatewayURL string `mapstructure:"sms_gateway_url"`
	SMSAPIKey     string `mapstructure:"sms_api_key"`
	SMSSenderID   string `mapstructure:"sms_sender_id"`
	SMSUserID     string `mapstructure:"sms_user_id"`
	SMSPassword   string `mapstructure:"sms_password"`

	WhatsAppGatewayURL string `mapstructure:"whatsapp_gateway_url"`
	WhatsAppToken      string `mapstructure:"whatsapp_token"`
	WhatsAppSender     string `mapstructure:"whatsapp_sender"`
}

// AckTimeout возвращает предельное время ожидания подтверждения отправки
func (d *DeliveryConfig) AckTimeout() time.Duration {
	if d.AckTimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(d.AckTimeoutSeconds) * time.Second
}

// RateLimitConfig содержит настройки ограничения частоты запросов
type RateLimitConfig struct {
	MaxRequests   int `mapstructure:"max_requests"`
	WindowSeconds int `mapstructure:"window_seconds"`
}

// Window возвращает окно подсчета запросов
func (r *RateLimitConfig) Window() time.Duration {
	if r.WindowSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(r.WindowSeconds) * time.Second
}

// JWTConfig содержит настройки step-up токенов
type JWTConfig struct {
	Secret           string `mapstructure:"secret"`
	StepUpTTLMinutes int    `mapstructure:"step_up_ttl_minutes"`
}

// StepUpTTL возвращает время жизни step-up токена
func (j *JWTConfig) StepUpTTL() time.Duration {
	if j.StepUpTTLMinutes <= 0 {
		return 10 * time.Minute
	}
	return time.Duration(j.StepUpTTLMinutes) * time.Minute
}

// PostgresConnectionString формирует строку подключения к PostgreSQL
func (d *DatabaseConfig) PostgresConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// Load загружает конфигурацию из файла и переменных окружения
func Load(configPath string) (*Config, error) {
	vip := viper.New() // Используем новый экземпляр Viper, чтобы избежать глобального состояния

	// Привязываем переменные окружения ЯВНО
	vip.BindEnv("server.port", "SERVER_PORT")
	vip.BindEnv("server.readtimeout", "SERVER_READTIMEOUT")
	vip.BindEnv("server.writetimeout", "SERVER_WRITETIMEOUT")

	vip.BindEnv("database.host", "DATABASE_HOST")
	vip.BindEnv("database.port", "DATABASE_PORT")
	vip.BindEnv("database.user", "DATABASE_USER")
	vip.BindEnv("database.password", "DATABASE_PASSWORD")
	vip.BindEnv("database.dbname", "DATABASE_DBNAME")
	vip.BindEnv("database.sslmode", "DATABASE_SSLMODE")

	vip.BindEnv("redis.mode", "REDIS_MODE")
	vip.BindEnv("redis.addrs", "REDIS_ADDRS")
	vip.BindEnv("redis.addr", "REDIS_ADDR")
	vip.BindEnv("redis.password", "REDIS_PASSWORD")
	vip.BindEnv("redis.db", "REDIS_DB")
	vip.BindEnv("redis.master_name", "REDIS_MASTER_NAME")

	vip.BindEnv("otp.secret", "OTP_SECRET")
	vip.BindEnv("otp.ttl_seconds", "OTP_TTL_SECONDS")
	vip.BindEnv("otp.min_ttl_seconds", "OTP_MIN_TTL_SECONDS")
	vip.BindEnv("otp.max_ttl_seconds", "OTP_MAX_TTL_SECONDS")
	vip.BindEnv("otp.max_attempts", "OTP_MAX_ATTEMPTS")
	vip.BindEnv("otp.lock_poll_interval_ms", "OTP_LOCK_POLL_INTERVAL_MS")
	vip.BindEnv("otp.lock_poll_attempts", "OTP_LOCK_POLL_ATTEMPTS")

	vip.BindEnv("delivery.ack_timeout_seconds", "DELIVERY_ACK_TIMEOUT_SECONDS")
	vip.BindEnv("delivery.send_retries", "DELIVERY_SEND_RETRIES")
	vip.BindEnv("delivery.brand_name", "DELIVERY_BRAND_NAME")
	vip.BindEnv("delivery.resend_api_key", "RESEND_API_KEY")
	vip.BindEnv("delivery.email_from", "EMAIL_FROM")
	vip.BindEnv("delivery.sms_gateway_url", "SMS_GATEWAY_URL")
	vip.BindEnv("delivery.sms_api_key", "SMS_API_KEY")
	vip.BindEnv("delivery.sms_sender_id", "SMS_SENDER_ID")
	vip.BindEnv("delivery.sms_user_id", "SMS_USER_ID")
	vip.BindEnv("delivery.sms_password", "SMS_PASSWORD")
	vip.BindEnv("delivery.whatsapp_gateway_url", "WHATSAPP_GATEWAY_URL")
	vip.BindEnv("delivery.whatsapp_token", "WHATSAPP_TOKEN")
	vip.BindEnv("delivery.whatsapp_sender", "WHATSAPP_SENDER")

	vip.BindEnv("ratelimit.max_requests", "RATELIMIT_MAX_REQUESTS")
	vip.BindEnv("ratelimit.window_seconds", "RATELIMIT_WINDOW_SECONDS")

	vip.BindEnv("jwt.secret", "JWT_SECRET")
	vip.BindEnv("jwt.step_up_ttl_minutes", "JWT_STEP_UP_TTL_MINUTES")

	// Путь к файлу конфигурации (не страшно, если его нет, т.к. есть BindEnv)
	if configPath != "" {
		vip.SetConfigFile(configPath)
		if err := vip.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); ok {
				log.Printf("Файл конфигурации '%s' не найден, используются переменные окружения/умолчания.", configPath)
			} else {
				log.Printf("Предупреждение: не удалось прочитать файл конфигурации '%s': %v", configPath, err)
			}
		}
	}

	var cfg Config
	if err := vip.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if os.Getenv("GIN_MODE") != "release" {
		log.Printf("--- Загруженные значения конфигурации ---")
		log.Printf("Database Host: %s", cfg.Database.Host)
		log.Printf("Database Name: %s", cfg.Database.DBName)
		log.Printf("Redis Addr: %s", cfg.Redis.Addr)
		log.Printf("OTP Secret Set: %t", cfg.OTP.Secret != "")
		log.Printf("OTP TTL Seconds: %d [%d..%d]", cfg.OTP.TTLSeconds, cfg.OTP.MinTTLSeconds, cfg.OTP.MaxTTLSeconds)
		log.Printf("Delivery Ack Timeout: %s", cfg.Delivery.AckTimeout())
		log.Printf("Server Port: %s", cfg.Server.Port)
		log.Printf("-----------------------------------------")
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// validate отклоняет конфигурацию с отсутствующими security-критичными
// значениями. Никаких молчаливых умолчаний для секретов и TTL.
func validate(cfg *Config) error {
	if cfg.Database.Host == "" || cfg.Database.DBName == "" || cfg.Database.User == "" {
		return fmt.Errorf("database configuration (host, dbname, user) is incomplete in config (check DATABASE_HOST, DATABASE_DBNAME, DATABASE_USER env vars)")
	}
	if cfg.OTP.Secret == "" {
		return fmt.Errorf("OTP hashing secret is required in config (check OTP_SECRET env var)")
	}
	if cfg.OTP.TTLSeconds <= 0 {
		return fmt.Errorf("OTP TTL is required in config (check OTP_TTL_SECONDS env var)")
	}
	if cfg.OTP.MinTTLSeconds <= 0 || cfg.OTP.MaxTTLSeconds <= 0 {
		return fmt.Errorf("OTP TTL bounds are required in config (check OTP_MIN_TTL_SECONDS, OTP_MAX_TTL_SECONDS env vars)")
	}
	if cfg.OTP.MinTTLSeconds > cfg.OTP.MaxTTLSeconds {
		return fmt.Errorf("OTP TTL bounds are inverted: min %d > max %d", cfg.OTP.MinTTLSeconds, cfg.OTP.MaxTTLSeconds)
	}
	if cfg.JWT.Secret == "" {
		return fmt.Errorf("JWT secret is required in config (check JWT_SECRET env var)")
	}
	return nil
}
