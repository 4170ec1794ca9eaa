// Package config загружает конфигурацию сервиса из переменных окружения.
// Используется envconfig для маппинга переменных окружения на поля структуры;
// локально переменные можно положить в .env (подхватывается через godotenv).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config содержит ВСЕ настройки приложения.
type Config struct {
	// --- Database ---
	// Дефолт "postgres" — имя сервиса в docker-compose, для локалки переопределяй DB_HOST=localhost.
	DBHost     string `envconfig:"DB_HOST" default:"postgres"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" default:"rewards"`
	DBPassword string `envconfig:"DB_PASSWORD" required:"true"`
	DBName     string `envconfig:"DB_NAME" default:"waste_rewards"`
	DBSSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`
	DBMaxConns int32  `envconfig:"DB_MAX_CONNS" default:"25"`
	DBMinConns int32  `envconfig:"DB_MIN_CONNS" default:"5"`

	// --- Application ---
	AppEnv      string `envconfig:"APP_ENV" default:"development"`
	AppLogLevel string `envconfig:"APP_LOG_LEVEL" default:"debug"`
	AppTimezone string `envconfig:"APP_TIMEZONE" default:"UTC"`

	// --- HTTP ---
	HTTPAddr           string        `envconfig:"HTTP_ADDR" default:":8080"`
	HTTPReadTimeout    time.Duration `envconfig:"HTTP_READ_TIMEOUT" default:"15s"`
	HTTPWriteTimeout   time.Duration `envconfig:"HTTP_WRITE_TIMEOUT" default:"60s"`
	HTTPRequestTimeout time.Duration `envconfig:"HTTP_REQUEST_TIMEOUT" default:"45s"`
	CORSAllowedOrigins []string      `envconfig:"CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`

	// --- Auth ---
	// Секрет подписи сессионных JWT (HS256), минимум 32 байта.
	JWTSecret  string        `envconfig:"AUTH_JWT_SECRET" required:"true"`
	SessionTTL time.Duration `envconfig:"AUTH_SESSION_TTL" default:"24h"`
	// Ключ, которым фронтенд-сервер подтверждает личность после OAuth.
	ServiceKey string `envconfig:"AUTH_SERVICE_KEY" required:"true"`

	// --- Admin ---
	AdminPasswordHash string `envconfig:"ADMIN_PASSWORD_HASH" required:"true"`

	// --- Rewards ---
	ReportRewardPoints  int64         `envconfig:"REPORT_REWARD_POINTS" default:"10"`
	CollectRewardPoints int64         `envconfig:"COLLECT_REWARD_POINTS" default:"10"`
	ClaimTTL            time.Duration `envconfig:"CLAIM_TTL" default:"48h"`

	// --- Verifier (vision model) ---
	VerifierAPIKey   string        `envconfig:"VERIFIER_API_KEY"`
	VerifierModel    string        `envconfig:"VERIFIER_MODEL" default:"gemini-1.5-flash"`
	VerifierBaseURL  string        `envconfig:"VERIFIER_BASE_URL" default:"https://generativelanguage.googleapis.com/v1beta"`
	VerifierTimeout  time.Duration `envconfig:"VERIFIER_TIMEOUT" default:"30s"`
	VerifierDisabled bool          `envconfig:"VERIFIER_DISABLED" default:"false"`

	// --- Integrations (опциональные) ---
	CloudinaryURL    string `envconfig:"CLOUDINARY_URL"`
	CloudinaryFolder string `envconfig:"CLOUDINARY_FOLDER" default:"waste-rewards"`
	TelegramBotToken string `envconfig:"TELEGRAM_BOT_TOKEN"`
	SentryDSN        string `envconfig:"SENTRY_DSN"`

	// --- Rate Limiting ---
	RateLimitRequests int           `envconfig:"RATE_LIMIT_REQUESTS" default:"60"`
	RateLimitWindow   time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"1m"`
}

// DatabaseDSN возвращает строку подключения к PostgreSQL в формате DSN.
// Логин и пароль экранируются: в пароле могут быть @, / и :.
func (c *Config) DatabaseDSN() string {
	dsn := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.DBUser, c.DBPassword),
		Host:     net.JoinHostPort(c.DBHost, strconv.Itoa(c.DBPort)),
		Path:     "/" + c.DBName,
		RawQuery: url.Values{"sslmode": {c.DBSSLMode}}.Encode(),
	}
	return dsn.String()
}

// IsProduction — true для APP_ENV=production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.AppEnv, "production")
}

// Location возвращает часовой пояс приложения (для дат в истории транзакций).
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.AppTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c *Config) Validate() error {
	// required:"true" у envconfig пропускает пустую строку
	for name, value := range map[string]string{
		"DB_PASSWORD":         c.DBPassword,
		"AUTH_SERVICE_KEY":    c.ServiceKey,
		"ADMIN_PASSWORD_HASH": c.AdminPasswordHash,
	} {
		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("%s не должен быть пустым", name)
		}
	}
	if c.DBMaxConns <= 0 || c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("некорректные DB_MIN_CONNS/DB_MAX_CONNS")
	}
	if len(c.JWTSecret) < 32 {
		return fmt.Errorf("AUTH_JWT_SECRET должен быть не короче 32 символов")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("AUTH_SESSION_TTL должен быть > 0")
	}
	if c.ReportRewardPoints <= 0 || c.CollectRewardPoints <= 0 {
		return fmt.Errorf("REPORT_REWARD_POINTS и COLLECT_REWARD_POINTS должны быть > 0")
	}
	if c.ClaimTTL <= 0 {
		return fmt.Errorf("CLAIM_TTL должен быть > 0")
	}
	if !c.VerifierDisabled && c.VerifierAPIKey == "" {
		return fmt.Errorf("VERIFIER_API_KEY не задан (или выставь VERIFIER_DISABLED=true)")
	}
	if c.RateLimitRequests <= 0 || c.RateLimitWindow <= 0 {
		return fmt.Errorf("некорректные RATE_LIMIT_REQUESTS/RATE_LIMIT_WINDOW")
	}
	if _, err := time.LoadLocation(c.AppTimezone); err != nil {
		return fmt.Errorf("APP_TIMEZONE: %w", err)
	}
	return nil
}

// Load читает .env (если есть) и переменные окружения, заполняет Config.
func Load() (*Config, error) {
	// .env нужен только для локального запуска, в контейнере его нет
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("не удалось прочитать .env: %w", err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("не удалось загрузить конфигурацию: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
