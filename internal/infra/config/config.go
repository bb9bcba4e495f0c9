package config

import (
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию сервисов.
type AppConfig struct {
	AppEnv       string `envconfig:"APP_ENV" default:"dev"`
	DataDir      string `envconfig:"DATA_DIR" default:"tg"`
	ProjectsFile string `envconfig:"PROJECTS_FILE" default:"projects.yaml"`
	Port         int    `envconfig:"PORT" default:"8080"`
	MetricsAddr  string `envconfig:"METRICS_ADDR" default:":9090"`

	Telegram struct {
		APIID    int    `envconfig:"TG_API_ID"`
		APIHash  string `envconfig:"TG_API_HASH"`
		Phone    string `envconfig:"TG_PHONE"`
		Password string `envconfig:"TG_PASSWORD"`
	} `envconfig:""`

	MTProto struct {
		SessionFile string `envconfig:"MTPROTO_SESSION_FILE" default:"session.json"`
		PageSize    int    `envconfig:"MTPROTO_PAGE_SIZE" default:"100"`
	} `envconfig:""`

	Bot struct {
		Token        string `envconfig:"TG_BOT_TOKEN"`
		ReportChatID int64  `envconfig:"TG_REPORT_CHAT_ID"`
	} `envconfig:""`

	Fetch struct {
		MaxDayBytes  int `envconfig:"FETCH_MAX_DAY_BYTES" default:"4000000"`
		WindowDays   int `envconfig:"BATCH_WINDOW_DAYS" default:"7"`
		StopEmpty    int `envconfig:"BATCH_STOP_EMPTY" default:"5"`
		StopLookback int `envconfig:"BATCH_STOP_LOOKBACK" default:"7"`
	} `envconfig:""`

	OpenAI struct {
		APIKey  string        `envconfig:"OPENAI_API_KEY"`
		BaseURL string        `envconfig:"OPENAI_BASE_URL"`
		Model   string        `envconfig:"OPENAI_MODEL" default:"gpt-4o-mini"`
		Timeout time.Duration `envconfig:"OPENAI_TIMEOUT" default:"120s"`
	} `envconfig:""`

	Classifier struct {
		PromptFile    string `envconfig:"PROMPT_FILE"`
		PromptVersion string `envconfig:"PROMPT_VERSION" default:"v1"`
		TokenCeiling  int    `envconfig:"CLASSIFY_TOKEN_CEILING" default:"110000"`
		MinMessages   int    `envconfig:"CLASSIFY_MIN_MESSAGES" default:"5"`
		Encoding      string `envconfig:"TOKENIZER_ENCODING" default:"cl100k_base"`
	} `envconfig:""`

	CoinGecko struct {
		APIKey     string `envconfig:"COINGECKO_API_KEY"`
		BaseURL    string `envconfig:"COINGECKO_BASE_URL" default:"https://api.coingecko.com/api/v3"`
		VsCurrency string `envconfig:"COINGECKO_VS_CURRENCY" default:"usd"`
	} `envconfig:""`

	PGDSN     string        `envconfig:"PG_DSN"`
	RedisAddr string        `envconfig:"REDIS_ADDR"`
	RabbitURL string        `envconfig:"RABBITMQ_URL"`
	LockTTL   time.Duration `envconfig:"LOCK_TTL" default:"2m"`

	Queues struct {
		Ingest string `envconfig:"INGEST_QUEUE_KEY" default:"ingest_jobs"`
	} `envconfig:""`

	Schedule struct {
		Interval     time.Duration `envconfig:"SCHEDULE_INTERVAL" default:"24h"`
		LookbackDays int           `envconfig:"SCHEDULE_LOOKBACK_DAYS" default:"2"`
	} `envconfig:""`
}

// Load загружает конфиг из .env и окружения.
func Load() AppConfig {
	cfg, err := Parse()
	if err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}

// Parse читает .env (если есть) и окружение, проверяя значения.
func Parse() (AppConfig, error) {
	_ = godotenv.Load()

	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return AppConfig{}, err
	}
	if err := cfg.Validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

// Validate проверяет границы числовых параметров.
func (c AppConfig) Validate() error {
	if c.Fetch.StopLookback <= 0 || c.Fetch.StopEmpty <= 0 {
		return fmt.Errorf("правило остановки должно быть положительным: %d из %d", c.Fetch.StopEmpty, c.Fetch.StopLookback)
	}
	if c.Fetch.StopEmpty > c.Fetch.StopLookback {
		return fmt.Errorf("BATCH_STOP_EMPTY (%d) больше BATCH_STOP_LOOKBACK (%d)", c.Fetch.StopEmpty, c.Fetch.StopLookback)
	}
	if c.Fetch.WindowDays <= 0 {
		return fmt.Errorf("BATCH_WINDOW_DAYS должен быть положительным")
	}
	if c.Classifier.TokenCeiling <= 0 {
		return fmt.Errorf("CLASSIFY_TOKEN_CEILING должен быть положительным")
	}
	if c.MTProto.PageSize <= 0 || c.MTProto.PageSize > 100 {
		return fmt.Errorf("MTPROTO_PAGE_SIZE должен быть в диапазоне 1..100")
	}
	return nil
}
