package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Remote   RemoteConfig   `mapstructure:"remote"`
	Storage  StorageConfig  `mapstructure:"storage"`
	OpenAI   OpenAIConfig   `mapstructure:"openai"`
	Chat     ChatConfig     `mapstructure:"chat"`
	Auth     AuthConfig     `mapstructure:"auth"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	SecureCookies   bool          `mapstructure:"secure_cookies"`
}

type TelegramConfig struct {
	Token string `mapstructure:"token"`
	Debug bool   `mapstructure:"debug"`
}

// RemoteConfig selects the remote document store used for authenticated
// users. Backend is one of redis, postgres or memory.
type RemoteConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Backend  string         `mapstructure:"backend"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Database DatabaseConfig `mapstructure:"database"`
}

type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

type StorageConfig struct {
	DataDir string `mapstructure:"data_dir"`
}

type OpenAIConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Temperature float64       `mapstructure:"temperature"`
	TopP        float64       `mapstructure:"top_p"`
	TopK        int           `mapstructure:"top_k"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type ChatConfig struct {
	MaxMessageLength    int      `mapstructure:"max_message_length"`
	DefaultLanguage     string   `mapstructure:"default_language"`
	RetentionWindow     int      `mapstructure:"retention_window"`
	ContextMessages     int      `mapstructure:"context_messages"`
	PreserveHistory     bool     `mapstructure:"preserve_history"`
	EnableFormatting    bool     `mapstructure:"enable_formatting"`
	GenerativeThreshold float64  `mapstructure:"generative_threshold"`
	MaxResponseLength   int      `mapstructure:"max_response_length"`
	LocalIntents        []string `mapstructure:"local_intents"`
	CacheSize           int      `mapstructure:"cache_size"`
}

// EagerGenerative reports whether the generative model is asked before
// local intents.
func (c ChatConfig) EagerGenerative() bool {
	return c.GenerativeThreshold == 0
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

func parseDatabaseURL(dbURL string) (DatabaseConfig, error) {
	u, err := url.Parse(dbURL)
	if err != nil {
		return DatabaseConfig{}, err
	}

	password, _ := u.User.Password()
	port := 5432
	if u.Port() != "" {
		if port, err = strconv.Atoi(u.Port()); err != nil {
			return DatabaseConfig{}, fmt.Errorf("invalid port %q: %w", u.Port(), err)
		}
	}

	sslMode := u.Query().Get("sslmode")
	if sslMode == "" {
		sslMode = "disable"
	}

	return DatabaseConfig{
		Host:     u.Hostname(),
		Port:     port,
		User:     u.User.Username(),
		Password: password,
		DBName:   strings.TrimPrefix(u.Path, "/"),
		SSLMode:  sslMode,
	}, nil
}

// parseRedisURL accepts redis://[:password@]host:port[/db].
func parseRedisURL(redisURL string) (RedisConfig, error) {
	u, err := url.Parse(redisURL)
	if err != nil {
		return RedisConfig{}, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return RedisConfig{}, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	cfg := RedisConfig{Addr: u.Host}
	if !strings.Contains(cfg.Addr, ":") {
		cfg.Addr += ":6379"
	}
	if password, ok := u.User.Password(); ok {
		cfg.Password = password
	}
	if db := strings.TrimPrefix(u.Path, "/"); db != "" {
		if cfg.DB, err = strconv.Atoi(db); err != nil {
			return RedisConfig{}, fmt.Errorf("invalid database %q: %w", db, err)
		}
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("remote.enabled", false)
	v.SetDefault("remote.backend", "memory")
	v.SetDefault("remote.redis.addr", "localhost:6379")
	v.SetDefault("remote.redis.key_prefix", "lingua")
	v.SetDefault("remote.database.port", 5432)
	v.SetDefault("remote.database.host", "localhost")
	v.SetDefault("remote.database.user", "postgres")
	v.SetDefault("remote.database.sslmode", "disable")

	v.SetDefault("storage.data_dir", "data")

	v.SetDefault("openai.model", "gpt-3.5-turbo")
	v.SetDefault("openai.max_tokens", 300)
	v.SetDefault("openai.temperature", 0.7)
	v.SetDefault("openai.top_p", 0.95)
	v.SetDefault("openai.top_k", 40)
	v.SetDefault("openai.timeout", 20*time.Second)

	v.SetDefault("chat.max_message_length", 1000)
	v.SetDefault("chat.default_language", "english")
	v.SetDefault("chat.retention_window", 50)
	v.SetDefault("chat.context_messages", 5)
	v.SetDefault("chat.preserve_history", true)
	v.SetDefault("chat.enable_formatting", false)
	v.SetDefault("chat.generative_threshold", 0.5)
	v.SetDefault("chat.max_response_length", 800)
	v.SetDefault("chat.local_intents", []string{"greeting", "farewell", "thanks", "time", "date"})
	v.SetDefault("chat.cache_size", 1024)
}

// LoadConfig reads path (when non-empty), applies defaults and then the
// environment overrides.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if dbURL := v.GetString("DATABASE_URL"); dbURL != "" {
		dbConfig, err := parseDatabaseURL(dbURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
		}
		config.Remote.Database = dbConfig
	}

	if redisURL := v.GetString("REDIS_URL"); redisURL != "" {
		redisConfig, err := parseRedisURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse REDIS_URL: %w", err)
		}
		redisConfig.KeyPrefix = config.Remote.Redis.KeyPrefix
		config.Remote.Redis = redisConfig
	}

	if token := v.GetString("TELEGRAM_TOKEN"); token != "" {
		config.Telegram.Token = token
	}

	if apiKey := v.GetString("OPENAI_API_KEY"); apiKey != "" {
		config.OpenAI.APIKey = apiKey
	}

	if secret := v.GetString("JWT_SECRET"); secret != "" {
		config.Auth.JWTSecret = secret
	}

	return &config, nil
}
