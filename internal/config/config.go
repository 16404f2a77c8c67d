package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the configuration for the application.
type Config struct {
	Environment   string `mapstructure:"environment"`
	DevModeBypass bool   `mapstructure:"dev_mode_bypass"`

	Server struct {
		Addr            string        `mapstructure:"addr"`
		AllowedOrigins  []string      `mapstructure:"allowed_origins"`
		ReadTimeout     time.Duration `mapstructure:"read_timeout"`
		WriteTimeout    time.Duration `mapstructure:"write_timeout"`
		ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	} `mapstructure:"server"`

	DB struct {
		Driver     string `mapstructure:"driver"`
		URL        string `mapstructure:"url"`
		Host       string `mapstructure:"host"`
		Port       int    `mapstructure:"port"`
		User       string `mapstructure:"user"`
		Password   string `mapstructure:"password"`
		Name       string `mapstructure:"name"`
		SSLMode    string `mapstructure:"sslmode"`
		SQLitePath string `mapstructure:"sqlite_path"`
	} `mapstructure:"db"`

	Auth struct {
		Issuer   string `mapstructure:"issuer"`
		ClientID string `mapstructure:"client_id"`
	} `mapstructure:"auth"`

	LLM struct {
		Provider   string        `mapstructure:"provider"`
		APIKey     string        `mapstructure:"api_key"`
		BaseURL    string        `mapstructure:"base_url"`
		TextModel  string        `mapstructure:"text_model"`
		SceneModel string        `mapstructure:"scene_model"`
		Timeout    time.Duration `mapstructure:"timeout"`
		MaxRetries int           `mapstructure:"max_retries"`
	} `mapstructure:"llm"`

	Images struct {
		Backend  string        `mapstructure:"backend"`
		Model    string        `mapstructure:"model"`
		APIKey   string        `mapstructure:"api_key"`
		LogoPath string        `mapstructure:"logo_path"`
		LogoMode string        `mapstructure:"logo_mode"`
		Timeout  time.Duration `mapstructure:"timeout"`
	} `mapstructure:"images"`

	Storage struct {
		Driver        string `mapstructure:"driver"`
		URL           string `mapstructure:"url"`
		ServiceKey    string `mapstructure:"service_key"`
		Bucket        string `mapstructure:"bucket"`
		LocalDir      string `mapstructure:"local_dir"`
		PublicBaseURL string `mapstructure:"public_base_url"`
	} `mapstructure:"storage"`

	Prompts struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"prompts"`

	TLS struct {
		Enable    bool     `mapstructure:"enable"`
		CertFile  string   `mapstructure:"cert_file"`
		KeyFile   string   `mapstructure:"key_file"`
		Hostnames []string `mapstructure:"hostnames"`
	} `mapstructure:"tls"`

	Log struct {
		Level       string `mapstructure:"level"`
		Development bool   `mapstructure:"development"`
	} `mapstructure:"log"`
}

// legacyEnv maps config keys to the environment variable names used by existing deployments.
var legacyEnv = map[string][]string{
	"llm.api_key":         {"LLM_API_KEY", "GEMINI_API_KEY", "OPENAI_API_KEY"},
	"images.api_key":      {"IMAGES_API_KEY", "GEMINI_API_KEY", "OPENAI_API_KEY"},
	"storage.url":         {"STORAGE_URL", "SUPABASE_URL"},
	"storage.service_key": {"STORAGE_SERVICE_KEY", "SUPABASE_SERVICE_ROLE_KEY"},
	"db.url":              {"DB_URL", "DATABASE_URL"},
	"auth.issuer":         {"AUTH_ISSUER", "OIDC_ISSUER"},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 180*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("db.driver", "postgres")
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.sqlite_path", "contenthub.db")

	v.SetDefault("llm.provider", "gemini")
	v.SetDefault("llm.text_model", "gemini-2.5-flash")
	v.SetDefault("llm.scene_model", "gemini-2.0-flash")
	v.SetDefault("llm.timeout", 60*time.Second)
	v.SetDefault("llm.max_retries", 2)

	v.SetDefault("images.backend", "gemini")
	v.SetDefault("images.model", "gemini-3-pro-image-preview")
	v.SetDefault("images.logo_mode", "reference")
	v.SetDefault("images.timeout", 90*time.Second)

	v.SetDefault("storage.driver", "supabase")
	v.SetDefault("storage.bucket", "generated-images")
	v.SetDefault("storage.local_dir", "./data/images")

	v.SetDefault("log.level", "info")
}

// LoadConfig loads the configuration from an optional env file, config.yaml and the environment.
// When envFile is empty, .env.local and then .env are tried.
func LoadConfig(envFile string) (*Config, error) {
	if err := loadDotEnv(envFile); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	for key, names := range legacyEnv {
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	config.Auth.Issuer = normalizeIssuer(config.Auth.Issuer)
	config.Storage.URL = strings.TrimRight(strings.TrimSpace(config.Storage.URL), "/")

	return &config, nil
}

func loadDotEnv(envFile string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return fmt.Errorf("load env file %s: %w", envFile, err)
		}
		return nil
	}
	for _, f := range []string{".env.local", ".env"} {
		if _, err := os.Stat(f); err == nil {
			return godotenv.Load(f)
		}
	}
	return nil
}

// IsProduction reports whether the service runs in production mode.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// DatabaseURL returns the explicit connection URL or builds one from the discrete fields.
func (c *Config) DatabaseURL() string {
	if c.DB.URL != "" {
		return c.DB.URL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DB.User, c.DB.Password, c.DB.Host, c.DB.Port, c.DB.Name, c.DB.SSLMode)
}

// normalizeIssuer strips whitespace and any trailing slash so the value
// matches the "iss" claim regardless of how it was pasted.
func normalizeIssuer(input string) string {
	return strings.TrimRight(strings.TrimSpace(input), "/")
}
