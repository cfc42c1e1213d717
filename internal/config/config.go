package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

type HTTPConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type PostgresConfig struct {
	DSN             string
	MaxOpen         int
	MaxIdle         int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type StorageConfig struct {
	Endpoint     string
	AccessKey    string
	SecretKey    string
	BucketPhotos string
	UseSSL       bool
	Region       string
}

type SecurityConfig struct {
	JWTSecret         string
	SessionTTL        time.Duration
	ResetTTL          time.Duration
	SigninMaxAttempts int
	SigninWindow      time.Duration
}

type SocialConfig struct {
	GoogleClientID   string
	GoogleJWKSURL    string
	FacebookGraphURL string
	ProviderTimeout  time.Duration
}

type MailConfig struct {
	From   string
	Stream string
}

type ClientConfig struct {
	BaseURL string
}

type AppConfig struct {
	Environment      string
	HTTP             HTTPConfig
	Postgres         PostgresConfig
	Redis            RedisConfig
	Storage          StorageConfig
	Security         SecurityConfig
	Social           SocialConfig
	Mail             MailConfig
	Client           ClientConfig
	AllowCORSOrigins []string
}

// ErrMissingJWTSecret aborts startup: without a signing secret every issued
// session token would be forgeable.
var ErrMissingJWTSecret = errors.New("security.jwtsecret is required")

func Load() (*AppConfig, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("../config")

	v.SetEnvPrefix("NANDU")
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.Security.JWTSecret == "" {
		return nil, ErrMissingJWTSecret
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.readtimeout", "10s")
	v.SetDefault("http.writetimeout", "15s")
	v.SetDefault("http.idletimeout", "60s")

	v.SetDefault("postgres.maxopen", 30)
	v.SetDefault("postgres.maxidle", 10)
	v.SetDefault("postgres.connmaxlifetime", "30m")

	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("storage.bucketphotos", "nandu-photos")
	v.SetDefault("storage.usessl", false)
	v.SetDefault("storage.region", "us-east-1")

	v.SetDefault("security.sessionttl", "168h") // 7 days
	v.SetDefault("security.resetttl", "1h")
	v.SetDefault("security.signinmaxattempts", 10)
	v.SetDefault("security.signinwindow", "15m")

	v.SetDefault("social.googlejwksurl", "https://www.googleapis.com/oauth2/v3/certs")
	v.SetDefault("social.facebookgraphurl", "https://graph.facebook.com/v2.11")
	v.SetDefault("social.providertimeout", "10s")

	v.SetDefault("mail.from", "noreply@nandu.social")
	v.SetDefault("mail.stream", "mail:outbound")

	v.SetDefault("client.baseurl", "http://localhost:3000")
}
