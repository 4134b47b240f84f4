package config

import (
	"context"
	"fmt"

	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	Server    ServerConfig    `env:",prefix=SERVER_"`
	Postgres  PostgresConfig  `env:",prefix=POSTGRES_"`
	Redis     RedisConfig     `env:",prefix=REDIS_"`
	Crypto    CryptoConfig    `env:",prefix="`
	Sync      SyncConfig      `env:",prefix=SYNC_"`
	OAuth     OAuthConfig     `env:",prefix=OAUTH_"`
	RateLimit RateLimitConfig `env:",prefix=RATE_LIMIT_"`
	Env       string          `env:"ENV,default=development"`
}

type ServerConfig struct {
	Port         string   `env:"PORT,default=8080"`
	Host         string   `env:"HOST,default=0.0.0.0"`
	ReadTimeout  Duration `env:"READ_TIMEOUT,default=15s"`
	WriteTimeout Duration `env:"WRITE_TIMEOUT,default=30s"`
	// PublicURL is the externally visible base URL used to build OAuth
	// redirect URIs.
	PublicURL string `env:"PUBLIC_URL,default=http://localhost:8080"`
	// DashboardURL is where OAuth callbacks send the user afterwards.
	DashboardURL string `env:"DASHBOARD_URL,default=http://localhost:3000/accounts"`
}

type PostgresConfig struct {
	Host     string `env:"HOST,default=localhost"`
	Port     string `env:"PORT,default=5432"`
	User     string `env:"USER,default=social_sync"`
	Password string `env:"PASSWORD,default=social_sync_password"`
	DBName   string `env:"DB,default=social_sync_db"`
	SSLMode  string `env:"SSLMODE,default=disable"`
}

type RedisConfig struct {
	Host     string `env:"HOST,default=localhost"`
	Port     string `env:"PORT,default=6379"`
	Password string `env:"PASSWORD,default="`
	DB       int    `env:"DB,default=0"`
}

type CryptoConfig struct {
	// TokenKey encrypts provider tokens at rest. Hex-encoded 32 bytes.
	TokenKey string `env:"TOKEN_KEY,required"`
	// StateSecret signs OAuth state tokens.
	StateSecret string `env:"STATE_SECRET,required"`
}

type SyncConfig struct {
	// Interval between scheduler batches. Zero disables the scheduler.
	Interval Duration `env:"INTERVAL,default=6h"`
	// RefreshSweepInterval between token refresh sweeps.
	RefreshSweepInterval Duration `env:"REFRESH_SWEEP_INTERVAL,default=12h"`
	// AccountConcurrency caps concurrent account syncs per batch.
	AccountConcurrency int `env:"ACCOUNT_CONCURRENCY,default=4"`
	// InsightConcurrency caps concurrent per-post insight calls within a
	// single connector sync.
	InsightConcurrency int `env:"INSIGHT_CONCURRENCY,default=8"`
	// MaxPages is the pagination safety cap per listing endpoint.
	MaxPages int `env:"MAX_PAGES,default=10"`
	// RequestTimeout bounds each outbound provider call.
	RequestTimeout Duration `env:"REQUEST_TIMEOUT,default=30s"`
}

type OAuthConfig struct {
	Instagram OAuthClient `env:",prefix=INSTAGRAM_"`
	Facebook  OAuthClient `env:",prefix=FACEBOOK_"`
	TikTok    OAuthClient `env:",prefix=TIKTOK_"`
	YouTube   OAuthClient `env:",prefix=YOUTUBE_"`
	Twitter   OAuthClient `env:",prefix=TWITTER_"`
	LinkedIn  OAuthClient `env:",prefix=LINKEDIN_"`
}

type OAuthClient struct {
	ClientID     string `env:"CLIENT_ID,default="`
	ClientSecret string `env:"CLIENT_SECRET,default="`
}

type RateLimitConfig struct {
	// Overrides replaces per-platform request windows, mainly for testing.
	// Format: "platform:count/window" pairs, e.g.
	// RATE_LIMIT_OVERRIDES="instagram:5/1s,tiktok:2/100ms".
	Overrides map[string]string `env:"OVERRIDES"`
}

// DSN returns PostgreSQL connection string
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.DBName, p.SSLMode)
}

// Address returns Redis connection address
func (r RedisConfig) Address() string {
	return fmt.Sprintf("%s:%s", r.Host, r.Port)
}

// Client returns the OAuth client credentials configured for a platform key
// ("instagram", "facebook", ...).
func (o OAuthConfig) Client(platform string) OAuthClient {
	switch platform {
	case "instagram":
		return o.Instagram
	case "facebook":
		return o.Facebook
	case "tiktok":
		return o.TikTok
	case "youtube":
		return o.YouTube
	case "twitter":
		return o.Twitter
	case "linkedin":
		return o.LinkedIn
	}
	return OAuthClient{}
}

// Load loads configuration from environment variables
func Load(ctx context.Context) (*Config, error) {
	var config Config

	if err := envconfig.Process(ctx, &config); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if len(config.Crypto.TokenKey) != 64 {
		return nil, fmt.Errorf("TOKEN_KEY must be 64 hex characters (32 bytes)")
	}
	if len(config.Crypto.StateSecret) < 32 {
		return nil, fmt.Errorf("STATE_SECRET must be at least 32 characters long")
	}

	return &config, nil
}

// LoadWithDefaults loads configuration with default context
func LoadWithDefaults() (*Config, error) {
	return Load(context.Background())
}
