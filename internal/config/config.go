package config

import (
	"os"
	"strings"

	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	fileKey := envKey + "_FILE"
	filePath := os.Getenv(fileKey)
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	val := strings.TrimSpace(string(data))
	os.Setenv(envKey, val)
}

type Config struct {
	Server     ServerConfig
	Redis      RedisConfig
	JWT        JWTConfig
	RateLimit  RateLimitConfig
	Credits    CreditsConfig
	Flux       FluxConfig
	SiteGen    SiteGenConfig
	Generation GenerationConfig
	R2         R2Config
	Zitadel    ZitadelConfig
	Gateway    GatewayConfig
	Webhook    WebhookConfig
}

type ServerConfig struct {
	Port      string
	Env       string
	LogLevel  string
	ApiDomain string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration int // hours
}

type RateLimitConfig struct {
	DesignsPerHour   int
	CustomizePerHour int
	PollPerMin       int
	SitesPerHour     int
}

type CreditsConfig struct {
	CostPerImage     int
	CostPerCustomize int
	SignupGrant      int
}

type FluxConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

type SiteGenConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

type GenerationConfig struct {
	ArtTimeout   int // seconds, total budget for one render
	SiteTimeout  int // seconds, budget for one site customization
	PollInterval int // seconds, provider poll cadence
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURL       string
}

type ZitadelConfig struct {
	Domain   string
	ClientID string
	Issuer   string
}

type GatewayConfig struct {
	Enabled bool
}

type WebhookConfig struct {
	Secret string
}

func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("FLUX_API_KEY")
	readSecret("SITEGEN_API_KEY")
	readSecret("R2_ACCOUNT_ID")
	readSecret("R2_ACCESS_KEY_ID")
	readSecret("R2_SECRET_ACCESS_KEY")
	readSecret("ZITADEL_CLIENT_ID")
	readSecret("WEBHOOK_SECRET")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Environment variables
	viper.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = viper.BindEnv("server.port", "SERVER_PORT")
	_ = viper.BindEnv("server.env", "SERVER_ENV")
	_ = viper.BindEnv("server.log_level", "LOG_LEVEL")
	_ = viper.BindEnv("server.api_domain", "API_DOMAIN")
	_ = viper.BindEnv("redis.addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = viper.BindEnv("redis.db", "REDIS_DB")
	_ = viper.BindEnv("jwt.secret", "JWT_SECRET")
	_ = viper.BindEnv("jwt.expiration", "JWT_EXPIRATION")
	_ = viper.BindEnv("credits.cost_per_image", "CREDITS_COST_PER_IMAGE")
	_ = viper.BindEnv("credits.cost_per_customize", "CREDITS_COST_PER_CUSTOMIZE")
	_ = viper.BindEnv("credits.signup_grant", "CREDITS_SIGNUP_GRANT")
	_ = viper.BindEnv("flux.api_key", "FLUX_API_KEY")
	_ = viper.BindEnv("flux.base_url", "FLUX_BASE_URL")
	_ = viper.BindEnv("flux.model", "FLUX_MODEL")
	_ = viper.BindEnv("sitegen.api_key", "SITEGEN_API_KEY")
	_ = viper.BindEnv("sitegen.base_url", "SITEGEN_BASE_URL")
	_ = viper.BindEnv("sitegen.model", "SITEGEN_MODEL")
	_ = viper.BindEnv("generation.art_timeout", "GENERATION_ART_TIMEOUT")
	_ = viper.BindEnv("generation.site_timeout", "GENERATION_SITE_TIMEOUT")
	_ = viper.BindEnv("generation.poll_interval", "GENERATION_POLL_INTERVAL")
	_ = viper.BindEnv("r2.account_id", "R2_ACCOUNT_ID")
	_ = viper.BindEnv("r2.access_key_id", "R2_ACCESS_KEY_ID")
	_ = viper.BindEnv("r2.secret_access_key", "R2_SECRET_ACCESS_KEY")
	_ = viper.BindEnv("r2.bucket_name", "R2_BUCKET_NAME")
	_ = viper.BindEnv("r2.public_url", "R2_PUBLIC_URL")
	_ = viper.BindEnv("zitadel.domain", "ZITADEL_DOMAIN")
	_ = viper.BindEnv("zitadel.client_id", "ZITADEL_CLIENT_ID")
	_ = viper.BindEnv("zitadel.issuer", "ZITADEL_ISSUER")
	_ = viper.BindEnv("gateway.enabled", "GATEWAY_ENABLED")
	_ = viper.BindEnv("webhook.secret", "WEBHOOK_SECRET")

	// Defaults
	viper.SetDefault("server.port", "8000")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("jwt.secret", "change-me-in-production")
	viper.SetDefault("jwt.expiration", 24)
	viper.SetDefault("ratelimit.designs_per_hour", 20)
	viper.SetDefault("ratelimit.customize_per_hour", 30)
	viper.SetDefault("ratelimit.poll_per_min", 120)
	viper.SetDefault("ratelimit.sites_per_hour", 10)

	// Credit defaults
	viper.SetDefault("credits.cost_per_image", 1)
	viper.SetDefault("credits.cost_per_customize", 2)
	viper.SetDefault("credits.signup_grant", 5)

	// Flux defaults
	viper.SetDefault("flux.base_url", "https://api.fluxrender.ai")
	viper.SetDefault("flux.model", "flux-schnell")

	// Site generation defaults (OpenAI-compatible endpoint)
	viper.SetDefault("sitegen.base_url", "https://api.groq.com/openai/v1")
	viper.SetDefault("sitegen.model", "llama-3.3-70b-versatile")

	// Generation budgets
	viper.SetDefault("generation.art_timeout", 300)
	viper.SetDefault("generation.site_timeout", 90)
	viper.SetDefault("generation.poll_interval", 5)

	// Gateway defaults
	viper.SetDefault("gateway.enabled", false)

	// Try to read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:      viper.GetString("server.port"),
			Env:       viper.GetString("server.env"),
			LogLevel:  viper.GetString("server.log_level"),
			ApiDomain: viper.GetString("server.api_domain"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret:     viper.GetString("jwt.secret"),
			Expiration: viper.GetInt("jwt.expiration"),
		},
		RateLimit: RateLimitConfig{
			DesignsPerHour:   viper.GetInt("ratelimit.designs_per_hour"),
			CustomizePerHour: viper.GetInt("ratelimit.customize_per_hour"),
			PollPerMin:       viper.GetInt("ratelimit.poll_per_min"),
			SitesPerHour:     viper.GetInt("ratelimit.sites_per_hour"),
		},
		Credits: CreditsConfig{
			CostPerImage:     viper.GetInt("credits.cost_per_image"),
			CostPerCustomize: viper.GetInt("credits.cost_per_customize"),
			SignupGrant:      viper.GetInt("credits.signup_grant"),
		},
		Flux: FluxConfig{
			APIKey:  viper.GetString("flux.api_key"),
			BaseURL: viper.GetString("flux.base_url"),
			Model:   viper.GetString("flux.model"),
		},
		SiteGen: SiteGenConfig{
			APIKey:  viper.GetString("sitegen.api_key"),
			BaseURL: viper.GetString("sitegen.base_url"),
			Model:   viper.GetString("sitegen.model"),
		},
		Generation: GenerationConfig{
			ArtTimeout:   viper.GetInt("generation.art_timeout"),
			SiteTimeout:  viper.GetInt("generation.site_timeout"),
			PollInterval: viper.GetInt("generation.poll_interval"),
		},
		R2: R2Config{
			AccountID:       viper.GetString("r2.account_id"),
			AccessKeyID:     viper.GetString("r2.access_key_id"),
			SecretAccessKey: viper.GetString("r2.secret_access_key"),
			BucketName:      viper.GetString("r2.bucket_name"),
			PublicURL:       viper.GetString("r2.public_url"),
		},
		Zitadel: ZitadelConfig{
			Domain:   viper.GetString("zitadel.domain"),
			ClientID: viper.GetString("zitadel.client_id"),
			Issuer:   viper.GetString("zitadel.issuer"),
		},
		Gateway: GatewayConfig{
			Enabled: viper.GetBool("gateway.enabled"),
		},
		Webhook: WebhookConfig{
			Secret: viper.GetString("webhook.secret"),
		},
	}

	return cfg, nil
}
