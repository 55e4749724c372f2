package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration (env + Viper).
type Config struct {
	Env      string
	Port     string
	LogLevel string
	AppName  string

	DatabaseURL string
	RedisURL    string
	AutoMigrate bool

	NatsURL           string
	NatsSubject       string
	ChangeFeedChannel string

	SessionSecret     string
	SupabaseURL       string // storage sign URLs and public URLs
	SupabaseSecretKey string // service_role key, not the anon key
	SupabaseJWTSecret string // verifies platform-issued access tokens

	StripeSecretKey     string
	StripeWebhookSecret string
	PaymentCurrency     string

	FrontendURLEndsWith string
	DevPassword         string
	AllowCrossSiteDev   bool
	HealthAdminKey      string

	SendinblueAPIKey string
	MailFrom         string
	AppBaseURL       string

	ListingCacheTTL       time.Duration
	RequestRateLimit      int
	RequestRateWindow     time.Duration
	DeleteGuardCategories []string

	AutoRejectOnApprove    bool
	RejectSelfRequests     bool
	RejectDuplicatePending bool
}

// Load loads config from env and optional .env file.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig()

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("PORT", "8080")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("NATS_SUBJECT", "agrihub.changes")
	v.SetDefault("CHANGE_FEED_CHANNEL", "agrihub:changes")
	v.SetDefault("PAYMENT_CURRENCY", "inr")
	v.SetDefault("MAIL_FROM", "noreply@agrihub.app")
	v.SetDefault("APP_BASE_URL", "https://agrihub.app")
	v.SetDefault("LISTING_CACHE_TTL", "1m")
	v.SetDefault("REQUEST_RATE_LIMIT", 10)
	v.SetDefault("REQUEST_RATE_WINDOW", "1m")
	v.SetDefault("LISTINGS_DELETE_GUARD_CATEGORIES", "equipment")
	v.SetDefault("REQUESTS_AUTO_REJECT_ON_APPROVE", true)

	window := v.GetDuration("REQUEST_RATE_WINDOW")
	if window < time.Millisecond {
		return nil, fmt.Errorf("REQUEST_RATE_WINDOW %q must be a duration of at least 1ms, e.g. 60s", v.GetString("REQUEST_RATE_WINDOW"))
	}

	return &Config{
		Env:      v.GetString("APP_ENV"),
		Port:     v.GetString("PORT"),
		LogLevel: strings.ToLower(v.GetString("LOG_LEVEL")),
		AppName:  "agrihub-api",

		DatabaseURL: v.GetString("DATABASE_URL"),
		RedisURL:    v.GetString("REDIS_URL"),
		AutoMigrate: v.GetBool("AUTO_MIGRATE"),

		NatsURL:           v.GetString("NATS_URL"),
		NatsSubject:       v.GetString("NATS_SUBJECT"),
		ChangeFeedChannel: v.GetString("CHANGE_FEED_CHANNEL"),

		SessionSecret:     v.GetString("SESSION_SECRET"),
		SupabaseURL:       v.GetString("SUPABASE_URL"),
		SupabaseSecretKey: v.GetString("SUPABASE_SECRET_KEY"),
		SupabaseJWTSecret: v.GetString("SUPABASE_JWT_SECRET"),

		StripeSecretKey:     v.GetString("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: v.GetString("STRIPE_WEBHOOK_SECRET"),
		PaymentCurrency:     strings.ToLower(v.GetString("PAYMENT_CURRENCY")),

		FrontendURLEndsWith: v.GetString("FRONTEND_URL_ENDS_WITH"),
		DevPassword:         v.GetString("DEV_PASSWORD"),
		AllowCrossSiteDev:   v.GetBool("ALLOW_CROSS_SITE_DEV"),
		HealthAdminKey:      v.GetString("HEALTH_ADMIN_KEY"),

		SendinblueAPIKey: v.GetString("SENDINBLUE_API_KEY"),
		MailFrom:         v.GetString("MAIL_FROM"),
		AppBaseURL:       strings.TrimRight(v.GetString("APP_BASE_URL"), "/"),

		ListingCacheTTL:       v.GetDuration("LISTING_CACHE_TTL"),
		RequestRateLimit:      v.GetInt("REQUEST_RATE_LIMIT"),
		RequestRateWindow:     window,
		DeleteGuardCategories: splitList(v.GetString("LISTINGS_DELETE_GUARD_CATEGORIES")),

		AutoRejectOnApprove:    v.GetBool("REQUESTS_AUTO_REJECT_ON_APPROVE"),
		RejectSelfRequests:     v.GetBool("REQUESTS_REJECT_SELF"),
		RejectDuplicatePending: v.GetBool("REQUESTS_REJECT_DUPLICATE_PENDING"),
	}, nil
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
