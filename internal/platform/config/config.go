package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"
)

const (
	defaultEnvFile          = ".env"
	defaultPort             = "3000"
	defaultReadTimeout      = 15 * time.Second
	defaultWriteTimeout     = 30 * time.Second
	defaultIdleTimeout      = 120 * time.Second
	defaultShutdownTimeout  = 20 * time.Second
	defaultUpstreamTimeout  = 15 * time.Second
	defaultBreakerFailures  = 5
	defaultBreakerCooldown  = 30 * time.Second
	defaultCookieName       = "storefront_session"
	defaultSessionIdleTTL   = 24 * time.Hour
	defaultSweepInterval    = 5 * time.Minute
	defaultRefreshBuffer    = 5 * time.Second
	defaultCouponPerMinute  = 10
	defaultCurrency         = "INR"
	defaultLocale           = "en-IN"
	defaultSecretsEnv       = "local"
	minSessionHashKeyLength = 32
)

// Config captures runtime configuration grouped by concern.
type Config struct {
	Server   ServerConfig
	Upstream UpstreamConfig
	Session  SessionConfig
	Auth     AuthConfig
	Checkout CheckoutConfig
	CORS     CORSConfig
	Events   EventsConfig
	Secrets  SecretsConfig
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// UpstreamConfig locates the backend services.
type UpstreamConfig struct {
	GatewayURL      string
	ChatURL         string
	CallURL         string
	OrderSocketURL  string
	Timeout         time.Duration
	BreakerFailures int
	BreakerCooldown time.Duration
}

// SessionConfig controls the signed session cookie and server-side session lifetime.
type SessionConfig struct {
	CookieName    string
	HashKey       string
	BlockKey      string
	Secure        bool
	IdleTTL       time.Duration
	SweepInterval time.Duration
}

// AuthConfig tunes the token refresh scheduler.
type AuthConfig struct {
	RefreshBuffer time.Duration
}

// CheckoutConfig tunes checkout behaviour and money display.
type CheckoutConfig struct {
	CouponAttemptsPerMinute int
	Currency                string
	Locale                  string
}

// CORSConfig lists browser origins allowed to call the API and open sockets.
type CORSConfig struct {
	AllowedOrigins []string
}

// EventsConfig enables Pub/Sub order events when both fields are set.
type EventsConfig struct {
	ProjectID string
	TopicID   string
}

// Enabled reports whether Pub/Sub publishing is configured.
func (c EventsConfig) Enabled() bool {
	return c.ProjectID != "" && c.TopicID != ""
}

// SecretsConfig configures the Secret Manager fetcher.
type SecretsConfig struct {
	ProjectID   string
	Environment string
	LocalFile   string
}

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile         string
	envMap          map[string]string
	useSystemEnv    bool
	secret          SecretResolver
	requiredSecrets []string
}

// WithEnvFile overrides the .env file path. An empty path disables dotenv loading.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) { o.envFile = path }
}

// WithEnvMap injects explicit values that take precedence over the process environment.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) { o.envMap = values }
}

// WithoutSystemEnv stops Load from consulting the process environment.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) { o.useSystemEnv = false }
}

// WithSecretResolver sets the resolver used for secret:// and sm:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) { o.secret = resolver }
}

// WithRequiredSecrets marks secret fields (e.g. "Session.HashKey") as mandatory.
func WithRequiredSecrets(names ...string) Option {
	return func(o *loaderOptions) { o.requiredSecrets = append(o.requiredSecrets, names...) }
}

// EnvironmentValues returns the merged environment (dotenv < OS env < explicit map)
// so callers can build dependencies, such as the secret fetcher, before Load.
func EnvironmentValues(opts ...Option) (map[string]string, error) {
	options := newLoaderOptions(opts)
	dotEnv, err := loadDotEnv(options.envFile)
	if err != nil {
		return nil, err
	}
	values := make(map[string]string, len(dotEnv))
	for k, v := range dotEnv {
		values[k] = v
	}
	if options.useSystemEnv {
		for _, entry := range os.Environ() {
			key, value, ok := strings.Cut(entry, "=")
			if ok && strings.TrimSpace(key) != "" {
				values[key] = value
			}
		}
	}
	for k, v := range options.envMap {
		values[k] = v
	}
	return values, nil
}

// Load assembles configuration from defaults, .env, the environment and secret references.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := newLoaderOptions(opts)
	values, err := EnvironmentValues(opts...)
	if err != nil {
		return Config{}, err
	}
	env := lookupFunc(func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	})

	gateway := strings.TrimRight(env.str("STOREFRONT_GATEWAY_URL", ""), "/")
	cfg := Config{
		Server: ServerConfig{
			Port:            env.str("STOREFRONT_PORT", env.str("PORT", defaultPort)),
			ReadTimeout:     env.duration("STOREFRONT_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout:    env.duration("STOREFRONT_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:     env.duration("STOREFRONT_IDLE_TIMEOUT", defaultIdleTimeout),
			ShutdownTimeout: env.duration("STOREFRONT_SHUTDOWN_TIMEOUT", defaultShutdownTimeout),
		},
		Upstream: UpstreamConfig{
			GatewayURL:      gateway,
			ChatURL:         strings.TrimRight(env.str("STOREFRONT_CHAT_URL", ""), "/"),
			CallURL:         strings.TrimRight(env.str("STOREFRONT_CALL_URL", ""), "/"),
			OrderSocketURL:  strings.TrimRight(env.str("STOREFRONT_ORDER_SOCKET_URL", ""), "/"),
			Timeout:         env.duration("STOREFRONT_UPSTREAM_TIMEOUT", defaultUpstreamTimeout),
			BreakerFailures: env.integer("STOREFRONT_BREAKER_FAILURES", defaultBreakerFailures),
			BreakerCooldown: env.duration("STOREFRONT_BREAKER_COOLDOWN", defaultBreakerCooldown),
		},
		Session: SessionConfig{
			CookieName:    env.str("STOREFRONT_SESSION_COOKIE", defaultCookieName),
			HashKey:       env.str("STOREFRONT_SESSION_HASH_KEY", ""),
			BlockKey:      env.str("STOREFRONT_SESSION_BLOCK_KEY", ""),
			Secure:        env.boolean("STOREFRONT_SESSION_SECURE", true),
			IdleTTL:       env.duration("STOREFRONT_SESSION_IDLE_TTL", defaultSessionIdleTTL),
			SweepInterval: env.duration("STOREFRONT_SESSION_SWEEP_INTERVAL", defaultSweepInterval),
		},
		Auth: AuthConfig{
			RefreshBuffer: env.duration("STOREFRONT_REFRESH_BUFFER", defaultRefreshBuffer),
		},
		Checkout: CheckoutConfig{
			CouponAttemptsPerMinute: env.integer("STOREFRONT_COUPON_ATTEMPTS_PER_MIN", defaultCouponPerMinute),
			Currency:                strings.ToUpper(env.str("STOREFRONT_CURRENCY", defaultCurrency)),
			Locale:                  env.str("STOREFRONT_LOCALE", defaultLocale),
		},
		CORS: CORSConfig{
			AllowedOrigins: env.csv("STOREFRONT_CORS_ORIGINS"),
		},
		Events: EventsConfig{
			ProjectID: env.str("STOREFRONT_PUBSUB_PROJECT_ID", ""),
			TopicID:   env.str("STOREFRONT_PUBSUB_TOPIC", ""),
		},
		Secrets: SecretsConfig{
			ProjectID:   env.str("STOREFRONT_SECRETS_PROJECT_ID", ""),
			Environment: strings.ToLower(env.str("STOREFRONT_ENVIRONMENT", defaultSecretsEnv)),
			LocalFile:   env.str("STOREFRONT_SECRETS_LOCAL_FILE", ".secrets.local"),
		},
	}

	// The order socket lives behind the gateway unless overridden.
	if cfg.Upstream.OrderSocketURL == "" && gateway != "" {
		cfg.Upstream.OrderSocketURL = websocketURL(gateway) + "/api/socket"
	}

	resolved := make(map[string]string)
	for _, target := range []struct {
		name  string
		field *string
	}{
		{"Session.HashKey", &cfg.Session.HashKey},
		{"Session.BlockKey", &cfg.Session.BlockKey},
	} {
		value, err := resolveSecret(ctx, *target.field, options.secret)
		if err != nil {
			return Config{}, err
		}
		*target.field = value
		resolved[target.name] = value
	}

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	if missing := findMissingSecrets(options.requiredSecrets, resolved); missing != nil {
		return Config{}, missing
	}
	return cfg, nil
}

func newLoaderOptions(opts []Option) loaderOptions {
	options := loaderOptions{envFile: defaultEnvFile, useSystemEnv: true}
	for _, opt := range opts {
		opt(&options)
	}
	return options
}

func validate(cfg Config) error {
	var invalid []string
	if cfg.Server.Port == "" {
		invalid = append(invalid, "Server.Port")
	}
	if !isHTTPURL(cfg.Upstream.GatewayURL) {
		invalid = append(invalid, "Upstream.GatewayURL")
	}
	if cfg.Upstream.ChatURL != "" && !isHTTPURL(cfg.Upstream.ChatURL) {
		invalid = append(invalid, "Upstream.ChatURL")
	}
	if cfg.Upstream.CallURL != "" && !isHTTPURL(cfg.Upstream.CallURL) {
		invalid = append(invalid, "Upstream.CallURL")
	}
	if cfg.Upstream.Timeout <= 0 {
		invalid = append(invalid, "Upstream.Timeout")
	}
	if cfg.Upstream.BreakerFailures <= 0 {
		invalid = append(invalid, "Upstream.BreakerFailures")
	}
	if len(cfg.Session.HashKey) < minSessionHashKeyLength {
		invalid = append(invalid, "Session.HashKey")
	}
	switch len(cfg.Session.BlockKey) {
	case 0, 16, 24, 32:
	default:
		invalid = append(invalid, "Session.BlockKey")
	}
	if cfg.Session.IdleTTL <= 0 {
		invalid = append(invalid, "Session.IdleTTL")
	}
	if cfg.Auth.RefreshBuffer < 0 {
		invalid = append(invalid, "Auth.RefreshBuffer")
	}
	if cfg.Checkout.CouponAttemptsPerMinute <= 0 {
		invalid = append(invalid, "Checkout.CouponAttemptsPerMinute")
	}
	if len(invalid) > 0 {
		return &ValidationError{fields: invalid}
	}
	return nil
}

// ValidationError lists configuration fields that are missing or invalid.
type ValidationError struct {
	fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the offending field names.
func (e *ValidationError) Fields() []string {
	return append([]string(nil), e.fields...)
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func websocketURL(httpURL string) string {
	switch {
	case strings.HasPrefix(httpURL, "https://"):
		return "wss://" + strings.TrimPrefix(httpURL, "https://")
	case strings.HasPrefix(httpURL, "http://"):
		return "ws://" + strings.TrimPrefix(httpURL, "http://")
	default:
		return httpURL
	}
}
