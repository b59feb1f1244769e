package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port      string
	Env       string
	Store     StoreConfig
	Archive   ArchiveConfig
	Relay     RelayConfig
	Analytics AnalyticsConfig
	Seed      SeedConfig
	Push      PushConfig
	Cache     CacheConfig

	ShutdownTimeout time.Duration
}

// StoreConfig selects the screen config backend: memory, bolt or postgres.
type StoreConfig struct {
	Backend     string
	BoltPath    string
	DatabaseURL string
}

// ArchiveConfig is the S3-compatible bucket holding every committed version.
type ArchiveConfig struct {
	Enabled   bool
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

func (c ArchiveConfig) CanUseS3() bool {
	return c.Enabled &&
		strings.TrimSpace(c.Endpoint) != "" &&
		strings.TrimSpace(c.AccessKey) != "" &&
		strings.TrimSpace(c.SecretKey) != "" &&
		strings.TrimSpace(c.Bucket) != ""
}

type RelayConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Channel       string
}

type AnalyticsConfig struct {
	KafkaBrokers []string
	KafkaTopic   string
}

type SeedConfig struct {
	Path  string
	Watch bool
}

type PushConfig struct {
	StaleAfter   time.Duration
	SweepEvery   time.Duration
	InboundRate  float64
	InboundBurst int
}

type CacheConfig struct {
	MaxTTL     time.Duration
	MaxEntries int
}

func Load() (*Config, error) {
	return LoadArgs(os.Args[1:])
}

// LoadArgs reads .env and the environment, then applies command-line
// flags. Flags given explicitly win over the environment, except -port,
// which PORT still overrides.
func LoadArgs(args []string) (*Config, error) {
	_ = godotenv.Load()

	fs := flag.NewFlagSet("gateway", flag.ContinueOnError)
	port := fs.String("port", ":8080", "server port")
	store := fs.String("store", "", "screen store backend: memory, bolt or postgres")
	seedPath := fs.String("seed", "", "seed YAML file replacing the embedded seed")
	watch := fs.Bool("watch", false, "reload the seed file on change")
	shutdown := fs.Duration("shutdown-timeout", 0, "graceful shutdown deadline")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg := FromEnv(*port)
	var bad error
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "store":
			backend := strings.ToLower(strings.TrimSpace(*store))
			switch backend {
			case "memory", "bolt", "postgres":
				cfg.Store.Backend = backend
			default:
				bad = fmt.Errorf("unknown store backend %q", *store)
			}
		case "seed":
			cfg.Seed.Path = strings.TrimSpace(*seedPath)
		case "watch":
			cfg.Seed.Watch = *watch
		case "shutdown-timeout":
			if *shutdown > 0 {
				cfg.ShutdownTimeout = *shutdown
			}
		}
	})
	if bad != nil {
		return nil, bad
	}
	if strings.EqualFold(cfg.Env, "local") {
		applyLocalDefaults(cfg)
	}
	return cfg, nil
}

// FromEnv builds the config from the process environment. PORT overrides
// the given default port.
func FromEnv(port string) *Config {
	if envPort := os.Getenv("PORT"); envPort != "" {
		port = envPort
	}
	if !strings.HasPrefix(port, ":") {
		port = ":" + port
	}

	env := strings.TrimSpace(os.Getenv("APP_ENV"))
	if env == "" {
		env = "local"
	}

	cfg := &Config{
		Port: port,
		Env:  env,
		Store: StoreConfig{
			Backend:     strings.ToLower(firstNonEmpty(strings.TrimSpace(os.Getenv("STORE_BACKEND")), "memory")),
			BoltPath:    firstNonEmpty(strings.TrimSpace(os.Getenv("BOLT_PATH")), "tmp/screens.db"),
			DatabaseURL: strings.TrimSpace(os.Getenv("DATABASE_URL")),
		},
		Archive: loadArchiveConfig(env),
		Relay: RelayConfig{
			RedisAddr:     strings.TrimSpace(os.Getenv("REDIS_ADDR")),
			RedisPassword: os.Getenv("REDIS_PASSWORD"),
			RedisDB:       envInt("REDIS_DB", 0),
			Channel:       firstNonEmpty(strings.TrimSpace(os.Getenv("REDIS_CHANNEL")), "sdui:push"),
		},
		Analytics: AnalyticsConfig{
			KafkaBrokers: splitList(os.Getenv("KAFKA_BROKERS")),
			KafkaTopic:   firstNonEmpty(strings.TrimSpace(os.Getenv("KAFKA_TOPIC")), "sdui-analytics"),
		},
		Seed: SeedConfig{
			Path:  strings.TrimSpace(os.Getenv("SEED_PATH")),
			Watch: envBool("SEED_WATCH", false),
		},
		Push: PushConfig{
			StaleAfter:   envDuration("STALE_AFTER", 90*time.Second),
			SweepEvery:   envDuration("SWEEP_EVERY", 30*time.Second),
			InboundRate:  envFloat("WS_INBOUND_RATE", 20),
			InboundBurst: envInt("WS_INBOUND_BURST", 40),
		},
		Cache: CacheConfig{
			MaxTTL:     envDuration("CACHE_MAX_TTL", 5*time.Minute),
			MaxEntries: envInt("CACHE_MAX_ENTRIES", 4096),
		},
		ShutdownTimeout: envDuration("SHUTDOWN_TIMEOUT", 5*time.Second),
	}
	if strings.EqualFold(env, "local") {
		applyLocalDefaults(cfg)
	}
	return cfg
}

func loadArchiveConfig(env string) ArchiveConfig {
	endpoint := strings.TrimSpace(os.Getenv("ARCHIVE_S3_ENDPOINT"))
	return ArchiveConfig{
		Enabled:   endpoint != "" || envBool("ARCHIVE_ENABLED", false),
		Endpoint:  endpoint,
		Region:    firstNonEmpty(strings.TrimSpace(os.Getenv("ARCHIVE_S3_REGION")), "us-east-1"),
		AccessKey: firstNonEmpty(strings.TrimSpace(os.Getenv("ARCHIVE_S3_ACCESS_KEY")), strings.TrimSpace(os.Getenv("MINIO_ROOT_USER"))),
		SecretKey: firstNonEmpty(strings.TrimSpace(os.Getenv("ARCHIVE_S3_SECRET_KEY")), strings.TrimSpace(os.Getenv("MINIO_ROOT_PASSWORD"))),
		Bucket:    firstNonEmpty(strings.TrimSpace(os.Getenv("ARCHIVE_S3_BUCKET")), "sdui-screen-archive"),
		UseSSL:    resolveArchiveUseSSL(env),
	}
}

func resolveArchiveUseSSL(env string) bool {
	if strings.EqualFold(strings.TrimSpace(env), "local") {
		return false
	}
	return envBool("ARCHIVE_S3_USE_SSL", true)
}

func envBool(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return v
}

func envInt(key string, def int) int {
	v, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return def
	}
	return v
}

func envFloat(key string, def float64) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(os.Getenv(key)), 64)
	if err != nil {
		return def
	}
	return v
}

func envDuration(key string, def time.Duration) time.Duration {
	v, err := time.ParseDuration(strings.TrimSpace(os.Getenv(key)))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
