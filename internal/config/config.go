// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes server timeouts,
// logging, storage, the transcription engine, the worker pool, rate limiting,
// and observability settings.
package config

import (
	"errors"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "go-transcribe-backend")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// DBConfig selects the database driver and its DSN.
type DBConfig struct {
	Driver string // sqlite|postgres
	DSN    string // file path for sqlite, URL for postgres
}

// AuthConfig holds session-token and password hashing settings.
type AuthConfig struct {
	JWTSecret     string        // JWT_SECRET
	JWTTTL        time.Duration // JWT_TTL
	InternalToken string        // INTERNAL_API_TOKEN; empty disables the internal route
	BcryptCost    int           // BCRYPT_COST
}

// EngineConfig configures the external speech-to-text engine.
type EngineConfig struct {
	APIKey     string        // OPENAI_API_KEY
	BaseURL    string        // OPENAI_BASE_URL
	Model      string        // OPENAI_MODEL
	Timeout    time.Duration // ENGINE_TIMEOUT per HTTP attempt
	MaxRetries int           // ENGINE_MAX_RETRIES
}

// WorkerConfig sizes the background task pool.
type WorkerConfig struct {
	Workers        int           // WORKERS
	QueueSize      int           // QUEUE_SIZE
	ProcessTimeout time.Duration // PROCESS_TIMEOUT per task
}

// S3Config configures S3-compatible object storage for uploads.
type S3Config struct {
	Endpoint   string        // S3_ENDPOINT (empty = AWS)
	Region     string        // S3_REGION
	Bucket     string        // S3_BUCKET; empty disables uploads
	AccessKey  string        // S3_ACCESS_KEY
	SecretKey  string        // S3_SECRET_KEY
	PresignTTL time.Duration // S3_PRESIGN_TTL
}

// Enabled reports whether uploads can be stored.
func (c S3Config) Enabled() bool { return strings.TrimSpace(c.Bucket) != "" }

// Host is the hostname presigned upload URLs point at, or "" when uploads
// are disabled.
func (c S3Config) Host() string {
	if !c.Enabled() {
		return ""
	}
	if c.Endpoint != "" {
		u, err := url.Parse(c.Endpoint)
		if err != nil {
			return ""
		}
		return u.Hostname()
	}
	return c.Bucket + ".s3." + c.Region + ".amazonaws.com"
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// App
	DB              DBConfig
	Auth            AuthConfig
	Engine          EngineConfig
	Worker          WorkerConfig
	S3              S3Config
	FetchMaxBytes   int64   // cap on downloaded audio
	MaxUploadBytes  int64   // cap on multipart uploads
	SearchThreshold float64 // minimum transcript search score [0,1]

	// Audio fetching. FETCH_ALLOWED_HOSTS restricts audio URLs to these hosts
	// (the upload bucket is added automatically); empty allows any public host.
	// Loopback and private ranges are refused unless FETCH_ALLOW_PRIVATE is set.
	FetchAllowedHosts []string
	FetchAllowPrivate bool

	// Rate limiting
	RateRPS             float64 // tokens per second (>= 0)
	RateBurst           int     // bucket size (>= 1)
	TranscribeRateRPS   float64 // stricter bucket for transcription routes
	TranscribeRateBurst int

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration // how long a given Idempotency-Key is valid

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 5*time.Minute),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// App
		DB: DBConfig{
			Driver: strings.ToLower(getenv("DB_DRIVER", "sqlite")),
			DSN:    getenv("DB_DSN", getenv("DB_PATH", "app.db")),
		},
		Auth: AuthConfig{
			JWTSecret:     getenv("JWT_SECRET", ""),
			JWTTTL:        getdur("JWT_TTL", 24*time.Hour),
			InternalToken: getenv("INTERNAL_API_TOKEN", ""),
			BcryptCost:    getint("BCRYPT_COST", 12),
		},
		Engine: EngineConfig{
			APIKey:     getenv("OPENAI_API_KEY", ""),
			BaseURL:    strings.TrimRight(getenv("OPENAI_BASE_URL", "https://api.openai.com/v1"), "/"),
			Model:      getenv("OPENAI_MODEL", "whisper-1"),
			Timeout:    getdur("ENGINE_TIMEOUT", 2*time.Minute),
			MaxRetries: getint("ENGINE_MAX_RETRIES", 3),
		},
		Worker: WorkerConfig{
			Workers:        getint("WORKERS", 4),
			QueueSize:      getint("QUEUE_SIZE", 100),
			ProcessTimeout: getdur("PROCESS_TIMEOUT", 10*time.Minute),
		},
		S3: S3Config{
			Endpoint:   getenv("S3_ENDPOINT", ""),
			Region:     getenv("S3_REGION", "us-east-1"),
			Bucket:     getenv("S3_BUCKET", ""),
			AccessKey:  getenv("S3_ACCESS_KEY", ""),
			SecretKey:  getenv("S3_SECRET_KEY", ""),
			PresignTTL: getdur("S3_PRESIGN_TTL", 24*time.Hour),
		},
		FetchMaxBytes:   getint64("FETCH_MAX_BYTES", 100<<20),
		MaxUploadBytes:  getint64("MAX_UPLOAD_BYTES", 50<<20),
		SearchThreshold: getfloat("SEARCH_THRESHOLD", 0.1),

		// Audio fetching
		FetchAllowedHosts: splitCSV(getenv("FETCH_ALLOWED_HOSTS", "")),
		FetchAllowPrivate: getbool("FETCH_ALLOW_PRIVATE", false),

		// Rate limiting
		RateRPS:             getfloat("RATE_RPS", 5.0),
		RateBurst:           getint("RATE_BURST", 10),
		TranscribeRateRPS:   getfloat("TRANSCRIBE_RATE_RPS", 0.5),
		TranscribeRateBurst: getint("TRANSCRIBE_RATE_BURST", 3),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Idempotency
		IdempotencyTTL: getdur("IDEMPOTENCY_TTL", 24*time.Hour),

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-transcribe-backend"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}
	if cfg.DB.Driver == "postgresql" {
		cfg.DB.Driver = "postgres"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	switch cfg.DB.Driver {
	case "sqlite", "postgres":
	default:
		return cfg, errors.New("DB_DRIVER must be one of: sqlite, postgres")
	}
	if strings.TrimSpace(cfg.DB.DSN) == "" {
		return cfg, errors.New("DB_DSN must not be empty")
	}
	if len(cfg.Auth.JWTSecret) < 32 {
		return cfg, errors.New("JWT_SECRET must be at least 32 characters")
	}
	if cfg.Auth.JWTTTL <= 0 {
		return cfg, errors.New("JWT_TTL must be > 0")
	}
	if cfg.Auth.BcryptCost < 4 || cfg.Auth.BcryptCost > 31 {
		return cfg, errors.New("BCRYPT_COST must be between 4 and 31")
	}
	if cfg.Engine.Timeout <= 0 {
		return cfg, errors.New("ENGINE_TIMEOUT must be > 0")
	}
	if cfg.Engine.MaxRetries < 0 {
		return cfg, errors.New("ENGINE_MAX_RETRIES must be >= 0")
	}
	if cfg.Worker.Workers < 1 {
		return cfg, errors.New("WORKERS must be >= 1")
	}
	if cfg.Worker.QueueSize < 1 {
		return cfg, errors.New("QUEUE_SIZE must be >= 1")
	}
	if cfg.Worker.ProcessTimeout <= 0 {
		return cfg, errors.New("PROCESS_TIMEOUT must be > 0")
	}
	if cfg.FetchMaxBytes <= 0 || cfg.MaxUploadBytes <= 0 {
		return cfg, errors.New("FETCH_MAX_BYTES and MAX_UPLOAD_BYTES must be > 0")
	}
	if cfg.S3.Enabled() && cfg.S3.PresignTTL <= 0 {
		return cfg, errors.New("S3_PRESIGN_TTL must be > 0")
	}
	if cfg.SearchThreshold < 0 || cfg.SearchThreshold > 1 {
		return cfg, errors.New("SEARCH_THRESHOLD must be between 0 and 1")
	}
	if cfg.RateRPS < 0 || cfg.TranscribeRateRPS < 0 {
		return cfg, errors.New("RATE_RPS and TRANSCRIBE_RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 || cfg.TranscribeRateBurst < 1 {
		return cfg, errors.New("RATE_BURST and TRANSCRIBE_RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.IdempotencyTTL <= 0 {
		return cfg, errors.New("IDEMPOTENCY_TTL must be > 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getint64(k string, def int64) int64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
