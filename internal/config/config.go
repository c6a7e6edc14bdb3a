package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	VaultBackendMemory    = "memory"
	VaultBackendLocalFS   = "localfs"
	VaultBackendS3        = "s3"
	VaultBackendHashicorp = "hashicorp"
)

const (
	AnchorFallbackAny         = "any"
	AnchorFallbackUnsupported = "unsupported"
	AnchorFallbackNever       = "never"
)

type Config struct {
	HTTPAddr    string
	PostgresDSN string
	LogLevel    string

	AuthMode    string
	AdminAPIKey string
	JWTSecret   string
	JWTIssuer   string

	MaxFileBytes     int64
	MaxFieldBytes    int64
	AllowedMimeTypes []string
	PolicyPath       string

	VaultBackend        string
	VaultMasterKey      string
	VaultTimeoutSeconds int
	LocalFSRoot         string

	S3Bucket    string
	S3Region    string
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3Prefix    string

	HashicorpVaultAddr  string
	HashicorpVaultToken string
	HashicorpVaultMount string

	ChainRPCURL         string
	ChainFromAddress    string
	ChainToAddress      string
	ChainTimeoutSeconds int

	AnchorFallback            string
	AnchorPollAttempts        int
	AnchorPollIntervalSeconds int
	AnchorWorkers             int
	AnchorQueueSize           int
	ReceiptCacheSize          int

	RateLimitRequests      int
	RateLimitWindowSeconds int
	RateLimitFailClosed    bool
	RateLimitMaxKeys       int

	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

func FromEnv() Config {
	return Config{
		HTTPAddr:                  envDefault("HTTP_ADDR", ":8080"),
		PostgresDSN:               os.Getenv("POSTGRES_DSN"),
		LogLevel:                  envDefault("LOG_LEVEL", "info"),
		AuthMode:                  envDefault("AUTH_MODE", "none"),
		AdminAPIKey:               os.Getenv("ADMIN_API_KEY"),
		JWTSecret:                 os.Getenv("JWT_SECRET"),
		JWTIssuer:                 os.Getenv("JWT_ISSUER"),
		MaxFileBytes:              int64(envIntDefault("MAX_FILE_BYTES", 10<<20)),
		MaxFieldBytes:             int64(envIntDefault("MAX_FIELD_BYTES", 4096)),
		AllowedMimeTypes:          envList("ALLOWED_MIME_TYPES"),
		PolicyPath:                os.Getenv("POLICY_PATH"),
		VaultBackend:              envDefault("VAULT_BACKEND", VaultBackendMemory),
		VaultMasterKey:            os.Getenv("VAULT_MASTER_KEY"),
		VaultTimeoutSeconds:       envIntDefault("VAULT_TIMEOUT_SECONDS", 10),
		LocalFSRoot:               envDefault("LOCALFS_ROOT", "./data/vault"),
		S3Bucket:                  os.Getenv("S3_BUCKET"),
		S3Region:                  envDefault("S3_REGION", "us-east-1"),
		S3Endpoint:                os.Getenv("S3_ENDPOINT"),
		S3AccessKey:               os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:               os.Getenv("S3_SECRET_KEY"),
		S3Prefix:                  envDefault("S3_PREFIX", "credentials/"),
		HashicorpVaultAddr:        os.Getenv("HASHICORP_VAULT_ADDR"),
		HashicorpVaultToken:       os.Getenv("HASHICORP_VAULT_TOKEN"),
		HashicorpVaultMount:       envDefault("HASHICORP_VAULT_MOUNT", "secret"),
		ChainRPCURL:               os.Getenv("CHAIN_RPC_URL"),
		ChainFromAddress:          os.Getenv("CHAIN_FROM_ADDRESS"),
		ChainToAddress:            os.Getenv("CHAIN_TO_ADDRESS"),
		ChainTimeoutSeconds:       envIntDefault("CHAIN_TIMEOUT_SECONDS", 15),
		AnchorFallback:            envDefault("ANCHOR_FALLBACK", AnchorFallbackAny),
		AnchorPollAttempts:        envIntDefault("ANCHOR_POLL_ATTEMPTS", 30),
		AnchorPollIntervalSeconds: envIntDefault("ANCHOR_POLL_INTERVAL_SECONDS", 10),
		AnchorWorkers:             envIntDefault("ANCHOR_WORKERS", 4),
		AnchorQueueSize:           envIntDefault("ANCHOR_QUEUE_SIZE", 256),
		ReceiptCacheSize:          envIntDefault("RECEIPT_CACHE_SIZE", 1024),
		RateLimitRequests:         envIntDefault("RATE_LIMIT_REQUESTS", 0),
		RateLimitWindowSeconds:    envIntDefault("RATE_LIMIT_WINDOW_SECONDS", 60),
		RateLimitFailClosed:       envBoolDefault("RATE_LIMIT_FAIL_CLOSED", false),
		RateLimitMaxKeys:          envIntDefault("RATE_LIMIT_MAX_KEYS", 10000),
		RedisAddr:                 os.Getenv("REDIS_ADDR"),
		RedisPassword:             os.Getenv("REDIS_PASSWORD"),
		RedisDB:                   envIntDefault("REDIS_DB", 0),
	}
}

// Validate rejects combinations that cannot run.
func (c Config) Validate() error {
	var errs []error
	switch c.AuthMode {
	case "none":
	case "admin_key":
		if c.AdminAPIKey == "" {
			errs = append(errs, errors.New("AUTH_MODE=admin_key requires ADMIN_API_KEY"))
		}
	case "jwt":
		if c.JWTSecret == "" {
			errs = append(errs, errors.New("AUTH_MODE=jwt requires JWT_SECRET"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown AUTH_MODE %q", c.AuthMode))
	}

	switch c.VaultBackend {
	case VaultBackendMemory:
	case VaultBackendLocalFS:
		if c.VaultMasterKey == "" {
			errs = append(errs, errors.New("VAULT_BACKEND=localfs requires VAULT_MASTER_KEY"))
		}
	case VaultBackendS3:
		if c.S3Bucket == "" {
			errs = append(errs, errors.New("VAULT_BACKEND=s3 requires S3_BUCKET"))
		}
		if c.VaultMasterKey == "" {
			errs = append(errs, errors.New("VAULT_BACKEND=s3 requires VAULT_MASTER_KEY"))
		}
	case VaultBackendHashicorp:
		if c.HashicorpVaultAddr == "" || c.HashicorpVaultToken == "" {
			errs = append(errs, errors.New("VAULT_BACKEND=hashicorp requires HASHICORP_VAULT_ADDR and HASHICORP_VAULT_TOKEN"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown VAULT_BACKEND %q", c.VaultBackend))
	}
	if c.VaultMasterKey != "" {
		if _, err := c.MasterKey(); err != nil {
			errs = append(errs, err)
		}
	}

	switch c.AnchorFallback {
	case AnchorFallbackAny, AnchorFallbackUnsupported, AnchorFallbackNever:
	default:
		errs = append(errs, fmt.Errorf("unknown ANCHOR_FALLBACK %q", c.AnchorFallback))
	}
	if c.AnchorWorkers < 1 {
		errs = append(errs, fmt.Errorf("ANCHOR_WORKERS must be at least 1, got %d", c.AnchorWorkers))
	}
	if c.AnchorQueueSize < 1 {
		errs = append(errs, fmt.Errorf("ANCHOR_QUEUE_SIZE must be at least 1, got %d", c.AnchorQueueSize))
	}
	if c.AnchorPollAttempts < 1 {
		errs = append(errs, fmt.Errorf("ANCHOR_POLL_ATTEMPTS must be at least 1, got %d", c.AnchorPollAttempts))
	}
	if c.ChainRPCURL != "" && c.ChainFromAddress == "" {
		errs = append(errs, errors.New("CHAIN_RPC_URL requires CHAIN_FROM_ADDRESS"))
	}
	return errors.Join(errs...)
}

// MasterKey decodes VAULT_MASTER_KEY. An empty key yields nil.
func (c Config) MasterKey() ([]byte, error) {
	if c.VaultMasterKey == "" {
		return nil, nil
	}
	key, err := base64.StdEncoding.DecodeString(c.VaultMasterKey)
	if err != nil {
		return nil, fmt.Errorf("VAULT_MASTER_KEY: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("VAULT_MASTER_KEY must decode to 32 bytes, got %d", len(key))
	}
	return key, nil
}

func (c Config) VaultTimeout() time.Duration {
	return time.Duration(c.VaultTimeoutSeconds) * time.Second
}

func (c Config) ChainTimeout() time.Duration {
	return time.Duration(c.ChainTimeoutSeconds) * time.Second
}

func (c Config) AnchorPollInterval() time.Duration {
	return time.Duration(c.AnchorPollIntervalSeconds) * time.Second
}

func (c Config) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimitWindowSeconds) * time.Second
}

func envDefault(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func envIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parsed, err := strconv.Atoi(v)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func envBoolDefault(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	switch v {
	case "1", "true", "TRUE", "True", "yes", "YES", "Yes":
		return true
	case "0", "false", "FALSE", "False", "no", "NO", "No":
		return false
	default:
		return def
	}
}

func envList(key string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, strings.ToLower(part))
		}
	}
	return out
}
