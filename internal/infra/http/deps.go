package http

import (
	"context"
	"errors"
	"fmt"
	"time"

	"credanchor/internal/config"
	"credanchor/internal/domain"
	"credanchor/internal/infra/chain"
	"credanchor/internal/infra/db"
	"credanchor/internal/infra/hashlock"
	"credanchor/internal/infra/metrics"
	"credanchor/internal/infra/policyopa"
	"credanchor/internal/infra/ratelimit"
	"credanchor/internal/infra/recordmem"
	"credanchor/internal/infra/vault"
	"credanchor/internal/infra/vault/kvvault"
	"credanchor/internal/infra/vault/localfs"
	"credanchor/internal/infra/vault/s3vault"
	"credanchor/internal/usecase"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	hashLockTTL     = 30 * time.Second
	receiptCacheTTL = time.Hour
)

func (s *Server) initDeps(ctx context.Context) error {
	s.metrics = metrics.New()

	var (
		credentials domain.CredentialRepository
		anchors     domain.AnchorRepository
	)
	if s.store != nil && s.store.DB != nil {
		credentials = db.NewCredentialRepository(s.store.DB)
		anchors = db.NewAnchorRepository(s.store.DB)
		s.mode = "db"
	} else {
		credentials = recordmem.NewCredentials(nil)
		anchors = recordmem.NewAnchors(nil)
		s.mode = "no-db"
	}

	store, err := buildVault(ctx, s.cfg)
	if err != nil {
		return err
	}
	chainClient, err := s.buildChain()
	if err != nil {
		return err
	}
	policy, err := policyopa.NewEngine(ctx, s.cfg.PolicyPath, s.cfg.AllowedMimeTypes)
	if err != nil {
		return fmt.Errorf("admission policy: %w", err)
	}

	var (
		locker  domain.HashLocker
		limiter domain.RateLimiter
	)
	if s.cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     s.cfg.RedisAddr,
			Password: s.cfg.RedisPassword,
			DB:       s.cfg.RedisDB,
		})
		s.closers = append(s.closers, client.Close)
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		if locker, err = hashlock.NewRedis(client, hashLockTTL); err != nil {
			return err
		}
		if s.cfg.RateLimitRequests > 0 {
			if limiter, err = ratelimit.NewRedis(client, nil); err != nil {
				return err
			}
		}
	} else {
		locker = hashlock.NewMemory()
	}
	s.initRateLimit(limiter)

	s.submitter = usecase.NewAnchorSubmitter(anchors, credentials, chainClient, usecase.SubmitterOptions{
		Workers:      s.cfg.AnchorWorkers,
		QueueSize:    s.cfg.AnchorQueueSize,
		ChainTimeout: s.cfg.ChainTimeout(),
		PollAttempts: s.cfg.AnchorPollAttempts,
		PollInterval: s.cfg.AnchorPollInterval(),
		Fallback:     s.cfg.AnchorFallback,
		Locker:       locker,
		Observer:     s.metrics,
		Log:          s.log.Named("anchor"),
	})
	s.issuer = &usecase.ProofIssuer{
		Credentials:   credentials,
		Vault:         store,
		Locker:        locker,
		Policy:        policy,
		Anchors:       s.submitter,
		MaxFileBytes:  s.cfg.MaxFileBytes,
		MaxFieldBytes: s.cfg.MaxFieldBytes,
		VaultTimeout:  s.cfg.VaultTimeout(),
		Log:           s.log.Named("issuer"),
	}
	s.verifier = &usecase.ProofVerifier{
		Credentials: credentials,
		Anchors:     anchors,
		Refresher:   s.submitter,
		Log:         s.log.Named("verifier"),
	}
	s.admin = &usecase.RecordAdmin{
		Credentials:  credentials,
		Anchors:      anchors,
		Vault:        store,
		Locker:       locker,
		VaultTimeout: s.cfg.VaultTimeout(),
		Log:          s.log.Named("admin"),
	}
	return nil
}

func buildVault(ctx context.Context, cfg config.Config) (domain.Vault, error) {
	key, err := cfg.MasterKey()
	if err != nil {
		return nil, err
	}
	var sealer *vault.Sealer
	if key != nil {
		if sealer, err = vault.NewSealer(key); err != nil {
			return nil, err
		}
	}

	switch cfg.VaultBackend {
	case config.VaultBackendMemory, "":
		return vault.NewMemory(sealer), nil
	case config.VaultBackendLocalFS:
		return localfs.New(cfg.LocalFSRoot, sealer)
	case config.VaultBackendS3:
		if sealer == nil {
			return nil, errors.New("VAULT_BACKEND=s3 requires VAULT_MASTER_KEY")
		}
		return s3vault.New(ctx, s3vault.Options{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Prefix:    cfg.S3Prefix,
		}, sealer)
	case config.VaultBackendHashicorp:
		client, err := kvvault.NewClient(cfg.HashicorpVaultAddr, cfg.HashicorpVaultToken, cfg.HashicorpVaultMount)
		if err != nil {
			return nil, fmt.Errorf("hashicorp vault: %w", err)
		}
		return kvvault.New(client, sealer), nil
	default:
		return nil, fmt.Errorf("unknown VAULT_BACKEND %q", cfg.VaultBackend)
	}
}

func (s *Server) buildChain() (domain.ChainClient, error) {
	var next domain.ChainClient = chain.Unconfigured{}
	if s.cfg.ChainRPCURL != "" {
		rpc, err := chain.NewRPCClient(chain.Options{
			URL:  s.cfg.ChainRPCURL,
			From: s.cfg.ChainFromAddress,
			To:   s.cfg.ChainToAddress,
		})
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, rpc.Close)
		next = rpc
	}
	return chain.NewCachingClient(next, s.cfg.ReceiptCacheSize, receiptCacheTTL, s.metrics), nil
}

func (s *Server) initRateLimit(override domain.RateLimiter) {
	if override != nil {
		s.rateLimiter = override
	}
	if s.rateLimiter == nil && s.cfg.RateLimitRequests > 0 {
		s.rateLimiter = ratelimit.NewMemory(s.cfg.RateLimitMaxKeys, nil)
	}
	s.rateLimitRequests = s.cfg.RateLimitRequests
	s.rateLimitWindow = s.cfg.RateLimitWindow()
	s.rateLimitFailClosed = s.cfg.RateLimitFailClosed
	if s.log != nil && s.rateLimiter != nil {
		s.log.Debug("rate limiting enabled", zap.Int("requests", s.rateLimitRequests), zap.Duration("window", s.rateLimitWindow))
	}
}
