package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"credanchor/internal/config"
	"credanchor/internal/domain"
	"credanchor/internal/infra/auth/jwtauth"
	"credanchor/internal/infra/auth/rbac"
	"credanchor/internal/infra/db"
	"credanchor/internal/infra/metrics"
	"credanchor/internal/usecase"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Server struct {
	cfg     config.Config
	store   *db.Store
	r       *gin.Engine
	srv     *http.Server
	log     *zap.Logger
	metrics *metrics.Metrics
	mode    string

	issuer    *usecase.ProofIssuer
	submitter *usecase.AnchorSubmitter
	verifier  *usecase.ProofVerifier
	admin     *usecase.RecordAdmin

	adminAPIKey   string
	authenticator domain.Authenticator
	authorizer    *rbac.Authorizer
	authInitErr   error

	rateLimiter         domain.RateLimiter
	rateLimitRequests   int
	rateLimitWindow     time.Duration
	rateLimitFailClosed bool

	closers []func() error
}

// NewServer builds every collaborator from cfg. store may carry a nil DB, in
// which case records are kept in memory.
func NewServer(ctx context.Context, cfg config.Config, store *db.Store, log *zap.Logger) (*Server, error) {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{cfg: cfg, store: store, log: log, r: newEngine()}
	if err := s.initDeps(ctx); err != nil {
		s.close()
		return nil, err
	}
	s.initAuth()
	s.routes()
	s.srv = s.newHTTPServer()
	return s, nil
}

type ServerDeps struct {
	Issuer        *usecase.ProofIssuer
	Submitter     *usecase.AnchorSubmitter
	Verifier      *usecase.ProofVerifier
	Admin         *usecase.RecordAdmin
	Metrics       *metrics.Metrics
	Logger        *zap.Logger
	AdminAPIKey   string
	Authenticator domain.Authenticator
	RateLimiter   domain.RateLimiter
}

func NewServerWithDeps(cfg config.Config, deps ServerDeps) *Server {
	s := &Server{
		cfg:           cfg,
		r:             newEngine(),
		log:           deps.Logger,
		metrics:       deps.Metrics,
		mode:          "no-db",
		issuer:        deps.Issuer,
		submitter:     deps.Submitter,
		verifier:      deps.Verifier,
		admin:         deps.Admin,
		adminAPIKey:   deps.AdminAPIKey,
		authenticator: deps.Authenticator,
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	s.initRateLimit(deps.RateLimiter)
	s.initAuth()
	s.routes()
	s.srv = s.newHTTPServer()
	return s
}

func (s *Server) newHTTPServer() *http.Server {
	return &http.Server{
		Addr:              s.cfg.HTTPAddr,
		Handler:           s.r,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func newEngine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	return r
}

func (s *Server) initAuth() {
	if s.adminAPIKey == "" {
		s.adminAPIKey = s.cfg.AdminAPIKey
	}
	switch s.cfg.AuthMode {
	case "none":
	case "admin_key":
		if s.adminAPIKey == "" {
			s.authInitErr = errors.New("AUTH_MODE=admin_key requires ADMIN_API_KEY")
		}
	case "jwt":
		if s.authenticator == nil {
			authenticator, err := jwtauth.New(s.cfg.JWTSecret, s.cfg.JWTIssuer)
			if err != nil {
				s.authInitErr = err
				return
			}
			s.authenticator = authenticator
		}
		s.authorizer = rbac.NewAuthorizer()
	case "":
		s.authInitErr = errors.New("AUTH_MODE is required")
	default:
		s.authInitErr = errors.New("unsupported auth mode")
	}
}

func (s *Server) routes() {
	s.r.Use(s.accessLog(), s.observe())

	s.r.GET("/health", s.handleHealth)
	s.r.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	s.r.POST("/upload", s.limited("upload"), s.handleUpload)
	s.r.POST("/verify", s.limited("verify"), s.handleVerify)
	s.r.POST("/compute-hash", s.limited("compute-hash"), s.handleComputeHash)

	s.r.GET("/list", s.protected(), s.handleList)
	s.r.GET("/anchors/:proofHash", s.protected(), s.handleAnchorHistory)
	s.r.POST("/anchors/:proofHash/retry", s.protected(), s.handleAnchorRetry)
	// Storage handles may contain slashes.
	s.r.DELETE("/*recordHandle", s.protected(), s.handleDelete)

	s.r.NoRoute(s.handleNoRoute)
}

// Run serves until Shutdown is called. Pending anchors from a previous run
// are resumed first.
func (s *Server) Run(ctx context.Context) error {
	if s.authInitErr != nil {
		return s.authInitErr
	}
	if s.submitter != nil {
		if _, err := s.submitter.Resume(ctx); err != nil {
			s.log.Error("resume pending anchors", zap.Error(err))
		}
	}
	s.log.Info("listening", zap.String("addr", s.cfg.HTTPAddr), zap.String("mode", s.mode))
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, drains anchor work and releases
// collaborators.
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error
	if s.srv != nil {
		if err := s.srv.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if s.submitter != nil {
		if err := s.submitter.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (s *Server) close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}
