package http

import (
	"context"
	"net/http"
	"time"

	"trajectoryd/internal/config"
	"trajectoryd/internal/domain"
	"trajectoryd/internal/infra/cachemem"
	"trajectoryd/internal/infra/challengemem"
	"trajectoryd/internal/infra/crypto"
	"trajectoryd/internal/infra/db"
	"trajectoryd/internal/infra/identmem"
	"trajectoryd/internal/infra/merkle"
	"trajectoryd/internal/infra/policyopa"
	"trajectoryd/internal/infra/ratelimit"
	"trajectoryd/internal/usecase"

	"github.com/gin-gonic/gin"
)

type Server struct {
	cfg   config.Config
	store *db.Store
	r     *gin.Engine

	verifySvc  *usecase.VerificationService
	challenges *challengemem.Store
	policy     usecase.PolicyEngine

	policyInitErr error

	rateLimiter       domain.RateLimiter
	rateLimitRequests int
	rateLimitWindow   time.Duration
}

func NewServer(cfg config.Config, store *db.Store) *Server {
	r := gin.New()
	r.Use(gin.Recovery())

	s := &Server{cfg: cfg, store: store, r: r}
	s.initDeps()
	s.routes()
	return s
}

type ServerDeps struct {
	Verify      *usecase.VerificationService
	Challenges  *challengemem.Store
	Policy      usecase.PolicyEngine
	RateLimiter domain.RateLimiter
}

func NewServerWithDeps(cfg config.Config, deps ServerDeps) *Server {
	r := gin.New()
	r.Use(gin.Recovery())

	s := &Server{
		cfg:        cfg,
		r:          r,
		verifySvc:  deps.Verify,
		challenges: deps.Challenges,
		policy:     deps.Policy,
	}
	s.initRateLimit(deps.RateLimiter)
	s.routes()
	return s
}

func (s *Server) initDeps() {
	cryptoSvc := crypto.NewService()

	var identities usecase.IdentityStore
	if s.store != nil && s.store.DB != nil {
		identities = db.NewIdentityRepository(s.store.DB)
	} else {
		identities = identmem.New()
	}

	chain := &usecase.ChainVerifier{
		Identities: identities,
		Crypto:     cryptoSvc,
	}

	s.challenges = challengemem.New()
	manager := &usecase.ChallengeManager{
		Identities: identities,
		Store:      s.challenges,
		Crypto:     cryptoSvc,
		DefaultTTL: s.cfg.ChallengeTTL(),
		MaxTTL:     s.cfg.ChallengeMaxTTL(),
	}

	var cache usecase.VerificationCache
	if s.cfg.VerifyCacheTTLSeconds > 0 {
		cache = cachemem.New()
	}

	s.verifySvc = &usecase.VerificationService{
		Identities: identities,
		Chain:      chain,
		Challenges: manager,
		Cache:      cache,
		Crypto:     cryptoSvc,
		Inclusion:  &merkle.Service{},
		CacheTTL:   s.cfg.VerifyCacheTTL(),
		BatchMax:   s.cfg.BatchMaxIdentifiers,
	}

	if s.cfg.PolicyBundlePath != "" {
		engine, err := policyopa.NewEngineFromBundlePath(context.Background(), s.cfg.PolicyBundlePath, s.cfg.PolicyBundleID)
		if err != nil {
			s.policyInitErr = err
		} else {
			s.policy = engine
		}
	}

	s.initRateLimit(nil)
}

func (s *Server) initRateLimit(override domain.RateLimiter) {
	if override != nil {
		s.rateLimiter = override
	}
	if s.rateLimiter == nil && s.cfg.RateLimitRequests > 0 {
		if s.cfg.RedisAddr != "" {
			if limiter, err := ratelimit.NewRedisLimiter(s.cfg.RedisAddr, s.cfg.RedisPassword, s.cfg.RedisDB, nil); err == nil {
				s.rateLimiter = limiter
			}
		}
		if s.rateLimiter == nil {
			s.rateLimiter = ratelimit.NewMemoryLimiter(ratelimit.MemoryLimiterConfig{
				MaxKeys: s.cfg.RateLimitMaxKeys,
			})
		}
	}
	s.rateLimitRequests = s.cfg.RateLimitRequests
	if s.cfg.RateLimitWindowSeconds > 0 {
		s.rateLimitWindow = time.Duration(s.cfg.RateLimitWindowSeconds) * time.Second
	}
}

func (s *Server) routes() {
	s.r.GET("/healthz", func(c *gin.Context) {
		dbMode := "no-db"
		if s.store != nil && s.store.DB != nil {
			dbMode = "db"
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "mode": dbMode})
	})

	v1 := s.r.Group("/v1")
	v1.Use(s.rateLimitMiddleware())
	{
		v1.GET("/verify/:identifier", s.handleVerify)
		v1.GET("/verify/:identifier/level/:level", s.handleVerifyLevel)
		v1.POST("/verify/challenge", s.handleIssueChallenge)
		v1.POST("/verify/challenge/:challenge_id", s.handleSubmitChallenge)
		v1.POST("/verify/batch", s.handleVerifyBatch)
		v1.POST("/verify/breadcrumb", s.handleVerifyBreadcrumb)
	}

	s.r.NoRoute(func(c *gin.Context) {
		writeErrorCode(c, http.StatusNotFound, "NOT_FOUND", "route not found")
	})
}

func (s *Server) Run() error {
	if s.policyInitErr != nil {
		return s.policyInitErr
	}
	if s.challenges != nil {
		s.challenges.StartSweep(context.Background(), s.cfg.ChallengeSweepInterval())
	}
	return s.r.Run(s.cfg.HTTPAddr)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.r
}
