// Package webserver is the authenticated HTTP transport over the governance
// and consent engines. The caller principal of every write is the "addr"
// claim of its JWT.
package webserver

import (
	"net/http"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/microcosm-cc/bluemonday"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/stake-plus/commons/src/config"
	"github.com/stake-plus/commons/src/consent"
	"github.com/stake-plus/commons/src/governance"
	"github.com/stake-plus/commons/src/membership"
	"github.com/stake-plus/commons/src/observability"
	"github.com/stake-plus/commons/src/polkadot"
	"github.com/stake-plus/commons/src/store"
	"github.com/stake-plus/commons/src/treasury"
)

// Deps are the collaborators the handlers call.
type Deps struct {
	Governance *governance.Engine
	Consent    *consent.Engine
	Members    *membership.Registry
	Treasury   *treasury.Service
	Ledger     store.Reader
	Nonces     NonceStore
	SS58Prefix uint16
}

type Server struct {
	gov       *governance.Engine
	consent   *consent.Engine
	members   *membership.Registry
	treasury  *treasury.Service
	ledger    store.Reader
	sanitizer *bluemonday.Policy
	prefix    uint16
}

func New(cfg config.APIConfig, d Deps) *gin.Engine {
	g := gin.New()
	g.Use(gin.Recovery(), observability.RequestLogger(observability.Component("http")), observability.RequestMetrics())
	attachRoutes(g, cfg, d)
	return g
}

func attachRoutes(r *gin.Engine, cfg config.APIConfig, d Deps) {
	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	corsCfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders: []string{"Content-Length"},
	}
	if len(origins) == 1 && origins[0] == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = origins
		corsCfg.AllowCredentials = true
	}
	r.Use(cors.New(corsCfg))

	s := &Server{
		gov:       d.Governance,
		consent:   d.Consent,
		members:   d.Members,
		treasury:  d.Treasury,
		ledger:    d.Ledger,
		sanitizer: bluemonday.StrictPolicy(),
		prefix:    d.SS58Prefix,
	}
	secret := []byte(cfg.JWTSecret)
	authH := NewAuth(d.Nonces, secret, cfg.JWTTTL, d.SS58Prefix)
	limiter := NewRateLimiter(cfg.WritesPerMinute, cfg.WriteBurst)

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/v1")
	v1.POST("/auth/challenge", RateLimitMiddleware(limiter), authH.Challenge)
	v1.POST("/auth/verify", RateLimitMiddleware(limiter), authH.Verify)

	v1.GET("/members", s.memberCount)
	v1.GET("/members/:addr", s.getMember)
	v1.GET("/members/:addr/consents", s.listConsents)
	v1.GET("/members/:addr/relationships", s.listRelationships)
	v1.GET("/proposals", s.listProposals)
	v1.GET("/proposals/:id", s.getProposal)
	v1.GET("/proposals/:id/responses", s.listResponses)
	v1.GET("/proposals/:id/votes", s.votingStatus)
	v1.GET("/proposals/:id/participation/:addr", s.participation)
	v1.GET("/consents/:id", s.getConsent)
	v1.GET("/relationships/:id", s.getRelationship)
	v1.GET("/relationships/:id/cooldown/confirmations", s.cooldownConfirmations)
	v1.GET("/ledger", s.listLedger)
	v1.GET("/ledger/verify", s.verifyLedger)
	v1.GET("/treasury", s.treasurySummary)

	secured := v1.Group("", JWTMiddleware(secret), RateLimitMiddleware(limiter))
	secured.POST("/members/join", s.join)
	secured.POST("/proposals", s.createProposal)
	secured.POST("/proposals/:id/responses", s.respond)
	secured.POST("/proposals/:id/open-voting", s.openVoting)
	secured.POST("/proposals/:id/votes", s.vote)
	secured.POST("/proposals/:id/execute", s.execute)
	secured.POST("/consents", s.proposeRelationship)
	secured.POST("/consents/:id/accept", s.acceptConsent)
	secured.PUT("/relationships/:id/boundaries", s.updateBoundaries)
	secured.POST("/relationships/:id/cooldown", s.initiateCooldown)
	secured.POST("/relationships/:id/cooldown/confirm", s.confirmCooldown)
	secured.POST("/relationships/:id/terminate", s.terminate)

	admin := v1.Group("/admin", JWTMiddleware(secret), AdminMiddleware(d.Members))
	admin.POST("/members/:addr/deactivate", s.deactivateMember)
	admin.POST("/treasury/deposits", s.deposit)
}

// normalize maps any SS58 or hex form of an account to the configured
// prefix. Strings that are not addresses are passed through trimmed.
func (s *Server) normalize(addr string) string {
	addr = strings.TrimSpace(addr)
	if canon, err := polkadot.Canonical(addr, s.prefix); err == nil {
		return canon
	}
	return addr
}

func (s *Server) clean(text string) string {
	return strings.TrimSpace(s.sanitizer.Sanitize(text))
}
