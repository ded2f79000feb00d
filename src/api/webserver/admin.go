package webserver

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/stake-plus/commons/src/shared/gov"
)

type adminChecker interface {
	IsAdmin(ctx context.Context, principal string) (bool, error)
}

// AdminMiddleware admits active admin members only.
func AdminMiddleware(members adminChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		ok, err := members.IsAdmin(c, c.GetString("addr"))
		if err != nil {
			writeError(c, err)
			return
		}
		if !ok {
			writeError(c, gov.ErrNotAdmin)
			return
		}
		c.Next()
	}
}

func (s *Server) deactivateMember(c *gin.Context) {
	admin := c.GetString("addr")
	target := s.normalize(c.Param("addr"))
	if err := s.members.Deactivate(c, admin, target); err != nil {
		writeError(c, err)
		return
	}
	log.Info().Str("admin", admin).Str("member", target).Msg("admin: member deactivated")
	c.JSON(http.StatusOK, gin.H{"address": target, "active": false})
}

func (s *Server) deposit(c *gin.Context) {
	var req struct {
		Amount uint64 `json:"amount" binding:"required"`
		Note   string `json:"note"   binding:"max=255"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	d, err := s.treasury.Deposit(c, c.GetString("addr"), req.Amount, s.clean(req.Note))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, d)
}
