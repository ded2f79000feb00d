package webserver

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/stake-plus/commons/src/ledger"
)

const maxLedgerPage = 500

func (s *Server) listLedger(c *gin.Context) {
	after, err := strconv.ParseUint(c.DefaultQuery("after", "0"), 10, 64)
	if err != nil {
		badRequest(c, err)
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil || limit <= 0 || limit > maxLedgerPage {
		limit = 100
	}
	entries, err := s.ledger.ListLedger(c, after, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func (s *Server) verifyLedger(c *gin.Context) {
	rep, err := ledger.VerifyStore(c, s.ledger, maxLedgerPage)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rep)
}

func (s *Server) treasurySummary(c *gin.Context) {
	sum, err := s.treasury.Summary(c, 20)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}
