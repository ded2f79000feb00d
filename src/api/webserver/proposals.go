package webserver

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/stake-plus/commons/src/governance"
	"github.com/stake-plus/commons/src/shared/gov"
)

func proposalID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		badRequest(c, fmt.Errorf("invalid proposal id %q", c.Param("id")))
		return 0, false
	}
	return id, true
}

type createProposalRequest struct {
	Type          string `json:"type"          binding:"required"`
	Title         string `json:"title"         binding:"required,max=255"`
	Description   string `json:"description"   binding:"max=10000"`
	Amount        uint64 `json:"amount"`
	Recipient     string `json:"recipient"`
	DebugTarget   string `json:"debugTarget"   binding:"max=10000"`
	ListeningDays uint32 `json:"listeningDays" binding:"required"`
	VotingDays    uint32 `json:"votingDays"    binding:"required"`
}

func (s *Server) createProposal(c *gin.Context) {
	var req createProposalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	typ, err := gov.ParseProposalType(req.Type)
	if err != nil {
		writeError(c, err)
		return
	}
	in := governance.ProposalInput{
		Type:          typ,
		Title:         s.clean(req.Title),
		Description:   s.clean(req.Description),
		Amount:        req.Amount,
		DebugTarget:   s.clean(req.DebugTarget),
		ListeningDays: req.ListeningDays,
		VotingDays:    req.VotingDays,
	}
	if req.Recipient != "" {
		in.Recipient = s.normalize(req.Recipient)
	}
	p, err := s.gov.CreateProposal(c, c.GetString("addr"), in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

// listProposals returns active proposals, or those matching ?status=a,b.
func (s *Server) listProposals(c *gin.Context) {
	raw := strings.TrimSpace(c.Query("status"))
	if raw == "" {
		views, err := s.gov.ListActiveProposals(c)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"proposals": views})
		return
	}
	var statuses []gov.ProposalStatus
	if raw != "all" {
		for _, part := range strings.Split(raw, ",") {
			st, err := gov.ParseProposalStatus(part)
			if err != nil {
				writeError(c, err)
				return
			}
			statuses = append(statuses, st)
		}
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	views, err := s.gov.ListProposals(c, statuses, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	total, err := s.gov.CountProposals(c)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"proposals": views, "total": total})
}

func (s *Server) getProposal(c *gin.Context) {
	id, ok := proposalID(c)
	if !ok {
		return
	}
	v, err := s.gov.GetProposal(c, id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

func (s *Server) listResponses(c *gin.Context) {
	id, ok := proposalID(c)
	if !ok {
		return
	}
	rs, err := s.gov.ListResponses(c, id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"responses": rs})
}

func (s *Server) respond(c *gin.Context) {
	id, ok := proposalID(c)
	if !ok {
		return
	}
	var req struct {
		Comment           string `json:"comment" binding:"max=10000"`
		RaisesCoreConcern bool   `json:"raisesCoreConcern"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	r, err := s.gov.RespondToProposal(c, c.GetString("addr"), id, s.clean(req.Comment), req.RaisesCoreConcern)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, r)
}

func (s *Server) openVoting(c *gin.Context) {
	id, ok := proposalID(c)
	if !ok {
		return
	}
	p, err := s.gov.OpenVoting(c, c.GetString("addr"), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *Server) vote(c *gin.Context) {
	id, ok := proposalID(c)
	if !ok {
		return
	}
	var req struct {
		Support *bool `json:"support" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	p, err := s.gov.Vote(c, c.GetString("addr"), id, *req.Support)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *Server) votingStatus(c *gin.Context) {
	id, ok := proposalID(c)
	if !ok {
		return
	}
	st, err := s.gov.GetVotingStatus(c, id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *Server) execute(c *gin.Context) {
	id, ok := proposalID(c)
	if !ok {
		return
	}
	p, err := s.gov.ExecuteProposal(c, c.GetString("addr"), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *Server) participation(c *gin.Context) {
	id, ok := proposalID(c)
	if !ok {
		return
	}
	p, err := s.gov.Participation(c, id, s.normalize(c.Param("addr")))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}
