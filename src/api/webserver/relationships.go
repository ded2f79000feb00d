package webserver

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/stake-plus/commons/src/shared/gov"
)

func (s *Server) proposeRelationship(c *gin.Context) {
	var req struct {
		Counterparty     string `json:"counterparty"     binding:"required"`
		RelationshipType string `json:"relationshipType" binding:"required"`
		Terms            string `json:"terms"            binding:"max=10000"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	contract, err := s.consent.ProposeRelationship(c, c.GetString("addr"), s.normalize(req.Counterparty),
		gov.RelationshipType(req.RelationshipType), s.clean(req.Terms))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, contract)
}

func (s *Server) getConsent(c *gin.Context) {
	contract, err := s.consent.GetConsentContract(c, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, contract)
}

func (s *Server) acceptConsent(c *gin.Context) {
	rel, err := s.consent.ConsentToRelationship(c, c.GetString("addr"), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rel)
}

func (s *Server) listConsents(c *gin.Context) {
	contracts, err := s.consent.ListConsentContractsByMember(c, s.normalize(c.Param("addr")))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"consents": contracts})
}

func (s *Server) listRelationships(c *gin.Context) {
	rels, err := s.consent.ListRelationshipsByMember(c, s.normalize(c.Param("addr")))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"relationships": rels})
}

func (s *Server) getRelationship(c *gin.Context) {
	rel, err := s.consent.GetRelationship(c, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rel)
}

func (s *Server) cooldownConfirmations(c *gin.Context) {
	confs, err := s.consent.CooldownConfirmations(c, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"confirmations": confs})
}

func (s *Server) updateBoundaries(c *gin.Context) {
	var req struct {
		Boundaries string `json:"boundaries" binding:"max=10000"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	rel, err := s.consent.UpdateBoundaries(c, c.GetString("addr"), c.Param("id"), s.clean(req.Boundaries))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rel)
}

func (s *Server) initiateCooldown(c *gin.Context) {
	rel, err := s.consent.InitiateCooldown(c, c.GetString("addr"), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rel)
}

func (s *Server) confirmCooldown(c *gin.Context) {
	rel, err := s.consent.ConfirmCooldownEnd(c, c.GetString("addr"), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rel)
}

func (s *Server) terminate(c *gin.Context) {
	var req struct {
		Reason string `json:"reason" binding:"max=10000"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	rel, err := s.consent.TerminateRelationship(c, c.GetString("addr"), c.Param("id"), s.clean(req.Reason))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rel)
}
