package webserver

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) join(c *gin.Context) {
	var req struct {
		Discord string `json:"discord" binding:"max=64"`
	}
	// The body is optional.
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}
	m, err := s.members.Join(c, c.GetString("addr"), s.clean(req.Discord))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

func (s *Server) getMember(c *gin.Context) {
	m, err := s.members.Get(c, s.normalize(c.Param("addr")))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

func (s *Server) memberCount(c *gin.Context) {
	n, err := s.members.Total(c)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"total": n})
}
