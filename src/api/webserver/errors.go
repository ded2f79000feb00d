package webserver

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/stake-plus/commons/src/shared/gov"
)

var kindStatus = map[gov.ErrorKind]int{
	gov.KindAuthorization: http.StatusForbidden,
	gov.KindState:         http.StatusConflict,
	gov.KindValidation:    http.StatusBadRequest,
	gov.KindNotFound:      http.StatusNotFound,
	gov.KindExecution:     http.StatusBadGateway,
}

// writeError maps protocol errors to a status and the {"err","code"} body.
// Anything else is logged and reported as 500 without detail.
func writeError(c *gin.Context, err error) {
	if e, ok := gov.AsError(err); ok {
		status, ok := kindStatus[e.Kind]
		if !ok {
			status = http.StatusInternalServerError
		}
		c.AbortWithStatusJSON(status, gin.H{"err": err.Error(), "code": e.Code})
		return
	}
	if errors.Is(err, gov.ErrConflict) {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"err": "busy, retry", "code": "Conflict"})
		return
	}
	log.Error().Err(err).Str("path", c.FullPath()).Str("addr", c.GetString("addr")).Msg("webserver: internal error")
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"err": "internal error", "code": "Internal"})
}

func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"err": err.Error(), "code": gov.ErrInvalidPayload.Code})
}
