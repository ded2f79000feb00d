package webserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/stake-plus/commons/src/polkadot"
)

// NonceStore holds pending login challenges.
type NonceStore interface {
	SetNonce(ctx context.Context, addr, nonce string) error
	GetNonce(ctx context.Context, addr string) (string, error)
	ConsumeNonce(ctx context.Context, addr, nonce string) (bool, error)
}

type Auth struct {
	nonces    NonceStore
	jwtSecret []byte
	ttl       time.Duration
	prefix    uint16
}

func NewAuth(nonces NonceStore, secret []byte, ttl time.Duration, prefix uint16) Auth {
	return Auth{nonces: nonces, jwtSecret: secret, ttl: ttl, prefix: prefix}
}

type challengeRequest struct {
	Address string `json:"address" binding:"required"`
	Method  string `json:"method"  binding:"required,oneof=walletconnect polkadotjs airgap"`
}

// Challenge issues a nonce. Wallets sign it; airgap users post it as a
// system.remark, which the remark watcher confirms.
func (a Auth) Challenge(c *gin.Context) {
	var req challengeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	addr, err := polkadot.Canonical(req.Address, a.prefix)
	if err != nil {
		badRequest(c, err)
		return
	}
	nonce := uuid.NewString()
	if err := a.nonces.SetNonce(c, addr, nonce); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"nonce": nonce, "address": addr})
}

func (a Auth) Verify(c *gin.Context) {
	var req struct {
		Address   string `json:"address"   binding:"required"`
		Method    string `json:"method"    binding:"required,oneof=walletconnect polkadotjs airgap"`
		Signature string `json:"signature"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	pub, err := polkadot.PublicKey(req.Address)
	if err != nil {
		badRequest(c, err)
		return
	}
	addr, err := polkadot.EncodeSS58(pub, a.prefix)
	if err != nil {
		badRequest(c, err)
		return
	}
	// The challenge is read, checked, and only then consumed, so a failed
	// attempt cannot burn someone else's pending login.
	nonce, err := a.nonces.GetNonce(c, addr)
	if err != nil {
		writeError(c, err)
		return
	}
	if nonce == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"err": "challenge expired", "code": "Unauthorized"})
		return
	}

	switch req.Method {
	case "airgap":
		if nonce != polkadot.Confirmed {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"err": "remark not confirmed", "code": "Unauthorized"})
			return
		}
	default:
		if err := verifySignature(pub, req.Signature, nonce); err != nil {
			log.Debug().Err(err).Str("addr", addr).Msg("auth: signature rejected")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"err": "bad signature", "code": "Unauthorized"})
			return
		}
	}

	consumed, err := a.nonces.ConsumeNonce(c, addr, nonce)
	if err != nil {
		writeError(c, err)
		return
	}
	if !consumed {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"err": "challenge already used", "code": "Unauthorized"})
		return
	}

	token, err := issueJWT(addr, a.jwtSecret, a.ttl)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "address": addr})
}
