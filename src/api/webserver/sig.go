package webserver

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	schnorrkel "github.com/ChainSafe/go-schnorrkel"
	"github.com/golang-jwt/jwt/v5"
)

// signingContext is the context polkadot.js uses for signRaw.
var signingContext = []byte("substrate")

func strip0x(s string) string {
	return strings.TrimPrefix(strings.TrimSpace(s), "0x")
}

// wrapBytes adds the <Bytes>...</Bytes> envelope browser extensions put
// around raw messages before signing.
func wrapBytes(msg string) string {
	return "<Bytes>" + msg + "</Bytes>"
}

// verifySignature checks an sr25519 signature over nonce, with or without
// the <Bytes> envelope.
func verifySignature(pub []byte, sigHex, nonce string) error {
	if len(pub) != 32 {
		return fmt.Errorf("invalid public key length: %d", len(pub))
	}
	sigBytes, err := hex.DecodeString(strip0x(sigHex))
	if err != nil {
		return fmt.Errorf("decode signature: %w", err)
	}
	if len(sigBytes) != 64 {
		return fmt.Errorf("invalid signature length: %d", len(sigBytes))
	}

	var pkRaw [32]byte
	copy(pkRaw[:], pub)
	var sigRaw [64]byte
	copy(sigRaw[:], sigBytes)

	var pk schnorrkel.PublicKey
	if err := pk.Decode(pkRaw); err != nil {
		return fmt.Errorf("decode public key: %w", err)
	}
	var sig schnorrkel.Signature
	if err := sig.Decode(sigRaw); err != nil {
		return fmt.Errorf("decode signature: %w", err)
	}

	for _, msg := range []string{nonce, wrapBytes(nonce)} {
		ok, err := pk.Verify(&sig, schnorrkel.NewSigningContext(signingContext, []byte(msg)))
		if err == nil && ok {
			return nil
		}
	}
	return fmt.Errorf("signature verification failed")
}

func issueJWT(addr string, secret []byte, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"addr": addr,
		"iat":  now.Unix(),
		"exp":  now.Add(ttl).Unix(),
	})
	return token.SignedString(secret)
}
