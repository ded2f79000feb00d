package webserver

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// JWTMiddleware authenticates the bearer token and stores the principal
// under "addr".
func JWTMiddleware(secret []byte) gin.HandlerFunc {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		if !strings.HasPrefix(h, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"err": "missing bearer token", "code": "Unauthorized"})
			return
		}
		tok, err := parser.Parse(h[7:], func(t *jwt.Token) (interface{}, error) { return secret, nil })
		if err != nil || !tok.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"err": "invalid token", "code": "Unauthorized"})
			return
		}
		claims, ok := tok.Claims.(jwt.MapClaims)
		addr, _ := claims["addr"].(string)
		if !ok || addr == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"err": "token has no principal", "code": "Unauthorized"})
			return
		}
		c.Set("addr", addr)
		c.Next()
	}
}
