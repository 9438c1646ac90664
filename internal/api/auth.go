package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const ownerKey = "owner"

// ownerAuth verifies the HMAC-signed token in the Authorization header and
// stores the owner claim on the context. The "Bearer " prefix is optional.
func ownerAuth(secret []byte, claim string) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader("Authorization"))
		if len(raw) > 7 && strings.EqualFold(raw[:7], "bearer ") {
			raw = strings.TrimSpace(raw[7:])
		}
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Token is required"})
			return
		}

		owner, err := verifyOwner(raw, secret, claim)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"message": "Invalid token"})
			return
		}
		c.Set(ownerKey, owner)
		c.Next()
	}
}

func verifyOwner(raw string, secret []byte, claim string) (string, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}))
	if err != nil {
		return "", err
	}
	owner, ok := claims[claim].(string)
	if !ok || owner == "" {
		return "", fmt.Errorf("token has no %q claim", claim)
	}
	return owner, nil
}

func ownerOf(c *gin.Context) string {
	return c.GetString(ownerKey)
}
