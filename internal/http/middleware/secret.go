// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements SharedSecret, a header check used in two places:
//   - the Telegram webhook, where Telegram echoes the secret_token given to
//     setWebhook in X-Telegram-Bot-Api-Secret-Token
//   - the admin group, guarded by X-Admin-Key
//
// An empty configured secret disables the check.
package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const (
	// HeaderTelegramSecret carries the webhook secret on Telegram deliveries.
	HeaderTelegramSecret = "X-Telegram-Bot-Api-Secret-Token"
	// HeaderAdminKey carries the admin shared secret.
	HeaderAdminKey = "X-Admin-Key"
)

// SharedSecret rejects requests whose header value does not match secret
// with 403 and a JSON error body. The comparison is constant time. Rejected
// requests never reach the handler.
func SharedSecret(header, secret string) gin.HandlerFunc {
	want := []byte(secret)
	return func(c *gin.Context) {
		if len(want) == 0 {
			c.Next()
			return
		}
		got := []byte(c.GetHeader(header))
		if subtle.ConstantTimeCompare(got, want) != 1 {
			log.Warn().
				Str("request_id", c.Writer.Header().Get(requestIDHeader)).
				Str("header", header).
				Bool("present", len(got) > 0).
				Msg("shared secret mismatch")
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"request_id": c.Writer.Header().Get(requestIDHeader),
				"code":       "forbidden",
				"message":    "invalid or missing " + header,
			})
			return
		}
		c.Next()
	}
}
