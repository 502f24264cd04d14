package middleware

import (
	"bytes"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"pr-reaction-bridge/internal/auth"
	"pr-reaction-bridge/internal/log"
)

// RawBodyKey is the gin context key holding the verified request body.
const RawBodyKey = "raw_body"

// GitHubSignature rejects requests whose X-Hub-Signature-256 does not match the body.
func GitHubSignature(secret string) gin.HandlerFunc {
	key := []byte(secret)
	return verifyBody("github", func(c *gin.Context, body []byte) error {
		return auth.VerifyGitHub(key, c.GetHeader(auth.GitHubSignatureHeader), body)
	})
}

// SlackSignature rejects requests with a bad X-Slack-Signature or a stale X-Slack-Request-Timestamp.
func SlackSignature(verifier *auth.SlackVerifier) gin.HandlerFunc {
	return verifyBody("slack", func(c *gin.Context, body []byte) error {
		return verifier.Verify(c.GetHeader(auth.SlackSignatureHeader), c.GetHeader(auth.SlackTimestampHeader), body)
	})
}

// verifyBody reads the raw body once, verifies it and hands the same bytes to the handler,
// both via RawBodyKey and as a fresh request body.
func verifyBody(source string, verify func(c *gin.Context, body []byte) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			log.Error(ctx, "Failed to read webhook body",
				"error", err,
				"source", source,
			)
			abortWithError(c, http.StatusBadRequest, "failed to read request body")
			return
		}

		if err := verify(c, body); err != nil {
			status := auth.StatusCode(err)
			log.Warn(ctx, "Webhook signature verification failed",
				"error", err,
				"source", source,
				"status", status,
			)
			abortWithError(c, status, err.Error())
			return
		}

		c.Set(RawBodyKey, body)
		c.Request.Body = io.NopCloser(bytes.NewReader(body))
		c.Next()
	}
}

// RawBody returns the body stored by the signature middleware, reading the request if absent.
func RawBody(c *gin.Context) ([]byte, error) {
	if body, ok := c.Get(RawBodyKey); ok {
		if b, ok := body.([]byte); ok {
			return b, nil
		}
	}
	return io.ReadAll(c.Request.Body)
}
