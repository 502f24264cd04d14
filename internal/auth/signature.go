// Package auth verifies HMAC-SHA256 signatures on inbound GitHub and Slack webhooks.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"pr-reaction-bridge/internal/clock"
)

// Header names and signature envelopes.
const (
	GitHubSignatureHeader = "X-Hub-Signature-256"
	GitHubSignaturePrefix = "sha256="

	SlackSignatureHeader  = "X-Slack-Signature"
	SlackTimestampHeader  = "X-Slack-Request-Timestamp"
	SlackSignatureVersion = "v0"
	SlackSignaturePrefix  = SlackSignatureVersion + "="

	// DefaultSlackMaxAge is how old a Slack request timestamp may be before it is rejected.
	DefaultSlackMaxAge = 300 * time.Second
)

// Verification errors. Use StatusCode to map them onto HTTP responses.
var (
	ErrMissingSignature    = errors.New("missing signature header")
	ErrMalformedSignature  = errors.New("malformed signature header")
	ErrInvalidSignatureHex = errors.New("signature is not valid hex")
	ErrSignatureMismatch   = errors.New("signature mismatch")
	ErrMissingTimestamp    = errors.New("missing request timestamp header")
	ErrInvalidTimestamp    = errors.New("request timestamp is not a unix time")
	ErrTimestampTooOld     = errors.New("request timestamp is too old")
)

// Sign returns the raw HMAC-SHA256 of message keyed by secret.
func Sign(secret, message []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write(message)
	return mac.Sum(nil)
}

// Verify reports whether signature is the HMAC-SHA256 of message under secret.
// The comparison is constant time.
func Verify(secret, message, signature []byte) bool {
	return hmac.Equal(Sign(secret, message), signature)
}

// VerifyGitHub checks an X-Hub-Signature-256 header value against the raw request body.
func VerifyGitHub(secret []byte, header string, body []byte) error {
	if header == "" {
		return ErrMissingSignature
	}

	sig, err := decodeSignature(header, GitHubSignaturePrefix)
	if err != nil {
		return err
	}

	if !Verify(secret, body, sig) {
		return ErrSignatureMismatch
	}
	return nil
}

// GitHubSignature renders the header value GitHub would send for body.
func GitHubSignature(secret, body []byte) string {
	return GitHubSignaturePrefix + hex.EncodeToString(Sign(secret, body))
}

// SlackVerifier checks Slack request signatures and timestamp freshness.
type SlackVerifier struct {
	secret []byte
	maxAge time.Duration
	clock  clock.Clock
}

// NewSlackVerifier creates a verifier. A non-positive maxAge falls back to DefaultSlackMaxAge.
func NewSlackVerifier(secret string, maxAge time.Duration, c clock.Clock) *SlackVerifier {
	if maxAge <= 0 {
		maxAge = DefaultSlackMaxAge
	}
	if c == nil {
		c = clock.Real{}
	}
	return &SlackVerifier{
		secret: []byte(secret),
		maxAge: maxAge,
		clock:  c,
	}
}

// Verify checks the X-Slack-Signature and X-Slack-Request-Timestamp header values against body.
// A stale timestamp is rejected before the signature is compared.
func (v *SlackVerifier) Verify(signatureHeader, timestampHeader string, body []byte) error {
	if signatureHeader == "" {
		return ErrMissingSignature
	}

	sig, err := decodeSignature(signatureHeader, SlackSignaturePrefix)
	if err != nil {
		return err
	}

	if timestampHeader == "" {
		return ErrMissingTimestamp
	}
	ts, err := strconv.ParseInt(timestampHeader, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidTimestamp, err)
	}

	// Whole seconds on both sides, matching the header's resolution.
	age := v.clock.Now().Unix() - ts
	if age > int64(v.maxAge/time.Second) {
		return fmt.Errorf("%w: %ds old", ErrTimestampTooOld, age)
	}

	if !Verify(v.secret, slackBaseString(timestampHeader, body), sig) {
		return ErrSignatureMismatch
	}
	return nil
}

// SlackSignature renders the header value Slack would send for body at timestamp.
func SlackSignature(secret, timestamp string, body []byte) string {
	return SlackSignaturePrefix + hex.EncodeToString(Sign([]byte(secret), slackBaseString(timestamp, body)))
}

// StatusCode maps a verification error to the HTTP status returned to the caller.
func StatusCode(err error) int {
	switch {
	case errors.Is(err, ErrMalformedSignature),
		errors.Is(err, ErrInvalidSignatureHex),
		errors.Is(err, ErrInvalidTimestamp):
		return http.StatusBadRequest
	default:
		return http.StatusUnauthorized
	}
}

func slackBaseString(timestamp string, body []byte) []byte {
	base := make([]byte, 0, len(SlackSignatureVersion)+len(timestamp)+len(body)+2)
	base = append(base, SlackSignatureVersion...)
	base = append(base, ':')
	base = append(base, timestamp...)
	base = append(base, ':')
	return append(base, body...)
}

func decodeSignature(header, prefix string) ([]byte, error) {
	encoded, ok := strings.CutPrefix(header, prefix)
	if !ok {
		return nil, ErrMalformedSignature
	}
	sig, err := hex.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSignatureHex, err)
	}
	return sig, nil
}
