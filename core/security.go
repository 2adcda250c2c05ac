package core

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Verdict classifies one inspected request body.
type Verdict string

const (
	VerdictClean            Verdict = "clean"
	VerdictSQLInjection     Verdict = "sql_injection"
	VerdictXSS              Verdict = "xss"
	VerdictPathTraversal    Verdict = "path_traversal"
	VerdictCommandInjection Verdict = "command_injection"
)

// inspectionRule couples a category with its matcher. Rules run in declared
// order and the first match wins, so the order itself is part of the contract.
type inspectionRule struct {
	verdict Verdict
	match   func(lowered string) bool
}

var sqlKeywords = []string{"select", "insert", "delete", "update", "drop", "union"}

var xssPatterns = []string{"<script>", "javascript:", "onload=", "onerror="}

var commandChars = []string{"&&", "|", ";", ">", "$", "`", "\\"}

// inspectionRules is the fixed scan sequence: SQL injection, XSS, path
// traversal, command injection. Matchers receive the lower-cased body once.
var inspectionRules = []inspectionRule{
	{VerdictSQLInjection, func(s string) bool { return containsAny(s, sqlKeywords) }},
	{VerdictXSS, func(s string) bool { return containsAny(s, xssPatterns) }},
	{VerdictPathTraversal, func(s string) bool {
		return strings.Contains(s, "../") || strings.Contains(s, `..\`)
	}},
	{VerdictCommandInjection, func(s string) bool { return containsAny(s, commandChars) }},
}

func containsAny(s string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

// Inspect scans a raw request body against the rule sequence and returns the
// first matching verdict, or VerdictClean. It is a deliberately coarse,
// fail-closed substring filter: a legitimate body containing the word
// "update" is rejected, and that tradeoff is intentional.
func Inspect(body []byte) Verdict {
	lowered := strings.ToLower(string(body))
	for _, rule := range inspectionRules {
		if rule.match(lowered) {
			return rule.verdict
		}
	}
	return VerdictClean
}

// ThreatRecorder counts detections per category; implemented on Redis, nil-able
// in tests via the interface.
type ThreatRecorder interface {
	RecordDetection(verdict Verdict)
}

// SecurityMiddleware inspects every request body before routing logic runs.
// Non-clean verdicts are rejected with a generic 400 that never echoes the
// matched pattern; the offending body and category go to the audit log only.
// Clean bodies are restored so downstream handlers can read them again.
func SecurityMiddleware(cfg Config, audit *slog.Logger, metrics ThreatRecorder) gin.HandlerFunc {
	maxBytes := cfg.MaxInspectBytes
	if maxBytes <= 0 {
		maxBytes = 1 << 20
	}

	return func(c *gin.Context) {
		if c.Request.Body == nil || c.Request.Body == http.NoBody {
			c.Next()
			return
		}

		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBytes+1))
		if err != nil {
			respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "failed to read request body")
			c.Abort()
			return
		}
		if int64(len(body)) > maxBytes {
			respondError(c, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "request body too large")
			c.Abort()
			return
		}

		if verdict := Inspect(body); verdict != VerdictClean {
			audit.Warn("threat detected",
				slog.String("category", string(verdict)),
				slog.String("method", c.Request.Method),
				slog.String("path", c.Request.URL.Path),
				slog.String("body", string(body)),
			)
			if metrics != nil {
				metrics.RecordDetection(verdict)
			}
			respondError(c, http.StatusBadRequest, "THREAT_DETECTED", "request rejected by security policy")
			c.Abort()
			return
		}

		// Reading the body is one-shot; hand downstream a fresh reader.
		c.Request.Body = io.NopCloser(bytes.NewReader(body))
		c.Next()
	}
}
