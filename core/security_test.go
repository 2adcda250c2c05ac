package core

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestInspectVerdicts(t *testing.T) {
	cases := []struct {
		name string
		body string
		want Verdict
	}{
		{"sql drop", "DROP TABLE users", VerdictSQLInjection},
		{"sql lowercase select", "please select something", VerdictSQLInjection},
		{"xss script tag", "<script>alert(1)</script>", VerdictXSS},
		{"xss javascript scheme", "click javascript:alert(1)", VerdictXSS},
		{"path traversal", "../../etc/passwd", VerdictPathTraversal},
		{"path traversal backslash", `..\windows\system32`, VerdictPathTraversal},
		{"command injection", "ping host && rm -rf /", VerdictCommandInjection},
		{"command pipe", "cat /etc/hosts | grep x", VerdictCommandInjection},
		{"clean", "hello world", VerdictClean},
		{"empty", "", VerdictClean},
		// The filter is intentionally coarse: an innocent "update" is rejected.
		{"false positive update", "please update my phone number", VerdictSQLInjection},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Inspect([]byte(tc.body)); got != tc.want {
				t.Fatalf("Inspect(%q) = %s, want %s", tc.body, got, tc.want)
			}
		})
	}
}

func TestInspectScanOrder(t *testing.T) {
	// Contains both an SQL keyword and an XSS pattern; SQL scan runs first.
	body := "select <script>alert(1)</script>"
	if got := Inspect([]byte(body)); got != VerdictSQLInjection {
		t.Fatalf("expected sql_injection to win, got %s", got)
	}

	// XSS pattern plus a path traversal; XSS is scanned before traversal.
	body = "<script>../</script>"
	if got := Inspect([]byte(body)); got != VerdictXSS {
		t.Fatalf("expected xss to win, got %s", got)
	}
}

func TestInspectIdempotent(t *testing.T) {
	body := []byte("DROP TABLE users")
	first := Inspect(body)
	second := Inspect(body)
	if first != second {
		t.Fatalf("verdicts differ: %s vs %s", first, second)
	}
}

type countingRecorder struct {
	counts map[Verdict]int
}

func (r *countingRecorder) RecordDetection(v Verdict) {
	if r.counts == nil {
		r.counts = map[Verdict]int{}
	}
	r.counts[v]++
}

func newInspectedEngine(cfg Config, audit *slog.Logger, metrics ThreatRecorder, downstream gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(SecurityMiddleware(cfg, audit, metrics))
	r.POST("/echo", downstream)
	return r
}

func TestSecurityMiddlewareRejectsThreat(t *testing.T) {
	var auditBuf bytes.Buffer
	audit := slog.New(slog.NewJSONHandler(&auditBuf, nil))
	recorder := &countingRecorder{}

	called := false
	r := newInspectedEngine(Config{}, audit, recorder, func(c *gin.Context) {
		called = true
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader("DROP TABLE users"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", w.Code)
	}
	if called {
		t.Fatal("handler must not run for a rejected request")
	}
	if recorder.counts[VerdictSQLInjection] != 1 {
		t.Fatalf("expected one sql_injection detection, got %v", recorder.counts)
	}

	// The matched pattern goes to the audit log, never back to the client.
	if strings.Contains(w.Body.String(), "DROP TABLE") {
		t.Fatal("response must not echo the offending body")
	}
	if strings.Contains(w.Body.String(), "sql_injection") {
		t.Fatal("response must not reveal the detected category")
	}

	var entry struct {
		Category string `json:"category"`
		Body     string `json:"body"`
	}
	if err := json.Unmarshal(auditBuf.Bytes(), &entry); err != nil {
		t.Fatalf("audit entry is not valid json: %v", err)
	}
	if entry.Category != string(VerdictSQLInjection) {
		t.Fatalf("audit category = %q, want sql_injection", entry.Category)
	}
	if entry.Body != "DROP TABLE users" {
		t.Fatalf("audit body = %q", entry.Body)
	}
}

func TestSecurityMiddlewarePassesCleanBodyDownstream(t *testing.T) {
	audit := slog.New(slog.NewJSONHandler(io.Discard, nil))

	const payload = `{"message":"hello world"}`
	var received string
	r := newInspectedEngine(Config{}, audit, nil, func(c *gin.Context) {
		data, err := io.ReadAll(c.Request.Body)
		if err != nil {
			t.Fatalf("downstream read failed: %v", err)
		}
		received = string(data)
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader(payload))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if received != payload {
		t.Fatalf("downstream saw %q, want %q", received, payload)
	}
}

func TestSecurityMiddlewareBodyTooLarge(t *testing.T) {
	audit := slog.New(slog.NewJSONHandler(io.Discard, nil))
	cfg := Config{MaxInspectBytes: 16}

	r := newInspectedEngine(cfg, audit, nil, func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader(strings.Repeat("a", 64)))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected status 413, got %d", w.Code)
	}
}
