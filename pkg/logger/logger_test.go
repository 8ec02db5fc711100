package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedact(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{ReplaceAttr: redact}))
	l.Info("login", "email", "ada@example.com", "password", "secret1")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "ada@example.com", rec["email"])
	assert.Equal(t, "[redacted]", rec["password"])
}

func TestFrom_Fallback(t *testing.T) {
	fallback := slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil))
	assert.Same(t, fallback, From(context.Background(), fallback))
	assert.Same(t, slog.Default(), From(context.Background(), nil))

	scoped := slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil))
	assert.Same(t, scoped, From(With(context.Background(), scoped), fallback))
}

func TestMiddleware_RequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	l := slog.New(slog.NewJSONHandler(&buf, nil))

	r := gin.New()
	r.Use(Middleware(l))
	r.GET("/x", func(c *gin.Context) {
		c.Set("user_id", "u1")
		From(c.Request.Context(), nil).Info("inside handler")
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(headerRequestID, "req-123")
	r.ServeHTTP(w, req)

	assert.Equal(t, "req-123", w.Header().Get(headerRequestID))

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)
	for _, line := range lines {
		var rec map[string]any
		require.NoError(t, json.Unmarshal(line, &rec))
		assert.Equal(t, "req-123", rec["request_id"])
	}
	var summary map[string]any
	require.NoError(t, json.Unmarshal(lines[1], &summary))
	assert.Equal(t, "u1", summary["user_id"])
	assert.EqualValues(t, http.StatusNoContent, summary["status"])

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.NotEmpty(t, w.Header().Get(headerRequestID))
}
