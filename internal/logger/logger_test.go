package logger

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"memberconsole/internal/config"
	"memberconsole/internal/model"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestNewWritesText(t *testing.T) {
	var buf bytes.Buffer
	cfg := config.NewConfig()
	cfg.Server.LogLevel = "debug"

	l := New(*cfg, &buf)
	l.WithPrincipal(&model.Principal{ID: "u1", Role: model.RoleChapterAdmin, ChapterID: "ch-1"}).Info("approved")

	out := buf.String()
	assert.Contains(t, out, "msg=approved")
	assert.Contains(t, out, "role=CHAPTER_ADMIN")
	assert.Contains(t, out, "chapter_id=ch-1")
}

func TestNewWritesJSONInProduction(t *testing.T) {
	var buf bytes.Buffer
	cfg := config.NewConfig()
	cfg.Server.Environment = "production"

	l := New(*cfg, &buf)
	l.Component("gateway").Debug("hidden")
	l.Component("gateway").Warn("renewal failed")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"component":"gateway"`)
}

type countingHandler struct {
	slog.Handler
	n *int
}

func (c countingHandler) Handle(ctx context.Context, r slog.Record) error {
	*c.n++
	return nil
}

func TestMultiHandlerFansOut(t *testing.T) {
	var a, b int
	base := slog.NewTextHandler(&bytes.Buffer{}, nil)
	h := NewMultiHandler(countingHandler{base, &a}, countingHandler{base, &b})

	slog.New(h).Info("hello")
	slog.New(h).Debug("below level")

	assert.Equal(t, 1, a)
	assert.Equal(t, 1, b)
}
