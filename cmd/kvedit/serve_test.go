package main

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maruel/kvedit/internal/autonav"
	"github.com/maruel/kvedit/internal/config"
	"github.com/maruel/kvedit/internal/hoststore/memhost"
	"github.com/maruel/kvedit/internal/notify"
	"github.com/maruel/kvedit/internal/overlay"
	"github.com/maruel/kvedit/internal/storeclient"
)

func TestReload(t *testing.T) {
	var logs bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&logs, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	ctx := t.Context()
	center := notify.New(time.Minute)
	t.Cleanup(center.Close)
	o := overlay.New(ctx, storeclient.New(memhost.New()), center, autonav.DefaultConfig())
	t.Cleanup(o.Close)
	a := &app{level: &slog.LevelVar{}, cfgFile: "kvedit.yaml"}

	cfg, err := config.Load("", nil)
	require.NoError(t, err)
	cfg.AutoNav.DatabaseKeyword = "shop"
	cfg.AutoNav.URLPattern = "("
	a.reload(ctx, cfg, o, center)
	assert.Equal(t, "app", o.AutoNav().DatabaseKeyword, "invalid settings are not applied")
	assert.Contains(t, logs.String(), "Ignoring reloaded autonav settings")
	assert.Contains(t, logs.String(), "level=WARN")

	cfg.AutoNav.URLPattern = autonav.DefaultPattern
	cfg.LogLevel = "debug"
	a.reload(ctx, cfg, o, center)
	assert.Equal(t, "shop", o.AutoNav().DatabaseKeyword)
	assert.Equal(t, slog.LevelDebug, a.level.Level())
	assert.Contains(t, logs.String(), "Config reloaded")

	cfg.LogLevel = "loud"
	a.reload(ctx, cfg, o, center)
	assert.Equal(t, slog.LevelDebug, a.level.Level())
	assert.Contains(t, logs.String(), "Keeping log level")
}
