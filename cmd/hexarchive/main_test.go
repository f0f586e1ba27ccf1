package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elonfeng/hexarchive/internal/config"
	"github.com/elonfeng/hexarchive/internal/events"
	"github.com/elonfeng/hexarchive/internal/logging"
)

func TestRootCommands(t *testing.T) {
	root := rootCmd()

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"serve", "run", "sync", "seed", "import", "lookup", "sign"} {
		assert.Contains(t, names, want)
	}
}

func TestBuildNotifier(t *testing.T) {
	cfg := config.Default()
	assert.False(t, buildNotifier(cfg).HasNotifiers())

	cfg.Notify.Slack = config.SlackConfig{Enabled: true, WebhookURL: "https://hooks.slack.test/x"}
	cfg.Notify.Webhook = config.WebhookConfig{Enabled: true}
	assert.True(t, buildNotifier(cfg).HasNotifiers())
}

func TestBuildEventsDisabled(t *testing.T) {
	pub, err := buildEvents(config.Default())
	require.NoError(t, err)
	assert.Equal(t, events.Nop{}, pub)
}

func TestBuildSigner(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Secrets.Dir = dir
	cfg.Assets.SigningSecret = "hexarchive-test-signing-key"

	signer, err := buildSigner(context.Background(), cfg, logging.Discard())
	require.NoError(t, err)
	assert.Nil(t, signer, "missing key disables signing")

	require.NoError(t, os.WriteFile(filepath.Join(dir, cfg.Assets.SigningSecret), []byte("k\n"), 0o600))
	signer, err = buildSigner(context.Background(), cfg, logging.Discard())
	require.NoError(t, err)
	assert.NotNil(t, signer)
}
