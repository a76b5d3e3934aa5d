package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func testContext(t *testing.T) (context.Context, context.CancelFunc) {
	t.Helper()
	return context.WithTimeout(context.Background(), 5*time.Second)
}

func TestLoadAppliesDefaultsWhenBaseFileOmitsFields(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "base.yaml")
	writeFile(t, base, "flow_dir: /etc/flowmesh/flows\n")

	cfg, err := Load(base, "")
	require.NoError(t, err)
	assert.Equal(t, "/etc/flowmesh/flows", cfg.FlowDir)
	assert.True(t, cfg.HotReload)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, ":2112", cfg.MetricsAddr)
}

func TestLoadLocalOverlayTakesPrecedenceOverBase(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "base.yaml")
	local := filepath.Join(dir, "local.yaml")
	writeFile(t, base, "flow_dir: /base/flows\nlog_level: info\n")
	writeFile(t, local, "log_level: debug\n")

	cfg, err := Load(base, local)
	require.NoError(t, err)
	assert.Equal(t, "/base/flows", cfg.FlowDir) // untouched by overlay
	assert.Equal(t, "debug", cfg.LogLevel)       // overridden by overlay
}

func TestLoadEnvOverridesTakePrecedenceOverFiles(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "base.yaml")
	writeFile(t, base, "flow_dir: /base/flows\nlog_level: info\n")

	t.Setenv("FLOWMESH_LOG_LEVEL", "warn")
	t.Setenv("FLOWMESH_FLOW_DIR", "/env/flows")

	cfg, err := Load(base, "")
	require.NoError(t, err)
	assert.Equal(t, "/env/flows", cfg.FlowDir)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestLoadRejectsAnEmptyFlowDir(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "base.yaml")
	writeFile(t, base, "flow_dir: \"\"\n")

	_, err := Load(base, "")
	assert.Error(t, err)
}

func TestLoadRejectsAnOutOfRangeLatitude(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "base.yaml")
	writeFile(t, base, "flow_dir: /flows\nlocation:\n  latitude: 120\n")

	_, err := Load(base, "")
	assert.Error(t, err)
}

func TestLoadRejectsAnInvalidLogLevel(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "base.yaml")
	writeFile(t, base, "flow_dir: /flows\nlog_level: verbose\n")

	_, err := Load(base, "")
	assert.Error(t, err)
}

func TestLoadRejectsAControllerEntryMissingKind(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "base.yaml")
	writeFile(t, base, "flow_dir: /flows\ncontrollers:\n  - id: kitchen-light\n")

	_, err := Load(base, "")
	assert.Error(t, err)
}

func TestWatchPublishesOnBaseFileWrite(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "base.yaml")
	writeFile(t, base, "flow_dir: /flows\nlog_level: info\n")

	w, err := Watch(base, "")
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := testContext(t)
	defer cancel()
	go w.Run(ctx)

	writeFile(t, base, "flow_dir: /flows\nlog_level: debug\n")

	select {
	case cfg := <-w.Changes:
		assert.Equal(t, "debug", cfg.LogLevel)
	case err := <-w.Errors:
		t.Fatalf("unexpected watcher error: %v", err)
	case <-ctx.Done():
		t.Fatal("timed out waiting for config reload")
	}
}
