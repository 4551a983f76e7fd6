package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "xharvest.yaml")
	cfg := Default()
	cfg.Capture.ContentWait = 3 * time.Second
	cfg.Input.Path = "BLM/2020-05-2.csv"
	require.NoError(t, Save(path, cfg))

	got, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 3*time.Second, got.Capture.ContentWait)
	require.Equal(t, "BLM/2020-05-2.csv", got.Input.Path)
	require.Equal(t, "status_id", got.Input.IDColumn)
	require.NoError(t, got.Validate())
}

func TestLoadKeepsDefaultsForOmittedKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.yaml")
	require.NoError(t, os.WriteFile(path, []byte("capture:\n  contentWait: 2s\n"), 0o644))
	got, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 2*time.Second, got.Capture.ContentWait)
	require.Equal(t, "TweetResultByRestId", got.Capture.Endpoint)
	require.Equal(t, "tweet_data.csv", got.Output.Records)
	require.Equal(t, 30*time.Second, got.Capture.NavigateTimeout)
}

func TestResolveEnv(t *testing.T) {
	t.Setenv("XHARVEST_CHROME_PATH", "/opt/chrome")
	t.Setenv("XHARVEST_HEADLESS", "false")
	t.Setenv("XHARVEST_LOG_LEVEL", "debug")
	cfg := Default()
	cfg.ResolveEnv()
	require.Equal(t, "/opt/chrome", cfg.Capture.ChromePath)
	require.False(t, cfg.Capture.Headless)
	require.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadEnvFile(t *testing.T) {
	require.NoError(t, LoadEnvFile(filepath.Join(t.TempDir(), "missing.env")))

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("XHARVEST_TEST_ENV_FILE=loaded\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("XHARVEST_TEST_ENV_FILE") })
	require.NoError(t, LoadEnvFile(path))
	require.Equal(t, "loaded", os.Getenv("XHARVEST_TEST_ENV_FILE"))
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Capture.ContentWait = 0
	require.Error(t, cfg.Validate())
	cfg = Default()
	cfg.Output.Failures = ""
	require.Error(t, cfg.Validate())
}
