package daemon

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/public-data-space/zenodo-adapter/internal/common/config"
	"github.com/public-data-space/zenodo-adapter/internal/common/constants"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

type (
	AppConfig     = appConfig
	ManagerConfig = managerConfig
	IngestConfig  = ingestConfig
)

// Config returns the configuration of the app.
func (a *App) Config() AppConfig {
	return a.config
}

// NewForTests creates a new App instance for testing purposes.
func NewForTests(t *testing.T, conf *AppConfig, args ...string) *App {
	t.Helper()

	p := GenerateTestConfig(t, conf)
	argsWithConf := []string{"--config", p}
	argsWithConf = append(argsWithConf, args...)

	a, err := New()
	require.NoError(t, err, "Setup: failed to create app")
	a.cmd.SetArgs(argsWithConf)
	return a
}

// GenerateTestDaemonConfig generates a temporary dynamic configuration file for testing.
func GenerateTestDaemonConfig(t *testing.T, daeConf *config.Conf) string {
	t.Helper()

	d, err := json.Marshal(daeConf)
	require.NoError(t, err, "Setup: failed to marshal dynamic config for tests")
	p := filepath.Join(t.TempDir(), "daemon-testconfig.json")
	require.NoError(t, os.WriteFile(p, d, 0600), "Setup: failed to write dynamic config for tests")

	return p
}

// GenerateTestConfig generates a temporary config file for testing.
// Every field of the written file overrides the flag defaults, so unset required values get test defaults.
func GenerateTestConfig(t *testing.T, origConf *AppConfig) string {
	t.Helper()

	var conf appConfig

	if origConf != nil {
		conf = *origConf
	}

	if conf.Verbosity == 0 {
		conf.Verbosity = 2
	}
	if conf.Manager.RegisterAttempts == 0 {
		conf.Manager.RegisterAttempts = constants.DefaultRegisterAttempts
	}
	if conf.Daemon.MaxRequestBytes == 0 {
		conf.Daemon.MaxRequestBytes = 1 << 20
	}
	if conf.DBconfig.SSLMode == "" {
		conf.DBconfig.SSLMode = "disable"
	}

	d, err := yaml.Marshal(conf)
	require.NoError(t, err, "Setup: failed to marshal config for tests")

	confPath := filepath.Join(t.TempDir(), "testconfig.yaml")
	require.NoError(t, os.WriteFile(confPath, d, 0600), "Setup: failed to write config for tests")

	return confPath
}

// SetArgs set some arguments on root command for tests.
func (a *App) SetArgs(args ...string) {
	a.cmd.SetArgs(args)
}

// SetSilenceUsage set the SilenceUsage flag on root command for tests.
func (a *App) SetSilenceUsage(silence bool) {
	a.cmd.SilenceUsage = silence
}
