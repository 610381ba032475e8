package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scottdmilner/pipebot/internal/assets"
	"github.com/scottdmilner/pipebot/internal/config"
)

const testConfigYAML = `
service:
  name: pipebot
  log_level: info
discord:
  token: discord-token
  guild_id: "100"
  channels:
    testing: "111"
    leads: "222"
github:
  token: gh-token
  repository: byu-animation/pipeline
webhooks:
  listen: 127.0.0.1:0
  endpoints:
    - path: /shotgrid
      handler: relay
      channel: testing
      secret: a-long-shotgrid-secret
      signature_header: x-sg-signature
    - path: /model_checker
      handler: model_checker
      channel: leads
      secret: a-long-pipebot-secret
      signature_header: x-pipebot-signature
`

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	err := cmd.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pipebot.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func exitCode(err error) int {
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	if err != nil {
		return 1
	}
	return 0
}

func TestVersion(t *testing.T) {
	out, err := run(t, "", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "pipebot version dev")
}

func TestSignFromStdin(t *testing.T) {
	out, err := run(t, "what do ya want for nothing?", "sign", "--secret", "Jefe")
	require.NoError(t, err)
	assert.Equal(t, "sha1=effcdf6ae5eb2fa2d27416d5f184df9c259a7c79\n", out)
}

func TestSignFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "payload.json")
	require.NoError(t, os.WriteFile(path, []byte("what do ya want for nothing?"), 0600))

	out, err := run(t, "", "sign", "--secret", "Jefe", path)
	require.NoError(t, err)
	assert.Equal(t, "sha1=effcdf6ae5eb2fa2d27416d5f184df9c259a7c79\n", out)
}

func TestSignRequiresSecret(t *testing.T) {
	_, err := run(t, "{}", "sign")
	assert.ErrorContains(t, err, "--secret is required")
}

func TestConfigCheckUnlocked(t *testing.T) {
	path := writeConfig(t, testConfigYAML)

	out, err := run(t, "", "config", "check", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration valid")
	assert.Contains(t, out, "[integrity]")

	_, err = run(t, "", "config", "check", "--config", path, "--strict")
	assert.Equal(t, 2, exitCode(err))
}

func TestConfigLockThenCheck(t *testing.T) {
	path := writeConfig(t, testConfigYAML)

	out, err := run(t, "", "config", "lock", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Locked")
	assert.FileExists(t, filepath.Join(filepath.Dir(path), config.ChecksumFile))

	out, err = run(t, "", "config", "check", "--config", path, "--strict")
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration valid.")

	// Any edit after locking is refused at load time.
	require.NoError(t, os.WriteFile(path, []byte(testConfigYAML+"\n# edited\n"), 0600))
	out, err = run(t, "", "config", "check", "--config", path)
	assert.Equal(t, 1, exitCode(err))
	assert.Contains(t, out, "hash mismatch")
}

func TestConfigLockNeedsPath(t *testing.T) {
	_, err := run(t, "", "config", "lock")
	assert.ErrorContains(t, err, "needs --config")
}

func TestConfigCheckMissingEnvironment(t *testing.T) {
	t.Setenv("PIPEBOT_TEST_DISCORD_TOKEN", "")
	os.Unsetenv("PIPEBOT_TEST_DISCORD_TOKEN")
	path := writeConfig(t, strings.Replace(testConfigYAML, "token: discord-token", "token: ${PIPEBOT_TEST_DISCORD_TOKEN}", 1))

	out, err := run(t, "", "config", "check", "--config", path, "--format", "json")
	assert.Equal(t, 1, exitCode(err))
	assert.Contains(t, out, `"valid": false`)
	assert.Contains(t, out, "PIPEBOT_TEST_DISCORD_TOKEN")
}

func TestConfigCheckUnknownFormat(t *testing.T) {
	path := writeConfig(t, testConfigYAML)
	_, err := run(t, "", "config", "check", "--config", path, "--format", "xml")
	assert.ErrorContains(t, err, "unknown format")
}

func TestServeRejectsInvalidConfig(t *testing.T) {
	path := writeConfig(t, strings.Replace(testConfigYAML, "repository: byu-animation/pipeline", "repository: pipeline", 1))

	_, err := run(t, "", "serve", "--config", path)
	require.Error(t, err)
	var cerr *config.ConfigurationError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "github.repository", cerr.Field)
}

func TestAssetStore(t *testing.T) {
	store, err := assetStore(context.Background(), config.AssetsConfig{Backend: "github", Namespace: "assets"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &assets.GitHubStore{}, store)

	store, err = assetStore(context.Background(), config.AssetsConfig{
		Backend:   "s3",
		Namespace: "issues",
		S3: config.S3Config{
			Bucket:          "pipebot-assets",
			Region:          "us-west-2",
			AccessKeyID:     "AKIDEXAMPLE",
			SecretAccessKey: "secret",
			PublicBaseURL:   "https://assets.example.com",
		},
	}, nil)
	require.NoError(t, err)
	assert.IsType(t, &assets.S3Store{}, store)

	_, err = assetStore(context.Background(), config.AssetsConfig{Backend: "ftp"}, nil)
	var cerr *config.ConfigurationError
	assert.ErrorAs(t, err, &cerr)
}
