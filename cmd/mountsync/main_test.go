package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/openmined/mountsync/internal/config"
	"github.com/openmined/mountsync/internal/runlog"
	"github.com/openmined/mountsync/internal/status"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	for _, k := range []string{"MOUNTSYNC_BUCKET", "S3_BUCKET", "MOUNTSYNC_PATH", "EFS_PATH", "MOUNTSYNC_DEBUG", "LOG_LEVEL", "MOUNTSYNC_LOG_LEVEL", "MOUNTSYNC_LOCK"} {
		t.Setenv(k, "")
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearEnv(t)
	a := newApp()
	a.rootCmd()

	cfg := a.loadConfig()
	assert.Empty(t, cfg.ObjectStoreLocation)
	assert.Equal(t, config.DefaultLockPath, cfg.LockPath)
	assert.Equal(t, config.DefaultLogPath, cfg.LogPath)
	assert.Equal(t, config.DefaultConcurrency, cfg.Concurrency)
	assert.Equal(t, config.DefaultConnectTimeout, cfg.ConnectTimeout)
	assert.False(t, cfg.Debug)
	assert.False(t, cfg.DryRun)
}

func TestLoadConfig_EnvFallback(t *testing.T) {
	clearEnv(t)
	t.Setenv("S3_BUCKET", "s3://legacy-bucket/data")
	t.Setenv("EFS_PATH", "/mnt/efs")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("MOUNTSYNC_DRY_RUN", "true")
	t.Setenv("MOUNTSYNC_CONCURRENCY", "3")

	a := newApp()
	a.rootCmd()

	cfg := a.loadConfig()
	assert.Equal(t, "s3://legacy-bucket/data", cfg.ObjectStoreLocation)
	assert.Equal(t, "/mnt/efs", cfg.MountPath)
	assert.True(t, cfg.Debug)
	assert.True(t, cfg.DryRun)
	assert.Equal(t, 3, cfg.Concurrency)
}

func TestLoadConfig_PrefixedEnvWins(t *testing.T) {
	clearEnv(t)
	t.Setenv("MOUNTSYNC_BUCKET", "s3://new-bucket")
	t.Setenv("S3_BUCKET", "s3://legacy-bucket")

	a := newApp()
	a.rootCmd()
	assert.Equal(t, "s3://new-bucket", a.loadConfig().ObjectStoreLocation)
}

func TestLoadConfig_FlagsOverrideEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("MOUNTSYNC_BUCKET", "s3://env-bucket")
	t.Setenv("MOUNTSYNC_PATH", "/mnt/env")

	a := newApp()
	root := a.rootCmd()
	flags := root.PersistentFlags()
	require.NoError(t, flags.Set("bucket", "s3://flag-bucket/prefix"))
	require.NoError(t, flags.Set("dry-run", "true"))
	require.NoError(t, flags.Set("quiet", "true"))

	cfg := a.loadConfig()
	assert.Equal(t, "s3://flag-bucket/prefix", cfg.ObjectStoreLocation)
	assert.Equal(t, "/mnt/env", cfg.MountPath)
	assert.True(t, cfg.DryRun)
	assert.True(t, cfg.Quiet)
}

func TestRun_ExitCodes(t *testing.T) {
	clearEnv(t)
	logDir := t.TempDir()

	tests := []struct {
		name string
		args []string
		code int
	}{
		{"unknown command", []string{"sideways"}, 1},
		{"unknown flag", []string{"pull", "--nope"}, 1},
		{"missing bucket", []string{"pull", "--path", "/mnt/efs", "--log", logDir}, 1},
		{"missing path", []string{"push", "--bucket", "s3://b", "--log", logDir}, 1},
		{"invalid location", []string{"push", "--bucket", "gs://b", "--path", "/mnt/efs", "--log", logDir}, 1},
		{"help", []string{"--help"}, 0},
		{"version", []string{"version"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, run(context.Background(), tt.args))
		})
	}
}

func TestRun_ConfigErrorsReachLogFile(t *testing.T) {
	clearEnv(t)
	mnt := t.TempDir()

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"invalid location", []string{"push", "--bucket", "gs://b", "--path", mnt}, config.ErrInvalidLocation.Error()},
		{"missing path", []string{"pull", "--bucket", "s3://b"}, config.ErrNoMountPath.Error()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logDir := filepath.Join(t.TempDir(), "logs")
			args := append(tt.args, "--log", logDir, "--quiet")

			require.Equal(t, 1, run(context.Background(), args))

			data, err := os.ReadFile(filepath.Join(logDir, runlog.FileName(time.Now())))
			require.NoError(t, err)
			assert.Contains(t, string(data), `msg="sync failed"`)
			assert.Contains(t, string(data), tt.want)
		})
	}
}

func TestStatusCmd_AbsentMount(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	a := newApp()
	defer a.close()
	root := a.rootCmd()

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{
		"status", "--json",
		"--path", filepath.Join(dir, "missing-mount"),
		"--lock", filepath.Join(dir, "mountsync.lock"),
		"--log", filepath.Join(dir, "logs"),
	})
	require.NoError(t, root.ExecuteContext(context.Background()))

	var s status.Status
	require.NoError(t, json.Unmarshal(out.Bytes(), &s))
	assert.False(t, s.Mount.Mounted)
	assert.Equal(t, "idle", string(s.Lock.State))
	assert.NoFileExists(t, filepath.Join(dir, "mountsync.lock.guard"))
	assert.Equal(t, status.NoRecordFound, s.LastRunNote)
	assert.Equal(t, "object store not configured", s.Usage.Source.Unavailable)
}
